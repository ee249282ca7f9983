package middleware

import (
	"context"
	"net/http"
	"time"

	"dreampuff/internal/domain"
	"dreampuff/internal/session"

	"go.uber.org/zap"
)

// SessionRequiredCode marks a 403 that is resolved by starting a work session
const SessionRequiredCode = "session_required"

// SessionChecker decides where an identity stands in the session lifecycle
type SessionChecker interface {
	Check(ctx context.Context, identity *domain.Identity, now time.Time) (session.Decision, error)
}

// SessionGate admits only identities with an active work session of the current business day
// and injects that session into the request context. It must run after AuthMiddleware.
func SessionGate(checker SessionChecker, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var identity *domain.Identity
			if id, ok := IdentityFromContext(r.Context()); ok {
				identity = &id
			}

			decision, err := checker.Check(r.Context(), identity, time.Now())
			if err != nil {
				logger.Error("Session check failed", zap.Error(err))
				RespondWithError(w, http.StatusServiceUnavailable, "session state unavailable")
				return
			}

			switch decision.State {
			case session.StateSessionActive:
				ctx := session.WithInfo(r.Context(), *decision.Info)
				next.ServeHTTP(w, r.WithContext(ctx))
			case session.StateAwaitingStart:
				RespondWithErrorCode(w, http.StatusForbidden, SessionRequiredCode, decision.Message)
			default:
				message := decision.Message
				if message == "" {
					message = "authentication required"
				}
				RespondWithRedirect(w, http.StatusUnauthorized, message, session.EntryPoint)
			}
		})
	}
}
