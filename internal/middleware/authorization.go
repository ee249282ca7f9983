package middleware

import (
	"net/http"

	"dreampuff/internal/domain"
	"dreampuff/internal/session"

	"go.uber.org/zap"
)

// RequirePosition ensures the active work session was started with one of the given positions.
// It must run after SessionGate.
func RequirePosition(logger *zap.Logger, allowed ...domain.Position) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := session.InfoFromContext(r.Context())
			if !ok {
				logger.Warn("Session info not found in context")
				RespondWithError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			for _, position := range allowed {
				if info.Position == position {
					next.ServeHTTP(w, r)
					return
				}
			}

			logger.Warn("Position not authorized",
				zap.String("position", string(info.Position)),
				zap.String("path", r.URL.Path),
			)
			RespondWithError(w, http.StatusForbidden, "insufficient permissions")
		})
	}
}
