package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"dreampuff/internal/domain"
	"dreampuff/internal/session"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity returns a copy of ctx carrying the authenticated principal
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext extracts the principal set by AuthMiddleware
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(domain.Identity)
	return identity, ok
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware validates JWT access tokens and extracts the identity.
// Failures answer 401 with a redirect to the entry point.
func AuthMiddleware(jwtSecret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				logger.Debug("Missing authorization header")
				RespondWithRedirect(w, http.StatusUnauthorized, "missing authorization header", session.EntryPoint)
				return
			}

			tokenString, ok := bearerToken(r)
			if !ok {
				logger.Debug("Invalid authorization header format")
				RespondWithRedirect(w, http.StatusUnauthorized, "invalid authorization header format", session.EntryPoint)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})

			if err != nil {
				logger.Debug("Token validation failed", zap.Error(err))
				if errors.Is(err, jwt.ErrTokenExpired) {
					RespondWithRedirect(w, http.StatusUnauthorized, "token expired", session.EntryPoint)
				} else {
					RespondWithRedirect(w, http.StatusUnauthorized, "invalid token", session.EntryPoint)
				}
				return
			}

			if !token.Valid {
				logger.Debug("Invalid token")
				RespondWithRedirect(w, http.StatusUnauthorized, "invalid token", session.EntryPoint)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				logger.Error("Failed to extract claims from token")
				RespondWithRedirect(w, http.StatusUnauthorized, "invalid token claims", session.EntryPoint)
				return
			}

			rawUserID, _ := claims["user_id"].(string)
			userID, err := uuid.Parse(rawUserID)
			if err != nil {
				logger.Error("Missing or malformed user_id in token claims")
				RespondWithRedirect(w, http.StatusUnauthorized, "invalid token claims", session.EntryPoint)
				return
			}

			role, ok := claims["role"].(string)
			if !ok {
				logger.Error("Missing role in token claims")
				RespondWithRedirect(w, http.StatusUnauthorized, "invalid token claims", session.EntryPoint)
				return
			}

			identity := domain.Identity{UserID: userID, Role: role}

			logger.Debug("User authenticated",
				zap.String("user_id", userID.String()),
				zap.String("role", role),
			)

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// APITokenMiddleware guards the integration API with a shared secret.
// An empty secret rejects every request.
func APITokenMiddleware(secret string, logger *zap.Logger) func(http.Handler) http.Handler {
	expected := []byte(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok || len(expected) == 0 || subtle.ConstantTimeCompare([]byte(token), expected) != 1 {
				logger.Warn("Rejected integration request",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				RespondWithError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
