package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// corsHeaders lists what the staff app sends, including the SSE reconnect header
var corsHeaders = []string{"Accept", "Authorization", "Content-Type", "Cache-Control", "Last-Event-ID"}

// CORSMiddleware allows the staff app origins; development accepts any origin
func CORSMiddleware(allowedOrigins []string, isDevelopment bool) func(http.Handler) http.Handler {
	options := cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   corsHeaders,
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if isDevelopment {
		options.AllowedOrigins = nil
		options.AllowOriginFunc = func(r *http.Request, origin string) bool { return true }
	}

	return cors.Handler(options)
}

// DefaultMiddlewareStack is mounted before everything else.
// Only JSON is compressed so the product stream flushes per event.
func DefaultMiddlewareStack() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.RealIP,
		middleware.Compress(5, "application/json"),
	}
}
