package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/access"
	"github.com/hackgods/clinic-booking/internal/logging"
	"github.com/hackgods/clinic-booking/internal/metrics"
	"github.com/hackgods/clinic-booking/internal/tenant"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestIDMiddleware adds a unique request ID to each request context
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// LoggingMiddleware puts a request-scoped logger in the context and logs
// method, route, status, duration, request ID and tenant once the request is done.
func LoggingMiddleware(base zerolog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			logger := base.With().Str("request_id", GetRequestID(r.Context())).Logger()
			ctx := logging.WithContext(r.Context(), logger)

			// Wrap ResponseWriter to capture status code
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r.WithContext(ctx))

			duration := time.Since(start)
			route := routePattern(r)
			m.ObserveHTTP(r.Method, route, wrapped.statusCode, duration)

			ev := logger.Info()
			if wrapped.statusCode >= http.StatusInternalServerError {
				ev = logger.Error()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", route).
				Int("status", wrapped.statusCode).
				Dur("duration", duration).
				Str("tenant", wrapped.tenant).
				Msg("request")
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	tenant     string
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// TenantScope runs the rest of a request inside the named tenant.
type TenantScope func(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error

// MemoryTenantScope only tags the context; in-memory stores partition by it.
func MemoryTenantScope(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	if !tenant.Valid(tenantID) {
		return errUnknownTenant
	}
	return fn(tenant.WithID(ctx, tenantID))
}

// AuthMiddleware resolves the bearer token, when present, into an actor.
// A present but invalid token is rejected; a missing one is left to the gate.
func AuthMiddleware(tokens *access.TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			actor, err := tokens.Verify(raw)
			if err != nil {
				writeError(w, r, err)
				return
			}

			ctx := access.WithActor(r.Context(), actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// TenantMiddleware picks the tenant from the token, else the X-Tenant-ID
// header, else the default, and serves the request inside its scope.
func TenantMiddleware(scope TenantScope, defaultTenant string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := defaultTenant
			if h := r.Header.Get("X-Tenant-ID"); h != "" {
				tenantID = h
			}
			if actor := access.ActorFromContext(r.Context()); actor != nil && actor.TenantID != "" {
				if tenantID != actor.TenantID && r.Header.Get("X-Tenant-ID") != "" {
					writeError(w, r, errTenantMismatch)
					return
				}
				tenantID = actor.TenantID
			}

			if rw, ok := w.(*responseWriter); ok {
				rw.tenant = tenantID
			}

			served := false
			err := scope(r.Context(), tenantID, func(ctx context.Context) error {
				served = true
				logger := logging.FromContext(ctx).With().Str("tenant", tenantID).Logger()
				next.ServeHTTP(w, r.WithContext(logging.WithContext(ctx, logger)))
				return nil
			})
			if err != nil && !served {
				writeError(w, r, err)
			}
		})
	}
}
