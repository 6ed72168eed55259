package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/rizaleow/ovpn-manager/pkg/errors"
	applogger "github.com/rizaleow/ovpn-manager/pkg/logger"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const loggerKey contextKey = "logger"

// Middleware wraps an http.Handler and returns a new http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain chains multiple middlewares together.
func Chain(middlewares ...Middleware) Middleware {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// RequestID generates a unique request ID and injects a request-scoped
// logger into the context.
func RequestID(baseLogger *applogger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			w.Header().Set("X-Request-ID", requestID)

			reqLogger := baseLogger.With("request_id", requestID)

			ctx := applogger.WithRequestID(r.Context(), requestID)
			ctx = context.WithValue(ctx, loggerKey, reqLogger)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetLogger retrieves the request-scoped logger from the context.
func GetLogger(ctx context.Context) *applogger.Logger {
	if logger, ok := ctx.Value(loggerKey).(*applogger.Logger); ok {
		return logger
	}
	return applogger.NewDevelopment("fallback")
}

// Logging logs each request with its status and duration.
func Logging() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			logger := GetLogger(r.Context())

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			logger.HTTPRequest(
				r.Context(),
				r.Method,
				r.URL.Path,
				wrapped.statusCode,
				time.Since(start),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.ResponseWriter.WriteHeader(code)
		rw.written = true
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Recovery recovers from panics and returns a 500 error.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := GetLogger(r.Context())

			defer func() {
				if rec := recover(); rec != nil {
					err := apperrors.NewServiceError("panic", "panic recovered",
						fmt.Errorf("%v", rec))
					logger.ErrorCtx(r.Context(), "panic recovered", err,
						"path", r.URL.Path, "method", r.Method)
					WriteErrorResponse(w, r, err)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
