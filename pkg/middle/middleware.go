package middle

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	zap "go.uber.org/zap"

	"github.com/yumyai/varenrich/logger"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	loggerKey
)

// responseWriter is a minimal wrapper for http.ResponseWriter that allows the
// written HTTP status code to be captured for logging.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseWriter) Status() int {
	return rw.status
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
	rw.wroteHeader = true
}

func (rw *responseWriter) Write(body []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(body)
}

// Chain wraps h so that the first middleware is the outermost one.
func Chain(h http.Handler, mw ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// RequestIDMiddleware adds a unique request ID to each request and a logger
// carrying it to the request context.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		ctx = context.WithValue(ctx, loggerKey, logger.With(zap.String("request_id", requestID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingMiddleware logs the incoming HTTP request & its duration. Panics
// become a 500.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := wrapResponseWriter(w)
		log := Logger(r.Context())

		defer func() {
			if err := recover(); err != nil {
				wrapped.WriteHeader(http.StatusInternalServerError)
				log.Error("Internal Server Error",
					zap.Any("panic", err),
					zap.String("stack", string(debug.Stack())),
				)
			}

			duration := time.Since(start)
			log.Info("Request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.EscapedPath()),
				zap.Int("status", wrapped.Status()),
				zap.Duration("duration", duration),
				zap.String("client_ip", r.RemoteAddr),
			)

			// Log slow requests
			if duration > 1*time.Second {
				log.Warn("Slow request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.EscapedPath()),
					zap.Duration("duration", duration),
				)
			}
		}()

		next.ServeHTTP(wrapped, r)
	})
}

// RequestID returns the id set by RequestIDMiddleware, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Logger returns the request logger, falling back to the process logger.
func Logger(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	return logger.L()
}

func generateRequestID() string {
	return "req-" + uuid.New().String()
}
