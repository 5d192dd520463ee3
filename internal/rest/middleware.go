package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/bookhaven/library/internal/events"
	"github.com/bookhaven/library/internal/metrics"
	"github.com/bookhaven/library/internal/repo"
)

type contextKey string

const contextUserID contextKey = "user_id"

// UserID returns the authenticated user's id from the request context.
func UserID(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(contextUserID).(uint)
	return id, ok
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestIDMiddleware assigns each request an id, echoes it in the
// X-Request-ID header and threads it through as the event correlation id.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)

		ctx := events.WithCorrelationID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs every request once it completes.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", recorder.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", w.Header().Get("X-Request-ID")),
		}
		if recorder.status >= http.StatusInternalServerError {
			s.log.Error("HTTP request failed", fields...)
		} else {
			s.log.Info("HTTP request completed", fields...)
		}
	})
}

// metricsMiddleware records request counts and latency per route
// template so path parameters do not explode label cardinality.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		// Requests outside the route table share one label value so
		// arbitrary paths cannot grow the series set
		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if template, err := current.GetPathTemplate(); err == nil {
				route = template
			}
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(recorder.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// authMiddleware resolves the bearer token and rejects the request
// unless it maps to an existing user.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")

		userID, err := s.tokens.Verify(tokenStr)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		// The token may outlive its user
		user, err := s.users.GetByID(r.Context(), userID)
		if err != nil {
			if errors.Is(err, repo.ErrUserNotFound) {
				writeError(w, http.StatusUnauthorized, "Invalid authentication credentials")
				return
			}
			s.log.Error("Failed to load user for token", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		ctx := context.WithValue(r.Context(), contextUserID, user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
