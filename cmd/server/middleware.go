package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/liamcoop/formsync/accounts"
	"github.com/liamcoop/formsync/internal/logger"
)

type contextKey string

const userContextKey contextKey = "user"

// requestLogger logs one structured line per request
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote", r.RemoteAddr,
			}
			if status >= http.StatusInternalServerError {
				logger.Error("request failed", args...)
			} else {
				logger.Debug("request", args...)
			}
		}()

		next.ServeHTTP(ww, r)
	})
}

// corsAllowList permits credentialed requests from the listed origins only.
// Requests without an Origin header pass through untouched.
func corsAllowList(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o != "" {
			allowed[strings.TrimRight(o, "/")] = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Add("Vary", "Origin")
			if !allowed[origin] {
				if r.Method == http.MethodOptions {
					respondError(w, http.StatusForbidden, "origin not allowed", nil)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requireSession resolves the session cookie to a user or answers 401
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(accounts.SessionCookie)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "not authenticated", nil)
			return
		}

		userID, err := s.sessions.Parse(cookie.Value)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "not authenticated", err)
			return
		}

		user, err := s.users.Get(userID)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "user not found", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey, user)))
	})
}

// requireAirtableToken makes sure the session user holds a usable Airtable
// token, refreshing it first when needed. It must run after requireSession.
func (s *Server) requireAirtableToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		if user == nil {
			respondError(w, http.StatusUnauthorized, "not authenticated", nil)
			return
		}

		fresh, err := s.tokens.EnsureValid(r.Context(), user.ID)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "token validation failed", err)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey, fresh)))
	})
}

func currentUser(r *http.Request) *accounts.User {
	user, _ := r.Context().Value(userContextKey).(*accounts.User)
	return user
}
