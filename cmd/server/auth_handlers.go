package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/liamcoop/formsync/accounts"
	"github.com/liamcoop/formsync/internal/logger"
)

// Login handler: redirect to the Airtable consent page
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	state, verifier, err := s.logins.Begin()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to start login", err)
		return
	}

	http.Redirect(w, r, s.oauth.AuthCodeURL(state, verifier), http.StatusFound)
}

// OAuth callback handler. Failures go back to the frontend login page.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	if code == "" || state == "" {
		s.redirectLogin(w, r, "missing_params")
		return
	}

	verifier, ok := s.logins.Complete(state)
	if !ok {
		s.redirectLogin(w, r, "invalid_state")
		return
	}

	token, err := s.oauth.Exchange(r.Context(), code, verifier)
	if err != nil {
		logger.Error("oauth exchange failed", "error", err)
		s.redirectLogin(w, r, "auth_failed")
		return
	}
	if token.AccessToken == "" {
		s.redirectLogin(w, r, "no_token")
		return
	}

	who, err := s.airtable.WhoAmI(r.Context(), token.AccessToken)
	if err != nil {
		logger.Error("airtable whoami failed", "error", err)
		s.redirectLogin(w, r, "auth_failed")
		return
	}

	user, err := s.users.Upsert(&accounts.User{
		AirtableUserID: who.ID,
		Email:          who.Email,
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		TokenExpiresAt: token.Expiry,
	})
	if err != nil {
		logger.Error("failed to save user", "airtable_user_id", who.ID, "error", err)
		s.redirectLogin(w, r, "auth_failed")
		return
	}

	raw, expires, err := s.sessions.Issue(user.ID)
	if err != nil {
		logger.Error("failed to issue session", "user_id", user.ID, "error", err)
		s.redirectLogin(w, r, "auth_failed")
		return
	}

	http.SetCookie(w, s.sessionCookie(raw, expires))
	logger.Info("user signed in", "user_id", user.ID, "airtable_user_id", user.AirtableUserID)
	http.Redirect(w, r, s.config.FrontendURL+"/dashboard", http.StatusFound)
}

// Current user handler
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, currentUser(r))
}

// Logout handler
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, s.sessionCookie("", time.Unix(0, 0)))
	respondJSON(w, http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

func (s *Server) redirectLogin(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r, s.config.FrontendURL+"/login?error="+reason, http.StatusFound)
}

func (s *Server) sessionCookie(value string, expires time.Time) *http.Cookie {
	cookie := &http.Cookie{
		Name:     accounts.SessionCookie,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		cookie.MaxAge = -1
	}
	if s.config.IsProduction() {
		// The frontend is served from another site in production
		cookie.SameSite = http.SameSiteNoneMode
	}
	return cookie
}

var errTrailingData = errors.New("unexpected data after JSON body")

// decodeStrict decodes a single JSON value from data
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errTrailingData
	}
	return nil
}
