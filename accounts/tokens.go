package accounts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/liamcoop/formsync/airtable"
	"github.com/liamcoop/formsync/internal/logger"
	"github.com/liamcoop/formsync/metrics"
	"golang.org/x/oauth2"
)

// ErrReauthRequired is returned when a token cannot be refreshed and the
// user has to sign in again
var ErrReauthRequired = errors.New("airtable authorization expired, sign in again")

// Refresher exchanges a refresh token for a new token
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// TokenManager hands out valid Airtable access tokens, refreshing and
// persisting them when they are about to expire
type TokenManager struct {
	store     UserStore
	refresher Refresher
	metrics   *metrics.Metrics
	now       func() time.Time

	// serialises refreshes per user so concurrent requests refresh once
	locks sync.Map
}

// NewTokenManager creates a token manager
func NewTokenManager(store UserStore, refresher Refresher, m *metrics.Metrics) *TokenManager {
	return &TokenManager{
		store:     store,
		refresher: refresher,
		metrics:   m,
		now:       time.Now,
	}
}

// EnsureValid returns the user with an access token that is good for at
// least airtable.ExpirySkew
func (tm *TokenManager) EnsureValid(ctx context.Context, userID string) (*User, error) {
	user, err := tm.store.Get(userID)
	if err != nil {
		return nil, err
	}
	if !airtable.TokenExpired(user.TokenExpiresAt, tm.now()) {
		return user, nil
	}

	mu := tm.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	// Another request may have refreshed while we waited
	user, err = tm.store.Get(userID)
	if err != nil {
		return nil, err
	}
	if !airtable.TokenExpired(user.TokenExpiresAt, tm.now()) {
		return user, nil
	}

	if err := tm.refresh(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Refresh refreshes a user's token when it still expires before deadline.
// The user is re-read under the per-user lock, so a token rotated by a
// concurrent request is not refreshed twice. The caller's copy is replaced
// with the stored user; the result reports whether a refresh happened.
func (tm *TokenManager) Refresh(ctx context.Context, user *User, deadline time.Time) (bool, error) {
	mu := tm.lockFor(user.ID)
	mu.Lock()
	defer mu.Unlock()

	current, err := tm.store.Get(user.ID)
	if err != nil {
		return false, err
	}
	if !current.TokenExpiresAt.IsZero() && !current.TokenExpiresAt.Before(deadline) {
		*user = *current
		return false, nil
	}

	err = tm.refresh(ctx, current)
	*user = *current
	if err != nil {
		return false, err
	}
	return true, nil
}

func (tm *TokenManager) refresh(ctx context.Context, user *User) error {
	if user.RefreshToken == "" {
		tm.metrics.RecordTokenRefresh(false)
		return fmt.Errorf("user %s has no refresh token: %w", user.ID, ErrReauthRequired)
	}

	token, err := tm.refresher.Refresh(ctx, user.RefreshToken)
	if err != nil {
		tm.metrics.RecordTokenRefresh(false)
		logger.Warn("token refresh failed", "user_id", user.ID, "error", err)
		return fmt.Errorf("%w: %v", ErrReauthRequired, err)
	}

	user.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		user.RefreshToken = token.RefreshToken
	}
	user.TokenExpiresAt = token.Expiry

	if err := tm.store.Update(user); err != nil {
		tm.metrics.RecordTokenRefresh(false)
		return fmt.Errorf("failed to save refreshed token: %w", err)
	}

	tm.metrics.RecordTokenRefresh(true)
	logger.Info("token refreshed", "user_id", user.ID, "expires_at", user.TokenExpiresAt)
	return nil
}

func (tm *TokenManager) lockFor(userID string) *sync.Mutex {
	mu, _ := tm.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
