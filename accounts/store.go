package accounts

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryUserStore implements UserStore using an in-memory map
type InMemoryUserStore struct {
	users map[string]*User
	mu    sync.RWMutex
}

// NewInMemoryUserStore creates a new in-memory user store
func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{
		users: make(map[string]*User),
	}
}

// Upsert inserts or refreshes a user keyed by AirtableUserID
func (s *InMemoryUserStore) Upsert(user *User) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, existing := range s.users {
		if existing.AirtableUserID != user.AirtableUserID {
			continue
		}

		existing.AccessToken = user.AccessToken
		existing.RefreshToken = user.RefreshToken
		existing.TokenExpiresAt = user.TokenExpiresAt
		if user.Email != "" {
			existing.Email = user.Email
		}
		existing.LastLogin = now

		stored := *existing
		return &stored, nil
	}

	created := *user
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if created.Name == "" {
		created.Name = created.Email
	}
	created.CreatedAt = now
	created.LastLogin = now
	s.users[created.ID] = &created

	stored := created
	return &stored, nil
}

// Get retrieves a copy of a user by ID
func (s *InMemoryUserStore) Get(id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[id]
	if !exists {
		return nil, fmt.Errorf("user %s: %w", id, ErrUserNotFound)
	}

	stored := *user
	return &stored, nil
}

// Update replaces an existing user, preserving CreatedAt
func (s *InMemoryUserStore) Update(user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.users[user.ID]
	if !exists {
		return fmt.Errorf("user %s: %w", user.ID, ErrUserNotFound)
	}

	updated := *user
	updated.CreatedAt = existing.CreatedAt
	s.users[user.ID] = &updated
	return nil
}

// ListExpiringBefore returns users whose tokens expire before t
func (s *InMemoryUserStore) ListExpiringBefore(t time.Time) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expiring []*User
	for _, user := range s.users {
		if user.RefreshToken == "" || !user.TokenExpiresAt.Before(t) {
			continue
		}
		stored := *user
		expiring = append(expiring, &stored)
	}
	return expiring, nil
}
