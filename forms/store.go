package forms

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// FormStore manages form persistence and retrieval
type FormStore interface {
	// Add a new form
	Add(form *Form) error

	// Get a form by ID
	Get(id string) (*Form, error)

	// ListByOwner returns a user's forms, newest first
	ListByOwner(ownerID string) ([]*Form, error)

	// Update an existing form
	Update(form *Form) error

	// Delete a form
	Delete(id string) error
}

// InMemoryFormStore implements FormStore using an in-memory map
type InMemoryFormStore struct {
	forms map[string]*Form
	mu    sync.RWMutex
}

// NewInMemoryFormStore creates a new in-memory form store
func NewInMemoryFormStore() *InMemoryFormStore {
	return &InMemoryFormStore{
		forms: make(map[string]*Form),
	}
}

// Add adds a new form to the store and stamps its timestamps
func (s *InMemoryFormStore) Add(form *Form) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.forms[form.ID]; exists {
		return fmt.Errorf("form with ID %s already exists", form.ID)
	}

	now := time.Now()
	form.CreatedAt = now
	form.UpdatedAt = now
	s.forms[form.ID] = form
	return nil
}

// Get retrieves a form by ID
func (s *InMemoryFormStore) Get(id string) (*Form, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	form, exists := s.forms[id]
	if !exists {
		return nil, fmt.Errorf("form %s: %w", id, ErrNotFound)
	}
	return form, nil
}

// ListByOwner returns the forms owned by ownerID, newest first
func (s *InMemoryFormStore) ListByOwner(ownerID string) ([]*Form, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var owned []*Form
	for _, form := range s.forms {
		if form.OwnerID == ownerID {
			owned = append(owned, form)
		}
	}

	sort.Slice(owned, func(i, j int) bool {
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})
	return owned, nil
}

// Update replaces an existing form, preserving CreatedAt
func (s *InMemoryFormStore) Update(form *Form) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.forms[form.ID]
	if !exists {
		return fmt.Errorf("form %s: %w", form.ID, ErrNotFound)
	}

	form.CreatedAt = existing.CreatedAt
	form.UpdatedAt = time.Now()
	s.forms[form.ID] = form
	return nil
}

// Delete removes a form from the store
func (s *InMemoryFormStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.forms[id]; !exists {
		return fmt.Errorf("form %s: %w", id, ErrNotFound)
	}

	delete(s.forms, id)
	return nil
}
