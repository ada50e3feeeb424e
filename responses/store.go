package responses

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// ResponseStore manages response persistence
type ResponseStore interface {
	// Add a new response
	Add(response *Response) error

	// Get a response by ID
	Get(id string) (*Response, error)

	// ListByForm returns a form's responses, newest first
	ListByForm(formID string) ([]*Response, error)

	// GetByAirtableRecord finds the response that created a record
	GetByAirtableRecord(recordID string) (*Response, error)

	// Update an existing response
	Update(response *Response) error
}

// InMemoryResponseStore implements ResponseStore using an in-memory map
type InMemoryResponseStore struct {
	responses map[string]*Response
	byRecord  map[string]string
	mu        sync.RWMutex
}

// NewInMemoryResponseStore creates a new in-memory response store
func NewInMemoryResponseStore() *InMemoryResponseStore {
	return &InMemoryResponseStore{
		responses: make(map[string]*Response),
		byRecord:  make(map[string]string),
	}
}

// Add stores a response and stamps its timestamps
func (s *InMemoryResponseStore) Add(response *Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.responses[response.ID]; exists {
		return fmt.Errorf("response with ID %s already exists", response.ID)
	}

	now := time.Now()
	response.CreatedAt = now
	response.UpdatedAt = now
	s.responses[response.ID] = copyResponse(response)
	if response.AirtableRecordID != "" {
		s.byRecord[response.AirtableRecordID] = response.ID
	}
	return nil
}

// Get retrieves a response by ID
func (s *InMemoryResponseStore) Get(id string) (*Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	response, exists := s.responses[id]
	if !exists {
		return nil, fmt.Errorf("response %s: %w", id, ErrNotFound)
	}
	return copyResponse(response), nil
}

// ListByForm returns a form's responses, newest first
func (s *InMemoryResponseStore) ListByForm(formID string) ([]*Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []*Response
	for _, response := range s.responses {
		if response.FormID == formID {
			list = append(list, copyResponse(response))
		}
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

// GetByAirtableRecord finds a response by its Airtable record ID
func (s *InMemoryResponseStore) GetByAirtableRecord(recordID string) (*Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byRecord[recordID]
	if !exists {
		return nil, fmt.Errorf("record %s: %w", recordID, ErrNotFound)
	}
	return copyResponse(s.responses[id]), nil
}

// Update replaces an existing response, preserving CreatedAt
func (s *InMemoryResponseStore) Update(response *Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.responses[response.ID]
	if !exists {
		return fmt.Errorf("response %s: %w", response.ID, ErrNotFound)
	}

	response.CreatedAt = existing.CreatedAt
	response.UpdatedAt = time.Now()
	s.responses[response.ID] = copyResponse(response)
	return nil
}

func copyResponse(r *Response) *Response {
	c := *r
	c.Answers = make(map[string]any, len(r.Answers))
	for k, v := range r.Answers {
		c.Answers[k] = v
	}
	return &c
}
