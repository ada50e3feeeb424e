package forms

import (
	"fmt"
	"html"
	"strings"

	"github.com/google/uuid"
	"github.com/liamcoop/formsync/internal/logger"
	"github.com/liamcoop/formsync/rules"
	"github.com/microcosm-cc/bluemonday"
)

// Patch holds the fields of an update. Nil fields are left unchanged.
type Patch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Questions   []Question `json:"questions,omitempty"`
}

// Manager owns form definitions: it validates and sanitises them on write,
// enforces ownership, and serves reads through a FormCache.
type Manager struct {
	store  FormStore
	cache  FormCache
	policy *bluemonday.Policy
}

// NewManager creates a new manager over store, caching with the given config
func NewManager(store FormStore, config CacheConfig) *Manager {
	return &Manager{
		store:  store,
		cache:  NewInMemoryFormCache(config),
		policy: bluemonday.StrictPolicy(),
	}
}

// Create validates and stores a new form owned by ownerID
func (m *Manager) Create(ownerID string, form *Form) (*Form, error) {
	form.ID = uuid.NewString()
	form.OwnerID = ownerID
	m.normalize(form)

	if err := ValidateDefinition(form); err != nil {
		return nil, err
	}

	if err := m.store.Add(form); err != nil {
		return nil, fmt.Errorf("failed to save form: %w", err)
	}

	m.cache.Set(form)
	logger.Info("form created", "form_id", form.ID, "owner", ownerID, "questions", len(form.Questions))
	return form, nil
}

// Get retrieves a form, from the cache when possible
func (m *Manager) Get(id string) (*Form, error) {
	if form := m.cache.Get(id); form != nil {
		return form, nil
	}

	form, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}

	m.cache.Set(form)
	return form, nil
}

// ListForOwner returns a user's forms, newest first
func (m *Manager) ListForOwner(ownerID string) ([]*Form, error) {
	return m.store.ListByOwner(ownerID)
}

// Update applies patch to a form owned by ownerID
func (m *Manager) Update(ownerID, id string, patch Patch) (*Form, error) {
	form, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if form.OwnerID != ownerID {
		return nil, ErrForbidden
	}

	updated := *form
	if patch.Title != nil && *patch.Title != "" {
		updated.Title = *patch.Title
	}
	if patch.Description != nil {
		updated.Description = *patch.Description
	}
	if patch.Questions != nil {
		updated.Questions = patch.Questions
	}
	m.normalize(&updated)

	if err := ValidateDefinition(&updated); err != nil {
		return nil, err
	}

	if err := m.store.Update(&updated); err != nil {
		return nil, fmt.Errorf("failed to update form: %w", err)
	}

	m.cache.Invalidate(id)
	logger.Info("form updated", "form_id", id, "questions", len(updated.Questions))
	return &updated, nil
}

// Delete removes a form owned by ownerID
func (m *Manager) Delete(ownerID, id string) error {
	form, err := m.store.Get(id)
	if err != nil {
		return err
	}
	if form.OwnerID != ownerID {
		return ErrForbidden
	}

	if err := m.store.Delete(id); err != nil {
		return err
	}

	m.cache.Invalidate(id)
	logger.Info("form deleted", "form_id", id)
	return nil
}

// Validate loads a form and validates answers against it
func (m *Manager) Validate(id string, answers rules.AnswerSet) (*Form, rules.ValidationResult, error) {
	form, err := m.Get(id)
	if err != nil {
		return nil, rules.ValidationResult{}, err
	}
	return form, form.Validate(answers), nil
}

// Visibility reports which questions of a form are shown for a partial answer set
func (m *Manager) Visibility(id string, answers rules.AnswerSet) (map[string]bool, error) {
	form, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return rules.Visibility(form.RuleQuestions(), answers), nil
}

// normalize strips markup from free text and derives missing question keys
func (m *Manager) normalize(form *Form) {
	form.Title = m.plainText(form.Title)
	form.Description = m.plainText(form.Description)

	questions := make([]Question, len(form.Questions))
	for i, q := range form.Questions {
		q.Label = m.plainText(q.Label)
		if q.Key == "" {
			q.Key = QuestionKey(q.Label)
		}
		questions[i] = q
	}
	form.Questions = questions
}

func (m *Manager) plainText(s string) string {
	return strings.TrimSpace(html.UnescapeString(m.policy.Sanitize(s)))
}
