package responses

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/liamcoop/formsync/accounts"
	"github.com/liamcoop/formsync/airtable"
	"github.com/liamcoop/formsync/forms"
	"github.com/liamcoop/formsync/internal/logger"
	"github.com/liamcoop/formsync/metrics"
	"github.com/liamcoop/formsync/rules"
)

// FormSource loads form definitions
type FormSource interface {
	Get(id string) (*forms.Form, error)
}

// TokenSource returns a user holding a usable Airtable access token
type TokenSource interface {
	EnsureValid(ctx context.Context, userID string) (*accounts.User, error)
}

// RecordCreator writes a row to an Airtable table
type RecordCreator interface {
	CreateRecord(ctx context.Context, token, baseID, table string, fields map[string]any) (*airtable.Record, error)
}

// Service accepts submissions and keeps stored responses in step with Airtable
type Service struct {
	forms   FormSource
	store   ResponseStore
	tokens  TokenSource
	records RecordCreator
	metrics *metrics.Metrics
}

// NewService wires a response service
func NewService(formSource FormSource, store ResponseStore, tokens TokenSource, records RecordCreator, m *metrics.Metrics) *Service {
	return &Service{
		forms:   formSource,
		store:   store,
		tokens:  tokens,
		records: records,
		metrics: m,
	}
}

// Submit validates answers against a form, writes the visible answers to the
// form's Airtable table as the form owner, and stores the response.
// A rejected submission returns *ValidationError.
func (s *Service) Submit(ctx context.Context, formID string, raw map[string]any) (*Response, error) {
	form, err := s.forms.Get(formID)
	if err != nil {
		return nil, err
	}

	answers := rules.ParseAnswers(raw)
	result := form.Validate(answers)
	if !result.IsValid {
		s.metrics.RecordSubmission("invalid")
		s.metrics.RecordValidationErrors(form.ID, len(result.Errors))
		logger.Debug("submission rejected", "form_id", form.ID, "errors", len(result.Errors))
		return nil, &ValidationError{Result: result}
	}

	owner, err := s.tokens.EnsureValid(ctx, form.OwnerID)
	if err != nil {
		s.metrics.RecordSubmission("error")
		return nil, fmt.Errorf("failed to get airtable token for form owner: %w", err)
	}

	record, err := s.records.CreateRecord(ctx, owner.AccessToken, form.AirtableBaseID, form.AirtableTableID, form.RecordFields(answers))
	if err != nil {
		s.metrics.RecordSubmission("airtable_error")
		logger.Error("failed to save response to airtable", "form_id", form.ID, "error", err)
		return nil, fmt.Errorf("failed to save response to airtable: %w", err)
	}

	stored := make(map[string]any)
	for key, answer := range rules.VisibleAnswers(form.RuleQuestions(), answers) {
		stored[key] = answer.Value()
	}

	response := &Response{
		ID:               uuid.NewString(),
		FormID:           form.ID,
		AirtableRecordID: record.ID,
		Answers:          stored,
	}
	if err := s.store.Add(response); err != nil {
		s.metrics.RecordSubmission("error")
		logger.Error("airtable record created but response not saved",
			"form_id", form.ID, "record_id", record.ID, "error", err)
		return nil, fmt.Errorf("failed to save response: %w", err)
	}

	s.metrics.RecordSubmission("accepted")
	logger.Info("response submitted", "form_id", form.ID, "response_id", response.ID, "record_id", record.ID)
	return response, nil
}

// ListForForm returns a form's responses to its owner
func (s *Service) ListForForm(ownerID, formID string) ([]*Response, error) {
	form, err := s.forms.Get(formID)
	if err != nil {
		return nil, err
	}
	if form.OwnerID != ownerID {
		return nil, forms.ErrForbidden
	}
	return s.store.ListByForm(formID)
}

// Get returns one response to the owner of its form
func (s *Service) Get(ownerID, id string) (*Response, error) {
	response, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}

	form, err := s.forms.Get(response.FormID)
	if err != nil {
		return nil, err
	}
	if form.OwnerID != ownerID {
		return nil, forms.ErrForbidden
	}
	return response, nil
}

// WebhookResult counts what a notification did
type WebhookResult struct {
	Created   int `json:"created"`
	Changed   int `json:"changed"`
	Destroyed int `json:"destroyed"`
	Unmatched int `json:"unmatched"`
	Failed    int `json:"failed"`
}

// ApplyWebhook folds Airtable record changes back into stored responses.
// Changed cells are merged into answers under their question key, or the raw
// field ID when no question writes to that field. Destroyed records mark the
// response deleted. Created records are only counted.
func (s *Service) ApplyWebhook(ctx context.Context, n *airtable.Notification) (WebhookResult, error) {
	var result WebhookResult
	if !n.HasRecordChanges() {
		return result, nil
	}

	for tableID, changes := range n.ChangedTablesByID {
		if len(changes.CreatedRecordsByID) > 0 {
			result.Created += len(changes.CreatedRecordsByID)
			logger.Debug("airtable records created", "table_id", tableID, "count", len(changes.CreatedRecordsByID))
		}

		for recordID, change := range changes.ChangedRecordsByID {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			s.tally(&result, &result.Changed, s.applyChange(recordID, change), recordID)
		}

		for _, recordID := range changes.DestroyedRecordIDs {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			s.tally(&result, &result.Destroyed, s.markDeleted(recordID), recordID)
		}
	}

	s.metrics.RecordWebhookEvents("created", result.Created)
	s.metrics.RecordWebhookEvents("changed", result.Changed)
	s.metrics.RecordWebhookEvents("destroyed", result.Destroyed)
	return result, nil
}

func (s *Service) tally(result *WebhookResult, counter *int, err error, recordID string) {
	switch {
	case err == nil:
		*counter++
	case errors.Is(err, ErrNotFound):
		result.Unmatched++
	default:
		result.Failed++
		logger.Error("failed to apply airtable change", "record_id", recordID, "error", err)
	}
}

func (s *Service) applyChange(recordID string, change airtable.RecordChange) error {
	response, err := s.store.GetByAirtableRecord(recordID)
	if err != nil {
		return err
	}

	form, err := s.forms.Get(response.FormID)
	if err != nil && !errors.Is(err, forms.ErrNotFound) {
		return err
	}

	if response.Answers == nil {
		response.Answers = make(map[string]any)
	}
	for fieldID, value := range change.Current.CellValuesByFieldID {
		key := fieldID
		if form != nil {
			if q, ok := form.QuestionForField(fieldID); ok {
				key = q.Key
			}
		}
		response.Answers[key] = value
	}

	if err := s.store.Update(response); err != nil {
		return err
	}
	logger.Info("response updated from airtable", "response_id", response.ID, "record_id", recordID)
	return nil
}

func (s *Service) markDeleted(recordID string) error {
	response, err := s.store.GetByAirtableRecord(recordID)
	if err != nil {
		return err
	}

	response.DeletedInAirtable = true
	if err := s.store.Update(response); err != nil {
		return err
	}
	logger.Info("response marked deleted in airtable", "response_id", response.ID, "record_id", recordID)
	return nil
}
