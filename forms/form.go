package forms

import (
	"errors"
	"time"

	"github.com/liamcoop/formsync/rules"
)

var (
	// ErrNotFound is returned when a form does not exist
	ErrNotFound = errors.New("form not found")

	// ErrForbidden is returned when a user mutates a form they do not own
	ErrForbidden = errors.New("form belongs to another user")
)

// Question is a rules.Question bound to the Airtable field it writes to
type Question struct {
	rules.Question
	AirtableFieldID string `json:"airtableFieldId"`
}

// Form is a generated form connected to one Airtable table
type Form struct {
	ID                string     `json:"id"`
	OwnerID           string     `json:"owner"`
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	AirtableBaseID    string     `json:"airtableBaseId"`
	AirtableTableID   string     `json:"airtableTableId"`
	AirtableTableName string     `json:"airtableTableName,omitempty"`
	Questions         []Question `json:"questions"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// RuleQuestions returns the questions as the rule engine sees them
func (f *Form) RuleQuestions() []rules.Question {
	out := make([]rules.Question, len(f.Questions))
	for i, q := range f.Questions {
		out[i] = q.Question
	}
	return out
}

// Question looks up a question by key
func (f *Form) Question(key string) (Question, bool) {
	for _, q := range f.Questions {
		if q.Key == key {
			return q, true
		}
	}
	return Question{}, false
}

// QuestionForField looks up the question that writes to an Airtable field
func (f *Form) QuestionForField(fieldID string) (Question, bool) {
	for _, q := range f.Questions {
		if q.AirtableFieldID == fieldID {
			return q, true
		}
	}
	return Question{}, false
}

// Validate runs the submission validator over the form's questions
func (f *Form) Validate(answers rules.AnswerSet) rules.ValidationResult {
	return rules.ValidateFormSubmission(f.RuleQuestions(), answers)
}

// RecordFields returns the answers to forward to Airtable: visible, non-empty
// answers keyed by Airtable field ID.
func (f *Form) RecordFields(answers rules.AnswerSet) map[string]any {
	visible := rules.VisibleAnswers(f.RuleQuestions(), answers)

	fields := make(map[string]any, len(visible))
	for _, q := range f.Questions {
		answer, ok := visible[q.Key]
		if !ok {
			continue
		}
		fields[q.AirtableFieldID] = answer.Value()
	}
	return fields
}

// Summary is a form without its question definitions, used for listings
type Summary struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description,omitempty"`
	AirtableBaseID    string    `json:"airtableBaseId"`
	AirtableTableID   string    `json:"airtableTableId"`
	AirtableTableName string    `json:"airtableTableName,omitempty"`
	QuestionCount     int       `json:"questionCount"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Summarize drops the question definitions from a form
func (f *Form) Summarize() Summary {
	return Summary{
		ID:                f.ID,
		Title:             f.Title,
		Description:       f.Description,
		AirtableBaseID:    f.AirtableBaseID,
		AirtableTableID:   f.AirtableTableID,
		AirtableTableName: f.AirtableTableName,
		QuestionCount:     len(f.Questions),
		CreatedAt:         f.CreatedAt,
		UpdatedAt:         f.UpdatedAt,
	}
}
