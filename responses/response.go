package responses

import (
	"errors"
	"fmt"
	"time"

	"github.com/liamcoop/formsync/rules"
)

// ErrNotFound is returned when a response does not exist
var ErrNotFound = errors.New("response not found")

// Response is one accepted submission and the Airtable record it created
type Response struct {
	ID                string         `json:"id"`
	FormID            string         `json:"formId"`
	AirtableRecordID  string         `json:"airtableRecordId"`
	Answers           map[string]any `json:"answers"`
	DeletedInAirtable bool           `json:"deletedInAirtable"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// ValidationError carries the per-question errors of a rejected submission
type ValidationError struct {
	Result rules.ValidationResult
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("submission rejected: %d invalid answers", len(e.Result.Errors))
}

// Fields returns question key to message
func (e *ValidationError) Fields() map[string]string {
	return e.Result.Errors
}
