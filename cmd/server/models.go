package main

import (
	"github.com/liamcoop/formsync/airtable"
	"github.com/liamcoop/formsync/forms"
	"github.com/liamcoop/formsync/responses"
)

// API Request and Response Models with Swagger annotations

// FormsListResponse represents the response for listing a user's forms
type FormsListResponse struct {
	Forms []forms.Summary `json:"forms"`
} // @name FormsListResponse

// InvalidTypesResponse is returned when a form uses unsupported question types
type InvalidTypesResponse struct {
	Error        string   `json:"error" example:"Unsupported question types found"`
	InvalidTypes []string `json:"invalidTypes" example:"number,checkbox"`
} // @name InvalidTypesResponse

// VisibilityRequest carries the answers given so far
type VisibilityRequest struct {
	Answers map[string]any `json:"answers"`
} // @name VisibilityRequest

// VisibilityResponse maps question keys to whether they are shown
type VisibilityResponse struct {
	Visibility map[string]bool `json:"visibility"`
} // @name VisibilityResponse

// SubmitResponseRequest represents the request body for submitting a form
type SubmitResponseRequest struct {
	FormID  string         `json:"formId" example:"123e4567-e89b-12d3-a456-426614174000" binding:"required"`
	Answers map[string]any `json:"answers" binding:"required"`
} // @name SubmitResponseRequest

// SubmitResponseResponse is returned for an accepted submission
type SubmitResponseResponse struct {
	Message          string `json:"message" example:"Response submitted successfully"`
	ResponseID       string `json:"responseId" example:"123e4567-e89b-12d3-a456-426614174000"`
	AirtableRecordID string `json:"airtableRecordId" example:"recXXXXXXXXXXXXXX"`
} // @name SubmitResponseResponse

// ValidationFailedResponse lists the per-question errors of a rejected submission
type ValidationFailedResponse struct {
	Error  string            `json:"error" example:"Validation failed"`
	Errors map[string]string `json:"errors"`
} // @name ValidationFailedResponse

// ResponsesListResponse represents the response for listing a form's responses
type ResponsesListResponse struct {
	Responses []*responses.Response `json:"responses"`
} // @name ResponsesListResponse

// BasesResponse lists Airtable bases
type BasesResponse struct {
	Bases []airtable.Base `json:"bases"`
} // @name BasesResponse

// TablesResponse lists the tables of a base
type TablesResponse struct {
	Tables []airtable.Table `json:"tables"`
} // @name TablesResponse

// FieldResponse is an Airtable field ready to become a question
type FieldResponse struct {
	ID          string   `json:"id" example:"fldXXXXXXXXXXXXXX"`
	Name        string   `json:"name" example:"Full Name"`
	Type        string   `json:"type" example:"singleLineText"`
	Description string   `json:"description,omitempty"`
	QuestionKey string   `json:"questionKey" example:"full_name"`
	Options     []string `json:"options,omitempty"`
} // @name FieldResponse

// FieldsResponse lists the supported fields of a table
type FieldsResponse struct {
	Fields []FieldResponse `json:"fields"`
} // @name FieldsResponse

// WebhookAckResponse acknowledges an Airtable notification
type WebhookAckResponse struct {
	Received bool                    `json:"received" example:"true"`
	Result   responses.WebhookResult `json:"result"`
} // @name WebhookAckResponse

// MessageResponse is a plain confirmation
type MessageResponse struct {
	Message string `json:"message" example:"Logged out successfully"`
} // @name MessageResponse

func newFieldResponse(f airtable.Field) FieldResponse {
	return FieldResponse{
		ID:          f.ID,
		Name:        f.Name,
		Type:        f.Type,
		Description: f.Description,
		QuestionKey: forms.QuestionKey(f.Name),
		Options:     f.Choices(),
	}
}
