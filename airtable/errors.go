package airtable

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from Airtable
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("airtable: %d %s: %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("airtable: %d %s", e.StatusCode, e.Type)
}

// parseAPIError decodes either {"error":{"type","message"}} or {"error":"TYPE"}
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		apiErr.Type = http.StatusText(status)
		return apiErr
	}

	var detail struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(envelope.Error, &detail); err == nil {
		apiErr.Type = detail.Type
		apiErr.Message = detail.Message
		return apiErr
	}

	var code string
	if err := json.Unmarshal(envelope.Error, &code); err == nil {
		apiErr.Type = code
	}
	return apiErr
}

// FormatError turns an error from the client into a message fit for the
// person filling in a form.
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err.Error()
	}

	switch apiErr.Type {
	case "INVALID_REQUEST_BODY":
		return "Invalid data format. Please check your form fields."
	case "INVALID_VALUE_FOR_COLUMN":
		return "Invalid value: " + apiErr.Message
	case "NOT_FOUND":
		return "The requested Airtable resource was not found."
	case "UNAUTHORIZED", "AUTHENTICATION_REQUIRED":
		return "Airtable authentication failed. Please log in again."
	}

	if apiErr.Message != "" {
		return apiErr.Message
	}
	return "Airtable request failed"
}
