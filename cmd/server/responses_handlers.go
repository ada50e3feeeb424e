package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/liamcoop/formsync/accounts"
	"github.com/liamcoop/formsync/airtable"
	"github.com/liamcoop/formsync/forms"
	"github.com/liamcoop/formsync/responses"
)

// Public request bodies are capped by middleware.RequestSize on their routes
const maxSubmissionBody = 1 << 20

// Submit response handler. Public: anyone with the form link may submit.
func (s *Server) handleSubmitResponse(w http.ResponseWriter, r *http.Request) {
	var req SubmitResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondDecodeError(w, err)
		return
	}

	if req.FormID == "" || req.Answers == nil {
		respondError(w, http.StatusBadRequest, "missing formId or answers", nil)
		return
	}

	response, err := s.responses.Submit(r.Context(), req.FormID, req.Answers)
	if err != nil {
		var vErr *responses.ValidationError
		var apiErr *airtable.APIError
		switch {
		case errors.As(err, &vErr):
			respondJSON(w, http.StatusBadRequest, ValidationFailedResponse{
				Error:  "Validation failed",
				Errors: vErr.Fields(),
			})
		case errors.Is(err, forms.ErrNotFound):
			respondError(w, http.StatusNotFound, "form not found", nil)
		case errors.As(err, &apiErr):
			respondJSON(w, http.StatusBadGateway, map[string]string{
				"error":   "Failed to save response to Airtable",
				"details": airtable.FormatError(err),
			})
		case errors.Is(err, accounts.ErrReauthRequired):
			respondError(w, http.StatusBadGateway, "form owner must reconnect Airtable", nil)
		default:
			respondError(w, http.StatusInternalServerError, "failed to submit response", err)
		}
		return
	}

	respondJSON(w, http.StatusCreated, SubmitResponseResponse{
		Message:          "Response submitted successfully",
		ResponseID:       response.ID,
		AirtableRecordID: response.AirtableRecordID,
	})
}

func respondDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(w, http.StatusRequestEntityTooLarge, "request body too large", nil)
		return
	}
	respondError(w, http.StatusBadRequest, "invalid request body", err)
}

// List responses handler, for the form owner
func (s *Server) handleListResponses(w http.ResponseWriter, r *http.Request) {
	list, err := s.responses.ListForForm(currentUser(r).ID, chi.URLParam(r, "formId"))
	if err != nil {
		respondResponseError(w, "failed to fetch responses", err)
		return
	}

	if list == nil {
		list = []*responses.Response{}
	}
	respondJSON(w, http.StatusOK, ResponsesListResponse{Responses: list})
}

// Get response handler, for the form owner
func (s *Server) handleGetResponse(w http.ResponseWriter, r *http.Request) {
	response, err := s.responses.Get(currentUser(r).ID, chi.URLParam(r, "responseId"))
	if err != nil {
		respondResponseError(w, "failed to fetch response", err)
		return
	}

	respondJSON(w, http.StatusOK, response)
}

func respondResponseError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, responses.ErrNotFound):
		respondError(w, http.StatusNotFound, "response not found", nil)
	default:
		respondFormError(w, message, err)
	}
}
