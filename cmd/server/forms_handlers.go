package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/liamcoop/formsync/forms"
	"github.com/liamcoop/formsync/rules"
)

const maxFormBody = 1 << 20

// List the session user's forms
func (s *Server) handleListForms(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	list, err := s.forms.ListForOwner(user.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to fetch forms", err)
		return
	}

	summaries := make([]forms.Summary, 0, len(list))
	for _, f := range list {
		summaries = append(summaries, f.Summarize())
	}

	respondJSON(w, http.StatusOK, FormsListResponse{Forms: summaries})
}

// Create form handler
func (s *Server) handleCreateForm(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxFormBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := forms.ValidatePayload(raw); err != nil {
		respondError(w, http.StatusBadRequest, "invalid form definition", err)
		return
	}

	var form forms.Form
	if err := json.Unmarshal(raw, &form); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	created, err := s.forms.Create(currentUser(r).ID, &form)
	if err != nil {
		respondFormError(w, "failed to create form", err)
		return
	}

	respondJSON(w, http.StatusCreated, created)
}

// Get form handler. Public: respondents load the form to fill it in.
func (s *Server) handleGetForm(w http.ResponseWriter, r *http.Request) {
	form, err := s.forms.Get(chi.URLParam(r, "formId"))
	if err != nil {
		respondFormError(w, "failed to fetch form", err)
		return
	}

	respondJSON(w, http.StatusOK, form)
}

// Update form handler
func (s *Server) handleUpdateForm(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxFormBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := forms.ValidatePayload(raw); err != nil {
		respondError(w, http.StatusBadRequest, "invalid form definition", err)
		return
	}

	var patch forms.Patch
	if err := json.Unmarshal(raw, &patch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	updated, err := s.forms.Update(currentUser(r).ID, chi.URLParam(r, "formId"), patch)
	if err != nil {
		respondFormError(w, "failed to update form", err)
		return
	}

	respondJSON(w, http.StatusOK, updated)
}

// Delete form handler
func (s *Server) handleDeleteForm(w http.ResponseWriter, r *http.Request) {
	if err := s.forms.Delete(currentUser(r).ID, chi.URLParam(r, "formId")); err != nil {
		respondFormError(w, "failed to delete form", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Visibility handler: which questions show for the answers given so far
func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var req VisibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondDecodeError(w, err)
		return
	}

	visibility, err := s.forms.Visibility(chi.URLParam(r, "formId"), rules.ParseAnswers(req.Answers))
	if err != nil {
		respondFormError(w, "failed to evaluate form", err)
		return
	}

	respondJSON(w, http.StatusOK, VisibilityResponse{Visibility: visibility})
}

// respondFormError maps forms package errors to status codes
func respondFormError(w http.ResponseWriter, message string, err error) {
	var unsupported *forms.UnsupportedTypesError
	switch {
	case errors.As(err, &unsupported):
		respondJSON(w, http.StatusBadRequest, InvalidTypesResponse{
			Error:        "Unsupported question types found",
			InvalidTypes: unsupported.Types,
		})
	case errors.Is(err, forms.ErrInvalidDefinition):
		respondError(w, http.StatusBadRequest, "invalid form definition", err)
	case errors.Is(err, forms.ErrNotFound):
		respondError(w, http.StatusNotFound, "form not found", nil)
	case errors.Is(err, forms.ErrForbidden):
		respondError(w, http.StatusForbidden, "unauthorized", nil)
	default:
		respondError(w, http.StatusInternalServerError, message, err)
	}
}
