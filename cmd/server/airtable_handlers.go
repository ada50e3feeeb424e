package main

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/liamcoop/formsync/airtable"
	"github.com/liamcoop/formsync/internal/logger"
)

const maxWebhookBody = 1 << 20

// List bases handler
func (s *Server) handleListBases(w http.ResponseWriter, r *http.Request) {
	bases, err := s.airtable.ListBases(r.Context(), currentUser(r).AccessToken)
	if err != nil {
		respondAirtableError(w, "failed to fetch Airtable bases", err)
		return
	}

	if bases == nil {
		bases = []airtable.Base{}
	}
	respondJSON(w, http.StatusOK, BasesResponse{Bases: bases})
}

// List tables handler
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.airtable.ListTables(r.Context(), currentUser(r).AccessToken, chi.URLParam(r, "baseId"))
	if err != nil {
		respondAirtableError(w, "failed to fetch Airtable tables", err)
		return
	}

	if tables == nil {
		tables = []airtable.Table{}
	}
	respondJSON(w, http.StatusOK, TablesResponse{Tables: tables})
}

// List fields handler: only the field types a question can use
func (s *Server) handleListFields(w http.ResponseWriter, r *http.Request) {
	fields, err := s.airtable.ListSupportedFields(r.Context(), currentUser(r).AccessToken,
		chi.URLParam(r, "baseId"), chi.URLParam(r, "tableId"))
	if err != nil {
		respondAirtableError(w, "failed to fetch Airtable fields", err)
		return
	}

	out := make([]FieldResponse, 0, len(fields))
	for _, f := range fields {
		out = append(out, newFieldResponse(f))
	}
	respondJSON(w, http.StatusOK, FieldsResponse{Fields: out})
}

func respondAirtableError(w http.ResponseWriter, message string, err error) {
	if errors.Is(err, airtable.ErrTableNotFound) {
		respondError(w, http.StatusNotFound, "table not found", nil)
		return
	}

	var apiErr *airtable.APIError
	if errors.As(err, &apiErr) {
		status := http.StatusBadGateway
		switch apiErr.StatusCode {
		case http.StatusUnauthorized:
			status = http.StatusUnauthorized
		case http.StatusForbidden, http.StatusNotFound:
			status = apiErr.StatusCode
		}
		respondJSON(w, status, map[string]string{
			"error":   message,
			"details": airtable.FormatError(err),
		})
		return
	}

	respondError(w, http.StatusBadGateway, message, err)
}

// Airtable webhook handler
func (s *Server) handleAirtableWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if s.config.WebhookSecret != "" {
		err := airtable.VerifySignature(s.config.WebhookSecret,
			r.Header.Get(airtable.TimestampHeader), body,
			r.Header.Get(airtable.SignatureHeader), time.Now())
		if err != nil {
			logger.Warn("webhook rejected", "error", err, "remote", r.RemoteAddr)
			respondError(w, http.StatusUnauthorized, err.Error(), nil)
			return
		}
	}

	var notification airtable.Notification
	if err := decodeStrict(body, &notification); err != nil {
		respondError(w, http.StatusBadRequest, "invalid webhook payload", err)
		return
	}

	result, err := s.responses.ApplyWebhook(r.Context(), &notification)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to process webhook", err)
		return
	}

	respondJSON(w, http.StatusOK, WebhookAckResponse{Received: true, Result: result})
}
