package airtable

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

const (
	SignatureHeader = "X-Airtable-Content-MAC"
	TimestampHeader = "X-Airtable-Content-Timestamp"

	// MaxTimestampSkew bounds how far a notification timestamp may drift from now
	MaxTimestampSkew = 300 * time.Second
)

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrStaleTimestamp   = errors.New("webhook timestamp too old")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// VerifySignature checks mac against the base64 HMAC-SHA256 of
// "<timestamp>.<body>" keyed by secret. timestamp is Unix seconds.
func VerifySignature(secret, timestamp string, body []byte, mac string, now time.Time) error {
	if mac == "" || timestamp == "" {
		return ErrMissingSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrStaleTimestamp
	}
	skew := now.Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > MaxTimestampSkew {
		return ErrStaleTimestamp
	}

	expected := Sign(secret, timestamp, body)
	if !hmac.Equal([]byte(mac), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign computes the MAC VerifySignature expects
func Sign(secret, timestamp string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(timestamp))
	h.Write([]byte("."))
	h.Write(body)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Ref is an object reference inside a notification
type Ref struct {
	ID string `json:"id"`
}

// Notification is the body Airtable posts to the webhook endpoint
type Notification struct {
	Base              *Ref                    `json:"base,omitempty"`
	Webhook           *Ref                    `json:"webhook,omitempty"`
	Timestamp         string                  `json:"timestamp,omitempty"`
	ChangedTablesByID map[string]TableChanges `json:"changedTablesById,omitempty"`
}

// HasRecordChanges reports whether the notification carries table changes
// for a known base and webhook. Anything else is acknowledged and ignored.
func (n *Notification) HasRecordChanges() bool {
	return n.Base != nil && n.Webhook != nil && len(n.ChangedTablesByID) > 0
}

// TableChanges are the record events for one table
type TableChanges struct {
	CreatedRecordsByID map[string]json.RawMessage `json:"createdRecordsById,omitempty"`
	ChangedRecordsByID map[string]RecordChange    `json:"changedRecordsById,omitempty"`
	DestroyedRecordIDs []string                   `json:"destroyedRecordIds,omitempty"`
}

// RecordChange holds the new and old cell values of a changed record
type RecordChange struct {
	Current  CellValues  `json:"current"`
	Previous *CellValues `json:"previous,omitempty"`
}

// CellValues maps field IDs to cell values
type CellValues struct {
	CellValuesByFieldID map[string]any `json:"cellValuesByFieldId"`
}
