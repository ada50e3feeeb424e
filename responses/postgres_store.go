package responses

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresResponseStore implements ResponseStore backed by PostgreSQL.
// Answers are stored as JSONB.
type PostgresResponseStore struct {
	db *sql.DB
}

// NewPostgresResponseStore creates a new PostgreSQL-backed ResponseStore
func NewPostgresResponseStore(db *sql.DB) *PostgresResponseStore {
	return &PostgresResponseStore{db: db}
}

const responseColumns = `id, form_id, airtable_record_id, answers, deleted_in_airtable, created_at, updated_at`

// Add inserts a new response
func (s *PostgresResponseStore) Add(response *Response) error {
	answers, err := json.Marshal(response.Answers)
	if err != nil {
		return fmt.Errorf("failed to encode answers: %w", err)
	}

	now := time.Now().UTC()
	response.CreatedAt = now
	response.UpdatedAt = now

	_, err = s.db.Exec(`
		INSERT INTO responses (id, form_id, airtable_record_id, answers, deleted_in_airtable, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, response.ID, response.FormID, response.AirtableRecordID, answers,
		response.DeletedInAirtable, response.CreatedAt, response.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert response: %w", err)
	}

	return nil
}

// Get retrieves a response by ID
func (s *PostgresResponseStore) Get(id string) (*Response, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("response %s: %w", id, ErrNotFound)
	}

	row := s.db.QueryRow(`SELECT `+responseColumns+` FROM responses WHERE id = $1`, id)

	response, err := scanResponse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("response %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get response: %w", err)
	}
	return response, nil
}

// ListByForm returns a form's responses, newest first
func (s *PostgresResponseStore) ListByForm(formID string) ([]*Response, error) {
	rows, err := s.db.Query(`
		SELECT `+responseColumns+`
		FROM responses
		WHERE form_id = $1
		ORDER BY created_at DESC
	`, formID)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}
	defer rows.Close()

	var list []*Response
	for rows.Next() {
		response, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}
		list = append(list, response)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating responses: %w", err)
	}
	return list, nil
}

// GetByAirtableRecord finds a response by its Airtable record ID
func (s *PostgresResponseStore) GetByAirtableRecord(recordID string) (*Response, error) {
	row := s.db.QueryRow(`SELECT `+responseColumns+` FROM responses WHERE airtable_record_id = $1`, recordID)

	response, err := scanResponse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", recordID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get response by record: %w", err)
	}
	return response, nil
}

// Update writes a response's answers and deletion flag
func (s *PostgresResponseStore) Update(response *Response) error {
	answers, err := json.Marshal(response.Answers)
	if err != nil {
		return fmt.Errorf("failed to encode answers: %w", err)
	}

	response.UpdatedAt = time.Now().UTC()

	err = s.db.QueryRow(`
		UPDATE responses
		SET answers = $1, deleted_in_airtable = $2, updated_at = $3
		WHERE id = $4
		RETURNING created_at
	`, answers, response.DeletedInAirtable, response.UpdatedAt, response.ID).Scan(&response.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("response %s: %w", response.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update response: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResponse(row rowScanner) (*Response, error) {
	var (
		r       Response
		answers []byte
	)

	if err := row.Scan(&r.ID, &r.FormID, &r.AirtableRecordID, &answers,
		&r.DeletedInAirtable, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(answers, &r.Answers); err != nil {
		return nil, fmt.Errorf("invalid answers for response %s: %w", r.ID, err)
	}
	if r.Answers == nil {
		r.Answers = map[string]any{}
	}
	return &r, nil
}
