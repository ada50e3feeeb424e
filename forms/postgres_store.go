package forms

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresFormStore implements FormStore backed by PostgreSQL.
// Questions are stored as a JSONB document on the form row.
type PostgresFormStore struct {
	db *sql.DB
}

// NewPostgresFormStore creates a new PostgreSQL-backed FormStore
func NewPostgresFormStore(db *sql.DB) *PostgresFormStore {
	return &PostgresFormStore{db: db}
}

const formColumns = `id, owner_id, title, description, airtable_base_id, airtable_table_id,
	airtable_table_name, questions, created_at, updated_at`

// Add inserts a new form into the database
func (s *PostgresFormStore) Add(form *Form) error {
	questions, err := json.Marshal(form.Questions)
	if err != nil {
		return fmt.Errorf("failed to encode questions: %w", err)
	}

	now := time.Now().UTC()
	form.CreatedAt = now
	form.UpdatedAt = now

	_, err = s.db.Exec(`
		INSERT INTO forms (id, owner_id, title, description, airtable_base_id, airtable_table_id,
			airtable_table_name, questions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, form.ID, form.OwnerID, form.Title, form.Description, form.AirtableBaseID,
		form.AirtableTableID, form.AirtableTableName, questions, form.CreatedAt, form.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert form: %w", err)
	}

	return nil
}

// Get retrieves a form by ID
func (s *PostgresFormStore) Get(id string) (*Form, error) {
	// ids are UUID columns; anything else cannot match
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("form %s: %w", id, ErrNotFound)
	}

	row := s.db.QueryRow(`SELECT `+formColumns+` FROM forms WHERE id = $1`, id)

	form, err := scanForm(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("form %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get form: %w", err)
	}

	return form, nil
}

// ListByOwner returns all forms for a user, newest first
func (s *PostgresFormStore) ListByOwner(ownerID string) ([]*Form, error) {
	rows, err := s.db.Query(`
		SELECT `+formColumns+`
		FROM forms
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list forms: %w", err)
	}
	defer rows.Close()

	var formsList []*Form
	for rows.Next() {
		form, err := scanForm(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan form: %w", err)
		}
		formsList = append(formsList, form)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating forms: %w", err)
	}

	return formsList, nil
}

// Update modifies an existing form
func (s *PostgresFormStore) Update(form *Form) error {
	questions, err := json.Marshal(form.Questions)
	if err != nil {
		return fmt.Errorf("failed to encode questions: %w", err)
	}

	form.UpdatedAt = time.Now().UTC()

	err = s.db.QueryRow(`
		UPDATE forms
		SET title = $1, description = $2, questions = $3, updated_at = $4
		WHERE id = $5
		RETURNING created_at
	`, form.Title, form.Description, questions, form.UpdatedAt, form.ID).Scan(&form.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("form %s: %w", form.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update form: %w", err)
	}

	return nil
}

// Delete removes a form from the database
func (s *PostgresFormStore) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM forms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete form: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("form %s: %w", id, ErrNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanForm(row rowScanner) (*Form, error) {
	var (
		f           Form
		description sql.NullString
		tableName   sql.NullString
		questions   []byte
	)

	if err := row.Scan(&f.ID, &f.OwnerID, &f.Title, &description, &f.AirtableBaseID,
		&f.AirtableTableID, &tableName, &questions, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}

	f.Description = description.String
	f.AirtableTableName = tableName.String

	if err := json.Unmarshal(questions, &f.Questions); err != nil {
		return nil, fmt.Errorf("invalid questions for form %s: %w", f.ID, err)
	}

	return &f, nil
}
