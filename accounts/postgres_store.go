package accounts

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresUserStore implements UserStore backed by PostgreSQL
type PostgresUserStore struct {
	db *sql.DB
}

// NewPostgresUserStore creates a new PostgreSQL-backed UserStore
func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

const userColumns = `id, airtable_user_id, email, name, access_token, refresh_token,
	token_expires_at, created_at, last_login`

// Upsert inserts a user or refreshes the row with the same airtable_user_id
func (s *PostgresUserStore) Upsert(user *User) (*User, error) {
	now := time.Now().UTC()
	name := user.Name
	if name == "" {
		name = user.Email
	}

	row := s.db.QueryRow(`
		INSERT INTO users (id, airtable_user_id, email, name, access_token, refresh_token,
			token_expires_at, created_at, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (airtable_user_id) DO UPDATE
		SET access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			email = COALESCE(NULLIF(EXCLUDED.email, ''), users.email),
			last_login = EXCLUDED.last_login
		RETURNING `+userColumns,
		uuid.NewString(), user.AirtableUserID, user.Email, name, user.AccessToken,
		user.RefreshToken, nullTime(user.TokenExpiresAt), now)

	stored, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return stored, nil
}

// Get retrieves a user by ID
func (s *PostgresUserStore) Get(id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("user %s: %w", id, ErrUserNotFound)
	}

	row := s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = $1`, id)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// Update writes a user's profile and tokens
func (s *PostgresUserStore) Update(user *User) error {
	result, err := s.db.Exec(`
		UPDATE users
		SET email = $1, name = $2, access_token = $3, refresh_token = $4,
			token_expires_at = $5, last_login = $6
		WHERE id = $7
	`, user.Email, user.Name, user.AccessToken, user.RefreshToken,
		nullTime(user.TokenExpiresAt), user.LastLogin, user.ID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user %s: %w", user.ID, ErrUserNotFound)
	}
	return nil
}

// ListExpiringBefore returns users with a refresh token whose access token
// expires before t. Users without an expiry are included.
func (s *PostgresUserStore) ListExpiringBefore(t time.Time) ([]*User, error) {
	rows, err := s.db.Query(`
		SELECT `+userColumns+`
		FROM users
		WHERE refresh_token <> ''
		  AND (token_expires_at IS NULL OR token_expires_at < $1)
		ORDER BY token_expires_at NULLS FIRST
	`, t)
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u         User
		email     sql.NullString
		name      sql.NullString
		expiresAt sql.NullTime
		lastLogin sql.NullTime
	)

	if err := row.Scan(&u.ID, &u.AirtableUserID, &email, &name, &u.AccessToken,
		&u.RefreshToken, &expiresAt, &u.CreatedAt, &lastLogin); err != nil {
		return nil, err
	}

	u.Email = email.String
	u.Name = name.String
	u.TokenExpiresAt = expiresAt.Time
	u.LastLogin = lastLogin.Time
	return &u, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
