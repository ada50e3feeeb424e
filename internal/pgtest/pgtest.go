//go:build integration

// Package pgtest starts a throwaway PostgreSQL container with the schema applied
package pgtest

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/liamcoop/formsync/internal/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Setup starts postgres, runs the migrations and returns a connection.
// The container is terminated when the test finishes.
func Setup(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "formsync_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	url := fmt.Sprintf("postgres://test:test@%s:%s/formsync_test?sslmode=disable", host, port.Port())

	db, err := database.Open(ctx, url)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	if err := database.MigrateUp(url); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db
}

// CreateUser inserts a user row and returns its ID
func CreateUser(t *testing.T, db *sql.DB, airtableUserID string) string {
	t.Helper()

	var id string
	err := db.QueryRow(`
		INSERT INTO users (id, airtable_user_id, email, name)
		VALUES (gen_random_uuid(), $1, $1 || '@example.com', $1)
		RETURNING id
	`, airtableUserID).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return id
}
