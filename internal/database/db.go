package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrNotFound marks a missing schedule, artifact or email row. Callers surface
// it as a not-found response; it is never retried.
var ErrNotFound = errors.New("not found")

// New creates a new database connection. The schema and queries are
// PostgreSQL-only, so anything else in DATABASE_URL is rejected up front
// instead of failing on the first write.
func New(databaseURL string) (*sqlx.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}
	if !strings.HasPrefix(databaseURL, "postgres://") && !strings.HasPrefix(databaseURL, "postgresql://") {
		return nil, fmt.Errorf("unsupported DATABASE_URL: a postgres:// or postgresql:// URL is required")
	}

	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool settings
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// isAlreadyExists reports whether err comes from a concurrent replica winning
// a CREATE TABLE/INDEX race. Any other DDL failure is a real error.
func isAlreadyExists(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "42P07", "42710", "23505":
			return true
		}
	}
	return strings.Contains(err.Error(), "already exists")
}
