package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"mailcal/internal/models"
)

// EmailStore persists normalized inbound emails. The Gmail message id is
// unique so repeated polls of the same message never create duplicate rows or
// duplicate analysis requests.
type EmailStore struct {
	db *sqlx.DB
}

// NewEmailStore creates the store and ensures its tables exist
func NewEmailStore(db *sqlx.DB) (*EmailStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required for email store")
	}

	store := &EmailStore{db: db}
	if err := store.CreateTables(); err != nil {
		return nil, fmt.Errorf("failed to create email tables: %w", err)
	}
	return store, nil
}

// CreateTables creates the cleaned_emails table in the database
func (s *EmailStore) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS cleaned_emails (
			id BIGSERIAL PRIMARY KEY,
			message_id TEXT UNIQUE NOT NULL,
			subject TEXT,
			sender_name TEXT,
			sender_email TEXT,
			to_addr TEXT,
			cc_addr TEXT,
			body TEXT,
			date TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cleaned_emails_message_id ON cleaned_emails(message_id)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("failed to ensure cleaned_emails schema: %w", err)
		}
	}
	return nil
}

// Save inserts a normalized email and returns its generated id. A message
// already stored under the same Gmail message id reports inserted=false with
// the existing row's id.
func (s *EmailStore) Save(ctx context.Context, email *models.InboundEmail) (bool, error) {
	query := `
		INSERT INTO cleaned_emails
			(message_id, subject, sender_name, sender_email, to_addr, cc_addr, body, date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CURRENT_TIMESTAMP)
		ON CONFLICT (message_id) DO NOTHING
		RETURNING id
	`
	err := s.db.QueryRowxContext(ctx, query,
		email.MessageID, email.Subject, email.SenderName, email.SenderEmail,
		email.To, email.CC, email.Body, email.Date).Scan(&email.ID)
	if errors.Is(err, sql.ErrNoRows) {
		// Conflict path: look up the existing row's id for the caller.
		existing, lookupErr := s.GetByMessageID(ctx, email.MessageID)
		if lookupErr != nil {
			return false, lookupErr
		}
		email.ID = existing.ID
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to save email %s: %w", email.MessageID, err)
	}
	return true, nil
}

// Get returns a stored email by its numeric id, or ErrNotFound
func (s *EmailStore) Get(ctx context.Context, id int64) (*models.InboundEmail, error) {
	var email models.InboundEmail
	query := `
		SELECT id, message_id, subject, sender_name, sender_email, to_addr, cc_addr, body, date, created_at
		FROM cleaned_emails
		WHERE id = $1
	`
	err := s.db.GetContext(ctx, &email, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("email %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load email %d: %w", id, err)
	}
	return &email, nil
}

// GetByMessageID returns a stored email by Gmail message id, or ErrNotFound
func (s *EmailStore) GetByMessageID(ctx context.Context, messageID string) (*models.InboundEmail, error) {
	var email models.InboundEmail
	query := `
		SELECT id, message_id, subject, sender_name, sender_email, to_addr, cc_addr, body, date, created_at
		FROM cleaned_emails
		WHERE message_id = $1
	`
	err := s.db.GetContext(ctx, &email, query, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("email %s: %w", messageID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load email %s: %w", messageID, err)
	}
	return &email, nil
}
