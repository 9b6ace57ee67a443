package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"mailcal/internal/models"
)

// ScheduleService persists schedule analysis outcomes. A schedule row is
// written exactly once per email id and never reverted or deleted.
type ScheduleService struct {
	db *sqlx.DB
}

// NewScheduleService creates the service and ensures its tables exist
func NewScheduleService(db *sqlx.DB) (*ScheduleService, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required for schedule service")
	}

	service := &ScheduleService{db: db}
	if err := service.CreateTables(); err != nil {
		return nil, fmt.Errorf("failed to create schedule tables: %w", err)
	}
	return service, nil
}

// CreateTables creates the schedules table in the database
func (s *ScheduleService) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS schedules (
			email_id BIGINT PRIMARY KEY,
			status VARCHAR(20) NOT NULL,
			parsed_title TEXT,
			parsed_start_at TIMESTAMP,
			parsed_end_at TIMESTAMP,
			parsed_location TEXT,
			failure_reason TEXT,
			email_content TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_status ON schedules(status)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("failed to ensure schedules schema: %w", err)
		}
	}
	return nil
}

// Get returns the schedule record for an email id, or ErrNotFound
func (s *ScheduleService) Get(ctx context.Context, emailID int64) (*models.ScheduleRecord, error) {
	var record models.ScheduleRecord
	query := `
		SELECT email_id, status, parsed_title, parsed_start_at, parsed_end_at,
		       parsed_location, failure_reason, email_content, created_at, updated_at
		FROM schedules
		WHERE email_id = $1
	`
	err := s.db.GetContext(ctx, &record, query, emailID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schedule %d: %w", emailID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule %d: %w", emailID, err)
	}
	return &record, nil
}

// InsertTerminal writes a terminal schedule row. The insert is idempotent: a
// redelivered result event hits the conflict clause and reports inserted=false
// so the caller can skip downstream dispatch.
func (s *ScheduleService) InsertTerminal(ctx context.Context, record *models.ScheduleRecord) (bool, error) {
	query := `
		INSERT INTO schedules
			(email_id, status, parsed_title, parsed_start_at, parsed_end_at,
			 parsed_location, failure_reason, email_content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (email_id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query,
		record.EmailID, record.Status, record.ParsedTitle, record.ParsedStartAt,
		record.ParsedEndAt, record.ParsedLocation, record.FailureReason, record.EmailContent)
	if err != nil {
		return false, fmt.Errorf("failed to insert schedule %d: %w", record.EmailID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result for schedule %d: %w", record.EmailID, err)
	}
	return rows == 1, nil
}
