package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"mailcal/internal/models"
)

// ArtifactService persists calendar artifacts. Artifact bytes are immutable
// once written: a rebuild inserts a new row and the current artifact for a
// key is always the most recently created one.
type ArtifactService struct {
	db *sqlx.DB
}

// NewArtifactService creates the service and ensures its tables exist
func NewArtifactService(db *sqlx.DB) (*ArtifactService, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required for artifact service")
	}

	service := &ArtifactService{db: db}
	if err := service.CreateTables(); err != nil {
		return nil, fmt.Errorf("failed to create artifact tables: %w", err)
	}
	return service, nil
}

// CreateTables creates the calendar_artifacts table in the database
func (s *ArtifactService) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS calendar_artifacts (
			id SERIAL PRIMARY KEY,
			scope VARCHAR(10) NOT NULL,
			schedule_id BIGINT,
			calendar_id BIGINT,
			group_id BIGINT,
			filename TEXT NOT NULL,
			file_data BYTEA NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_artifacts_schedule ON calendar_artifacts(schedule_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_artifacts_group ON calendar_artifacts(calendar_id, group_id, created_at DESC)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("failed to ensure calendar_artifacts schema: %w", err)
		}
	}
	return nil
}

const artifactColumns = `id, scope, schedule_id, calendar_id, group_id, filename, file_data, created_at`

// Insert stores a new artifact row and fills in its generated id
func (s *ArtifactService) Insert(ctx context.Context, artifact *models.CalendarArtifact) error {
	query := `
		INSERT INTO calendar_artifacts
			(scope, schedule_id, calendar_id, group_id, filename, file_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP)
		RETURNING id, created_at
	`
	row := s.db.QueryRowxContext(ctx, query,
		artifact.Scope, artifact.ScheduleID, artifact.CalendarID,
		artifact.GroupID, artifact.Filename, artifact.FileData)
	if err := row.Scan(&artifact.ID, &artifact.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert artifact: %w", err)
	}
	return nil
}

// GetByID returns one artifact row including its bytes, or ErrNotFound
func (s *ArtifactService) GetByID(ctx context.Context, id int64) (*models.CalendarArtifact, error) {
	var artifact models.CalendarArtifact
	query := `SELECT ` + artifactColumns + ` FROM calendar_artifacts WHERE id = $1`
	err := s.db.GetContext(ctx, &artifact, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("artifact %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact %d: %w", id, err)
	}
	return &artifact, nil
}

// LatestBySchedule returns the most recently created SINGLE artifact for a
// schedule, or ErrNotFound
func (s *ArtifactService) LatestBySchedule(ctx context.Context, scheduleID int64) (*models.CalendarArtifact, error) {
	var artifact models.CalendarArtifact
	query := `
		SELECT ` + artifactColumns + `
		FROM calendar_artifacts
		WHERE schedule_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	err := s.db.GetContext(ctx, &artifact, query, scheduleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("artifact for schedule %d: %w", scheduleID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact for schedule %d: %w", scheduleID, err)
	}
	return &artifact, nil
}

// LatestByGroup returns the most recently created GROUP artifact for a
// calendar/group pair, or ErrNotFound
func (s *ArtifactService) LatestByGroup(ctx context.Context, calendarID, groupID int64) (*models.CalendarArtifact, error) {
	var artifact models.CalendarArtifact
	query := `
		SELECT ` + artifactColumns + `
		FROM calendar_artifacts
		WHERE calendar_id = $1 AND group_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	err := s.db.GetContext(ctx, &artifact, query, calendarID, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("artifact for calendar %d group %d: %w", calendarID, groupID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact for calendar %d group %d: %w", calendarID, groupID, err)
	}
	return &artifact, nil
}

// UpdateFilename patches the only mutable metadata field of an artifact row.
// The stored bytes are never touched.
func (s *ArtifactService) UpdateFilename(ctx context.Context, id int64, filename string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE calendar_artifacts SET filename = $1 WHERE id = $2`, filename, id)
	if err != nil {
		return fmt.Errorf("failed to update artifact %d: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result for artifact %d: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("artifact %d: %w", id, ErrNotFound)
	}
	return nil
}

// Delete hard-deletes an artifact row. No tombstone, no cascading cleanup.
func (s *ArtifactService) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM calendar_artifacts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete artifact %d: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result for artifact %d: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("artifact %d: %w", id, ErrNotFound)
	}
	return nil
}
