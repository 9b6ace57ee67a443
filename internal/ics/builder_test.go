package ics

import (
	"bytes"
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/emersion/go-ical"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailcal/internal/database"
	"mailcal/internal/models"
)

func newTestBuilder(t *testing.T) (*Builder, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	// Constructors replay their schema DDL against the mock
	for _, ddl := range []string{
		"CREATE TABLE IF NOT EXISTS schedules",
		"CREATE INDEX IF NOT EXISTS idx_schedules_status",
		"CREATE TABLE IF NOT EXISTS calendar_artifacts",
		"CREATE INDEX IF NOT EXISTS idx_artifacts_schedule",
		"CREATE INDEX IF NOT EXISTS idx_artifacts_group",
	} {
		mock.ExpectExec(ddl).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	db := sqlx.NewDb(mockDB, "sqlmock")
	schedules, err := database.NewScheduleService(db)
	require.NoError(t, err)
	artifacts, err := database.NewArtifactService(db)
	require.NoError(t, err)

	return NewBuilder(schedules, artifacts, zerolog.Nop()), mock
}

func scheduleRow(status string) *sqlmock.Rows {
	now := time.Now()
	columns := []string{"email_id", "status", "parsed_title", "parsed_start_at", "parsed_end_at",
		"parsed_location", "failure_reason", "email_content", "created_at", "updated_at"}
	return sqlmock.NewRows(columns).
		AddRow(int64(7), status, "Weekly sync", now, now.Add(time.Hour), "Room A", nil, nil, now, now)
}

func decodeCalendar(t *testing.T, data []byte) *ical.Calendar {
	t.Helper()
	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	require.NoError(t, err)
	return cal
}

func TestRecurrenceRule(t *testing.T) {
	start := time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		repeatType string
		wantFreq   string
		wantEmpty  bool
		wantErr    bool
	}{
		{repeatType: "", wantEmpty: true},
		{repeatType: "NONE", wantEmpty: true},
		{repeatType: "none", wantEmpty: true},
		{repeatType: "DAILY", wantFreq: "DAILY"},
		{repeatType: "weekly", wantFreq: "WEEKLY"},
		{repeatType: "MONTHLY", wantFreq: "MONTHLY"},
		{repeatType: "YEARLY", wantFreq: "YEARLY"},
		{repeatType: "FORTNIGHTLY", wantErr: true},
	}

	for _, tt := range tests {
		t.Run("repeat "+tt.repeatType, func(t *testing.T) {
			rule, err := RecurrenceRule(tt.repeatType, start)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantEmpty {
				assert.Empty(t, rule)
				return
			}
			assert.Contains(t, rule, "FREQ="+tt.wantFreq)
		})
	}
}

func TestBuildCalendar(t *testing.T) {
	start := time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)
	data, err := buildCalendar([]EventData{
		{
			Title:       "Weekly sync",
			Description: "Agenda attached",
			Location:    "Room A",
			StartAt:     start,
			EndAt:       start.Add(time.Hour),
			RRule:       "FREQ=WEEKLY",
		},
		{
			Title:   "One-off review",
			StartAt: start.Add(24 * time.Hour),
			EndAt:   start.Add(25 * time.Hour),
		},
	})
	require.NoError(t, err)

	cal := decodeCalendar(t, data)
	events := cal.Events()
	require.Len(t, events, 2)

	summary, err := events[0].Props.Text(ical.PropSummary)
	require.NoError(t, err)
	assert.Equal(t, "Weekly sync", summary)

	location, err := events[0].Props.Text(ical.PropLocation)
	require.NoError(t, err)
	assert.Equal(t, "Room A", location)

	rrule := events[0].Props.Get(ical.PropRecurrenceRule)
	require.NotNil(t, rrule)
	assert.Contains(t, rrule.Value, "FREQ=WEEKLY")

	// The second event carries no optional props
	assert.Nil(t, events[1].Props.Get(ical.PropLocation))
	assert.Nil(t, events[1].Props.Get(ical.PropRecurrenceRule))
}

func TestCreateSingle(t *testing.T) {
	t.Run("resolved schedule produces an artifact", func(t *testing.T) {
		builder, mock := newTestBuilder(t)

		mock.ExpectQuery("(?s)SELECT (.+) FROM schedules").
			WillReturnRows(scheduleRow(models.ScheduleStatusSuccess))
		mock.ExpectQuery("INSERT INTO calendar_artifacts").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(5), time.Now()))

		artifact, err := builder.CreateSingle(context.Background(), 7, "WEEKLY")
		require.NoError(t, err)

		assert.Equal(t, models.ScopeSingle, artifact.Scope)
		require.NotNil(t, artifact.ScheduleID)
		assert.Equal(t, int64(7), *artifact.ScheduleID)
		assert.True(t, strings.HasSuffix(artifact.Filename, ".ics"))

		cal := decodeCalendar(t, artifact.FileData)
		events := cal.Events()
		require.Len(t, events, 1)
		rrule := events[0].Props.Get(ical.PropRecurrenceRule)
		require.NotNil(t, rrule)
		assert.Contains(t, rrule.Value, "FREQ=WEEKLY")
	})

	t.Run("failed schedule is not found", func(t *testing.T) {
		builder, mock := newTestBuilder(t)

		mock.ExpectQuery("(?s)SELECT (.+) FROM schedules").
			WillReturnRows(scheduleRow(models.ScheduleStatusFailed))

		artifact, err := builder.CreateSingle(context.Background(), 7, "")
		assert.ErrorIs(t, err, database.ErrNotFound)
		assert.Nil(t, artifact)
	})

	t.Run("missing schedule is not found", func(t *testing.T) {
		builder, mock := newTestBuilder(t)

		mock.ExpectQuery("(?s)SELECT (.+) FROM schedules").
			WillReturnError(sql.ErrNoRows)

		artifact, err := builder.CreateSingle(context.Background(), 99, "")
		assert.ErrorIs(t, err, database.ErrNotFound)
		assert.Nil(t, artifact)
	})

	t.Run("unknown repeat type is rejected", func(t *testing.T) {
		builder, mock := newTestBuilder(t)

		mock.ExpectQuery("(?s)SELECT (.+) FROM schedules").
			WillReturnRows(scheduleRow(models.ScheduleStatusSuccess))

		artifact, err := builder.CreateSingle(context.Background(), 7, "SOMETIMES")
		assert.Error(t, err)
		assert.Nil(t, artifact)
	})
}

func TestCreateGroup(t *testing.T) {
	t.Run("empty schedule list stores a placeholder", func(t *testing.T) {
		builder, mock := newTestBuilder(t)

		mock.ExpectQuery("INSERT INTO calendar_artifacts").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(6), time.Now()))

		artifact, err := builder.CreateGroup(context.Background(), 3, 4, nil)
		require.NoError(t, err)

		assert.Equal(t, models.ScopeGroup, artifact.Scope)
		require.NotNil(t, artifact.CalendarID)
		assert.Equal(t, int64(3), *artifact.CalendarID)

		cal := decodeCalendar(t, artifact.FileData)
		events := cal.Events()
		require.Len(t, events, 1)
		summary, err := events[0].Props.Text(ical.PropSummary)
		require.NoError(t, err)
		assert.Equal(t, placeholderTitle, summary)
	})

	t.Run("entries become events", func(t *testing.T) {
		builder, mock := newTestBuilder(t)

		mock.ExpectQuery("INSERT INTO calendar_artifacts").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), time.Now()))

		start := time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)
		artifact, err := builder.CreateGroup(context.Background(), 3, 4, []EventData{
			{Title: "Standup", StartAt: start, EndAt: start.Add(15 * time.Minute)},
			{Title: "Retro", StartAt: start.Add(time.Hour), EndAt: start.Add(2 * time.Hour)},
		})
		require.NoError(t, err)

		cal := decodeCalendar(t, artifact.FileData)
		assert.Len(t, cal.Events(), 2)
	})
}

func TestDownload_ReturnsStoredBytesVerbatim(t *testing.T) {
	builder, mock := newTestBuilder(t)

	stored := []byte("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nEND:VCALENDAR\r\n")
	scheduleID := int64(7)
	columns := []string{"id", "scope", "schedule_id", "calendar_id", "group_id", "filename", "file_data", "created_at"}
	mock.ExpectQuery("(?s)SELECT (.+) FROM calendar_artifacts WHERE id").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(5), models.ScopeSingle, scheduleID, nil, nil, "abc.ics", stored, time.Now()))

	artifact, err := builder.Download(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, stored, artifact.FileData)
}

func TestRetrieveBySchedule_EvictedOnRebuild(t *testing.T) {
	builder, mock := newTestBuilder(t)

	scheduleID := int64(7)
	columns := []string{"id", "scope", "schedule_id", "calendar_id", "group_id", "filename", "file_data", "created_at"}
	mock.ExpectQuery("(?s)SELECT (.+) FROM calendar_artifacts").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(9), models.ScopeSingle, scheduleID, nil, nil, "old.ics", []byte("x"), time.Now()))

	stale, err := builder.RetrieveBySchedule(context.Background(), scheduleID)
	require.NoError(t, err)
	assert.Equal(t, int64(9), stale.ID)

	// The rebuild inserts a new row and must evict the cached lookup
	mock.ExpectQuery("(?s)SELECT (.+) FROM schedules").
		WillReturnRows(scheduleRow(models.ScheduleStatusSuccess))
	mock.ExpectQuery("INSERT INTO calendar_artifacts").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(10), time.Now()))

	_, err = builder.CreateSingle(context.Background(), scheduleID, "")
	require.NoError(t, err)

	mock.ExpectQuery("(?s)SELECT (.+) FROM calendar_artifacts").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(10), models.ScopeSingle, scheduleID, nil, nil, "new.ics", []byte("y"), time.Now()))

	fresh, err := builder.RetrieveBySchedule(context.Background(), scheduleID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), fresh.ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetrieveBySchedule_EvictedOnDelete(t *testing.T) {
	builder, mock := newTestBuilder(t)

	scheduleID := int64(7)
	columns := []string{"id", "scope", "schedule_id", "calendar_id", "group_id", "filename", "file_data", "created_at"}
	mock.ExpectQuery("(?s)SELECT (.+) FROM calendar_artifacts").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(9), models.ScopeSingle, scheduleID, nil, nil, "old.ics", []byte("x"), time.Now()))

	_, err := builder.RetrieveBySchedule(context.Background(), scheduleID)
	require.NoError(t, err)

	mock.ExpectQuery("(?s)SELECT (.+) FROM calendar_artifacts WHERE id").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(9), models.ScopeSingle, scheduleID, nil, nil, "old.ics", []byte("x"), time.Now()))
	mock.ExpectExec("DELETE FROM calendar_artifacts").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, builder.Delete(context.Background(), 9))

	// The next lookup goes back to the database, which now has no row
	mock.ExpectQuery("(?s)SELECT (.+) FROM calendar_artifacts").
		WillReturnError(sql.ErrNoRows)

	_, err = builder.RetrieveBySchedule(context.Background(), scheduleID)
	assert.ErrorIs(t, err, database.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetrieveBySchedule_CachesLookups(t *testing.T) {
	builder, mock := newTestBuilder(t)

	scheduleID := int64(7)
	columns := []string{"id", "scope", "schedule_id", "calendar_id", "group_id", "filename", "file_data", "created_at"}
	// One database hit only; the second retrieve is served from cache
	mock.ExpectQuery("(?s)SELECT (.+) FROM calendar_artifacts").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(9), models.ScopeSingle, scheduleID, nil, nil, "latest.ics", []byte("x"), time.Now()))

	first, err := builder.RetrieveBySchedule(context.Background(), scheduleID)
	require.NoError(t, err)

	second, err := builder.RetrieveBySchedule(context.Background(), scheduleID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}
