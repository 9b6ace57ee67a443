package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mailcal/internal/database"
	"mailcal/internal/ics"
	"mailcal/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuilder(t *testing.T) (*ics.Builder, sqlmock.Sqlmock) {
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

	return ics.NewBuilder(schedules, artifacts, zerolog.Nop()), mock
}

func artifactRows(id int64, filename string, fileData []byte) *sqlmock.Rows {
	scheduleID := int64(7)
	columns := []string{"id", "scope", "schedule_id", "calendar_id", "group_id", "filename", "file_data", "created_at"}
	return sqlmock.NewRows(columns).
		AddRow(id, models.ScopeSingle, scheduleID, nil, nil, filename, fileData, time.Now())
}

func TestDownloadArtifactHandler(t *testing.T) {
	t.Run("streams stored bytes verbatim", func(t *testing.T) {
		builder, mock := newTestBuilder(t)

		stored := []byte("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nEND:VCALENDAR\r\n")
		mock.ExpectQuery("(?s)SELECT (.+) FROM calendar_artifacts WHERE id").
			WillReturnRows(artifactRows(5, "abc.ics", stored))

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/artifacts/5/download", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("5")

		err := DownloadArtifactHandler(builder)(c)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, stored, rec.Body.Bytes())
		assert.Equal(t, "text/calendar", rec.Header().Get(echo.HeaderContentType))
		assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), `attachment`)
		assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), `abc.ics`)
	})

	t.Run("missing artifact returns 404", func(t *testing.T) {
		builder, mock := newTestBuilder(t)

		mock.ExpectQuery("(?s)SELECT (.+) FROM calendar_artifacts WHERE id").
			WillReturnError(sql.ErrNoRows)

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/artifacts/99/download", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("99")

		err := DownloadArtifactHandler(builder)(c)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("non-numeric id returns 400", func(t *testing.T) {
		builder, _ := newTestBuilder(t)

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/artifacts/abc/download", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("abc")

		err := DownloadArtifactHandler(builder)(c)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCreateArtifactHandler(t *testing.T) {
	t.Run("SINGLE without schedule_id returns 400", func(t *testing.T) {
		builder, _ := newTestBuilder(t)

		e := echo.New()
		body := `{"scope": "SINGLE"}`
		req := httptest.NewRequest(http.MethodPost, "/api/artifacts", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := CreateArtifactHandler(builder)(c)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("SINGLE for missing schedule returns 404", func(t *testing.T) {
		builder, mock := newTestBuilder(t)

		mock.ExpectQuery("(?s)SELECT (.+) FROM schedules").
			WillReturnError(sql.ErrNoRows)

		e := echo.New()
		body := `{"scope": "SINGLE", "schedule_id": 99}`
		req := httptest.NewRequest(http.MethodPost, "/api/artifacts", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := CreateArtifactHandler(builder)(c)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("GROUP with empty schedules creates placeholder artifact", func(t *testing.T) {
		builder, mock := newTestBuilder(t)

		mock.ExpectQuery("INSERT INTO calendar_artifacts").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(6), time.Now()))

		e := echo.New()
		body := `{"scope": "GROUP", "calendar_id": 3, "group_id": 4}`
		req := httptest.NewRequest(http.MethodPost, "/api/artifacts", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := CreateArtifactHandler(builder)(c)
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, rec.Code)

		var artifact models.CalendarArtifact
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &artifact))
		assert.Equal(t, int64(6), artifact.ID)
		assert.Equal(t, models.ScopeGroup, artifact.Scope)
	})

	t.Run("unknown scope returns 400", func(t *testing.T) {
		builder, _ := newTestBuilder(t)

		e := echo.New()
		body := `{"scope": "EVERYTHING"}`
		req := httptest.NewRequest(http.MethodPost, "/api/artifacts", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := CreateArtifactHandler(builder)(c)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestUpdateArtifactHandler(t *testing.T) {
	t.Run("empty filename returns 400", func(t *testing.T) {
		builder, _ := newTestBuilder(t)

		e := echo.New()
		req := httptest.NewRequest(http.MethodPatch, "/api/artifacts/5", strings.NewReader(`{}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("5")

		err := UpdateArtifactHandler(builder)(c)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing artifact returns 404", func(t *testing.T) {
		builder, mock := newTestBuilder(t)

		mock.ExpectExec("UPDATE calendar_artifacts SET filename").
			WillReturnResult(sqlmock.NewResult(0, 0))

		e := echo.New()
		req := httptest.NewRequest(http.MethodPatch, "/api/artifacts/99", strings.NewReader(`{"filename": "new.ics"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("99")

		err := UpdateArtifactHandler(builder)(c)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestDeleteArtifactHandler_NotFound(t *testing.T) {
	builder, mock := newTestBuilder(t)

	mock.ExpectQuery("(?s)SELECT (.+) FROM calendar_artifacts WHERE id").
		WillReturnError(sql.ErrNoRows)

	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/artifacts/99", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("99")

	err := DeleteArtifactHandler(builder)(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLookupArtifactHandler(t *testing.T) {
	t.Run("by schedule id", func(t *testing.T) {
		builder, mock := newTestBuilder(t)

		mock.ExpectQuery("(?s)SELECT (.+) FROM calendar_artifacts").
			WillReturnRows(artifactRows(9, "latest.ics", []byte("x")))

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/artifacts/lookup?schedule_id=7", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := LookupArtifactHandler(builder)(c)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		var artifact models.CalendarArtifact
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &artifact))
		assert.Equal(t, int64(9), artifact.ID)
	})

	t.Run("missing parameters return 400", func(t *testing.T) {
		builder, _ := newTestBuilder(t)

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/artifacts/lookup", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := LookupArtifactHandler(builder)(c)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
