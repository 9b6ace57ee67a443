package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mailcal/internal/database"
	"mailcal/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScheduleService(t *testing.T) (*database.ScheduleService, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	// The constructor replays its schema DDL against the mock
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schedules").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_schedules_status").WillReturnResult(sqlmock.NewResult(0, 0))

	service, err := database.NewScheduleService(sqlx.NewDb(mockDB, "sqlmock"))
	require.NoError(t, err)
	return service, mock
}

func TestGetScheduleHandler(t *testing.T) {
	t.Run("returns stored record", func(t *testing.T) {
		service, mock := newScheduleService(t)

		now := time.Now()
		columns := []string{"email_id", "status", "parsed_title", "parsed_start_at", "parsed_end_at",
			"parsed_location", "failure_reason", "email_content", "created_at", "updated_at"}
		mock.ExpectQuery("(?s)SELECT (.+) FROM schedules").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(int64(7), models.ScheduleStatusSuccess, "Weekly sync", now, now, "Room A", nil, nil, now, now))

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/schedules/7", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("7")

		err := GetScheduleHandler(service)(c)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		var record models.ScheduleRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
		assert.Equal(t, int64(7), record.EmailID)
		assert.Equal(t, models.ScheduleStatusSuccess, record.Status)
	})

	t.Run("missing record returns 404", func(t *testing.T) {
		service, mock := newScheduleService(t)

		mock.ExpectQuery("(?s)SELECT (.+) FROM schedules").
			WillReturnError(sql.ErrNoRows)

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/schedules/99", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("99")

		err := GetScheduleHandler(service)(c)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("non-numeric id returns 400", func(t *testing.T) {
		service, _ := newScheduleService(t)

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/schedules/abc", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("abc")

		err := GetScheduleHandler(service)(c)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
