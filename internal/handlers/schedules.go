package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"mailcal/internal/database"
	"mailcal/internal/models"

	"github.com/labstack/echo/v4"
)

// GetScheduleHandler returns a schedule record for manual inspection
// @Summary Get a schedule record
// @Tags schedules
// @Produce json
// @Param id path int true "Email ID"
// @Success 200 {object} models.ScheduleRecord
// @Failure 404 {object} models.ErrorResponse
// @Router /api/schedules/{id} [get]
func GetScheduleHandler(schedules *database.ScheduleService) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid schedule id"})
		}

		record, err := schedules.Get(c.Request().Context(), id)
		if errors.Is(err, database.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Error: err.Error()})
		}
		if err != nil {
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, record)
	}
}
