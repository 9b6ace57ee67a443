package handlers

import (
	"context"
	"net/http"

	"mailcal/internal/models"

	"github.com/labstack/echo/v4"
)

// InboxChecker triggers one inbox poll cycle
type InboxChecker interface {
	CheckInbox(ctx context.Context) (int, error)
}

// CheckInboxHandler runs a manual inbox check
// @Summary Check the inbox now
// @Description Polls the inbox once and publishes analysis requests for unread mail
// @Tags inbox
// @Produce json
// @Success 200 {object} models.InboxCheckResponse
// @Failure 500 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /api/inbox/check [post]
func CheckInboxHandler(checker InboxChecker) echo.HandlerFunc {
	return func(c echo.Context) error {
		if checker == nil {
			return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
				Error: "inbox polling is not configured",
			})
		}

		published, err := checker.CheckInbox(c.Request().Context())
		if err != nil {
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, models.InboxCheckResponse{
			Published: published,
			Message:   "inbox check complete",
		})
	}
}
