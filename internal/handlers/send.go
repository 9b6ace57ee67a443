package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"mailcal/internal/database"
	"mailcal/internal/ics"
	"mailcal/internal/models"

	"github.com/labstack/echo/v4"
)

// Sender is the mail transport boundary for manual artifact dispatch
type Sender interface {
	SendSchedule(recipient, subject, summary string, attachment []byte, filename string) error
}

// SendArtifactHandler mails a stored artifact to a recipient
// @Summary Send an artifact's calendar file by email
// @Description Mails the stored calendar bytes as an attachment to the given recipient
// @Tags artifacts
// @Accept json
// @Produce json
// @Param id path int true "Artifact ID"
// @Param request body models.SendArtifactRequest true "Dispatch request"
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/artifacts/{id}/send [post]
func SendArtifactHandler(builder *ics.Builder, sender Sender) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid artifact id"})
		}

		var req models.SendArtifactRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: fmt.Sprintf("invalid request body: %v", err),
			})
		}
		if req.Recipient == "" {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "recipient is required"})
		}
		if req.Subject == "" {
			req.Subject = "Calendar invitation"
		}
		if req.Message == "" {
			req.Message = "Your calendar file is attached."
		}

		artifact, err := builder.Get(c.Request().Context(), id)
		if errors.Is(err, database.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Error: err.Error()})
		}
		if err != nil {
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		}

		if err := sender.SendSchedule(req.Recipient, req.Subject, req.Message, artifact.FileData, artifact.Filename); err != nil {
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Error: fmt.Sprintf("failed to send artifact: %v", err),
			})
		}

		return c.JSON(http.StatusOK, models.MessageResponse{Message: "artifact sent"})
	}
}
