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

// CreateArtifactHandler creates a calendar artifact
// @Summary Create a calendar artifact
// @Description Create a SINGLE artifact from a resolved schedule, or a GROUP artifact with optional events
// @Tags artifacts
// @Accept json
// @Produce json
// @Param request body models.CreateArtifactRequest true "Artifact request"
// @Success 201 {object} models.CalendarArtifact
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/artifacts [post]
func CreateArtifactHandler(builder *ics.Builder) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.CreateArtifactRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: fmt.Sprintf("invalid request body: %v", err),
			})
		}

		switch req.Scope {
		case models.ScopeSingle:
			if req.ScheduleID <= 0 {
				return c.JSON(http.StatusBadRequest, models.ErrorResponse{
					Error: "schedule_id is required for SINGLE scope",
				})
			}
			artifact, err := builder.CreateSingle(c.Request().Context(), req.ScheduleID, req.RepeatType)
			if errors.Is(err, database.ErrNotFound) {
				return c.JSON(http.StatusNotFound, models.ErrorResponse{Error: err.Error()})
			}
			if err != nil {
				return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
			}
			return c.JSON(http.StatusCreated, artifact)

		case models.ScopeGroup:
			if req.CalendarID <= 0 {
				return c.JSON(http.StatusBadRequest, models.ErrorResponse{
					Error: "calendar_id is required for GROUP scope",
				})
			}
			entries := make([]ics.EventData, 0, len(req.Schedules))
			for _, s := range req.Schedules {
				entries = append(entries, ics.EventData{
					Title:       s.Title,
					Description: s.Description,
					Location:    s.Location,
					StartAt:     s.StartAt,
					EndAt:       s.EndAt,
				})
			}
			artifact, err := builder.CreateGroup(c.Request().Context(), req.CalendarID, req.GroupID, entries)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
			}
			return c.JSON(http.StatusCreated, artifact)

		default:
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: fmt.Sprintf("unknown scope %q", req.Scope),
			})
		}
	}
}

// GetArtifactHandler returns one artifact's metadata
// @Summary Get a calendar artifact
// @Tags artifacts
// @Produce json
// @Param id path int true "Artifact ID"
// @Success 200 {object} models.CalendarArtifact
// @Failure 404 {object} models.ErrorResponse
// @Router /api/artifacts/{id} [get]
func GetArtifactHandler(builder *ics.Builder) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid artifact id"})
		}

		artifact, err := builder.Get(c.Request().Context(), id)
		if errors.Is(err, database.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Error: err.Error()})
		}
		if err != nil {
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, artifact)
	}
}

// UpdateArtifactHandler patches mutable artifact metadata
// @Summary Update artifact metadata
// @Description Shallow merge of the documented mutable metadata fields; stored bytes are immutable
// @Tags artifacts
// @Accept json
// @Produce json
// @Param id path int true "Artifact ID"
// @Param request body models.UpdateArtifactRequest true "Fields to update"
// @Success 200 {object} models.MessageResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/artifacts/{id} [patch]
func UpdateArtifactHandler(builder *ics.Builder) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid artifact id"})
		}

		var req models.UpdateArtifactRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: fmt.Sprintf("invalid request body: %v", err),
			})
		}
		if req.Filename == "" {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "filename is required"})
		}

		err = builder.Update(c.Request().Context(), id, req.Filename)
		if errors.Is(err, database.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Error: err.Error()})
		}
		if err != nil {
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, models.MessageResponse{Message: "artifact updated"})
	}
}

// DeleteArtifactHandler hard-deletes an artifact
// @Summary Delete a calendar artifact
// @Tags artifacts
// @Produce json
// @Param id path int true "Artifact ID"
// @Success 200 {object} models.MessageResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/artifacts/{id} [delete]
func DeleteArtifactHandler(builder *ics.Builder) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid artifact id"})
		}

		err = builder.Delete(c.Request().Context(), id)
		if errors.Is(err, database.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Error: err.Error()})
		}
		if err != nil {
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, models.MessageResponse{Message: "artifact deleted"})
	}
}

// LookupArtifactHandler resolves the current artifact for a key
// @Summary Look up the current artifact for a schedule or group
// @Description Returns the most recently created artifact for schedule_id, or for calendar_id + group_id
// @Tags artifacts
// @Produce json
// @Param schedule_id query int false "Schedule ID"
// @Param calendar_id query int false "Calendar ID"
// @Param group_id query int false "Group ID"
// @Success 200 {object} models.CalendarArtifact
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/artifacts/lookup [get]
func LookupArtifactHandler(builder *ics.Builder) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		if raw := c.QueryParam("schedule_id"); raw != "" {
			scheduleID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid schedule_id"})
			}
			artifact, err := builder.RetrieveBySchedule(ctx, scheduleID)
			if errors.Is(err, database.ErrNotFound) {
				return c.JSON(http.StatusNotFound, models.ErrorResponse{Error: err.Error()})
			}
			if err != nil {
				return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
			}
			return c.JSON(http.StatusOK, artifact)
		}

		calendarRaw, groupRaw := c.QueryParam("calendar_id"), c.QueryParam("group_id")
		if calendarRaw != "" && groupRaw != "" {
			calendarID, err := strconv.ParseInt(calendarRaw, 10, 64)
			if err != nil {
				return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid calendar_id"})
			}
			groupID, err := strconv.ParseInt(groupRaw, 10, 64)
			if err != nil {
				return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid group_id"})
			}
			artifact, err := builder.RetrieveByGroup(ctx, calendarID, groupID)
			if errors.Is(err, database.ErrNotFound) {
				return c.JSON(http.StatusNotFound, models.ErrorResponse{Error: err.Error()})
			}
			if err != nil {
				return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
			}
			return c.JSON(http.StatusOK, artifact)
		}

		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "provide schedule_id or calendar_id and group_id",
		})
	}
}

// DownloadArtifactHandler streams the stored calendar bytes verbatim
// @Summary Download an artifact's calendar file
// @Tags artifacts
// @Produce text/calendar
// @Param id path int true "Artifact ID"
// @Success 200 {file} binary
// @Failure 404 {object} models.ErrorResponse
// @Router /api/artifacts/{id}/download [get]
func DownloadArtifactHandler(builder *ics.Builder) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid artifact id"})
		}

		artifact, err := builder.Download(c.Request().Context(), id)
		if errors.Is(err, database.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Error: err.Error()})
		}
		if err != nil {
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		}

		c.Response().Header().Set(echo.HeaderContentDisposition,
			fmt.Sprintf(`attachment; filename=%q`, artifact.Filename))
		return c.Blob(http.StatusOK, "text/calendar", artifact.FileData)
	}
}
