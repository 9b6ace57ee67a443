package ics

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"mailcal/internal/database"
	"mailcal/internal/events"
)

// publisher is the slice of the bus client the handler needs
type publisher interface {
	Publish(ctx context.Context, topic, key string, payload interface{}) error
}

// EventHandler consumes calendar-related bus events and drives the builder
type EventHandler struct {
	builder   *Builder
	publisher publisher
	baseURL   string
	logger    zerolog.Logger
}

// NewEventHandler creates the consumer-side handler for the ICS builder
func NewEventHandler(builder *Builder, pub publisher, baseURL string, logger zerolog.Logger) *EventHandler {
	return &EventHandler{
		builder:   builder,
		publisher: pub,
		baseURL:   baseURL,
		logger:    logger,
	}
}

// HandleCalendarRequested builds a group calendar artifact and announces it.
// An empty schedule list is valid and produces a placeholder calendar.
func (h *EventHandler) HandleCalendarRequested(ctx context.Context, key, value []byte) error {
	ev, err := events.DecodeCalendarICSRequested(value)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Dropping malformed calendar request")
		return nil
	}

	entries := make([]EventData, 0, len(ev.Schedules))
	for _, s := range ev.Schedules {
		startAt, err := events.ParseEventTime(s.StartAt)
		if err != nil {
			h.logger.Warn().Err(err).Int64("schedule_id", s.ScheduleID).Msg("Dropping calendar request with unusable entry")
			return nil
		}
		endAt, err := events.ParseEventTime(s.EndAt)
		if err != nil {
			h.logger.Warn().Err(err).Int64("schedule_id", s.ScheduleID).Msg("Dropping calendar request with unusable entry")
			return nil
		}
		entries = append(entries, EventData{
			Title:       s.Title,
			Description: s.Description,
			Location:    s.Location,
			StartAt:     startAt,
			EndAt:       endAt,
		})
	}

	artifact, err := h.builder.CreateGroup(ctx, ev.CalendarID, ev.GroupID, entries)
	if err != nil {
		return fmt.Errorf("group artifact for calendar %d: %w", ev.CalendarID, err)
	}

	created := events.CalendarICSCreated{
		CalendarID:      ev.CalendarID,
		SubscriptionURL: fmt.Sprintf("%s/api/artifacts/%d/download", h.baseURL, artifact.ID),
	}
	if err := h.publisher.Publish(ctx, events.TopicCalendarICSCreated,
		strconv.FormatInt(ev.CalendarID, 10), created); err != nil {
		return err
	}

	h.logger.Info().
		Int64("calendar_id", ev.CalendarID).
		Str("subscription_url", created.SubscriptionURL).
		Msg("Group calendar announced")
	return nil
}

// HandleScheduleCreate rebuilds the single-schedule artifact for a resolved
// schedule, applying the requested recurrence. A schedule that is absent or
// not in SUCCESS state is dropped: redelivery cannot resolve it, and the
// analysis-result path owns first-time artifact creation.
func (h *EventHandler) HandleScheduleCreate(ctx context.Context, key, value []byte) error {
	ev, err := events.DecodeScheduleCreate(value)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Dropping malformed schedule.create event")
		return nil
	}

	artifact, err := h.builder.CreateSingle(ctx, ev.EmailID, ev.RepeatType)
	if errors.Is(err, database.ErrNotFound) {
		h.logger.Warn().
			Int64("email_id", ev.EmailID).
			Err(err).
			Msg("Dropping schedule.create for unresolved schedule")
		return nil
	}
	if err != nil {
		return err
	}

	h.logger.Info().
		Int64("email_id", ev.EmailID).
		Int64("artifact_id", artifact.ID).
		Str("repeat_type", ev.RepeatType).
		Msg("Schedule artifact rebuilt")
	return nil
}

// HandleDeleteRequested acknowledges group calendar delete requests. The
// delete flow is a stub pending product clarification: the event is consumed
// so the partition keeps moving, but no artifact is removed.
func (h *EventHandler) HandleDeleteRequested(ctx context.Context, key, value []byte) error {
	ev, err := events.DecodeCalendarICSDeleteRequested(value)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Dropping malformed calendar delete request")
		return nil
	}

	h.logger.Info().
		Int64("calendar_id", ev.CalendarID).
		Msg("Group calendar delete requested; retention behavior not yet defined, ignoring")
	return nil
}
