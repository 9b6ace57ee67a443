// Package ics builds and manages calendar artifacts. Artifacts are immutable
// byte blobs: creating "again" for the same key inserts a new row, and reads
// resolve to the most recently created one.
package ics

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/teambition/rrule-go"

	"mailcal/internal/cache"
	"mailcal/internal/database"
	"mailcal/internal/models"
)

const (
	prodID   = "-//mailcal//calendar//EN"
	cacheTTL = time.Minute

	// Lenient GROUP create: an empty schedule list yields a placeholder
	// event instead of an error.
	placeholderTitle       = "group schedule"
	placeholderLocation    = "TBD"
	placeholderDescription = "Group schedule placeholder"
)

// EventData holds the resolved fields of one calendar event
type EventData struct {
	Title       string
	Description string
	Location    string
	StartAt     time.Time
	EndAt       time.Time
	RRule       string
}

// Builder creates, retrieves and removes calendar artifacts
type Builder struct {
	schedules *database.ScheduleService
	artifacts *database.ArtifactService
	cache     *cache.ArtifactCache
	logger    zerolog.Logger
}

// NewBuilder creates a calendar artifact builder
func NewBuilder(schedules *database.ScheduleService, artifacts *database.ArtifactService, logger zerolog.Logger) *Builder {
	return &Builder{
		schedules: schedules,
		artifacts: artifacts,
		cache:     cache.New(),
		logger:    logger,
	}
}

// CreateSingle builds a new artifact for one resolved schedule. The schedule
// must exist in SUCCESS state; anything else is a not-found for the caller.
// repeatType optionally adds a recurrence rule (DAILY, WEEKLY, MONTHLY, YEARLY).
func (b *Builder) CreateSingle(ctx context.Context, scheduleID int64, repeatType string) (*models.CalendarArtifact, error) {
	record, err := b.schedules.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if record.Status != models.ScheduleStatusSuccess {
		return nil, fmt.Errorf("schedule %d has status %s: %w", scheduleID, record.Status, database.ErrNotFound)
	}

	event := EventData{
		Title:       strValue(record.ParsedTitle),
		Location:    strValue(record.ParsedLocation),
		Description: strValue(record.EmailContent),
		StartAt:     timeValue(record.ParsedStartAt),
		EndAt:       timeValue(record.ParsedEndAt),
	}
	if repeatType != "" {
		rule, err := RecurrenceRule(repeatType, event.StartAt)
		if err != nil {
			return nil, err
		}
		event.RRule = rule
	}

	data, err := buildCalendar([]EventData{event})
	if err != nil {
		return nil, fmt.Errorf("failed to build calendar for schedule %d: %w", scheduleID, err)
	}

	artifact := &models.CalendarArtifact{
		Scope:      models.ScopeSingle,
		ScheduleID: &scheduleID,
		Filename:   uuid.NewString() + ".ics",
		FileData:   data,
	}
	if err := b.artifacts.Insert(ctx, artifact); err != nil {
		return nil, err
	}
	b.cache.Delete(cache.ScheduleKey(scheduleID))

	b.logger.Info().
		Int64("schedule_id", scheduleID).
		Int64("artifact_id", artifact.ID).
		Msg("Single calendar artifact created")
	return artifact, nil
}

// CreateGroup builds a new artifact for a group calendar. Missing schedules
// are not an error: a placeholder event is stored instead.
func (b *Builder) CreateGroup(ctx context.Context, calendarID, groupID int64, entries []EventData) (*models.CalendarArtifact, error) {
	if len(entries) == 0 {
		now := time.Now().UTC()
		entries = []EventData{{
			Title:       placeholderTitle,
			Description: placeholderDescription,
			Location:    placeholderLocation,
			StartAt:     now,
			EndAt:       now.Add(time.Hour),
		}}
	}

	data, err := buildCalendar(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to build group calendar %d/%d: %w", calendarID, groupID, err)
	}

	artifact := &models.CalendarArtifact{
		Scope:      models.ScopeGroup,
		CalendarID: &calendarID,
		GroupID:    &groupID,
		Filename:   uuid.NewString() + ".ics",
		FileData:   data,
	}
	if err := b.artifacts.Insert(ctx, artifact); err != nil {
		return nil, err
	}
	b.cache.Delete(cache.GroupKey(calendarID, groupID))

	b.logger.Info().
		Int64("calendar_id", calendarID).
		Int64("group_id", groupID).
		Int64("artifact_id", artifact.ID).
		Int("events", len(entries)).
		Msg("Group calendar artifact created")
	return artifact, nil
}

// Update patches the mutable metadata of the named artifact row only. It is
// not a new version and never touches the stored bytes.
func (b *Builder) Update(ctx context.Context, id int64, filename string) error {
	if err := b.artifacts.UpdateFilename(ctx, id, filename); err != nil {
		return err
	}
	if artifact, err := b.artifacts.GetByID(ctx, id); err == nil {
		b.invalidate(artifact)
	}
	return nil
}

// Delete hard-deletes an artifact row
func (b *Builder) Delete(ctx context.Context, id int64) error {
	artifact, err := b.artifacts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := b.artifacts.Delete(ctx, id); err != nil {
		return err
	}
	b.invalidate(artifact)
	return nil
}

// RetrieveBySchedule returns the current artifact for a schedule
func (b *Builder) RetrieveBySchedule(ctx context.Context, scheduleID int64) (*models.CalendarArtifact, error) {
	key := cache.ScheduleKey(scheduleID)
	if artifact, ok := b.cache.Get(key); ok {
		return artifact, nil
	}
	artifact, err := b.artifacts.LatestBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	b.cache.Set(key, artifact, cacheTTL)
	return artifact, nil
}

// RetrieveByGroup returns the current artifact for a calendar/group pair
func (b *Builder) RetrieveByGroup(ctx context.Context, calendarID, groupID int64) (*models.CalendarArtifact, error) {
	key := cache.GroupKey(calendarID, groupID)
	if artifact, ok := b.cache.Get(key); ok {
		return artifact, nil
	}
	artifact, err := b.artifacts.LatestByGroup(ctx, calendarID, groupID)
	if err != nil {
		return nil, err
	}
	b.cache.Set(key, artifact, cacheTTL)
	return artifact, nil
}

// Download returns one artifact row with its stored bytes verbatim. No
// re-serialization happens on this path.
func (b *Builder) Download(ctx context.Context, id int64) (*models.CalendarArtifact, error) {
	return b.artifacts.GetByID(ctx, id)
}

// Get returns one artifact row by id
func (b *Builder) Get(ctx context.Context, id int64) (*models.CalendarArtifact, error) {
	return b.artifacts.GetByID(ctx, id)
}

func (b *Builder) invalidate(artifact *models.CalendarArtifact) {
	if artifact.ScheduleID != nil {
		b.cache.Delete(cache.ScheduleKey(*artifact.ScheduleID))
	}
	if artifact.CalendarID != nil && artifact.GroupID != nil {
		b.cache.Delete(cache.GroupKey(*artifact.CalendarID, *artifact.GroupID))
	}
}

// RecurrenceRule maps a repeat type to an RRULE value anchored at start
func RecurrenceRule(repeatType string, start time.Time) (string, error) {
	option := rrule.ROption{Dtstart: start}
	switch strings.ToUpper(repeatType) {
	case "", "NONE":
		return "", nil
	case "DAILY":
		option.Freq = rrule.DAILY
	case "WEEKLY":
		option.Freq = rrule.WEEKLY
	case "MONTHLY":
		option.Freq = rrule.MONTHLY
	case "YEARLY":
		option.Freq = rrule.YEARLY
	default:
		return "", fmt.Errorf("unknown repeat type %q", repeatType)
	}
	return option.RRuleString(), nil
}

// buildCalendar serializes one calendar object holding the given events
func buildCalendar(events []EventData) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, prodID)

	now := time.Now().UTC()
	for _, e := range events {
		event := ical.NewEvent()
		event.Props.SetText(ical.PropUID, uuid.NewString())
		event.Props.SetDateTime(ical.PropDateTimeStamp, now)
		event.Props.SetText(ical.PropSummary, e.Title)
		event.Props.SetDateTime(ical.PropDateTimeStart, e.StartAt.UTC())
		event.Props.SetDateTime(ical.PropDateTimeEnd, e.EndAt.UTC())
		if e.Location != "" {
			event.Props.SetText(ical.PropLocation, e.Location)
		}
		if e.Description != "" {
			event.Props.SetText(ical.PropDescription, e.Description)
		}
		if e.RRule != "" {
			event.Props.Set(&ical.Prop{Name: ical.PropRecurrenceRule, Value: e.RRule})
		}
		cal.Children = append(cal.Children, event.Component)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("failed to encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}

func strValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func timeValue(p *time.Time) time.Time {
	if p == nil {
		return time.Time{}
	}
	return *p
}
