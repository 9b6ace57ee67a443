// Package schedule drives the terminal state machine for analysis results:
// PENDING (implicit) transitions exactly once to SUCCESS or FAILED on the
// first observed result event, and is never reverted.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mailcal/internal/database"
	"mailcal/internal/events"
	"mailcal/internal/models"
)

// artifactCreator is the ICS builder boundary
type artifactCreator interface {
	CreateSingle(ctx context.Context, scheduleID int64, repeatType string) (*models.CalendarArtifact, error)
}

// dispatcher is the mail transport boundary
type dispatcher interface {
	SendSchedule(recipient, subject, summary string, attachment []byte, filename string) error
}

// Notifier consumes analysis results, persists the schedule aggregate and, on
// success, triggers artifact creation and dispatch. The downstream steps are
// best-effort: their failure never rewinds a committed schedule status.
type Notifier struct {
	schedules  *database.ScheduleService
	emails     *database.EmailStore
	builder    artifactCreator
	dispatcher dispatcher
	logger     zerolog.Logger
}

// NewNotifier creates the analysis-result handler
func NewNotifier(schedules *database.ScheduleService, emails *database.EmailStore, builder artifactCreator, disp dispatcher, logger zerolog.Logger) *Notifier {
	return &Notifier{
		schedules:  schedules,
		emails:     emails,
		builder:    builder,
		dispatcher: disp,
		logger:     logger,
	}
}

// HandleAnalysisResult processes one email.analysis.result message. Malformed
// payloads are dropped; storage failures fail the delivery so the bus
// redelivers; a record already in a terminal state makes redelivery a no-op.
func (n *Notifier) HandleAnalysisResult(ctx context.Context, key, value []byte) error {
	result, err := events.DecodeEmailAnalysisResult(value)
	if err != nil {
		n.logger.Warn().Err(err).Msg("Dropping malformed analysis result")
		return nil
	}

	existing, err := n.schedules.Get(ctx, result.EmailID)
	if err == nil {
		n.logger.Debug().
			Int64("email_id", result.EmailID).
			Str("status", existing.Status).
			Msg("Redelivered result for terminal schedule, ignoring")
		return nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("schedule lookup for %d: %w", result.EmailID, err)
	}

	record, err := n.buildRecord(ctx, result)
	if err != nil {
		n.logger.Warn().Err(err).Int64("email_id", result.EmailID).Msg("Dropping unusable analysis result")
		return nil
	}

	inserted, err := n.schedules.InsertTerminal(ctx, record)
	if err != nil {
		return err
	}
	if !inserted {
		// A concurrent redelivery won the insert; nothing left to do.
		n.logger.Debug().Int64("email_id", result.EmailID).Msg("Schedule already recorded")
		return nil
	}

	n.logger.Info().
		Int64("email_id", result.EmailID).
		Str("status", record.Status).
		Msg("Schedule recorded")

	if record.Status != models.ScheduleStatusSuccess {
		return nil
	}

	// Best-effort downstream: the schedule status reflects only the
	// extraction outcome and stays committed whatever happens below.
	artifact, err := n.builder.CreateSingle(ctx, result.EmailID, "")
	if err != nil {
		n.logger.Error().Err(err).Int64("email_id", result.EmailID).Msg("Artifact creation failed after schedule commit")
		return nil
	}
	n.dispatch(ctx, record, artifact)
	return nil
}

// buildRecord converts a validated result event into a terminal record
func (n *Notifier) buildRecord(ctx context.Context, result *events.EmailAnalysisResult) (*models.ScheduleRecord, error) {
	record := &models.ScheduleRecord{EmailID: result.EmailID}

	if result.Status == events.StatusSuccess {
		startAt, err := events.ParseEventTime(result.ParsedStartAt)
		if err != nil {
			return nil, err
		}
		endAt, err := events.ParseEventTime(result.ParsedEndAt)
		if err != nil {
			return nil, err
		}
		record.Status = models.ScheduleStatusSuccess
		record.ParsedTitle = &result.ParsedTitle
		record.ParsedStartAt = &startAt
		record.ParsedEndAt = &endAt
		record.ParsedLocation = &result.ParsedLocation
		return record, nil
	}

	record.Status = models.ScheduleStatusFailed
	record.FailureReason = &result.FailureReason
	// Keep the offending body with the failure for later inspection.
	if email, err := n.emails.Get(ctx, result.EmailID); err == nil {
		record.EmailContent = &email.Body
	}
	return record, nil
}

// dispatch mails the artifact back to the original sender, fire-and-forget
func (n *Notifier) dispatch(ctx context.Context, record *models.ScheduleRecord, artifact *models.CalendarArtifact) {
	email, err := n.emails.Get(ctx, record.EmailID)
	if err != nil {
		n.logger.Warn().Err(err).Int64("email_id", record.EmailID).Msg("No stored email for dispatch, skipping")
		return
	}

	title := ""
	if record.ParsedTitle != nil {
		title = *record.ParsedTitle
	}
	summary := fmt.Sprintf("Your meeting %q has been added to a calendar file.\n\nStart: %s\nEnd: %s\nLocation: %s\n",
		title,
		timeString(record.ParsedStartAt),
		timeString(record.ParsedEndAt),
		strOrDash(record.ParsedLocation))

	subject := "Calendar invitation: " + title
	if err := n.dispatcher.SendSchedule(email.SenderEmail, subject, summary, artifact.FileData, artifact.Filename); err != nil {
		n.logger.Error().Err(err).
			Int64("email_id", record.EmailID).
			Str("recipient", email.SenderEmail).
			Msg("Dispatch failed after artifact creation")
		return
	}

	n.logger.Info().
		Int64("email_id", record.EmailID).
		Str("recipient", email.SenderEmail).
		Msg("Calendar invitation dispatched")
}

func timeString(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02 15:04")
}

func strOrDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
