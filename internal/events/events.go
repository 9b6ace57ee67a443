// Package events defines the topics and payload contracts shared by every
// mailcal service. Delivery is at-least-once: consumers must stay idempotent.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Topic names. Messages are keyed by the correlating identifier (email_id or
// calendarId) so events for the same key land on the same partition.
const (
	TopicEmailAnalysisRequest       = "email.analysis.request"
	TopicEmailAnalysisResult        = "email.analysis.result"
	TopicScheduleCreate             = "schedule.create"
	TopicCalendarICSRequested       = "calendar.ics.requested"
	TopicCalendarICSCreated         = "calendar.ics.created"
	TopicCalendarICSDeleteRequested = "calendar.ics.delete.requested"
)

// Analysis result statuses carried on the wire.
const (
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
)

// TimeLayout is the timestamp format used inside event payloads.
const TimeLayout = "2006-01-02T15:04:05"

// ErrInvalidPayload marks a malformed or incomplete event payload. Messages
// failing with it are dropped and logged, never retried.
var ErrInvalidPayload = errors.New("invalid event payload")

// EmailAnalysisRequest asks for meeting extraction from one inbound email.
// Produced once per email; immutable; not persisted beyond transit.
type EmailAnalysisRequest struct {
	EmailID     int64  `json:"email_id"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	SenderName  string `json:"sender_name"`
	SenderEmail string `json:"sender_email"`
	To          string `json:"to"`
	CC          string `json:"cc"`
	Date        string `json:"date"`
}

// EmailAnalysisResult is the terminal outcome of one analysis request.
// Exactly one is emitted per request, regardless of outcome.
type EmailAnalysisResult struct {
	EmailID        int64  `json:"email_id"`
	ParsedTitle    string `json:"parsedTitle"`
	ParsedStartAt  string `json:"parsedStartAt"`
	ParsedEndAt    string `json:"parsedEndAt"`
	ParsedLocation string `json:"parsedLocation"`
	Status         string `json:"status"`
	FailureReason  string `json:"failureReason,omitempty"`
}

// ScheduleCreate requests an artifact (re)build for a resolved schedule.
type ScheduleCreate struct {
	EmailID     int64  `json:"email_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	StartAt     string `json:"start_at"`
	EndAt       string `json:"end_at"`
	Location    string `json:"location,omitempty"`
	Status      string `json:"status"`
	RepeatType  string `json:"repeat_type"`
}

// ScheduleEntry is one event inside a group calendar request. Timestamps are
// carried as strings and parsed with ParseEventTime, same as analysis results,
// so producers may omit the zone offset.
type ScheduleEntry struct {
	ScheduleID  int64  `json:"scheduleId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	StartAt     string `json:"startAt"`
	EndAt       string `json:"endAt"`
}

// CalendarICSRequested asks for a group calendar artifact. An empty schedule
// list is valid and yields a placeholder calendar.
type CalendarICSRequested struct {
	CalendarID   int64           `json:"calendarId"`
	CalendarName string          `json:"calendarName"`
	GroupID      int64           `json:"groupId,omitempty"`
	Schedules    []ScheduleEntry `json:"schedules"`
}

// CalendarICSCreated announces a stored group calendar artifact.
type CalendarICSCreated struct {
	CalendarID      int64  `json:"calendarId"`
	SubscriptionURL string `json:"subscriptionUrl"`
}

// CalendarICSDeleteRequested asks for removal of a group calendar.
type CalendarICSDeleteRequested struct {
	CalendarID int64 `json:"calendarId"`
}

// DecodeEmailAnalysisRequest parses and validates a request payload.
func DecodeEmailAnalysisRequest(data []byte) (*EmailAnalysisRequest, error) {
	var ev EmailAnalysisRequest
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if ev.EmailID <= 0 {
		return nil, fmt.Errorf("%w: missing email_id", ErrInvalidPayload)
	}
	return &ev, nil
}

// DecodeEmailAnalysisResult parses and validates a result payload. A SUCCESS
// result must carry a title and parseable timestamps.
func DecodeEmailAnalysisResult(data []byte) (*EmailAnalysisResult, error) {
	var ev EmailAnalysisResult
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if ev.EmailID <= 0 {
		return nil, fmt.Errorf("%w: missing email_id", ErrInvalidPayload)
	}
	switch ev.Status {
	case StatusSuccess:
		if ev.ParsedTitle == "" {
			return nil, fmt.Errorf("%w: success result without parsedTitle", ErrInvalidPayload)
		}
		if _, err := ParseEventTime(ev.ParsedStartAt); err != nil {
			return nil, fmt.Errorf("%w: bad parsedStartAt %q", ErrInvalidPayload, ev.ParsedStartAt)
		}
		if _, err := ParseEventTime(ev.ParsedEndAt); err != nil {
			return nil, fmt.Errorf("%w: bad parsedEndAt %q", ErrInvalidPayload, ev.ParsedEndAt)
		}
	case StatusFailure:
		if ev.FailureReason == "" {
			return nil, fmt.Errorf("%w: failure result without failureReason", ErrInvalidPayload)
		}
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidPayload, ev.Status)
	}
	return &ev, nil
}

// DecodeScheduleCreate parses and validates a schedule.create payload.
func DecodeScheduleCreate(data []byte) (*ScheduleCreate, error) {
	var ev ScheduleCreate
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if ev.EmailID <= 0 {
		return nil, fmt.Errorf("%w: missing email_id", ErrInvalidPayload)
	}
	return &ev, nil
}

// DecodeCalendarICSRequested parses and validates a group calendar request.
func DecodeCalendarICSRequested(data []byte) (*CalendarICSRequested, error) {
	var ev CalendarICSRequested
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if ev.CalendarID <= 0 {
		return nil, fmt.Errorf("%w: missing calendarId", ErrInvalidPayload)
	}
	for _, entry := range ev.Schedules {
		if _, err := ParseEventTime(entry.StartAt); err != nil {
			return nil, fmt.Errorf("%w: bad startAt %q for schedule %d", ErrInvalidPayload, entry.StartAt, entry.ScheduleID)
		}
		if _, err := ParseEventTime(entry.EndAt); err != nil {
			return nil, fmt.Errorf("%w: bad endAt %q for schedule %d", ErrInvalidPayload, entry.EndAt, entry.ScheduleID)
		}
	}
	return &ev, nil
}

// DecodeCalendarICSDeleteRequested parses a delete request payload.
func DecodeCalendarICSDeleteRequested(data []byte) (*CalendarICSDeleteRequested, error) {
	var ev CalendarICSDeleteRequested
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if ev.CalendarID <= 0 {
		return nil, fmt.Errorf("%w: missing calendarId", ErrInvalidPayload)
	}
	return &ev, nil
}

// ParseEventTime parses an event payload timestamp. Extraction output uses
// TimeLayout; RFC3339 is accepted for producers that include an offset.
func ParseEventTime(value string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
	}
	return t, nil
}
