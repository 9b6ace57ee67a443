package models

import "time"

// HealthResponse represents a basic health check response
// @Description Health check response
type HealthResponse struct {
	Status    string    `json:"status" example:"healthy"`                 // Health status
	Timestamp time.Time `json:"timestamp" example:"2023-01-01T00:00:00Z"` // Timestamp of the check
	Version   string    `json:"version" example:"1.0.0"`                  // Application version
}

// DBHealthResponse represents a database health check response
// @Description Database health check response
type DBHealthResponse struct {
	Status    string        `json:"status" example:"healthy"`                   // Health status
	Timestamp time.Time     `json:"timestamp" example:"2023-01-01T00:00:00Z"`   // Timestamp of the check
	Connected bool          `json:"connected" example:"true"`                   // Database connection status
	Latency   time.Duration `json:"latency" swaggertype:"string" example:"1ms"` // Database ping latency
	Schedules int           `json:"schedules" example:"42"`                     // Recorded schedule rows
	Error     string        `json:"error,omitempty" example:""`                 // Error message if any
}

// CreateArtifactRequest is the management payload for creating an artifact
// @Description Calendar artifact creation request
type CreateArtifactRequest struct {
	Scope        string               `json:"scope" example:"SINGLE"`  // SINGLE or GROUP
	ScheduleID   int64                `json:"schedule_id,omitempty"`   // Required for SINGLE scope
	RepeatType   string               `json:"repeat_type,omitempty"`   // Optional recurrence (DAILY, WEEKLY, MONTHLY, YEARLY)
	CalendarID   int64                `json:"calendar_id,omitempty"`   // Required for GROUP scope
	GroupID      int64                `json:"group_id,omitempty"`      // Required for GROUP scope
	CalendarName string               `json:"calendar_name,omitempty"` // Display name of the group calendar
	Schedules    []GroupScheduleEntry `json:"schedules,omitempty"`     // Optional group events; empty yields a placeholder
}

// GroupScheduleEntry is one event in a group artifact creation request
type GroupScheduleEntry struct {
	ScheduleID  int64     `json:"schedule_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
}

// SendArtifactRequest asks for a stored artifact to be mailed to a recipient
// @Description Manual artifact dispatch request
type SendArtifactRequest struct {
	Recipient string `json:"recipient" example:"dana@example.com"` // Destination address
	Subject   string `json:"subject,omitempty" example:"Calendar invitation"`
	Message   string `json:"message,omitempty" example:"Your calendar file is attached."`
}

// UpdateArtifactRequest carries the mutable metadata fields of an artifact.
// The stored bytes are immutable and cannot be patched.
type UpdateArtifactRequest struct {
	Filename string `json:"filename" example:"meeting.ics"`
}

// ErrorResponse is a generic error payload
// @Description Error response
type ErrorResponse struct {
	Error string `json:"error" example:"artifact not found"`
}

// MessageResponse is a generic confirmation payload
// @Description Confirmation response
type MessageResponse struct {
	Message string `json:"message" example:"ok"`
}

// InboxCheckResponse reports the outcome of a manual inbox check
// @Description Inbox check response
type InboxCheckResponse struct {
	Published int    `json:"published" example:"2"` // Analysis requests published
	Message   string `json:"message" example:"inbox check complete"`
}
