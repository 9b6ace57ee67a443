package models

import "time"

// Schedule record statuses. PENDING is implicit: a schedule without a row has
// not reached a terminal state yet. Transitions happen exactly once.
const (
	ScheduleStatusPending = "PENDING"
	ScheduleStatusSuccess = "SUCCESS"
	ScheduleStatusFailed  = "FAILED"
)

// Calendar artifact scopes.
const (
	ScopeSingle = "SINGLE"
	ScopeGroup  = "GROUP"
)

// ScheduleRecord is the persisted outcome of one email analysis, keyed by the
// email id. Rows are never deleted; they are the audit trail of the pipeline.
type ScheduleRecord struct {
	EmailID        int64      `db:"email_id" json:"email_id"`
	Status         string     `db:"status" json:"status"`
	ParsedTitle    *string    `db:"parsed_title" json:"parsed_title,omitempty"`
	ParsedStartAt  *time.Time `db:"parsed_start_at" json:"parsed_start_at,omitempty"`
	ParsedEndAt    *time.Time `db:"parsed_end_at" json:"parsed_end_at,omitempty"`
	ParsedLocation *string    `db:"parsed_location" json:"parsed_location,omitempty"`
	FailureReason  *string    `db:"failure_reason" json:"failure_reason,omitempty"`
	EmailContent   *string    `db:"email_content" json:"email_content,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// CalendarArtifact is one immutable stored calendar file. "Updates" to the
// calendar insert a new row; the current artifact for a key is the most
// recently created row.
type CalendarArtifact struct {
	ID         int64     `db:"id" json:"id"`
	Scope      string    `db:"scope" json:"scope"`
	ScheduleID *int64    `db:"schedule_id" json:"schedule_id,omitempty"`
	CalendarID *int64    `db:"calendar_id" json:"calendar_id,omitempty"`
	GroupID    *int64    `db:"group_id" json:"group_id,omitempty"`
	Filename   string    `db:"filename" json:"filename"`
	FileData   []byte    `db:"file_data" json:"-"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// InboundEmail is a normalized email persisted by the inbox poller. The
// message id deduplicates repeated polls of the same Gmail message.
type InboundEmail struct {
	ID          int64     `db:"id" json:"id"`
	MessageID   string    `db:"message_id" json:"message_id"`
	Subject     string    `db:"subject" json:"subject"`
	SenderName  string    `db:"sender_name" json:"sender_name"`
	SenderEmail string    `db:"sender_email" json:"sender_email"`
	To          string    `db:"to_addr" json:"to"`
	CC          string    `db:"cc_addr" json:"cc"`
	Body        string    `db:"body" json:"body"`
	Date        string    `db:"date" json:"date"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
