package model

import "time"

type Status string

const (
	Pending    Status = "pending"
	Processing Status = "processing"
	Sent       Status = "sent"
	Failed     Status = "failed"
	Paused     Status = "paused"
)

// QueueItem is one user's intent to apply to one job by email.
// Exactly one of JobID / ManualJobID is set, depending on the job source.
type QueueItem struct {
	ID                  string
	UserID              string
	JobID               *string
	ManualJobID         *string
	Status              Status
	SentAt              *time.Time
	LastError           *string
	LastAttemptAt       *time.Time
	ProcessingStartedAt *time.Time
	CreatedAt           time.Time
}
