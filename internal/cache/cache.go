package cache

import (
	"context"
	"time"
)

// SendRecord is the per-attempt entry appended to a user's send history.
type SendRecord struct {
	QueueItemID string
	Recipient   string
	Success     bool
	Error       string
	TrackingID  string
	At          time.Time
}

// SendHistory records every send attempt. Failures to record never block
// the pipeline; callers log and move on.
type SendHistory interface {
	Record(ctx context.Context, userID string, rec SendRecord) error
}
