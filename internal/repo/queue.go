package repo

import (
	"context"
	"time"

	"github.com/luisf-nog/h2link-mailer/internal/model"
)

// QueueRepository owns the my_queue status machine. Claim is the only
// concurrency-control primitive in the system: it must be a single
// conditional update so two overlapping invocations can never both send
// the same item.
type QueueRepository interface {
	// PendingForUser returns up to limit pending items, oldest first.
	// A non-empty ids slice restricts the result to those items.
	PendingForUser(ctx context.Context, userID string, limit int, ids []string) ([]model.QueueItem, error)
	// FirstPendingID returns the oldest pending item, used to surface
	// terminal precondition failures on exactly one row.
	FirstPendingID(ctx context.Context, userID string) (string, bool, error)
	// Claim transitions pending → processing; false means another
	// invocation already holds the row.
	Claim(ctx context.Context, id string) (bool, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, reason string) error
	// PauseAllPending flips every remaining pending item for the user to
	// paused. Paused items are only ever resumed by an explicit user
	// action elsewhere in the product.
	PauseAllPending(ctx context.Context, userID, reason string) (int64, error)
	// ReleaseStale returns processing items abandoned by a crashed
	// invocation to pending.
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error)
}
