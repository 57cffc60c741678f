package repo

import (
	"context"

	"github.com/luisf-nog/h2link-mailer/internal/model"
)

// ProfileRepository reads per-user sending state and mutates its counters.
// Counter updates are single atomic SQL increments; the warm-up procedures
// are opaque and their return values trusted as-is.
type ProfileRepository interface {
	SendingState(ctx context.Context, userID string) (*model.SendingState, error)
	PlanTier(ctx context.Context, userID string) (model.PlanTier, error)
	// ResetDailyCredits zeroes the counter and stamps the reset date,
	// persisted before any limit comparison on day rollover.
	ResetDailyCredits(ctx context.Context, userID, date string) error
	IncrementCreditsUsed(ctx context.Context, userID string) (int, error)
	IncrementConsecutiveErrors(ctx context.Context, userID string) (int, error)
	ResetConsecutiveErrors(ctx context.Context, userID string) error
	// EffectiveDailyLimit calls the warm-up stored procedure; zero means
	// the procedure had nothing to say and the caller falls back to the
	// plan cap.
	EffectiveDailyLimit(ctx context.Context, userID string) (int, error)
	// DowngradeWarmup notifies the warm-up machinery that the circuit
	// breaker paused this user.
	DowngradeWarmup(ctx context.Context, userID string) error
	// ListPaidUserIDs returns users eligible for a scheduled run.
	ListPaidUserIDs(ctx context.Context, limit int) ([]string, error)
}
