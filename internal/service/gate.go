package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/luisf-nog/h2link-mailer/internal/model"
	"github.com/luisf-nog/h2link-mailer/internal/repo"
)

// GateDecision is the outcome of the daily-limit and sending-window checks
// before a batch starts.
type GateDecision struct {
	// Allowed means at least one more send is permitted right now.
	Allowed bool
	// Deferred means the user is outside their sending window; pending
	// items stay pending and nothing is recorded against them.
	Deferred bool
	// EffectiveLimit is today's cap after warm-up and referral bonus.
	EffectiveLimit int
	// UsedToday is the counter after any day-rollover reset.
	UsedToday int
}

// Gate enforces per-user daily limits, warm-up caps and the diamond-tier
// sending window.
type Gate struct {
	profiles repo.ProfileRepository
	log      *slog.Logger

	now func() time.Time
}

func NewGate(profiles repo.ProfileRepository, log *slog.Logger) *Gate {
	return &Gate{
		profiles: profiles,
		log:      log,
		now:      time.Now,
	}
}

// Check resolves the day rollover, today's effective limit and the sending
// window. The rollover reset is persisted before any limit comparison so a
// crash cannot leave yesterday's counter gating today's sends.
func (g *Gate) Check(ctx context.Context, state *model.SendingState) (GateDecision, error) {
	today := g.now().UTC().Format("2006-01-02")
	if state.CreditsResetDate != today {
		if err := g.profiles.ResetDailyCredits(ctx, state.UserID, today); err != nil {
			return GateDecision{}, err
		}
		state.CreditsUsedToday = 0
		state.CreditsResetDate = today
	}

	limit := state.PlanTier.DailyLimit()
	if state.PlanTier.Paid() {
		limit += state.ReferralBonusLimit
		if eff, err := g.profiles.EffectiveDailyLimit(ctx, state.UserID); err != nil {
			// The warm-up procedure failing should not block sends.
			g.log.Warn("effective daily limit lookup failed", "user_id", state.UserID, "error", err)
		} else if eff > 0 {
			limit = eff
		}
	}

	if state.PlanTier == model.TierDiamond && !WithinSendingWindow(state.Timezone, g.now()) {
		return GateDecision{Deferred: true, EffectiveLimit: limit, UsedToday: state.CreditsUsedToday}, nil
	}

	return GateDecision{
		Allowed:        state.CreditsUsedToday < limit,
		EffectiveLimit: limit,
		UsedToday:      state.CreditsUsedToday,
	}, nil
}

// Commit records one successful send and returns the new counter value.
func (g *Gate) Commit(ctx context.Context, userID string) (int, error) {
	return g.profiles.IncrementCreditsUsed(ctx, userID)
}

// WithinSendingWindow reports whether now falls in the 08:00–19:00 local
// window. An unknown timezone falls back to UTC rather than blocking the
// user entirely.
func WithinSendingWindow(tz string, now time.Time) bool {
	loc := time.UTC
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	h := now.In(loc).Hour()
	return h >= 8 && h < 19
}
