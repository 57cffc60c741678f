package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/luisf-nog/h2link-mailer/internal/model"
)

type PostgresProfileRepo struct {
	db *sql.DB
}

func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

func (r *PostgresProfileRepo) SendingState(ctx context.Context, userID string) (*model.SendingState, error) {
	var s model.SendingState
	var tier string
	var fullName, phone, contactEmail, resumeURL, resetDate, timezone sql.NullString
	var age sql.NullInt64

	err := r.db.QueryRowContext(ctx, `
		SELECT id, plan_tier, full_name, age, phone, contact_email, resume_url,
		       credits_used_today, credits_reset_date::text,
		       consecutive_send_errors, referral_bonus_limit, timezone
		FROM profiles
		WHERE id = $1
	`, userID).Scan(
		&s.UserID,
		&tier,
		&fullName,
		&age,
		&phone,
		&contactEmail,
		&resumeURL,
		&s.CreditsUsedToday,
		&resetDate,
		&s.ConsecutiveErrors,
		&s.ReferralBonusLimit,
		&timezone,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s not found", userID)
	}
	if err != nil {
		return nil, err
	}

	s.PlanTier = model.PlanTier(tier)
	s.FullName = fullName.String
	s.PhoneE164 = phone.String
	s.ContactEmail = contactEmail.String
	s.ResumeURL = resumeURL.String
	s.CreditsResetDate = resetDate.String
	s.Timezone = timezone.String
	if age.Valid {
		a := int(age.Int64)
		s.Age = &a
	}
	return &s, nil
}

func (r *PostgresProfileRepo) PlanTier(ctx context.Context, userID string) (model.PlanTier, error) {
	var tier string
	err := r.db.QueryRowContext(ctx, `
		SELECT plan_tier FROM profiles WHERE id = $1
	`, userID).Scan(&tier)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TierFree, fmt.Errorf("profile %s not found", userID)
	}
	if err != nil {
		return model.TierFree, err
	}
	return model.PlanTier(tier), nil
}

func (r *PostgresProfileRepo) ResetDailyCredits(ctx context.Context, userID, date string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE profiles
		SET credits_used_today = 0,
		    credits_reset_date = $2::date
		WHERE id = $1
	`, userID, date)
	return err
}

// IncrementCreditsUsed bumps the counter in the database, not in Go, so
// concurrent invocations cannot lose updates.
func (r *PostgresProfileRepo) IncrementCreditsUsed(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		UPDATE profiles
		SET credits_used_today = credits_used_today + 1
		WHERE id = $1
		RETURNING credits_used_today
	`, userID).Scan(&n)
	return n, err
}

func (r *PostgresProfileRepo) IncrementConsecutiveErrors(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		UPDATE profiles
		SET consecutive_send_errors = consecutive_send_errors + 1
		WHERE id = $1
		RETURNING consecutive_send_errors
	`, userID).Scan(&n)
	return n, err
}

func (r *PostgresProfileRepo) ResetConsecutiveErrors(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE profiles
		SET consecutive_send_errors = 0
		WHERE id = $1
	`, userID)
	return err
}

func (r *PostgresProfileRepo) EffectiveDailyLimit(ctx context.Context, userID string) (int, error) {
	var limit sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT get_effective_daily_limit($1)
	`, userID).Scan(&limit)
	if err != nil {
		return 0, err
	}
	if !limit.Valid {
		return 0, nil
	}
	return int(limit.Int64), nil
}

func (r *PostgresProfileRepo) DowngradeWarmup(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		SELECT downgrade_warmup_stage($1)
	`, userID)
	return err
}

func (r *PostgresProfileRepo) ListPaidUserIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id
		FROM profiles
		WHERE plan_tier IN ('gold', 'diamond')
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
