package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/luisf-nog/h2link-mailer/internal/cache"
	"github.com/luisf-nog/h2link-mailer/internal/client"
	"github.com/luisf-nog/h2link-mailer/internal/mail"
	"github.com/luisf-nog/h2link-mailer/internal/model"
	"github.com/luisf-nog/h2link-mailer/internal/repo"
)

// breakerThreshold is the consecutive-error count at which a user's
// remaining queue is paused instead of burned through.
const breakerThreshold = 3

// Result summarizes one user's batch.
type Result struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

// CronResult is Result aggregated over a scheduled sweep.
type CronResult struct {
	Result
	UsersTouched int `json:"usersTouched"`
}

// ProcessorDeps wires the processor to its collaborators. History and
// Resumes may be nil; the pipeline degrades rather than fails.
type ProcessorDeps struct {
	Queue       repo.QueueRepository
	Profiles    repo.ProfileRepository
	Templates   repo.TemplateRepository
	Credentials repo.CredentialRepository
	Jobs        repo.JobRepository
	Gate        *Gate
	History     cache.SendHistory
	Resumes     *client.ResumeFetcher
	Log         *slog.Logger

	PixelBaseURL  string
	CronPerUser   int
	CronUserLimit int
	StaleAfter    time.Duration
}

// Processor drains a user's pending queue: claim, build, send, record.
type Processor struct {
	deps ProcessorDeps
	log  *slog.Logger

	// swappable for tests
	send              func(ctx context.Context, p client.SendParams) error
	sleep             func(ctx context.Context, d time.Duration)
	now               func() time.Time
	pickTemplate      func(n int) int
	validateRecipient func(address string) error
}

func NewProcessor(deps ProcessorDeps) *Processor {
	return &Processor{
		deps:              deps,
		log:               deps.Log,
		send:              client.SendMail,
		sleep:             sleepCtx,
		now:               time.Now,
		pickTemplate:      rand.Intn,
		validateRecipient: mail.ValidateRecipient,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// ProcessUser works through up to maxItems of one user's pending queue.
// A non-empty ids slice restricts the batch to those items. Precondition
// failures (incomplete profile, no template, no credentials) surface on
// exactly one queue item so the user sees why nothing is moving.
func (p *Processor) ProcessUser(ctx context.Context, userID string, maxItems int, ids []string) (Result, error) {
	state, err := p.deps.Profiles.SendingState(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	if !state.PlanTier.Paid() {
		return Result{}, nil
	}

	decision, err := p.deps.Gate.Check(ctx, state)
	if err != nil {
		return Result{}, err
	}
	if decision.Deferred {
		p.log.Info("outside sending window, deferring",
			"user_id", userID, "timezone", state.Timezone)
		return Result{}, nil
	}

	if !state.ProfileComplete() {
		return p.failFirstPending(ctx, userID, "incomplete profile (name/age/phone/contact email)")
	}

	templates, err := p.deps.Templates.ListByUser(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	if len(templates) == 0 {
		return p.failFirstPending(ctx, userID, "no email template configured")
	}

	cred, err := p.deps.Credentials.ForUser(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	if cred == nil || cred.Password == "" {
		return p.failFirstPending(ctx, userID, "smtp credentials not configured")
	}

	items, err := p.deps.Queue.PendingForUser(ctx, userID, maxItems, ids)
	if err != nil {
		return Result{}, err
	}

	var res Result
	used := decision.UsedToday
	consecutiveErrors := state.ConsecutiveErrors

	for i, item := range items {
		if consecutiveErrors >= breakerThreshold {
			paused, err := p.deps.Queue.PauseAllPending(ctx, userID,
				fmt.Sprintf("paused after %d consecutive send errors", consecutiveErrors))
			if err != nil {
				return res, err
			}
			if err := p.deps.Profiles.DowngradeWarmup(ctx, userID); err != nil {
				p.log.Warn("warm-up downgrade failed", "user_id", userID, "error", err)
			}
			p.log.Warn("circuit breaker tripped",
				"user_id", userID, "consecutive_errors", consecutiveErrors, "paused", paused)
			break
		}

		if used >= decision.EffectiveLimit {
			reason := fmt.Sprintf("daily limit reached (%d/day)", decision.EffectiveLimit)
			if err := p.deps.Queue.MarkFailed(ctx, item.ID, reason); err != nil {
				return res, err
			}
			res.Processed++
			res.Failed++
			break
		}

		claimed, err := p.deps.Queue.Claim(ctx, item.ID)
		if err != nil {
			return res, err
		}
		if !claimed {
			continue
		}

		profile := PickSendProfile(state.PlanTier)
		trackingID := uuid.NewString()
		res.Processed++

		recipient, sendErr := p.attempt(ctx, state, cred, templates, profile, item, trackingID)
		if sendErr == nil {
			res.Sent++
			if err := p.deps.Queue.MarkSent(ctx, item.ID); err != nil {
				return res, err
			}
			p.record(ctx, userID, cache.SendRecord{
				QueueItemID: item.ID,
				Recipient:   recipient,
				Success:     true,
				TrackingID:  trackingID,
				At:          p.now().UTC(),
			})
			if used, err = p.deps.Gate.Commit(ctx, userID); err != nil {
				return res, err
			}
			if consecutiveErrors != 0 {
				if err := p.deps.Profiles.ResetConsecutiveErrors(ctx, userID); err != nil {
					p.log.Warn("resetting error counter failed", "user_id", userID, "error", err)
				} else {
					consecutiveErrors = 0
				}
			}
			p.log.Info("application sent",
				"user_id", userID, "queue_item", item.ID, "used_today", used)
		} else {
			res.Failed++
			if err := p.deps.Queue.MarkFailed(ctx, item.ID, sendErr.Error()); err != nil {
				return res, err
			}
			p.record(ctx, userID, cache.SendRecord{
				QueueItemID: item.ID,
				Recipient:   recipient,
				Error:       sendErr.Error(),
				TrackingID:  trackingID,
				At:          p.now().UTC(),
			})
			kind := ClassifySendError(sendErr)
			if kind.Breaking() {
				if n, err := p.deps.Profiles.IncrementConsecutiveErrors(ctx, userID); err != nil {
					p.log.Warn("incrementing error counter failed", "user_id", userID, "error", err)
				} else {
					consecutiveErrors = n
				}
			}
			p.log.Warn("send failed",
				"user_id", userID, "queue_item", item.ID, "error", sendErr, "breaking", kind.Breaking())
		}

		if i < len(items)-1 && profile.Delay > 0 {
			p.sleep(ctx, profile.Delay)
		}
	}

	return res, nil
}

// ProcessCron sweeps every paid user: release abandoned claims, then run a
// small batch per user. One user's failure never stops the sweep.
func (p *Processor) ProcessCron(ctx context.Context) (CronResult, error) {
	if p.deps.StaleAfter > 0 {
		released, err := p.deps.Queue.ReleaseStale(ctx, p.deps.StaleAfter)
		if err != nil {
			p.log.Error("releasing stale claims failed", "error", err)
		} else if released > 0 {
			p.log.Info("released stale claims", "count", released)
		}
	}

	userIDs, err := p.deps.Profiles.ListPaidUserIDs(ctx, p.deps.CronUserLimit)
	if err != nil {
		return CronResult{}, err
	}

	var out CronResult
	for _, uid := range userIDs {
		res, err := p.ProcessUser(ctx, uid, p.deps.CronPerUser, nil)
		if err != nil {
			p.log.Error("cron batch failed for user", "user_id", uid, "error", err)
			continue
		}
		out.Processed += res.Processed
		out.Sent += res.Sent
		out.Failed += res.Failed
		if res.Processed > 0 {
			out.UsersTouched++
		}
	}
	return out, nil
}

// attempt builds and sends one message. A panic anywhere inside becomes an
// ordinary error so one poisoned item cannot take down the batch.
func (p *Processor) attempt(
	ctx context.Context,
	state *model.SendingState,
	cred *model.SMTPCredential,
	templates []model.EmailTemplate,
	profile SendProfile,
	item model.QueueItem,
	trackingID string,
) (recipient string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during send: %v", r)
		}
	}()
	return p.sendItem(ctx, state, cred, templates, profile, item, trackingID)
}

func (p *Processor) sendItem(
	ctx context.Context,
	state *model.SendingState,
	cred *model.SMTPCredential,
	templates []model.EmailTemplate,
	profile SendProfile,
	item model.QueueItem,
	trackingID string,
) (string, error) {
	job, err := p.loadJob(ctx, item)
	if err != nil {
		return "", err
	}

	if err := p.validateRecipient(job.Email); err != nil {
		return job.Email, err
	}

	tpl := p.selectTemplate(state.PlanTier, templates)
	vars := templateVars(state, job)

	subject := RenderTemplate(tpl.Subject, vars)
	body := HTMLBody(RenderTemplate(tpl.Body, vars))
	if strings.TrimSpace(body) == "" {
		return job.Email, fmt.Errorf("template %s rendered an empty body", tpl.ID)
	}

	if p.deps.PixelBaseURL != "" {
		body += fmt.Sprintf(
			`<img src="%s/t/%s.png" width="1" height="1" style="display:none" alt="">`,
			strings.TrimRight(p.deps.PixelBaseURL, "/"), trackingID)
	}
	if profile.DedupeToken != "" {
		body += fmt.Sprintf(`<div style="display:none">%s</div>`, profile.DedupeToken)
	}

	msg := mail.Message{
		From:         cred.Email,
		To:           job.Email,
		Subject:      subject,
		HTMLBody:     body,
		ExtraHeaders: profile.Headers(),
	}

	if state.ResumeURL != "" && p.deps.Resumes != nil {
		att, err := p.deps.Resumes.Fetch(ctx, state.ResumeURL)
		if err != nil {
			p.log.Warn("resume fetch failed, sending without attachment",
				"user_id", state.UserID, "error", err)
		} else {
			msg.Attachment = att
		}
	}

	err = p.send(ctx, client.SendParams{
		Provider: client.LookupProvider(cred.Provider),
		Username: cred.Email,
		Password: cred.Password,
		To:       job.Email,
		Message:  mail.Build(msg),
	})
	return job.Email, err
}

func (p *Processor) loadJob(ctx context.Context, item model.QueueItem) (*model.Job, error) {
	switch {
	case item.JobID != nil:
		return p.deps.Jobs.PublicJob(ctx, *item.JobID)
	case item.ManualJobID != nil:
		return p.deps.Jobs.ManualJob(ctx, *item.ManualJobID)
	default:
		return nil, fmt.Errorf("queue item %s references no job", item.ID)
	}
}

// selectTemplate rotates templates for the tiers that send at volume and
// sticks to the newest one for everyone else.
func (p *Processor) selectTemplate(tier model.PlanTier, templates []model.EmailTemplate) model.EmailTemplate {
	if (tier == model.TierDiamond || tier == model.TierBlack) && len(templates) > 1 {
		return templates[p.pickTemplate(len(templates))]
	}
	return templates[0]
}

func templateVars(state *model.SendingState, job *model.Job) map[string]string {
	age := ""
	if state.Age != nil {
		age = strconv.Itoa(*state.Age)
	}
	visa := "H-2B"
	if strings.Contains(job.VisaType, "2A") {
		visa = "H-2A"
	}
	return map[string]string{
		"name":          state.FullName,
		"age":           age,
		"phone":         state.PhoneE164,
		"contact_email": state.ContactEmail,
		"company":       job.Company,
		"position":      job.JobTitle,
		"visa_type":     visa,
		"eta_number":    job.ETANumber,
		"company_phone": job.Phone,
		"job_phone":     job.Phone,
	}
}

// failFirstPending marks the oldest pending item failed with reason, so a
// terminal configuration problem is visible on the queue itself.
func (p *Processor) failFirstPending(ctx context.Context, userID, reason string) (Result, error) {
	id, ok, err := p.deps.Queue.FirstPendingID(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, nil
	}
	if err := p.deps.Queue.MarkFailed(ctx, id, reason); err != nil {
		return Result{}, err
	}
	p.log.Warn("queue blocked by configuration", "user_id", userID, "reason", reason)
	return Result{Processed: 1, Failed: 1}, nil
}

func (p *Processor) record(ctx context.Context, userID string, rec cache.SendRecord) {
	if p.deps.History == nil {
		return
	}
	if err := p.deps.History.Record(ctx, userID, rec); err != nil {
		p.log.Warn("send history record failed", "user_id", userID, "error", err)
	}
}
