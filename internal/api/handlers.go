package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/luisf-nog/h2link-mailer/internal/model"
	"github.com/luisf-nog/h2link-mailer/internal/repo"
	"github.com/luisf-nog/h2link-mailer/internal/scheduler"
	"github.com/luisf-nog/h2link-mailer/internal/service"
)

// QueueProcessor is the slice of the service layer the API needs.
type QueueProcessor interface {
	ProcessUser(ctx context.Context, userID string, maxItems int, ids []string) (service.Result, error)
	ProcessCron(ctx context.Context) (service.CronResult, error)
}

// TierLookup resolves a caller's plan before any queue work starts.
type TierLookup interface {
	PlanTier(ctx context.Context, userID string) (model.PlanTier, error)
}

// maxRequestIDs bounds how many queue item ids one request may target.
const maxRequestIDs = 50

type Handler struct {
	proc     QueueProcessor
	tiers    TierLookup
	settings repo.SettingsRepository
	sched    *scheduler.Scheduler
	log      *slog.Logger

	jwtSecret []byte
	userBatch int
}

func NewHandler(
	proc QueueProcessor,
	tiers TierLookup,
	settings repo.SettingsRepository,
	sched *scheduler.Scheduler,
	log *slog.Logger,
	jwtSecret []byte,
	userBatch int,
) *Handler {
	return &Handler{
		proc:      proc,
		tiers:     tiers,
		settings:  settings,
		sched:     sched,
		log:       log,
		jwtSecret: jwtSecret,
		userBatch: userBatch,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

type processRequest struct {
	IDs []string `json:"ids"`
}

// ProcessQueue is the single trigger for queue work. A valid X-Cron-Token
// runs the scheduled sweep over every paid user; otherwise the bearer
// token's owner gets one batch of their own queue.
func (h *Handler) ProcessQueue(w http.ResponseWriter, r *http.Request) {
	if token := r.Header.Get("X-Cron-Token"); token != "" {
		h.processCron(w, r, token)
		return
	}
	h.processUser(w, r)
}

func (h *Handler) processCron(w http.ResponseWriter, r *http.Request, token string) {
	expected, err := h.settings.CronToken(r.Context())
	if err != nil {
		h.log.Error("cron token lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if expected == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid cron token")
		return
	}

	res, err := h.proc.ProcessCron(r.Context())
	if err != nil {
		h.log.Error("cron sweep failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":           true,
		"mode":         "cron",
		"processed":    res.Processed,
		"sent":         res.Sent,
		"failed":       res.Failed,
		"usersTouched": res.UsersTouched,
	})
}

func (h *Handler) processUser(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromRequest(r, h.jwtSecret)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	tier, err := h.tiers.PlanTier(r.Context(), userID)
	if err != nil {
		h.log.Error("plan lookup failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !tier.Paid() {
		writeError(w, http.StatusForbidden, "queue processing requires a paid plan")
		return
	}

	var req processRequest
	// An empty or absent body means "next default batch".
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) > maxRequestIDs {
		req.IDs = req.IDs[:maxRequestIDs]
	}

	maxItems := h.userBatch
	if len(req.IDs) > 0 {
		maxItems = len(req.IDs)
	}

	res, err := h.proc.ProcessUser(r.Context(), userID, maxItems, req.IDs)
	if err != nil {
		h.log.Error("queue batch failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"mode":      "user",
		"processed": res.Processed,
		"sent":      res.Sent,
		"failed":    res.Failed,
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
