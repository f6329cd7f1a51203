package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/finch/internal/alerts"
	"github.com/opensource-finance/finch/internal/domain"
	"github.com/opensource-finance/finch/internal/rewards"
	"github.com/shopspring/decimal"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	ledger  *rewards.Ledger
	alerts  *alerts.Service
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, ledger *rewards.Ledger, alertService *alerts.Service, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		bus:     bus,
		ledger:  ledger,
		alerts:  alertService,
		version: version,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// RecordRewardRequest is the request body for POST /rewards.
type RecordRewardRequest struct {
	BillID      string          `json:"billId,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	OnTime      bool            `json:"onTime"`
	Description string          `json:"description,omitempty"`
}

// RecordRewardResponse is the response for POST /rewards.
type RecordRewardResponse struct {
	Reward  *domain.Reward `json:"reward"`
	Created bool           `json:"created"`
}

// RecordReward handles POST /rewards.
// Recording is idempotent per bill: resubmitting an already-rewarded
// bill returns the existing entry with created=false.
func (h *Handler) RecordReward(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)

	var req RecordRewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	reward, created, err := h.ledger.Record(ctx, rewards.RecordInput{
		UserID:      userID,
		BillID:      req.BillID,
		Amount:      req.Amount,
		Category:    req.Category,
		OnTime:      req.OnTime,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, RecordRewardResponse{Reward: reward, Created: created})
}

// ListRewards handles GET /rewards with optional filter query params.
func (h *Handler) ListRewards(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)

	filter := domain.RewardFilter{
		Category:   r.URL.Query().Get("category"),
		OnTimeOnly: r.URL.Query().Get("onTime") == "true",
		Limit:      queryInt(r, "limit", 0),
		Offset:     queryInt(r, "offset", 0),
	}

	list, err := h.ledger.List(ctx, userID, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rewards": list,
		"count":   len(list),
	})
}

// RewardSummary handles GET /rewards/summary.
func (h *Handler) RewardSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)

	summary, err := h.ledger.Summary(ctx, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// RewardBreakdown handles GET /rewards/breakdown?months=N.
func (h *Handler) RewardBreakdown(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)

	months := queryInt(r, "months", 6)
	breakdown, err := h.ledger.MonthlyBreakdown(ctx, userID, months)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"months": breakdown,
		"count":  len(breakdown),
	})
}

// Tiers handles GET /rewards/tiers. The table is static configuration,
// so the user's progress rides along for convenience.
func (h *Handler) Tiers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)

	total, err := h.ledger.TotalPoints(ctx, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tiers":    rewards.AllTiers(),
		"progress": rewards.Progress(total),
	})
}

// Leaderboard handles GET /rewards/leaderboard?period=weekly&limit=10.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	period := domain.LeaderboardPeriod(r.URL.Query().Get("period"))
	if period == "" {
		period = domain.PeriodWeekly
	}
	limit := queryInt(r, "limit", 10)

	entries, err := h.ledger.Leaderboard(ctx, period, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"period":  period,
		"entries": entries,
		"count":   len(entries),
	})
}

// CheckAlertsResponse is the response for POST /alerts/check.
type CheckAlertsResponse struct {
	Created []*domain.Alert `json:"created"`
	Count   int             `json:"count"`
	TraceID string          `json:"traceId"`
	TotalMs int64           `json:"totalMs"`
}

// CheckAlerts handles POST /alerts/check. Evaluation runs synchronously
// unless async=true, which enqueues the check on the event bus instead.
func (h *Handler) CheckAlerts(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	userID := GetUserID(ctx)
	traceID := GetTraceID(ctx)

	if r.URL.Query().Get("async") == "true" {
		payload, _ := json.Marshal(map[string]string{
			"userId":  userID,
			"traceId": traceID,
		})
		if err := h.bus.Publish(ctx, domain.GlobalScope, domain.TopicAlertCheck, payload); err != nil {
			slog.Error("failed to enqueue alert check", "user_id", userID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to enqueue check",
			})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":  "queued",
			"traceId": traceID,
		})
		return
	}

	created, err := h.alerts.RunChecks(ctx, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CheckAlertsResponse{
		Created: created,
		Count:   len(created),
		TraceID: traceID,
		TotalMs: time.Since(start).Milliseconds(),
	})
}

// ListAlerts handles GET /alerts with optional filter query params.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)

	filter := domain.AlertFilter{
		Status:     domain.AlertStatus(r.URL.Query().Get("status")),
		Type:       domain.AlertType(r.URL.Query().Get("type")),
		UnreadOnly: r.URL.Query().Get("unread") == "true",
		Limit:      queryInt(r, "limit", 0),
		Offset:     queryInt(r, "offset", 0),
	}

	list, err := h.alerts.List(ctx, userID, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

// GetAlert handles GET /alerts/{id}.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)
	alertID := chi.URLParam(r, "id")

	alert, err := h.alerts.Get(ctx, userID, alertID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, alert)
}

// MarkAlertRead handles POST /alerts/{id}/read.
func (h *Handler) MarkAlertRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)
	alertID := chi.URLParam(r, "id")

	alert, err := h.alerts.MarkRead(ctx, userID, alertID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, alert)
}

// ResolveAlert handles POST /alerts/{id}/resolve.
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)
	alertID := chi.URLParam(r, "id")

	alert, err := h.alerts.Resolve(ctx, userID, alertID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, alert)
}

// DismissAlert handles POST /alerts/{id}/dismiss.
func (h *Handler) DismissAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)
	alertID := chi.URLParam(r, "id")

	alert, err := h.alerts.Dismiss(ctx, userID, alertID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, alert)
}

// MarkAllAlertsRead handles POST /alerts/read-all.
func (h *Handler) MarkAllAlertsRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)

	n, err := h.alerts.MarkAllRead(ctx, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"marked": n,
	})
}

// CreateAlertRuleRequest is the request body for creating a custom rule.
type CreateAlertRuleRequest struct {
	ID          string                `json:"id,omitempty"`
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Expression  string                `json:"expression"`
	Bands       []domain.SeverityBand `json:"bands"`
	Enabled     bool                  `json:"enabled"`
	Global      bool                  `json:"global,omitempty"`
}

// CreateAlertRule handles POST /alerts/rules. The rule is validated,
// persisted, and hot-loaded into the evaluation engine when enabled.
// Global rules apply to every user and are owned by "*".
func (h *Handler) CreateAlertRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)

	var req CreateAlertRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name and expression are required",
		})
		return
	}

	owner := userID
	if req.Global {
		owner = domain.GlobalRuleOwner
	}

	rule := &domain.AlertRuleConfig{
		ID:          req.ID,
		UserID:      owner,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Bands:       req.Bands,
		Enabled:     req.Enabled,
	}

	created, err := h.alerts.CreateRule(ctx, rule)
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("alert rule created", "id", created.ID, "name", created.Name, "owner", owner)
	writeJSON(w, http.StatusCreated, created)
}

// ListAlertRules handles GET /alerts/rules.
func (h *Handler) ListAlertRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)

	includeGlobal := r.URL.Query().Get("includeGlobal") != "false"
	rules, err := h.alerts.ListRules(ctx, userID, includeGlobal)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// DeleteAlertRule handles DELETE /alerts/rules/{id}.
func (h *Handler) DeleteAlertRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)
	ruleID := chi.URLParam(r, "id")

	if err := h.alerts.DeleteRule(ctx, userID, ruleID); err != nil {
		writeError(w, err)
		return
	}

	slog.Info("alert rule deleted", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "rule deleted",
	})
}

// ReloadAlertRules handles POST /alerts/rules/reload.
// Reloads every stored rule into the engine atomically.
func (h *Handler) ReloadAlertRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	count, err := h.alerts.ReloadRules(ctx)
	if err != nil {
		slog.Error("failed to reload alert rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("alert rules reloaded", "count", count)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   count,
	})
}

// SweepExpired handles POST /sweeps/expired.
func (h *Handler) SweepExpired(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	batchSize := queryInt(r, "batchSize", 0)
	n, err := h.alerts.SweepExpired(ctx, batchSize)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"archived": n,
	})
}

// SweepOld handles POST /sweeps/old.
func (h *Handler) SweepOld(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	retentionDays := queryInt(r, "retentionDays", 0)
	n, err := h.alerts.SweepOld(ctx, retentionDays)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"archived": n,
	})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrTerminalStatus):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
