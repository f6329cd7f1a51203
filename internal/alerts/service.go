package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/finch/internal/domain"
)

// Service is the alert orchestrator and lifecycle manager. It runs the
// rule set over a user's snapshot, pipes drafts through the
// deduplicator, and owns every status transition and sweep.
type Service struct {
	repo   domain.Repository
	cache  domain.Cache
	bus    domain.EventBus
	loader *Loader
	dedup  *Deduplicator
	custom *CustomEngine
	rules  []Rule
	cfg    domain.AlertsConfig

	now func() time.Time
}

// NewService creates the alert service. The custom engine may be nil
// when CEL rules are disabled.
func NewService(repo domain.Repository, cache domain.Cache, bus domain.EventBus, custom *CustomEngine, cfg domain.AlertsConfig) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		bus:    bus,
		loader: NewLoader(repo, cfg),
		dedup:  NewDeduplicator(repo),
		custom: custom,
		rules:  BuiltinRules(),
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RunChecks evaluates every rule against the user's snapshot and
// returns only the alerts this pass created. A single rule's failure
// is logged and skipped; it never aborts the pass.
func (s *Service) RunChecks(ctx context.Context, userID string) ([]*domain.Alert, error) {
	start := time.Now()

	snap, err := s.loader.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var drafts []domain.AlertDraft
	for _, rule := range s.rules {
		drafts = append(drafts, s.evalRule(rule, snap)...)
	}
	if s.custom != nil {
		drafts = append(drafts, s.custom.Evaluate(snap)...)
	}

	var created []*domain.Alert
	for _, draft := range drafts {
		alert, isNew, err := s.dedup.CreateIfAbsent(ctx, userID, draft)
		if err != nil {
			slog.Error("failed to persist alert draft",
				"user_id", userID,
				"alert_type", draft.Type,
				"error", err,
			)
			continue
		}
		if !isNew {
			continue
		}
		created = append(created, alert)
		s.publishCreated(ctx, alert)
	}

	if s.cache != nil {
		if _, err := s.cache.IncrementCounter(ctx, userID, "alert_checks", 24*time.Hour); err != nil {
			slog.Debug("failed to count alert check", "user_id", userID, "error", err)
		}
	}

	slog.Info("alert checks completed",
		"user_id", userID,
		"drafts", len(drafts),
		"created", len(created),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return created, nil
}

// evalRule runs one evaluator, containing any panic so the remaining
// rules still run.
func (s *Service) evalRule(rule Rule, snap *Snapshot) (drafts []domain.AlertDraft) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("alert rule panicked",
				"rule", rule.Name,
				"user_id", snap.UserID,
				"panic", r,
			)
			drafts = nil
		}
	}()
	return rule.Eval(snap, s.cfg)
}

// NotifyIncomeReceived records an informational alert for an income
// transaction. It is not part of the rule pass; callers invoke it when
// income lands. The standard dedup window applies, so re-notifying the
// same transaction within a day returns the existing alert.
func (s *Service) NotifyIncomeReceived(ctx context.Context, userID string, tx *domain.Transaction) (*domain.Alert, bool, error) {
	if tx == nil || tx.Type != domain.TransactionIncome {
		return nil, false, fmt.Errorf("%w: transaction must be income", domain.ErrInvalidInput)
	}

	amount := math.Abs(tx.Amount)
	draft := domain.AlertDraft{
		Type:       domain.AlertIncomeReceived,
		Title:      "Income received",
		Message:    fmt.Sprintf("Income of $%.2f received from '%s'.", amount, tx.Description),
		Severity:   domain.SeverityInfo,
		EntityType: domain.EntityTransaction,
		EntityID:   tx.ID,
		Amount:     floatPtr(amount),
		EntityData: map[string]any{
			"transaction_id": tx.ID,
			"amount":         amount,
			"description":    tx.Description,
			"date":           tx.Date.Format(time.RFC3339),
		},
	}

	alert, isNew, err := s.dedup.CreateIfAbsent(ctx, userID, draft)
	if err != nil {
		return nil, false, fmt.Errorf("failed to record income alert: %w", err)
	}
	if isNew {
		s.publishCreated(ctx, alert)
	}
	return alert, isNew, nil
}

// Get returns one alert, owner-checked.
func (s *Service) Get(ctx context.Context, userID, alertID string) (*domain.Alert, error) {
	return s.repo.GetAlert(ctx, userID, alertID)
}

// List returns alerts matching the typed filter, newest first.
func (s *Service) List(ctx context.Context, userID string, filter domain.AlertFilter) ([]*domain.Alert, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListAlerts(ctx, userID, filter)
}

// MarkRead marks an alert read without changing its status. Allowed in
// any state.
func (s *Service) MarkRead(ctx context.Context, userID, alertID string) (*domain.Alert, error) {
	alert, err := s.repo.GetAlert(ctx, userID, alertID)
	if err != nil {
		return nil, err
	}
	if alert.IsRead {
		return alert, nil
	}

	now := s.now()
	alert.IsRead = true
	if alert.AcknowledgedAt == nil {
		alert.AcknowledgedAt = &now
	}
	if err := s.repo.UpdateAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to mark alert read: %w", err)
	}
	return alert, nil
}

// Resolve transitions an active alert to resolved. Terminal states are
// never left.
func (s *Service) Resolve(ctx context.Context, userID, alertID string) (*domain.Alert, error) {
	return s.transition(ctx, userID, alertID, domain.StatusResolved)
}

// Dismiss transitions an active alert to dismissed.
func (s *Service) Dismiss(ctx context.Context, userID, alertID string) (*domain.Alert, error) {
	return s.transition(ctx, userID, alertID, domain.StatusDismissed)
}

func (s *Service) transition(ctx context.Context, userID, alertID string, to domain.AlertStatus) (*domain.Alert, error) {
	alert, err := s.repo.GetAlert(ctx, userID, alertID)
	if err != nil {
		return nil, err
	}
	if alert.Status.Terminal() {
		return nil, fmt.Errorf("%w: alert is already %s", domain.ErrTerminalStatus, alert.Status)
	}

	now := s.now()
	alert.Status = to
	alert.IsRead = true
	if alert.AcknowledgedAt == nil {
		alert.AcknowledgedAt = &now
	}
	if to == domain.StatusResolved {
		alert.ResolvedAt = &now
	}

	if err := s.repo.UpdateAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to update alert: %w", err)
	}

	slog.Info("alert transitioned",
		"user_id", userID,
		"alert_id", alertID,
		"status", to,
	)
	return alert, nil
}

// MarkAllRead marks every unread alert read and returns the count.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.repo.MarkAllAlertsRead(ctx, userID, s.now())
}

// SweepExpired archives active alerts past their expiry, in batches.
// A failure mid-sweep keeps the archivals committed by prior batches.
func (s *Service) SweepExpired(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = s.cfg.SweepBatchSize
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := s.repo.ArchiveExpiredAlerts(ctx, s.now(), batchSize)
		total += n
		if err != nil {
			return total, fmt.Errorf("expiry sweep batch failed after %d archived: %w", total, err)
		}
		if n < int64(batchSize) {
			break
		}
	}

	if total > 0 {
		s.publishSwept(ctx, "expired", total)
		slog.Info("expired alerts archived", "count", total)
	}
	return total, nil
}

// SweepOld archives active alerts older than the retention window.
func (s *Service) SweepOld(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = s.cfg.RetentionDays
	}
	if retentionDays <= 0 {
		retentionDays = 30
	}

	cutoff := s.now().AddDate(0, 0, -retentionDays)
	total, err := s.repo.ArchiveAlertsOlderThan(ctx, cutoff)
	if err != nil {
		return total, fmt.Errorf("retention sweep failed: %w", err)
	}

	if total > 0 {
		s.publishSwept(ctx, "old", total)
		slog.Info("old alerts archived", "count", total, "retention_days", retentionDays)
	}
	return total, nil
}

// CreateRule validates, persists, and loads a custom CEL rule.
func (s *Service) CreateRule(ctx context.Context, rule *domain.AlertRuleConfig) (*domain.AlertRuleConfig, error) {
	if s.custom == nil {
		return nil, fmt.Errorf("%w: custom rules are disabled", domain.ErrInvalidInput)
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if err := s.custom.Validate(rule); err != nil {
		return nil, err
	}

	if err := s.repo.SaveAlertRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to save alert rule: %w", err)
	}
	if rule.Enabled {
		if err := s.custom.Load(rule); err != nil {
			return nil, err
		}
	}

	slog.Info("custom alert rule created", "rule_id", rule.ID, "user_id", rule.UserID, "name", rule.Name)
	return rule, nil
}

// ListRules returns the custom rules owned by a user, plus the global
// rules when includeGlobal is set.
func (s *Service) ListRules(ctx context.Context, userID string, includeGlobal bool) ([]*domain.AlertRuleConfig, error) {
	rules, err := s.repo.ListAlertRules(ctx, userID)
	if err != nil {
		return nil, err
	}
	if includeGlobal && userID != domain.GlobalRuleOwner {
		global, err := s.repo.ListAlertRules(ctx, domain.GlobalRuleOwner)
		if err != nil {
			return nil, err
		}
		rules = append(rules, global...)
	}
	return rules, nil
}

// DeleteRule removes a custom rule from the store and the engine.
func (s *Service) DeleteRule(ctx context.Context, userID, ruleID string) error {
	if err := s.repo.DeleteAlertRule(ctx, userID, ruleID); err != nil {
		return err
	}
	if s.custom != nil {
		s.custom.Unload(ruleID)
	}
	return nil
}

// ReloadRules hot-reloads every stored rule into the engine.
func (s *Service) ReloadRules(ctx context.Context) (int, error) {
	if s.custom == nil {
		return 0, nil
	}
	rules, err := s.repo.ListAlertRules(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("failed to list alert rules: %w", err)
	}
	if err := s.custom.Reload(rules); err != nil {
		return 0, err
	}
	count := s.custom.RulesCount()
	slog.Info("custom alert rules reloaded", "count", count)
	return count, nil
}

func (s *Service) publishCreated(ctx context.Context, alert *domain.Alert) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, alert.UserID, domain.TopicAlertCreated, payload); err != nil {
		slog.Error("failed to publish alert event",
			"user_id", alert.UserID,
			"alert_id", alert.ID,
			"error", err,
		)
	}
}

func (s *Service) publishSwept(ctx context.Context, kind string, count int64) {
	if s.bus == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{"kind": kind, "count": count})
	if err := s.bus.Publish(ctx, domain.GlobalScope, domain.TopicAlertSwept, payload); err != nil {
		slog.Error("failed to publish sweep event", "kind", kind, "error", err)
	}
}
