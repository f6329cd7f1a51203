// Package worker provides async alert processing and scheduled sweeps.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/finch/internal/alerts"
	"github.com/opensource-finance/finch/internal/domain"
)

// Worker drives the alert pipeline off the EventBus and runs the
// periodic sweeps. Alert checks requested via TopicAlertCheck are
// processed asynchronously so callers never wait on rule evaluation.
type Worker struct {
	bus     domain.EventBus
	service *alerts.Service
	cfg     domain.AlertsConfig

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, service *alerts.Service, cfg domain.AlertsConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		service: service,
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to check requests and launches the sweep loop.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.GlobalScope, domain.TopicAlertCheck, w.handleCheckRequest)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	if w.cfg.SweepInterval > 0 {
		w.wg.Add(1)
		go w.sweepLoop()
	}

	slog.Info("worker started",
		"topic", domain.TopicAlertCheck,
		"sweep_interval", w.cfg.SweepInterval,
	)

	return nil
}

// CheckRequest is the message payload for an alert check.
type CheckRequest struct {
	UserID  string `json:"userId"`
	TraceID string `json:"traceId,omitempty"`
}

// handleCheckRequest runs a full check pass for the requested user.
func (w *Worker) handleCheckRequest(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req CheckRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse check request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if req.UserID == "" {
		slog.Error("check request missing user id", "message_id", msg.ID)
		return nil
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	created, err := w.service.RunChecks(ctx, req.UserID)
	if err != nil {
		slog.Error("alert check failed",
			"user_id", req.UserID,
			"trace_id", traceID,
			"error", err,
		)
		return err
	}

	slog.Info("alert check processed",
		"user_id", req.UserID,
		"trace_id", traceID,
		"alerts_created", len(created),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// sweepLoop archives expired and stale alerts on a fixed interval.
func (w *Worker) sweepLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.runSweeps()
		}
	}
}

// runSweeps executes one expiry pass and one retention pass.
func (w *Worker) runSweeps() {
	start := time.Now()

	expired, err := w.service.SweepExpired(w.ctx, w.cfg.SweepBatchSize)
	if err != nil {
		slog.Error("expiry sweep failed", "error", err)
	}

	aged, err := w.service.SweepOld(w.ctx, w.cfg.RetentionDays)
	if err != nil {
		slog.Error("retention sweep failed", "error", err)
	}

	slog.Info("sweep pass complete",
		"expired_archived", expired,
		"aged_archived", aged,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
