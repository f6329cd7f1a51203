package alerts

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/finch/internal/domain"
)

// dedupStripes is the lock stripe count. Collisions only serialize
// unrelated creates, never break correctness.
const dedupStripes = 64

// Deduplicator enforces at most one active alert per
// (user, type, entity_type, entity_id) within the rule's dedup window.
// The check-then-insert runs under a striped per-key mutex so two
// concurrent orchestration passes for the same user cannot both insert.
type Deduplicator struct {
	repo  domain.Repository
	locks [dedupStripes]sync.Mutex
	now   func() time.Time
}

// NewDeduplicator creates a deduplicator.
func NewDeduplicator(repo domain.Repository) *Deduplicator {
	return &Deduplicator{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateIfAbsent persists the draft unless an equivalent active alert
// already exists within the dedup window. Returns the stored alert and
// whether this call created it. A race loser returns the winner's
// record, never an error.
func (d *Deduplicator) CreateIfAbsent(ctx context.Context, userID string, draft domain.AlertDraft) (*domain.Alert, bool, error) {
	if userID == "" {
		return nil, false, fmt.Errorf("%w: userID is required", domain.ErrInvalidInput)
	}

	window := draft.DedupWindow
	if window <= 0 {
		window = domain.DefaultDedupWindow
	}

	key := domain.DedupKey(userID, draft.Type, draft.EntityType, draft.EntityID)
	lock := d.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	now := d.now()
	createdAfter := now.Add(-window)

	existing, err := d.repo.FindActiveAlert(ctx, userID, draft.Type, draft.EntityType, draft.EntityID, createdAfter)
	if err != nil && err != domain.ErrNotFound {
		return nil, false, fmt.Errorf("failed to check for duplicate alert: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	alert := &domain.Alert{
		ID:           uuid.New().String(),
		UserID:       userID,
		Type:         draft.Type,
		Title:        draft.Title,
		Message:      draft.Message,
		Severity:     draft.Severity,
		EntityType:   draft.EntityType,
		EntityID:     draft.EntityID,
		EntityData:   draft.EntityData,
		Amount:       draft.Amount,
		Threshold:    draft.Threshold,
		Status:       domain.StatusActive,
		IsActionable: draft.IsActionable,
		CreatedAt:    now,
		ExpiresAt:    draft.ExpiresAt,
	}

	if err := d.repo.SaveAlert(ctx, alert); err != nil {
		// The striped lock serializes within this process; another
		// instance can still win at the storage layer.
		winner, lookupErr := d.repo.FindActiveAlert(ctx, userID, draft.Type, draft.EntityType, draft.EntityID, createdAfter)
		if lookupErr == nil && winner != nil {
			return winner, false, nil
		}
		return nil, false, fmt.Errorf("failed to save alert: %w", err)
	}

	return alert, true, nil
}

func (d *Deduplicator) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &d.locks[h.Sum32()%dedupStripes]
}
