// Package checklist implements the per-phase checklist tracker.
//
// Every checklist item is backed by an evidence predicate over observable
// project state. The tracker caches the last verified status for display,
// but the cache is never a source of truth: gate decisions always re-run
// the predicate, so stale evidence resolves itself by recomputation.
package checklist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/gatehouse/internal/logging"
)

// Errors for tracker operations.
var (
	ErrUnknownItem = errors.New("unknown checklist item")
)

// Predicate is a pure evidence check over current project state.
type Predicate func(ctx context.Context) (bool, error)

// Item is one checklist item with its cached verification state.
type Item struct {
	ID       string `json:"id"`
	Phase    string `json:"phase"`
	Required bool   `json:"required"`

	// Satisfied and LastVerified mirror the most recent Verify result.
	// Display only; never consulted for gate decisions.
	Satisfied    bool      `json:"satisfied"`
	LastVerified time.Time `json:"last_verified,omitempty"`
}

type trackedItem struct {
	item      Item
	predicate Predicate
}

// Tracker holds checklist items grouped by phase.
type Tracker struct {
	logger *logging.Logger

	mu    sync.RWMutex
	items map[string]*trackedItem
	order map[string][]string // phase -> item ids in declaration order
	now   func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker(logger *logging.Logger) *Tracker {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Tracker{
		logger: logger.Named("checklist"),
		items:  make(map[string]*trackedItem),
		order:  make(map[string][]string),
		now:    time.Now,
	}
}

// Add registers an item with its evidence predicate.
func (t *Tracker) Add(item Item, predicate Predicate) error {
	if item.ID == "" || item.Phase == "" {
		return fmt.Errorf("checklist item requires id and phase")
	}
	if predicate == nil {
		return fmt.Errorf("checklist item %q requires a predicate", item.ID)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.items[item.ID]; exists {
		return fmt.Errorf("duplicate checklist item %q", item.ID)
	}
	t.items[item.ID] = &trackedItem{item: item, predicate: predicate}
	t.order[item.Phase] = append(t.order[item.Phase], item.ID)
	return nil
}

// Items returns the items declared for a phase, with their cached status.
func (t *Tracker) Items(phaseID string) []Item {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := t.order[phaseID]
	out := make([]Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.items[id].item)
	}
	return out
}

// Verify re-runs the item's evidence predicate, updates the cached status
// and timestamp, and returns the fresh result. Repeated calls with no
// underlying state change return the same result.
func (t *Tracker) Verify(ctx context.Context, itemID string) (bool, error) {
	t.mu.RLock()
	tracked, ok := t.items[itemID]
	t.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	}

	satisfied, err := tracked.predicate(ctx)
	if err != nil {
		return false, fmt.Errorf("evidence check for %q failed: %w", itemID, err)
	}

	t.mu.Lock()
	if tracked.item.LastVerified.IsZero() || tracked.item.Satisfied != satisfied {
		// Cached status disagreed with fresh evidence; the fresh value
		// wins, always.
		t.logger.Debug(ctx, "checklist evidence recomputed",
			zap.String("item", itemID),
			zap.Bool("was", tracked.item.Satisfied),
			zap.Bool("now", satisfied))
	}
	tracked.item.Satisfied = satisfied
	tracked.item.LastVerified = t.now()
	t.mu.Unlock()

	return satisfied, nil
}

// AllRequiredSatisfied re-verifies every required item of the phase and
// returns whether all passed, plus the ids of those that did not. The
// missing list is structured data for the caller, never a bare boolean.
func (t *Tracker) AllRequiredSatisfied(ctx context.Context, phaseID string) (bool, []string, error) {
	t.mu.RLock()
	ids := make([]string, len(t.order[phaseID]))
	copy(ids, t.order[phaseID])
	t.mu.RUnlock()

	var missing []string
	for _, id := range ids {
		t.mu.RLock()
		required := t.items[id].item.Required
		t.mu.RUnlock()
		if !required {
			continue
		}
		ok, err := t.Verify(ctx, id)
		if err != nil {
			return false, nil, err
		}
		if !ok {
			missing = append(missing, id)
		}
	}
	return len(missing) == 0, missing, nil
}
