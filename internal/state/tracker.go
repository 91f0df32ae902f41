package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storyweaver/harvester/internal/domain"

	log "github.com/sirupsen/logrus"
)

// Outcome is what a successful item leaves behind
type Outcome struct {
	CanonicalSlug string
	NoTarget      bool
	Downloads     domain.Downloads
}

// Tracker is the single commit point for queue mutations. Each change is applied under
// one lock, counters and cursor are recomputed and the state is saved before returning.
// A save failure is reported as domain.ErrPersistenceFailed.
type Tracker struct {
	mu    sync.Mutex
	store Store
	state *domain.QueueState
	now   func() time.Time
}

func NewTracker(store Store, st *domain.QueueState) *Tracker {
	return &Tracker{store: store, state: st, now: time.Now}
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.state.Items)
}

func (t *Tracker) Cursor() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Cursor
}

func (t *Tracker) Item(i int) domain.QueueItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Items[i]
}

func (t *Tracker) Summary() domain.Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Summary()
}

// Snapshot returns a copy that is safe to read without the lock
func (t *Tracker) Snapshot() *domain.QueueState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Clone()
}

func (t *Tracker) commit(ctx context.Context, i int, mutate func(item *domain.QueueItem) error) (domain.QueueItem, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i < 0 || i >= len(t.state.Items) {
		return domain.QueueItem{}, fmt.Errorf("queue index %d out of range", i)
	}
	item := &t.state.Items[i]
	if err := mutate(item); err != nil {
		return *item, err
	}
	return *item, t.saveLocked(ctx)
}

func (t *Tracker) saveLocked(ctx context.Context) error {
	t.state.Recount()
	t.state.AdvanceCursor()
	t.state.UpdatedAt = t.now()

	// Saves must land even while the run is shutting down
	if err := t.store.Save(context.WithoutCancel(ctx), t.state); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistenceFailed, err)
	}
	return nil
}

// Attempt moves the item into Processing and spends one attempt of its budget.
// The attempt is persisted before any network call is made for it.
func (t *Tracker) Attempt(ctx context.Context, i int) (domain.QueueItem, error) {
	return t.commit(ctx, i, func(item *domain.QueueItem) error {
		if err := domain.TransitionItem(item, domain.StatusProcessing); err != nil {
			return err
		}
		now := t.now()
		item.Attempts++
		item.LastAttemptAt = &now
		return nil
	})
}

// RecordError keeps the latest transient error on an item that stays in Processing
func (t *Tracker) RecordError(ctx context.Context, i int, cause error) error {
	_, err := t.commit(ctx, i, func(item *domain.QueueItem) error {
		item.LastError = cause.Error()
		return nil
	})
	return err
}

func (t *Tracker) Complete(ctx context.Context, i int, out Outcome) error {
	_, err := t.commit(ctx, i, func(item *domain.QueueItem) error {
		if err := domain.TransitionItem(item, domain.StatusCompleted); err != nil {
			return err
		}
		item.CanonicalSlug = out.CanonicalSlug
		item.NoTarget = out.NoTarget
		item.Downloads = out.Downloads
		item.LastError = ""
		return nil
	})
	return err
}

func (t *Tracker) Fail(ctx context.Context, i int, cause error) error {
	_, err := t.commit(ctx, i, func(item *domain.QueueItem) error {
		if err := domain.TransitionItem(item, domain.StatusFailed); err != nil {
			return err
		}
		item.LastError = cause.Error()
		return nil
	})
	return err
}

// Release hands an interrupted item back to Pending for the next run
func (t *Tracker) Release(ctx context.Context, i int) error {
	_, err := t.commit(ctx, i, func(item *domain.QueueItem) error {
		return domain.TransitionItem(item, domain.StatusPending)
	})
	return err
}

// Recover repairs items left in Processing by a killed process. Items with attempts left
// go back to Pending, the others fail.
func (t *Tracker) Recover(ctx context.Context, maxAttempts int) (requeued, failed int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.state.Items {
		item := &t.state.Items[i]
		if item.Status != domain.StatusProcessing {
			continue
		}
		if item.Attempts >= maxAttempts {
			reason := item.LastError
			if reason == "" {
				reason = "interrupted"
			}
			item.Status = domain.StatusFailed
			item.LastError = fmt.Sprintf("attempt budget exhausted after %d attempts: %s", item.Attempts, reason)
			failed++
		} else {
			item.Status = domain.StatusPending
			requeued++
		}
	}
	if requeued == 0 && failed == 0 {
		return 0, 0, nil
	}

	log.Warnf("🔄 Recovered %d interrupted items (%d back to pending, %d failed)", requeued+failed, requeued, failed)
	return requeued, failed, t.saveLocked(ctx)
}

// RequeueFailed gives failed items a fresh attempt budget and rewinds the cursor to the first of them
func (t *Tracker) RequeueFailed(ctx context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	first := -1
	count := 0
	for i := range t.state.Items {
		item := &t.state.Items[i]
		if item.Status != domain.StatusFailed {
			continue
		}
		if err := domain.TransitionItem(item, domain.StatusPending); err != nil {
			return count, err
		}
		item.Attempts = 0
		item.LastError = ""
		if first < 0 {
			first = i
		}
		count++
	}
	if count == 0 {
		return 0, nil
	}

	if first < t.state.Cursor {
		t.state.Cursor = first
	}
	return count, t.saveLocked(ctx)
}
