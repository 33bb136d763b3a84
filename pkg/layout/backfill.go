package layout

import (
	"time"
)

// RunBackfillSlice processes queued placeholder indices until the queue is
// empty or deadline passes, whichever comes first — the cooperative,
// time-sliced backfill spec.md §4.2 and §9 describe ("coroutine-style
// backfill... yields control back to the host page's event loop rather
// than blocking it"). Once the queue drains it applies any mutation
// batches that arrived while backfill was in progress, in arrival order.
// It returns true once backfill has fully completed.
func (t *Tracker) RunBackfillSlice(deadline time.Time) (done bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for len(t.backfillQueue) > 0 {
		idx := t.backfillQueue[0]
		t.backfillQueue = t.backfillQueue[1:]

		if state, ok := t.mirror.Backfill(idx); ok {
			t.cfg.OnLayoutEvent(state)
			t.registerWatchLocked(state.Index)
		}

		if time.Now().After(deadline) {
			return false, nil
		}
	}

	t.backfillActive = false
	queued := t.pendingBatches
	t.pendingBatches = nil
	for _, batch := range queued {
		if applyErr := t.applyBatchLocked(batch); applyErr != nil {
			err = applyErr
		}
	}
	return true, err
}

// RunBackfillToCompletion drains the backfill queue without a deadline —
// a test convenience; production callers drive RunBackfillSlice from a
// scheduler that respects TimeToYield.
func (t *Tracker) RunBackfillToCompletion() error {
	for {
		done, err := t.RunBackfillSlice(time.Now().Add(24 * time.Hour))
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// BackfillPending reports how many placeholder indices remain queued.
func (t *Tracker) BackfillPending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.backfillQueue)
}
