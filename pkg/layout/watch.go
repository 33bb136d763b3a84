package layout

import (
	"github.com/hazyhaar/clarity-agent/pkg/domtree"
	"github.com/hazyhaar/clarity-agent/pkg/livedom"
)

// watchHandle tracks the unsubscribe closures for one index's live
// bindings, so Reset/Teardown can undo them.
type watchHandle struct {
	unsubscribe []func()
}

func (h watchHandle) unsubscribeAll() {
	for _, fn := range h.unsubscribe {
		if fn != nil {
			fn()
		}
	}
}

// registerWatchLocked subscribes to scroll/change/input on the live node
// for idx, exactly once — spec.md's open question resolution (SPEC_FULL.md
// §D): binding registration happens only at the moment a layout event is
// emitted for that index — a backfilled Discover state, or a mutation
// event with action Insert or Update — never retroactively re-evaluated
// later. Callers must hold t.mu.
func (t *Tracker) registerWatchLocked(idx domtree.Index) {
	if _, already := t.watches[idx]; already {
		return
	}
	node, ok := t.mirror.LiveNodeAt(idx)
	if !ok {
		return
	}
	watchable, ok := node.(livedom.Watchable)
	if !ok {
		return
	}

	var h watchHandle

	if geom, ok := watchable.ScrollGeometry(); ok {
		t.scrollBaselines[idx] = geom
		unsub := watchable.OnScroll(func(g livedom.ScrollGeometry) {
			t.handleScroll(idx, g)
		})
		h.unsubscribe = append(h.unsubscribe, unsub)
	}

	if watchable.IsFormControl() {
		unsub := watchable.OnChange(func() { t.handleInputLike(idx) })
		h.unsubscribe = append(h.unsubscribe, unsub)
	}
	if watchable.IsTextArea() {
		unsub := watchable.OnInput(func() { t.handleInputLike(idx) })
		h.unsubscribe = append(h.unsubscribe, unsub)
	}

	t.watches[idx] = h
}

// handleScroll applies distance throttling (spec.md §8 scenario 3): the
// baseline only advances on an actual emission, and emission requires the
// squared distance from that baseline to exceed the squared threshold —
// so several small scrolls that individually stay under the threshold
// still emit once their sum crosses it.
func (t *Tracker) handleScroll(idx domtree.Index, g livedom.ScrollGeometry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	baseline, ok := t.scrollBaselines[idx]
	if !ok {
		baseline = g
	}
	dx := g.ScrollLeft - baseline.ScrollLeft
	dy := g.ScrollTop - baseline.ScrollTop
	distSq := dx*dx + dy*dy
	threshold := t.cfg.ScrollThreshold
	if distSq <= threshold*threshold {
		return
	}

	prev, ok := t.mirror.SnapshotAt(idx)
	if !ok {
		return
	}
	next := prev.Clone()
	geom := g
	next.Layout.Geometry = &geom
	next.Source = domtree.SourceScroll
	next.Action = domtree.ActionUpdate
	next.MutationSequence = nil

	t.mirror.SetSnapshot(idx, next)
	t.scrollBaselines[idx] = g
	t.cfg.OnLayoutEvent(next)
}

// handleInputLike reports a change/input notification as a layout update
// sourced from user input (spec.md's Source vocabulary has no separate
// "change" value; form control changes and textarea input share Input).
func (t *Tracker) handleInputLike(idx domtree.Index) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.mirror.SnapshotAt(idx)
	if !ok {
		return
	}
	node, ok := t.mirror.LiveNodeAt(idx)
	if !ok {
		return
	}
	next := prev.Clone()
	next.Attributes = node.Attributes()
	next.Layout.Text = node.Text()
	next.Source = domtree.SourceInput
	next.Action = domtree.ActionUpdate
	next.MutationSequence = nil

	t.mirror.SetSnapshot(idx, next)
	t.cfg.OnLayoutEvent(next)
}
