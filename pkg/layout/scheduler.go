package layout

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/clarity-agent/pkg/domtree"
	"github.com/hazyhaar/clarity-agent/pkg/livedom"
)

// Detector reads a structural fingerprint of the live document. Two calls
// returning different values mean the live tree's shape changed, so the
// shadow tree may have drifted from it and is worth re-checking — generalized
// from the SQLite data_version poll used elsewhere in the stack to a
// domain-agnostic version token.
type Detector func(ctx context.Context) (uint64, error)

// SchedulerOptions tunes the consistency-check loop.
type SchedulerOptions struct {
	Interval time.Duration
	Debounce time.Duration
	Detector Detector
	Logger   *slog.Logger
}

func (o *SchedulerOptions) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Scheduler polls a Detector and fires an action when its fingerprint
// changes, optionally debounced. It backs the Layout Tracker's periodic
// consistency check (spec.md §4.1 "Consistency check").
type Scheduler struct {
	opts SchedulerOptions
	stop chan struct{}
}

// NewScheduler creates a Scheduler. Call Run to start polling.
func NewScheduler(opts SchedulerOptions) *Scheduler {
	opts.defaults()
	return &Scheduler{opts: opts, stop: make(chan struct{})}
}

// Run blocks until ctx is cancelled or Stop is called, polling at
// opts.Interval and firing action once the debounce window passes without
// a further change.
func (s *Scheduler) Run(ctx context.Context, action func() error) {
	log := s.opts.Logger
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	var last uint64
	var seeded bool
	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		case <-s.stop:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		case <-ticker.C:
			cur, err := s.opts.Detector(ctx)
			if err != nil {
				log.Warn("layout: consistency detector failed", "error", err)
				continue
			}
			if !seeded {
				last = cur
				seeded = true
				continue
			}
			if cur == last {
				continue
			}
			last = cur
			if s.opts.Debounce <= 0 {
				if err := action(); err != nil {
					log.Warn("layout: consistency check failed", "error", err)
				}
			} else {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.NewTimer(s.opts.Debounce)
				debounceCh = debounceTimer.C
			}
		case <-debounceCh:
			debounceCh = nil
			if err := action(); err != nil {
				log.Warn("layout: consistency check failed", "error", err)
			}
		}
	}
}

// Stop ends the polling loop.
func (s *Scheduler) Stop() {
	close(s.stop)
}

// structuralHashDetector fingerprints the live tree's shape by walking it
// and combining each node's child count into an FNV-style rolling hash —
// cheap enough to run every poll interval without materializing a full
// IndexTreeNode comparison.
func structuralHashDetector(m *domtree.Mirror, doc livedom.Document) Detector {
	return func(ctx context.Context) (uint64, error) {
		var hash uint64 = 14695981039346656037
		var walk func(livedom.Node)
		walk = func(n livedom.Node) {
			hash ^= uint64(len(n.Children())) + uint64(n.Kind())
			hash *= 1099511628211
			for _, c := range n.Children() {
				walk(c)
			}
		}
		walk(doc)
		return hash, nil
	}
}
