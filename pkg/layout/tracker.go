// Package layout implements the Layout Tracker (spec.md §4.2): discovery
// of the initial document, asynchronous cooperative backfill of layout
// state for nodes discovered before the tracker could inspect them, and
// classification of live mutation batches into layout events.
package layout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/clarity-agent/pkg/domtree"
	"github.com/hazyhaar/clarity-agent/pkg/livedom"
	"github.com/hazyhaar/clarity-agent/pkg/session"
	"github.com/hazyhaar/clarity-agent/pkg/telemetry"
)

// ErrTornDown is returned by HandleMutationBatch once Teardown has run
// (until the next Activate).
var ErrTornDown = errors.New("layout: tracker has been torn down")

// Config configures a Tracker. Document is required; everything else has a
// default (OnLayoutEvent and OnInstrument default to no-ops).
type Config struct {
	Document            livedom.Document
	TimeToYield         time.Duration // backfill slice budget, spec.md §6 timeToYield
	ValidateConsistency bool
	IgnorePolicy        domtree.IgnorePolicy
	ScrollThreshold     float64 // pixels; default 5 (spec.md §8 scenario 3)
	PollInterval        time.Duration
	Logger              *slog.Logger

	OnLayoutEvent func(domtree.LayoutState)
	OnInstrument  func(kind telemetry.InstrumentationKind, data map[string]any)
}

func (c *Config) defaults() {
	if c.TimeToYield <= 0 {
		c.TimeToYield = 50 * time.Millisecond
	}
	if c.ScrollThreshold <= 0 {
		c.ScrollThreshold = 5
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.OnLayoutEvent == nil {
		c.OnLayoutEvent = func(domtree.LayoutState) {}
	}
	if c.OnInstrument == nil {
		c.OnInstrument = func(telemetry.InstrumentationKind, map[string]any) {}
	}
}

// Tracker is the Layout Tracker capability: it owns a Shadow DOM Mirror,
// runs discovery and backfill, classifies mutation batches, and keeps
// watch bindings current.
type Tracker struct {
	cfg Config
	mu  sync.Mutex

	mirror      *domtree.Mirror
	mutationSeq uint64

	backfillQueue  []domtree.Index
	backfillActive bool
	pendingBatches [][]domtree.Mutation

	scheduler *Scheduler

	watches         map[domtree.Index]watchHandle
	scrollBaselines map[domtree.Index]livedom.ScrollGeometry

	torndown bool
}

// New creates a Tracker. Call Activate to run discovery.
func New(cfg Config) *Tracker {
	cfg.defaults()
	return &Tracker{
		cfg:             cfg,
		watches:         make(map[domtree.Index]watchHandle),
		scrollBaselines: make(map[domtree.Index]livedom.ScrollGeometry),
	}
}

func (t *Tracker) Name() string { return "layout-tracker" }

// Activate runs the discovery phase: it silently indexes the entire live
// document (no layout events are emitted yet — spec.md §4.2 "Discovery"),
// queues every discovered node for backfill, and starts the consistency
// scheduler if configured to validate.
func (t *Tracker) Activate(ctx context.Context, sess *session.Session) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.mirror = domtree.NewMirror(t.cfg.IgnorePolicy)
	t.mutationSeq = 0
	t.pendingBatches = nil
	t.backfillActive = true
	t.watches = make(map[domtree.Index]watchHandle)
	t.scrollBaselines = make(map[domtree.Index]livedom.ScrollGeometry)
	t.torndown = false

	docIdx := t.mirror.InsertShadowNode(t.cfg.Document, domtree.NoIndex, domtree.NoIndex).ID
	t.discoverSubtree(t.cfg.Document, docIdx)
	t.backfillQueue = t.mirror.PlaceholderIndices()

	if t.cfg.ValidateConsistency {
		if report := t.mirror.CheckConsistency(t.cfg.Document, domtree.RoutineDiscoverDom, 0, len(t.backfillQueue)); report != nil {
			t.emitInconsistency(report)
		}
		t.scheduler = NewScheduler(SchedulerOptions{
			Interval: t.cfg.PollInterval,
			Detector: structuralHashDetector(t.mirror, t.cfg.Document),
			Logger:   t.cfg.Logger,
		})
		go t.scheduler.Run(ctx, func() error {
			t.mu.Lock()
			defer t.mu.Unlock()
			if report := t.mirror.CheckConsistency(t.cfg.Document, domtree.RoutineMutation, t.mutationSeq, 0); report != nil {
				t.emitInconsistency(report)
			}
			return nil
		})
	}

	t.cfg.Logger.Info("layout: activated", "impression_id", sess.ImpressionID, "discovered", len(t.backfillQueue))
	return nil
}

// Reset unsubscribes every watch binding, clears the scroll baselines,
// clears the mirror's degraded-mode state and stops the consistency
// scheduler. The shadow tree itself is rebuilt by the next Activate.
func (t *Tracker) Reset(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, h := range t.watches {
		h.unsubscribeAll()
	}
	t.watches = make(map[domtree.Index]watchHandle)
	t.scrollBaselines = make(map[domtree.Index]livedom.ScrollGeometry)
	if t.mirror != nil {
		t.mirror.Reset()
	}
	if t.scheduler != nil {
		t.scheduler.Stop()
		t.scheduler = nil
	}
	return nil
}

// Teardown unsubscribes every watch binding and stops the consistency
// scheduler (spec.md §4.2 "Teardown").
func (t *Tracker) Teardown(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, h := range t.watches {
		h.unsubscribeAll()
	}
	t.watches = make(map[domtree.Index]watchHandle)
	if t.scheduler != nil {
		t.scheduler.Stop()
		t.scheduler = nil
	}
	t.torndown = true
	return nil
}

func (t *Tracker) discoverSubtree(node livedom.Node, parentIdx domtree.Index) {
	for _, child := range node.Children() {
		childIdx := t.mirror.InsertShadowNode(child, parentIdx, domtree.NoIndex).ID
		t.discoverSubtree(child, childIdx)
	}
}

// HandleMutationBatch classifies a raw mutation batch. While backfill is
// still in progress the batch is queued and applied, in arrival order,
// once RunBackfillSlice reports completion (spec.md §4.2: "mutation
// batches arriving during backfill are not dropped; they are queued").
func (t *Tracker) HandleMutationBatch(batch []domtree.Mutation) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.torndown {
		return ErrTornDown
	}
	if t.backfillActive {
		t.pendingBatches = append(t.pendingBatches, batch)
		return nil
	}
	return t.applyBatchLocked(batch)
}

func (t *Tracker) applyBatchLocked(batch []domtree.Mutation) error {
	if t.mirror.Degraded() {
		return domtree.ErrDegraded
	}
	t.mutationSeq++
	summary, err := t.mirror.ApplyMutationBatch(batch, t.mutationSeq)
	if err != nil {
		if errors.Is(err, domtree.ErrDegraded) {
			return err
		}
		return fmt.Errorf("layout: apply mutation batch: %w", err)
	}

	if t.cfg.ValidateConsistency {
		if report := t.mirror.CheckConsistency(t.cfg.Document, domtree.RoutineMutation, t.mutationSeq, len(batch)); report != nil {
			t.emitInconsistency(report)
		}
	}

	for _, ev := range summary.Events() {
		t.cfg.OnLayoutEvent(ev)
		if ev.Action == domtree.ActionInsert || ev.Action == domtree.ActionUpdate {
			t.registerWatchLocked(ev.Index)
		}
	}
	return nil
}

func (t *Tracker) emitInconsistency(report *domtree.InconsistencyReport) {
	t.cfg.Logger.Warn("layout: shadow tree inconsistent", "routine", report.Routine, "sequence", report.Sequence)
	t.cfg.OnInstrument(telemetry.KindShadowDomInconsistent, inconsistencyReportData(report))
}

// inconsistencyReportData projects a domtree.InconsistencyReport into the
// wire-visible ShadowDomInconsistent instrumentation event data spec.md
// §4.1 requires: the live and shadow trees, the last known consistent
// tree, the batch size, and — on the second consecutive divergence — the
// first report, nested, for diagnosis.
func inconsistencyReportData(report *domtree.InconsistencyReport) map[string]any {
	data := map[string]any{
		"routine":    string(report.Routine),
		"sequence":   report.Sequence,
		"batchSize":  report.BatchSize,
		"liveTree":   indexTreeData(report.LiveTree),
		"shadowTree": indexTreeData(report.ShadowTree),
	}
	if report.LastConsistent != nil {
		data["lastConsistent"] = indexTreeData(report.LastConsistent)
	}
	if report.First != nil {
		data["first"] = inconsistencyReportData(report.First)
	}
	return data
}

func indexTreeData(node *domtree.IndexTreeNode) map[string]any {
	if node == nil {
		return nil
	}
	children := make([]any, 0, len(node.Children))
	for _, c := range node.Children {
		children = append(children, indexTreeData(c))
	}
	return map[string]any{
		"index":    uint64(node.Index),
		"children": children,
	}
}

// Mirror exposes the underlying Shadow DOM Mirror for callers that need
// read access (e.g. the consistency scheduler and tests).
func (t *Tracker) Mirror() *domtree.Mirror { return t.mirror }
