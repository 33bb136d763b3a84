// Package pipeline implements the Event Pipeline (spec.md §4.3): it turns
// layout state, plugin capability output, and instrumentation reports
// into telemetry.Event values with contiguous per-session ids, and hands
// them to a sink (typically the Batcher).
package pipeline

import (
	"log/slog"
	"sync"

	"github.com/hazyhaar/clarity-agent/pkg/session"
	"github.com/hazyhaar/clarity-agent/pkg/telemetry"
)

// Sink receives events as the pipeline produces them — the Batcher
// implements this in production; tests can use a plain slice-collecting
// stub.
type Sink interface {
	AddEvent(event telemetry.Event, timeMs float64) error
}

// Pipeline assigns ids and timestamps to raw event data and forwards the
// resulting telemetry.Event to a Sink. It also tracks every listener
// registered through Bind so a single Unbind call can remove a whole
// group without the caller keeping each unsubscribe closure. Unbind runs
// only when a caller invokes it; plugin.Host.Teardown does not call it.
type Pipeline struct {
	sess   *session.Session
	sink   Sink
	now    func() float64 // relative-to-session-start milliseconds
	logger *slog.Logger

	mu        sync.Mutex
	listeners map[string][]func()
}

// New creates a Pipeline bound to a session and sink. now returns the
// current relative timestamp in milliseconds — normally
// session.ElapsedMillis(time.Now()), overridable in tests for determinism.
func New(sess *session.Session, sink Sink, now func() float64) *Pipeline {
	return &Pipeline{
		sess:      sess,
		sink:      sink,
		now:       now,
		logger:    slog.Default(),
		listeners: make(map[string][]func()),
	}
}

// GetTimestamp returns the current time (spec.md §4.3 getTimestamp). If
// relative is true it is milliseconds since session start, the value
// events are timestamped against; otherwise it is wall-clock time,
// expressed as Unix-epoch milliseconds, computed by adding the elapsed
// offset back onto the session's start time.
func (p *Pipeline) GetTimestamp(relative bool) float64 {
	elapsed := p.now()
	if relative {
		return elapsed
	}
	return float64(p.sess.StartTime.UnixMilli()) + elapsed
}

// AddEvent assigns the next contiguous event id and forwards a single
// telemetry event of the given origin/type/data to the sink.
func (p *Pipeline) AddEvent(origin telemetry.Origin, eventType string, data map[string]any) telemetry.Event {
	ev := telemetry.Event{
		ID:     p.sess.NextEventID(),
		Origin: origin,
		Type:   eventType,
		Time:   p.GetTimestamp(true),
		Data:   data,
	}
	if err := p.sink.AddEvent(ev, ev.Time); err != nil {
		p.logger.Error("pipeline: sink rejected event", "type", ev.Type, "error", err)
	}
	return ev
}

// AddMultipleEvents assigns contiguous ids to a batch of events, in the
// order given, and forwards each to the sink — used when a single
// mutation batch or plugin callback produces several layout events at
// once (spec.md §4.3: "ids are contiguous per session, preserving the
// order events were produced in, even across origins").
func (p *Pipeline) AddMultipleEvents(items []struct {
	Origin telemetry.Origin
	Type   string
	Data   map[string]any
}) []telemetry.Event {
	out := make([]telemetry.Event, 0, len(items))
	for _, item := range items {
		out = append(out, p.AddEvent(item.Origin, item.Type, item.Data))
	}
	return out
}

// Instrument records an instrumentation-origin event for one of the
// closed-set kinds (spec.md §6): errors, inconsistencies, and timing
// reports that aren't part of the layout stream itself.
func (p *Pipeline) Instrument(kind telemetry.InstrumentationKind, data map[string]any) telemetry.Event {
	return p.AddEvent(telemetry.OriginInstrumentation, string(kind), data)
}

// Bind registers a listener under a named group (typically a plugin name)
// so it can be removed later via Unbind, without the caller needing to
// keep the unsubscribe closure itself.
func (p *Pipeline) Bind(group string, unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners[group] = append(p.listeners[group], unsubscribe)
}

// Unbind removes every listener registered under group.
func (p *Pipeline) Unbind(group string) {
	p.mu.Lock()
	fns := p.listeners[group]
	delete(p.listeners, group)
	p.mu.Unlock()

	for _, fn := range fns {
		if fn != nil {
			fn()
		}
	}
}
