package pipeline_test

import (
	"testing"
	"time"

	"github.com/hazyhaar/clarity-agent/pkg/config"
	"github.com/hazyhaar/clarity-agent/pkg/pipeline"
	"github.com/hazyhaar/clarity-agent/pkg/session"
	"github.com/hazyhaar/clarity-agent/pkg/telemetry"
)

type stubSink struct {
	events []telemetry.Event
}

func (s *stubSink) AddEvent(event telemetry.Event, timeMs float64) error {
	s.events = append(s.events, event)
	return nil
}

func TestAddEvent_AssignsContiguousIDs(t *testing.T) {
	sess := session.New(config.Default(), time.Now())
	sink := &stubSink{}
	p := pipeline.New(sess, sink, func() float64 { return 42 })

	p.AddEvent(telemetry.OriginLayout, "layout", map[string]any{"a": 1})
	p.AddEvent(telemetry.OriginLayout, "layout", map[string]any{"a": 2})

	if len(sink.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(sink.events))
	}
	if sink.events[0].ID != 0 || sink.events[1].ID != 1 {
		t.Fatalf("expected contiguous ids 0,1, got %d,%d", sink.events[0].ID, sink.events[1].ID)
	}
}

func TestInstrument_UsesInstrumentationOrigin(t *testing.T) {
	sess := session.New(config.Default(), time.Now())
	sink := &stubSink{}
	p := pipeline.New(sess, sink, func() float64 { return 0 })

	p.Instrument(telemetry.KindJsError, map[string]any{"message": "boom"})

	if sink.events[0].Origin != telemetry.OriginInstrumentation {
		t.Fatalf("got origin %q", sink.events[0].Origin)
	}
	if sink.events[0].Type != string(telemetry.KindJsError) {
		t.Fatalf("got type %q", sink.events[0].Type)
	}
}

func TestGetTimestamp_AbsoluteAddsElapsedToSessionStart(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sess := session.New(config.Default(), start)
	sink := &stubSink{}
	p := pipeline.New(sess, sink, func() float64 { return 1500 })

	if got := p.GetTimestamp(true); got != 1500 {
		t.Fatalf("relative: got %v, want 1500", got)
	}

	want := float64(start.UnixMilli()) + 1500
	if got := p.GetTimestamp(false); got != want {
		t.Fatalf("absolute: got %v, want %v", got, want)
	}
}

func TestBindUnbind_RunsUnsubscribers(t *testing.T) {
	sess := session.New(config.Default(), time.Now())
	sink := &stubSink{}
	p := pipeline.New(sess, sink, func() float64 { return 0 })

	called := 0
	p.Bind("plugin-a", func() { called++ })
	p.Bind("plugin-a", func() { called++ })
	p.Unbind("plugin-a")

	if called != 2 {
		t.Fatalf("expected both listeners unbound, got %d calls", called)
	}
	p.Unbind("plugin-a") // second call is a no-op, not a re-run
	if called != 2 {
		t.Fatalf("expected no further calls, got %d", called)
	}
}
