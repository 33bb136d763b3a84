package refplugins_test

import (
	"context"
	"testing"
	"time"

	"github.com/hazyhaar/clarity-agent/pkg/config"
	"github.com/hazyhaar/clarity-agent/pkg/livedom"
	"github.com/hazyhaar/clarity-agent/pkg/livedom/memdom"
	"github.com/hazyhaar/clarity-agent/pkg/pipeline"
	"github.com/hazyhaar/clarity-agent/pkg/plugin/refplugins"
	"github.com/hazyhaar/clarity-agent/pkg/session"
	"github.com/hazyhaar/clarity-agent/pkg/telemetry"
)

type stubSink struct{ events []telemetry.Event }

func (s *stubSink) AddEvent(event telemetry.Event, timeMs float64) error {
	s.events = append(s.events, event)
	return nil
}

func newPipeline() (*pipeline.Pipeline, *stubSink) {
	sess := session.New(config.Default(), time.Now())
	sink := &stubSink{}
	return pipeline.New(sess, sink, func() float64 { return 0 }), sink
}

func TestPointerPlugin_OnlyReportsWhileActive(t *testing.T) {
	p, sink := newPipeline()
	pp := refplugins.NewPointerPlugin(p)

	pp.Report(1, 2) // before activation: dropped
	if len(sink.events) != 0 {
		t.Fatalf("expected no events before activation, got %d", len(sink.events))
	}

	sess := session.New(config.Default(), time.Now())
	if err := pp.Activate(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	pp.Report(3, 4)
	if len(sink.events) != 1 {
		t.Fatalf("expected 1 event after activation, got %d", len(sink.events))
	}

	if err := pp.Reset(context.Background()); err != nil {
		t.Fatal(err)
	}
	pp.Report(5, 6)
	if len(sink.events) != 1 {
		t.Fatalf("expected no new events after reset, got %d", len(sink.events))
	}
}

func TestViewportPlugin_ReportsOnActivate(t *testing.T) {
	p, sink := newPipeline()
	doc := memdom.NewDocument("html")
	root := doc.Root().(*memdom.Element)
	root.MakeScrollable(livedom.ScrollGeometry{Width: 1024, Height: 768})

	vp := refplugins.NewViewportPlugin(p, doc)
	sess := session.New(config.Default(), time.Now())
	if err := vp.Activate(context.Background(), sess); err != nil {
		t.Fatal(err)
	}

	if len(sink.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(sink.events))
	}
	if sink.events[0].Type != string(telemetry.KindNavigationTiming) {
		t.Fatalf("got type %q", sink.events[0].Type)
	}
	if sink.events[0].Data["width"] != float64(1024) {
		t.Fatalf("got width %v", sink.events[0].Data["width"])
	}
}

func TestJsErrorPlugin_ReportsInstrumentationEvent(t *testing.T) {
	p, sink := newPipeline()
	jp := refplugins.NewJsErrorPlugin(p)
	jp.Report("TypeError: x is not a function", "app.js", 42)

	if len(sink.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(sink.events))
	}
	ev := sink.events[0]
	if ev.Origin != telemetry.OriginInstrumentation || ev.Type != string(telemetry.KindJsError) {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Data["line"] != 42 {
		t.Fatalf("got line %v", ev.Data["line"])
	}
}
