// Package refplugins provides the minimal reference plugins spec.md's
// component table implies every deployment ships alongside the Layout
// Tracker: a pointer-position reporter, a viewport-size reporter, and a
// JS-error reporter. Each satisfies plugin.Capability and forwards its
// output through an Event Pipeline.
package refplugins

import (
	"context"
	"sync"

	"github.com/hazyhaar/clarity-agent/pkg/livedom"
	"github.com/hazyhaar/clarity-agent/pkg/pipeline"
	"github.com/hazyhaar/clarity-agent/pkg/session"
	"github.com/hazyhaar/clarity-agent/pkg/telemetry"
)

const originPointer telemetry.Origin = "Pointer"

// PointerPlugin reports pointer position at whatever rate the host page
// samples it (browsers deliver pointermove at native frequency; this
// plugin does no throttling of its own beyond what its caller does).
type PointerPlugin struct {
	pipeline *pipeline.Pipeline
	mu       sync.Mutex
	active   bool
}

// NewPointerPlugin creates a plugin bound to a pipeline.
func NewPointerPlugin(p *pipeline.Pipeline) *PointerPlugin {
	return &PointerPlugin{pipeline: p}
}

func (p *PointerPlugin) Name() string { return "pointer" }

func (p *PointerPlugin) Activate(ctx context.Context, sess *session.Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = true
	return nil
}

func (p *PointerPlugin) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = false
	return nil
}

func (p *PointerPlugin) Teardown(ctx context.Context) error {
	return p.Reset(ctx)
}

// Report records a pointer position. The caller (the page's own
// pointermove handler) is responsible for sampling; this plugin only
// forwards whatever it is given while active.
func (p *PointerPlugin) Report(x, y float64) {
	p.mu.Lock()
	active := p.active
	p.mu.Unlock()
	if !active {
		return
	}
	p.pipeline.AddEvent(originPointer, "move", map[string]any{"x": x, "y": y})
}

// ViewportPlugin reports the document's viewport dimensions once at
// activation, and again whenever Report is called (e.g. on a resize
// listener the host wires up).
type ViewportPlugin struct {
	pipeline *pipeline.Pipeline
	doc      livedom.Document
}

// NewViewportPlugin creates a plugin bound to a pipeline and the live
// document it reads viewport geometry from.
func NewViewportPlugin(p *pipeline.Pipeline, doc livedom.Document) *ViewportPlugin {
	return &ViewportPlugin{pipeline: p, doc: doc}
}

func (v *ViewportPlugin) Name() string { return "viewport" }

func (v *ViewportPlugin) Activate(ctx context.Context, sess *session.Session) error {
	v.report()
	return nil
}

func (v *ViewportPlugin) Reset(ctx context.Context) error   { return nil }
func (v *ViewportPlugin) Teardown(ctx context.Context) error { return nil }

// Report re-emits the current viewport geometry.
func (v *ViewportPlugin) Report() {
	v.report()
}

func (v *ViewportPlugin) report() {
	geom, ok := v.doc.Root().ScrollGeometry()
	if !ok {
		return
	}
	v.pipeline.Instrument(telemetry.KindNavigationTiming, map[string]any{
		"width":  geom.Width,
		"height": geom.Height,
	})
}

// JsErrorPlugin reports uncaught script errors surfaced by the host page.
type JsErrorPlugin struct {
	pipeline *pipeline.Pipeline
}

// NewJsErrorPlugin creates a plugin bound to a pipeline.
func NewJsErrorPlugin(p *pipeline.Pipeline) *JsErrorPlugin {
	return &JsErrorPlugin{pipeline: p}
}

func (j *JsErrorPlugin) Name() string { return "js-error" }

func (j *JsErrorPlugin) Activate(ctx context.Context, sess *session.Session) error { return nil }
func (j *JsErrorPlugin) Reset(ctx context.Context) error                          { return nil }
func (j *JsErrorPlugin) Teardown(ctx context.Context) error                       { return nil }

// Report forwards one uncaught error as a JsError instrumentation event
// (spec.md §7 Structural error class).
func (j *JsErrorPlugin) Report(message, source string, line int) {
	j.pipeline.Instrument(telemetry.KindJsError, map[string]any{
		"message": message,
		"source":  source,
		"line":    line,
	})
}
