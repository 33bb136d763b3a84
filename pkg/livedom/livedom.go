// Package livedom abstracts "the live document" that the Shadow DOM Mirror
// observes. Spec.md treats the live DOM as ambient; this interface makes it
// an explicit dependency so the core algorithm can run against a
// deterministic in-memory tree in tests (memdom) and against a real Chrome
// target in production (roddom), without either backend leaking into the
// mirror/tracker logic.
package livedom

// NodeKind classifies a live node the way DOM nodeType does.
type NodeKind int

const (
	KindDocument NodeKind = iota
	KindElement
	KindText
	KindComment
)

// ScrollGeometry is the subset of layout geometry the tracker cares about:
// enough to detect scroll position changes and viewport size.
type ScrollGeometry struct {
	ScrollTop  float64
	ScrollLeft float64
	Width      float64
	Height     float64
}

// Node is a live DOM node. Implementations are compared by identity
// (interface equality over the concrete pointer), which is what lets the
// mirror's side-table key mutation targets directly by Node value.
type Node interface {
	Kind() NodeKind
	Tag() string             // element tag name; "" for non-elements
	Attributes() map[string]string
	Text() string             // character data; "" for non-text nodes
	Parent() Node             // nil if detached or root
	Children() []Node
	ScrollGeometry() (ScrollGeometry, bool)
	IsFormControl() bool // input/select — watched via "change"
	IsTextArea() bool    // textarea — watched via "input"
}

// Document is the root of a live tree. Mutation delivery is not part of
// this interface: each backend exposes its own (memdom records Mutation
// values for DrainMutations, roddom streams them from WatchMutations);
// livedom itself carries no mutation vocabulary to avoid a dependency
// cycle with domtree.
type Document interface {
	Node
	Root() Node
}

// Watchable is implemented by nodes whose backend can deliver scroll,
// change, and input notifications directly. The Layout Tracker's watch
// bindings (spec.md §4.2) type-assert Node to Watchable and no-op if a
// backend does not support live event delivery for that node.
type Watchable interface {
	Node
	OnScroll(fn func(ScrollGeometry)) (unsubscribe func())
	OnChange(fn func()) (unsubscribe func())
	OnInput(fn func()) (unsubscribe func())
}
