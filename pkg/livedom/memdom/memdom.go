// Package memdom is an in-memory reference implementation of pkg/livedom,
// used to drive the Shadow DOM Mirror and Layout Tracker deterministically
// in tests — the scenario table in spec.md §8 requires exact control over
// mutation ordering and timing that a real browser cannot give cheaply in
// a unit test.
package memdom

import (
	"github.com/hazyhaar/clarity-agent/pkg/domtree"
	"github.com/hazyhaar/clarity-agent/pkg/livedom"
)

// Element is a live element or text node (see CreateElement, CreateText).
// The document node itself is the separate Document type.
type Element struct {
	kind     livedom.NodeKind
	tag      string
	attrs    map[string]string
	text     string
	parent   *Element
	children []*Element

	scroll      *livedom.ScrollGeometry
	formControl bool
	textArea    bool

	scrollListeners []func(livedom.ScrollGeometry)
	changeListeners []func()
	inputListeners  []func()

	doc *Document
}

func (e *Element) Kind() livedom.NodeKind { return e.kind }
func (e *Element) Tag() string            { return e.tag }
func (e *Element) Text() string           { return e.text }

func (e *Element) Attributes() map[string]string {
	out := make(map[string]string, len(e.attrs))
	for k, v := range e.attrs {
		out[k] = v
	}
	return out
}

func (e *Element) Parent() livedom.Node {
	if e.parent == nil {
		return nil
	}
	return e.parent
}

func (e *Element) Children() []livedom.Node {
	out := make([]livedom.Node, len(e.children))
	for i, c := range e.children {
		out[i] = c
	}
	return out
}

func (e *Element) ScrollGeometry() (livedom.ScrollGeometry, bool) {
	if e.scroll == nil {
		return livedom.ScrollGeometry{}, false
	}
	return *e.scroll, true
}

func (e *Element) IsFormControl() bool { return e.formControl }
func (e *Element) IsTextArea() bool    { return e.textArea }

func (e *Element) OnScroll(fn func(livedom.ScrollGeometry)) func() {
	e.scrollListeners = append(e.scrollListeners, fn)
	i := len(e.scrollListeners) - 1
	return func() { e.scrollListeners[i] = nil }
}

func (e *Element) OnChange(fn func()) func() {
	e.changeListeners = append(e.changeListeners, fn)
	i := len(e.changeListeners) - 1
	return func() { e.changeListeners[i] = nil }
}

func (e *Element) OnInput(fn func()) func() {
	e.inputListeners = append(e.inputListeners, fn)
	i := len(e.inputListeners) - 1
	return func() { e.inputListeners[i] = nil }
}

// MakeScrollable marks an element as reporting scroll geometry, without
// generating a mutation record — scrollability is a rendering fact, not a
// DOM mutation, matching spec.md's open question about when the tracker
// notices it (see pkg/layout's watch binding decision).
func (e *Element) MakeScrollable(initial livedom.ScrollGeometry) {
	g := initial
	e.scroll = &g
}

func (e *Element) MarkFormControl() { e.formControl = true }
func (e *Element) MarkTextArea()    { e.textArea = true }

// Document owns the tree and records every structural/attribute/text
// change as a domtree.Mutation, mirroring how a real MutationObserver
// would deliver records — callers drain them into batches with
// DrainMutations.
type Document struct {
	root    *Element
	pending []domtree.Mutation
}

// NewDocument creates a document with a root element of the given tag
// (e.g. "html").
func NewDocument(rootTag string) *Document {
	d := &Document{}
	d.root = &Element{kind: livedom.KindElement, tag: rootTag, attrs: map[string]string{}, doc: d}
	return d
}

func (d *Document) Kind() livedom.NodeKind { return livedom.KindDocument }
func (d *Document) Tag() string            { return "" }
func (d *Document) Text() string           { return "" }
func (d *Document) Attributes() map[string]string { return nil }
func (d *Document) Parent() livedom.Node   { return nil }
func (d *Document) Children() []livedom.Node {
	return []livedom.Node{d.root}
}
func (d *Document) ScrollGeometry() (livedom.ScrollGeometry, bool) { return livedom.ScrollGeometry{}, false }
func (d *Document) IsFormControl() bool { return false }
func (d *Document) IsTextArea() bool    { return false }
func (d *Document) Root() livedom.Node  { return d.root }

// CreateElement creates a detached element node.
func (d *Document) CreateElement(tag string) *Element {
	return &Element{kind: livedom.KindElement, tag: tag, attrs: map[string]string{}, doc: d}
}

// CreateText creates a detached text node.
func (d *Document) CreateText(text string) *Element {
	return &Element{kind: livedom.KindText, text: text, attrs: map[string]string{}, doc: d}
}

// AppendChild attaches child as parent's last child and records a
// childList mutation.
func (d *Document) AppendChild(parent, child *Element) {
	if child.parent != nil {
		d.removeChildSilent(child.parent, child)
	}
	parent.children = append(parent.children, child)
	child.parent = parent
	d.pending = append(d.pending, domtree.Mutation{
		Kind:       domtree.MutationChildList,
		Target:     parent,
		AddedNodes: []livedom.Node{child},
	})
}

// RemoveChild detaches child from parent and records a childList mutation.
func (d *Document) RemoveChild(parent, child *Element) {
	d.removeChildSilent(parent, child)
	d.pending = append(d.pending, domtree.Mutation{
		Kind:         domtree.MutationChildList,
		Target:       parent,
		RemovedNodes: []livedom.Node{child},
	})
}

func (d *Document) removeChildSilent(parent, child *Element) {
	for i, c := range parent.children {
		if c == child {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			break
		}
	}
	child.parent = nil
}

// SetAttribute sets an attribute and records an attributes mutation.
func (d *Document) SetAttribute(el *Element, name, value string) {
	old := el.attrs[name]
	el.attrs[name] = value
	d.pending = append(d.pending, domtree.Mutation{
		Kind:          domtree.MutationAttributes,
		Target:        el,
		AttributeName: name,
		OldValue:      old,
	})
}

// RemoveAttribute deletes an attribute and records an attributes mutation.
func (d *Document) RemoveAttribute(el *Element, name string) {
	old := el.attrs[name]
	delete(el.attrs, name)
	d.pending = append(d.pending, domtree.Mutation{
		Kind:          domtree.MutationAttributes,
		Target:        el,
		AttributeName: name,
		OldValue:      old,
	})
}

// SetText updates a text node's data and records a characterData mutation.
func (d *Document) SetText(el *Element, text string) {
	old := el.text
	el.text = text
	d.pending = append(d.pending, domtree.Mutation{
		Kind:     domtree.MutationCharacterData,
		Target:   el,
		OldValue: old,
	})
}

// FireScroll updates an element's scroll geometry and notifies listeners
// registered via OnScroll. It does not produce a mutation record — scroll
// position is not DOM structure.
func (d *Document) FireScroll(el *Element, geom livedom.ScrollGeometry) {
	el.scroll = &geom
	for _, fn := range el.scrollListeners {
		if fn != nil {
			fn(geom)
		}
	}
}

// FireChange invokes an element's registered change listeners.
func (d *Document) FireChange(el *Element) {
	for _, fn := range el.changeListeners {
		if fn != nil {
			fn()
		}
	}
}

// DrainMutations returns and clears all mutations recorded since the last
// drain, forming one batch boundary — the caller (typically a test, or the
// scheduler in a real backend) decides where batches split.
func (d *Document) DrainMutations() []domtree.Mutation {
	out := d.pending
	d.pending = nil
	return out
}
