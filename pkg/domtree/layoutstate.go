package domtree

import "github.com/hazyhaar/clarity-agent/pkg/livedom"

// Source identifies what triggered a layout state (spec.md §3).
type Source string

const (
	SourceDiscover Source = "Discover"
	SourceMutation Source = "Mutation"
	SourceScroll   Source = "Scroll"
	SourceInput    Source = "Input"
)

// Action classifies a layout state's change relative to the previous one
// recorded for the same index. Ignore is a supplemental value beyond the
// {Insert,Update,Move,Remove} set in spec.md §3 — it is required by the
// ignored-node rule in spec.md §4.1 point 4.
type Action string

const (
	ActionInsert Action = "Insert"
	ActionUpdate Action = "Update"
	ActionMove   Action = "Move"
	ActionRemove Action = "Remove"
	ActionIgnore Action = "Ignore"
)

// LayoutData carries the content payload of a layout state: geometry for
// elements, text for text nodes.
type LayoutData struct {
	Geometry *livedom.ScrollGeometry
	Text     string
}

// LayoutState is a structured snapshot of one node at one instant
// (spec.md §3 / GLOSSARY). It is immutable once emitted.
type LayoutState struct {
	Index      Index
	Parent     Index
	Previous   Index // previous sibling, NoIndex if first child
	Next       Index // next sibling, NoIndex if last child
	Source     Source
	Action     Action
	Tag        string
	Attributes map[string]string
	Layout     LayoutData

	// MutationSequence is set only for Source == SourceMutation.
	MutationSequence *uint64
}

// Clone deep-copies a layout state so watch-binding callbacks can produce a
// fresh state without aliasing map/pointer fields of the previous one
// (spec.md §4.2: "deep-copied from the last for that index").
func (l LayoutState) Clone() LayoutState {
	c := l
	if l.Attributes != nil {
		c.Attributes = make(map[string]string, len(l.Attributes))
		for k, v := range l.Attributes {
			c.Attributes[k] = v
		}
	}
	if l.Layout.Geometry != nil {
		g := *l.Layout.Geometry
		c.Layout.Geometry = &g
	}
	if l.MutationSequence != nil {
		s := *l.MutationSequence
		c.MutationSequence = &s
	}
	return c
}

// ToEventData projects a layout state into the map[string]any shape the
// Event Pipeline attaches to a telemetry.Event with Origin OriginLayout.
func (l LayoutState) ToEventData() map[string]any {
	data := map[string]any{
		"index":    uint64(l.Index),
		"parent":   uint64(l.Parent),
		"previous": uint64(l.Previous),
		"next":     uint64(l.Next),
		"source":   string(l.Source),
		"action":   string(l.Action),
		"tag":      l.Tag,
	}
	if len(l.Attributes) > 0 {
		data["attributes"] = l.Attributes
	}
	if l.Layout.Text != "" {
		data["text"] = l.Layout.Text
	}
	if l.Layout.Geometry != nil {
		data["scrollTop"] = l.Layout.Geometry.ScrollTop
		data["scrollLeft"] = l.Layout.Geometry.ScrollLeft
		data["width"] = l.Layout.Geometry.Width
		data["height"] = l.Layout.Geometry.Height
	}
	if l.MutationSequence != nil {
		data["mutationSequence"] = *l.MutationSequence
	}
	return data
}
