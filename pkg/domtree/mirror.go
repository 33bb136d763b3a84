package domtree

import (
	"errors"

	"github.com/hazyhaar/clarity-agent/pkg/livedom"
)

// ErrDegraded is returned by ApplyMutationBatch while the mirror is in
// degraded mode (spec.md §4.1 "Degraded mode").
var ErrDegraded = errors.New("domtree: mirror is in degraded mode")

// IgnorePolicy decides whether a live node is excluded from content
// snapshots (script/style tags, or a caller-supplied policy). Ignored
// nodes still participate in tree shape (spec.md §4.1 point 4).
type IgnorePolicy func(livedom.Node) bool

// Mirror is the Shadow DOM Mirror: a parallel tree keyed by stable node
// identity, plus the consistency-checking and degraded-mode state machine
// spec.md §4.1 describes.
type Mirror struct {
	identity *identityTable
	arena    map[Index]*ShadowNode
	rootIdx  Index
	ignore   IgnorePolicy

	inconsistencies    int
	degraded           bool
	firstInconsistency *InconsistencyReport
	lastConsistent     *IndexTreeNode
}

// NewMirror creates an empty mirror. Call InsertShadowNode for the live
// document root before applying any mutation batches.
func NewMirror(ignore IgnorePolicy) *Mirror {
	if ignore == nil {
		ignore = func(livedom.Node) bool { return false }
	}
	return &Mirror{
		identity: newIdentityTable(),
		arena:    make(map[Index]*ShadowNode),
		ignore:   ignore,
	}
}

// InsertShadowNode inserts node into the shadow tree under parentIndex,
// positioned before nextSiblingIndex (NoIndex to append last). If node is
// already indexed, its existing shadow node is relinked rather than
// duplicated. Returns the resulting shadow node.
func (m *Mirror) InsertShadowNode(node livedom.Node, parentIndex, nextSiblingIndex Index) *ShadowNode {
	idx, existed := m.identity.indexOf(node)
	if !existed {
		idx = m.identity.assign(node)
	}
	sn, ok := m.arena[idx]
	if !ok {
		sn = &ShadowNode{ID: idx, Node: node, Kind: node.Kind()}
		m.arena[idx] = sn
	}

	if node.Kind() == livedom.KindDocument {
		m.rootIdx = idx
	}

	if sn.ParentID != NoIndex && sn.ParentID != parentIndex {
		if oldParent, ok := m.arena[sn.ParentID]; ok {
			oldParent.removeChild(idx)
		}
	}
	sn.ParentID = parentIndex
	if parentIndex != NoIndex {
		if parent, ok := m.arena[parentIndex]; ok {
			parent.removeChild(idx)
			parent.insertChildBefore(idx, nextSiblingIndex)
		}
	}
	return sn
}

// IndexOf returns the index assigned to a live node, if any.
func (m *Mirror) IndexOf(node livedom.Node) (Index, bool) {
	return m.identity.indexOf(node)
}

// ShadowNodeAt returns the shadow node for an index, if present.
func (m *Mirror) ShadowNodeAt(idx Index) (*ShadowNode, bool) {
	sn, ok := m.arena[idx]
	return sn, ok
}

// SnapshotAt returns the last-recorded layout state for an index.
func (m *Mirror) SnapshotAt(idx Index) (LayoutState, bool) {
	sn, ok := m.arena[idx]
	if !ok {
		return LayoutState{}, false
	}
	return sn.Snapshot, true
}

// SetSnapshot overwrites the stored layout state for an index — used by
// watch bindings (scroll/change/input) to keep the mirror's record current
// without going through mutation-batch classification.
func (m *Mirror) SetSnapshot(idx Index, state LayoutState) {
	if sn, ok := m.arena[idx]; ok {
		sn.Snapshot = state
	}
}

// LiveNodeAt returns the live node backing a shadow index.
func (m *Mirror) LiveNodeAt(idx Index) (livedom.Node, bool) {
	sn, ok := m.arena[idx]
	if !ok {
		return nil, false
	}
	return sn.Node, true
}

// PlaceholderIndices returns every index whose snapshot has not yet been
// backfilled (Action is the zero value), in unspecified order — used by the
// Layout Tracker's discovery phase to seed the backfill queue.
func (m *Mirror) PlaceholderIndices() []Index {
	var out []Index
	for idx, sn := range m.arena {
		if sn.Snapshot.Action == "" {
			out = append(out, idx)
		}
	}
	return out
}

// Backfill computes and stores the initial layout state for a
// placeholder index discovered before the Layout Tracker had time to
// inspect it (spec.md §4.2 "Asynchronous backfill"). Nodes the ignore
// policy excludes still receive a snapshot, tagged ActionIgnore rather
// than ActionInsert (spec.md §4.1 point 4).
func (m *Mirror) Backfill(idx Index) (LayoutState, bool) {
	sn, ok := m.arena[idx]
	if !ok {
		return LayoutState{}, false
	}

	action := ActionInsert
	if m.ignore(sn.Node) {
		action = ActionIgnore
	}

	state := LayoutState{
		Index:      idx,
		Parent:     sn.ParentID,
		Previous:   previousSibling(m, sn),
		Next:       nextSibling(m, sn),
		Source:     SourceDiscover,
		Action:     action,
		Tag:        sn.Node.Tag(),
		Attributes: sn.Node.Attributes(),
		Layout:     snapshotLayout(sn.Node),
	}
	sn.Snapshot = state
	return state, true
}

// Root returns the shadow document root, if discovery has happened.
func (m *Mirror) Root() (*ShadowNode, bool) {
	return m.ShadowNodeAt(m.rootIdx)
}

// Degraded reports whether the mirror has stopped applying mutations after
// two consecutive inconsistent batches.
func (m *Mirror) Degraded() bool { return m.degraded }

// Reset clears degraded mode and the inconsistency counter, allowing
// mutations to be applied again. Called by the Layout Tracker's Reset.
func (m *Mirror) Reset() {
	m.degraded = false
	m.inconsistencies = 0
	m.firstInconsistency = nil
	m.lastConsistent = nil
}

// discoverSubtree recursively indexes a node and its descendants without
// generating per-descendant classification output — used both for initial
// discovery and for indexing the descendants of a newly inserted subtree.
func (m *Mirror) discoverSubtree(node livedom.Node, parentIndex Index) Index {
	idx := m.identity.assign(node)
	sn := &ShadowNode{ID: idx, ParentID: parentIndex, Node: node, Kind: node.Kind()}
	m.arena[idx] = sn
	if parentIndex != NoIndex {
		if parent, ok := m.arena[parentIndex]; ok {
			parent.insertChildBefore(idx, NoIndex)
		}
	}
	for _, child := range node.Children() {
		m.discoverSubtree(child, idx)
	}
	return idx
}

// finalizeRemoval deletes a shadow node and all of its descendants from the
// arena and identity table (spec.md §3: "Removal clears the annotation
// from the node and all descendants").
func (m *Mirror) finalizeRemoval(idx Index) {
	sn, ok := m.arena[idx]
	if !ok {
		return
	}
	for _, child := range append([]Index(nil), sn.Children...) {
		m.finalizeRemoval(child)
	}
	if sn.ParentID != NoIndex {
		if parent, ok := m.arena[sn.ParentID]; ok {
			parent.removeChild(idx)
		}
	}
	m.identity.clear(sn.Node)
	delete(m.arena, idx)
}
