package domtree

import "github.com/hazyhaar/clarity-agent/pkg/livedom"

// Summary is the classified result of one applied mutation batch, grouped
// in the emission order spec.md §4.2 mandates: insert, move, update,
// remove.
type Summary struct {
	Inserted []LayoutState
	Moved    []LayoutState
	Updated  []LayoutState
	Removed  []LayoutState
}

// Events concatenates the summary in spec-mandated emission order.
func (s Summary) Events() []LayoutState {
	out := make([]LayoutState, 0, len(s.Inserted)+len(s.Moved)+len(s.Updated)+len(s.Removed))
	out = append(out, s.Inserted...)
	out = append(out, s.Moved...)
	out = append(out, s.Updated...)
	out = append(out, s.Removed...)
	return out
}

type preState struct {
	existed  bool
	parentID Index
	attrs    map[string]string
	text     string
}

// ApplyMutationBatch classifies and applies a batch of raw mutations
// against the shadow tree (spec.md §4.1). It applies the batch structurally
// (so the mirror always reflects the terminal state) and derives the
// New/Moved/Updated/Removed classification by diffing each touched node's
// state before and after the batch — which is exactly the "terminal
// observed state wins" rule in spec.md rule 3: only the endpoints matter,
// not the intermediate mutations.
func (m *Mirror) ApplyMutationBatch(batch []Mutation, seq uint64) (Summary, error) {
	if m.degraded {
		return Summary{}, ErrDegraded
	}

	pre := make(map[Index]preState)

	// touchedOrder and removedOrder preserve the order nodes were first
	// encountered in the batch — spec.md §1 pins a total order on emitted
	// layout events, so classification must not depend on Go's randomized
	// map iteration order.
	touchedSet := make(map[Index]struct{})
	var touchedOrder []Index
	touch := func(idx Index) {
		if _, ok := touchedSet[idx]; ok {
			return
		}
		touchedSet[idx] = struct{}{}
		touchedOrder = append(touchedOrder, idx)
	}

	removedSet := make(map[Index]struct{})
	var removedOrder []Index

	snapshotIfAbsent := func(idx Index) {
		if _, ok := pre[idx]; ok {
			return
		}
		sn, exists := m.arena[idx]
		if !exists {
			pre[idx] = preState{existed: false}
			return
		}
		attrs := make(map[string]string, len(sn.Snapshot.Attributes))
		for k, v := range sn.Snapshot.Attributes {
			attrs[k] = v
		}
		pre[idx] = preState{
			existed:  true,
			parentID: sn.ParentID,
			attrs:    attrs,
			text:     sn.Snapshot.Layout.Text,
		}
	}

	ensureIndexed := func(node livedom.Node) Index {
		idx, ok := m.identity.indexOf(node)
		if ok {
			if _, exists := m.arena[idx]; exists {
				return idx
			}
		}
		idx = m.identity.assign(node)
		m.arena[idx] = &ShadowNode{ID: idx, Node: node, Kind: node.Kind()}
		return idx
	}

	// touchSubtree records pre-state and touched-order for every descendant
	// of a subtree m.discoverSubtree has just indexed into the arena, so a
	// pre-built subtree attached in one mutation gets an Insert event for
	// every node in it, not just its root (spec.md §4.1 rule 2).
	var touchSubtree func(node livedom.Node)
	touchSubtree = func(node livedom.Node) {
		idx, ok := m.identity.indexOf(node)
		if !ok {
			return
		}
		pre[idx] = preState{existed: false}
		touch(idx)
		for _, child := range node.Children() {
			touchSubtree(child)
		}
	}

	for _, mut := range batch {
		switch mut.Kind {
		case MutationChildList:
			parentIdx := ensureIndexed(mut.Target)
			snapshotIfAbsent(parentIdx)
			touch(parentIdx)

			for _, removed := range mut.RemovedNodes {
				idx, ok := m.identity.indexOf(removed)
				if !ok {
					continue
				}
				snapshotIfAbsent(idx)
				touch(idx)
				if sn, ok := m.arena[idx]; ok {
					if parent, ok := m.arena[sn.ParentID]; ok {
						parent.removeChild(idx)
					}
					sn.ParentID = NoIndex
				}
				if _, ok := removedSet[idx]; !ok {
					removedSet[idx] = struct{}{}
					removedOrder = append(removedOrder, idx)
				}
			}

			for _, added := range mut.AddedNodes {
				idx, existed := m.identity.indexOf(added)
				if !existed {
					idx = m.identity.assign(added)
				}
				// Capture pre-state before the arena entry for a
				// never-before-seen node is created, or snapshotIfAbsent
				// would find that entry and misreport the node as having
				// already existed (with no parent), turning its Insert
				// into a Move.
				snapshotIfAbsent(idx)
				if _, exists := m.arena[idx]; !exists {
					m.arena[idx] = &ShadowNode{ID: idx, Node: added, Kind: added.Kind()}
					for _, child := range added.Children() {
						m.discoverSubtree(child, idx)
						touchSubtree(child)
					}
				}
				touch(idx)
				delete(removedSet, idx)

				sn := m.arena[idx]
				if sn.ParentID != NoIndex && sn.ParentID != parentIdx {
					if oldParent, ok := m.arena[sn.ParentID]; ok {
						oldParent.removeChild(idx)
					}
				}
				sn.ParentID = parentIdx
				parent := m.arena[parentIdx]
				parent.removeChild(idx)
				parent.insertChildBefore(idx, NoIndex)
			}

		case MutationAttributes:
			idx, ok := m.identity.indexOf(mut.Target)
			if !ok {
				continue
			}
			snapshotIfAbsent(idx)
			touch(idx)
			sn := m.arena[idx]
			if sn.Snapshot.Attributes == nil {
				sn.Snapshot.Attributes = make(map[string]string)
			}
			if val, present := mut.Target.Attributes()[mut.AttributeName]; present {
				sn.Snapshot.Attributes[mut.AttributeName] = val
			} else {
				delete(sn.Snapshot.Attributes, mut.AttributeName)
			}

		case MutationCharacterData:
			idx, ok := m.identity.indexOf(mut.Target)
			if !ok {
				continue
			}
			snapshotIfAbsent(idx)
			touch(idx)
			sn := m.arena[idx]
			sn.Snapshot.Layout.Text = mut.Target.Text()
		}
	}

	summary := Summary{}
	seqCopy := seq

	// Finalize pending removals first so they don't appear "still present"
	// when we diff touched nodes below.
	for _, idx := range removedOrder {
		if _, pending := removedSet[idx]; !pending {
			continue // re-added later in the same batch
		}
		sn, ok := m.arena[idx]
		if !ok {
			continue
		}
		state := LayoutState{
			Index:            idx,
			Parent:           pre[idx].parentID,
			Action:           ActionRemove,
			Source:           SourceMutation,
			Tag:              sn.Node.Tag(),
			MutationSequence: &seqCopy,
		}
		summary.Removed = append(summary.Removed, state)
		m.finalizeRemoval(idx)
		delete(touchedSet, idx)
	}

	for _, idx := range touchedOrder {
		if _, ok := touchedSet[idx]; !ok {
			continue
		}
		sn, exists := m.arena[idx]
		if !exists {
			continue
		}
		p := pre[idx]

		var action Action
		switch {
		case !p.existed:
			action = ActionInsert
		case p.parentID != sn.ParentID:
			action = ActionMove
		case attrsDiffer(p.attrs, sn.Snapshot.Attributes) || p.text != sn.Snapshot.Layout.Text:
			action = ActionUpdate
		default:
			continue // touched but no net change
		}

		if m.ignore(sn.Node) {
			action = ActionIgnore
		}

		state := LayoutState{
			Index:            idx,
			Parent:           sn.ParentID,
			Previous:         previousSibling(m, sn),
			Next:             nextSibling(m, sn),
			Source:           SourceMutation,
			Action:           action,
			Tag:              sn.Node.Tag(),
			Attributes:       copyAttrs(sn.Snapshot.Attributes),
			Layout:           snapshotLayout(sn.Node),
			MutationSequence: &seqCopy,
		}
		sn.Snapshot = state

		switch action {
		case ActionInsert, ActionIgnore:
			summary.Inserted = append(summary.Inserted, state)
		case ActionMove:
			summary.Moved = append(summary.Moved, state)
		case ActionUpdate:
			summary.Updated = append(summary.Updated, state)
		}
	}

	return summary, nil
}

func attrsDiffer(a, b map[string]string) bool {
	if len(a) != len(b) {
		return true
	}
	for k, v := range a {
		if b[k] != v {
			return true
		}
	}
	return false
}

func copyAttrs(a map[string]string) map[string]string {
	out := make(map[string]string, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

func snapshotLayout(node livedom.Node) LayoutData {
	data := LayoutData{}
	if node.Kind() == livedom.KindText {
		data.Text = node.Text()
	}
	if geom, ok := node.ScrollGeometry(); ok {
		g := geom
		data.Geometry = &g
	}
	return data
}

func previousSibling(m *Mirror, sn *ShadowNode) Index {
	parent, ok := m.arena[sn.ParentID]
	if !ok {
		return NoIndex
	}
	prev := NoIndex
	for _, c := range parent.Children {
		if c == sn.ID {
			return prev
		}
		prev = c
	}
	return NoIndex
}

func nextSibling(m *Mirror, sn *ShadowNode) Index {
	parent, ok := m.arena[sn.ParentID]
	if !ok {
		return NoIndex
	}
	return parent.NextSiblingID(sn.ID)
}
