package domtree

import "github.com/hazyhaar/clarity-agent/pkg/livedom"

// ShadowNode is the parallel-tree record spec.md §3 describes as
// { id, parentId, firstChildId, nextSiblingId, kind, snapshot, node }.
// Sibling order is stored as an explicit slice (Children) rather than a
// linked list; FirstChildID/NextSiblingID below derive from it, preserving
// the spec's field-level contract without a hand-rolled linked list.
type ShadowNode struct {
	ID       Index
	ParentID Index
	Children []Index // ordered live children, source of truth for tree shape
	Kind     livedom.NodeKind
	Snapshot LayoutState
	Node     livedom.Node
}

// FirstChildID returns the index of the first child, or NoIndex if none.
func (s *ShadowNode) FirstChildID() Index {
	if len(s.Children) == 0 {
		return NoIndex
	}
	return s.Children[0]
}

// NextSiblingID returns the sibling immediately following child at the
// given index within this node's Children, or NoIndex if it is last (or
// not found).
func (s *ShadowNode) NextSiblingID(child Index) Index {
	for i, c := range s.Children {
		if c == child && i+1 < len(s.Children) {
			return s.Children[i+1]
		}
	}
	return NoIndex
}

func (s *ShadowNode) indexOfChild(child Index) int {
	for i, c := range s.Children {
		if c == child {
			return i
		}
	}
	return -1
}

func (s *ShadowNode) removeChild(child Index) {
	i := s.indexOfChild(child)
	if i < 0 {
		return
	}
	s.Children = append(s.Children[:i], s.Children[i+1:]...)
}

// insertChildBefore inserts child into Children immediately before before.
// If before is NoIndex, child is appended at the end.
func (s *ShadowNode) insertChildBefore(child, before Index) {
	if before == NoIndex {
		s.Children = append(s.Children, child)
		return
	}
	i := s.indexOfChild(before)
	if i < 0 {
		s.Children = append(s.Children, child)
		return
	}
	s.Children = append(s.Children, NoIndex)
	copy(s.Children[i+1:], s.Children[i:])
	s.Children[i] = child
}
