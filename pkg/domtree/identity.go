package domtree

import "github.com/hazyhaar/clarity-agent/pkg/livedom"

// Index is a stable node identity, assigned monotonically at first sighting
// and never reassigned or reused within a session (spec.md §3).
type Index uint64

// NoIndex marks the absence of an identity (e.g. the parent of the shadow
// root, or a live parent the tracker has not discovered yet).
const NoIndex Index = 0

// identityTable maps live nodes to their assigned index and back. It is the
// out-of-band side-table spec.md §3 requires: "Indices are attached
// out-of-band ... not baked into DOM attributes."
type identityTable struct {
	next    uint64
	byNode  map[livedom.Node]Index
	byIndex map[Index]livedom.Node
}

func newIdentityTable() *identityTable {
	return &identityTable{
		next:    uint64(NoIndex) + 1,
		byNode:  make(map[livedom.Node]Index),
		byIndex: make(map[Index]livedom.Node),
	}
}

// assign allocates a fresh index for node, or returns its existing one.
func (t *identityTable) assign(node livedom.Node) Index {
	if idx, ok := t.byNode[node]; ok {
		return idx
	}
	idx := Index(t.next)
	t.next++
	t.byNode[node] = idx
	t.byIndex[idx] = node
	return idx
}

func (t *identityTable) indexOf(node livedom.Node) (Index, bool) {
	idx, ok := t.byNode[node]
	return idx, ok
}

func (t *identityTable) nodeOf(idx Index) (livedom.Node, bool) {
	n, ok := t.byIndex[idx]
	return n, ok
}

// clear removes a node's identity. Called on removal — "Removal clears the
// annotation from the node and all descendants" (spec.md §3).
func (t *identityTable) clear(node livedom.Node) {
	if idx, ok := t.byNode[node]; ok {
		delete(t.byNode, node)
		delete(t.byIndex, idx)
	}
}
