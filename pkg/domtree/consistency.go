package domtree

import "github.com/hazyhaar/clarity-agent/pkg/livedom"

// IndexTreeNode is a shape+identity projection of a tree, used to compare
// the live document against the shadow mirror (spec.md §4.1 "Consistency
// check"). It is the Go analogue of the source's createIndexJson.
type IndexTreeNode struct {
	Index    Index
	Children []*IndexTreeNode
}

// BuildLiveIndexTree walks the live document and records each reachable
// node's assigned index. A node with no assigned index yields NoIndex,
// which will register as a mismatch against the shadow tree.
func BuildLiveIndexTree(m *Mirror, root livedom.Node) *IndexTreeNode {
	idx, _ := m.identity.indexOf(root)
	node := &IndexTreeNode{Index: idx}
	for _, child := range root.Children() {
		node.Children = append(node.Children, BuildLiveIndexTree(m, child))
	}
	return node
}

// BuildShadowIndexTree walks the shadow tree rooted at idx.
func BuildShadowIndexTree(m *Mirror, idx Index) *IndexTreeNode {
	node := &IndexTreeNode{Index: idx}
	sn, ok := m.arena[idx]
	if !ok {
		return node
	}
	for _, child := range sn.Children {
		node.Children = append(node.Children, BuildShadowIndexTree(m, child))
	}
	return node
}

func treesEqual(a, b *IndexTreeNode) bool {
	if a.Index != b.Index {
		return false
	}
	if len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Children {
		if !treesEqual(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}

// Routine names the operation that triggered a consistency check, carried
// on ShadowDomInconsistent instrumentation events (spec.md §4.1).
type Routine string

const (
	RoutineDiscoverDom Routine = "DiscoverDom"
	RoutineMutation    Routine = "Mutation"
)

// InconsistencyReport is emitted as a ShadowDomInconsistent instrumentation
// event on divergence. First is populated only on the second consecutive
// divergence, per spec.md: "The first inconsistency is attached to the
// second report for diagnosis."
type InconsistencyReport struct {
	LiveTree       *IndexTreeNode
	ShadowTree     *IndexTreeNode
	LastConsistent *IndexTreeNode
	Routine        Routine
	Sequence       uint64
	BatchSize      int
	First          *InconsistencyReport
}

// IsConsistent builds both index trees rooted at the live document and
// compares them for shape+identity equality.
func (m *Mirror) IsConsistent(liveRoot livedom.Node) bool {
	if m.rootIdx == NoIndex {
		return false
	}
	live := BuildLiveIndexTree(m, liveRoot)
	shadow := BuildShadowIndexTree(m, m.rootIdx)
	return treesEqual(live, shadow)
}

// CheckConsistency runs the consistency check and, on divergence, updates
// the inconsistency counter and possibly enters degraded mode (after two
// consecutive divergences). It returns the report to emit as
// ShadowDomInconsistent when consistent is false, or nil when consistent.
func (m *Mirror) CheckConsistency(liveRoot livedom.Node, routine Routine, sequence uint64, batchSize int) *InconsistencyReport {
	live := BuildLiveIndexTree(m, liveRoot)
	shadow := BuildShadowIndexTree(m, m.rootIdx)

	if treesEqual(live, shadow) {
		m.inconsistencies = 0
		m.firstInconsistency = nil
		m.lastConsistent = shadow
		return nil
	}

	m.inconsistencies++
	report := &InconsistencyReport{
		LiveTree:       live,
		ShadowTree:     shadow,
		LastConsistent: m.lastConsistent,
		Routine:        routine,
		Sequence:       sequence,
		BatchSize:      batchSize,
	}

	if m.inconsistencies >= 2 {
		report.First = m.firstInconsistency
		m.degraded = true
	} else {
		m.firstInconsistency = report
	}

	return report
}
