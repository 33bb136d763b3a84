package domtree_test

import (
	"testing"

	"github.com/hazyhaar/clarity-agent/pkg/domtree"
	"github.com/hazyhaar/clarity-agent/pkg/livedom"
	"github.com/hazyhaar/clarity-agent/pkg/livedom/memdom"
)

// discover indexes the whole live tree, as the Layout Tracker's Discovery
// phase would (spec.md §4.2).
func discover(m *domtree.Mirror, doc *memdom.Document) {
	docIdx := m.InsertShadowNode(doc, domtree.NoIndex, domtree.NoIndex).ID
	var walk func(livedom.Node, domtree.Index)
	walk = func(n livedom.Node, parent domtree.Index) {
		idx := m.InsertShadowNode(n, parent, domtree.NoIndex).ID
		for _, c := range n.Children() {
			walk(c, idx)
		}
	}
	for _, c := range doc.Children() {
		walk(c, docIdx)
	}
}

func setupDiscovered(t *testing.T) (*domtree.Mirror, *memdom.Document, *memdom.Element) {
	t.Helper()
	doc := memdom.NewDocument("html")
	body := doc.CreateElement("body")
	doc.AppendChild(rootElement(doc), body)
	divA := doc.CreateElement("div")
	doc.SetAttribute(divA, "id", "a")
	doc.AppendChild(body, divA)
	doc.DrainMutations() // discovery sees the tree fully built; these aren't "mutations"

	m := domtree.NewMirror(nil)
	discover(m, doc)

	if !m.IsConsistent(doc) {
		t.Fatal("expected consistent shadow tree after discovery")
	}
	return m, doc, divA
}

// rootElement extracts the <html> element from a fresh document.
func rootElement(doc *memdom.Document) *memdom.Element {
	return doc.Root().(*memdom.Element)
}

func TestScenario1_InsertNewSpan(t *testing.T) {
	m, doc, divA := setupDiscovered(t)

	span := doc.CreateElement("span")
	doc.AppendChild(divA, span)
	batch := doc.DrainMutations()

	summary, err := m.ApplyMutationBatch(batch, 1)
	if err != nil {
		t.Fatalf("ApplyMutationBatch: %v", err)
	}
	if len(summary.Inserted) != 1 {
		t.Fatalf("expected 1 inserted event, got %d", len(summary.Inserted))
	}
	ev := summary.Inserted[0]
	if ev.Action != domtree.ActionInsert || ev.Source != domtree.SourceMutation {
		t.Fatalf("unexpected event: %+v", ev)
	}
	divIdx, _ := m.IndexOf(divA)
	if ev.Parent != divIdx {
		t.Fatalf("parent: got %v, want %v", ev.Parent, divIdx)
	}
	if !m.IsConsistent(doc) {
		t.Fatal("expected consistent shadow tree after insert")
	}
}

func TestScenario2_UpdateAttribute(t *testing.T) {
	m, doc, divA := setupDiscovered(t)

	doc.SetAttribute(divA, "title", "x")
	doc.DrainMutations()
	doc.SetAttribute(divA, "title", "y")
	batch := doc.DrainMutations()

	summary, err := m.ApplyMutationBatch(batch, 2)
	if err != nil {
		t.Fatalf("ApplyMutationBatch: %v", err)
	}
	if len(summary.Updated) != 1 {
		t.Fatalf("expected 1 updated event, got %d", len(summary.Updated))
	}
	ev := summary.Updated[0]
	if ev.Action != domtree.ActionUpdate {
		t.Fatalf("action: got %v", ev.Action)
	}
	if ev.Attributes["title"] != "y" {
		t.Fatalf("title: got %q, want %q", ev.Attributes["title"], "y")
	}
}

func TestInvariant_IndexConstantUntilRemoval(t *testing.T) {
	m, doc, divA := setupDiscovered(t)
	idxBefore, _ := m.IndexOf(divA)

	doc.SetAttribute(divA, "class", "highlighted")
	batch := doc.DrainMutations()
	if _, err := m.ApplyMutationBatch(batch, 1); err != nil {
		t.Fatal(err)
	}

	idxAfter, ok := m.IndexOf(divA)
	if !ok || idxAfter != idxBefore {
		t.Fatalf("index changed: before=%v after=%v ok=%v", idxBefore, idxAfter, ok)
	}
}

func TestScenario6_DegradedModeAfterTwoInconsistencies(t *testing.T) {
	doc := memdom.NewDocument("html")
	body := doc.CreateElement("body")
	doc.AppendChild(rootElement(doc), body)
	doc.DrainMutations()

	m := domtree.NewMirror(nil)
	discover(m, doc)

	if report := m.CheckConsistency(doc, domtree.RoutineDiscoverDom, 0, 0); report != nil {
		t.Fatalf("expected consistent tree right after discovery, got %+v", report)
	}

	// Simulate divergence: mutate the live tree without applying the
	// corresponding batch to the mirror, so the mirror falls behind.
	span := doc.CreateElement("span")
	doc.AppendChild(body, span)
	doc.DrainMutations() // drop the batch on the floor — mirror never sees it

	first := m.CheckConsistency(doc, domtree.RoutineMutation, 1, 1)
	if first == nil {
		t.Fatal("expected first divergence to be reported")
	}
	if first.First != nil {
		t.Fatal("first inconsistency report must not itself reference a prior one")
	}
	if first.LastConsistent == nil {
		t.Fatal("expected first divergence to carry the last known consistent tree")
	}

	span2 := doc.CreateElement("span")
	doc.AppendChild(body, span2)
	doc.DrainMutations()

	second := m.CheckConsistency(doc, domtree.RoutineMutation, 2, 1)
	if second == nil {
		t.Fatal("expected second divergence to be reported")
	}
	if second.First == nil {
		t.Fatal("second report must reference the first inconsistency")
	}
	if !m.Degraded() {
		t.Fatal("expected mirror to enter degraded mode after two consecutive inconsistencies")
	}

	_, err := m.ApplyMutationBatch(nil, 3)
	if err != domtree.ErrDegraded {
		t.Fatalf("expected ErrDegraded, got %v", err)
	}
}

func TestRemoval_ClearsIndex(t *testing.T) {
	m, doc, divA := setupDiscovered(t)
	span := doc.CreateElement("span")
	doc.AppendChild(divA, span)
	batch := doc.DrainMutations()
	if _, err := m.ApplyMutationBatch(batch, 1); err != nil {
		t.Fatal(err)
	}

	doc.RemoveChild(divA, span)
	batch = doc.DrainMutations()
	summary, err := m.ApplyMutationBatch(batch, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.Removed) != 1 {
		t.Fatalf("expected 1 removed event, got %d", len(summary.Removed))
	}
	if _, ok := m.IndexOf(span); ok {
		t.Fatal("expected index to be cleared after removal")
	}
}
