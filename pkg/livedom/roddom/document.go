package roddom

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/hazyhaar/clarity-agent/pkg/domtree"
	"github.com/hazyhaar/clarity-agent/pkg/livedom"
)

// Node wraps one CDP DOM node. Identity is the CDP NodeID, which — like
// pkg/livedom expects of any backend — stays stable for the node's
// lifetime in the document.
type Node struct {
	doc  *Document
	id   proto.DOMNodeID
	info *proto.DOMNode
}

func (n *Node) Kind() livedom.NodeKind {
	switch n.info.NodeType {
	case 1: // ELEMENT_NODE
		return livedom.KindElement
	case 3: // TEXT_NODE
		return livedom.KindText
	case 8: // COMMENT_NODE
		return livedom.KindComment
	default:
		return livedom.KindElement
	}
}

func (n *Node) Tag() string {
	if n.info.NodeType != 1 {
		return ""
	}
	return n.info.LocalName
}

func (n *Node) Text() string {
	if n.info.NodeType == 3 {
		return n.info.NodeValue
	}
	return ""
}

func (n *Node) Attributes() map[string]string {
	out := make(map[string]string, len(n.info.Attributes)/2)
	for i := 0; i+1 < len(n.info.Attributes); i += 2 {
		out[n.info.Attributes[i]] = n.info.Attributes[i+1]
	}
	return out
}

func (n *Node) Parent() livedom.Node {
	if n.info.ParentID == 0 {
		return nil
	}
	if p, ok := n.doc.nodeByID(n.info.ParentID); ok {
		return p
	}
	return nil
}

func (n *Node) Children() []livedom.Node {
	out := make([]livedom.Node, 0, len(n.info.Children))
	for _, c := range n.info.Children {
		if node, ok := n.doc.registerNode(c); ok {
			out = append(out, node)
		}
	}
	return out
}

func (n *Node) ScrollGeometry() (livedom.ScrollGeometry, bool) {
	el, err := n.element()
	if err != nil {
		return livedom.ScrollGeometry{}, false
	}
	res, err := el.Eval(`() => ({top: this.scrollTop||0, left: this.scrollLeft||0, w: this.clientWidth||0, h: this.clientHeight||0})`)
	if err != nil {
		return livedom.ScrollGeometry{}, false
	}
	return livedom.ScrollGeometry{
		ScrollTop:  res.Value.Get("top").Num(),
		ScrollLeft: res.Value.Get("left").Num(),
		Width:      res.Value.Get("w").Num(),
		Height:     res.Value.Get("h").Num(),
	}, true
}

func (n *Node) IsFormControl() bool {
	tag := n.Tag()
	return tag == "input" || tag == "select"
}

func (n *Node) IsTextArea() bool { return n.Tag() == "textarea" }

func (n *Node) element() (*rod.Element, error) {
	return n.doc.page.ElementFromNode(&proto.DOMNode{NodeID: n.id, BackendNodeID: n.info.BackendNodeID})
}

// OnScroll polls scroll geometry on an interval and invokes fn on change.
// A real MutationObserver-style push notification would need a per-node
// injected listener wired back through a CDP runtime binding; polling is
// the conservative choice that needs no page-side script injection.
func (n *Node) OnScroll(fn func(livedom.ScrollGeometry)) func() {
	return n.doc.pollGeometry(n, fn)
}

func (n *Node) OnChange(fn func()) func() {
	return n.doc.pollAttribute(n, "value", fn)
}

func (n *Node) OnInput(fn func()) func() {
	return n.doc.pollAttribute(n, "value", fn)
}

// Document is the roddom livedom.Document backend: one rod.Page, a CDP
// node registry keyed by NodeID, and a mutation stream translated from
// CDP DOM domain events (grounded on the corpus's cdpdom listener).
type Document struct {
	page   *rod.Page
	logger *slog.Logger

	mu      sync.Mutex
	nodes   map[proto.DOMNodeID]*Node
	root    *Node
	pending []domtree.Mutation

	pollMu   sync.Mutex
	pollStop map[int]chan struct{}
	pollSeq  int
}

// Open navigates to url (if non-empty) and builds the initial document
// snapshot via DOM.getDocument.
func Open(page *rod.Page, url string, logger *slog.Logger) (*Document, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if url != "" {
		if err := page.Navigate(url); err != nil {
			return nil, err
		}
		page.MustWaitLoad()
	}

	d := &Document{
		page:     page,
		logger:   logger,
		nodes:    make(map[proto.DOMNodeID]*Node),
		pollStop: make(map[int]chan struct{}),
	}

	doc, err := proto.DOMGetDocument{Depth: gson.Int(-1), Pierce: false}.Call(page)
	if err != nil {
		return nil, err
	}
	root, _ := d.registerNode(doc.Root)
	d.root = root
	return d, nil
}

func (d *Document) registerNode(info *proto.DOMNode) (*Node, bool) {
	if info == nil {
		return nil, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.nodes[info.NodeID]
	if !ok {
		n = &Node{doc: d, id: info.NodeID, info: info}
		d.nodes[info.NodeID] = n
	} else {
		n.info = info
	}
	return n, true
}

func (d *Document) nodeByID(id proto.DOMNodeID) (*Node, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.nodes[id]
	return n, ok
}

func (d *Document) Kind() livedom.NodeKind             { return livedom.KindDocument }
func (d *Document) Tag() string                        { return "" }
func (d *Document) Text() string                       { return "" }
func (d *Document) Attributes() map[string]string       { return nil }
func (d *Document) Parent() livedom.Node                { return nil }
func (d *Document) Children() []livedom.Node {
	if d.root == nil {
		return nil
	}
	return []livedom.Node{d.root}
}
func (d *Document) ScrollGeometry() (livedom.ScrollGeometry, bool) { return livedom.ScrollGeometry{}, false }
func (d *Document) IsFormControl() bool                            { return false }
func (d *Document) IsTextArea() bool                                { return false }
func (d *Document) Root() livedom.Node                              { return d.root }

// pollGeometry starts a goroutine sampling scroll geometry every 200ms
// and invoking fn whenever it changes, returning an unsubscribe closure.
func (d *Document) pollGeometry(n *Node, fn func(livedom.ScrollGeometry)) func() {
	stop := make(chan struct{})
	id := d.registerPoll(stop)
	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		var last livedom.ScrollGeometry
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				g, ok := n.ScrollGeometry()
				if ok && g != last {
					last = g
					fn(g)
				}
			}
		}
	}()
	return func() { d.unregisterPoll(id) }
}

func (d *Document) pollAttribute(n *Node, attr string, fn func()) func() {
	stop := make(chan struct{})
	id := d.registerPoll(stop)
	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		last := n.Attributes()[attr]
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				cur := n.Attributes()[attr]
				if cur != last {
					last = cur
					fn()
				}
			}
		}
	}()
	return func() { d.unregisterPoll(id) }
}

func (d *Document) registerPoll(stop chan struct{}) int {
	d.pollMu.Lock()
	defer d.pollMu.Unlock()
	d.pollSeq++
	id := d.pollSeq
	d.pollStop[id] = stop
	return id
}

func (d *Document) unregisterPoll(id int) {
	d.pollMu.Lock()
	defer d.pollMu.Unlock()
	if ch, ok := d.pollStop[id]; ok {
		close(ch)
		delete(d.pollStop, id)
	}
}

// WatchMutations subscribes to the CDP DOM domain and translates its
// events into domtree.Mutation batches, one single-record batch per CDP
// event — grounded on the corpus's cdpdom listener, which handles the
// same event set (childNodeInserted/Removed, attributeModified/Removed,
// characterDataModified) via a single EachEvent subscription.
func (d *Document) WatchMutations(ctx context.Context) <-chan []domtree.Mutation {
	out := make(chan []domtree.Mutation, 16)
	proto.DOMEnable{}.Call(d.page)

	flush := func() {
		d.mu.Lock()
		batch := d.pending
		d.pending = nil
		d.mu.Unlock()
		if len(batch) > 0 {
			out <- batch
		}
	}

	go func() {
		defer close(out)
		wait := d.page.Context(ctx).EachEvent(
			func(e *proto.DOMChildNodeInserted) {
				parent, _ := d.nodeByID(e.ParentNodeID)
				child, _ := d.registerNode(e.Node)
				if parent == nil || child == nil {
					return
				}
				d.mu.Lock()
				d.pending = append(d.pending, domtree.Mutation{
					Kind:       domtree.MutationChildList,
					Target:     parent,
					AddedNodes: []livedom.Node{child},
				})
				d.mu.Unlock()
				flush()
			},
			func(e *proto.DOMChildNodeRemoved) {
				parent, _ := d.nodeByID(e.ParentNodeID)
				child, _ := d.nodeByID(e.NodeID)
				if parent == nil || child == nil {
					return
				}
				d.mu.Lock()
				d.pending = append(d.pending, domtree.Mutation{
					Kind:         domtree.MutationChildList,
					Target:       parent,
					RemovedNodes: []livedom.Node{child},
				})
				d.mu.Unlock()
				flush()
			},
			func(e *proto.DOMAttributeModified) {
				target, _ := d.nodeByID(e.NodeID)
				if target == nil {
					return
				}
				d.mu.Lock()
				d.pending = append(d.pending, domtree.Mutation{
					Kind:          domtree.MutationAttributes,
					Target:        target,
					AttributeName: e.Name,
				})
				d.mu.Unlock()
				flush()
			},
			func(e *proto.DOMAttributeRemoved) {
				target, _ := d.nodeByID(e.NodeID)
				if target == nil {
					return
				}
				d.mu.Lock()
				d.pending = append(d.pending, domtree.Mutation{
					Kind:          domtree.MutationAttributes,
					Target:        target,
					AttributeName: e.Name,
				})
				d.mu.Unlock()
				flush()
			},
			func(e *proto.DOMCharacterDataModified) {
				target, _ := d.nodeByID(e.NodeID)
				if target == nil {
					return
				}
				d.mu.Lock()
				d.pending = append(d.pending, domtree.Mutation{
					Kind:   domtree.MutationCharacterData,
					Target: target,
				})
				d.mu.Unlock()
				flush()
			},
		)
		wait()
	}()

	return out
}

// Close stops every outstanding poll goroutine.
func (d *Document) Close() {
	d.pollMu.Lock()
	defer d.pollMu.Unlock()
	for id, ch := range d.pollStop {
		close(ch)
		delete(d.pollStop, id)
	}
}
