package domtree

import "github.com/hazyhaar/clarity-agent/pkg/livedom"

// MutationKind mirrors the three record kinds a browser MutationObserver
// delivers, per spec.md §4.1 ("childList, attributes, characterData").
type MutationKind string

const (
	MutationChildList     MutationKind = "childList"
	MutationAttributes    MutationKind = "attributes"
	MutationCharacterData MutationKind = "characterData"
)

// Mutation is one raw record in a mutation batch. Target is the node the
// mutation observer was watching (the parent, for childList; the mutated
// node itself, for attributes/characterData).
type Mutation struct {
	Kind         MutationKind
	Target       livedom.Node
	AddedNodes   []livedom.Node // childList only, in document order
	RemovedNodes []livedom.Node // childList only, in document order

	AttributeName string // attributes only
	OldValue      string // attributes: previous attribute value; characterData: previous text
}
