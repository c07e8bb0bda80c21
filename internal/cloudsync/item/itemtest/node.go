// Package itemtest provides a three-level item hierarchy for tests: boards
// hold columns and columns hold cards. Every level is the same Node type
// carrying a title.
package itemtest

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/item"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
)

// ZoneName is the zone every node lives in.
const ZoneName = "boards"

// FieldTitle is the record field holding a node's title.
const FieldTitle = "title"

// Kinds of the hierarchy, from the top.
var (
	BoardKind = &item.Kind{
		Name:                          "board",
		ZoneName:                      ZoneName,
		RecordType:                    "boardRecord",
		DependentItemsRecordAttribute: "columns",
		DependentItemsKind:            "column",
		New:                           constructor("board"),
	}
	ColumnKind = &item.Kind{
		Name:                          "column",
		ZoneName:                      ZoneName,
		RecordType:                    "columnRecord",
		DependentItemsRecordAttribute: "cards",
		DependentItemsKind:            "card",
		New:                           constructor("column"),
	}
	CardKind = &item.Kind{
		Name:       "card",
		ZoneName:   ZoneName,
		RecordType: "cardRecord",
		New:        constructor("card"),
	}
)

// NewRegistry registers the board, column and card kinds.
func NewRegistry() *item.Registry {
	return item.NewRegistry().MustRegister(BoardKind, ColumnKind, CardKind)
}

// Node is one board, column or card.
type Node struct {
	Title string

	mu       sync.Mutex
	kind     string
	id       string
	owner    string
	remote   bool
	parentID string
	children []*Node
}

// Board builds an unsaved board holding columns.
func Board(title string, columns ...*Node) *Node { return newNode("board", title, columns) }

// Column builds an unsaved column holding cards.
func Column(title string, cards ...*Node) *Node { return newNode("column", title, cards) }

// Card builds an unsaved card.
func Card(title string) *Node { return newNode("card", title, nil) }

func newNode(kind, title string, children []*Node) *Node {
	return &Node{kind: kind, Title: title, children: children}
}

func constructor(kind string) item.Constructor {
	return func(_ context.Context, rec *record.Record, isRemote bool) (item.Item, error) {
		n := &Node{
			kind:   kind,
			id:     rec.ID.Name,
			remote: isRemote,
			Title:  rec.String(FieldTitle),
		}
		if !rec.ID.Zone.IsDefaultOwner() {
			n.owner = rec.ID.Zone.Owner
		}
		return n, nil
	}
}

func (n *Node) KindName() string { return n.kind }

func (n *Node) RecordID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.id
}

func (n *Node) OwnerName() string { return n.owner }

func (n *Node) IsRemote() bool { return n.remote }

// ParentID is the record name of the parent as of the last SetParent call.
func (n *Node) ParentID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.parentID
}

// Children returns the node's children in the order they were added.
func (n *Node) Children() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.children)
}

func (n *Node) DependentItems() []item.Item {
	children := n.Children()
	out := make([]item.Item, 0, len(children))
	for _, c := range children {
		out = append(out, c)
	}
	return out
}

func (n *Node) SetRecordID(_ context.Context, id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.id = id
	return nil
}

func (n *Node) Populate(_ context.Context, rec *record.Record) error {
	rec.Set(FieldTitle, n.Title)
	return nil
}

// SetParent adds n to parent's children once and records the parent id.
func (n *Node) SetParent(_ context.Context, parent item.Item) error {
	p, ok := parent.(*Node)
	if !ok {
		return fmt.Errorf("%s cannot be the parent of a %s", parent.KindName(), n.kind)
	}

	p.mu.Lock()
	if !slices.Contains(p.children, n) {
		p.children = append(p.children, n)
	}
	parentID := p.id
	p.mu.Unlock()

	n.mu.Lock()
	n.parentID = parentID
	n.mu.Unlock()
	return nil
}

// Outline lists the title path of n and every descendant, e.g. "b/c/card",
// sorted so trees built in any order compare equal.
func (n *Node) Outline() []string {
	var out []string
	var walk func(prefix string, n *Node)
	walk = func(prefix string, n *Node) {
		path := prefix + n.Title
		out = append(out, path)
		for _, c := range n.Children() {
			walk(path+"/", c)
		}
	}
	walk("", n)
	slices.Sort(out)
	return out
}
