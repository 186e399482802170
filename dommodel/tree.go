package dommodel

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrUnknownNode is returned when a node id is not in the mirror.
	ErrUnknownNode = errors.New("dommodel: unknown node")
	// ErrNotElement is returned for element-only operations on other kinds.
	ErrNotElement = errors.New("dommodel: not an element")
)

// Tree mirrors a document and notifies listeners of every mutation applied
// to it. It is not safe for concurrent use: one goroutine applies mutations
// and reads nodes.
type Tree struct {
	nodes     map[NodeID]*Node
	doc       *Node
	listeners []listenerEntry
	nextSub   int
}

type listenerEntry struct {
	id int
	fn Listener
}

// NewTree returns an empty mirror.
func NewTree() *Tree {
	return &Tree{nodes: make(map[NodeID]*Node)}
}

// Document returns the current root, nil before the first SetDocument.
func (t *Tree) Document() *Node { return t.doc }

// NodeByID returns the mirrored node or nil.
func (t *Tree) NodeByID(id NodeID) *Node { return t.nodes[id] }

// Len is the number of indexed nodes.
func (t *Tree) Len() int { return len(t.nodes) }

// Subscribe registers fn and returns a function that removes it.
func (t *Tree) Subscribe(fn Listener) func() {
	t.nextSub++
	id := t.nextSub
	t.listeners = append(t.listeners, listenerEntry{id: id, fn: fn})
	return func() {
		t.listeners = slices.DeleteFunc(t.listeners, func(e listenerEntry) bool { return e.id == id })
	}
}

func (t *Tree) emit(ev Event) {
	for _, l := range slices.Clone(t.listeners) {
		l.fn(ev)
	}
}

// SetDocument replaces the whole document. A nil init clears it.
func (t *Tree) SetDocument(init *NodeInit) {
	t.nodes = make(map[NodeID]*Node)
	t.doc = nil
	if init != nil {
		t.doc = t.build(*init, nil)
	}
	t.emit(Event{Kind: DocumentUpdated, Node: t.doc})
}

// SetChildNodes loads the structural children of parent.
func (t *Tree) SetChildNodes(parentID NodeID, children []NodeInit) error {
	parent := t.nodes[parentID]
	if parent == nil {
		return fmt.Errorf("dommodel: set child nodes %d: %w", parentID, ErrUnknownNode)
	}
	for _, c := range parent.children {
		t.unindex(c)
	}
	parent.children = make([]*Node, 0, len(children))
	for _, c := range children {
		parent.children = append(parent.children, t.build(c, parent))
	}
	parent.loaded = true
	parent.childCount = len(parent.children)
	t.emit(Event{Kind: ChildNodeCountUpdated, Node: parent})
	return nil
}

// Unload forgets the structural children of a node while keeping their
// count, as a backend does for subtrees it stopped tracking.
func (t *Tree) Unload(id NodeID) error {
	n := t.nodes[id]
	if n == nil {
		return fmt.Errorf("dommodel: unload %d: %w", id, ErrUnknownNode)
	}
	if !n.loaded {
		return nil
	}
	for _, c := range n.children {
		t.unindex(c)
	}
	n.childCount = len(n.children)
	n.children = nil
	n.loaded = false
	t.emit(Event{Kind: ChildNodeCountUpdated, Node: n})
	return nil
}

// InsertChild inserts init after prevID (0 inserts first). Inserting under a
// parent whose children are not loaded only bumps its child count.
func (t *Tree) InsertChild(parentID, prevID NodeID, init NodeInit) error {
	parent := t.nodes[parentID]
	if parent == nil {
		return fmt.Errorf("dommodel: insert under %d: %w", parentID, ErrUnknownNode)
	}
	if !parent.loaded {
		parent.childCount++
		t.emit(Event{Kind: ChildNodeCountUpdated, Node: parent})
		return nil
	}
	idx := 0
	if prevID != 0 {
		idx = slices.IndexFunc(parent.children, func(c *Node) bool { return c.id == prevID })
		if idx < 0 {
			return fmt.Errorf("dommodel: insert after %d: %w", prevID, ErrUnknownNode)
		}
		idx++
	}
	if old := t.nodes[init.ID]; old != nil && old.parent != nil {
		if err := t.detach(old); err != nil {
			return err
		}
	}
	n := t.build(init, parent)
	parent.children = slices.Insert(parent.children, idx, n)
	t.emit(Event{Kind: NodeInserted, Node: n, Parent: parent})
	return nil
}

// RemoveChild removes a structural child.
func (t *Tree) RemoveChild(parentID, id NodeID) error {
	parent := t.nodes[parentID]
	if parent == nil {
		return fmt.Errorf("dommodel: remove from %d: %w", parentID, ErrUnknownNode)
	}
	if !parent.loaded {
		if parent.childCount > 0 {
			parent.childCount--
		}
		t.emit(Event{Kind: ChildNodeCountUpdated, Node: parent})
		return nil
	}
	idx := slices.IndexFunc(parent.children, func(c *Node) bool { return c.id == id })
	if idx < 0 {
		return fmt.Errorf("dommodel: remove %d: %w", id, ErrUnknownNode)
	}
	n := parent.children[idx]
	parent.children = slices.Delete(parent.children, idx, idx+1)
	t.unindex(n)
	n.parent = nil
	t.emit(Event{Kind: NodeRemoved, Node: n, Parent: parent})
	return nil
}

// detach removes n from wherever it hangs, emitting the matching event.
func (t *Tree) detach(n *Node) error {
	parent := n.parent
	switch {
	case parent == nil:
		return nil
	case n.IsShadowRoot():
		return t.PopShadowRoot(parent.id, n.id)
	case n.IsPseudoElement():
		return t.RemovePseudoElement(parent.id, n.id)
	}
	return t.RemoveChild(parent.id, n.id)
}

// SetAttribute sets or adds an attribute.
func (t *Tree) SetAttribute(id NodeID, name, value string) error {
	n := t.nodes[id]
	if n == nil {
		return fmt.Errorf("dommodel: set attribute on %d: %w", id, ErrUnknownNode)
	}
	if n.kind != ElementNode {
		return fmt.Errorf("dommodel: set attribute on %d: %w", id, ErrNotElement)
	}
	i := slices.IndexFunc(n.attrs, func(a Attr) bool { return a.Name == name })
	if i >= 0 {
		n.attrs[i].Value = value
	} else {
		n.attrs = append(n.attrs, Attr{Name: name, Value: value})
	}
	t.emit(Event{Kind: AttributeModified, Node: n, Name: name})
	return nil
}

// RemoveAttribute removes an attribute; removing a missing one is a no-op.
func (t *Tree) RemoveAttribute(id NodeID, name string) error {
	n := t.nodes[id]
	if n == nil {
		return fmt.Errorf("dommodel: remove attribute on %d: %w", id, ErrUnknownNode)
	}
	i := slices.IndexFunc(n.attrs, func(a Attr) bool { return a.Name == name })
	if i < 0 {
		return nil
	}
	n.attrs = slices.Delete(n.attrs, i, i+1)
	t.emit(Event{Kind: AttributeRemoved, Node: n, Name: name})
	return nil
}

// SetCharacterData replaces the value of a text, comment or cdata node.
func (t *Tree) SetCharacterData(id NodeID, data string) error {
	n := t.nodes[id]
	if n == nil {
		return fmt.Errorf("dommodel: set character data on %d: %w", id, ErrUnknownNode)
	}
	n.nodeValue = data
	t.emit(Event{Kind: CharacterDataModified, Node: n})
	return nil
}

// SetChildNodeCount records a new child count for a node whose children are
// not loaded.
func (t *Tree) SetChildNodeCount(id NodeID, count int) error {
	n := t.nodes[id]
	if n == nil {
		return fmt.Errorf("dommodel: child count on %d: %w", id, ErrUnknownNode)
	}
	if !n.loaded {
		n.childCount = count
	}
	t.emit(Event{Kind: ChildNodeCountUpdated, Node: n})
	return nil
}

// PushShadowRoot attaches a shadow root to host.
func (t *Tree) PushShadowRoot(hostID NodeID, root NodeInit) error {
	host := t.nodes[hostID]
	if host == nil {
		return fmt.Errorf("dommodel: push shadow root on %d: %w", hostID, ErrUnknownNode)
	}
	n := t.build(root, host)
	host.shadowRoots = append(host.shadowRoots, n)
	t.emit(Event{Kind: NodeInserted, Node: n, Parent: host})
	return nil
}

// PopShadowRoot detaches a shadow root from host.
func (t *Tree) PopShadowRoot(hostID, rootID NodeID) error {
	host := t.nodes[hostID]
	if host == nil {
		return fmt.Errorf("dommodel: pop shadow root on %d: %w", hostID, ErrUnknownNode)
	}
	idx := slices.IndexFunc(host.shadowRoots, func(c *Node) bool { return c.id == rootID })
	if idx < 0 {
		return fmt.Errorf("dommodel: pop shadow root %d: %w", rootID, ErrUnknownNode)
	}
	n := host.shadowRoots[idx]
	host.shadowRoots = slices.Delete(host.shadowRoots, idx, idx+1)
	t.unindex(n)
	n.parent = nil
	t.emit(Event{Kind: NodeRemoved, Node: n, Parent: host})
	return nil
}

// AddPseudoElement attaches a ::before or ::after element to parent.
func (t *Tree) AddPseudoElement(parentID NodeID, pseudo NodeInit) error {
	parent := t.nodes[parentID]
	if parent == nil {
		return fmt.Errorf("dommodel: add pseudo element on %d: %w", parentID, ErrUnknownNode)
	}
	if old := parent.PseudoElement(pseudo.PseudoType); old != nil {
		t.unindex(old)
	}
	n := t.build(pseudo, parent)
	if parent.pseudo == nil {
		parent.pseudo = make(map[string]*Node)
	}
	parent.pseudo[pseudo.PseudoType] = n
	t.emit(Event{Kind: NodeInserted, Node: n, Parent: parent})
	return nil
}

// RemovePseudoElement detaches a pseudo element.
func (t *Tree) RemovePseudoElement(parentID, id NodeID) error {
	parent := t.nodes[parentID]
	if parent == nil {
		return fmt.Errorf("dommodel: remove pseudo element on %d: %w", parentID, ErrUnknownNode)
	}
	for typ, n := range parent.pseudo {
		if n.id != id {
			continue
		}
		delete(parent.pseudo, typ)
		t.unindex(n)
		n.parent = nil
		t.emit(Event{Kind: NodeRemoved, Node: n, Parent: parent})
		return nil
	}
	return fmt.Errorf("dommodel: remove pseudo element %d: %w", id, ErrUnknownNode)
}

// Snapshot converts a mirrored subtree back into a NodeInit, preserving ids.
func (t *Tree) Snapshot(id NodeID) (NodeInit, error) {
	n := t.nodes[id]
	if n == nil {
		return NodeInit{}, fmt.Errorf("dommodel: snapshot %d: %w", id, ErrUnknownNode)
	}
	return snapshot(n), nil
}

func snapshot(n *Node) NodeInit {
	init := NodeInit{
		ID:             n.id,
		Kind:           n.kind,
		NodeName:       n.nodeName,
		LocalName:      n.localName,
		NodeValue:      n.nodeValue,
		Attributes:     slices.Clone(n.attrs),
		ChildNodeCount: n.ChildNodeCount(),
		ShadowRootType: n.shadowType,
		PseudoType:     n.pseudoType,
		IsXML:          n.isXML,
		DocumentURL:    n.documentURL,
		PublicID:       n.publicID,
		SystemID:       n.systemID,
	}
	if n.loaded {
		init.Children = make([]NodeInit, 0, len(n.children))
		for _, c := range n.children {
			init.Children = append(init.Children, snapshot(c))
		}
	}
	for _, sr := range n.shadowRoots {
		init.ShadowRoots = append(init.ShadowRoots, snapshot(sr))
	}
	if n.contentDoc != nil {
		cd := snapshot(n.contentDoc)
		init.ContentDocument = &cd
	}
	if n.template != nil {
		tc := snapshot(n.template)
		init.TemplateContent = &tc
	}
	for _, typ := range []string{PseudoBefore, PseudoAfter} {
		if p := n.PseudoElement(typ); p != nil {
			init.PseudoElements = append(init.PseudoElements, snapshot(p))
		}
	}
	return init
}

func (t *Tree) build(init NodeInit, parent *Node) *Node {
	n := &Node{
		id:          init.ID,
		kind:        init.Kind,
		nodeName:    init.NodeName,
		localName:   init.LocalName,
		nodeValue:   init.NodeValue,
		attrs:       slices.Clone(init.Attributes),
		parent:      parent,
		shadowType:  init.ShadowRootType,
		pseudoType:  init.PseudoType,
		isXML:       init.IsXML,
		documentURL: init.DocumentURL,
		publicID:    init.PublicID,
		systemID:    init.SystemID,
	}
	if parent != nil && parent.isXML && init.Kind != DocumentNode {
		n.isXML = true
	}
	if old := t.nodes[n.id]; old != nil {
		t.unindex(old)
	}
	t.nodes[n.id] = n

	if init.Children != nil || init.ChildNodeCount == 0 {
		n.loaded = true
		n.children = make([]*Node, 0, len(init.Children))
		for _, c := range init.Children {
			n.children = append(n.children, t.build(c, n))
		}
	} else {
		n.childCount = init.ChildNodeCount
	}
	for _, sr := range init.ShadowRoots {
		n.shadowRoots = append(n.shadowRoots, t.build(sr, n))
	}
	if init.ContentDocument != nil {
		n.contentDoc = t.build(*init.ContentDocument, n)
	}
	if init.TemplateContent != nil {
		n.template = t.build(*init.TemplateContent, n)
	}
	for _, p := range init.PseudoElements {
		if p.PseudoType != PseudoBefore && p.PseudoType != PseudoAfter {
			continue
		}
		if n.pseudo == nil {
			n.pseudo = make(map[string]*Node)
		}
		n.pseudo[p.PseudoType] = t.build(p, n)
	}
	return n
}

func (t *Tree) unindex(n *Node) {
	if t.nodes[n.id] == n {
		delete(t.nodes, n.id)
	}
	for _, c := range n.children {
		t.unindex(c)
	}
	for _, sr := range n.shadowRoots {
		t.unindex(sr)
	}
	if n.contentDoc != nil {
		t.unindex(n.contentDoc)
	}
	if n.template != nil {
		t.unindex(n.template)
	}
	for _, p := range n.pseudo {
		t.unindex(p)
	}
}
