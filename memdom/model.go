// Package memdom is an in-memory, authoritative document model. Markup is
// parsed with golang.org/x/net/html; commands apply synchronously and emit
// the same events a remote mirror would.
package memdom

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hazyhaar/domoutline/dommodel"
	"golang.org/x/net/html"
)

var (
	// ErrInvalidName is returned by SetNodeName for unusable tag names.
	ErrInvalidName = errors.New("memdom: invalid node name")
	// ErrNotCharacterData is returned by SetNodeValue on non-text nodes.
	ErrNotCharacterData = errors.New("memdom: node has no value")
	// ErrNotMovable is returned when removing or moving synthetic nodes.
	ErrNotMovable = errors.New("memdom: node cannot be moved or removed")
)

// Model implements dommodel.Model over an in-memory Tree. It is not safe
// for concurrent use: run it on the outline's loop.
type Model struct {
	tree      *dommodel.Tree
	nextID    dommodel.NodeID
	url       string
	lazyDepth int
	pending   map[dommodel.NodeID][]dommodel.NodeInit
	logger    *slog.Logger
}

// Option configures a Model.
type Option func(*Model)

// WithURL sets the document URL reported by the document node.
func WithURL(u string) Option { return func(m *Model) { m.url = u } }

// WithLazyDepth keeps children of nodes deeper than d unloaded until
// RequestChildNodes asks for them, one level at a time. 0 loads everything.
func WithLazyDepth(d int) Option { return func(m *Model) { m.lazyDepth = d } }

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(m *Model) { m.logger = l } }

// New returns a Model with no document.
func New(opts ...Option) *Model {
	m := &Model{
		tree:    dommodel.NewTree(),
		pending: make(map[dommodel.NodeID][]dommodel.NodeInit),
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Parse builds a Model from an HTML document.
func Parse(r io.Reader, opts ...Option) (*Model, error) {
	m := New(opts...)
	if err := m.Load(r); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseString is Parse over a string.
func ParseString(s string, opts ...Option) (*Model, error) {
	return Parse(strings.NewReader(s), opts...)
}

// Load replaces the whole document, emitting DocumentUpdated.
func (m *Model) Load(r io.Reader) error {
	doc, err := html.Parse(r)
	if err != nil {
		return fmt.Errorf("memdom: parse: %w", err)
	}
	init, _ := m.fromHTML(doc)
	clear(m.pending)
	if m.lazyDepth > 0 {
		m.cut(&init, 0)
	}
	m.tree.SetDocument(&init)
	m.logger.Debug("memdom: document loaded", "url", m.url, "nodes", m.tree.Len())
	return nil
}

// cut moves children below the lazy depth into the pending set.
func (m *Model) cut(init *dommodel.NodeInit, depth int) {
	if depth >= m.lazyDepth && len(init.Children) > 0 {
		kids := init.Children
		for i := range kids {
			m.cut(&kids[i], depth+1)
		}
		m.pending[init.ID] = kids
		init.ChildNodeCount = len(kids)
		init.Children = nil
		return
	}
	for i := range init.Children {
		m.cut(&init.Children[i], depth+1)
	}
}

func (m *Model) allocID() dommodel.NodeID {
	m.nextID++
	return m.nextID
}

// Tree exposes the mirror for scripted mutations.
func (m *Model) Tree() *dommodel.Tree { return m.tree }

// URL is the document URL.
func (m *Model) URL() string { return m.url }

func (m *Model) Document() *dommodel.Node { return m.tree.Document() }
func (m *Model) NodeByID(id dommodel.NodeID) *dommodel.Node { return m.tree.NodeByID(id) }
func (m *Model) Subscribe(fn dommodel.Listener) func() { return m.tree.Subscribe(fn) }

func (m *Model) node(id dommodel.NodeID) (*dommodel.Node, error) {
	n := m.tree.NodeByID(id)
	if n == nil {
		return nil, fmt.Errorf("memdom: node %d: %w", id, dommodel.ErrUnknownNode)
	}
	return n, nil
}

func (m *Model) RequestChildNodes(_ context.Context, id dommodel.NodeID) *dommodel.Call {
	if _, err := m.node(id); err != nil {
		return dommodel.Resolved(0, "", err)
	}
	kids, ok := m.pending[id]
	if !ok {
		return dommodel.Resolved(id, "", nil)
	}
	delete(m.pending, id)
	return dommodel.Resolved(id, "", m.tree.SetChildNodes(id, kids))
}

func (m *Model) SetAttributeValue(_ context.Context, id dommodel.NodeID, name, value string) *dommodel.Call {
	return dommodel.Resolved(id, "", m.tree.SetAttribute(id, name, value))
}

func (m *Model) SetAttributesAsText(_ context.Context, id dommodel.NodeID, text, name string) *dommodel.Call {
	n, err := m.node(id)
	if err != nil {
		return dommodel.Resolved(0, "", err)
	}
	if n.Kind() != dommodel.ElementNode {
		return dommodel.Resolved(0, "", fmt.Errorf("memdom: set attributes on %d: %w", id, dommodel.ErrNotElement))
	}
	attrs := parseAttributes(text)
	if name != "" {
		replaced := false
		for _, a := range attrs {
			if a.Name == name {
				replaced = true
			}
		}
		if !replaced {
			if err := m.tree.RemoveAttribute(id, name); err != nil {
				return dommodel.Resolved(0, "", err)
			}
		}
	}
	for _, a := range attrs {
		if err := m.tree.SetAttribute(id, a.Name, a.Value); err != nil {
			return dommodel.Resolved(0, "", err)
		}
	}
	return dommodel.Resolved(id, "", nil)
}

func (m *Model) RemoveAttribute(_ context.Context, id dommodel.NodeID, name string) *dommodel.Call {
	return dommodel.Resolved(id, "", m.tree.RemoveAttribute(id, name))
}

func (m *Model) SetNodeName(_ context.Context, id dommodel.NodeID, name string) *dommodel.Call {
	n, err := m.node(id)
	if err != nil {
		return dommodel.Resolved(0, "", err)
	}
	if n.Kind() != dommodel.ElementNode || n.IsPseudoElement() {
		return dommodel.Resolved(0, "", fmt.Errorf("memdom: rename %d: %w", id, dommodel.ErrNotElement))
	}
	if !validName(name) {
		return dommodel.Resolved(0, "", fmt.Errorf("memdom: rename to %q: %w", name, ErrInvalidName))
	}
	init, err := m.tree.Snapshot(id)
	if err != nil {
		return dommodel.Resolved(0, "", err)
	}
	init.ID = m.allocID()
	init.LocalName = strings.ToLower(name)
	init.NodeName = name
	if !n.IsXML() {
		init.NodeName = strings.ToUpper(name)
	}
	if kids, ok := m.pending[id]; ok {
		delete(m.pending, id)
		m.pending[init.ID] = kids
	}
	if err := m.replace(n, []dommodel.NodeInit{init}); err != nil {
		return dommodel.Resolved(0, "", err)
	}
	return dommodel.Resolved(init.ID, "", nil)
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	return !strings.ContainsAny(name, " \t\n\r\f/<>=\"'")
}

func (m *Model) SetNodeValue(_ context.Context, id dommodel.NodeID, value string) *dommodel.Call {
	n, err := m.node(id)
	if err != nil {
		return dommodel.Resolved(0, "", err)
	}
	switch n.Kind() {
	case dommodel.TextNode, dommodel.CommentNode, dommodel.CDATANode, dommodel.ProcessingInstructionNode:
	default:
		return dommodel.Resolved(0, "", fmt.Errorf("memdom: set value on %d: %w", id, ErrNotCharacterData))
	}
	return dommodel.Resolved(id, "", m.tree.SetCharacterData(id, value))
}

func (m *Model) GetOuterHTML(_ context.Context, id dommodel.NodeID) *dommodel.Call {
	markup, err := m.OuterHTML(id)
	return dommodel.Resolved(id, markup, err)
}

// OuterHTML renders a subtree, including children not loaded yet.
func (m *Model) OuterHTML(id dommodel.NodeID) (string, error) {
	init, err := m.tree.Snapshot(id)
	if err != nil {
		return "", err
	}
	hn := toHTML(m.withPending(init))
	if hn == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, hn); err != nil {
		return "", fmt.Errorf("memdom: render %d: %w", id, err)
	}
	return buf.String(), nil
}

func (m *Model) withPending(init dommodel.NodeInit) dommodel.NodeInit {
	if init.Children == nil {
		init.Children = m.pending[init.ID]
	}
	kids := make([]dommodel.NodeInit, len(init.Children))
	for i, c := range init.Children {
		kids[i] = m.withPending(c)
	}
	init.Children = kids
	return init
}

func (m *Model) SetOuterHTML(_ context.Context, id dommodel.NodeID, markup string) *dommodel.Call {
	n, err := m.node(id)
	if err != nil {
		return dommodel.Resolved(0, "", err)
	}
	if n.Parent() == nil || n.Index() < 0 {
		return dommodel.Resolved(0, "", fmt.Errorf("memdom: set outer html on %d: %w", id, ErrNotMovable))
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), contextFor(n.Parent()))
	if err != nil {
		return dommodel.Resolved(0, "", fmt.Errorf("memdom: parse fragment: %w", err))
	}
	var inits []dommodel.NodeInit
	for _, hn := range nodes {
		if init, ok := m.fromHTML(hn); ok {
			inits = append(inits, init)
		}
	}
	if err := m.replace(n, inits); err != nil {
		return dommodel.Resolved(0, "", err)
	}
	var first dommodel.NodeID
	if len(inits) > 0 {
		first = inits[0].ID
	}
	return dommodel.Resolved(first, "", nil)
}

// replace swaps n for inits at the same position.
func (m *Model) replace(n *dommodel.Node, inits []dommodel.NodeInit) error {
	parent := n.Parent()
	prev := prevSibling(n)
	if err := m.tree.RemoveChild(parent.ID(), n.ID()); err != nil {
		return err
	}
	for _, init := range inits {
		if err := m.tree.InsertChild(parent.ID(), prev, init); err != nil {
			return err
		}
		prev = init.ID
	}
	return nil
}

func prevSibling(n *dommodel.Node) dommodel.NodeID {
	i := n.Index()
	if i <= 0 {
		return 0
	}
	return n.Parent().Children()[i-1].ID()
}

func (m *Model) RemoveNode(_ context.Context, id dommodel.NodeID) *dommodel.Call {
	n, err := m.node(id)
	if err != nil {
		return dommodel.Resolved(0, "", err)
	}
	if n.Parent() == nil || n.Index() < 0 {
		return dommodel.Resolved(0, "", fmt.Errorf("memdom: remove %d: %w", id, ErrNotMovable))
	}
	return dommodel.Resolved(id, "", m.tree.RemoveChild(n.Parent().ID(), id))
}

func (m *Model) MoveTo(_ context.Context, id, target, anchor dommodel.NodeID) *dommodel.Call {
	n, err := m.node(id)
	if err != nil {
		return dommodel.Resolved(0, "", err)
	}
	dst, err := m.node(target)
	if err != nil {
		return dommodel.Resolved(0, "", err)
	}
	if n.Parent() == nil || n.Index() < 0 || n.Contains(dst) {
		return dommodel.Resolved(0, "", fmt.Errorf("memdom: move %d under %d: %w", id, target, ErrNotMovable))
	}
	init, err := m.tree.Snapshot(id)
	if err != nil {
		return dommodel.Resolved(0, "", err)
	}
	if err := m.tree.RemoveChild(n.Parent().ID(), id); err != nil {
		return dommodel.Resolved(0, "", err)
	}
	if !dst.ChildrenLoaded() && anchor == 0 {
		m.pending[target] = append(m.pending[target], init)
	}
	prev := dommodel.NodeID(0)
	kids := dst.Children()
	if anchor == 0 {
		if len(kids) > 0 {
			prev = kids[len(kids)-1].ID()
		}
	} else {
		a := m.tree.NodeByID(anchor)
		if a == nil || a.Parent() != dst {
			return dommodel.Resolved(0, "", fmt.Errorf("memdom: move before %d: %w", anchor, dommodel.ErrUnknownNode))
		}
		prev = prevSibling(a)
	}
	if err := m.tree.InsertChild(target, prev, init); err != nil {
		return dommodel.Resolved(0, "", err)
	}
	return dommodel.Resolved(id, "", nil)
}

// Fragment parses markup as children of parent and returns the node inits
// with fresh ids, for scripted insertion through Tree.
func (m *Model) Fragment(parent dommodel.NodeID, markup string) ([]dommodel.NodeInit, error) {
	nodes, err := html.ParseFragment(strings.NewReader(markup), contextFor(m.tree.NodeByID(parent)))
	if err != nil {
		return nil, fmt.Errorf("memdom: parse fragment: %w", err)
	}
	var inits []dommodel.NodeInit
	for _, hn := range nodes {
		if init, ok := m.fromHTML(hn); ok {
			inits = append(inits, init)
		}
	}
	return inits, nil
}

// InsertHTML inserts markup after prev (0 = first) under parent, as page
// script would, and returns the ids of the inserted top-level nodes.
func (m *Model) InsertHTML(parent, prev dommodel.NodeID, markup string) ([]dommodel.NodeID, error) {
	inits, err := m.Fragment(parent, markup)
	if err != nil {
		return nil, err
	}
	var ids []dommodel.NodeID
	for _, init := range inits {
		if err := m.tree.InsertChild(parent, prev, init); err != nil {
			return ids, err
		}
		prev = init.ID
		ids = append(ids, init.ID)
	}
	return ids, nil
}

// AppendHTML inserts markup as the last children of parent.
func (m *Model) AppendHTML(parent dommodel.NodeID, markup string) ([]dommodel.NodeID, error) {
	p, err := m.node(parent)
	if err != nil {
		return nil, err
	}
	prev := dommodel.NodeID(0)
	if kids := p.Children(); len(kids) > 0 {
		prev = kids[len(kids)-1].ID()
	}
	return m.InsertHTML(parent, prev, markup)
}

// Text returns a text node init with a fresh id.
func (m *Model) Text(value string) dommodel.NodeInit {
	return dommodel.NodeInit{ID: m.allocID(), Kind: dommodel.TextNode, NodeName: "#text", NodeValue: value}
}

// Element returns an empty element init with a fresh id.
func (m *Model) Element(name string, attrs ...dommodel.Attr) dommodel.NodeInit {
	return dommodel.NodeInit{
		ID:         m.allocID(),
		Kind:       dommodel.ElementNode,
		NodeName:   strings.ToUpper(name),
		LocalName:  strings.ToLower(name),
		Attributes: attrs,
		Children:   []dommodel.NodeInit{},
	}
}

// Unload drops the loaded children of id back into the pending set, so the
// next RequestChildNodes serves them again.
func (m *Model) Unload(id dommodel.NodeID) error {
	init, err := m.tree.Snapshot(id)
	if err != nil {
		return err
	}
	if init.Children == nil {
		return nil
	}
	m.pending[id] = init.Children
	return m.tree.Unload(id)
}

// Find returns the first element with the given id attribute.
func (m *Model) Find(idAttr string) *dommodel.Node {
	var walk func(n *dommodel.Node) *dommodel.Node
	walk = func(n *dommodel.Node) *dommodel.Node {
		if v, ok := n.Attribute("id"); ok && v == idAttr && n.Kind() == dommodel.ElementNode {
			return n
		}
		for _, c := range n.Children() {
			if f := walk(c); f != nil {
				return f
			}
		}
		if tc := n.TemplateContent(); tc != nil {
			return walk(tc)
		}
		return nil
	}
	if doc := m.tree.Document(); doc != nil {
		return walk(doc)
	}
	return nil
}
