// Package dommodel is the document model consumed by the outline engine: a
// mirrored node graph, the closed set of mutation events it emits, and the
// asynchronous command surface used to edit it.
package dommodel

import (
	"slices"
	"strings"
)

// NodeID identifies a node for the lifetime of its document. For the CDP
// mirror it is the protocol nodeId.
type NodeID int64

// Kind is the DOM nodeType.
type Kind int

const (
	ElementNode               Kind = 1
	AttributeNode             Kind = 2
	TextNode                  Kind = 3
	CDATANode                 Kind = 4
	ProcessingInstructionNode Kind = 7
	CommentNode               Kind = 8
	DocumentNode              Kind = 9
	DoctypeNode               Kind = 10
	FragmentNode              Kind = 11
)

func (k Kind) String() string {
	switch k {
	case ElementNode:
		return "element"
	case AttributeNode:
		return "attribute"
	case TextNode:
		return "text"
	case CDATANode:
		return "cdata"
	case ProcessingInstructionNode:
		return "processing-instruction"
	case CommentNode:
		return "comment"
	case DocumentNode:
		return "document"
	case DoctypeNode:
		return "doctype"
	case FragmentNode:
		return "fragment"
	}
	return "unknown"
}

// Pseudo element types surfaced as synthetic children.
const (
	PseudoBefore = "before"
	PseudoAfter  = "after"
)

// Shadow root types.
const (
	ShadowUserAgent = "user-agent"
	ShadowOpen      = "open"
	ShadowClosed    = "closed"
)

// Attr is one attribute in document order.
type Attr struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Node is a mirrored document node. Nodes are owned by a Tree and must only
// be read on the goroutine that applies mutations to that Tree.
type Node struct {
	id        NodeID
	kind      Kind
	nodeName  string
	localName string
	nodeValue string
	attrs     []Attr

	parent     *Node
	children   []*Node
	loaded     bool
	childCount int

	shadowRoots []*Node
	shadowType  string
	contentDoc  *Node
	template    *Node
	pseudo      map[string]*Node
	pseudoType  string

	isXML       bool
	documentURL string
	publicID    string
	systemID    string
}

func (n *Node) ID() NodeID { return n.id }
func (n *Node) Kind() Kind { return n.kind }
func (n *Node) NodeName() string { return n.nodeName }
func (n *Node) LocalName() string { return n.localName }
func (n *Node) NodeValue() string { return n.nodeValue }
func (n *Node) Parent() *Node { return n.parent }
func (n *Node) IsXML() bool { return n.isXML }
func (n *Node) DocumentURL() string { return n.documentURL }
func (n *Node) PublicID() string { return n.publicID }
func (n *Node) SystemID() string { return n.systemID }

// Attributes returns a copy of the attribute list.
func (n *Node) Attributes() []Attr { return slices.Clone(n.attrs) }

// Attribute returns the value of the named attribute.
func (n *Node) Attribute(name string) (string, bool) {
	for _, a := range n.attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Children returns the structural children, or nil when they have not been
// loaded from the backing document yet.
func (n *Node) Children() []*Node {
	if !n.loaded {
		return nil
	}
	return slices.Clone(n.children)
}

// ChildrenLoaded reports whether Children reflects the backing document.
func (n *Node) ChildrenLoaded() bool { return n.loaded }

// ChildNodeCount is the structural child count, known even when the
// children themselves are not loaded.
func (n *Node) ChildNodeCount() int {
	if n.loaded {
		return len(n.children)
	}
	return n.childCount
}

func (n *Node) ShadowRoots() []*Node { return slices.Clone(n.shadowRoots) }
func (n *Node) ShadowRootType() string { return n.shadowType }
func (n *Node) ContentDocument() *Node { return n.contentDoc }
func (n *Node) TemplateContent() *Node { return n.template }
func (n *Node) PseudoType() string { return n.pseudoType }
func (n *Node) IsShadowRoot() bool { return n.kind == FragmentNode && n.shadowType != "" }
func (n *Node) IsPseudoElement() bool { return n.pseudoType != "" }

// PseudoElement returns the ::before or ::after pseudo element.
func (n *Node) PseudoElement(typ string) *Node {
	if n.pseudo == nil {
		return nil
	}
	return n.pseudo[typ]
}

// Index returns the position of n among its parent's structural children,
// or -1 for synthetic children and roots.
func (n *Node) Index() int {
	if n.parent == nil {
		return -1
	}
	return slices.Index(n.parent.children, n)
}

// Contains reports whether other is n or a descendant of n, following
// synthetic parent links.
func (n *Node) Contains(other *Node) bool {
	for p := other; p != nil; p = p.parent {
		if p == n {
			return true
		}
	}
	return false
}

// OwnerDocument walks up to the nearest document node.
func (n *Node) OwnerDocument() *Node {
	for p := n; p != nil; p = p.parent {
		if p.kind == DocumentNode {
			return p
		}
	}
	return nil
}

// IsElement reports whether n is an element, pseudo elements included.
func (n *Node) IsElement() bool { return n.kind == ElementNode }

// TagName is the lowercase tag for HTML elements and the node name otherwise.
func (n *Node) TagName() string {
	if n.kind != ElementNode {
		return n.nodeName
	}
	if n.isXML {
		return n.nodeName
	}
	return strings.ToLower(n.nodeName)
}

// NodeInit describes a node to insert into a Tree. A nil Children slice
// with a positive ChildNodeCount means the children exist but are not
// loaded.
type NodeInit struct {
	ID         NodeID
	Kind       Kind
	NodeName   string
	LocalName  string
	NodeValue  string
	Attributes []Attr

	Children       []NodeInit
	ChildNodeCount int

	ShadowRoots     []NodeInit
	ShadowRootType  string
	ContentDocument *NodeInit
	TemplateContent *NodeInit
	PseudoElements  []NodeInit
	PseudoType      string

	IsXML       bool
	DocumentURL string
	PublicID    string
	SystemID    string
}
