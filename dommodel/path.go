package dommodel

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// PathOf returns a stable location string for n relative to its document,
// e.g. "1,HTML/1,BODY/0,DIV". Synthetic children use "s<i>" (shadow root),
// "d" (content document), "t" (template content) and "::before"/"::after".
func PathOf(n *Node) string {
	var segs []string
	for cur := n; cur != nil && cur.parent != nil; cur = cur.parent {
		segs = append(segs, segment(cur))
	}
	slices.Reverse(segs)
	return strings.Join(segs, "/")
}

func segment(n *Node) string {
	p := n.parent
	switch {
	case n.IsShadowRoot():
		return "s" + strconv.Itoa(slices.Index(p.shadowRoots, n))
	case p.contentDoc == n:
		return "d"
	case p.template == n:
		return "t"
	case n.IsPseudoElement():
		return "::" + n.pseudoType
	}
	return strconv.Itoa(slices.Index(p.children, n)) + "," + n.nodeName
}

// ResolvePath finds the node PathOf produced, walking loaded nodes only.
// Name mismatches resolve to nil.
func ResolvePath(doc *Node, path string) *Node {
	if doc == nil {
		return nil
	}
	if path == "" {
		return doc
	}
	cur := doc
	for _, seg := range strings.Split(path, "/") {
		cur = step(cur, seg)
		if cur == nil {
			return nil
		}
	}
	return cur
}

func step(n *Node, seg string) *Node {
	switch {
	case seg == "d":
		return n.contentDoc
	case seg == "t":
		return n.template
	case strings.HasPrefix(seg, "::"):
		return n.PseudoElement(strings.TrimPrefix(seg, "::"))
	case strings.HasPrefix(seg, "s"):
		i, err := strconv.Atoi(seg[1:])
		if err != nil || i < 0 || i >= len(n.shadowRoots) {
			return nil
		}
		return n.shadowRoots[i]
	}
	idxStr, name, ok := strings.Cut(seg, ",")
	if !ok {
		return nil
	}
	i, err := strconv.Atoi(idxStr)
	if err != nil || !n.loaded || i < 0 || i >= len(n.children) {
		return nil
	}
	c := n.children[i]
	if c.nodeName != name {
		return nil
	}
	return c
}

// XPath returns a display XPath for n: positional predicates only where
// same-named siblings exist, text() and comment() steps, and a
// /shadow-root step for nodes inside shadow trees.
func XPath(n *Node) string {
	if n == nil || n.kind == DocumentNode {
		return "/"
	}
	var parentPath string
	if n.parent != nil && n.parent.kind != DocumentNode {
		parentPath = XPath(n.parent)
	}
	if n.IsShadowRoot() {
		return parentPath + "/shadow-root"
	}

	switch n.kind {
	case TextNode, CDATANode:
		return parentPath + "/text()" + xpathIndex(n)
	case CommentNode:
		return parentPath + "/comment()" + xpathIndex(n)
	case DoctypeNode:
		return parentPath + "/"
	case ProcessingInstructionNode:
		return parentPath + "/processing-instruction()" + xpathIndex(n)
	case ElementNode:
		if n.IsPseudoElement() {
			return parentPath + "/::" + n.pseudoType
		}
	default:
		return parentPath + "/" + strings.ToLower(n.nodeName)
	}
	return parentPath + "/" + n.TagName() + xpathIndex(n)
}

// xpathIndex returns "[i]" when n has same-kind, same-named siblings.
func xpathIndex(n *Node) string {
	p := n.parent
	if p == nil || !p.loaded {
		return ""
	}
	idx, total := 0, 0
	for _, sib := range p.children {
		if sib.kind != n.kind || (n.kind == ElementNode && sib.nodeName != n.nodeName) {
			continue
		}
		total++
		if sib == n {
			idx = total
		}
	}
	if total > 1 && idx > 0 {
		return fmt.Sprintf("[%d]", idx)
	}
	return ""
}
