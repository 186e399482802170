package outline

import (
	"strings"
	"unicode/utf8"

	"github.com/hazyhaar/domoutline/dommodel"
)

// HTML elements that never carry a closing tag.
var voidElements = map[string]bool{
	"area": true, "base": true, "basefont": true, "bgsound": true, "br": true,
	"col": true, "command": true, "embed": true, "frame": true, "hr": true,
	"image": true, "img": true, "input": true, "keygen": true, "link": true,
	"menuitem": true, "meta": true, "param": true, "source": true,
	"track": true, "wbr": true,
}

// hasClosingTag reports whether an expanded row for n ends with a closing
// tag row.
func hasClosingTag(n *dommodel.Node) bool {
	if n == nil || n.Kind() != dommodel.ElementNode || n.IsPseudoElement() {
		return false
	}
	if n.IsXML() {
		return true
	}
	return !voidElements[strings.ToLower(n.NodeName())]
}

// syntheticChildren lists shadow roots, content document, template content
// and ::before, in display order. ::after is handled by the caller.
func (o *Outline) syntheticChildren(n *dommodel.Node) []*dommodel.Node {
	var out []*dommodel.Node
	for _, sr := range n.ShadowRoots() {
		if sr.ShadowRootType() == dommodel.ShadowUserAgent && !o.showUA {
			continue
		}
		out = append(out, sr)
	}
	if cd := n.ContentDocument(); cd != nil {
		out = append(out, cd)
	}
	if tc := n.TemplateContent(); tc != nil {
		out = append(out, tc)
	}
	if b := n.PseudoElement(dommodel.PseudoBefore); b != nil {
		out = append(out, b)
	}
	return out
}

func (o *Outline) hasSynthetic(n *dommodel.Node) bool {
	return len(o.syntheticChildren(n)) > 0 || n.PseudoElement(dommodel.PseudoAfter) != nil
}

// inlineText returns the sole short text child shown inside n's title.
func (o *Outline) inlineText(n *dommodel.Node) (*dommodel.Node, bool) {
	if n == nil || n.Kind() != dommodel.ElementNode || !n.ChildrenLoaded() {
		return nil, false
	}
	kids := n.Children()
	if len(kids) != 1 || kids[0].Kind() != dommodel.TextNode {
		return nil, false
	}
	if utf8.RuneCountInString(kids[0].NodeValue()) > o.cfg.InlineTextLimit {
		return nil, false
	}
	if o.hasSynthetic(n) {
		return nil, false
	}
	return kids[0], true
}

// visibleChildren is the authoritative display order of n's child rows:
// shadow roots, content document, template content, ::before, structural
// children, ::after. Structural children are absent until loaded.
func (o *Outline) visibleChildren(n *dommodel.Node) []*dommodel.Node {
	if n == nil {
		return nil
	}
	if _, ok := o.inlineText(n); ok {
		return nil
	}
	out := o.syntheticChildren(n)
	out = append(out, n.Children()...)
	if a := n.PseudoElement(dommodel.PseudoAfter); a != nil {
		out = append(out, a)
	}
	return out
}

// expandable reports whether a row for n can show children.
func (o *Outline) expandable(n *dommodel.Node) bool {
	if n == nil {
		return false
	}
	switch n.Kind() {
	case dommodel.ElementNode, dommodel.DocumentNode, dommodel.FragmentNode:
	default:
		return false
	}
	if _, ok := o.inlineText(n); ok {
		return false
	}
	if o.hasSynthetic(n) {
		return true
	}
	return n.ChildNodeCount() > 0
}

// needsPlaceholder reports structural children that exist but are not
// loaded yet.
func needsPlaceholder(n *dommodel.Node) bool {
	return !n.ChildrenLoaded() && n.ChildNodeCount() > 0
}
