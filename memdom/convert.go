package memdom

import (
	"strings"

	"github.com/hazyhaar/domoutline/dommodel"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// fromHTML converts a parsed node into a NodeInit, allocating ids.
// Whitespace-only text between tags is dropped.
func (m *Model) fromHTML(n *html.Node) (dommodel.NodeInit, bool) {
	init := dommodel.NodeInit{ID: m.allocID()}
	switch n.Type {
	case html.DocumentNode:
		init.Kind = dommodel.DocumentNode
		init.NodeName = "#document"
		init.DocumentURL = m.url
	case html.DoctypeNode:
		init.Kind = dommodel.DoctypeNode
		init.NodeName = n.Data
		for _, a := range n.Attr {
			switch a.Key {
			case "public":
				init.PublicID = a.Val
			case "system":
				init.SystemID = a.Val
			}
		}
	case html.ElementNode:
		init.Kind = dommodel.ElementNode
		init.LocalName = n.Data
		init.NodeName = n.Data
		if n.Namespace == "" {
			init.NodeName = strings.ToUpper(n.Data)
		}
		for _, a := range n.Attr {
			name := a.Key
			if a.Namespace != "" {
				name = a.Namespace + ":" + a.Key
			}
			init.Attributes = append(init.Attributes, dommodel.Attr{Name: name, Value: a.Val})
		}
	case html.TextNode:
		init.Kind = dommodel.TextNode
		init.NodeName = "#text"
		init.NodeValue = n.Data
	case html.CommentNode:
		init.Kind = dommodel.CommentNode
		init.NodeName = "#comment"
		init.NodeValue = n.Data
	default:
		return dommodel.NodeInit{}, false
	}

	children := []dommodel.NodeInit{}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode && strings.TrimSpace(c.Data) == "" {
			continue
		}
		if ci, ok := m.fromHTML(c); ok {
			children = append(children, ci)
		}
	}
	if n.Type == html.ElementNode && n.DataAtom == atom.Template && n.Namespace == "" {
		init.TemplateContent = &dommodel.NodeInit{
			ID:       m.allocID(),
			Kind:     dommodel.FragmentNode,
			NodeName: "#document-fragment",
			Children: children,
		}
		children = []dommodel.NodeInit{}
	}
	init.Children = children
	return init, true
}

// toHTML converts a NodeInit back into a renderable node. Shadow roots and
// pseudo elements have no markup and are skipped.
func toHTML(init dommodel.NodeInit) *html.Node {
	n := &html.Node{}
	switch init.Kind {
	case dommodel.DocumentNode:
		n.Type = html.DocumentNode
	case dommodel.DoctypeNode:
		n.Type = html.DoctypeNode
		n.Data = init.NodeName
		if init.PublicID != "" {
			n.Attr = append(n.Attr, html.Attribute{Key: "public", Val: init.PublicID})
		}
		if init.SystemID != "" {
			n.Attr = append(n.Attr, html.Attribute{Key: "system", Val: init.SystemID})
		}
	case dommodel.ElementNode:
		n.Type = html.ElementNode
		n.Data = init.LocalName
		if n.Data == "" {
			n.Data = strings.ToLower(init.NodeName)
		}
		n.DataAtom = atom.Lookup([]byte(n.Data))
		for _, a := range init.Attributes {
			n.Attr = append(n.Attr, html.Attribute{Key: a.Name, Val: a.Value})
		}
	case dommodel.TextNode, dommodel.CDATANode:
		n.Type = html.TextNode
		n.Data = init.NodeValue
	case dommodel.CommentNode:
		n.Type = html.CommentNode
		n.Data = init.NodeValue
	default:
		return nil
	}
	for _, c := range init.Children {
		if hc := toHTML(c); hc != nil {
			n.AppendChild(hc)
		}
	}
	if init.TemplateContent != nil {
		for _, c := range init.TemplateContent.Children {
			if hc := toHTML(c); hc != nil {
				n.AppendChild(hc)
			}
		}
	}
	return n
}

// contextFor returns the fragment parsing context for children of parent.
func contextFor(parent *dommodel.Node) *html.Node {
	if parent == nil || parent.Kind() != dommodel.ElementNode {
		return &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}
	name := parent.LocalName()
	if name == "" {
		name = strings.ToLower(parent.NodeName())
	}
	return &html.Node{Type: html.ElementNode, Data: name, DataAtom: atom.Lookup([]byte(name))}
}

// parseAttributes reads name="value" pairs the way a start tag would.
func parseAttributes(text string) []dommodel.Attr {
	z := html.NewTokenizer(strings.NewReader("<x " + text + ">"))
	if z.Next() != html.StartTagToken {
		return nil
	}
	var attrs []dommodel.Attr
	_, more := z.TagName()
	for more {
		var k, v []byte
		k, v, more = z.TagAttr()
		attrs = append(attrs, dommodel.Attr{Name: string(k), Value: string(v)})
	}
	return attrs
}
