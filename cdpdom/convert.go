package cdpdom

import (
	"github.com/go-rod/rod/lib/proto"
	"github.com/hazyhaar/domoutline/dommodel"
)

// toInit converts a protocol node. xml is inherited from the owning
// document and recomputed at document nodes.
func toInit(n *proto.DOMNode, xml bool) dommodel.NodeInit {
	if n.NodeType == int(dommodel.DocumentNode) {
		xml = n.XMLVersion != ""
	}
	init := dommodel.NodeInit{
		ID:             dommodel.NodeID(n.NodeID),
		Kind:           dommodel.Kind(n.NodeType),
		NodeName:       n.NodeName,
		LocalName:      n.LocalName,
		NodeValue:      n.NodeValue,
		Attributes:     attrs(n.Attributes),
		ShadowRootType: string(n.ShadowRootType),
		PseudoType:     string(n.PseudoType),
		IsXML:          xml,
		DocumentURL:    n.DocumentURL,
		PublicID:       n.PublicID,
		SystemID:       n.SystemID,
	}
	if n.ChildNodeCount != nil {
		init.ChildNodeCount = *n.ChildNodeCount
	}
	if n.Children != nil {
		init.Children = toInits(n.Children, xml)
	}
	for _, sr := range n.ShadowRoots {
		init.ShadowRoots = append(init.ShadowRoots, toInit(sr, xml))
	}
	if n.ContentDocument != nil {
		cd := toInit(n.ContentDocument, false)
		init.ContentDocument = &cd
	}
	if n.TemplateContent != nil {
		tc := toInit(n.TemplateContent, xml)
		init.TemplateContent = &tc
	}
	for _, pe := range n.PseudoElements {
		if !outlinedPseudo(pe.PseudoType) {
			continue
		}
		init.PseudoElements = append(init.PseudoElements, toInit(pe, xml))
	}
	return init
}

func toInits(nodes []*proto.DOMNode, xml bool) []dommodel.NodeInit {
	out := make([]dommodel.NodeInit, 0, len(nodes))
	for _, c := range nodes {
		out = append(out, toInit(c, xml))
	}
	return out
}

// outlinedPseudo reports pseudo elements that get rows. Markers, scrollbars
// and the like are styling artifacts.
func outlinedPseudo(t proto.DOMPseudoType) bool {
	return t == proto.DOMPseudoTypeBefore || t == proto.DOMPseudoTypeAfter
}

// attrs folds the protocol's flat [name, value, ...] list.
func attrs(flat []string) []dommodel.Attr {
	if len(flat) < 2 {
		return nil
	}
	out := make([]dommodel.Attr, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		out = append(out, dommodel.Attr{Name: flat[i], Value: flat[i+1]})
	}
	return out
}
