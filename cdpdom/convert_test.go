package cdpdom

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/hazyhaar/domoutline/dommodel"
)

func count(n int) *int { return &n }

func TestToInit_Attributes(t *testing.T) {
	n := &proto.DOMNode{
		NodeID:     7,
		NodeType:   1,
		NodeName:   "DIV",
		LocalName:  "div",
		Attributes: []string{"id", "main", "class", "a b"},
	}
	init := toInit(n, false)
	if init.ID != 7 || init.Kind != dommodel.ElementNode {
		t.Fatalf("got id %d kind %v", init.ID, init.Kind)
	}
	want := []dommodel.Attr{{Name: "id", Value: "main"}, {Name: "class", Value: "a b"}}
	if len(init.Attributes) != len(want) {
		t.Fatalf("got %d attributes, want %d", len(init.Attributes), len(want))
	}
	for i, a := range want {
		if init.Attributes[i] != a {
			t.Fatalf("attr %d: got %+v, want %+v", i, init.Attributes[i], a)
		}
	}
}

func TestToInit_OddAttributeList(t *testing.T) {
	got := attrs([]string{"id", "x", "dangling"})
	if len(got) != 1 || got[0].Name != "id" {
		t.Fatalf("got %+v, want one attribute", got)
	}
	if attrs(nil) != nil {
		t.Fatal("empty list should fold to nil")
	}
}

func TestToInit_LazyChildren(t *testing.T) {
	n := &proto.DOMNode{NodeID: 3, NodeType: 1, NodeName: "UL", LocalName: "ul", ChildNodeCount: count(4)}
	init := toInit(n, false)
	if init.Children != nil {
		t.Fatalf("got %d children, want unloaded", len(init.Children))
	}
	if init.ChildNodeCount != 4 {
		t.Fatalf("got count %d, want 4", init.ChildNodeCount)
	}
}

func TestToInit_XMLFollowsDocument(t *testing.T) {
	doc := &proto.DOMNode{
		NodeID:     1,
		NodeType:   9,
		NodeName:   "#document",
		XMLVersion: "1.0",
		Children: []*proto.DOMNode{
			{NodeID: 2, NodeType: 1, NodeName: "svg", LocalName: "svg", Children: []*proto.DOMNode{}},
		},
	}
	init := toInit(doc, false)
	if !init.IsXML || !init.Children[0].IsXML {
		t.Fatal("XML flag not propagated from document")
	}

	frame := &proto.DOMNode{
		NodeID:          5,
		NodeType:        1,
		NodeName:        "IFRAME",
		LocalName:       "iframe",
		ContentDocument: &proto.DOMNode{NodeID: 6, NodeType: 9, NodeName: "#document"},
	}
	got := toInit(frame, true)
	if got.ContentDocument == nil || got.ContentDocument.IsXML {
		t.Fatal("HTML content document inherited XML flag")
	}
}

func TestToInit_PseudoAndShadow(t *testing.T) {
	n := &proto.DOMNode{
		NodeID:    10,
		NodeType:  1,
		NodeName:  "X-CARD",
		LocalName: "x-card",
		Children:  []*proto.DOMNode{},
		PseudoElements: []*proto.DOMNode{
			{NodeID: 11, NodeType: 1, NodeName: "::before", PseudoType: proto.DOMPseudoTypeBefore},
			{NodeID: 12, NodeType: 1, NodeName: "::marker", PseudoType: proto.DOMPseudoTypeMarker},
			{NodeID: 13, NodeType: 1, NodeName: "::after", PseudoType: proto.DOMPseudoTypeAfter},
		},
		ShadowRoots: []*proto.DOMNode{
			{NodeID: 14, NodeType: 11, NodeName: "#document-fragment", ShadowRootType: proto.DOMShadowRootTypeOpen, Children: []*proto.DOMNode{}},
		},
	}
	init := toInit(n, false)
	if len(init.PseudoElements) != 2 {
		t.Fatalf("got %d pseudo elements, want 2", len(init.PseudoElements))
	}
	if init.PseudoElements[0].PseudoType != "before" || init.PseudoElements[1].PseudoType != "after" {
		t.Fatalf("got %q %q", init.PseudoElements[0].PseudoType, init.PseudoElements[1].PseudoType)
	}
	if len(init.ShadowRoots) != 1 || init.ShadowRoots[0].ShadowRootType != "open" {
		t.Fatalf("got shadow roots %+v", init.ShadowRoots)
	}
}

func TestToInit_Template(t *testing.T) {
	n := &proto.DOMNode{
		NodeID:          20,
		NodeType:        1,
		NodeName:        "TEMPLATE",
		LocalName:       "template",
		Children:        []*proto.DOMNode{},
		TemplateContent: &proto.DOMNode{NodeID: 21, NodeType: 11, NodeName: "#document-fragment", Children: []*proto.DOMNode{}},
	}
	init := toInit(n, false)
	if init.TemplateContent == nil || init.TemplateContent.ID != 21 {
		t.Fatal("template content not converted")
	}
}
