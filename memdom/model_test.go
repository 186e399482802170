package memdom

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hazyhaar/domoutline/dommodel"
)

const page = `<!DOCTYPE html><html><head><title>t</title></head><body>
<div id="a" class="x">hello</div>
<ul id="list"><li>1</li><li>2</li></ul>
<template id="tpl"><p>inside</p></template>
</body></html>`

func mustParse(t *testing.T, s string, opts ...Option) *Model {
	t.Helper()
	m, err := ParseString(s, opts...)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return m
}

func TestParse_Structure(t *testing.T) {
	m := mustParse(t, page, WithURL("https://example.test/"))
	doc := m.Document()
	if doc.Kind() != dommodel.DocumentNode {
		t.Fatalf("got kind %v, want document", doc.Kind())
	}
	if doc.DocumentURL() != "https://example.test/" {
		t.Fatalf("got url %q", doc.DocumentURL())
	}
	kids := doc.Children()
	if len(kids) != 2 || kids[0].Kind() != dommodel.DoctypeNode {
		t.Fatalf("got %d document children, want doctype + html", len(kids))
	}
	list := m.Find("list")
	if list == nil {
		t.Fatal("list not found")
	}
	if list.NodeName() != "UL" || list.TagName() != "ul" {
		t.Fatalf("got name %q tag %q", list.NodeName(), list.TagName())
	}
	if got := len(list.Children()); got != 2 {
		t.Fatalf("got %d li, want 2 (whitespace text dropped)", got)
	}
}

func TestParse_Template(t *testing.T) {
	m := mustParse(t, page)
	tpl := m.Find("tpl")
	if tpl == nil {
		t.Fatal("template not found")
	}
	if len(tpl.Children()) != 0 {
		t.Fatalf("template children should move to its content")
	}
	tc := tpl.TemplateContent()
	if tc == nil || tc.Kind() != dommodel.FragmentNode || len(tc.Children()) != 1 {
		t.Fatal("template content not built")
	}
}

func TestLazyDepth_RequestChildNodes(t *testing.T) {
	m := mustParse(t, page, WithLazyDepth(2))
	body := m.Find("list")
	if body != nil {
		t.Fatal("nodes below the lazy depth should not be indexed yet")
	}
	html := m.Document().Children()[1]
	var bodyNode *dommodel.Node
	for _, c := range html.Children() {
		if c.TagName() == "body" {
			bodyNode = c
		}
	}
	if bodyNode == nil || bodyNode.ChildrenLoaded() {
		t.Fatal("body should exist with unloaded children")
	}
	if bodyNode.ChildNodeCount() != 3 {
		t.Fatalf("got count %d, want 3", bodyNode.ChildNodeCount())
	}

	var events []dommodel.EventKind
	m.Subscribe(func(ev dommodel.Event) { events = append(events, ev.Kind) })
	call := m.RequestChildNodes(context.Background(), bodyNode.ID())
	if err := call.Wait(context.Background()); err != nil {
		t.Fatalf("request: %v", err)
	}
	if !bodyNode.ChildrenLoaded() || len(bodyNode.Children()) != 3 {
		t.Fatal("children not loaded")
	}
	if len(events) != 1 || events[0] != dommodel.ChildNodeCountUpdated {
		t.Fatalf("got events %v", events)
	}
	if list := m.Find("list"); list == nil || list.ChildrenLoaded() {
		t.Fatal("grandchildren should stay lazy")
	}
}

func TestSetAttributesAsText(t *testing.T) {
	m := mustParse(t, page)
	div := m.Find("a")
	ctx := context.Background()

	if err := m.SetAttributesAsText(ctx, div.ID(), `class="y" title="z"`, "class").Err(); err != nil {
		t.Fatal(err)
	}
	if v, _ := div.Attribute("class"); v != "y" {
		t.Fatalf("got class %q, want y", v)
	}
	if v, _ := div.Attribute("title"); v != "z" {
		t.Fatalf("got title %q, want z", v)
	}
	if err := m.SetAttributesAsText(ctx, div.ID(), "", "title").Err(); err != nil {
		t.Fatal(err)
	}
	if _, ok := div.Attribute("title"); ok {
		t.Fatal("empty text should remove the edited attribute")
	}
}

func TestSetNodeName_NewIdentity(t *testing.T) {
	m := mustParse(t, page)
	div := m.Find("a")
	call := m.SetNodeName(context.Background(), div.ID(), "section")
	if call.Err() != nil {
		t.Fatal(call.Err())
	}
	if call.NodeID() == div.ID() {
		t.Fatal("rename should allocate a new id")
	}
	n := m.NodeByID(call.NodeID())
	if n == nil || n.NodeName() != "SECTION" {
		t.Fatal("renamed node missing")
	}
	if m.NodeByID(div.ID()) != nil {
		t.Fatal("old node still indexed")
	}
	if v, _ := n.Attribute("class"); v != "x" {
		t.Fatalf("attributes lost: class=%q", v)
	}
	if got := n.Children()[0].NodeValue(); got != "hello" {
		t.Fatalf("got child %q, want hello", got)
	}

	if err := m.SetNodeName(context.Background(), n.ID(), "a b").Err(); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("got %v, want ErrInvalidName", err)
	}
}

func TestSetNodeValue(t *testing.T) {
	m := mustParse(t, page)
	text := m.Find("a").Children()[0]
	if err := m.SetNodeValue(context.Background(), text.ID(), "bye").Err(); err != nil {
		t.Fatal(err)
	}
	if text.NodeValue() != "bye" {
		t.Fatalf("got %q, want bye", text.NodeValue())
	}
	err := m.SetNodeValue(context.Background(), m.Find("a").ID(), "x").Err()
	if !errors.Is(err, ErrNotCharacterData) {
		t.Fatalf("got %v, want ErrNotCharacterData", err)
	}
}

func TestOuterHTML_RoundTrip(t *testing.T) {
	m := mustParse(t, page)
	div := m.Find("a")
	got, err := m.OuterHTML(div.ID())
	if err != nil {
		t.Fatal(err)
	}
	if got != `<div id="a" class="x">hello</div>` {
		t.Fatalf("got %q", got)
	}

	call := m.SetOuterHTML(context.Background(), div.ID(), `<p id="b">one</p><p>two</p>`)
	if call.Err() != nil {
		t.Fatal(call.Err())
	}
	b := m.Find("b")
	if b == nil || call.NodeID() != b.ID() {
		t.Fatal("first replacement node should be returned")
	}
	if m.Find("a") != nil {
		t.Fatal("replaced node still present")
	}
	if b.Parent().Children()[b.Index()+1].TagName() != "p" {
		t.Fatal("second node not inserted after the first")
	}
}

func TestOuterHTML_IncludesPending(t *testing.T) {
	m := mustParse(t, `<html><body><ul id="l"><li>1</li></ul></body></html>`, WithLazyDepth(1))
	html := m.Document().Children()[0]
	got, err := m.OuterHTML(html.ID())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "<li>1</li>") {
		t.Fatalf("unloaded children missing from %q", got)
	}
}

func TestMoveTo_PreservesIDs(t *testing.T) {
	m := mustParse(t, page)
	list := m.Find("list")
	first, second := list.Children()[0], list.Children()[1]

	var kinds []dommodel.EventKind
	m.Subscribe(func(ev dommodel.Event) { kinds = append(kinds, ev.Kind) })

	call := m.MoveTo(context.Background(), second.ID(), list.ID(), first.ID())
	if call.Err() != nil {
		t.Fatal(call.Err())
	}
	kids := list.Children()
	if kids[0].ID() != second.ID() || kids[1].ID() != first.ID() {
		t.Fatalf("got order %d,%d", kids[0].ID(), kids[1].ID())
	}
	if len(kinds) != 2 || kinds[0] != dommodel.NodeRemoved || kinds[1] != dommodel.NodeInserted {
		t.Fatalf("got events %v", kinds)
	}

	if err := m.MoveTo(context.Background(), list.ID(), first.ID(), 0).Err(); !errors.Is(err, ErrNotMovable) {
		t.Fatalf("moving into a descendant: got %v, want ErrNotMovable", err)
	}
}

func TestRemoveNode(t *testing.T) {
	m := mustParse(t, page)
	list := m.Find("list")
	if err := m.RemoveNode(context.Background(), list.ID()).Err(); err != nil {
		t.Fatal(err)
	}
	if m.Find("list") != nil {
		t.Fatal("node still present")
	}
	if err := m.RemoveNode(context.Background(), m.Document().ID()).Err(); !errors.Is(err, ErrNotMovable) {
		t.Fatalf("got %v, want ErrNotMovable", err)
	}
}

func TestAppendHTML_And_Unload(t *testing.T) {
	m := mustParse(t, page)
	list := m.Find("list")
	ids, err := m.AppendHTML(list.ID(), "<li>3</li><li>4</li>")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || len(list.Children()) != 4 {
		t.Fatalf("got %d ids, %d children", len(ids), len(list.Children()))
	}
	if err := m.Unload(list.ID()); err != nil {
		t.Fatal(err)
	}
	if list.ChildrenLoaded() || list.ChildNodeCount() != 4 {
		t.Fatal("unload should keep the count and drop the children")
	}
	if err := m.RequestChildNodes(context.Background(), list.ID()).Err(); err != nil {
		t.Fatal(err)
	}
	if len(list.Children()) != 4 || list.Children()[3].ID() != ids[1] {
		t.Fatal("reload should restore the same nodes")
	}
}

func TestLoad_EmitsDocumentUpdated(t *testing.T) {
	m := mustParse(t, page)
	var got []dommodel.EventKind
	m.Subscribe(func(ev dommodel.Event) { got = append(got, ev.Kind) })
	if err := m.Load(strings.NewReader("<p>new</p>")); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != dommodel.DocumentUpdated {
		t.Fatalf("got %v", got)
	}
}
