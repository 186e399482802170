package outline

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hazyhaar/domoutline/dommodel"
)

// SegmentKind classifies a piece of a row title for rendering.
type SegmentKind int

const (
	SegPunct SegmentKind = iota
	SegTag
	SegAttrName
	SegAttrValue
	SegText
	SegComment
	SegDoctype
	SegLabel
	SegEllipsis
)

// Segment is one styled run of a title.
type Segment struct {
	Kind       SegmentKind `json:"kind"`
	Text       string      `json:"text"`
	Emphasized bool        `json:"emphasized,omitempty"`
}

// Title is the rendered content of a row.
type Title struct {
	Segments []Segment `json:"segments"`
}

func (t Title) String() string {
	var b strings.Builder
	for _, s := range t.Segments {
		b.WriteString(s.Text)
	}
	return b.String()
}

// Emphasized reports whether any segment is emphasized.
func (t Title) Emphasized() bool {
	return slices.ContainsFunc(t.Segments, func(s Segment) bool { return s.Emphasized })
}

func (t *Title) clearEmphasis() {
	for i := range t.Segments {
		t.Segments[i].Emphasized = false
	}
}

// UpdateHints name the parts of a node that changed, so the refreshed
// title can emphasize them. The zero value means a plain rebuild.
type UpdateHints struct {
	Added    []string `json:"added,omitempty"`
	Removed  []string `json:"removed,omitempty"`
	Text     bool     `json:"text,omitempty"`
	Children bool     `json:"children,omitempty"`
}

func (h UpdateHints) IsZero() bool {
	return len(h.Added) == 0 && len(h.Removed) == 0 && !h.Text && !h.Children
}

func (h *UpdateHints) merge(o UpdateHints) {
	for _, a := range o.Added {
		if !slices.Contains(h.Added, a) {
			h.Added = append(h.Added, a)
		}
	}
	for _, r := range o.Removed {
		if !slices.Contains(h.Removed, r) {
			h.Removed = append(h.Removed, r)
		}
	}
	h.Text = h.Text || o.Text
	h.Children = h.Children || o.Children
}

type titleBuilder struct {
	segs []Segment
	all  bool
}

func (b *titleBuilder) add(kind SegmentKind, text string, emph bool) {
	b.segs = append(b.segs, Segment{Kind: kind, Text: text, Emphasized: emph || b.all})
}

// buildTitle renders r from current model state. all emphasizes every
// segment, as for rows that just appeared.
func (o *Outline) buildTitle(r *Row, h UpdateHints, all bool) Title {
	b := &titleBuilder{all: all}
	switch r.kind {
	case ClosingTagRow:
		if r.parent != nil && r.parent.node != nil {
			b.add(SegPunct, "</", false)
			b.add(SegTag, r.parent.node.TagName(), false)
			b.add(SegPunct, ">", false)
		}
	case EllipsisRow:
		b.add(SegEllipsis, "…", false)
	case ShowMoreRow:
		b.add(SegLabel, fmt.Sprintf("Show all nodes (%d more)", r.hiddenCount), false)
	default:
		o.nodeTitle(b, r, h)
	}
	return Title{Segments: b.segs}
}

func (o *Outline) nodeTitle(b *titleBuilder, r *Row, h UpdateHints) {
	n := r.node
	switch n.Kind() {
	case dommodel.ElementNode:
		if n.IsPseudoElement() {
			b.add(SegLabel, "::"+n.PseudoType(), false)
			return
		}
		tag := n.TagName()
		b.add(SegPunct, "<", false)
		b.add(SegTag, tag, len(h.Removed) > 0)
		for _, a := range n.Attributes() {
			emph := slices.Contains(h.Added, a.Name)
			b.add(SegPunct, " ", false)
			b.add(SegAttrName, a.Name, emph)
			b.add(SegPunct, `="`, false)
			b.add(SegAttrValue, a.Value, emph)
			b.add(SegPunct, `"`, false)
		}
		b.add(SegPunct, ">", false)
		if !hasClosingTag(n) {
			return
		}
		if text, ok := o.inlineText(n); ok {
			b.add(SegText, text.NodeValue(), h.Text)
		} else if o.expandable(n) {
			if r.Expanded() {
				return
			}
			b.add(SegEllipsis, "…", h.Children)
		}
		b.add(SegPunct, "</", false)
		b.add(SegTag, tag, false)
		b.add(SegPunct, ">", false)
	case dommodel.TextNode:
		b.add(SegPunct, `"`, false)
		b.add(SegText, n.NodeValue(), h.Text)
		b.add(SegPunct, `"`, false)
	case dommodel.CDATANode:
		b.add(SegPunct, "<![CDATA[", false)
		b.add(SegText, n.NodeValue(), h.Text)
		b.add(SegPunct, "]]>", false)
	case dommodel.CommentNode:
		b.add(SegComment, "<!--"+n.NodeValue()+"-->", h.Text)
	case dommodel.ProcessingInstructionNode:
		b.add(SegComment, "<?"+n.NodeName()+" "+n.NodeValue()+"?>", h.Text)
	case dommodel.DoctypeNode:
		s := "<!DOCTYPE " + n.NodeName()
		if n.PublicID() != "" {
			s += ` PUBLIC "` + n.PublicID() + `"`
			if n.SystemID() != "" {
				s += ` "` + n.SystemID() + `"`
			}
		} else if n.SystemID() != "" {
			s += ` SYSTEM "` + n.SystemID() + `"`
		}
		b.add(SegDoctype, s+">", false)
	case dommodel.DocumentNode:
		b.add(SegLabel, "#document", false)
	case dommodel.FragmentNode:
		if n.IsShadowRoot() {
			b.add(SegLabel, "#shadow-root ("+n.ShadowRootType()+")", false)
		} else {
			b.add(SegLabel, "#document-fragment", false)
		}
	case dommodel.AttributeNode:
		b.add(SegAttrName, n.NodeName(), false)
		b.add(SegPunct, `="`, false)
		b.add(SegAttrValue, n.NodeValue(), h.Text)
		b.add(SegPunct, `"`, false)
	default:
		b.add(SegLabel, n.NodeName(), false)
	}
}
