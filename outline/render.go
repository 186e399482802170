package outline

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Styles maps title segments to terminal styles.
type Styles struct {
	Punct      lipgloss.Style
	Tag        lipgloss.Style
	AttrName   lipgloss.Style
	AttrValue  lipgloss.Style
	Text       lipgloss.Style
	Comment    lipgloss.Style
	Doctype    lipgloss.Style
	Label      lipgloss.Style
	Ellipsis   lipgloss.Style
	Emphasis   lipgloss.Style
	Selected   lipgloss.Style
	Badge      lipgloss.Style
	Editing    lipgloss.Style
	IndentSize int
}

// DefaultStyles mimics a browser elements panel.
func DefaultStyles() Styles {
	return Styles{
		Punct:      lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Tag:        lipgloss.NewStyle().Foreground(lipgloss.Color("99")),
		AttrName:   lipgloss.NewStyle().Foreground(lipgloss.Color("179")),
		AttrValue:  lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
		Text:       lipgloss.NewStyle(),
		Comment:    lipgloss.NewStyle().Foreground(lipgloss.Color("71")),
		Doctype:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Label:      lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true),
		Ellipsis:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Emphasis:   lipgloss.NewStyle().Background(lipgloss.Color("58")),
		Selected:   lipgloss.NewStyle().Background(lipgloss.Color("237")),
		Badge:      lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("244")).Padding(0, 1),
		Editing:    lipgloss.NewStyle().Underline(true),
		IndentSize: 2,
	}
}

func (s Styles) segment(seg Segment) lipgloss.Style {
	var st lipgloss.Style
	switch seg.Kind {
	case SegTag:
		st = s.Tag
	case SegAttrName:
		st = s.AttrName
	case SegAttrValue:
		st = s.AttrValue
	case SegText:
		st = s.Text
	case SegComment:
		st = s.Comment
	case SegDoctype:
		st = s.Doctype
	case SegLabel:
		st = s.Label
	case SegEllipsis:
		st = s.Ellipsis
	default:
		st = s.Punct
	}
	if seg.Emphasized {
		st = st.Background(s.Emphasis.GetBackground())
	}
	return st
}

// RenderTitle styles every segment of t.
func (s Styles) RenderTitle(t Title) string {
	var b strings.Builder
	for _, seg := range t.Segments {
		b.WriteString(s.segment(seg).Render(seg.Text))
	}
	return b.String()
}

// RenderRow renders one visible row with indentation, disclosure marker
// and decorations.
func (s Styles) RenderRow(v VisibleRow) string {
	r := v.Row
	var b strings.Builder
	b.WriteString(strings.Repeat(" ", v.Depth*s.IndentSize))
	switch {
	case r.Kind() != NormalRow:
		b.WriteString("  ")
	case r.Expanded():
		b.WriteString("▾ ")
	case r.Expandable():
		b.WriteString("▸ ")
	default:
		b.WriteString("  ")
	}
	if e := r.Editing(); e != nil {
		b.WriteString(s.Editing.Render(e.Value()))
	} else {
		b.WriteString(s.RenderTitle(r.Title()))
	}
	for _, d := range r.Decorations() {
		b.WriteString(" ")
		b.WriteString(s.Badge.Render(d))
	}
	line := b.String()
	if r.Kind() == NormalRow && r.Selected() {
		line = s.Selected.Render(line)
	}
	return line
}
