package outline

import (
	"slices"

	"github.com/hazyhaar/domoutline/dommodel"
	"github.com/hazyhaar/domoutline/loop"
)

// RowKind tags what a Row represents.
type RowKind int

const (
	// NormalRow is bound to a model node.
	NormalRow RowKind = iota
	// ClosingTagRow ends an expanded element.
	ClosingTagRow
	// EllipsisRow stands in for children still loading.
	EllipsisRow
	// ShowMoreRow stands for children cut off by the pagination limit.
	ShowMoreRow
)

func (k RowKind) String() string {
	switch k {
	case NormalRow:
		return "normal"
	case ClosingTagRow:
		return "closing_tag"
	case EllipsisRow:
		return "ellipsis"
	case ShowMoreRow:
		return "show_more"
	}
	return "unknown"
}

// Row is one visual row of the outline. Rows are created and destroyed by
// the reconciler; callers hold them only as handles.
type Row struct {
	o        *Outline
	kind     RowKind
	node     *dommodel.Node
	parent   *Row
	children []*Row

	bound     bool
	expanded  bool
	populated bool
	requested bool
	pinned    bool
	limit     int

	closing  *Row
	ellipsis *Row
	more     *Row

	hiddenCount int

	edit        *EditSession
	title       Title
	titleQueued bool
	refreshes   int
	emphasis    loop.Timer

	decorations []string
	deco        throttle
}

func (r *Row) Kind() RowKind { return r.kind }

// Node is the bound node, nil for synthetic rows.
func (r *Row) Node() *dommodel.Node { return r.node }

func (r *Row) Parent() *Row { return r.parent }

// Children returns the current child rows, synthetic rows included.
func (r *Row) Children() []*Row { return slices.Clone(r.children) }

// Bound reports whether the row is still part of the outline.
func (r *Row) Bound() bool { return r.bound }

// Expanded reports whether the row shows its children. An expanded row
// whose node has nothing to show (empty, or inline text) reports false but
// keeps the request, so it shows children again once they appear.
func (r *Row) Expanded() bool {
	return r.kind == NormalRow && r.expanded && r.o.expandable(r.node)
}

// Expandable reports whether the node has children to show.
func (r *Row) Expandable() bool {
	return r.kind == NormalRow && r.o.expandable(r.node)
}

// Limit is the expanded child limit.
func (r *Row) Limit() int { return r.limit }

// HiddenCount is the number of children behind a show-more row.
func (r *Row) HiddenCount() int { return r.hiddenCount }

func (r *Row) Title() Title { return r.title }

// Editing returns the active edit session, if any.
func (r *Row) Editing() *EditSession { return r.edit }

func (r *Row) Decorations() []string { return slices.Clone(r.decorations) }

// Selected reports whether r is the outline selection.
func (r *Row) Selected() bool { return r.o.selected == r }

// Depth is the number of ancestors below the root.
func (r *Row) Depth() int {
	d := 0
	for p := r.parent; p != nil && p != r.o.root; p = p.parent {
		d++
	}
	return d
}

// SetExpanded expands or collapses the row. Expanding populates children
// lazily, requesting them from the model when they are not loaded.
func (r *Row) SetExpanded(v bool) {
	if r.kind != NormalRow || !r.bound || r.expanded == v {
		return
	}
	r.expanded = v
	if v {
		r.o.populate(r)
	}
	r.refreshTitle(UpdateHints{})
}

// Toggle flips the expanded state.
func (r *Row) Toggle() { r.SetExpanded(!r.expanded) }

// refreshTitle rebuilds the title. It is a no-op while an edit is live;
// the edit's completion refreshes instead.
func (r *Row) refreshTitle(h UpdateHints) {
	if !r.bound {
		return
	}
	if r.edit != nil && r.edit.live() {
		r.titleQueued = true
		return
	}
	r.titleQueued = false
	if r.o.hidden {
		h = UpdateHints{}
	}
	r.refreshes++
	r.title = r.o.buildTitle(r, h, false)
	if !h.IsZero() {
		r.emphasize()
	}
	r.o.requestDecorations(r)
}

// setTitle rebuilds synthetic row titles, which have no edit state.
func (r *Row) setTitle() {
	r.title = r.o.buildTitle(r, UpdateHints{}, false)
}

func (r *Row) emphasize() {
	if !r.title.Emphasized() {
		return
	}
	if r.emphasis != nil {
		r.emphasis.Stop()
	}
	r.emphasis = r.o.sched.AfterFunc(r.o.cfg.EmphasisDuration, func() {
		r.emphasis = nil
		r.title.clearEmphasis()
	})
}
