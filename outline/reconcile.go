package outline

import (
	"slices"

	"github.com/hazyhaar/domoutline/dommodel"
)

// passStats counts what one reconciliation pass did to a child list.
type passStats struct {
	Kept    int
	Moved   int
	Created int
	Removed int
}

func (s *passStats) add(o passStats) {
	s.Kept += o.Kept
	s.Moved += o.Moved
	s.Created += o.Created
	s.Removed += o.Removed
}

// reconcile makes row's children match the node's visible children,
// keeping every row whose node is still there. A collapsed row only drops
// rows whose nodes left it; ordering and creation wait for the next
// expand. full tears down the existing children first.
func (o *Outline) reconcile(row *Row, full bool) passStats {
	var st passStats
	if row == nil || !row.bound || row.kind != NormalRow {
		return st
	}
	scroll := o.scrollTop
	if full {
		for _, c := range row.children {
			if c.kind == NormalRow {
				st.Removed++
			}
			o.destroyRow(c)
		}
		row.children = nil
		row.populated = false
	}
	n := row.node
	visible := o.visibleChildren(n)
	inVisible := make(map[*dommodel.Node]bool, len(visible))
	for _, v := range visible {
		inVisible[v] = true
	}
	alive := func(c *Row) bool {
		return c.bound && c.node.Parent() == n && inVisible[c.node] && o.ids.get(c.node) == c
	}

	if !row.expanded {
		if row.populated {
			row.children = slices.DeleteFunc(row.children, func(c *Row) bool {
				if c.kind != NormalRow || alive(c) {
					return false
				}
				o.destroyRow(c)
				st.Removed++
				return true
			})
		}
		o.stats.add(st)
		return st
	}

	// A fully shown list may grow by one row per pass so a single new child
	// is not hidden behind a show-more row.
	growable := row.populated && !row.pinned && (row.more == nil || row.more.parent != row)
	grew := false
	emph := row.populated && !full && !o.hidden

	existing := make([]*Row, 0, len(row.children))
	for _, c := range row.children {
		if c.kind != NormalRow {
			c.parent = nil
			continue
		}
		if alive(c) {
			existing = append(existing, c)
			continue
		}
		o.destroyRow(c)
		st.Removed++
	}

	index := make(map[*dommodel.Node]int, len(existing))
	for i, c := range existing {
		index[c.node] = i
	}
	consumed := make([]bool, len(existing))
	out := make([]*Row, 0, min(len(visible), row.limit)+3)
	ei := 0
	for i, child := range visible {
		for ei < len(existing) && consumed[ei] {
			ei++
		}
		j, has := index[child]
		if i >= row.limit {
			if has || !growable || grew {
				break
			}
			row.limit++
			grew = true
		} else if !has && growable && !grew && len(visible) > row.limit {
			row.limit++
			grew = true
		}
		switch {
		case has && j == ei:
			consumed[j] = true
			out = append(out, existing[j])
			st.Kept++
		case has:
			consumed[j] = true
			out = append(out, existing[j])
			st.Moved++
		default:
			if stale := o.ids.get(child); stale != nil {
				o.detachRow(stale)
			}
			out = append(out, o.createRow(child, row, emph))
			st.Created++
		}
	}
	for j, c := range existing {
		if !consumed[j] {
			o.destroyRow(c)
			st.Removed++
		}
	}

	if needsPlaceholder(n) {
		if row.ellipsis == nil {
			row.ellipsis = o.syntheticRow(EllipsisRow)
		}
		out = append(out, row.ellipsis)
		o.requestChildren(row)
	}
	if len(visible) > row.limit {
		if row.more == nil {
			row.more = o.syntheticRow(ShowMoreRow)
		}
		row.more.hiddenCount = len(visible) - row.limit
		out = append(out, row.more)
	}
	if row.Expanded() && hasClosingTag(n) {
		if row.closing == nil {
			row.closing = o.syntheticRow(ClosingTagRow)
		}
		out = append(out, row.closing)
	}
	for _, c := range out {
		c.parent = row
		if c.kind != NormalRow {
			c.setTitle()
		}
	}
	row.children = out
	row.populated = true

	o.resolveWanted()
	if full {
		o.setScrollTop(scroll)
	}
	o.stats.add(st)
	return st
}

// createRow binds a new row for n under parent.
func (o *Outline) createRow(n *dommodel.Node, parent *Row, emph bool) *Row {
	r := &Row{
		o:      o,
		kind:   NormalRow,
		node:   n,
		parent: parent,
		limit:  o.cfg.ExpandedChildLimit,
	}
	if stale := o.ids.bind(r); stale != nil {
		o.detachRow(stale)
		o.ids.bind(r)
	}
	r.bound = true
	r.title = o.buildTitle(r, UpdateHints{}, emph)
	if emph {
		r.emphasize()
	}
	o.requestDecorations(r)
	return r
}

func (o *Outline) syntheticRow(kind RowKind) *Row {
	return &Row{o: o, kind: kind}
}

// destroyRow unbinds r and its subtree. Selection inside the subtree moves
// to the nearest surviving ancestor and the lost node is remembered so it
// can be reselected if a row for it reappears.
func (o *Outline) destroyRow(r *Row) {
	for _, c := range r.children {
		o.destroyRow(c)
	}
	r.children = nil
	if o.selected == r {
		if o.wantSelect == nil {
			o.wantSelect = r.node
		}
		o.selected = r.parent
	}
	if r.bound {
		r.bound = false
		o.ids.unbind(r)
		if r.edit != nil {
			r.edit.abort()
		}
	}
	if r.emphasis != nil {
		r.emphasis.Stop()
		r.emphasis = nil
	}
	r.deco.stop()
	r.parent = nil
}

// detachRow removes a row bound elsewhere, when its node moved to a parent
// that is reconciled before its old one.
func (o *Outline) detachRow(r *Row) {
	if p := r.parent; p != nil {
		p.children = slices.DeleteFunc(p.children, func(c *Row) bool { return c == r })
	}
	o.destroyRow(r)
	o.stats.Removed++
}

// populate fills a freshly expanded row.
func (o *Outline) populate(r *Row) {
	o.requestChildren(r)
	o.reconcile(r, false)
}

// requestChildren asks the model for unloaded children once.
func (o *Outline) requestChildren(r *Row) {
	n := r.node
	if r.requested || !needsPlaceholder(n) {
		return
	}
	r.requested = true
	call := o.model.RequestChildNodes(o.ctx, n.ID())
	o.sched.Await(call.Done(), func() {
		r.requested = false
		if err := call.Err(); err != nil {
			o.logger.Warn("outline: request child nodes failed", "node", n.ID(), "error", err)
		}
	})
}
