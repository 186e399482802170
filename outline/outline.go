// Package outline keeps a tree of rows in sync with a live document model.
// Mutation events are coalesced per node and flushed on a timer; each flush
// reconciles the affected child lists in place, so rows whose nodes did not
// change keep their identity, selection, expansion and in-progress edits.
//
// An Outline is not safe for concurrent use. Every call, including New,
// must run on the goroutine of its Scheduler.
package outline

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/hazyhaar/domoutline/dommodel"
	"github.com/hazyhaar/domoutline/idgen"
	"github.com/hazyhaar/domoutline/loop"
)

// ErrInvalidMove is returned by MoveNode for rows that cannot be moved there.
var ErrInvalidMove = errors.New("outline: invalid move")

// SelectionStore persists the selected node path per document URL.
type SelectionStore interface {
	LoadSelection(ctx context.Context, url string) (string, error)
	SaveSelection(ctx context.Context, url, path string) error
}

// Config for creating an Outline.
type Config struct {
	Model     dommodel.Model
	Scheduler loop.Scheduler
	Logger    *slog.Logger

	// ExpandedChildLimit caps materialized children per row. Default: 500.
	ExpandedChildLimit int
	// InlineTextLimit is the longest sole text child shown inline in its
	// parent's title, in characters. Default: 80.
	InlineTextLimit int
	// CoalesceWindow is the mutation batching delay. Default: 50ms.
	CoalesceWindow time.Duration
	// BulkThreshold hides the view during flushes touching more nodes.
	// Default: 10.
	BulkThreshold int
	// EmphasisDuration is how long changed title parts stay emphasized.
	// Default: 2s.
	EmphasisDuration time.Duration

	ShowUserAgentShadowRoots bool

	Decorator Decorator
	// DecorationInterval is the minimum spacing of decorator runs per row.
	// Default: 100ms.
	DecorationInterval time.Duration

	IDs        idgen.Generator
	Selections SelectionStore
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.ExpandedChildLimit <= 0 {
		c.ExpandedChildLimit = 500
	}
	if c.InlineTextLimit <= 0 {
		c.InlineTextLimit = 80
	}
	if c.CoalesceWindow <= 0 {
		c.CoalesceWindow = 50 * time.Millisecond
	}
	if c.BulkThreshold <= 0 {
		c.BulkThreshold = 10
	}
	if c.EmphasisDuration <= 0 {
		c.EmphasisDuration = 2 * time.Second
	}
	if c.DecorationInterval <= 0 {
		c.DecorationInterval = 100 * time.Millisecond
	}
	if c.IDs == nil {
		c.IDs = idgen.Default
	}
}

// Stats are cumulative counters.
type Stats struct {
	Flushes     int `json:"flushes"`
	BulkFlushes int `json:"bulk_flushes"`
	Rebuilds    int `json:"rebuilds"`
	Kept        int `json:"kept"`
	Moved       int `json:"moved"`
	Created     int `json:"created"`
	Removed     int `json:"removed"`
	Rows        int `json:"rows"`
}

func (s *Stats) add(p passStats) {
	s.Kept += p.Kept
	s.Moved += p.Moved
	s.Created += p.Created
	s.Removed += p.Removed
}

// pendingNode is a node identity produced by a command, to select once
// its row exists.
type pendingNode struct {
	id     dommodel.NodeID
	expand bool
}

// Outline owns the row tree for one document model.
type Outline struct {
	cfg         Config
	model       dommodel.Model
	sched       loop.Scheduler
	logger      *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()

	root *Row
	ids  *identityMap
	co   *coalescer

	selected      *Row
	lastPath      string
	wantSelect    *dommodel.Node
	pending       *pendingNode
	pendingReveal *dommodel.Node

	scrollTop int
	hidden    bool
	showUA    bool

	// rows whose decoration requests waited for a bulk update to end
	deferred []*Row

	listeners    []updateListener
	nextListener int
	seq          uint64
	stats        Stats
}

// New builds the outline for the model's current document and subscribes
// to its events.
func New(cfg Config) (*Outline, error) {
	if cfg.Model == nil {
		return nil, errors.New("outline: model is required")
	}
	if cfg.Scheduler == nil {
		return nil, errors.New("outline: scheduler is required")
	}
	cfg.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	o := &Outline{
		cfg:    cfg,
		model:  cfg.Model,
		sched:  cfg.Scheduler,
		logger: cfg.Logger,
		ctx:    ctx,
		cancel: cancel,
		ids:    newIdentityMap(cfg.Logger),
		showUA: cfg.ShowUserAgentShadowRoots,
	}
	o.co = newCoalescer(coalescerConfig{
		Window:        cfg.CoalesceWindow,
		BulkThreshold: cfg.BulkThreshold,
	}, cfg.Scheduler, o.flush)
	o.unsubscribe = cfg.Model.Subscribe(o.onEvent)
	o.rebuild()
	return o, nil
}

// Close stops listening to the model and drops pending work.
func (o *Outline) Close() {
	o.unsubscribe()
	o.co.reset()
	o.cancel()
}

// Model returns the backing model.
func (o *Outline) Model() dommodel.Model { return o.model }

// Root is the row of the document node. Its children are the top-level
// rows; the root itself is not displayed.
func (o *Outline) Root() *Row { return o.root }

func (o *Outline) onEvent(ev dommodel.Event) {
	switch ev.Kind {
	case dommodel.NodeInserted, dommodel.NodeRemoved:
		o.co.markStructural(ev.Parent)
	case dommodel.AttributeModified:
		o.co.markContent(ev.Node, UpdateHints{Added: []string{ev.Name}})
	case dommodel.AttributeRemoved:
		o.co.markContent(ev.Node, UpdateHints{Removed: []string{ev.Name}})
	case dommodel.CharacterDataModified:
		o.co.markContent(ev.Node, UpdateHints{Text: true})
		if p := ev.Node.Parent(); p != nil && p.ChildNodeCount() == 1 {
			o.co.markStructural(p)
		}
	case dommodel.ChildNodeCountUpdated:
		o.co.markStructural(ev.Node)
	case dommodel.DocumentUpdated:
		o.co.reset()
		o.rebuild()
		o.emit(nil, true)
	}
}

// Flush applies pending mutations now instead of waiting for the window.
func (o *Outline) Flush() { o.co.flush() }

// PendingMutations is the number of distinct dirty nodes awaiting a flush.
func (o *Outline) PendingMutations() int { return o.co.pending() }

func (o *Outline) flush(batch []*dirtyEntry) {
	o.stats.Flushes++
	nodes := make([]dommodel.NodeID, 0, len(batch))
	for _, e := range batch {
		nodes = append(nodes, e.node.ID())
	}
	if o.root != nil {
		for _, e := range batch {
			if e.structural && e.node == o.root.node {
				o.rebuild()
				o.emit(nodes, true)
				return
			}
		}
	}

	bulk := len(batch) > o.co.cfg.BulkThreshold
	scroll := o.scrollTop
	if bulk {
		o.hidden = true
		o.stats.BulkFlushes++
	}

	reconciled := make(map[*Row]bool)
	hints := make(map[*Row]*UpdateHints)
	var titled []*Row
	addTitle := func(r *Row, h UpdateHints) {
		if cur, ok := hints[r]; ok {
			cur.merge(h)
			return
		}
		var merged UpdateHints
		merged.merge(h)
		hints[r] = &merged
		titled = append(titled, r)
	}

	for _, e := range batch {
		o.safely(e.node, func() {
			if e.structural {
				r := o.ids.get(e.node)
				if r == nil {
					o.logger.Debug("outline: no row for dirty parent", "node", e.node.ID())
				} else {
					if !reconciled[r] {
						reconciled[r] = true
						o.reconcile(r, false)
					}
					addTitle(r, UpdateHints{Children: true})
				}
			}
			if e.content {
				r := o.ids.lookup(e.node)
				if r == nil {
					return
				}
				h := e.hints
				if r.node != e.node {
					h = UpdateHints{Text: true}
				}
				addTitle(r, h)
			}
		})
	}
	for _, r := range titled {
		if !r.bound {
			continue
		}
		o.safely(r.node, func() { r.refreshTitle(*hints[r]) })
	}

	o.resolveWanted()
	o.wantSelect = nil
	if bulk {
		o.hidden = false
		o.setScrollTop(scroll)
		o.flushDeferred()
	}
	o.emit(nodes, false)
}

// safely isolates a per-node failure so the rest of the flush proceeds.
func (o *Outline) safely(n *dommodel.Node, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			var id dommodel.NodeID
			if n != nil {
				id = n.ID()
			}
			o.logger.Error("outline: node update failed", "node", id, "panic", r)
		}
	}()
	fn()
}

// rebuild drops every row and builds the tree from the current document.
func (o *Outline) rebuild() {
	o.stats.Rebuilds++
	prevPath := o.lastPath
	scroll := o.scrollTop
	if o.root != nil {
		o.destroyRow(o.root)
		o.root = nil
	}
	o.ids.reset()
	o.selected, o.wantSelect, o.pending, o.pendingReveal = nil, nil, nil, nil

	doc := o.model.Document()
	if doc == nil {
		o.scrollTop = 0
		return
	}
	o.root = o.createRow(doc, nil, false)
	o.root.expanded = true
	o.reconcile(o.root, true)
	o.restoreSelection(doc, prevPath)
	o.setScrollTop(scroll)
	o.logger.Debug("outline: rebuilt", "url", doc.DocumentURL(), "rows", o.ids.len())
}

func (o *Outline) restoreSelection(doc *dommodel.Node, prevPath string) {
	var candidates []string
	if o.cfg.Selections != nil {
		p, err := o.cfg.Selections.LoadSelection(o.ctx, doc.DocumentURL())
		if err != nil {
			o.logger.Warn("outline: load selection failed", "url", doc.DocumentURL(), "error", err)
		} else if p != "" {
			candidates = append(candidates, p)
		}
	}
	if prevPath != "" {
		candidates = append(candidates, prevPath)
	}
	for _, p := range candidates {
		if n := dommodel.ResolvePath(doc, p); n != nil && n != doc && o.revealAndSelect(n) {
			return
		}
	}
	de := documentElement(doc)
	if b := childElement(de, "body"); b != nil && o.revealAndSelect(b) {
		return
	}
	if de != nil {
		o.revealAndSelect(de)
	}
}

func documentElement(doc *dommodel.Node) *dommodel.Node {
	for _, c := range doc.Children() {
		if c.Kind() == dommodel.ElementNode {
			return c
		}
	}
	return nil
}

func childElement(n *dommodel.Node, tag string) *dommodel.Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children() {
		if c.Kind() == dommodel.ElementNode && c.TagName() == tag {
			return c
		}
	}
	return nil
}

// FindRowForNode returns the row showing n. Inline text resolves to its
// parent's row.
func (o *Outline) FindRowForNode(n *dommodel.Node) *Row { return o.ids.lookup(n) }

// Selected is the selected row, nil if none.
func (o *Outline) Selected() *Row { return o.selected }

// SelectNode selects the row already showing n. User-initiated selections
// are persisted and cancel pending automatic selections.
func (o *Outline) SelectNode(n *dommodel.Node, userInitiated bool) bool {
	r := o.ids.lookup(n)
	if r == nil {
		return false
	}
	o.selectRow(r, userInitiated)
	return true
}

func (o *Outline) selectRow(r *Row, user bool) {
	if r == nil || r.kind != NormalRow || !r.bound {
		return
	}
	o.selected = r
	o.wantSelect = nil
	o.lastPath = dommodel.PathOf(r.node)
	if !user {
		return
	}
	o.pending = nil
	o.pendingReveal = nil
	if o.cfg.Selections == nil {
		return
	}
	url := ""
	if doc := r.node.OwnerDocument(); doc != nil {
		url = doc.DocumentURL()
	}
	if err := o.cfg.Selections.SaveSelection(o.ctx, url, o.lastPath); err != nil {
		o.logger.Warn("outline: save selection failed", "url", url, "error", err)
	}
}

// RevealAndSelect expands the ancestors of n, grows pagination limits so
// its row is materialized, and selects it. When children still have to be
// loaded the reveal completes after they arrive and it returns false.
func (o *Outline) RevealAndSelect(n *dommodel.Node) bool {
	o.pendingReveal = nil
	return o.revealAndSelect(n)
}

func (o *Outline) revealAndSelect(n *dommodel.Node) bool {
	if n == nil || o.root == nil {
		return false
	}
	var chain []*dommodel.Node
	for p := n.Parent(); p != nil; p = p.Parent() {
		chain = append(chain, p)
	}
	slices.Reverse(chain)
	if len(chain) == 0 || chain[0] != o.root.node {
		return false
	}
	for i, anc := range chain {
		row := o.ids.get(anc)
		if row == nil {
			o.pendingReveal = n
			return false
		}
		next := n
		if i+1 < len(chain) {
			next = chain[i+1]
		}
		if t, ok := o.inlineText(anc); ok && t == next {
			o.selectRow(row, false)
			return true
		}
		if !row.expanded {
			row.SetExpanded(true)
		}
		if o.ids.get(next) != nil {
			continue
		}
		idx := slices.Index(o.visibleChildren(anc), next)
		if idx < 0 {
			o.pendingReveal = n
			return false
		}
		if idx >= row.limit {
			o.SetExpandedChildLimit(row, idx+1)
		}
		if o.ids.get(next) == nil {
			o.pendingReveal = n
			return false
		}
	}
	r := o.ids.get(n)
	if r == nil {
		o.pendingReveal = n
		return false
	}
	o.selectRow(r, false)
	return true
}

// resolveWanted applies selections waiting for a row to exist: a selected
// node whose row was rebuilt, a command result, or an unfinished reveal.
func (o *Outline) resolveWanted() {
	if o.wantSelect != nil {
		if r := o.ids.get(o.wantSelect); r != nil {
			o.selectRow(r, false)
		}
	}
	if p := o.pending; p != nil {
		if n := o.model.NodeByID(p.id); n != nil {
			if r := o.ids.get(n); r != nil {
				o.pending = nil
				if p.expand {
					r.SetExpanded(true)
				}
				o.selectRow(r, false)
			}
		}
	}
	if n := o.pendingReveal; n != nil {
		o.pendingReveal = nil
		if o.model.NodeByID(n.ID()) == n {
			o.revealAndSelect(n)
		}
	}
}

// SetExpandedChildLimit sets how many children of row are materialized.
// A show-more row gives way to its parent.
func (o *Outline) SetExpandedChildLimit(row *Row, n int) {
	if row != nil && row.kind == ShowMoreRow {
		row = row.parent
	}
	if row == nil || row.kind != NormalRow || !row.bound {
		return
	}
	row.limit = max(n, 1)
	row.pinned = true
	o.reconcile(row, false)
	row.pinned = false
}

// ExpandAllRemaining materializes every visible child of row.
func (o *Outline) ExpandAllRemaining(row *Row) {
	if row != nil && row.kind == ShowMoreRow {
		row = row.parent
	}
	if row == nil || row.kind != NormalRow || !row.bound {
		return
	}
	if n := len(o.visibleChildren(row.node)); n > row.limit {
		o.SetExpandedChildLimit(row, n)
	}
}

// VisibleRow is a displayed row with its indentation depth.
type VisibleRow struct {
	Row   *Row
	Depth int
}

// VisibleRows flattens the expanded tree in display order. Closing tags
// share the depth of their opening row.
func (o *Outline) VisibleRows() []VisibleRow {
	if o.root == nil {
		return nil
	}
	var out []VisibleRow
	var walk func(r *Row, depth int)
	walk = func(r *Row, depth int) {
		for _, c := range r.children {
			d := depth
			if c.kind == ClosingTagRow {
				d = max(depth-1, 0)
			}
			out = append(out, VisibleRow{Row: c, Depth: d})
			if c.kind == NormalRow && c.Expanded() {
				walk(c, depth+1)
			}
		}
	}
	walk(o.root, 0)
	return out
}

// ScrollTop is the index of the first displayed row.
func (o *Outline) ScrollTop() int { return o.scrollTop }

// SetScrollTop sets the scroll offset, clamped to the rows.
func (o *Outline) SetScrollTop(n int) { o.setScrollTop(n) }

func (o *Outline) setScrollTop(n int) {
	limit := max(len(o.VisibleRows())-1, 0)
	o.scrollTop = min(max(n, 0), limit)
}

// Hidden reports whether a bulk update is being applied. It is only true
// inside a flush: rows built meanwhile are not emphasized and their
// decoration requests run once the view is shown again.
func (o *Outline) Hidden() bool { return o.hidden }

// SetShowUserAgentShadowRoots toggles user-agent shadow roots and
// reconciles every expanded row.
func (o *Outline) SetShowUserAgentShadowRoots(v bool) {
	if o.showUA == v {
		return
	}
	o.showUA = v
	if o.root == nil {
		return
	}
	var rows []*Row
	var walk func(r *Row)
	walk = func(r *Row) {
		if r.kind != NormalRow {
			return
		}
		rows = append(rows, r)
		for _, c := range r.children {
			walk(c)
		}
	}
	walk(o.root)
	for _, r := range rows {
		if r.bound && r.expanded {
			o.reconcile(r, false)
			r.refreshTitle(UpdateHints{})
		}
	}
}

// MoveNode asks the model to move row's node under newParent, before the
// node of before (nil appends). The moved node is selected once its new
// row exists.
func (o *Outline) MoveNode(ctx context.Context, row, newParent, before *Row) (*dommodel.Call, error) {
	if row == nil || newParent == nil || row.kind != NormalRow || newParent.kind != NormalRow ||
		!row.bound || !newParent.bound || row.node.Contains(newParent.node) {
		return nil, ErrInvalidMove
	}
	var anchor dommodel.NodeID
	if before != nil {
		if before.kind != NormalRow || before.parent != newParent {
			return nil, ErrInvalidMove
		}
		anchor = before.node.ID()
	}
	expand := row.expanded
	call := o.model.MoveTo(ctx, row.node.ID(), newParent.node.ID(), anchor)
	o.sched.Await(call.Done(), func() {
		if err := call.Err(); err != nil {
			o.logger.Warn("outline: move failed", "node", row.node.ID(), "error", err)
			return
		}
		o.pending = &pendingNode{id: call.NodeID(), expand: expand}
		o.resolveWanted()
	})
	return call, nil
}

// RemoveNode asks the model to delete row's node.
func (o *Outline) RemoveNode(ctx context.Context, row *Row) (*dommodel.Call, error) {
	if row == nil || row.kind != NormalRow || !row.bound || row == o.root {
		return nil, ErrNotEditable
	}
	id := row.node.ID()
	call := o.model.RemoveNode(ctx, id)
	o.sched.Await(call.Done(), func() {
		if err := call.Err(); err != nil {
			o.logger.Warn("outline: remove failed", "node", id, "error", err)
		}
	})
	return call, nil
}

// Stats returns cumulative counters.
func (o *Outline) Stats() Stats {
	s := o.stats
	s.Rows = o.ids.len()
	return s
}
