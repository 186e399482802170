package outline

import (
	"time"

	"github.com/hazyhaar/domoutline/dommodel"
	"github.com/hazyhaar/domoutline/loop"
)

// coalescerConfig controls mutation batching.
type coalescerConfig struct {
	// Window is the delay between the first mark and the flush. Default: 50ms.
	Window time.Duration
	// BulkThreshold hides the view while a flush touches more distinct
	// nodes than this. Default: 10.
	BulkThreshold int
}

func (cc *coalescerConfig) defaults() {
	if cc.Window <= 0 {
		cc.Window = 50 * time.Millisecond
	}
	if cc.BulkThreshold <= 0 {
		cc.BulkThreshold = 10
	}
}

// dirtyEntry accumulates what happened to one node since the last flush.
// structural means the node's child list changed and its row needs
// reconciling; content means its own title needs refreshing.
type dirtyEntry struct {
	node       *dommodel.Node
	content    bool
	structural bool
	hints      UpdateHints
}

// coalescer collects dirty entries and flushes them once per window. The
// window is armed by the first mark and not extended by later ones, so a
// steady stream of events still flushes at a bounded latency.
type coalescer struct {
	cfg     coalescerConfig
	sched   loop.Scheduler
	entries map[dommodel.NodeID]*dirtyEntry
	order   []*dirtyEntry
	timer   loop.Timer
	flushFn func([]*dirtyEntry)
}

func newCoalescer(cfg coalescerConfig, sched loop.Scheduler, flushFn func([]*dirtyEntry)) *coalescer {
	cfg.defaults()
	return &coalescer{
		cfg:     cfg,
		sched:   sched,
		entries: make(map[dommodel.NodeID]*dirtyEntry),
		flushFn: flushFn,
	}
}

func (c *coalescer) entry(n *dommodel.Node) *dirtyEntry {
	e := c.entries[n.ID()]
	if e == nil || e.node != n {
		e = &dirtyEntry{node: n}
		c.entries[n.ID()] = e
		c.order = append(c.order, e)
	}
	if c.timer == nil {
		c.timer = c.sched.AfterFunc(c.cfg.Window, c.flush)
	}
	return e
}

func (c *coalescer) markContent(n *dommodel.Node, h UpdateHints) {
	if n == nil {
		return
	}
	e := c.entry(n)
	e.content = true
	e.hints.merge(h)
}

func (c *coalescer) markStructural(n *dommodel.Node) {
	if n == nil {
		return
	}
	c.entry(n).structural = true
}

// pending is the number of distinct dirty nodes.
func (c *coalescer) pending() int { return len(c.order) }

// reset drops all pending dirt without flushing.
func (c *coalescer) reset() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	clear(c.entries)
	c.order = nil
}

// flush hands the accumulated entries to flushFn and starts a new window.
// Marks made during flushFn land in the next window.
func (c *coalescer) flush() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if len(c.order) == 0 {
		return
	}
	batch := c.order
	c.order = nil
	c.entries = make(map[dommodel.NodeID]*dirtyEntry)
	c.flushFn(batch)
}
