package outline

import (
	"context"
	"slices"
	"time"

	"github.com/hazyhaar/domoutline/dommodel"
	"github.com/hazyhaar/domoutline/loop"
)

// DecorationRequest is a copy of the node data a Decorator may need. It
// is safe to read off the loop.
type DecorationRequest struct {
	NodeID     dommodel.NodeID
	NodeName   string
	Attributes []dommodel.Attr
}

// Decorator computes badges for a row, possibly with remote queries.
// Decorate runs on its own goroutine.
type Decorator interface {
	Decorate(ctx context.Context, req DecorationRequest) ([]string, error)
}

// DecoratorFunc adapts a function to Decorator.
type DecoratorFunc func(ctx context.Context, req DecorationRequest) ([]string, error)

func (f DecoratorFunc) Decorate(ctx context.Context, req DecorationRequest) ([]string, error) {
	return f(ctx, req)
}

// throttle spaces decoration runs for one row. A run in flight is never
// cancelled; requests arriving meanwhile collapse into one rerun.
type throttle struct {
	last     time.Time
	inFlight bool
	again    bool
	deferred bool
	timer    loop.Timer
}

func (t *throttle) stop() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.again = false
	t.deferred = false
}

func (o *Outline) requestDecorations(r *Row) {
	if o.cfg.Decorator == nil || r.kind != NormalRow || !r.bound || r.node.Kind() != dommodel.ElementNode {
		return
	}
	t := &r.deco
	if o.hidden {
		if !t.deferred {
			t.deferred = true
			o.deferred = append(o.deferred, r)
		}
		return
	}
	if t.inFlight {
		t.again = true
		return
	}
	if t.timer != nil {
		return
	}
	wait := o.cfg.DecorationInterval - o.sched.Now().Sub(t.last)
	if !t.last.IsZero() && wait > 0 {
		t.timer = o.sched.AfterFunc(wait, func() {
			t.timer = nil
			o.runDecorator(r)
		})
		return
	}
	o.runDecorator(r)
}

// flushDeferred issues the decoration requests held during a bulk update,
// one per row still bound.
func (o *Outline) flushDeferred() {
	rows := o.deferred
	o.deferred = nil
	for _, r := range rows {
		if !r.deco.deferred {
			continue
		}
		r.deco.deferred = false
		o.requestDecorations(r)
	}
}

func (o *Outline) runDecorator(r *Row) {
	if !r.bound {
		return
	}
	t := &r.deco
	t.inFlight = true
	t.last = o.sched.Now()
	node := r.node
	req := DecorationRequest{NodeID: node.ID(), NodeName: node.NodeName(), Attributes: node.Attributes()}

	var (
		badges []string
		err    error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		badges, err = o.cfg.Decorator.Decorate(o.ctx, req)
	}()
	o.sched.Await(done, func() {
		t.inFlight = false
		if err != nil {
			o.logger.Debug("outline: decorate failed", "node", req.NodeID, "error", err)
		} else if r.bound && r.node == node {
			r.decorations = slices.Clone(badges)
		}
		if t.again && r.bound {
			t.again = false
			o.requestDecorations(r)
		}
	})
}
