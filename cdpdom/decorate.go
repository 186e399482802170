package cdpdom

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod/lib/proto"
	"github.com/hazyhaar/domoutline/outline"
)

// StyleDecorator badges element rows from their computed style: hidden
// elements, flex and grid containers, fixed and sticky positioning.
type StyleDecorator struct {
	m    *Model
	once sync.Once
	err  error
}

// NewStyleDecorator returns a decorator querying m's page. The CSS domain
// is enabled on first use.
func NewStyleDecorator(m *Model) *StyleDecorator {
	return &StyleDecorator{m: m}
}

var _ outline.Decorator = (*StyleDecorator)(nil)

func (d *StyleDecorator) Decorate(ctx context.Context, req outline.DecorationRequest) ([]string, error) {
	if d.m.ctx.Err() != nil {
		return nil, ErrDetached
	}
	c := d.m.page.Context(ctx)
	d.once.Do(func() {
		if err := (proto.CSSEnable{}).Call(c); err != nil {
			d.err = fmt.Errorf("cdpdom: CSS.enable: %w", err)
		}
	})
	if d.err != nil {
		return nil, d.err
	}
	res, err := proto.CSSGetComputedStyleForNode{NodeID: proto.DOMNodeID(req.NodeID)}.Call(c)
	if err != nil {
		return nil, fmt.Errorf("cdpdom: CSS.getComputedStyleForNode: %w", err)
	}
	style := make(map[string]string, len(res.ComputedStyle))
	for _, p := range res.ComputedStyle {
		style[p.Name] = p.Value
	}
	return badges(style), nil
}

func badges(style map[string]string) []string {
	var out []string
	switch style["display"] {
	case "none":
		return []string{"hidden"}
	case "flex", "inline-flex":
		out = append(out, "flex")
	case "grid", "inline-grid":
		out = append(out, "grid")
	}
	switch style["position"] {
	case "fixed", "sticky":
		out = append(out, style["position"])
	}
	if style["visibility"] == "hidden" {
		out = append(out, "invisible")
	}
	return out
}
