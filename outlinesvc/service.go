// Package outlinesvc exposes an Outline to other goroutines and over
// HTTP and MCP. Every operation runs on the outline's loop.
package outlinesvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/domoutline/dommodel"
	"github.com/hazyhaar/domoutline/outline"
)

var (
	// ErrUnknownNode is returned for node ids the model does not hold.
	ErrUnknownNode = errors.New("outlinesvc: unknown node")
	// ErrNoRow is returned when a node is known but has no row yet.
	ErrNoRow = errors.New("outlinesvc: node has no row")
	// ErrBadRequest is returned for malformed arguments.
	ErrBadRequest = errors.New("outlinesvc: bad request")
	// ErrNoStore is returned when no selection store is configured.
	ErrNoStore = errors.New("outlinesvc: no selection store")
)

// SelectionForgetter drops the saved selection of a document.
// *statestore.Store implements it.
type SelectionForgetter interface {
	Forget(ctx context.Context, url string) error
}

// Runner runs fn on the outline's loop and waits for it. *loop.Loop
// implements it.
type Runner interface {
	Call(ctx context.Context, fn func()) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, fn func()) error

func (f RunnerFunc) Call(ctx context.Context, fn func()) error { return f(ctx, fn) }

// Config for a Service.
type Config struct {
	Outline *outline.Outline
	Runner  Runner
	// Selections is optional; without it ForgetSelection fails with
	// ErrNoStore.
	Selections SelectionForgetter
	Logger     *slog.Logger
}

// Service is the goroutine-safe facade over an Outline.
type Service struct {
	o      *outline.Outline
	run    Runner
	forget SelectionForgetter
	logger *slog.Logger
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Outline == nil || cfg.Runner == nil {
		return nil, errors.New("outlinesvc: outline and runner are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{o: cfg.Outline, run: cfg.Runner, forget: cfg.Selections, logger: cfg.Logger}, nil
}

// RowView is the wire form of a visible row.
type RowView struct {
	Node       dommodel.NodeID `json:"node,omitempty"`
	Kind       string          `json:"kind"`
	Depth      int             `json:"depth"`
	Title      string          `json:"title"`
	Expandable bool            `json:"expandable,omitempty"`
	Expanded   bool            `json:"expanded,omitempty"`
	Selected   bool            `json:"selected,omitempty"`
	Limit      int             `json:"limit,omitempty"`
	Hidden     int             `json:"hidden,omitempty"`
	Badges     []string        `json:"badges,omitempty"`
	Editing    string          `json:"editing,omitempty"`
	XPath      string          `json:"xpath,omitempty"`
}

func view(v outline.VisibleRow) RowView {
	r := v.Row
	rv := RowView{
		Kind:   r.Kind().String(),
		Depth:  v.Depth,
		Title:  r.Title().String(),
		Badges: r.Decorations(),
	}
	switch r.Kind() {
	case outline.NormalRow:
		rv.Node = r.Node().ID()
		rv.Expandable = r.Expandable()
		rv.Expanded = r.Expanded()
		rv.Selected = r.Selected()
		rv.Limit = r.Limit()
		rv.XPath = dommodel.XPath(r.Node())
		if e := r.Editing(); e != nil {
			rv.Editing = e.Kind().String()
		}
	case outline.ShowMoreRow:
		if p := r.Parent(); p != nil && p.Node() != nil {
			rv.Node = p.Node().ID()
		}
		rv.Hidden = r.HiddenCount()
	}
	return rv
}

// RowsRequest pages through the visible rows. Limit 0 returns all rows
// from Offset.
type RowsRequest struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// RowsResponse is a page of visible rows.
type RowsResponse struct {
	Rows      []RowView       `json:"rows"`
	Total     int             `json:"total"`
	ScrollTop int             `json:"scroll_top"`
	Hidden    bool            `json:"hidden,omitempty"`
	Selected  dommodel.NodeID `json:"selected,omitempty"`
	Stats     outline.Stats   `json:"stats"`
}

// NodeRequest addresses one node.
type NodeRequest struct {
	Node dommodel.NodeID `json:"node"`
}

// ExpandRequest expands or collapses a node's row.
type ExpandRequest struct {
	Node     dommodel.NodeID `json:"node"`
	Expanded bool            `json:"expanded"`
}

// LimitRequest sets a row's expanded child limit.
type LimitRequest struct {
	Node  dommodel.NodeID `json:"node"`
	Limit int             `json:"limit"`
}

// RevealResponse reports whether the node's row was materialized. When
// children must load first, Revealed is false and the selection follows
// on a later flush.
type RevealResponse struct {
	Revealed bool     `json:"revealed"`
	Row      *RowView `json:"row,omitempty"`
}

// ForgetRequest takes no arguments: it applies to the current document.
type ForgetRequest struct{}

// ForgetResponse names the document whose saved selection was dropped.
type ForgetResponse struct {
	URL string `json:"url"`
}

// Rows returns a page of the flattened visible rows.
func (s *Service) Rows(ctx context.Context, req RowsRequest) (*RowsResponse, error) {
	if req.Offset < 0 || req.Limit < 0 {
		return nil, fmt.Errorf("%w: negative offset or limit", ErrBadRequest)
	}
	var resp *RowsResponse
	err := s.run.Call(ctx, func() {
		all := s.o.VisibleRows()
		resp = &RowsResponse{
			Rows:      []RowView{},
			Total:     len(all),
			ScrollTop: s.o.ScrollTop(),
			Hidden:    s.o.Hidden(),
			Stats:     s.o.Stats(),
		}
		if sel := s.o.Selected(); sel != nil {
			resp.Selected = sel.Node().ID()
		}
		end := len(all)
		if req.Limit > 0 {
			end = min(end, req.Offset+req.Limit)
		}
		for i := req.Offset; i < end; i++ {
			resp.Rows = append(resp.Rows, view(all[i]))
		}
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// withRow resolves id to a row on the loop and runs fn with it.
func (s *Service) withRow(ctx context.Context, id dommodel.NodeID, fn func(*outline.Row) error) error {
	var opErr error
	err := s.run.Call(ctx, func() {
		n := s.o.Model().NodeByID(id)
		if n == nil {
			opErr = fmt.Errorf("%w: %d", ErrUnknownNode, id)
			return
		}
		r := s.o.FindRowForNode(n)
		if r == nil {
			opErr = fmt.Errorf("%w: %d", ErrNoRow, id)
			return
		}
		opErr = fn(r)
	})
	if err != nil {
		return err
	}
	return opErr
}

// rowView finds r among the visible rows. A row under a collapsed
// ancestor is reported at depth -1.
func (s *Service) rowView(r *outline.Row) *RowView {
	for _, v := range s.o.VisibleRows() {
		if v.Row == r {
			rv := view(v)
			return &rv
		}
	}
	rv := view(outline.VisibleRow{Row: r, Depth: -1})
	return &rv
}

// Select selects the node's row.
func (s *Service) Select(ctx context.Context, req NodeRequest) (*RowView, error) {
	var out *RowView
	err := s.withRow(ctx, req.Node, func(r *outline.Row) error {
		if !s.o.SelectNode(r.Node(), true) {
			return fmt.Errorf("%w: %d", ErrNoRow, req.Node)
		}
		out = s.rowView(r)
		return nil
	})
	return out, err
}

// Expand expands or collapses the node's row.
func (s *Service) Expand(ctx context.Context, req ExpandRequest) (*RowView, error) {
	var out *RowView
	err := s.withRow(ctx, req.Node, func(r *outline.Row) error {
		r.SetExpanded(req.Expanded)
		out = s.rowView(r)
		return nil
	})
	return out, err
}

// Reveal expands the node's ancestors and selects it.
func (s *Service) Reveal(ctx context.Context, req NodeRequest) (*RevealResponse, error) {
	var (
		out   *RevealResponse
		opErr error
	)
	err := s.run.Call(ctx, func() {
		n := s.o.Model().NodeByID(req.Node)
		if n == nil {
			opErr = fmt.Errorf("%w: %d", ErrUnknownNode, req.Node)
			return
		}
		out = &RevealResponse{Revealed: s.o.RevealAndSelect(n)}
		if r := s.o.FindRowForNode(n); r != nil {
			out.Row = s.rowView(r)
		}
	})
	if err != nil {
		return nil, err
	}
	return out, opErr
}

// ShowAll materializes every child of the node's row.
func (s *Service) ShowAll(ctx context.Context, req NodeRequest) (*RowView, error) {
	var out *RowView
	err := s.withRow(ctx, req.Node, func(r *outline.Row) error {
		s.o.ExpandAllRemaining(r)
		out = s.rowView(r)
		return nil
	})
	return out, err
}

// SetLimit sets how many children of the node's row are materialized.
func (s *Service) SetLimit(ctx context.Context, req LimitRequest) (*RowView, error) {
	if req.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrBadRequest)
	}
	var out *RowView
	err := s.withRow(ctx, req.Node, func(r *outline.Row) error {
		s.o.SetExpandedChildLimit(r, req.Limit)
		out = s.rowView(r)
		return nil
	})
	return out, err
}

// ForgetSelection drops the saved selection of the current document, so
// the next reload selects body again.
func (s *Service) ForgetSelection(ctx context.Context, _ ForgetRequest) (*ForgetResponse, error) {
	if s.forget == nil {
		return nil, ErrNoStore
	}
	var url string
	err := s.run.Call(ctx, func() {
		if doc := s.o.Model().Document(); doc != nil {
			url = doc.DocumentURL()
		}
	})
	if err != nil {
		return nil, err
	}
	if url == "" {
		return nil, fmt.Errorf("%w: document has no url", ErrBadRequest)
	}
	if err := s.forget.Forget(ctx, url); err != nil {
		return nil, fmt.Errorf("outlinesvc: forget selection: %w", err)
	}
	s.logger.Info("outlinesvc: selection forgotten", "url", url)
	return &ForgetResponse{URL: url}, nil
}
