package outlinesvc

import (
	"context"
	"fmt"

	"github.com/hazyhaar/domoutline/kit"
)

// Endpoints are the service operations in transport-neutral form, shared
// by the HTTP routes and the MCP tools.
type Endpoints struct {
	Rows     kit.Endpoint
	Select   kit.Endpoint
	Expand   kit.Endpoint
	Reveal   kit.Endpoint
	ShowAll  kit.Endpoint
	SetLimit kit.Endpoint
	Forget   kit.Endpoint
}

// Endpoints wraps every operation with request logging.
func (s *Service) Endpoints() Endpoints {
	wrap := func(name string, ep kit.Endpoint) kit.Endpoint {
		return kit.Logging(s.logger, name)(ep)
	}
	return Endpoints{
		Rows: wrap("outline_rows", func(ctx context.Context, req any) (any, error) {
			r, ok := req.(*RowsRequest)
			if !ok {
				return nil, badType(req)
			}
			return s.Rows(ctx, *r)
		}),
		Select: wrap("outline_select", func(ctx context.Context, req any) (any, error) {
			r, ok := req.(*NodeRequest)
			if !ok {
				return nil, badType(req)
			}
			return s.Select(ctx, *r)
		}),
		Expand: wrap("outline_expand", func(ctx context.Context, req any) (any, error) {
			r, ok := req.(*ExpandRequest)
			if !ok {
				return nil, badType(req)
			}
			return s.Expand(ctx, *r)
		}),
		Reveal: wrap("outline_reveal", func(ctx context.Context, req any) (any, error) {
			r, ok := req.(*NodeRequest)
			if !ok {
				return nil, badType(req)
			}
			return s.Reveal(ctx, *r)
		}),
		ShowAll: wrap("outline_show_all", func(ctx context.Context, req any) (any, error) {
			r, ok := req.(*NodeRequest)
			if !ok {
				return nil, badType(req)
			}
			return s.ShowAll(ctx, *r)
		}),
		SetLimit: wrap("outline_set_limit", func(ctx context.Context, req any) (any, error) {
			r, ok := req.(*LimitRequest)
			if !ok {
				return nil, badType(req)
			}
			return s.SetLimit(ctx, *r)
		}),
		Forget: wrap("outline_forget_selection", func(ctx context.Context, req any) (any, error) {
			r, ok := req.(*ForgetRequest)
			if !ok {
				return nil, badType(req)
			}
			return s.ForgetSelection(ctx, *r)
		}),
	}
}

func badType(req any) error {
	return fmt.Errorf("%w: unexpected request %T", ErrBadRequest, req)
}
