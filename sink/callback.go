package sink

import (
	"context"

	"github.com/hazyhaar/domoutline/outline"
)

// UpdateFunc is called for each update, in process.
type UpdateFunc func(ctx context.Context, u outline.Update) error

// Callback delivers updates via a Go function call with no serialisation.
type Callback struct {
	fn UpdateFunc
}

// NewCallback creates a Callback sink. fn may be nil.
func NewCallback(fn UpdateFunc) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) Send(ctx context.Context, u outline.Update) error {
	if c.fn != nil {
		return c.fn(ctx, u)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
