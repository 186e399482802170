// Package sink delivers outline tree-updated notifications to external
// consumers.
package sink

import (
	"context"

	"github.com/hazyhaar/domoutline/outline"
)

// Sink is the output interface. Implementations deliver updates to
// different backends (stdout, webhook, in-process callback).
type Sink interface {
	Send(ctx context.Context, u outline.Update) error
	Close() error
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
