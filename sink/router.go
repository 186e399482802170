package sink

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hazyhaar/domoutline/outline"
)

// Router fans out updates to all configured sinks. One sink error does
// not block the others; errors are logged and the first one is returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router delivering to all sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

func (r *Router) Send(ctx context.Context, u outline.Update) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Send(ctx, u); err != nil {
			r.logger.Warn("sink: send update failed", "seq", u.Seq, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) Close() error {
	var errs []error
	for _, s := range r.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// Len is the number of sinks.
func (r *Router) Len() int { return len(r.sinks) }
