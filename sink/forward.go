package sink

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/domoutline/outline"
)

// Forwarder decouples the outline's loop from slow sinks. Push never
// blocks; when the queue is full the update is dropped and logged.
type Forwarder struct {
	sink   Sink
	queue  chan outline.Update
	done   chan struct{}
	logger *slog.Logger
}

// NewForwarder starts delivering queued updates to s until ctx is
// cancelled or Close is called.
func NewForwarder(ctx context.Context, s Sink, size int, logger *slog.Logger) *Forwarder {
	if size <= 0 {
		size = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	f := &Forwarder{
		sink:   s,
		queue:  make(chan outline.Update, size),
		done:   make(chan struct{}),
		logger: logger,
	}
	go f.run(ctx)
	return f
}

// Push queues u. It is meant to be registered with Outline.OnTreeUpdated.
func (f *Forwarder) Push(u outline.Update) {
	select {
	case f.queue <- u:
	default:
		f.logger.Warn("sink: queue full, update dropped", "seq", u.Seq)
	}
}

func (f *Forwarder) run(ctx context.Context) {
	defer close(f.done)
	for {
		select {
		case u, ok := <-f.queue:
			if !ok {
				return
			}
			if err := f.sink.Send(ctx, u); err != nil {
				f.logger.Debug("sink: forward failed", "seq", u.Seq, "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close drains the queue and closes the sink. No Push may follow.
func (f *Forwarder) Close() error {
	close(f.queue)
	<-f.done
	return f.sink.Close()
}
