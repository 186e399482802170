package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/hazyhaar/domoutline/internal/config"
	"github.com/hazyhaar/domoutline/outline"
	"github.com/hazyhaar/domoutline/sink"
)

func TestNewSinks_FrontEndCallback(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{Sinks: []config.SinkConfig{{Type: "stdout"}}}

	var got int
	cb := sink.NewCallback(func(context.Context, outline.Update) error { got++; return nil })
	r := newSinks(logger, cfg, "tui", cb)
	if r.Len() != 1 {
		t.Fatalf("got %d sinks, want 1", r.Len())
	}
	if err := r.Send(context.Background(), outline.Update{Seq: 1}); err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Fatalf("got %d callbacks, want 1", got)
	}

	if r := newSinks(logger, cfg, "log"); r.Len() != 1 {
		t.Fatalf("got %d sinks for log, want 1", r.Len())
	}
}
