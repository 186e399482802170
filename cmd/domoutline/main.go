// Command domoutline shows the DOM of a live Chrome page or an HTML file
// as an incrementally updated outline.
//
// Usage:
//
//	domoutline -url https://example.com            # terminal outline of a live page
//	domoutline -file page.html                     # outline a file, reloaded on save
//	domoutline -url https://example.com -front http # serve the outline over HTTP
//	domoutline -file page.html -front mcp           # MCP tools over stdio
//	domoutline -config domoutline.yaml
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domoutline/cdpdom"
	"github.com/hazyhaar/domoutline/dommodel"
	"github.com/hazyhaar/domoutline/idgen"
	"github.com/hazyhaar/domoutline/internal/config"
	"github.com/hazyhaar/domoutline/loop"
	"github.com/hazyhaar/domoutline/memdom"
	"github.com/hazyhaar/domoutline/outline"
	"github.com/hazyhaar/domoutline/outlinesvc"
	"github.com/hazyhaar/domoutline/sink"
	"github.com/hazyhaar/domoutline/statestore"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to domoutline.yaml config file")
	url := flag.String("url", "", "outline a live page at this URL")
	file := flag.String("file", "", "outline an HTML file, reloaded when it changes")
	front := flag.String("front", "tui", "front-end: tui, http, mcp or log")
	addr := flag.String("addr", "", "HTTP listen address (front http)")
	statePath := flag.String("state", "", "SQLite file remembering the selection per URL")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	logFile := flag.String("log-file", "", "write logs to this file (tui logs nowhere by default)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if *url != "" {
		cfg.Source.URL, cfg.Source.File = *url, ""
	}
	if *file != "" {
		cfg.Source.File, cfg.Source.URL = *file, ""
	}
	if *addr != "" {
		cfg.Serve.Addr = *addr
	}
	if *statePath != "" {
		cfg.State.Path = *statePath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if cfg.Source.URL == "" && cfg.Source.File == "" {
		fmt.Fprintln(os.Stderr, "usage: domoutline -url <url> | -file <page.html> [-front tui|http|mcp|log] [-config <file>]")
		os.Exit(2)
	}

	logger, closeLog, err := newLogger(cfg.LogLevel, *logFile, *front)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg, *front); err != nil {
		logger.Error("domoutline: fatal", "error", err)
		if *front == "tui" {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newLogger(level, path, front string) (*slog.Logger, func(), error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	var w io.Writer = os.Stderr
	closer := func() {}
	switch {
	case path != "":
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("domoutline: open log file: %w", err)
		}
		w, closer = f, func() { f.Close() }
	case front == "tui":
		w = io.Discard
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), closer, nil
}

// source is the DOM model plus what it needs to stay live.
type source struct {
	model     dommodel.Model
	decorator outline.Decorator
	watch     func(ctx context.Context) error
	close     func()
}

func openSource(ctx context.Context, logger *slog.Logger, l *loop.Loop, cfg *config.Config) (*source, error) {
	if cfg.Source.File != "" {
		return openFile(logger, l, cfg)
	}
	sess, err := cdpdom.Open(ctx, cdpdom.SessionConfig{
		URL:              cfg.Source.URL,
		RemoteURL:        cfg.Source.Remote,
		Mode:             cfg.Source.Mode,
		ResourceBlocking: cfg.Source.ResourceBlocking,
		NavigateTimeout:  cfg.Source.NavigateTimeout,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}
	m, err := cdpdom.Attach(ctx, cdpdom.Config{
		Page:      sess.Page(),
		Scheduler: l,
		Depth:     cfg.Source.Depth,
		Pierce:    cfg.Source.Pierce,
		Logger:    logger,
	})
	if err != nil {
		sess.Close()
		return nil, err
	}
	src := &source{
		model: m,
		close: func() {
			m.Close()
			if err := sess.Close(); err != nil {
				logger.Warn("domoutline: close browser", "error", err)
			}
		},
	}
	if cfg.Outline.Decorate {
		src.decorator = cdpdom.NewStyleDecorator(m)
	}
	return src, nil
}

func openFile(logger *slog.Logger, l *loop.Loop, cfg *config.Config) (*source, error) {
	path := cfg.Source.File
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("domoutline: %w", err)
	}
	defer f.Close()
	opts := []memdom.Option{memdom.WithURL("file://" + filepath.ToSlash(abs)), memdom.WithLogger(logger)}
	if cfg.Source.Depth > 0 {
		opts = append(opts, memdom.WithLazyDepth(cfg.Source.Depth))
	}
	m, err := memdom.Parse(f, opts...)
	if err != nil {
		return nil, err
	}
	reload := func() {
		data, err := os.ReadFile(abs)
		if err != nil {
			logger.Warn("domoutline: reload failed", "path", abs, "error", err)
			return
		}
		l.Post(func() {
			if err := m.Load(bytes.NewReader(data)); err != nil {
				logger.Warn("domoutline: reload failed", "path", abs, "error", err)
				return
			}
			logger.Info("domoutline: reloaded", "path", abs, "bytes", len(data))
		})
	}
	return &source{
		model: m,
		watch: func(ctx context.Context) error {
			return watchFile(ctx, abs, 100*time.Millisecond, logger, reload)
		},
		close: func() {},
	}, nil
}

// newSinks builds the configured sinks plus any the front-end needs itself.
func newSinks(logger *slog.Logger, cfg *config.Config, front string, extra ...sink.Sink) *sink.Router {
	sinks := slices.Clone(extra)
	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			if front == "mcp" || front == "tui" {
				logger.Warn("domoutline: stdout sink ignored for this front-end", "front", front)
				continue
			}
			sinks = append(sinks, sink.NewStdout(nil))
		case "webhook":
			sinks = append(sinks, sink.NewWebhook(sc.URL, sink.WithWebhookRetries(sc.Retries), sink.WithWebhookLogger(logger)))
		}
	}
	if front == "log" && len(sinks) == 0 {
		sinks = append(sinks, sink.NewStdout(nil))
	}
	return sink.NewRouter(logger, sinks...)
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config, front string) error {
	l := loop.New(logger)
	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan error, 1)
	go func() { loopDone <- l.Run(loopCtx) }()
	defer func() {
		stopLoop()
		<-loopDone
	}()

	src, err := openSource(ctx, logger, l, cfg)
	if err != nil {
		return err
	}
	defer src.close()

	var (
		store  outline.SelectionStore
		forget outlinesvc.SelectionForgetter
	)
	if cfg.State.Path != "" {
		st, err := statestore.Open(cfg.State.Path, logger)
		if err != nil {
			return err
		}
		defer st.Close()
		n, err := st.Prune(ctx, time.Now().Add(-cfg.State.Retention))
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("domoutline: stale selections pruned", "count", n, "retention", cfg.State.Retention)
		}
		store, forget = st, st
	}

	var (
		o      *outline.Outline
		newErr error
	)
	err = l.Call(ctx, func() {
		o, newErr = outline.New(outline.Config{
			Model:                    src.model,
			Scheduler:                l,
			Logger:                   logger,
			ExpandedChildLimit:       cfg.Outline.ExpandedChildLimit,
			InlineTextLimit:          cfg.Outline.InlineTextLimit,
			CoalesceWindow:           cfg.Outline.CoalesceWindow,
			BulkThreshold:            cfg.Outline.BulkThreshold,
			EmphasisDuration:         cfg.Outline.EmphasisDuration,
			ShowUserAgentShadowRoots: cfg.Outline.ShowUAShadowRoots,
			Decorator:                src.decorator,
			DecorationInterval:       cfg.Outline.DecorationInterval,
			IDs:                      idgen.Prefixed("upd_", idgen.Default),
			Selections:               store,
		})
	})
	if err = errors.Join(err, newErr); err != nil {
		return err
	}
	defer l.Call(context.Background(), o.Close)

	// The TUI learns about updates through the same forwarder as the
	// configured sinks; one pending signal is enough to trigger a redraw.
	var extra []sink.Sink
	updates := make(chan struct{}, 1)
	if front == "tui" {
		extra = append(extra, sink.NewCallback(func(context.Context, outline.Update) error {
			select {
			case updates <- struct{}{}:
			default:
			}
			return nil
		}))
	}
	router := newSinks(logger, cfg, front, extra...)
	if router.Len() > 0 {
		fwd := sink.NewForwarder(ctx, router, 256, logger)
		var off func()
		l.Call(ctx, func() { off = o.OnTreeUpdated(fwd.Push) })
		defer func() {
			l.Call(context.Background(), off)
			fwd.Close()
		}()
	}

	if src.watch != nil {
		go func() {
			if err := src.watch(ctx); err != nil {
				logger.Warn("domoutline: file watch stopped", "error", err)
			}
		}()
	}

	svc, err := outlinesvc.New(outlinesvc.Config{Outline: o, Runner: l, Logger: logger, Selections: forget})
	if err != nil {
		return err
	}

	switch front {
	case "tui":
		return runTUI(ctx, l, o, updates)
	case "http":
		return serveHTTP(ctx, logger, cfg.Serve.Addr, svc)
	case "mcp":
		srv := mcp.NewServer(&mcp.Implementation{Name: "domoutline", Version: version}, nil)
		svc.RegisterMCP(srv)
		logger.Info("domoutline: mcp on stdio")
		return srv.Run(ctx, &mcp.StdioTransport{})
	case "log":
		<-ctx.Done()
		return nil
	}
	return fmt.Errorf("domoutline: unknown front-end %q", front)
}

func serveHTTP(ctx context.Context, logger *slog.Logger, addr string, svc *outlinesvc.Service) error {
	srv := &http.Server{Addr: addr, Handler: svc.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("domoutline: http listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
