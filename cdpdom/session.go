package cdpdom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/hazyhaar/domoutline/cdpdom/internal/browser"
)

// SessionConfig selects the browser and the page to outline.
type SessionConfig struct {
	URL string
	// RemoteURL connects to a running Chrome instead of launching one.
	RemoteURL string
	// Mode is "headless", "headful" or "plain".
	Mode             string
	ResourceBlocking []string
	NavigateTimeout  time.Duration
	Logger           *slog.Logger
}

// Session is a browser with one navigated tab.
type Session struct {
	mgr *browser.Manager
	tab *browser.Tab
}

// Open starts (or connects to) Chrome and navigates a new tab to cfg.URL.
func Open(ctx context.Context, cfg SessionConfig) (*Session, error) {
	if cfg.URL == "" {
		return nil, errors.New("cdpdom: session url is required")
	}
	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.RemoteURL,
		Mode:             browser.ParseMode(cfg.Mode),
		ResourceBlocking: cfg.ResourceBlocking,
		NavigateTimeout:  cfg.NavigateTimeout,
		Logger:           cfg.Logger,
	})
	if _, err := mgr.Start(ctx); err != nil {
		return nil, fmt.Errorf("cdpdom: start browser: %w", err)
	}
	tab, err := browser.OpenTab(ctx, mgr, cfg.URL)
	if err != nil {
		mgr.Close()
		return nil, fmt.Errorf("cdpdom: open tab: %w", err)
	}
	return &Session{mgr: mgr, tab: tab}, nil
}

// Page is the navigated tab.
func (s *Session) Page() *rod.Page { return s.tab.Page }

// Close closes the tab, then the browser.
func (s *Session) Close() error {
	return errors.Join(s.tab.Close(), s.mgr.Close())
}
