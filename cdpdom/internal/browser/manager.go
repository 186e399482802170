// Package browser launches or connects to Chrome and opens the tab whose
// DOM is outlined.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// Mode controls how Chrome runs.
type Mode int

const (
	ModeHeadless Mode = iota // headless with stealth patches
	ModeHeadful              // visible window on an Xvfb display
	ModePlain                // headless, page opened without stealth
)

func (m Mode) String() string {
	switch m {
	case ModeHeadful:
		return "headful"
	case ModePlain:
		return "plain"
	}
	return "headless"
}

// ParseMode maps a config string to a Mode. Unknown values are headless.
func ParseMode(s string) Mode {
	switch s {
	case "headful":
		return ModeHeadful
	case "plain":
		return ModePlain
	}
	return ModeHeadless
}

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of a running Chrome. Empty
	// launches a local one.
	RemoteURL string
	Mode      Mode

	// ResourceBlocking lists resource types the tab refuses to load
	// (images, fonts, media, stylesheets).
	ResourceBlocking []string

	XvfbDisplay     string        // default ":99"
	NavigateTimeout time.Duration // default 30s
	Logger          *slog.Logger
}

func (c *Config) defaults() {
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

var errClosed = errors.New("browser: manager is closed")

// Manager owns the Chrome process backing one outline session.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	xvfb    *exec.Cmd
	closed  bool
}

// NewManager creates a Manager. Chrome is not started until Start.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start connects to Chrome, launching it first unless RemoteURL is set.
// Calling Start again returns the connected browser.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errClosed
	}
	if m.browser != nil {
		return m.browser, nil
	}

	u, err := m.controlURL(ctx)
	if err != nil {
		m.release()
		return nil, err
	}
	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		m.release()
		return nil, fmt.Errorf("browser: connect %s: %w", u, err)
	}
	m.browser = b
	if err := b.IgnoreCertErrors(true); err != nil {
		m.cfg.Logger.Warn("browser: ignore cert errors", "error", err)
	}
	return m.browser, nil
}

// controlURL returns the DevTools endpoint, launching Chrome if needed.
func (m *Manager) controlURL(ctx context.Context) (string, error) {
	log := m.cfg.Logger
	if m.cfg.RemoteURL != "" {
		log.Info("browser: using remote chrome", "url", m.cfg.RemoteURL)
		return m.cfg.RemoteURL, nil
	}

	l := launcher.New().Context(ctx).
		Headless(m.cfg.Mode != ModeHeadful).
		Set("disable-blink-features", "AutomationControlled").
		Set("window-size", "1280,900")
	if m.cfg.Mode == ModeHeadful {
		if err := m.startXvfb(ctx); err != nil {
			return "", fmt.Errorf("browser: xvfb: %w", err)
		}
		l = l.Env(append(os.Environ(), "DISPLAY="+m.cfg.XvfbDisplay)...)
	}
	u, err := l.Launch()
	if err != nil {
		return "", fmt.Errorf("browser: launch: %w", err)
	}
	m.lnch = l
	log.Info("browser: chrome launched", "url", u, "mode", m.cfg.Mode)
	return u, nil
}

// Browser returns the connected browser, nil before Start.
func (m *Manager) Browser() *rod.Browser {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browser
}

// Close disconnects and stops whatever Start brought up. It is safe to call
// more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.release()
}

func (m *Manager) release() error {
	var err error
	if m.browser != nil {
		// A remote Chrome is not ours to kill.
		if m.lnch != nil {
			err = m.browser.Close()
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	m.stopXvfb()
	if err != nil {
		return fmt.Errorf("browser: close: %w", err)
	}
	return nil
}
