package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab is the page whose document gets outlined.
type Tab struct {
	Page   *rod.Page
	URL    string
	router *rod.HijackRouter
}

// OpenTab opens a tab on mgr's browser and navigates it to url. It returns
// once DOMContentLoaded fired or NavigateTimeout elapsed; the outline
// follows whatever the page does afterwards through DOM events.
func OpenTab(ctx context.Context, mgr *Manager, url string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, errors.New("browser: not started")
	}
	page, err := newPage(b, mgr.cfg.Mode)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	t := &Tab{Page: page, URL: url}
	if len(mgr.cfg.ResourceBlocking) > 0 {
		t.router = blockResources(page, mgr.cfg.ResourceBlocking)
	}

	navCtx, cancel := context.WithTimeout(ctx, mgr.cfg.NavigateTimeout)
	defer cancel()
	p := page.Context(navCtx)
	ready := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := p.Navigate(url); err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	ready()
	if navCtx.Err() != nil && ctx.Err() == nil {
		mgr.cfg.Logger.Warn("browser: page still loading", "url", url, "timeout", mgr.cfg.NavigateTimeout)
	}
	return t, nil
}

func newPage(b *rod.Browser, mode Mode) (*rod.Page, error) {
	if mode == ModePlain {
		return b.Page(proto.TargetCreateTarget{})
	}
	return stealth.Page(b)
}

// Close stops request interception and closes the tab.
func (t *Tab) Close() error {
	if t.router != nil {
		_ = t.router.Stop()
		t.router = nil
	}
	if t.Page == nil {
		return nil
	}
	if err := t.Page.Close(); err != nil {
		return fmt.Errorf("browser: close tab: %w", err)
	}
	return nil
}
