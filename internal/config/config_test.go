package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Outline.ExpandedChildLimit != 500 {
		t.Fatalf("got limit %d, want 500", cfg.Outline.ExpandedChildLimit)
	}
	if cfg.Outline.InlineTextLimit != 80 {
		t.Fatalf("got inline limit %d, want 80", cfg.Outline.InlineTextLimit)
	}
	if cfg.Outline.CoalesceWindow != 50*time.Millisecond {
		t.Fatalf("got window %v, want 50ms", cfg.Outline.CoalesceWindow)
	}
	if cfg.Outline.BulkThreshold != 10 {
		t.Fatalf("got bulk threshold %d, want 10", cfg.Outline.BulkThreshold)
	}
	if cfg.Source.Depth != -1 || cfg.Source.Mode != "headless" {
		t.Fatalf("got source %+v", cfg.Source)
	}
	if cfg.State.Retention != 720*time.Hour {
		t.Fatalf("got retention %v, want 720h", cfg.State.Retention)
	}
}

func TestParseRetention(t *testing.T) {
	cfg, err := Parse([]byte("state: {path: sel.db, retention: 48h}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.State.Path != "sel.db" || cfg.State.Retention != 48*time.Hour {
		t.Fatalf("got state %+v", cfg.State)
	}
}

func TestParse(t *testing.T) {
	data := []byte(`
source:
  url: https://example.test/
  mode: plain
  resource_blocking: [images, fonts]
outline:
  expanded_child_limit: 100
  coalesce_window: 20ms
  decorate: true
sinks:
  - type: webhook
    url: http://127.0.0.1:9/hook
  - type: stdout
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Source.Mode != "plain" || len(cfg.Source.ResourceBlocking) != 2 {
		t.Fatalf("got source %+v", cfg.Source)
	}
	if cfg.Outline.ExpandedChildLimit != 100 {
		t.Fatalf("got limit %d, want 100", cfg.Outline.ExpandedChildLimit)
	}
	if cfg.Outline.CoalesceWindow != 20*time.Millisecond {
		t.Fatalf("got window %v, want 20ms", cfg.Outline.CoalesceWindow)
	}
	if !cfg.Outline.Decorate {
		t.Fatal("decorate not set")
	}
	if cfg.Sinks[0].Retries != 3 {
		t.Fatalf("got retries %d, want 3", cfg.Sinks[0].Retries)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"both sources":   "source: {url: \"http://a\", file: a.html}",
		"bad mode":       "source: {mode: turbo}",
		"webhook no url": "sinks: [{type: webhook}]",
		"unknown sink":   "sinks: [{type: nats}]",
	}
	for name, data := range cases {
		if _, err := Parse([]byte(data)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "domoutline.yaml")
	if err := os.WriteFile(path, []byte("source: {file: page.html}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Source.File != "page.html" {
		t.Fatalf("got file %q", cfg.Source.File)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
