package statestore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/domoutline/dbopen"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	return New(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestLoadMissing(t *testing.T) {
	s := newStore(t)
	path, err := s.LoadSelection(context.Background(), "https://example.test/")
	if err != nil {
		t.Fatal(err)
	}
	if path != "" {
		t.Fatalf("got %q, want empty", path)
	}
}

func TestSaveOverwrites(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	url := "https://example.test/"
	for _, p := range []string{"1,1", "1,1,0"} {
		if err := s.SaveSelection(ctx, url, p); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.LoadSelection(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	if got != "1,1,0" {
		t.Fatalf("got %q, want 1,1,0", got)
	}
}

func TestForgetAndPrune(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Unix(1_000, 0)
	s.now = func() time.Time { return now }
	if err := s.SaveSelection(ctx, "a", "1"); err != nil {
		t.Fatal(err)
	}
	now = now.Add(time.Hour)
	if err := s.SaveSelection(ctx, "b", "2"); err != nil {
		t.Fatal(err)
	}

	n, err := s.Prune(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("got %d pruned, want 1", n)
	}
	if got, _ := s.LoadSelection(ctx, "a"); got != "" {
		t.Fatalf("got %q for pruned url", got)
	}

	if err := s.Forget(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.LoadSelection(ctx, "b"); got != "" {
		t.Fatalf("got %q after forget", got)
	}
}

func TestOpenFile(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "state", "outline.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.SaveSelection(context.Background(), "u", "0"); err != nil {
		t.Fatal(err)
	}
}
