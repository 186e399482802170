package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/domoutline/dommodel"
	"github.com/hazyhaar/domoutline/outline"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func update(seq uint64) outline.Update {
	return outline.Update{ID: "u", Seq: seq, Nodes: []dommodel.NodeID{4, 9}, At: time.Unix(10, 0).UTC()}
}

func TestStdout_JSONLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)
	if err := s.Send(context.Background(), update(1)); err != nil {
		t.Fatal(err)
	}
	if err := s.Send(context.Background(), update(2)); err != nil {
		t.Fatal(err)
	}
	dec := json.NewDecoder(&buf)
	for want := uint64(1); want <= 2; want++ {
		var env struct {
			Type string         `json:"type"`
			Data outline.Update `json:"data"`
		}
		if err := dec.Decode(&env); err != nil {
			t.Fatal(err)
		}
		if env.Type != "tree_updated" || env.Data.Seq != want {
			t.Fatalf("got %s seq %d, want tree_updated seq %d", env.Type, env.Data.Seq, want)
		}
		if len(env.Data.Nodes) != 2 {
			t.Fatalf("got nodes %v", env.Data.Nodes)
		}
	}
}

func TestRouter_FanOutFirstError(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32
	ok := NewCallback(func(context.Context, outline.Update) error { calls.Add(1); return nil })
	bad := NewCallback(func(context.Context, outline.Update) error { calls.Add(1); return boom })
	r := NewRouter(quiet(), bad, ok)

	err := r.Send(context.Background(), update(1))
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("got %d calls, want 2", calls.Load())
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestCallback_NilFunc(t *testing.T) {
	if err := NewCallback(nil).Send(context.Background(), update(1)); err != nil {
		t.Fatal(err)
	}
}

func TestWebhook_RetriesUntilSuccess(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("got content type %q", r.Header.Get("Content-Type"))
		}
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond), WithWebhookLogger(quiet()))
	if err := w.Send(context.Background(), update(1)); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 3 {
		t.Fatalf("got %d hits, want 3", hits.Load())
	}
}

func TestWebhook_RetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookRetries(1), WithWebhookBackoff(time.Millisecond), WithWebhookLogger(quiet()))
	if err := w.Send(context.Background(), update(1)); err == nil {
		t.Fatal("expected error")
	}
}

func TestWebhook_ClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	var seq atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		seq.Store(r.Header.Get("X-Outline-Seq"))
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond), WithWebhookLogger(quiet()))
	err := w.Send(context.Background(), update(7))
	if !errors.Is(err, errPermanent) {
		t.Fatalf("got %v, want %v", err, errPermanent)
	}
	if hits.Load() != 1 {
		t.Fatalf("got %d hits, want 1", hits.Load())
	}
	if got := seq.Load(); got != "7" {
		t.Fatalf("got seq header %v, want 7", got)
	}
}

func TestForwarder_DeliversInOrder(t *testing.T) {
	got := make(chan uint64, 8)
	cb := NewCallback(func(_ context.Context, u outline.Update) error {
		got <- u.Seq
		return nil
	})
	f := NewForwarder(context.Background(), cb, 8, quiet())
	for i := uint64(1); i <= 3; i++ {
		f.Push(update(i))
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	close(got)
	want := uint64(1)
	for seq := range got {
		if seq != want {
			t.Fatalf("got seq %d, want %d", seq, want)
		}
		want++
	}
	if want != 4 {
		t.Fatalf("got %d updates, want 3", want-1)
	}
}
