package outlinesvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domoutline/dbopen"
	"github.com/hazyhaar/domoutline/loop"
	"github.com/hazyhaar/domoutline/memdom"
	"github.com/hazyhaar/domoutline/outline"
	"github.com/hazyhaar/domoutline/statestore"
)

const page = `<html><head></head><body><ul id="l"><li id="a">a</li><li id="b">b</li><li id="c">c</li><li id="d">d</li><li id="e">e</li></ul></body></html>`

type fixture struct {
	m   *memdom.Model
	o   *outline.Outline
	svc *Service
}

// direct runs loop tasks inline; the tests drive the outline from one
// goroutine at a time.
func direct(_ context.Context, fn func()) error {
	fn()
	return nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m, err := memdom.ParseString(page, memdom.WithURL("https://example.test/"))
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	o, err := outline.New(outline.Config{
		Model:              m,
		Scheduler:          loop.NewManual(time.Unix(0, 0)),
		Logger:             logger,
		ExpandedChildLimit: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(o.Close)
	svc, err := New(Config{Outline: o, Runner: RunnerFunc(direct), Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{m: m, o: o, svc: svc}
}

func TestNewRequiresOutline(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRevealThenRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	list := f.m.Find("l")

	rev, err := f.svc.Reveal(ctx, NodeRequest{Node: list.ID()})
	if err != nil {
		t.Fatal(err)
	}
	if !rev.Revealed || rev.Row == nil || !rev.Row.Selected {
		t.Fatalf("got %+v, want revealed and selected", rev)
	}
	if _, err := f.svc.Expand(ctx, ExpandRequest{Node: list.ID(), Expanded: true}); err != nil {
		t.Fatal(err)
	}

	rows, err := f.svc.Rows(ctx, RowsRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if rows.Selected != list.ID() {
		t.Fatalf("got selected %d, want %d", rows.Selected, list.ID())
	}
	var more *RowView
	for i := range rows.Rows {
		if rows.Rows[i].Kind == "show_more" {
			more = &rows.Rows[i]
		}
	}
	if more == nil || more.Hidden != 3 || more.Node != list.ID() {
		t.Fatalf("got show-more %+v, want 3 hidden under %d", more, list.ID())
	}

	pg, err := f.svc.Rows(ctx, RowsRequest{Offset: 1, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(pg.Rows) != 2 || pg.Total != rows.Total {
		t.Fatalf("got %d rows of %d, want 2 of %d", len(pg.Rows), pg.Total, rows.Total)
	}
}

func TestShowAllAndLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	list := f.m.Find("l")
	if _, err := f.svc.Reveal(ctx, NodeRequest{Node: list.ID()}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Expand(ctx, ExpandRequest{Node: list.ID(), Expanded: true}); err != nil {
		t.Fatal(err)
	}

	rv, err := f.svc.ShowAll(ctx, NodeRequest{Node: list.ID()})
	if err != nil {
		t.Fatal(err)
	}
	if rv.Limit != 5 {
		t.Fatalf("got limit %d, want 5", rv.Limit)
	}
	rv, err = f.svc.SetLimit(ctx, LimitRequest{Node: list.ID(), Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if rv.Limit != 3 {
		t.Fatalf("got limit %d, want 3", rv.Limit)
	}
	if _, err := f.svc.SetLimit(ctx, LimitRequest{Node: list.ID()}); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("got %v, want ErrBadRequest", err)
	}
}

func TestUnknownAndRowless(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Select(ctx, NodeRequest{Node: 9999}); !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("got %v, want ErrUnknownNode", err)
	}
	// The list is collapsed, so its items have no rows.
	if _, err := f.svc.Select(ctx, NodeRequest{Node: f.m.Find("c").ID()}); !errors.Is(err, ErrNoRow) {
		t.Fatalf("got %v, want ErrNoRow", err)
	}
}

func TestHTTP(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.svc.Handler())
	defer srv.Close()
	list := f.m.Find("l").ID()

	post := func(path string) *http.Response {
		t.Helper()
		resp, err := http.Post(srv.URL+path, "application/json", nil)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	if resp := post(fmt.Sprintf("/outline/nodes/%d/reveal", list)); resp.StatusCode != http.StatusOK {
		t.Fatalf("reveal: got status %d", resp.StatusCode)
	}
	if resp := post(fmt.Sprintf("/outline/nodes/%d/expand", list)); resp.StatusCode != http.StatusOK {
		t.Fatalf("expand: got status %d", resp.StatusCode)
	}
	resp := post(fmt.Sprintf("/outline/nodes/%d/show-all", list))
	var rv RowView
	if err := json.NewDecoder(resp.Body).Decode(&rv); err != nil {
		t.Fatal(err)
	}
	if !rv.Expanded || rv.Limit != 5 {
		t.Fatalf("got %+v, want expanded with limit 5", rv)
	}

	get, err := http.Get(srv.URL + "/outline/rows?limit=3")
	if err != nil {
		t.Fatal(err)
	}
	defer get.Body.Close()
	var rows RowsResponse
	if err := json.NewDecoder(get.Body).Decode(&rows); err != nil {
		t.Fatal(err)
	}
	if len(rows.Rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows.Rows))
	}

	cases := map[string]int{
		"/outline/nodes/9999/select":                     http.StatusNotFound,
		"/outline/nodes/abc/select":                      http.StatusBadRequest,
		fmt.Sprintf("/outline/nodes/%d/limit?n=0", list): http.StatusBadRequest,
		fmt.Sprintf("/outline/nodes/%d/limit?n=x", list): http.StatusBadRequest,
		fmt.Sprintf("/outline/nodes/%d/limit?n=2", list): http.StatusOK,
		fmt.Sprintf("/outline/nodes/%d/collapse", list):  http.StatusOK,
	}
	for path, want := range cases {
		if got := post(path).StatusCode; got != want {
			t.Errorf("%s: got status %d, want %d", path, got, want)
		}
	}
}

func TestMCP(t *testing.T) {
	f := newFixture(t)
	impl := &mcp.Implementation{Name: "outlinesvc-test", Version: "0.1.0"}
	srv := mcp.NewServer(impl, nil)
	f.svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()
	session, err := mcp.NewClient(impl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	call := func(name string, args map[string]any) string {
		t.Helper()
		res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
		if err != nil {
			t.Fatalf("CallTool(%s): %v", name, err)
		}
		if err := res.GetError(); err != nil {
			t.Fatalf("CallTool(%s) tool error: %v", name, err)
		}
		return res.Content[0].(*mcp.TextContent).Text
	}

	list := f.m.Find("l").ID()
	var rev RevealResponse
	if err := json.Unmarshal([]byte(call("outline_reveal", map[string]any{"node": list})), &rev); err != nil {
		t.Fatal(err)
	}
	if !rev.Revealed {
		t.Fatal("reveal over MCP failed")
	}
	call("outline_expand", map[string]any{"node": list, "expanded": true})
	call("outline_show_all", map[string]any{"node": list})
	call("outline_select", map[string]any{"node": f.m.Find("e").ID()})

	var rows RowsResponse
	if err := json.Unmarshal([]byte(call("outline_rows", map[string]any{})), &rows); err != nil {
		t.Fatal(err)
	}
	if rows.Selected != f.m.Find("e").ID() {
		t.Fatalf("got selected %d, want %d", rows.Selected, f.m.Find("e").ID())
	}
}

func TestForgetSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const url = "https://example.test/"

	del := func(h http.Handler) *http.Response {
		t.Helper()
		srv := httptest.NewServer(h)
		t.Cleanup(srv.Close)
		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/outline/selection", nil)
		if err != nil {
			t.Fatal(err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	if resp := del(f.svc.Handler()); resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("without store: got status %d, want %d", resp.StatusCode, http.StatusNotImplemented)
	}

	store := statestore.New(dbopen.OpenMemory(t, dbopen.WithSchema(statestore.Schema)), nil)
	if err := store.SaveSelection(ctx, url, "1,HTML/1,BODY"); err != nil {
		t.Fatal(err)
	}
	svc, err := New(Config{Outline: f.o, Runner: RunnerFunc(direct), Selections: store})
	if err != nil {
		t.Fatal(err)
	}
	resp := del(svc.Handler())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}
	var out ForgetResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.URL != url {
		t.Fatalf("got url %q, want %q", out.URL, url)
	}
	path, err := store.LoadSelection(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	if path != "" {
		t.Fatalf("got path %q, want none", path)
	}
}
