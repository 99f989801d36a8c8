package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sly67/treedesk/pkg/models"
	"github.com/sly67/treedesk/pkg/protocol"
	"github.com/sly67/treedesk/pkg/retry"
	"github.com/sly67/treedesk/pkg/workspace"
)

var _ workspace.Collaborator = (*Client)(nil)

func testClient(handler http.Handler) (*Client, *httptest.Server) {
	ts := httptest.NewServer(handler)
	c := New(Config{
		BaseURL: ts.URL,
		RetryConfig: retry.Config{
			MaxAttempts: 3,
			InitialWait: time.Millisecond,
			MaxWait:     time.Millisecond,
		},
	})
	return c, ts
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func TestListDirectory(t *testing.T) {
	var gotPath string
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/files" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotPath = r.URL.Query().Get("path")
		writeJSON(w, http.StatusOK, protocol.ListResponse{
			{Name: "lib", Type: models.KindDirectory},
			{Name: "main.go", Type: models.KindFile},
		})
	}))
	defer ts.Close()

	nodes, err := c.ListDirectory(context.Background(), "src/app")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "src/app" {
		t.Errorf("path query = %q, want src/app", gotPath)
	}
	if len(nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(nodes))
	}
	if !nodes[0].IsDir() || nodes[0].Loaded() {
		t.Error("directory entries must come back unloaded")
	}
	if nodes[1].Kind != models.KindFile {
		t.Errorf("nodes[1].Kind = %q, want file", nodes[1].Kind)
	}
}

func TestListDirectory_EmptyIsNotNil(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, protocol.ListResponse{})
	}))
	defer ts.Close()

	nodes, err := c.ListDirectory(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if nodes == nil {
		t.Error("empty listing must be non-nil so the directory counts as loaded")
	}
}

func TestListDirectory_RetriesGatewayErrors(t *testing.T) {
	var calls atomic.Int32
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, protocol.ListResponse{})
	}))
	defer ts.Close()

	if _, err := c.ListDirectory(context.Background(), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestAPIError_Decoded(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, protocol.ErrorResponse{
			Error:   "directory not found",
			Code:    http.StatusNotFound,
			Details: "open src: file does not exist",
		})
	}))
	defer ts.Close()

	_, err := c.ListDirectory(context.Background(), "src")
	if StatusOf(err) != http.StatusNotFound {
		t.Fatalf("StatusOf(%v) = %d, want 404", err, StatusOf(err))
	}
	apiErr := err.(*APIError)
	if apiErr.Message != "directory not found" || apiErr.Details == "" {
		t.Errorf("unexpected error fields: %+v", apiErr)
	}
}

func TestMutationsAreSentOnce(t *testing.T) {
	tests := []struct {
		name   string
		method string
		call   func(c *Client) error
	}{
		{"create", http.MethodPost, func(c *Client) error {
			return c.CreateEntry(context.Background(), "src", "new.go", models.KindFile)
		}},
		{"rename", http.MethodPatch, func(c *Client) error {
			return c.RenameEntry(context.Background(), "src", "a", "b")
		}},
		{"delete", http.MethodDelete, func(c *Client) error {
			return c.DeleteEntry(context.Background(), "src", "a")
		}},
		{"write", http.MethodPost, func(c *Client) error {
			return c.WriteFileContent(context.Background(), "src", "a", []byte("x"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				if r.Method != tt.method {
					t.Errorf("method = %s, want %s", r.Method, tt.method)
				}
				w.WriteHeader(http.StatusServiceUnavailable)
			}))
			defer ts.Close()

			err := tt.call(c)
			if StatusOf(err) != http.StatusServiceUnavailable {
				t.Errorf("err = %v, want 503 APIError", err)
			}
			if calls.Load() != 1 {
				t.Errorf("calls = %d, want 1", calls.Load())
			}
		})
	}
}

func TestRenameEntry_Body(t *testing.T) {
	var got protocol.RenameRequest
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, protocol.SuccessResponse{Success: true})
	}))
	defer ts.Close()

	if err := c.RenameEntry(context.Background(), "docs", "old.md", "new.md"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := protocol.RenameRequest{Path: "docs", OldName: "old.md", NewName: "new.md"}
	if got != want {
		t.Errorf("body = %+v, want %+v", got, want)
	}
}

func TestContentRoundTrip(t *testing.T) {
	stored := map[string][]byte{}
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var req protocol.WriteContentRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode: %v", err)
			}
			stored[req.Path+"/"+req.Name] = req.Data
			writeJSON(w, http.StatusCreated, protocol.SuccessResponse{Success: true})
		case http.MethodGet:
			q := r.URL.Query()
			data, ok := stored[q.Get("path")+"/"+q.Get("name")]
			if !ok {
				writeJSON(w, http.StatusNotFound, protocol.ErrorResponse{Error: "not found", Code: 404})
				return
			}
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write(data)
		}
	}))
	defer ts.Close()

	ctx := context.Background()
	payload := []byte{0x00, 0xff, 'h', 'i', '\n'}
	if err := c.WriteFileContent(ctx, "bin", "blob", payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := c.ReadFileContent(ctx, "bin", "blob")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("content = %q, want %q", got, payload)
	}
}

func TestPing_Offline(t *testing.T) {
	c, ts := testClient(http.NotFoundHandler())
	ts.Close()

	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected error against a closed server")
	}
	if c.IsOnline() {
		t.Error("client should report offline")
	}
}

func TestSSEClient_Subscribe(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, ": connected\n\n")
		for _, ev := range []protocol.SSEEvent{
			{Type: protocol.EventCreate, Path: "src/new.go", Kind: models.KindFile},
			{Type: protocol.EventRename, Path: "b", From: "a"},
		} {
			data, _ := json.Marshal(ev)
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
		}
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := NewSSEClient(ts.URL, nil).Subscribe(ctx)

	first := recvEvent(t, events)
	if first.Type != protocol.EventCreate || first.Path != "src/new.go" {
		t.Errorf("first event = %+v", first)
	}
	second := recvEvent(t, events)
	if second.Type != protocol.EventRename || second.From != "a" {
		t.Errorf("second event = %+v", second)
	}

	cancel()
	for range events {
	}
}

func recvEvent(t *testing.T, ch <-chan protocol.SSEEvent) protocol.SSEEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return protocol.SSEEvent{}
	}
}
