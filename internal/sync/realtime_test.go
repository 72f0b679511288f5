package sync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/fieldtrack/fieldtrack/internal/model"
)

// feedServer is a fake change-feed endpoint. Each connection receives
// the configured frames and is then closed from the server side.
type feedServer struct {
	srv      *httptest.Server
	frames   [][]byte
	dials    atomic.Int32
	sawToken atomic.Bool
}

func newFeedServer(t *testing.T, frames [][]byte) *feedServer {
	t.Helper()

	f := &feedServer{frames: frames}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/feed" {
			http.NotFound(w, r)
			return
		}
		f.dials.Add(1)
		if r.Header.Get("Authorization") == "Bearer test-token" {
			f.sawToken.Store(true)
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		for _, frame := range f.frames {
			if err := conn.Write(r.Context(), websocket.MessageText, frame); err != nil {
				return
			}
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func mustEventJSON(t *testing.T, ev model.ChangeEvent) []byte {
	t.Helper()
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return data
}

func TestSubscribeForwardsEvents(t *testing.T) {
	update := model.ChangeEvent{Type: model.ChangeUpdate, Table: model.TableJobs, Row: json.RawMessage(`{"id":"j1"}`), ID: "j1"}
	del := model.ChangeEvent{Type: model.ChangeDelete, Table: model.TableClients, ID: "ACME1"}

	fs := newFeedServer(t, [][]byte{
		mustEventJSON(t, update),
		mustEventJSON(t, del),
	})

	r := NewRealtime(fs.srv.URL, "test-token")

	var got []model.ChangeEvent
	err := r.Subscribe(context.Background(), func(ev model.ChangeEvent) {
		got = append(got, ev)
	})

	// The server hangs up after the last frame; delivery stops with a
	// transport error, never a hang.
	var netErr *model.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError after server close, got %v", err)
	}
	if netErr.Op != "subscribe" {
		t.Errorf("NetworkError.Op = %q, want subscribe", netErr.Op)
	}

	if len(got) != 2 {
		t.Fatalf("forwarded %d events, want 2", len(got))
	}
	if got[0].Type != model.ChangeUpdate || got[0].Table != model.TableJobs {
		t.Errorf("first event = %+v", got[0])
	}
	if got[1].Type != model.ChangeDelete || got[1].ID != "ACME1" {
		t.Errorf("second event = %+v", got[1])
	}
	if !fs.sawToken.Load() {
		t.Error("bearer token not presented on dial")
	}
}

func TestSubscribeSkipsUndecodableFrames(t *testing.T) {
	valid := model.ChangeEvent{Type: model.ChangeUpdate, Table: model.TableJobs, Row: json.RawMessage(`{"id":"j1"}`), ID: "j1"}

	fs := newFeedServer(t, [][]byte{
		[]byte("{not json"),
		mustEventJSON(t, valid),
	})

	r := NewRealtime(fs.srv.URL, "test-token")

	var got []model.ChangeEvent
	_ = r.Subscribe(context.Background(), func(ev model.ChangeEvent) {
		got = append(got, ev)
	})

	if len(got) != 1 || got[0].ID != "j1" {
		t.Errorf("expected only the decodable event, got %+v", got)
	}
}

func TestSubscribeDoesNotReconnect(t *testing.T) {
	fs := newFeedServer(t, nil)

	r := NewRealtime(fs.srv.URL, "test-token")
	_ = r.Subscribe(context.Background(), func(model.ChangeEvent) {})

	// Give any stray redial a moment to show up.
	time.Sleep(50 * time.Millisecond)

	if n := fs.dials.Load(); n != 1 {
		t.Errorf("adapter dialed %d times, want exactly 1 (poll is the fallback)", n)
	}
}

func TestSubscribeReturnsNilOnCancel(t *testing.T) {
	// A server that accepts and then holds the connection open.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	r := NewRealtime(srv.URL, "test-token")
	go func() {
		done <- r.Subscribe(ctx, func(model.ChangeEvent) {})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("cancelled subscribe returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after cancellation")
	}
}

func TestWSURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://localhost:8080", "ws://localhost:8080"},
		{"https://sync.example.net", "wss://sync.example.net"},
	}
	for _, tt := range tests {
		if got := wsURL(tt.in); got != tt.want {
			t.Errorf("wsURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
