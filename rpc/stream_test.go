package rpc_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tolelom/tolarcade/events"
	"github.com/tolelom/tolarcade/rpc"
)

func dialStream(t *testing.T, ts *httptest.Server, query string, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestStreamFiltersEvents(t *testing.T) {
	f := newFixture(t)
	stream := rpc.NewStream(f.emitter)
	srv := rpc.NewServer("127.0.0.1:0", f.handler, stream, "", nil)
	ts := httptest.NewServer(srv.Router(nil))
	defer ts.Close()

	conn := dialStream(t, ts, "?session=s1&type=payout_credited", nil)

	f.emitter.Emit(events.Event{Type: events.EventPayoutCredited, Data: map[string]any{"session": "s2", "amount": 1}})
	f.emitter.Emit(events.Event{Type: events.EventRefundIssued, Data: map[string]any{"session": "s1"}})
	f.emitter.Emit(events.Event{Type: events.EventPayoutCredited, TxID: "t1", Data: map[string]any{"session": "s1", "amount": 5}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got events.Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.TxID != "t1" || got.Data["session"] != "s1" {
		t.Errorf("unexpected event: %+v", got)
	}
	if got.ID == "" {
		t.Error("streamed event should carry its id")
	}
}

func TestStreamUnsubscribesOnClose(t *testing.T) {
	f := newFixture(t)
	stream := rpc.NewStream(f.emitter)
	srv := rpc.NewServer("127.0.0.1:0", f.handler, stream, "", nil)
	ts := httptest.NewServer(srv.Router(nil))
	defer ts.Close()

	conn := dialStream(t, ts, "", nil)
	if n := stream.Subscribers(); n != 1 {
		t.Fatalf("subscribers: got %d want 1", n)
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for stream.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber not removed after close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamRequiresAuth(t *testing.T) {
	f := newFixture(t)
	srv := rpc.NewServer("127.0.0.1:0", f.handler, rpc.NewStream(f.emitter), "s3cret", nil)
	ts := httptest.NewServer(srv.Router(nil))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	if _, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("dial without token should fail")
	}
	dialStream(t, ts, "", http.Header{"Authorization": {"Bearer s3cret"}})
}

func TestStreamDisabled(t *testing.T) {
	ts := newTestServer(t, "")
	resp, err := http.Get(ts.URL + "/ws")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /ws without stream: got %d", resp.StatusCode)
	}
}
