package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

// echoServer upgrades each request, records inbound messages, and echoes a
// JSON ack for every text message.
type echoServer struct {
	t        *testing.T
	mu       sync.Mutex
	auth     []string
	binary   [][]byte
	received []string
}

func (s *echoServer) handler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.auth = append(s.auth, r.Header.Get("Authorization"))
	s.mu.Unlock()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.t.Errorf("upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.mu.Lock()
		if mt == websocket.BinaryMessage {
			s.binary = append(s.binary, data)
		} else {
			s.received = append(s.received, string(data))
		}
		s.mu.Unlock()
		if mt == websocket.TextMessage {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"status","status":"ok"}`)); err != nil {
				return
			}
		}
	}
}

func (s *echoServer) binaryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.binary)
}

func dialTest(t *testing.T, srv *httptest.Server, token string) *Channel {
	t.Helper()
	ch, err := Dial(context.Background(), srv.URL, token)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { ch.Close() })
	return ch
}

func TestDialRewritesSchemeAndSendsBearer(t *testing.T) {
	es := &echoServer{t: t}
	srv := httptest.NewServer(http.HandlerFunc(es.handler))
	defer srv.Close()

	// srv.URL is http://...; Dial must speak ws to it.
	ch := dialTest(t, srv, "tok-123")
	if !ch.IsOpen() {
		t.Fatal("channel not open after dial")
	}

	es.mu.Lock()
	defer es.mu.Unlock()
	if len(es.auth) != 1 || es.auth[0] != "Bearer tok-123" {
		t.Fatalf("unexpected authorization headers: %v", es.auth)
	}
}

func TestControlRoundTrip(t *testing.T) {
	es := &echoServer{t: t}
	srv := httptest.NewServer(http.HandlerFunc(es.handler))
	defer srv.Close()

	ch := dialTest(t, srv, "")
	if err := ch.SendControl(map[string]string{"type": "caller_info", "user_id": "u1"}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	select {
	case raw, ok := <-ch.Inbound():
		if !ok {
			t.Fatal("inbound closed unexpectedly")
		}
		var m map[string]string
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("inbound not json: %v", err)
		}
		if m["type"] != "status" {
			t.Fatalf("unexpected ack: %v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no ack received")
	}
}

func TestSendFrameDeliversBinary(t *testing.T) {
	es := &echoServer{t: t}
	srv := httptest.NewServer(http.HandlerFunc(es.handler))
	defer srv.Close()

	ch := dialTest(t, srv, "")
	if err := ch.SendFrame([]byte{1, 0, 2, 0}); err != nil {
		t.Fatalf("send frame failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if es.binaryCount() == 1 {
			es.mu.Lock()
			defer es.mu.Unlock()
			if string(es.binary[0]) != string([]byte{1, 0, 2, 0}) {
				t.Fatalf("frame payload corrupted: %v", es.binary[0])
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("server never received the frame")
}

func TestSendAfterCloseReturnsErrNotOpen(t *testing.T) {
	es := &echoServer{t: t}
	srv := httptest.NewServer(http.HandlerFunc(es.handler))
	defer srv.Close()

	ch := dialTest(t, srv, "")
	if err := ch.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := ch.SendFrame([]byte{1}); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
	if err := ch.SendControl(map[string]string{"type": "status"}); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
	if ch.IsOpen() {
		t.Fatal("channel still reports open after close")
	}
}

func TestLocalCloseLeavesErrNilAndSignalsDone(t *testing.T) {
	es := &echoServer{t: t}
	srv := httptest.NewServer(http.HandlerFunc(es.handler))
	defer srv.Close()

	ch := dialTest(t, srv, "")
	ch.Close()
	ch.Close() // idempotent

	select {
	case <-ch.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("done never signaled")
	}

	// Drain inbound; it must be closed, not blocked.
	for range ch.Inbound() {
	}
	if err := ch.Err(); err != nil {
		t.Fatalf("local close must not record an error, got %v", err)
	}
}

func TestServerDropRecordsError(t *testing.T) {
	drop := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		<-drop
		// Hard close without a close frame.
		conn.NetConn().Close()
	}))
	defer srv.Close()

	ch := dialTest(t, srv, "")
	close(drop)

	select {
	case <-ch.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("done never signaled after server drop")
	}
	for range ch.Inbound() {
	}
	if ch.Err() == nil {
		t.Fatal("abnormal disconnect must record an error")
	}
}

func TestDialRejectedHandshake(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no websocket here", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := Dial(context.Background(), srv.URL, "")
	if err == nil {
		t.Fatal("expected dial to fail against a non-upgrading endpoint")
	}
	if !strings.Contains(err.Error(), "403") {
		t.Fatalf("error should carry the handshake status, got %v", err)
	}
}

func TestDialBadURL(t *testing.T) {
	if _, err := Dial(context.Background(), "://bad", ""); err == nil {
		t.Fatal("expected error for malformed url")
	}
}
