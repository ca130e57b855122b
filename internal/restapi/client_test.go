package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cuevase/voice-agent-creator-sub000/internal/audio"
)

func TestTokenAcceptsBothResponseShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"access_token field", `{"access_token":"tok-a"}`, "tok-a"},
		{"token field", `{"token":"tok-b"}`, "tok-b"},
		{"access_token wins", `{"access_token":"tok-a","token":"tok-b"}`, "tok-a"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			got, err := NewTokenClient(srv.URL, "key").Token(context.Background())
			if err != nil {
				t.Fatalf("token fetch failed: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTokenSendsBearerKey(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`{"token":"tok"}`))
	}))
	defer srv.Close()

	if _, err := NewTokenClient(srv.URL, "secret").Token(context.Background()); err != nil {
		t.Fatalf("token fetch failed: %v", err)
	}
	if auth != "Bearer secret" {
		t.Fatalf("unexpected authorization header: %q", auth)
	}
}

func TestTokenMissingFieldIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"expires_in":3600}`))
	}))
	defer srv.Close()

	if _, err := NewTokenClient(srv.URL, "").Token(context.Background()); err == nil {
		t.Fatal("expected error for response without a token")
	}
}

func TestTokenClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewTokenClient(srv.URL, "").Token(context.Background())
	if !errors.Is(err, ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestSubmitTurnPostsAndParsesReply(t *testing.T) {
	var gotReq TurnRequest
	var correlation string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlation = r.Header.Get("X-Correlation-ID")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Write([]byte(`{"reply":"table booked"}`))
	}))
	defer srv.Close()

	c := NewTurnClient(srv.URL, "tok", 5000)
	reply, err := c.SubmitTurn(context.Background(), "sess-1", "book a table", "corr-9")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if reply != "table booked" {
		t.Fatalf("got reply %q", reply)
	}
	if gotReq.SessionID != "sess-1" || gotReq.Text != "book a table" || gotReq.CorrelationID != "corr-9" {
		t.Fatalf("unexpected request: %+v", gotReq)
	}
	if correlation != "corr-9" {
		t.Fatalf("correlation header %q", correlation)
	}
}

func TestSubmitTurnAcceptsAlternateReplyFields(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`{"text":"from text"}`, "from text"},
		{`{"response":"from response"}`, "from response"},
		{`{}`, ""},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(tc.body))
		}))
		reply, err := NewTurnClient(srv.URL, "", 5000).SubmitTurn(context.Background(), "s", "t", "")
		srv.Close()
		if err != nil {
			t.Fatalf("submit failed for %s: %v", tc.body, err)
		}
		if reply != tc.want {
			t.Fatalf("body %s: got %q, want %q", tc.body, reply, tc.want)
		}
	}
}

func TestPostWithRetriesRetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"reply":"finally"}`))
	}))
	defer srv.Close()

	reply, err := NewTurnClient(srv.URL, "", 5000).SubmitTurn(context.Background(), "s", "t", "")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if reply != "finally" {
		t.Fatalf("got reply %q", reply)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestPostWithRetriesDoesNotRetryClientErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := NewTurnClient(srv.URL, "", 5000).SubmitTurn(context.Background(), "s", "t", "")
	if !errors.Is(err, ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("client errors must not retry, got %d attempts", got)
	}
}

func TestSynthesizeParsesWAVResponse(t *testing.T) {
	pcm := audio.EncodeFrame([]float32{0.25, -0.25, 0.5})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req["text"] == "" {
			t.Errorf("bad synthesis request: %v %v", req, err)
		}
		w.Write(audio.BuildWAV(pcm, 24000, 1, 16))
	}))
	defer srv.Close()

	got, rate, err := NewTTSClient(srv.URL, "", 5000).Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	if rate != 24000 {
		t.Fatalf("expected rate 24000, got %d", rate)
	}
	if len(got) != len(pcm) {
		t.Fatalf("pcm length mismatch: %d vs %d", len(got), len(pcm))
	}
}

func TestSynthesizeRejectsNonWAVBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("plain text, not audio"))
	}))
	defer srv.Close()

	if _, _, err := NewTTSClient(srv.URL, "", 5000).Synthesize(context.Background(), "hi"); err == nil {
		t.Fatal("expected error for non-wav body")
	}
}

func TestSynthesizeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if _, _, err := NewTTSClient(srv.URL, "", 5000).Synthesize(context.Background(), "hi"); err == nil {
		t.Fatal("expected error for 404 response")
	}
}
