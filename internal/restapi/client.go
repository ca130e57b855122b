package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cuevase/voice-agent-creator-sub000/internal/logging"
)

var (
	// ErrPermanent marks responses that retrying cannot help (4xx).
	ErrPermanent = errors.New("permanent error")
	// ErrTransient marks responses worth a fresh attempt (5xx, timeouts).
	ErrTransient = errors.New("transient error")
)

// TokenClient fetches a short-lived identity token used to authorize the
// duplex channel dial.
type TokenClient struct {
	URL    string
	APIKey string
	HTTP   *http.Client
}

// NewTokenClient builds a token client with a sensible default timeout.
func NewTokenClient(url, apiKey string) *TokenClient {
	return &TokenClient{
		URL:    strings.TrimSpace(url),
		APIKey: apiKey,
		HTTP:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Token requests a fresh session token. The endpoint answers either
// {"access_token": ...} or {"token": ...}; both shapes are accepted.
func (c *TokenClient) Token(ctx context.Context) (string, error) {
	if c == nil || c.URL == "" {
		return "", fmt.Errorf("restapi: token endpoint not configured")
	}
	resp, err := PostWithRetries(ctx, c.HTTP, c.URL, []byte(`{}`), c.APIKey, 10000, 3, "")
	if err != nil {
		return "", fmt.Errorf("restapi: token fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("restapi: token fetch status %d: %w", resp.StatusCode, ErrTransient)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("restapi: token fetch status %d: %w", resp.StatusCode, ErrPermanent)
	}
	var out struct {
		AccessToken string `json:"access_token"`
		Token       string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("restapi: decode token response: %w", err)
	}
	tok := out.AccessToken
	if tok == "" {
		tok = out.Token
	}
	if tok == "" {
		return "", fmt.Errorf("restapi: token response missing token")
	}
	return tok, nil
}

// TurnRequest is one conversational turn submitted over REST when streaming
// is unavailable.
type TurnRequest struct {
	SessionID     string `json:"session_id"`
	Text          string `json:"text"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// TurnResponse is the backend's textual reply to a submitted turn. Backends
// differ on the reply field name; the first non-empty one wins.
type TurnResponse struct {
	Reply    string `json:"reply,omitempty"`
	Text     string `json:"text,omitempty"`
	Response string `json:"response,omitempty"`
}

func (r TurnResponse) reply() string {
	for _, s := range []string{r.Reply, r.Text, r.Response} {
		if t := strings.TrimSpace(s); t != "" {
			return t
		}
	}
	return ""
}

// TurnClient submits conversation turns to the REST fallback endpoint.
type TurnClient struct {
	URL       string
	AuthToken string
	HTTP      *http.Client
	TimeoutMs int
}

// NewTurnClient builds a turn client against the given endpoint.
func NewTurnClient(url, authToken string, timeoutMs int) *TurnClient {
	if timeoutMs <= 0 {
		timeoutMs = 30000
	}
	return &TurnClient{
		URL:       strings.TrimSpace(url),
		AuthToken: authToken,
		HTTP:      &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		TimeoutMs: timeoutMs,
	}
}

// SubmitTurn posts one final transcript and returns the reply text. An
// empty reply with a 2xx status is not an error; the caller simply has
// nothing to play.
func (c *TurnClient) SubmitTurn(ctx context.Context, sessionID, text, correlationID string) (string, error) {
	if c == nil || c.URL == "" {
		return "", fmt.Errorf("restapi: turn endpoint not configured")
	}
	body, _ := json.Marshal(TurnRequest{SessionID: sessionID, Text: text, CorrelationID: correlationID})
	resp, err := PostWithRetries(ctx, c.HTTP, c.URL, body, c.AuthToken, c.TimeoutMs, 3, correlationID)
	if err != nil {
		return "", fmt.Errorf("restapi: submit turn: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("restapi: turn status %d: %w", resp.StatusCode, ErrTransient)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("restapi: turn status %d: %w", resp.StatusCode, ErrPermanent)
	}
	var out TurnResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("restapi: decode turn response: %w", err)
	}
	reply := out.reply()
	logging.Infow("restapi: turn submitted", "session_id", sessionID, "correlation_id", correlationID, "reply_len", len(reply))
	return reply, nil
}
