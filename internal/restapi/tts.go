package restapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cuevase/voice-agent-creator-sub000/internal/audio"
	"github.com/cuevase/voice-agent-creator-sub000/internal/logging"
)

// TTSClient performs text->audio synthesis against an external service.
// When it is configured, the session treats this streaming-synthesis path
// as authoritative for replies and discards inline audio payloads.
type TTSClient struct {
	URL       string
	AuthToken string
	HTTP      *http.Client
	TimeoutMs int
}

// NewTTSClient builds a synthesis client against the given endpoint.
func NewTTSClient(url, authToken string, timeoutMs int) *TTSClient {
	if timeoutMs <= 0 {
		timeoutMs = 10000
	}
	return &TTSClient{
		URL:       strings.TrimSpace(url),
		AuthToken: authToken,
		HTTP:      &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		TimeoutMs: timeoutMs,
	}
}

// Synthesize posts text to the service and returns the rendered clip as raw
// PCM16LE plus its sample rate. The service answers with a WAV body.
func (t *TTSClient) Synthesize(ctx context.Context, text string) (pcm []byte, sampleRate int, err error) {
	if t == nil || t.URL == "" {
		return nil, 0, fmt.Errorf("restapi: tts endpoint not configured")
	}
	body, _ := json.Marshal(map[string]string{"text": text})
	resp, err := PostWithRetries(ctx, t.HTTP, t.URL, body, t.AuthToken, t.TimeoutMs, 2, "")
	if err != nil {
		logging.Debugw("restapi: tts POST failed", "err", err)
		return nil, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		_, _ = io.ReadAll(resp.Body)
		return nil, 0, fmt.Errorf("restapi: tts returned status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("restapi: read tts response: %w", err)
	}
	pcm, rate, _, err := audio.ParseWAV(raw)
	if err != nil {
		return nil, 0, err
	}
	return pcm, rate, nil
}
