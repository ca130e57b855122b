// Package restapi implements the HTTP collaborators the voice session
// consumes: identity-token fetch before the channel opens, the REST
// turn-submission endpoint used by the non-streaming fallback mode, and an
// optional speech-synthesis service. The duplex channel itself never
// retries; the bounded backoff here applies only to these side calls.
package restapi

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cuevase/voice-agent-creator-sub000/internal/logging"
)

// PostWithRetries posts JSON to url with bounded retry/backoff and returns
// the response. Caller must close resp.Body.
func PostWithRetries(ctx context.Context, client *http.Client, url string, body []byte, authToken string, timeoutMs int, attempts int, correlationID string) (*http.Response, error) {
	if attempts <= 0 {
		attempts = 1
	}
	if timeoutMs <= 0 {
		timeoutMs = 10000
	}
	for i := 0; i < attempts; i++ {
		reqCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
		req, rerr := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
		if rerr != nil {
			cancel()
			logging.Debugw("restapi: new request error", "err", rerr, "correlation_id", correlationID)
			return nil, rerr
		}
		req.Header.Set("Content-Type", "application/json")
		if authToken != "" {
			req.Header.Set("Authorization", "Bearer "+authToken)
		}
		if correlationID != "" {
			req.Header.Set("X-Correlation-ID", correlationID)
		}

		var resp *http.Response
		var err error
		if client != nil {
			resp, err = client.Do(req)
		} else {
			tmp := &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond}
			resp, err = tmp.Do(req)
		}
		cancel()
		if err != nil {
			logging.Debugw("restapi: POST attempt failed", "attempt", i+1, "err", err, "correlation_id", correlationID)
			if i < attempts-1 {
				time.Sleep(time.Duration(200*(1<<i)) * time.Millisecond)
				continue
			}
			return nil, err
		}
		if resp.StatusCode >= 500 && i < attempts-1 {
			_ = resp.Body.Close()
			logging.Debugw("restapi: server error, retrying", "attempt", i+1, "status", resp.StatusCode, "correlation_id", correlationID)
			time.Sleep(time.Duration(200*(1<<i)) * time.Millisecond)
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("restapi: no response after %d attempts", attempts)
}
