// Package channel provides the persistent duplex websocket connection that
// carries JSON control messages and binary audio frames between the client
// and the voice backend.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/cuevase/voice-agent-creator-sub000/internal/logging"
)

// ErrNotOpen is returned when a payload is submitted while the channel is
// not in the open state. Callers drop the payload; stale audio after a
// disconnect is worse than a gap.
var ErrNotOpen = errors.New("channel: not open")

// Channel is one duplex session connection. Outbound messages are
// serialized under a mutex so control messages and audio frames interleave
// in send order; inbound payloads are surfaced on Inbound until the read
// pump stops. Close is idempotent.
type Channel struct {
	mu   sync.Mutex
	conn *websocket.Conn
	open bool
	err  error

	inbound   chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// Dial opens the channel. token, when non-empty, is sent as a bearer
// Authorization header. http(s) schemes are rewritten to ws(s) so callers
// can pass either form.
func Dial(ctx context.Context, rawurl, token string) (*Channel, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, fmt.Errorf("channel: parse url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	hdr := http.Header{}
	if token != "" {
		hdr.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), hdr)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("channel: dial %s: status %d: %w", u.String(), resp.StatusCode, err)
		}
		return nil, fmt.Errorf("channel: dial %s: %w", u.String(), err)
	}

	c := &Channel{
		conn:    conn,
		open:    true,
		inbound: make(chan []byte, 64),
		done:    make(chan struct{}),
	}
	go c.readPump()
	logging.Infow("channel: opened", "url", u.String())
	return c, nil
}

// readPump delivers inbound payloads in receive order and closes Inbound
// when the connection ends from either side.
func (c *Channel) readPump() {
	defer close(c.inbound)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}
		c.inbound <- data
	}
}

// shutdown marks the channel closed and releases the connection. Only the
// first failure records a cause; a local Close leaves Err nil.
func (c *Channel) shutdown(cause error) {
	c.mu.Lock()
	wasOpen := c.open
	c.open = false
	if c.err == nil && cause != nil && wasOpen {
		c.err = cause
	}
	c.mu.Unlock()

	c.closeOnce.Do(func() {
		_ = c.conn.Close()
		close(c.done)
	})
}

// SendControl writes one JSON control message.
func (c *Channel) SendControl(v interface{}) error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return ErrNotOpen
	}
	err := c.conn.WriteJSON(v)
	c.mu.Unlock()
	if err != nil {
		c.shutdown(err)
		return fmt.Errorf("channel: write control: %w", err)
	}
	return nil
}

// SendFrame writes one binary audio frame. Frames submitted while the
// channel is not open are rejected with ErrNotOpen rather than queued.
func (c *Channel) SendFrame(frame []byte) error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return ErrNotOpen
	}
	err := c.conn.WriteMessage(websocket.BinaryMessage, frame)
	c.mu.Unlock()
	if err != nil {
		c.shutdown(err)
		return fmt.Errorf("channel: write frame: %w", err)
	}
	return nil
}

// Inbound returns the stream of raw inbound payloads. The channel owner
// must drain it; it is closed when the connection ends.
func (c *Channel) Inbound() <-chan []byte { return c.inbound }

// Done is closed once the channel has fully shut down.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Err returns the transport failure that closed the channel, or nil after a
// clean local close or remote close.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil && websocket.IsCloseError(c.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return c.err
}

// IsOpen reports whether the channel currently accepts outbound payloads.
func (c *Channel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Close shuts the channel down from the local side.
func (c *Channel) Close() error {
	c.shutdown(nil)
	return nil
}
