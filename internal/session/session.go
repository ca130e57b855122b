// Package session implements the real-time voice interaction session: the
// lifecycle state machine, the readiness handshake against the backend's
// warm-up, inbound event dispatch, and idempotent teardown of the capture
// device, playback queue, duplex channel, and timers.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cuevase/voice-agent-creator-sub000/internal/audio"
	"github.com/cuevase/voice-agent-creator-sub000/internal/channel"
	"github.com/cuevase/voice-agent-creator-sub000/internal/logging"
	"github.com/cuevase/voice-agent-creator-sub000/internal/protocol"
)

// DefaultReadinessTimeout bounds how long the session waits for the
// backend's explicit readiness signal before capture starts anyway.
const DefaultReadinessTimeout = 2500 * time.Millisecond

// Transport is the duplex channel as the session consumes it. It is
// satisfied by *channel.Channel; tests substitute fakes.
type Transport interface {
	SendControl(v interface{}) error
	SendFrame(frame []byte) error
	Inbound() <-chan []byte
	Done() <-chan struct{}
	Err() error
	IsOpen() bool
	Close() error
}

// DialFunc opens the duplex channel to the backend.
type DialFunc func(ctx context.Context, url, token string) (Transport, error)

// TokenSource supplies the identity token that authorizes the channel dial.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TurnSubmitter is the REST turn-submission collaborator used by the
// non-streaming fallback mode.
type TurnSubmitter interface {
	SubmitTurn(ctx context.Context, sessionID, text, correlationID string) (reply string, err error)
}

// Synthesizer renders reply text to a playable PCM clip. When configured it
// is the authoritative playback path for a reply; inline audio payloads for
// the same reply are discarded so nothing is ever played twice.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (pcm []byte, sampleRate int, err error)
}

// Config holds the per-session parameters.
type Config struct {
	// URL is the websocket endpoint of the speech backend.
	URL string
	// UserID and Language populate the caller_info message.
	UserID   string
	Language string
	// ReadinessTimeout is the fallback before capture starts without an
	// explicit readiness signal. Defaults to DefaultReadinessTimeout.
	ReadinessTimeout time.Duration
	// Policy selects the playback behavior when a reply arrives
	// mid-playback. Defaults to barge-in (PolicyInterrupt).
	Policy audio.Policy
	// PolicySet marks Policy as explicitly chosen so PolicyQueue (the zero
	// value) is distinguishable from "not set".
	PolicySet bool
	// JSONFrames sends audio frames base64-wrapped in JSON control messages
	// instead of binary websocket messages.
	JSONFrames bool
}

func (c Config) withDefaults() Config {
	if c.ReadinessTimeout <= 0 {
		c.ReadinessTimeout = DefaultReadinessTimeout
	}
	if !c.PolicySet {
		c.Policy = audio.PolicyInterrupt
	}
	if c.Language == "" {
		c.Language = "en"
	}
	return c
}

// Deps are the session's collaborators. Device and Output are required;
// Dial defaults to the websocket channel; the rest are optional.
type Deps struct {
	Dial   DialFunc
	Device audio.Device
	Output audio.Output
	Tokens TokenSource
	Turns  TurnSubmitter
	Synth  Synthesizer
}

// Callbacks are consumed by the presentation layer. They are invoked
// synchronously from session internals and must not call back into the
// Session; everything a handler usually needs is passed as arguments.
type Callbacks struct {
	OnStateChange func(State)
	OnTranscript  func(text string, final bool)
	OnError       func(err error)
}

// Session owns one voice interaction from Start to teardown. All mutable
// state hangs off the session so independent sessions and tests never share
// anything.
type Session struct {
	cfg  Config
	deps Deps
	cb   Callbacks

	mu             sync.Mutex
	state          State
	tempClientID   string
	sessionID      string
	rebound        bool
	createdAt      time.Time
	ch             Transport
	queue          *audio.Queue
	readyTimer     *time.Timer
	captureStarted bool
	tornDown       bool
	lastErr        error
	caption        string
	transcript     []string

	framesSent    int64
	framesDropped int64
	msgCount      int64
	parseErrCount int64

	wg sync.WaitGroup
}

// New builds an idle session. Start actually connects.
func New(cfg Config, deps Deps, cb Callbacks) *Session {
	if deps.Dial == nil {
		deps.Dial = func(ctx context.Context, url, token string) (Transport, error) {
			return channel.Dial(ctx, url, token)
		}
	}
	s := &Session{cfg: cfg.withDefaults(), deps: deps, cb: cb, state: StateIdle}
	s.resetRunLocked()
	return s
}

// resetRunLocked prepares per-run state so a fresh Start after Closed or
// Error inherits nothing from the previous run.
func (s *Session) resetRunLocked() {
	s.tempClientID = uuid.NewString()
	s.sessionID = s.tempClientID
	s.rebound = false
	s.createdAt = time.Now()
	s.ch = nil
	s.queue = nil
	s.readyTimer = nil
	s.captureStarted = false
	s.tornDown = false
	s.lastErr = nil
	s.caption = ""
	s.transcript = nil
	atomic.StoreInt64(&s.framesSent, 0)
	atomic.StoreInt64(&s.framesDropped, 0)
	atomic.StoreInt64(&s.msgCount, 0)
	atomic.StoreInt64(&s.parseErrCount, 0)
}

// Start opens the duplex channel, sends caller_info, and arms the readiness
// handshake. It may be called again after the session reached Closed or
// Error; each call is a completely fresh run.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateIdle:
	case StateClosed, StateError:
		s.resetRunLocked()
	default:
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("session: start from state %s", st)
	}
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	token := ""
	if s.deps.Tokens != nil {
		t, err := s.deps.Tokens.Token(ctx)
		if err != nil {
			e := &Error{Kind: KindChannel, Err: fmt.Errorf("fetch identity token: %w", err)}
			s.teardown(StateError, e)
			return e
		}
		token = t
	}

	ch, err := s.deps.Dial(ctx, s.cfg.URL, token)
	if err != nil {
		e := &Error{Kind: KindChannel, Err: err}
		s.teardown(StateError, e)
		return e
	}

	s.mu.Lock()
	if s.tornDown {
		// Stop raced the dial; release the fresh connection and bail.
		s.mu.Unlock()
		_ = ch.Close()
		return fmt.Errorf("session: stopped during connect")
	}
	s.ch = ch
	s.queue = audio.NewQueue(s.deps.Output, s.cfg.Policy, s.onPlaybackActive, s.onPlaybackIdle)
	s.mu.Unlock()

	info := protocol.CallerInfo{Type: protocol.TypeCallerInfo, UserID: s.cfg.UserID, Language: s.cfg.Language}
	if err := ch.SendControl(info); err != nil {
		e := &Error{Kind: KindChannel, Err: fmt.Errorf("send caller_info: %w", err)}
		s.teardown(StateError, e)
		return e
	}

	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return fmt.Errorf("session: stopped during connect")
	}
	s.setStateLocked(StateAwaitingReadiness)
	s.readyTimer = time.AfterFunc(s.cfg.ReadinessTimeout, s.onReadinessTimeout)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.readPump(ch)

	logging.Infow("session: started", "session_id", s.ID(), "url", s.cfg.URL, "language", s.cfg.Language)
	return nil
}

// Stop ends the session from the caller's side. Outgoing frames stop, the
// pending readiness timer is cancelled, the device is released, and the
// channel closes. A second Stop, or a Stop after natural teardown, is a
// no-op.
func (s *Session) Stop() {
	s.teardown(StateClosed, nil)
}

// readPump drains inbound payloads and dispatches them until the channel
// ends, then routes the close cause to teardown.
func (s *Session) readPump(ch Transport) {
	defer s.wg.Done()
	for raw := range ch.Inbound() {
		s.dispatch(raw)
	}
	if err := ch.Err(); err != nil {
		s.teardown(StateError, &Error{Kind: KindChannel, Err: err})
		return
	}
	s.teardown(StateClosed, nil)
}

// onReadinessTimeout is the fallback half of the readiness handshake.
func (s *Session) onReadinessTimeout() {
	s.beginCapture("fallback_timer")
}

// beginCapture starts the microphone once readiness is established. The
// explicit confirmation and the fallback timer both land here; the
// captureStarted flag decides the winner, because timer cancellation is not
// atomic with message delivery and both paths can fire.
func (s *Session) beginCapture(trigger string) {
	s.mu.Lock()
	if s.captureStarted || s.tornDown || s.state != StateAwaitingReadiness {
		s.mu.Unlock()
		return
	}
	s.captureStarted = true
	if s.readyTimer != nil {
		s.readyTimer.Stop()
		s.readyTimer = nil
	}
	s.setStateLocked(StateListening)
	dev := s.deps.Device
	s.mu.Unlock()

	if err := dev.Start(s.handleFrame); err != nil {
		e := &Error{Kind: KindDevice, Err: fmt.Errorf("acquire microphone: %w", err)}
		s.teardown(StateError, e)
		return
	}

	// Teardown can land while acquisition is in flight; its device stop then
	// precedes the acquisition, so a device acquired after teardown must be
	// released here.
	s.mu.Lock()
	torn := s.tornDown
	s.mu.Unlock()
	if torn {
		if err := dev.Stop(); err != nil {
			logging.Warnw("session: device stop error", "err", err, "session_id", s.ID())
		}
		return
	}
	logging.Infow("session: capture started", "trigger", trigger, "session_id", s.ID())
}

// handleFrame runs for every captured buffer. Frames produced outside the
// Listening state, or while the channel is not open, are dropped rather
// than queued.
func (s *Session) handleFrame(samples []float32) {
	s.mu.Lock()
	st := s.state
	ch := s.ch
	s.mu.Unlock()

	if st != StateListening || ch == nil || !ch.IsOpen() {
		atomic.AddInt64(&s.framesDropped, 1)
		return
	}

	var err error
	if s.cfg.JSONFrames {
		err = ch.SendControl(protocol.AudioFrame{Type: protocol.TypeAudio, Audio: audio.EncodeFrameBase64(samples)})
	} else {
		err = ch.SendFrame(audio.EncodeFrame(samples))
	}
	if err != nil {
		atomic.AddInt64(&s.framesDropped, 1)
		if !errors.Is(err, channel.ErrNotOpen) {
			logging.Debugw("session: frame send failed", "err", err, "session_id", s.ID())
		}
		return
	}
	atomic.AddInt64(&s.framesSent, 1)
}

// onPlaybackActive and onPlaybackIdle keep the Listening/Speaking halves of
// the machine in step with the playback queue. If the session ended while a
// clip was draining, the terminal state wins and nothing changes here.
func (s *Session) onPlaybackActive() {
	s.mu.Lock()
	if s.state == StateListening {
		s.setStateLocked(StateSpeaking)
	}
	s.mu.Unlock()
}

func (s *Session) onPlaybackIdle() {
	s.mu.Lock()
	if s.state == StateSpeaking {
		s.setStateLocked(StateListening)
	}
	s.mu.Unlock()
}

// teardown is the single resource release path, reachable from user stop,
// remote error, unexpected disconnect, and component teardown. The first
// caller wins; later invocations are no-ops.
func (s *Session) teardown(final State, cause error) {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return
	}
	s.tornDown = true
	if s.readyTimer != nil {
		s.readyTimer.Stop()
		s.readyTimer = nil
	}
	dev := s.deps.Device
	q := s.queue
	ch := s.ch
	if cause != nil {
		s.lastErr = cause
	}
	s.setStateLocked(final)
	sid := s.sessionID
	s.mu.Unlock()

	if dev != nil {
		if err := dev.Stop(); err != nil {
			logging.Warnw("session: device stop error", "err", err, "session_id", sid)
		}
	}
	if q != nil {
		q.Close()
	}
	if ch != nil {
		_ = ch.Close()
	}

	logging.Infow("session: torn down",
		"session_id", sid,
		"state", final.String(),
		"frames_sent", atomic.LoadInt64(&s.framesSent),
		"frames_dropped", atomic.LoadInt64(&s.framesDropped),
		"messages", atomic.LoadInt64(&s.msgCount),
		"parse_errors", atomic.LoadInt64(&s.parseErrCount))

	if cause != nil {
		logging.Errorw("session: ended with error", "err", cause, "session_id", sid)
		if s.cb.OnError != nil {
			s.cb.OnError(cause)
		}
	}
}

// setStateLocked records a transition and notifies the presentation layer.
// Callers hold s.mu.
func (s *Session) setStateLocked(next State) {
	if s.state == next {
		return
	}
	prev := s.state
	s.state = next
	logging.Debugw("session: state transition", "from", prev.String(), "to", next.String(), "session_id", s.sessionID)
	if s.cb.OnStateChange != nil {
		s.cb.OnStateChange(next)
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ID returns the server-confirmed session id, or the local placeholder
// until the backend confirms one.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// LastError returns the failure that ended the session, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Caption returns the live caption for the current utterance.
func (s *Session) Caption() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caption
}

// Transcript returns the finalized transcript lines so far.
func (s *Session) Transcript() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Wait blocks until the read pump has exited. Useful in tests and for a
// clean process shutdown; not required for correctness.
func (s *Session) Wait() {
	s.wg.Wait()
}
