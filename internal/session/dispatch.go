package session

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/cuevase/voice-agent-creator-sub000/internal/audio"
	"github.com/cuevase/voice-agent-creator-sub000/internal/logging"
	"github.com/cuevase/voice-agent-creator-sub000/internal/protocol"
)

// dispatch routes one inbound payload by its type discriminator. Parse
// failures and unknown types are absorbed per message so a single bad
// payload never terminates the channel.
func (s *Session) dispatch(raw []byte) {
	atomic.AddInt64(&s.msgCount, 1)

	env, err := protocol.Decode(raw)
	if err != nil {
		atomic.AddInt64(&s.parseErrCount, 1)
		logging.Warnw("session: skipping malformed message", "err", err, "session_id", s.ID())
		return
	}

	switch env.Type {
	case protocol.TypeStatus:
		s.handleStatus(env, raw)
	case protocol.TypeStreamingReady:
		s.beginCapture("ready_signal")
	case protocol.TypeInterimTranscript:
		s.handleTranscript(env)
	case protocol.TypeAudioResponse, protocol.TypeTextResponse:
		s.handleReply(env)
	case protocol.TypeError:
		s.teardown(StateError, newError(KindServer, "backend error: %s", env.Message))
	default:
		logging.Debugw("session: ignoring unknown message type", "type", env.Type, "session_id", s.ID())
	}
}

// handleStatus rebinds the session id exactly once and feeds the readiness
// predicate. Later id offers are ignored; all subsequent requests use the
// first confirmed id.
func (s *Session) handleStatus(env *protocol.Envelope, raw []byte) {
	if env.SessionID != "" {
		s.mu.Lock()
		if !s.rebound {
			old := s.sessionID
			s.sessionID = env.SessionID
			s.rebound = true
			logging.Infow("session: server confirmed session id", "session_id", env.SessionID, "temp_client_id", old)
		} else if env.SessionID != s.sessionID {
			logging.Debugw("session: ignoring session id change", "session_id", s.sessionID, "offered", env.SessionID)
		}
		s.mu.Unlock()
	}
	if protocol.IsReadySignal(raw) {
		s.beginCapture("ready_signal")
	}
}

// handleTranscript maintains the live caption and the transcript log. A
// non-final event replaces the caption; a final event appends to the log
// and triggers exactly one downstream turn.
func (s *Session) handleTranscript(env *protocol.Envelope) {
	s.mu.Lock()
	s.caption = env.Text
	if env.IsFinal {
		s.transcript = append(s.transcript, env.Text)
	}
	sid := s.sessionID
	s.mu.Unlock()

	if s.cb.OnTranscript != nil {
		s.cb.OnTranscript(env.Text, env.IsFinal)
	}
	if env.IsFinal {
		s.submitTurn(sid, env.Text)
	}
}

// submitTurn forwards one final transcript to the REST fallback endpoint.
// The reply, if any, joins the playback queue like a streamed text
// response. Failures are logged and absorbed; fallback turns never end the
// session.
func (s *Session) submitTurn(sessionID, text string) {
	if s.deps.Turns == nil || text == "" {
		return
	}
	correlationID := uuid.NewString()
	go func() {
		reply, err := s.deps.Turns.SubmitTurn(context.Background(), sessionID, text, correlationID)
		if err != nil {
			logging.Warnw("session: turn submission failed", "err", err, "session_id", sessionID, "correlation_id", correlationID)
			return
		}
		if reply == "" {
			return
		}
		s.handleReply(&protocol.Envelope{Type: protocol.TypeTextResponse, Text: reply})
	}()
}

// handleReply resolves the authoritative audio for one reply and enqueues
// it. When a synthesis collaborator is configured it wins and any inline
// payload is discarded, so one logical reply is never rendered twice.
func (s *Session) handleReply(env *protocol.Envelope) {
	s.mu.Lock()
	q := s.queue
	torn := s.tornDown
	s.mu.Unlock()
	if q == nil || torn {
		return
	}

	item := audio.Item{Text: env.Text}
	switch {
	case s.deps.Synth != nil && env.Text != "":
		pcm, rate, err := s.deps.Synth.Synthesize(context.Background(), env.Text)
		if err != nil {
			e := newError(KindPlayback, "synthesize reply: %w", err)
			logging.Warnw("session: dropping reply", "err", e, "session_id", s.ID())
			return
		}
		item.PCM, item.SampleRate = pcm, rate
	case env.Audio != "":
		pcm, rate, err := audio.DecodeReplyAudio(env.Audio)
		if err != nil {
			e := newError(KindPlayback, "decode reply audio: %w", err)
			logging.Warnw("session: dropping reply", "err", e, "session_id", s.ID())
			return
		}
		item.PCM, item.SampleRate = pcm, rate
	}

	q.Enqueue(item)
	logging.Debugw("session: reply enqueued", "has_audio", len(item.PCM) > 0, "text_len", len(env.Text), "session_id", s.ID())
}
