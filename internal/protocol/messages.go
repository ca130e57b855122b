// Package protocol defines the wire messages exchanged with the voice
// backend over the duplex session channel, and the tolerant readiness
// predicate that shields the session state machine from the backend's
// loosely shaped warm-up signals.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Message type discriminators. Every message on the channel carries one in
// its required "type" field.
const (
	TypeCallerInfo        = "caller_info"
	TypeAudio             = "audio"
	TypeStatus            = "status"
	TypeStreamingReady    = "streaming_ready"
	TypeInterimTranscript = "interim_transcript"
	TypeAudioResponse     = "audio_response"
	TypeTextResponse      = "text_response"
	TypeError             = "error"
)

// CallerInfo is sent once, immediately after the channel opens.
type CallerInfo struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	Language string `json:"language"`
}

// AudioFrame wraps one base64-encoded PCM16LE frame for channels configured
// to carry audio inside JSON instead of binary messages.
type AudioFrame struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// Envelope is the decoded form of one inbound server message. It is a
// superset of all server message shapes; only the fields relevant to the
// discriminated Type are populated.
type Envelope struct {
	Type              string          `json:"type"`
	SessionID         string          `json:"session_id,omitempty"`
	OriginalSessionID string          `json:"original_session_id,omitempty"`
	ReadyForAudio     *bool           `json:"ready_for_audio,omitempty"`
	Status            string          `json:"status,omitempty"`
	Text              string          `json:"text,omitempty"`
	IsFinal           bool            `json:"is_final,omitempty"`
	Audio             string          `json:"audio,omitempty"`
	Transcription     string          `json:"transcription,omitempty"`
	Message           string          `json:"message,omitempty"`
	Payload           json.RawMessage `json:"payload,omitempty"`
}

// Decode parses one inbound message. A missing type field is an error so
// the dispatcher can skip the message without guessing.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("protocol: decode message: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("protocol: message missing type field")
	}
	return &env, nil
}
