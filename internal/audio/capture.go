// Package audio implements the client-side audio pipeline: microphone
// capture, PCM16 encoding for transport, WAV framing for reply payloads,
// and serialized reply playback with barge-in.
package audio

// Default capture parameters for the voice backend's ingest format.
const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	// DefaultFrameSize is the fixed number of samples per transport frame.
	DefaultFrameSize = 4096
)

// Device produces fixed-size float32 sample buffers at a steady cadence.
// Implementations must tolerate Stop being called more than once and may
// deliver one trailing partial buffer during Stop.
type Device interface {
	Start(onFrame func(samples []float32)) error
	Stop() error
}

// CaptureConfig describes the capture stream. EchoCancellation and
// NoiseSuppression are hints forwarded to platform backends that honor
// them; backends without such processing ignore the hints.
type CaptureConfig struct {
	SampleRate       int
	Channels         int
	FrameSize        int
	EchoCancellation bool
	NoiseSuppression bool
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Channels <= 0 {
		c.Channels = DefaultChannels
	}
	if c.FrameSize <= 0 {
		c.FrameSize = DefaultFrameSize
	}
	return c
}
