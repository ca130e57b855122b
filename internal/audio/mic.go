package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/cuevase/voice-agent-creator-sub000/internal/logging"
)

// MicDevice captures mono float32 PCM from the default input device and
// re-chunks the driver's callback buffers into fixed-size frames. The
// trailing partial frame, if any, is flushed on Stop.
type MicDevice struct {
	cfg CaptureConfig

	mu      sync.Mutex
	mctx    *malgo.AllocatedContext
	dev     *malgo.Device
	pending []float32
	onFrame func([]float32)
	running bool
}

// NewMicDevice returns an unstarted microphone adapter. The device is not
// acquired until Start so a denied permission surfaces as a recoverable
// error there, not at construction.
func NewMicDevice(cfg CaptureConfig) *MicDevice {
	return &MicDevice{cfg: cfg.withDefaults()}
}

// Start acquires the microphone exclusively and begins delivering frames to
// onFrame. Acquisition failure (device busy, permission denied) is returned
// to the caller; nothing is retained on failure.
func (m *MicDevice) Start(onFrame func(samples []float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("audio: capture already running")
	}

	ctxCfg := malgo.ContextConfig{}
	ctxCfg.ThreadPriority = malgo.ThreadPriorityRealtime
	mctx, err := malgo.InitContext(nil, ctxCfg, nil)
	if err != nil {
		return fmt.Errorf("audio: init capture context: %w", err)
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.Capture.Format = malgo.FormatF32
	devCfg.Capture.Channels = uint32(m.cfg.Channels)
	devCfg.SampleRate = uint32(m.cfg.SampleRate)

	m.onFrame = onFrame
	callbacks := malgo.DeviceCallbacks{Data: m.onData}
	dev, err := malgo.InitDevice(mctx.Context, devCfg, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("audio: open capture device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("audio: start capture: %w", err)
	}

	m.mctx = mctx
	m.dev = dev
	m.running = true
	logging.Infow("audio: capture started",
		"sample_rate", m.cfg.SampleRate,
		"channels", m.cfg.Channels,
		"frame_size", m.cfg.FrameSize,
		"echo_cancellation", m.cfg.EchoCancellation,
		"noise_suppression", m.cfg.NoiseSuppression)
	return nil
}

// onData runs on the audio driver thread. Full frames are emitted outside
// the lock so a slow consumer never blocks buffer bookkeeping.
func (m *MicDevice) onData(_, input []byte, _ uint32) {
	samples := decodeF32LE(input)

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.pending = append(m.pending, samples...)
	var full [][]float32
	for len(m.pending) >= m.cfg.FrameSize {
		fr := make([]float32, m.cfg.FrameSize)
		copy(fr, m.pending[:m.cfg.FrameSize])
		m.pending = m.pending[m.cfg.FrameSize:]
		full = append(full, fr)
	}
	cb := m.onFrame
	m.mu.Unlock()

	if cb == nil {
		return
	}
	for _, fr := range full {
		cb(fr)
	}
}

// Stop releases the device and the capture context. Any samples still
// buffered are delivered as one final partial frame. Stop is idempotent.
func (m *MicDevice) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	dev := m.dev
	mctx := m.mctx
	m.dev = nil
	m.mctx = nil
	tail := m.pending
	m.pending = nil
	cb := m.onFrame
	m.onFrame = nil
	m.mu.Unlock()

	if dev != nil {
		_ = dev.Stop()
		dev.Uninit()
	}
	if mctx != nil {
		_ = mctx.Uninit()
		mctx.Free()
	}
	if len(tail) > 0 && cb != nil {
		cb(tail)
	}
	logging.Infow("audio: capture stopped", "tail_samples", len(tail))
	return nil
}

// decodeF32LE reinterprets the driver's little-endian float32 byte stream.
func decodeF32LE(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(b[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}
