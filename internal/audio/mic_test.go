package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func f32le(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

func ramp(n int, start float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = start + float32(i)
	}
	return out
}

func TestMicRechunksIntoFixedFrames(t *testing.T) {
	m := NewMicDevice(CaptureConfig{FrameSize: 4})
	var frames [][]float32
	m.running = true
	m.onFrame = func(fr []float32) { frames = append(frames, fr) }

	// Driver buffers arrive at arbitrary sizes; output frames must be fixed.
	m.onData(nil, f32le(ramp(3, 0)), 0)
	if len(frames) != 0 {
		t.Fatalf("partial buffer emitted early: %d frames", len(frames))
	}
	m.onData(nil, f32le(ramp(6, 3)), 0)
	if len(frames) != 2 {
		t.Fatalf("expected 2 full frames, got %d", len(frames))
	}
	for fi, fr := range frames {
		if len(fr) != 4 {
			t.Fatalf("frame %d has %d samples, want 4", fi, len(fr))
		}
		for i, s := range fr {
			if want := float32(fi*4 + i); s != want {
				t.Fatalf("frame %d sample %d: got %v, want %v", fi, i, s, want)
			}
		}
	}
}

func TestMicStopFlushesTrailingPartialFrame(t *testing.T) {
	m := NewMicDevice(CaptureConfig{FrameSize: 4})
	var frames [][]float32
	m.running = true
	m.onFrame = func(fr []float32) { frames = append(frames, fr) }

	m.onData(nil, f32le(ramp(6, 0)), 0)
	if len(frames) != 1 {
		t.Fatalf("expected 1 full frame before stop, got %d", len(frames))
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("trailing samples not flushed: %d frames", len(frames))
	}
	if got := frames[1]; len(got) != 2 || got[0] != 4 || got[1] != 5 {
		t.Fatalf("unexpected tail frame: %v", got)
	}

	// Stop again is a no-op and emits nothing.
	if err := m.Stop(); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("idempotent stop emitted frames: %d", len(frames))
	}
}

func TestMicIgnoresDataWhenNotRunning(t *testing.T) {
	m := NewMicDevice(CaptureConfig{FrameSize: 2})
	var frames int
	m.onFrame = func([]float32) { frames++ }

	m.onData(nil, f32le(ramp(8, 0)), 0)
	if frames != 0 {
		t.Fatalf("stopped device emitted %d frames", frames)
	}
}
