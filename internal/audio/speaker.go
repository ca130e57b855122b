package audio

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/cuevase/voice-agent-creator-sub000/internal/logging"
)

// SpeakerOutput renders PCM16LE clips through the system default output
// device. The audio backend allows a single output context per process, so
// one SpeakerOutput is built in main and shared; each session still owns
// its playback queue, so sessions never share queue state.
type SpeakerOutput struct {
	ctx        *oto.Context
	sampleRate int
}

// NewSpeakerOutput initializes the output device at the given sample rate
// and blocks until it is ready.
func NewSpeakerOutput(sampleRate int) (*SpeakerOutput, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("audio: init speaker: %w", err)
	}
	<-ready
	logging.Infow("audio: speaker output ready", "sample_rate", sampleRate)
	return &SpeakerOutput{ctx: ctx, sampleRate: sampleRate}, nil
}

// Start begins playing one clip. The output context is fixed at its
// configured sample rate; clips at another rate would play at the wrong
// pitch, so they are rejected instead.
func (s *SpeakerOutput) Start(pcm []byte, sampleRate int) (Playback, error) {
	if sampleRate != 0 && sampleRate != s.sampleRate {
		return nil, fmt.Errorf("audio: clip sample rate %d does not match output %d", sampleRate, s.sampleRate)
	}
	p := s.ctx.NewPlayer(bytes.NewReader(pcm))
	p.Play()
	pb := &speakerPlayback{player: p, done: make(chan struct{})}
	go pb.wait()
	return pb, nil
}

type speakerPlayback struct {
	mu       sync.Mutex
	player   *oto.Player
	done     chan struct{}
	finished bool
}

// wait polls for natural completion. The player API has no completion
// callback, so a short ticker watches IsPlaying.
func (p *speakerPlayback) wait() {
	t := time.NewTicker(20 * time.Millisecond)
	defer t.Stop()
	for range t.C {
		p.mu.Lock()
		if p.finished {
			p.mu.Unlock()
			return
		}
		if !p.player.IsPlaying() {
			p.finishLocked()
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
	}
}

func (p *speakerPlayback) finishLocked() {
	if p.finished {
		return
	}
	p.finished = true
	_ = p.player.Close()
	close(p.done)
}

func (p *speakerPlayback) Done() <-chan struct{} { return p.done }

func (p *speakerPlayback) Stop() {
	p.mu.Lock()
	p.finishLocked()
	p.mu.Unlock()
}
