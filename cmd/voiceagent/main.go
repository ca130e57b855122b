package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cuevase/voice-agent-creator-sub000/internal/audio"
	"github.com/cuevase/voice-agent-creator-sub000/internal/logging"
	"github.com/cuevase/voice-agent-creator-sub000/internal/restapi"
	"github.com/cuevase/voice-agent-creator-sub000/internal/session"
)

// envInt reads an integer environment variable, logging and falling back to
// def on invalid values.
func envInt(sugar *zap.SugaredLogger, key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		sugar.Warnf("invalid %s=%s; using default %d", key, v, def)
		return def
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes"
}

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	sugar := logging.Init()
	if sugar == nil {
		l, _ := zap.NewProduction()
		defer l.Sync()
		sugar = l.Sugar()
	}

	backendURL := strings.TrimSpace(os.Getenv("BACKEND_WS_URL"))
	if backendURL == "" {
		sugar.Fatal("BACKEND_WS_URL required")
	}
	userID := strings.TrimSpace(os.Getenv("USER_ID"))
	language := strings.TrimSpace(os.Getenv("LANGUAGE"))

	sampleRate := envInt(sugar, "SAMPLE_RATE", audio.DefaultSampleRate)
	frameSize := envInt(sugar, "FRAME_SIZE", audio.DefaultFrameSize)
	readinessMs := envInt(sugar, "READINESS_TIMEOUT_MS", int(session.DefaultReadinessTimeout/time.Millisecond))

	cfg := session.Config{
		URL:              backendURL,
		UserID:           userID,
		Language:         language,
		ReadinessTimeout: time.Duration(readinessMs) * time.Millisecond,
		JSONFrames:       envBool("AUDIO_JSON_FRAMES"),
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("PLAYBACK_POLICY"))) {
	case "queue":
		cfg.Policy = audio.PolicyQueue
		cfg.PolicySet = true
	case "interrupt":
		cfg.Policy = audio.PolicyInterrupt
		cfg.PolicySet = true
	case "":
	default:
		sugar.Warnf("invalid PLAYBACK_POLICY=%s; using interrupt", os.Getenv("PLAYBACK_POLICY"))
	}

	mic := audio.NewMicDevice(audio.CaptureConfig{
		SampleRate:       sampleRate,
		FrameSize:        frameSize,
		EchoCancellation: true,
		NoiseSuppression: true,
	})

	speaker, err := audio.NewSpeakerOutput(sampleRate)
	if err != nil {
		sugar.Fatalf("speaker init failed: %v", err)
	}

	deps := session.Deps{Device: mic, Output: speaker}
	if u := strings.TrimSpace(os.Getenv("TOKEN_URL")); u != "" {
		deps.Tokens = restapi.NewTokenClient(u, os.Getenv("API_KEY"))
	}
	if u := strings.TrimSpace(os.Getenv("TURN_URL")); u != "" {
		deps.Turns = restapi.NewTurnClient(u, os.Getenv("TURN_AUTH_TOKEN"), envInt(sugar, "TURN_TIMEOUT_MS", 30000))
	}
	if u := strings.TrimSpace(os.Getenv("TTS_URL")); u != "" {
		deps.Synth = restapi.NewTTSClient(u, os.Getenv("TTS_AUTH_TOKEN"), envInt(sugar, "TTS_TIMEOUT_MS", 10000))
	}

	ended := make(chan session.State, 1)
	cb := session.Callbacks{
		OnStateChange: func(st session.State) {
			sugar.Infow("session state", "state", st.String())
			if st.Terminal() {
				select {
				case ended <- st:
				default:
				}
			}
		},
		OnTranscript: func(text string, final bool) {
			if final {
				fmt.Printf("you> %s\n", text)
				return
			}
			fmt.Printf("\r...  %s", text)
		},
		OnError: func(err error) {
			sugar.Errorw("session error", "err", err)
		},
	}

	sess := session.New(cfg, deps, cb)

	dialCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	err = sess.Start(dialCtx)
	cancel()
	if err != nil {
		sugar.Fatalf("session start failed: %v", err)
	}
	sugar.Infow("session running; press Ctrl+C to stop", "session_id", sess.ID())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case <-stop:
		sugar.Infow("shutdown signal received, closing session")
		sess.Stop()
	case st := <-ended:
		sugar.Infow("session ended", "state", st.String())
		if lastErr := sess.LastError(); lastErr != nil {
			fmt.Fprintf(os.Stderr, "session ended with error: %v\n", lastErr)
		}
	}

	sess.Wait()
	_ = logging.Sync()
}
