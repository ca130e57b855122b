package protocol

import "testing"

func TestIsReadySignalAcceptedShapes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"boolean flag", `{"type":"status","ready_for_audio":true}`},
		{"streaming_ready type", `{"type":"streaming_ready"}`},
		{"status ready", `{"type":"status","status":"ready"}`},
		{"status ready_for_audio", `{"type":"status","status":"ready_for_audio"}`},
		{"status streaming_ready", `{"type":"status","status":"streaming_ready"}`},
		{"status with whitespace and case", `{"type":"status","status":"  Ready "}`},
		{"message phrase", `{"type":"status","message":"session ready for audio now"}`},
		{"text phrase", `{"type":"status","text":"Streaming Ready"}`},
		{"nested payload flag", `{"type":"status","payload":{"ready_for_audio":true}}`},
		{"nested data status", `{"type":"status","data":{"status":"ready"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if !IsReadySignal([]byte(tc.raw)) {
				t.Fatalf("expected readiness for %s", tc.raw)
			}
		})
	}
}

func TestIsReadySignalRejections(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"false flag", `{"type":"status","ready_for_audio":false}`},
		{"unrelated status", `{"type":"status","status":"connected"}`},
		{"unrelated message", `{"type":"status","message":"session created"}`},
		{"flag as string", `{"type":"status","ready_for_audio":"true"}`},
		{"deeply nested flag", `{"type":"status","payload":{"payload":{"ready_for_audio":true}}}`},
		{"not json", `this is not json`},
		{"json array", `[true]`},
		{"empty object", `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if IsReadySignal([]byte(tc.raw)) {
				t.Fatalf("expected rejection for %s", tc.raw)
			}
		})
	}
}

func TestDecodeRequiresType(t *testing.T) {
	if _, err := Decode([]byte(`{"text":"hi"}`)); err == nil {
		t.Fatal("expected error for missing type")
	}
	env, err := Decode([]byte(`{"type":"interim_transcript","text":"hello","is_final":true}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if env.Type != TypeInterimTranscript || env.Text != "hello" || !env.IsFinal {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}
