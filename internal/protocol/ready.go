package protocol

import (
	"encoding/json"
	"strings"
)

// readyPhrases are free-text fragments observed from backends that announce
// the audio pipeline is warmed up without setting any structured flag.
var readyPhrases = []string{
	"ready for audio",
	"ready to receive audio",
	"streaming ready",
	"audio ready",
}

// readyStatuses are literal status strings that count as confirmation.
var readyStatuses = map[string]struct{}{
	"ready":           {},
	"ready_for_audio": {},
	"streaming_ready": {},
}

// IsReadySignal reports whether a raw inbound payload is the backend's
// readiness confirmation. Backends emit this in several shapes: a boolean
// flag, the same flag nested one level down, a literal status string, or
// free text. The matching lives here so none of that brittleness leaks into
// the session state machine.
func IsReadySignal(raw []byte) bool {
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return false
	}
	return readyFromMap(m, true)
}

func readyFromMap(m map[string]interface{}, recurse bool) bool {
	if v, ok := m["ready_for_audio"].(bool); ok && v {
		return true
	}
	if t, ok := m["type"].(string); ok && t == TypeStreamingReady {
		return true
	}
	if s, ok := m["status"].(string); ok {
		if _, hit := readyStatuses[strings.ToLower(strings.TrimSpace(s))]; hit {
			return true
		}
	}
	for _, k := range []string{"message", "text"} {
		if s, ok := m[k].(string); ok && matchesReadyPhrase(s) {
			return true
		}
	}
	if recurse {
		for _, k := range []string{"payload", "data"} {
			if sub, ok := m[k].(map[string]interface{}); ok && readyFromMap(sub, false) {
				return true
			}
		}
	}
	return false
}

func matchesReadyPhrase(s string) bool {
	ls := strings.ToLower(strings.TrimSpace(s))
	if ls == "" {
		return false
	}
	for _, p := range readyPhrases {
		if strings.Contains(ls, p) {
			return true
		}
	}
	return false
}
