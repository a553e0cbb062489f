package wake

import "time"

// TTSState is the playback side of the half-duplex arbitration.
type TTSState string

const (
	TTSIdle     TTSState = "idle"
	TTSSpeaking TTSState = "speaking"
	TTSPaused   TTSState = "paused"
)

// DetectionResult is the at-most-one-per-retrigger output of the wake
// detector, an opaque collaborator this package never talks to
// directly.
type DetectionResult struct {
	Score     float64
	Energy    float64
	Timestamp time.Time
}

// activeInterrupt records the in-flight double-wake interrupt: which
// utterance got paused and by when its timeout resumes it.
type activeInterrupt struct {
	ttsID    string
	deadline time.Time
}

// Publisher is the narrow MQTT surface the machine needs; satisfied
// by *mqttclient.Client without importing it, avoiding a dependency
// cycle and making the machine trivially fakeable in tests.
type Publisher interface {
	PublishEvent(topic, eventType string, data any, correlate string, qos byte, retain bool) error
}

// WakeEventPayload is the data field of every wake/event envelope.
type WakeEventPayload struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence,omitempty"`
	Energy     float64 `json:"energy,omitempty"`
	Cause      string  `json:"cause,omitempty"`
	TTSID      string  `json:"tts_id,omitempty"`
	SessionID  string  `json:"session_id,omitempty"`
}

// MicPayload is the data field of every wake/mic envelope.
type MicPayload struct {
	Action    string `json:"action"`
	Reason    string `json:"reason,omitempty"`
	TTLMs     int64  `json:"ttl_ms,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// TTSControlPayload is the data field of every tts/control envelope
// this package publishes (pause/resume/stop).
type TTSControlPayload struct {
	Action    string `json:"action"`
	ID        string `json:"id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// input events, fanned into the machine's single owning goroutine.
type detectionMsg struct{ result DetectionResult }
type ttsStatusMsg struct{ event, uttID string }
type sttFinalMsg struct{ text string }
type idleTimeoutMsg struct{ epoch int }
type interruptTimeoutMsg struct{ epoch int }
type detectorFailureMsg struct{ err error }

// cancelPhrases is the closed set recognized while an interrupt is
// pending (spec transition 3). Matching is done against the
// normalized transcript.
var cancelPhrases = map[string]struct{}{
	"cancel":          {},
	"cancel it":       {},
	"cancel that":     {},
	"cancel please":   {},
	"stop":            {},
	"stop it":         {},
	"stop that":       {},
	"never mind":      {},
	"never mind that": {},
	"nevermind":       {},
}
