// Package movement is the thin typed bridge to the ESP32 firmware that
// drives the physical chassis. The firmware itself is out of scope —
// TARS only marshals and publishes the documented wire contract
// (spec.md §6) and decodes the device's replies; it applies no
// behavior of its own, the same boundary treatment pkg/provider gives
// Transcriber, Synthesizer, and ChatCompletionProvider.
package movement

import (
	"encoding/json"

	"github.com/tars-project/tars/internal/envelope"
	"github.com/tars-project/tars/internal/topics"
)

// Publisher is the narrow slice of *mqttclient.Client movement needs,
// duck-typed locally to avoid an import cycle — the same pattern the
// wake, llm, and memory packages use.
type Publisher interface {
	PublishEvent(topic, eventType string, data any, correlate string, qos byte, retain bool) error
}

// Frame is one movement/frame command: a set of named channel pulses
// held for hold_ms, expected to complete within duration_ms, with an
// optional auto-disable and a done flag closing out a multi-frame
// sequence.
type Frame struct {
	ID           string         `json:"id"`
	Seq          int            `json:"seq"`
	Total        int            `json:"total"`
	Channels     map[string]int `json:"channels"`
	HoldMs       int            `json:"hold_ms"`
	DurationMs   int            `json:"duration_ms"`
	DisableAfter bool           `json:"disable_after"`
	Done         bool           `json:"done"`
}

// State is the device's reply on movement/state: an event tag and the
// frame coordinates it answers.
type State struct {
	Event string `json:"event"` // ready | frame_ack | completed | error
	ID    string `json:"id"`
	Seq   int    `json:"seq"`
	Total int    `json:"total"`
}

// HealthPayload is the retained system/health/movement-esp32 body the
// device publishes alongside the shared health contract.
type HealthPayload struct {
	OK    bool   `json:"ok"`
	Event string `json:"event"`
}

// Publish sends one movement/frame command. Frames within a sequence
// share id and total and are distinguished by seq; the last frame sets
// done:true.
func Publish(publish Publisher, frame Frame) error {
	t := topics.MovementFrame
	return publish.PublishEvent(t.Name, t.EventType, frame, frame.ID, t.QoS, t.Retained)
}

// DecodeState parses a movement/state envelope payload. Returns the
// zero State and an error if the payload is not well-formed — callers
// should log and drop rather than propagate, consistent with every
// other envelope consumer in the fleet.
func DecodeState(payload []byte) (State, error) {
	env, err := envelope.Decode(payload)
	if err != nil {
		return State{}, err
	}
	var s State
	if err := json.Unmarshal(env.Data, &s); err != nil {
		return State{}, err
	}
	return s, nil
}
