// Package envelope implements the canonical message wrapper every TARS
// worker publishes and consumes over MQTT.
package envelope

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire format every TARS topic carries: {id, type, ts,
// source, correlate, data}. Unknown fields are ignored on decode.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"ts"`
	Source    string          `json:"source"`
	Correlate string          `json:"correlate,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// New builds an envelope with a fresh id and the current UTC timestamp.
// correlate may be empty when the envelope answers nothing.
func New(eventType, source string, data any, correlate string) (Envelope, error) {
	return NewWithID(uuid.NewString(), eventType, source, data, correlate)
}

// NewWithID builds an envelope with a caller-supplied id. Used when the
// publisher needs to know the id before publishing — e.g. to register
// a correlation future keyed by that id ahead of the response that
// will reference it.
func NewWithID(id, eventType, source string, data any, correlate string) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:        id,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    source,
		Correlate: correlate,
		Data:      raw,
	}, nil
}

// Encode serializes the envelope once; envelopes are never mutated
// after construction.
func Encode(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses payload as a strict envelope. If that fails, it falls
// back to treating the whole payload as the envelope's data field with
// a synthesized id — the backward-compatibility fallback required of
// every consumer topic (spec §9 open question: applied uniformly, not
// per-topic).
func Decode(payload []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(payload, &e); err == nil && looksLikeEnvelope(payload) {
		return e, nil
	}
	return Envelope{
		ID:        uuid.NewString(),
		Type:      "",
		Timestamp: time.Now().UTC(),
		Data:      json.RawMessage(payload),
	}, nil
}

// looksLikeEnvelope guards against JSON objects that happen to decode
// into the zero-valued Envelope fields (e.g. a bare payload with no
// "id"/"type" keys at all) being mistaken for a real envelope.
func looksLikeEnvelope(payload []byte) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}
	_, hasID := probe["id"]
	_, hasType := probe["type"]
	return hasID && hasType
}
