package movement

import (
	"encoding/json"
	"testing"
)

type recordingPublisher struct {
	topic     string
	eventType string
	data      any
	correlate string
	qos       byte
	retain    bool
}

func (p *recordingPublisher) PublishEvent(topic, eventType string, data any, correlate string, qos byte, retain bool) error {
	p.topic = topic
	p.eventType = eventType
	p.data = data
	p.correlate = correlate
	p.qos = qos
	p.retain = retain
	return nil
}

func TestPublishSendsFrameOnMovementFrameTopic(t *testing.T) {
	p := &recordingPublisher{}
	frame := Frame{
		ID:       "seq-1",
		Seq:      0,
		Total:    3,
		Channels: map[string]int{"left_arm": 1500},
		HoldMs:   200,
		DurationMs: 250,
	}

	if err := Publish(p, frame); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if p.topic != "movement/frame" {
		t.Fatalf("topic = %q, want movement/frame", p.topic)
	}
	if p.correlate != "seq-1" {
		t.Fatalf("correlate = %q, want seq-1 (the frame id)", p.correlate)
	}
	got, ok := p.data.(Frame)
	if !ok {
		t.Fatalf("data type = %T, want Frame", p.data)
	}
	if got.Seq != 0 || got.Total != 3 {
		t.Fatalf("got = %+v", got)
	}
}

func TestDecodeStateParsesEnvelope(t *testing.T) {
	payload := []byte(`{"id":"e1","type":"","ts":"2024-01-01T00:00:00Z","data":{"event":"frame_ack","id":"seq-1","seq":0,"total":3}}`)

	s, err := DecodeState(payload)
	if err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	if s.Event != "frame_ack" || s.ID != "seq-1" || s.Seq != 0 || s.Total != 3 {
		t.Fatalf("got = %+v", s)
	}
}

func TestDecodeStateBarePayloadFallback(t *testing.T) {
	payload := []byte(`{"event":"ready","id":"seq-2","seq":1,"total":1}`)

	s, err := DecodeState(payload)
	if err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	if s.Event != "ready" || s.ID != "seq-2" {
		t.Fatalf("got = %+v", s)
	}
}

func TestDecodeStateInvalidPayloadErrors(t *testing.T) {
	_, err := DecodeState([]byte(`not json`))
	if err == nil {
		t.Fatal("expected an error for invalid JSON")
	}
}

func TestFrameMarshalsChannelsAsObject(t *testing.T) {
	frame := Frame{ID: "x", Channels: map[string]int{"c0": 90}}
	raw, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	channels, ok := decoded["channels"].(map[string]any)
	if !ok {
		t.Fatalf("channels field type = %T, want object", decoded["channels"])
	}
	if channels["c0"] != float64(90) {
		t.Fatalf("channels[c0] = %v, want 90", channels["c0"])
	}
}
