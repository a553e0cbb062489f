package envelope

import (
	"encoding/json"
	"testing"
)

func TestNewAndDecodeRoundTrip(t *testing.T) {
	e, err := New("stt.final", "stt", map[string]string{"text": "hello"}, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	payload, err := Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.ID != e.ID || got.Type != e.Type {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, e)
	}
}

func TestDecodeBarePayloadFallback(t *testing.T) {
	bare := []byte(`{"text":"hi there"}`)
	got, err := Decode(bare)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.ID == "" {
		t.Fatal("expected synthesized id for bare payload")
	}
	var data map[string]string
	if err := json.Unmarshal(got.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data["text"] != "hi there" {
		t.Fatalf("data = %v, want text=hi there", data)
	}
}

func TestDecodeCorrelatePreserved(t *testing.T) {
	e, _ := New("llm.response", "llm", map[string]string{"reply": "ok"}, "req-1")
	payload, _ := Encode(e)
	got, _ := Decode(payload)
	if got.Correlate != "req-1" {
		t.Fatalf("Correlate = %q, want req-1", got.Correlate)
	}
}
