package topics

import "testing"

func TestMatchesType(t *testing.T) {
	if !MatchesType(STTFinal.Name, "stt.final") {
		t.Error("expected stt.final to match stt/final")
	}
	if MatchesType(STTFinal.Name, "stt.partial") {
		t.Error("expected stt.partial to mismatch stt/final")
	}
	if !MatchesType("unregistered/topic", "anything") {
		t.Error("unregistered topics should never report a mismatch")
	}
}

func TestHealthAndKeepaliveTopics(t *testing.T) {
	if got := HealthTopic("tars-llm"); got != "system/health/tars-llm" {
		t.Errorf("HealthTopic = %q", got)
	}
	if got := KeepaliveTopic("tars-llm"); got != "system/keepalive/tars-llm" {
		t.Errorf("KeepaliveTopic = %q", got)
	}
}
