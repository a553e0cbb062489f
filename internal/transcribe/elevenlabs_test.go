package transcribe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestElevenLabsClientTranscribeParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "test-key" {
			t.Errorf("xi-api-key header = %q", r.Header.Get("xi-api-key"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"language_code":"en","text":"what's the weather today"}`))
	}))
	defer srv.Close()

	el := NewElevenLabsClient("test-key", "scribe_v1", "porch,timer", 5*time.Second)
	el.endpoint = srv.URL
	result, err := el.Transcribe(context.Background(), writeTempAudio(t))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.Text != "what's the weather today" {
		t.Errorf("Text = %q", result.Text)
	}
	if result.Language != "en" {
		t.Errorf("Language = %q, want en", result.Language)
	}
}

func TestElevenLabsClientBuildKeytermsMergesConfigAndHotwords(t *testing.T) {
	el := NewElevenLabsClient("key", "scribe_v1", "porch, timer", 5*time.Second)
	got := el.buildKeyterms("weather")
	if got == "" {
		t.Fatal("expected non-empty keyterms JSON")
	}
	for _, want := range []string{"porch", "timer", "weather"} {
		if !strings.Contains(got, want) {
			t.Errorf("keyterms %q missing term %q", got, want)
		}
	}
}

func TestElevenLabsClientBuildKeytermsEmptyWhenNoTerms(t *testing.T) {
	el := NewElevenLabsClient("key", "scribe_v1", "", 5*time.Second)
	if got := el.buildKeyterms(""); got != "" {
		t.Errorf("buildKeyterms() = %q, want empty", got)
	}
}
