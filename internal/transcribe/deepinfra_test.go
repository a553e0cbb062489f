package transcribe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDeepInfraClientTranscribeParsesResponse(t *testing.T) {
	var capturedAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"set a timer for five minutes","language":"en","duration":2.1}`))
	}))
	defer srv.Close()

	di := NewDeepInfraClient("test-key", "openai/whisper-large-v3-turbo", 5*time.Second)
	di.baseURL = srv.URL + "/"
	result, err := di.Transcribe(context.Background(), writeTempAudio(t))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.Text != "set a timer for five minutes" {
		t.Errorf("Text = %q", result.Text)
	}
	if !strings.HasPrefix(capturedAuth, "Bearer ") {
		t.Errorf("Authorization header = %q, want Bearer prefix", capturedAuth)
	}
}

func TestDeepInfraClientTranscribeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("invalid api key"))
	}))
	defer srv.Close()

	di := NewDeepInfraClient("bad-key", "openai/whisper-large-v3-turbo", 5*time.Second)
	di.baseURL = srv.URL + "/"
	if _, err := di.Transcribe(context.Background(), writeTempAudio(t)); err == nil {
		t.Fatal("expected error on 401 response")
	}
}
