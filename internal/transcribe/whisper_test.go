package transcribe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func writeTempAudio(t *testing.T) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "clip-*.wav")
	if err != nil {
		t.Fatalf("create temp audio: %v", err)
	}
	if _, err := f.Write([]byte("RIFF....WAVEfmt ")); err != nil {
		t.Fatalf("write temp audio: %v", err)
	}
	f.Close()
	return f.Name()
}

func TestWhisperClientTranscribeParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") == "" {
			t.Error("expected multipart content type header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"turn on the porch light","language":"en","duration":1.8}`))
	}))
	defer srv.Close()

	wc := NewWhisperClient(srv.URL, "whisper-1", Opts{}, 5*time.Second)
	result, err := wc.Transcribe(context.Background(), writeTempAudio(t))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.Text != "turn on the porch light" {
		t.Errorf("Text = %q, want %q", result.Text, "turn on the porch light")
	}
	if result.Language != "en" {
		t.Errorf("Language = %q, want en", result.Language)
	}
	if result.Duration != 1.8 {
		t.Errorf("Duration = %v, want 1.8", result.Duration)
	}
}

func TestWhisperClientTranscribeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	wc := NewWhisperClient(srv.URL, "whisper-1", Opts{}, 5*time.Second)
	if _, err := wc.Transcribe(context.Background(), writeTempAudio(t)); err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestWhisperClientNameAndModel(t *testing.T) {
	wc := NewWhisperClient("http://localhost:9000", "whisper-large-v3", Opts{}, time.Second)
	if wc.Name() != "whisper" {
		t.Errorf("Name() = %q, want whisper", wc.Name())
	}
	if wc.Model() != "whisper-large-v3" {
		t.Errorf("Model() = %q, want whisper-large-v3", wc.Model())
	}
}
