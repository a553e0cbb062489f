package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tars-project/tars/pkg/provider"
)

// WhisperClient calls an OpenAI-compatible /v1/audio/transcriptions
// endpoint — whisper.cpp, speaches, or any server that implements the
// same form fields. Implements provider.Transcriber.
type WhisperClient struct {
	url     string
	model   string
	opts    Opts
	timeout time.Duration
	client  *http.Client
}

type whisperResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

// NewWhisperClient creates a Whisper-compatible HTTP client.
func NewWhisperClient(url, model string, opts Opts, timeout time.Duration) *WhisperClient {
	return &WhisperClient{
		url:     url,
		model:   model,
		opts:    opts,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

func (wc *WhisperClient) Name() string  { return "whisper" }
func (wc *WhisperClient) Model() string { return wc.model }

// Transcribe sends an audio file as multipart/form-data and returns the
// decoded result. language (default "en"), temperature and
// response_format are always sent; model, prompt and hotwords only
// when set.
func (wc *WhisperClient) Transcribe(ctx context.Context, audioPath string) (provider.TranscriptionResult, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return provider.TranscriptionResult{}, fmt.Errorf("transcribe: open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return provider.TranscriptionResult{}, fmt.Errorf("transcribe: create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return provider.TranscriptionResult{}, fmt.Errorf("transcribe: copy audio data: %w", err)
	}

	if wc.model != "" {
		w.WriteField("model", wc.model)
	}
	lang := wc.opts.Language
	if lang == "" {
		lang = "en"
	}
	w.WriteField("language", lang)
	w.WriteField("temperature", fmt.Sprintf("%.2f", wc.opts.Temperature))
	w.WriteField("response_format", "verbose_json")
	if wc.opts.Prompt != "" {
		w.WriteField("prompt", wc.opts.Prompt)
	}
	if wc.opts.Hotwords != "" {
		w.WriteField("hotwords", wc.opts.Hotwords)
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wc.url, &buf)
	if err != nil {
		return provider.TranscriptionResult{}, fmt.Errorf("transcribe: create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := wc.client.Do(req)
	if err != nil {
		return provider.TranscriptionResult{}, fmt.Errorf("transcribe: whisper request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.TranscriptionResult{}, fmt.Errorf("transcribe: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return provider.TranscriptionResult{}, fmt.Errorf("transcribe: whisper API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result whisperResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return provider.TranscriptionResult{}, fmt.Errorf("transcribe: decode response: %w", err)
	}

	return provider.TranscriptionResult{
		Text:     result.Text,
		Language: result.Language,
		Duration: result.Duration,
	}, nil
}
