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
	"strings"
	"time"

	"github.com/tars-project/tars/pkg/provider"
)

const elevenLabsSTTEndpoint = "https://api.elevenlabs.io/v1/speech-to-text"

// ElevenLabsClient calls the ElevenLabs Speech-to-Text API. Implements
// provider.Transcriber.
type ElevenLabsClient struct {
	apiKey   string
	model    string // "scribe_v1" or "scribe_v2"
	keyterms string // comma-separated boost terms
	endpoint string // elevenLabsSTTEndpoint; tests point it at a stub server
	timeout  time.Duration
	client   *http.Client
}

type elevenlabsResponse struct {
	LanguageCode string `json:"language_code"`
	Text         string `json:"text"`
}

// NewElevenLabsClient creates an ElevenLabs STT client.
func NewElevenLabsClient(apiKey, model, keyterms string, timeout time.Duration) *ElevenLabsClient {
	return &ElevenLabsClient{
		apiKey:   apiKey,
		model:    model,
		keyterms: keyterms,
		endpoint: elevenLabsSTTEndpoint,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
	}
}

func (el *ElevenLabsClient) Name() string  { return "elevenlabs" }
func (el *ElevenLabsClient) Model() string { return el.model }

func (el *ElevenLabsClient) Transcribe(ctx context.Context, audioPath string) (provider.TranscriptionResult, error) {
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
	w.WriteField("model_id", el.model)
	w.WriteField("language_code", "en")
	if keyterms := el.buildKeyterms(""); keyterms != "" {
		w.WriteField("keyterms", keyterms)
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, el.endpoint, &buf)
	if err != nil {
		return provider.TranscriptionResult{}, fmt.Errorf("transcribe: create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("xi-api-key", el.apiKey)

	resp, err := el.client.Do(req)
	if err != nil {
		return provider.TranscriptionResult{}, fmt.Errorf("transcribe: elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.TranscriptionResult{}, fmt.Errorf("transcribe: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return provider.TranscriptionResult{}, fmt.Errorf("transcribe: elevenlabs API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result elevenlabsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return provider.TranscriptionResult{}, fmt.Errorf("transcribe: decode response: %w", err)
	}

	return provider.TranscriptionResult{
		Text:     result.Text,
		Language: result.LanguageCode,
	}, nil
}

// buildKeyterms merges configured keyterms with per-request hotwords
// into a JSON array of {"text": "term"} objects for the ElevenLabs API.
func (el *ElevenLabsClient) buildKeyterms(hotwords string) string {
	var terms []string

	if el.keyterms != "" {
		for _, t := range strings.Split(el.keyterms, ",") {
			if t = strings.TrimSpace(t); t != "" {
				terms = append(terms, t)
			}
		}
	}
	if hotwords != "" {
		for _, t := range strings.Split(hotwords, ",") {
			if t = strings.TrimSpace(t); t != "" {
				terms = append(terms, t)
			}
		}
	}
	if len(terms) == 0 {
		return ""
	}

	type keyterm struct {
		Text string `json:"text"`
	}
	arr := make([]keyterm, len(terms))
	for i, t := range terms {
		arr[i] = keyterm{Text: t}
	}
	b, _ := json.Marshal(arr)
	return string(b)
}
