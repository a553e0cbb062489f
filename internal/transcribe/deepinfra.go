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

const deepInfraBaseURL = "https://api.deepinfra.com/v1/inference/"

// DeepInfraClient calls DeepInfra's native inference API for Whisper
// models. Implements provider.Transcriber.
type DeepInfraClient struct {
	apiKey  string
	model   string // e.g. "openai/whisper-large-v3-turbo"
	baseURL string // deepInfraBaseURL; tests point it at a stub server
	timeout time.Duration
	client  *http.Client
}

type deepInfraResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

// NewDeepInfraClient creates a DeepInfra inference client.
func NewDeepInfraClient(apiKey, model string, timeout time.Duration) *DeepInfraClient {
	return &DeepInfraClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: deepInfraBaseURL,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

func (di *DeepInfraClient) Name() string  { return "deepinfra" }
func (di *DeepInfraClient) Model() string { return di.model }

// Transcribe sends an audio file to DeepInfra's inference API. Uses
// multipart/form-data with field name "audio" (DeepInfra's convention,
// unlike the OpenAI-compatible "file").
func (di *DeepInfraClient) Transcribe(ctx context.Context, audioPath string) (provider.TranscriptionResult, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return provider.TranscriptionResult{}, fmt.Errorf("transcribe: open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return provider.TranscriptionResult{}, fmt.Errorf("transcribe: create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return provider.TranscriptionResult{}, fmt.Errorf("transcribe: copy audio data: %w", err)
	}
	w.Close()

	url := di.baseURL + di.model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return provider.TranscriptionResult{}, fmt.Errorf("transcribe: create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+di.apiKey)

	resp, err := di.client.Do(req)
	if err != nil {
		return provider.TranscriptionResult{}, fmt.Errorf("transcribe: deepinfra request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.TranscriptionResult{}, fmt.Errorf("transcribe: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return provider.TranscriptionResult{}, fmt.Errorf("transcribe: deepinfra API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result deepInfraResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return provider.TranscriptionResult{}, fmt.Errorf("transcribe: decode response: %w", err)
	}

	return provider.TranscriptionResult{
		Text:     result.Text,
		Language: result.Language,
		Duration: result.Duration,
	}, nil
}
