// Package llm turns an llm/request envelope into a streamed or
// non-streaming llm/response, optionally consulting the memory/RAG
// service and running tool-call round trips against an MCP bridge.
package llm

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Publisher is the narrow MQTT surface the pipeline needs: ordinary
// envelope publishing plus the caller-chosen-id variant used to seed
// correlation futures before the request goes out.
type Publisher interface {
	PublishEvent(topic, eventType string, data any, correlate string, qos byte, retain bool) error
	PublishEventWithID(topic, eventType, id string, data any, correlate string, qos byte, retain bool) error
}

// Request is the decoded data field of an llm/request envelope.
type Request struct {
	ID       string           `json:"id"`
	Text     string           `json:"text"`
	System   string           `json:"system,omitempty"`
	Stream   bool             `json:"stream,omitempty"`
	UseRAG   *bool            `json:"use_rag,omitempty"`
	RAGK     int              `json:"rag_k,omitempty"`
	History  []HistoryMessage `json:"conversation_history,omitempty"`
	Params   RequestParams    `json:"params,omitempty"`
}

// HistoryMessage is one {role, content} turn as carried on the wire.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RequestParams carries the request's optional generation overrides.
type RequestParams struct {
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
}

// CharacterSnapshot mirrors the retained system/character/current
// payload.
type CharacterSnapshot struct {
	Name         string            `json:"name"`
	SystemPrompt string            `json:"systemprompt,omitempty"`
	Traits       map[string]string `json:"traits,omitempty"`
	Description  string            `json:"description,omitempty"`
	Voice        string            `json:"voice,omitempty"`
}

// Options configures a Pipeline. Every duration/count field documents
// the spec default it falls back to when zero.
type Options struct {
	DefaultModel       string
	DefaultMaxTokens   int
	DefaultTemperature float64
	DefaultTopP        float64

	UseRAGDefault     bool
	RAGKDefault       int
	RAGDynamicPrompts bool
	RAGMaxTokens      int           // 0 = unbounded
	RAGTimeout        time.Duration // default 5s
	RAGPromptTemplate string        // default "Relevant context:\n%s"

	PromptTokenBudget int // dynamic-mode context window, default 8192

	StreamMaxChars       int    // default 240
	SentenceBoundary     string // default ".!?"
	TTSForwardingEnabled bool
	ToolCallingEnabled   bool
	ToolCallTimeout      time.Duration // default 30s
	HistoryMaxMessages   int           // default 40, (new) supplementing the distillation

	Log zerolog.Logger
}

func (o *Options) applyDefaults() {
	if o.RAGTimeout <= 0 {
		o.RAGTimeout = 5 * time.Second
	}
	if o.RAGPromptTemplate == "" {
		o.RAGPromptTemplate = "Relevant context:\n%s"
	}
	if o.PromptTokenBudget <= 0 {
		o.PromptTokenBudget = 8192
	}
	if o.StreamMaxChars <= 0 {
		o.StreamMaxChars = 240
	}
	if o.SentenceBoundary == "" {
		o.SentenceBoundary = ".!?"
	}
	if o.ToolCallTimeout <= 0 {
		o.ToolCallTimeout = 30 * time.Second
	}
	if o.HistoryMaxMessages <= 0 {
		o.HistoryMaxMessages = 40
	}
}

// tokenAllocation records the dynamic-mode budget split for
// observability (spec: "Record the final token allocation").
type tokenAllocation struct {
	Reserved      int
	RAGBudget     int
	RAGUsed       int
	HistoryBudget int
	HistoryUsed   int
}

// ragResultEntry is one matched document as carried in a memory/results
// entries array, kept local to this package to avoid an import cycle
// with memory. Only the fields the prompt assembler needs are decoded.
type ragResultEntry struct {
	Text string `json:"text"`
}

// ragResponse is the decoded data field of a memory/results envelope.
type ragResponse struct {
	Entries   []ragResultEntry `json:"entries"`
	Truncated bool             `json:"truncated"`
}

// context joins the matched entries into the prompt-ready RAG context
// string, the same way the original's rag.py handle_results joins
// each matched document's text with newlines.
func (r ragResponse) context() string {
	texts := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		texts[i] = e.Text
	}
	return strings.Join(texts, "\n")
}

// toolResult is the decoded data field of an llm/tool.call.result
// envelope.
type toolResult struct {
	CallID  string `json:"call_id"`
	Content string `json:"content"`
	IsError bool   `json:"is_error"`
}

// Response is the data field published on llm/response.
type Response struct {
	ID    string `json:"id"`
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
}

// StreamDelta is the data field published on each llm/stream event.
type StreamDelta struct {
	ID    string `json:"id"`
	Seq   int    `json:"seq"`
	Delta string `json:"delta,omitempty"`
	Done  bool   `json:"done"`
}

// SayChunk is the data field published on a forwarded tts/say event.
type SayChunk struct {
	Text string `json:"text"`
}

