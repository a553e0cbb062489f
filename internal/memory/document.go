// Package memory answers memory/query envelopes with memory/results
// envelopes and ingests stt/final and tts/say events into a
// persisted, hybrid-searchable corpus (spec.md §4.4).
package memory

import "time"

// Strategy selects how query ranks candidate documents.
type Strategy string

const (
	StrategyHybrid     Strategy = "hybrid"
	StrategyRecent      Strategy = "recent"
	StrategySimilarity Strategy = "similarity"
)

// Document is one corpus entry: an ingested stt/final or tts/say
// utterance plus its embedding.
type Document struct {
	ID        int64
	Kind      string // source event type, e.g. "stt.final" or "tts.say"
	Text      string
	Embedding []float32
	CreatedAt time.Time
}

// Query is the decoded data field of a memory/query envelope.
type Query struct {
	Text            string   `json:"text"`
	TopK            int      `json:"top_k,omitempty"`
	Strategy        Strategy `json:"strategy,omitempty"`
	MaxTokens       int      `json:"max_tokens,omitempty"`
	IncludeContext  bool     `json:"include_context,omitempty"`
	ContextWindow   int      `json:"context_window,omitempty"`
}

// ResultEntry is one document in a memory/results response, tagged
// with its relationship to the matched target.
type ResultEntry struct {
	Text    string  `json:"text"`
	Kind    string  `json:"kind"`
	Score   float64 `json:"score,omitempty"`
	Relation string `json:"relation,omitempty"` // "", "previous", "next"
}

// Results is the data field of a memory/results envelope.
type Results struct {
	Entries   []ResultEntry `json:"entries"`
	Truncated bool          `json:"truncated"`
}

// IngestEvent is one stt/final or tts/say envelope queued for
// embedding and persistence.
type IngestEvent struct {
	Kind string
	Text string
}
