package llm

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tars-project/tars/internal/correlate"
	"github.com/tars-project/tars/internal/envelope"
	"github.com/tars-project/tars/internal/metrics"
	"github.com/tars-project/tars/internal/topics"
	"github.com/tars-project/tars/pkg/provider"
)

// Pipeline turns llm/request envelopes into streamed or non-streaming
// llm/response envelopes. One Pipeline serves every request
// concurrently; requests from different clients share the publisher,
// the provider, and the read-only character snapshot, but nothing
// else (spec §5 concurrency model).
type Pipeline struct {
	publish     Publisher
	llmProvider provider.ChatCompletionProvider
	toolBridge  provider.ToolBridge
	opts        Options
	log         zerolog.Logger

	character atomic.Pointer[CharacterSnapshot]

	ragPending  *correlate.Registry[ragResponse]
	toolPending *correlate.Registry[toolResult]
}

// New builds a Pipeline. toolBridge may be nil when tool calling is
// disabled.
func New(publish Publisher, llmProvider provider.ChatCompletionProvider, toolBridge provider.ToolBridge, opts Options) *Pipeline {
	opts.applyDefaults()
	return &Pipeline{
		publish:     publish,
		llmProvider: llmProvider,
		toolBridge:  toolBridge,
		opts:        opts,
		log:         opts.Log,
		ragPending:  correlate.New[ragResponse](),
		toolPending: correlate.New[toolResult](),
	}
}

// SetCharacter installs a fresh retained character snapshot. Safe to
// call concurrently with HandleRequest; readers always see a whole
// snapshot, never a partial update.
func (p *Pipeline) SetCharacter(c CharacterSnapshot) {
	p.character.Store(&c)
}

func (p *Pipeline) currentCharacter() CharacterSnapshot {
	if c := p.character.Load(); c != nil {
		return *c
	}
	return CharacterSnapshot{}
}

// OnMemoryResult feeds a decoded memory/results envelope into the
// pending RAG correlation registry. Wire this to the memory/results
// subscription handler.
func (p *Pipeline) OnMemoryResult(correlateID string, payload []byte) {
	var r ragResponse
	if err := json.Unmarshal(payload, &r); err != nil {
		p.log.Warn().Err(err).Msg("unparseable memory/results payload, dropping")
		return
	}
	p.ragPending.Resolve(correlateID, r)
}

// OnToolCallResult feeds a decoded llm/tool.call.result envelope into
// the pending tool-call correlation registry.
func (p *Pipeline) OnToolCallResult(correlateID string, payload []byte) {
	var r toolResult
	if err := json.Unmarshal(payload, &r); err != nil {
		p.log.Warn().Err(err).Msg("unparseable llm/tool.call.result payload, dropping")
		return
	}
	if r.CallID == "" {
		p.log.Warn().Msg("llm/tool.call.result missing call_id, dropping")
		return
	}
	p.toolPending.Resolve(correlateID, r)
}

// HandleRequest decodes one llm/request payload and drives it through
// to completion (streaming or not). Safe to call from multiple
// subscription dispatch goroutines concurrently.
func (p *Pipeline) HandleRequest(ctx context.Context, payload []byte) {
	env, err := envelope.Decode(payload)
	if err != nil {
		p.log.Warn().Err(err).Msg("unparseable llm/request envelope, dropping")
		return
	}

	var req Request
	if err := json.Unmarshal(env.Data, &req); err != nil {
		p.log.Warn().Err(err).Msg("invalid llm/request schema, dropping")
		return
	}

	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return
	}

	requestID := env.ID
	start := time.Now()
	defer func() { metrics.LLMRequestDuration.Observe(time.Since(start).Seconds()) }()

	if p.llmProvider == nil {
		metrics.LLMRequestsTotal.WithLabelValues("error").Inc()
		p.publishErrorResponse(requestID, "no LLM provider configured")
		return
	}

	params := p.resolveParams(req.Params)

	useRAG := p.opts.UseRAGDefault
	if req.UseRAG != nil {
		useRAG = *req.UseRAG
	}
	ragK := p.opts.RAGKDefault
	if req.RAGK > 0 {
		ragK = req.RAGK
	}

	systemPrompt := buildSystemPrompt(p.currentCharacter(), req.System)

	var ragContext string
	if useRAG {
		ragContext = p.queryRAG(ctx, req.Text, ragK)
	}

	var messages []provider.Message
	if p.opts.RAGDynamicPrompts {
		messages, _ = p.assembleDynamic(systemPrompt, ragContext, req.History, req.Text)
	} else {
		messages = p.assembleStatic(systemPrompt, ragContext, req.History, req.Text)
	}

	if req.Stream && p.llmProvider.SupportsStreaming() {
		metrics.LLMRequestsTotal.WithLabelValues("streamed").Inc()
		p.runStreaming(ctx, requestID, messages, params)
		return
	}
	metrics.LLMRequestsTotal.WithLabelValues("non_streaming").Inc()
	p.runNonStreaming(ctx, requestID, messages, params)
}

func (p *Pipeline) resolveParams(reqParams RequestParams) provider.CompletionParams {
	params := provider.CompletionParams{
		Model:       p.opts.DefaultModel,
		MaxTokens:   p.opts.DefaultMaxTokens,
		Temperature: p.opts.DefaultTemperature,
		TopP:        p.opts.DefaultTopP,
	}
	if reqParams.Model != "" {
		params.Model = reqParams.Model
	}
	if reqParams.MaxTokens > 0 {
		params.MaxTokens = reqParams.MaxTokens
	}
	if reqParams.Temperature > 0 {
		params.Temperature = reqParams.Temperature
	}
	if reqParams.TopP > 0 {
		params.TopP = reqParams.TopP
	}
	return params
}

// queryRAG issues a correlated memory/query and waits up to
// RAGTimeout; a timeout or publish failure yields an empty context
// rather than failing the whole request (spec §4.3 failure
// semantics).
func (p *Pipeline) queryRAG(ctx context.Context, text string, topK int) string {
	queryID := uuid.NewString()
	ch := p.ragPending.Register(ctx, queryID, p.opts.RAGTimeout)

	t := topics.MemoryQuery
	data := map[string]any{"text": text, "top_k": topK, "strategy": "hybrid"}
	if err := p.publish.PublishEventWithID(t.Name, t.EventType, queryID, data, "", t.QoS, t.Retained); err != nil {
		p.ragPending.Cancel(queryID)
		p.log.Warn().Err(err).Msg("failed to publish memory/query, proceeding without RAG context")
		return ""
	}

	resp := <-ch
	return resp.context()
}

func (p *Pipeline) publishErrorResponse(requestID, message string) {
	t := topics.LLMResponse
	resp := Response{ID: requestID, Error: message}
	if err := p.publish.PublishEvent(t.Name, t.EventType, resp, requestID, t.QoS, t.Retained); err != nil {
		p.log.Error().Err(err).Msg("failed to publish llm/response error")
	}
}
