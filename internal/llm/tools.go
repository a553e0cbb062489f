package llm

import (
	"context"

	"github.com/tars-project/tars/internal/metrics"
	"github.com/tars-project/tars/internal/topics"
	"github.com/tars-project/tars/pkg/provider"
)

// runNonStreaming invokes the provider once; if it emits tool calls
// and tool calling is enabled, each call is dispatched and the
// provider is invoked once more with the extended history before the
// final llm/response is published.
func (p *Pipeline) runNonStreaming(ctx context.Context, requestID string, messages []provider.Message, params provider.CompletionParams) {
	result, err := p.llmProvider.Complete(ctx, messages, params)
	if err != nil {
		p.publishErrorResponse(requestID, err.Error())
		return
	}

	if !p.opts.ToolCallingEnabled || len(result.ToolCalls) == 0 {
		p.publishFinalResponse(requestID, result.Text)
		return
	}

	extended := make([]provider.Message, len(messages), len(messages)+len(result.ToolCalls)+2)
	copy(extended, messages)
	extended = append(extended, provider.Message{
		Role:      "assistant",
		Content:   result.Text,
		ToolCalls: result.ToolCalls,
	})

	// Tool-call round-trips execute sequentially within a single
	// request (spec §4.3 ordering guarantees).
	for _, call := range result.ToolCalls {
		content, isError := p.dispatchToolCall(ctx, call)
		outcome := "ok"
		if isError {
			outcome = "error"
		}
		metrics.LLMToolCallsTotal.WithLabelValues(outcome).Inc()
		extended = append(extended, provider.Message{
			Role:       "tool",
			Content:    content,
			ToolCallID: call.CallID,
			Name:       call.Name,
		})
	}

	followUp, err := p.llmProvider.Complete(ctx, extended, params)
	if err != nil {
		p.publishErrorResponse(requestID, err.Error())
		return
	}
	p.publishFinalResponse(requestID, followUp.Text)
}

func (p *Pipeline) publishFinalResponse(requestID, text string) {
	t := topics.LLMResponse
	if err := p.publish.PublishEvent(t.Name, t.EventType, Response{ID: requestID, Reply: text}, requestID, t.QoS, t.Retained); err != nil {
		p.log.Error().Err(err).Msg("failed to publish llm/response")
	}
}

// dispatchToolCall sends one tool call over llm/tool.call.request and
// waits up to ToolCallTimeout for its correlated result, or delegates
// to an injected ToolBridge when one is configured. A timeout yields
// tool/error content fed back into the follow-up model call (spec §5
// failure semantics).
func (p *Pipeline) dispatchToolCall(ctx context.Context, call provider.ToolCall) (content string, isError bool) {
	if p.toolBridge != nil {
		c, errFlag, err := p.toolBridge.Call(ctx, call)
		if err != nil {
			return "tool/error: " + err.Error(), true
		}
		return c, errFlag
	}

	t := topics.LLMToolCallRequest
	ch := p.toolPending.Register(ctx, call.CallID, p.opts.ToolCallTimeout)

	data := map[string]any{"call_id": call.CallID, "tool_name": call.Name, "arguments": call.Arguments}
	if err := p.publish.PublishEventWithID(t.Name, t.EventType, call.CallID, data, "", t.QoS, t.Retained); err != nil {
		p.toolPending.Cancel(call.CallID)
		p.log.Error().Err(err).Str("call_id", call.CallID).Msg("failed to publish tool call request")
		return "tool/error: request failed", true
	}

	result := <-ch
	if result.CallID == "" {
		return "tool/error: timeout", true
	}
	return result.Content, result.IsError
}
