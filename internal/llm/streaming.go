package llm

import (
	"context"
	"strings"

	"github.com/tars-project/tars/internal/metrics"
	"github.com/tars-project/tars/internal/topics"
	"github.com/tars-project/tars/pkg/provider"
)

// runStreaming drives the provider's streaming path: every delta
// becomes an llm/stream envelope with a strictly monotonic seq; when
// TTS forwarding is enabled, accumulated text is flushed as tts/say
// chunks at sentence boundaries (or when the buffer would overflow
// stream_max_chars). The final llm/stream carries done:true and the
// concatenated text is published as llm/response. If the provider
// closes the channel without a Done delta, the stream is still closed
// with done:true but llm/response carries an error instead of the
// partial text.
func (p *Pipeline) runStreaming(ctx context.Context, requestID string, messages []provider.Message, params provider.CompletionParams) {
	deltas, err := p.llmProvider.Stream(ctx, messages, params)
	if err != nil {
		p.publishErrorResponse(requestID, err.Error())
		return
	}

	var full strings.Builder
	var ttsBuf strings.Builder
	seq := 0

	flushTTS := func(force bool) {
		if !p.opts.TTSForwardingEnabled {
			return
		}
		chunks, remainder := splitSentences(ttsBuf.String(), p.opts.SentenceBoundary)
		for _, c := range chunks {
			p.publishSay(requestID, c)
		}
		if force && remainder != "" {
			p.publishSay(requestID, remainder)
			remainder = ""
		}
		ttsBuf.Reset()
		ttsBuf.WriteString(remainder)
	}

	sawDone := false
	for delta := range deltas {
		if delta.Text != "" {
			full.WriteString(delta.Text)
			seq++
			p.publishStreamDelta(requestID, seq, delta.Text, false)

			if p.opts.TTSForwardingEnabled {
				ttsBuf.WriteString(delta.Text)
				if ttsBuf.Len() >= p.opts.StreamMaxChars {
					flushTTS(true)
				} else {
					flushTTS(false)
				}
			}
		}
		if delta.Done {
			sawDone = true
			break
		}
	}

	if !sawDone {
		p.publishStreamDelta(requestID, seq+1, "", true)
		p.publishErrorResponse(requestID, "provider stream ended without a done delta")
		return
	}

	flushTTS(true)
	p.publishStreamDelta(requestID, seq+1, "", true)

	t := topics.LLMResponse
	if err := p.publish.PublishEvent(t.Name, t.EventType, Response{ID: requestID, Reply: full.String()}, requestID, t.QoS, t.Retained); err != nil {
		p.log.Error().Err(err).Msg("failed to publish final llm/response for stream")
	}
}

func (p *Pipeline) publishStreamDelta(requestID string, seq int, text string, done bool) {
	metrics.LLMStreamDeltasTotal.Inc()
	t := topics.LLMStream
	d := StreamDelta{ID: requestID, Seq: seq, Delta: text, Done: done}
	if err := p.publish.PublishEvent(t.Name, t.EventType, d, requestID, t.QoS, t.Retained); err != nil {
		p.log.Error().Err(err).Msg("failed to publish llm/stream delta")
	}
}

func (p *Pipeline) publishSay(requestID, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	t := topics.TTSSay
	if err := p.publish.PublishEvent(t.Name, t.EventType, SayChunk{Text: text}, requestID, t.QoS, t.Retained); err != nil {
		p.log.Error().Err(err).Msg("failed to publish forwarded tts/say chunk")
	}
}
