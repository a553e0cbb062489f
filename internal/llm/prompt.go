package llm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tars-project/tars/pkg/provider"
)

// buildSystemPrompt merges the character snapshot with the request's
// optional override: character-supplied systemprompt wins outright;
// otherwise a persona line is synthesized from name/traits; the
// caller override, if any, is appended after a blank line.
func buildSystemPrompt(character CharacterSnapshot, override string) string {
	var base string
	switch {
	case character.SystemPrompt != "":
		base = character.SystemPrompt
	case len(character.Traits) > 0:
		base = fmt.Sprintf("You are %s. Traits: %s", character.Name, formatTraits(character.Traits))
	default:
		base = fmt.Sprintf("You are %s.", character.Name)
	}

	if override == "" {
		return base
	}
	return base + "\n\n" + override
}

func formatTraits(traits map[string]string) string {
	keys := make([]string, 0, len(traits))
	for k := range traits {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, traits[k]))
	}
	return strings.Join(parts, ", ")
}

// trimHistory keeps only the most recent max messages, matching the
// original implementation's history[-max:] guard (spec.md's
// distillation omitted this cap; SPEC_FULL.md restores it).
func trimHistory(history []HistoryMessage, max int) []HistoryMessage {
	if max <= 0 || len(history) <= max {
		return history
	}
	return history[len(history)-max:]
}

func toMessages(history []HistoryMessage) []provider.Message {
	out := make([]provider.Message, len(history))
	for i, h := range history {
		out[i] = provider.Message{Role: h.Role, Content: h.Content}
	}
	return out
}

// assembleStatic implements the static prompt-assembly mode: RAG
// context (if any) formatted into the template, then history
// verbatim (trimmed to the cap), then the final user turn.
func (p *Pipeline) assembleStatic(systemPrompt, ragContext string, history []HistoryMessage, userText string) []provider.Message {
	msgs := []provider.Message{{Role: "system", Content: systemPrompt}}
	if ragContext != "" {
		msgs = append(msgs, provider.Message{Role: "system", Content: fmt.Sprintf(p.opts.RAGPromptTemplate, ragContext)})
	}
	msgs = append(msgs, toMessages(trimHistory(history, p.opts.HistoryMaxMessages))...)
	msgs = append(msgs, provider.Message{Role: "user", Content: userText})
	return msgs
}

// estimateTokens is a cheap, provider-agnostic token estimate (~4
// characters per token); the spec does not mandate a specific
// tokenizer and no tokenizer library appears anywhere in the example
// pack, so this heuristic stands in for one.
func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return len(s)/4 + 1
}

func truncateToTokenBudget(s string, budget int) (string, int) {
	if budget <= 0 || s == "" {
		return "", 0
	}
	maxChars := budget * 4
	if len(s) <= maxChars {
		return s, estimateTokens(s)
	}
	return s[:maxChars], estimateTokens(s[:maxChars])
}

// assembleDynamic implements the token-aware prompt-assembly mode:
// reserve ~300 tokens plus the system prompt, split the remainder
// half to RAG (capped by RAGMaxTokens) and the rest to history walked
// newest-first, then append the user turn last.
func (p *Pipeline) assembleDynamic(systemPrompt, ragContext string, history []HistoryMessage, userText string) ([]provider.Message, tokenAllocation) {
	history = trimHistory(history, p.opts.HistoryMaxMessages)
	reserved := 300 + estimateTokens(systemPrompt)
	remainder := p.opts.PromptTokenBudget - reserved
	if remainder < 0 {
		remainder = 0
	}

	ragBudget := remainder / 2
	if p.opts.RAGMaxTokens > 0 && ragBudget > p.opts.RAGMaxTokens {
		ragBudget = p.opts.RAGMaxTokens
	}
	historyBudget := remainder - ragBudget
	if historyBudget < 0 {
		historyBudget = 0
	}

	truncatedRAG, ragUsed := truncateToTokenBudget(ragContext, ragBudget)

	var picked []HistoryMessage
	used := 0
	for i := len(history) - 1; i >= 0; i-- {
		cost := estimateTokens(history[i].Content)
		if used+cost > historyBudget {
			break
		}
		picked = append(picked, history[i])
		used += cost
	}
	for l, r := 0, len(picked)-1; l < r; l, r = l+1, r-1 {
		picked[l], picked[r] = picked[r], picked[l]
	}

	msgs := []provider.Message{{Role: "system", Content: systemPrompt}}
	if truncatedRAG != "" {
		msgs = append(msgs, provider.Message{Role: "system", Content: fmt.Sprintf(p.opts.RAGPromptTemplate, truncatedRAG)})
	}
	msgs = append(msgs, toMessages(picked)...)
	msgs = append(msgs, provider.Message{Role: "user", Content: userText})

	return msgs, tokenAllocation{
		Reserved:      reserved,
		RAGBudget:     ragBudget,
		RAGUsed:       ragUsed,
		HistoryBudget: historyBudget,
		HistoryUsed:   used,
	}
}

// splitSentences extracts every prefix of buf ending at a boundary
// rune, returning the flushable chunks and the unconsumed remainder.
func splitSentences(buf, boundary string) (chunks []string, remainder string) {
	start := 0
	for i, r := range buf {
		if strings.ContainsRune(boundary, r) {
			chunks = append(chunks, buf[start:i+1])
			start = i + 1
		}
	}
	return chunks, buf[start:]
}
