package memory

import "sort"

// estimateTokens is the same ~4-chars-per-token heuristic the llm
// package uses for prompt budgeting; duplicated locally to avoid an
// inter-package dependency over something this small.
func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return len(s)/4 + 1
}

type rankedDoc struct {
	index int
	score float64
}

// Query answers one memory/query request against the current corpus
// snapshot: ranks candidates by strategy, optionally expands each hit
// with its surrounding context_window documents, and truncates to
// max_tokens, marking the response truncated:true if anything was
// dropped (spec.md §4.4).
func (c *Corpus) Query(q Query) Results {
	strategy := q.Strategy
	if strategy == "" {
		strategy = StrategyHybrid
	}
	topK := q.TopK
	if topK <= 0 {
		topK = 5
	}
	contextWindow := q.ContextWindow
	if contextWindow <= 0 {
		contextWindow = 1
	}

	docs, lex := c.snapshot()
	if len(docs) == 0 {
		return Results{Entries: []ResultEntry{}}
	}

	var queryEmbedding []float32
	if strategy == StrategyHybrid || strategy == StrategySimilarity {
		if emb, err := c.embedder.Embed(q.Text); err == nil {
			queryEmbedding = emb
		}
	}

	var lexScores map[int64]float64
	if strategy == StrategyHybrid {
		lexScores = lex.score(q.Text)
	}

	ranked := make([]rankedDoc, len(docs))
	for i, d := range docs {
		var score float64
		switch strategy {
		case StrategyRecent:
			score = float64(d.CreatedAt.Unix())
		case StrategySimilarity:
			score = cosineSimilarity(queryEmbedding, d.Embedding)
		default: // hybrid: blend lexical + vector signal
			score = cosineSimilarity(queryEmbedding, d.Embedding) + lexScores[d.ID]
		}
		ranked[i] = rankedDoc{index: i, score: score}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	entries := make([]ResultEntry, 0, len(ranked))
	seen := make(map[int]bool, len(ranked))
	truncated := false
	used := 0

	// add returns false (and flags truncation) once max_tokens would
	// be exceeded; targets are added before context so context is
	// what gets dropped first when the budget is tight.
	add := func(idx int, relation string, score float64) bool {
		d := docs[idx]
		cost := estimateTokens(d.Text)
		if q.MaxTokens > 0 && used+cost > q.MaxTokens {
			truncated = true
			return false
		}
		used += cost
		entries = append(entries, ResultEntry{Text: d.Text, Kind: d.Kind, Score: score, Relation: relation})
		seen[idx] = true
		return true
	}

	for _, r := range ranked {
		add(r.index, "", r.score)
	}

	if q.IncludeContext {
		for _, r := range ranked {
			if !seen[r.index] {
				continue // target itself was dropped by the budget; don't pull in its context
			}
			for back := 1; back <= contextWindow; back++ {
				pi := r.index - back
				if pi < 0 || seen[pi] {
					continue
				}
				if !add(pi, "previous", 0) {
					break
				}
			}
			for fwd := 1; fwd <= contextWindow; fwd++ {
				ni := r.index + fwd
				if ni >= len(docs) || seen[ni] {
					continue
				}
				if !add(ni, "next", 0) {
					break
				}
			}
		}
	}

	return Results{Entries: entries, Truncated: truncated}
}
