package llm

import "testing"

func TestBuildSystemPromptPrecedence(t *testing.T) {
	cases := []struct {
		name      string
		character CharacterSnapshot
		override  string
		want      string
	}{
		{
			name:      "character systemprompt wins outright",
			character: CharacterSnapshot{Name: "TARS", SystemPrompt: "Be terse and sarcastic."},
			override:  "Ignore everything, be verbose.",
			want:      "Be terse and sarcastic.\n\nIgnore everything, be verbose.",
		},
		{
			name:      "traits synthesize a persona line",
			character: CharacterSnapshot{Name: "TARS", Traits: map[string]string{"humor": "90%", "honesty": "95%"}},
			want:      "You are TARS. Traits: honesty: 95%, humor: 90%",
		},
		{
			name:      "bare name fallback",
			character: CharacterSnapshot{Name: "TARS"},
			want:      "You are TARS.",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := buildSystemPrompt(tc.character, tc.override)
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTrimHistoryCapsToMostRecent(t *testing.T) {
	history := make([]HistoryMessage, 5)
	for i := range history {
		history[i] = HistoryMessage{Role: "user", Content: string(rune('a' + i))}
	}

	got := trimHistory(history, 2)
	if len(got) != 2 || got[0].Content != "d" || got[1].Content != "e" {
		t.Fatalf("got %+v, want last 2 messages", got)
	}

	if got := trimHistory(history, 10); len(got) != 5 {
		t.Fatalf("cap above length should be a no-op, got %d messages", len(got))
	}
}

func TestSplitSentencesFlushesOnBoundary(t *testing.T) {
	chunks, remainder := splitSentences("Hello world. How are you? I am fine", ".!?")
	if len(chunks) != 2 || chunks[0] != "Hello world." || chunks[1] != " How are you?" {
		t.Fatalf("got chunks=%v", chunks)
	}
	if remainder != " I am fine" {
		t.Fatalf("got remainder=%q", remainder)
	}
}

func TestAssembleDynamicSplitsBudgetAndCapsRAG(t *testing.T) {
	p := &Pipeline{opts: Options{PromptTokenBudget: 1000, RAGMaxTokens: 50}}

	history := []HistoryMessage{
		{Role: "user", Content: "first turn"},
		{Role: "assistant", Content: "first reply"},
	}
	longRAG := ""
	for i := 0; i < 2000; i++ {
		longRAG += "x"
	}

	msgs, alloc := p.assembleDynamic("system prompt", longRAG, history, "final question")

	if alloc.RAGBudget != 50 {
		t.Fatalf("RAGBudget = %d, want capped to 50", alloc.RAGBudget)
	}
	if alloc.RAGUsed > 51 { // estimateTokens rounds up by 1
		t.Fatalf("RAGUsed = %d exceeds the capped budget", alloc.RAGUsed)
	}

	last := msgs[len(msgs)-1]
	if last.Role != "user" || last.Content != "final question" {
		t.Fatalf("final message = %+v, want the user turn last", last)
	}
	if msgs[0].Role != "system" || msgs[0].Content != "system prompt" {
		t.Fatalf("first message = %+v, want the system prompt", msgs[0])
	}
}
