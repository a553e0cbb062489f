package memory

import "testing"

func TestLexicalIndexScoresMatchingDocsHigherThanNonMatching(t *testing.T) {
	idx := newLexicalIndex()
	idx.add(1, "the quick brown fox jumps over the lazy dog")
	idx.add(2, "a completely unrelated sentence about spaceships")
	idx.add(3, "quick quick quick fox fox fox")

	scores := idx.score("quick fox")
	if len(scores) != 2 {
		t.Fatalf("expected 2 scored docs, got %d: %+v", len(scores), scores)
	}
	if _, ok := scores[2]; ok {
		t.Fatal("doc 2 shares no terms with the query and should not score")
	}
	if scores[3] <= scores[1] {
		t.Fatalf("doc 3 repeats the query terms and should outscore doc 1: doc1=%v doc3=%v", scores[1], scores[3])
	}
}

func TestLexicalIndexEmptyQueryScoresNothing(t *testing.T) {
	idx := newLexicalIndex()
	idx.add(1, "some text")
	if scores := idx.score(""); len(scores) != 0 {
		t.Fatalf("expected no scores for an empty query, got %+v", scores)
	}
}

func TestLexicalIndexEmptyIndexScoresNothing(t *testing.T) {
	idx := newLexicalIndex()
	if scores := idx.score("anything"); len(scores) != 0 {
		t.Fatalf("expected no scores against an empty index, got %+v", scores)
	}
}
