package memory

import (
	"math"
	"strings"
	"sync"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// lexicalIndex is an in-memory BM25 index over the corpus, rebuilt
// from persisted documents at startup and updated incrementally on
// ingest. No vendored BM25 library appears anywhere in the example
// pack, so this is hand-rolled rather than grounded on a dependency.
type lexicalIndex struct {
	mu        sync.RWMutex
	postings  map[string]map[int64]int // term -> docID -> term frequency
	docLen    map[int64]int
	totalLen  int
	docCount  int
}

func newLexicalIndex() *lexicalIndex {
	return &lexicalIndex{
		postings: make(map[string]map[int64]int),
		docLen:   make(map[int64]int),
	}
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// add indexes one document. Safe to call concurrently with score.
func (idx *lexicalIndex) add(docID int64, text string) {
	terms := tokenize(text)
	if len(terms) == 0 {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, term := range terms {
		bucket, ok := idx.postings[term]
		if !ok {
			bucket = make(map[int64]int)
			idx.postings[term] = bucket
		}
		bucket[docID]++
	}
	idx.docLen[docID] = len(terms)
	idx.totalLen += len(terms)
	idx.docCount++
}

func (idx *lexicalIndex) averageDocLen() float64 {
	if idx.docCount == 0 {
		return 0
	}
	return float64(idx.totalLen) / float64(idx.docCount)
}

// score returns the BM25 score of every document containing at least
// one query term, keyed by document id (the map is unordered).
func (idx *lexicalIndex) score(query string) map[int64]float64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	scores := make(map[int64]float64)
	avgLen := idx.averageDocLen()
	if avgLen == 0 {
		return scores
	}

	for _, term := range tokenize(query) {
		bucket, ok := idx.postings[term]
		if !ok {
			continue
		}
		idf := math.Log(1 + (float64(idx.docCount)-float64(len(bucket))+0.5)/(float64(len(bucket))+0.5))
		for docID, freq := range bucket {
			dl := float64(idx.docLen[docID])
			denom := float64(freq) + bm25K1*(1-bm25B+bm25B*dl/avgLen)
			scores[docID] += idf * (float64(freq) * (bm25K1 + 1) / denom)
		}
	}
	return scores
}
