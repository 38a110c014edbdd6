package docindex

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// BM25 parameters.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Chunk is one retrievable window of a source document.
type Chunk struct {
	Source   string `json:"source"`
	Position int    `json:"position"`
	Text     string `json:"text"`
}

type posting struct {
	chunk int
	freq  int
}

// Index is an immutable lexical index over chunks, ranked with BM25.
type Index struct {
	chunks   []Chunk
	postings map[string][]posting
	lengths  []int
	avgLen   float64
	sources  []string
}

func newIndex(chunks []Chunk, sources []string) *Index {
	ix := &Index{
		chunks:   chunks,
		postings: make(map[string][]posting),
		lengths:  make([]int, len(chunks)),
		sources:  sources,
	}
	total := 0
	for i, ch := range chunks {
		freqs := make(map[string]int)
		terms := tokenize(ch.Text)
		for _, t := range terms {
			freqs[t]++
		}
		for t, f := range freqs {
			ix.postings[t] = append(ix.postings[t], posting{chunk: i, freq: f})
		}
		ix.lengths[i] = len(terms)
		total += len(terms)
	}
	if len(chunks) > 0 {
		ix.avgLen = float64(total) / float64(len(chunks))
	}
	return ix
}

// Len returns the number of chunks.
func (ix *Index) Len() int { return len(ix.chunks) }

// Sources returns the document names in the index, in load order.
func (ix *Index) Sources() []string {
	out := make([]string, len(ix.sources))
	copy(out, ix.sources)
	return out
}

// Query returns up to k chunks ranked by relevance to text. When no query
// term occurs in the index the leading chunks are returned, so callers
// always receive some context from a non-empty index.
func (ix *Index) Query(text string, k int) []Chunk {
	if k <= 0 || len(ix.chunks) == 0 {
		return nil
	}

	n := float64(len(ix.chunks))
	scores := make(map[int]float64)
	seen := make(map[string]bool)
	for _, term := range tokenize(text) {
		if seen[term] {
			continue
		}
		seen[term] = true
		plist := ix.postings[term]
		if len(plist) == 0 {
			continue
		}
		df := float64(len(plist))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		for _, p := range plist {
			tf := float64(p.freq)
			norm := 1 - bm25B + bm25B*float64(ix.lengths[p.chunk])/ix.avgLen
			scores[p.chunk] += idf * tf * (bm25K1 + 1) / (tf + bm25K1*norm)
		}
	}

	if len(scores) == 0 {
		if k > len(ix.chunks) {
			k = len(ix.chunks)
		}
		out := make([]Chunk, k)
		copy(out, ix.chunks[:k])
		return out
	}

	ranked := make([]int, 0, len(scores))
	for i := range scores {
		ranked = append(ranked, i)
	}
	sort.Slice(ranked, func(a, b int) bool {
		sa, sb := scores[ranked[a]], scores[ranked[b]]
		if sa != sb {
			return sa > sb
		}
		return ranked[a] < ranked[b]
	})
	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]Chunk, 0, k)
	for _, i := range ranked[:k] {
		out = append(out, ix.chunks[i])
	}
	return out
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"by": true, "for": true, "from": true, "in": true, "is": true, "it": true, "of": true,
	"on": true, "or": true, "that": true, "the": true, "this": true, "to": true, "with": true,
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}
