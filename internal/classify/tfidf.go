package classify

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// tfidfIndex is the statistical fallback used when no embedding engine
// is available: a bag-of-words TF-IDF index over the same texts that
// would otherwise be embedded.
type tfidfIndex struct {
	docs   []tfidfDoc
	df     map[string]int
	weight map[int]map[string]float64 // doc index -> term -> tf-idf
}

type tfidfDoc struct {
	id   string
	text string
}

func newTFIDFIndex() *tfidfIndex {
	return &tfidfIndex{df: make(map[string]int), weight: make(map[int]map[string]float64)}
}

// add indexes one document. Call finish after the last add.
func (ix *tfidfIndex) add(id, text string) {
	ix.docs = append(ix.docs, tfidfDoc{id: id, text: text})
}

// finish computes document frequencies and per-document weights.
func (ix *tfidfIndex) finish() {
	ix.df = make(map[string]int)
	counts := make([]map[string]int, len(ix.docs))
	for i, doc := range ix.docs {
		counts[i] = termCounts(doc.text)
		for term := range counts[i] {
			ix.df[term]++
		}
	}
	n := float64(len(ix.docs))
	ix.weight = make(map[int]map[string]float64, len(ix.docs))
	for i, tc := range counts {
		w := make(map[string]float64, len(tc))
		for term, count := range tc {
			idf := math.Log(1 + n/float64(ix.df[term]))
			w[term] = float64(count) * idf
		}
		ix.weight[i] = normalizeSparse(w)
	}
}

// scored is one fallback ranking hit.
type scored struct {
	ID    string
	Score float64
}

// search ranks documents by cosine similarity of TF-IDF vectors.
// Documents scoring zero are omitted.
func (ix *tfidfIndex) search(query string, topK int) []scored {
	if topK <= 0 {
		topK = 5
	}
	qCounts := termCounts(query)
	if len(qCounts) == 0 {
		return nil
	}
	n := float64(len(ix.docs))
	qw := make(map[string]float64, len(qCounts))
	for term, count := range qCounts {
		df := ix.df[term]
		if df == 0 {
			continue
		}
		qw[term] = float64(count) * math.Log(1+n/float64(df))
	}
	qw = normalizeSparse(qw)
	if len(qw) == 0 {
		return nil
	}

	results := make([]scored, 0, len(ix.docs))
	for i, doc := range ix.docs {
		score := 0.0
		for term, w := range qw {
			score += w * ix.weight[i][term]
		}
		if score > 0 {
			results = append(results, scored{ID: doc.id, Score: score})
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

func termCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, token := range tokenize(text) {
		counts[token]++
	}
	return counts
}

// tokenize lowercases and splits on anything that is not a letter or
// digit, dropping single-rune noise.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}

func normalizeSparse(w map[string]float64) map[string]float64 {
	var mag float64
	for _, v := range w {
		mag += v * v
	}
	if mag == 0 {
		return w
	}
	scale := 1.0 / math.Sqrt(mag)
	for term := range w {
		w[term] *= scale
	}
	return w
}
