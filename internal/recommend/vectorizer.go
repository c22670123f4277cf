package recommend

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// Config controls vectorization and ranking. Zero values are replaced with
// defaults by normalize().
type Config struct {
	// MaxFeatures caps the vocabulary at the top-K terms by document frequency.
	MaxFeatures int
	// NGramMin/NGramMax bound extracted n-gram lengths (1–2 by default).
	NGramMin int
	NGramMax int
	// MaxDF excludes terms appearing in more than this fraction of documents.
	MaxDF float64
	// SublinearTF replaces raw term frequency with 1 + ln(tf).
	SublinearTF bool
	// TitleWeight repeats the title this many times in the combined document,
	// weighting title terms above body terms.
	TitleWeight int
	// DuplicateThreshold: candidates scoring strictly above it are treated as
	// near-duplicates and dropped.
	DuplicateThreshold float64
	// MinSimilarity drops candidates scoring below it. Zero keeps every
	// candidate with a positive score.
	MinSimilarity float64
	// DefaultTopN/MaxTopN bound how many recommendations a request returns.
	DefaultTopN int
	MaxTopN     int
	// Hybrid blend weights (content + popularity must sum to 1).
	ContentWeight    float64
	PopularityWeight float64
}

// DefaultConfig returns the standard engine configuration.
func DefaultConfig() Config {
	return Config{
		MaxFeatures:        5000,
		NGramMin:           1,
		NGramMax:           2,
		MaxDF:              0.7,
		SublinearTF:        true,
		TitleWeight:        3,
		DuplicateThreshold: 0.98,
		MinSimilarity:      0,
		DefaultTopN:        5,
		MaxTopN:            20,
		ContentWeight:      0.7,
		PopularityWeight:   0.3,
	}
}

func (c Config) normalize() Config {
	d := DefaultConfig()
	if c.MaxFeatures <= 0 {
		c.MaxFeatures = d.MaxFeatures
	}
	if c.NGramMin <= 0 {
		c.NGramMin = d.NGramMin
	}
	if c.NGramMax < c.NGramMin {
		c.NGramMax = c.NGramMin
	}
	if c.MaxDF <= 0 || c.MaxDF > 1 {
		c.MaxDF = d.MaxDF
	}
	if c.TitleWeight <= 0 {
		c.TitleWeight = d.TitleWeight
	}
	if c.DuplicateThreshold <= 0 {
		c.DuplicateThreshold = d.DuplicateThreshold
	}
	if c.DefaultTopN <= 0 {
		c.DefaultTopN = d.DefaultTopN
	}
	if c.MaxTopN <= 0 {
		c.MaxTopN = d.MaxTopN
	}
	if c.ContentWeight <= 0 && c.PopularityWeight <= 0 {
		c.ContentWeight = d.ContentWeight
		c.PopularityWeight = d.PopularityWeight
	}
	return c
}

// vector is a sparse L2-normalized feature vector. Indices are strictly
// ascending so that cosine similarity is a single merge walk.
type vector struct {
	indices []int
	values  []float64
}

func (v vector) isZero() bool {
	return len(v.indices) == 0
}

// dot returns the dot product of two sparse vectors. Both sides are
// L2-normalized, so this is their cosine similarity.
func dot(a, b vector) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(a.indices) && j < len(b.indices) {
		switch {
		case a.indices[i] == b.indices[j]:
			sum += a.values[i] * b.values[j]
			i++
			j++
		case a.indices[i] < b.indices[j]:
			i++
		default:
			j++
		}
	}
	return sum
}

// vectorizer builds TF-IDF vectors over a fixed corpus. Fit selects the
// vocabulary; transform projects a document onto it. A vectorizer is
// immutable after Fit and safe for concurrent transform calls.
type vectorizer struct {
	cfg   Config
	vocab map[string]int // term -> feature index
	idf   []float64      // indexed by feature index
}

func newVectorizer(cfg Config) *vectorizer {
	return &vectorizer{cfg: cfg, vocab: make(map[string]int)}
}

// fit builds the vocabulary from the corpus: document frequency per term,
// MaxDF filtering, then the top MaxFeatures terms by document frequency
// with lexicographic tie-breaking. An empty corpus yields an empty
// vocabulary; a single-document corpus is legal.
func (v *vectorizer) fit(docs []string) {
	n := len(docs)
	if n == 0 {
		return
	}

	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, term := range extractTerms(doc, v.cfg.NGramMin, v.cfg.NGramMax) {
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			df[term]++
		}
	}

	// MaxDF prunes boilerplate terms; only meaningful with more than one doc.
	maxDF := n
	if n > 1 {
		maxDF = int(v.cfg.MaxDF * float64(n))
		if maxDF < 1 {
			maxDF = 1
		}
	}

	type termDF struct {
		term string
		df   int
	}
	candidates := make([]termDF, 0, len(df))
	for term, count := range df {
		if count > maxDF {
			continue
		}
		candidates = append(candidates, termDF{term: term, df: count})
	}

	// Stable selection: document frequency descending, then lexicographic.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].df != candidates[j].df {
			return candidates[i].df > candidates[j].df
		}
		return candidates[i].term < candidates[j].term
	})
	if len(candidates) > v.cfg.MaxFeatures {
		candidates = candidates[:v.cfg.MaxFeatures]
	}

	// Feature indices follow lexicographic term order so vectors come out
	// with ascending indices for free.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].term < candidates[j].term
	})

	v.idf = make([]float64, len(candidates))
	for i, c := range candidates {
		v.vocab[c.term] = i
		// Smoothed IDF: never zero, tolerates terms in every document.
		v.idf[i] = math.Log(float64(1+n)/float64(1+c.df)) + 1
	}
}

// transform projects a document onto the fitted vocabulary and returns its
// L2-normalized TF-IDF vector. Documents with no in-vocabulary terms yield
// a zero vector.
func (v *vectorizer) transform(doc string) vector {
	if len(v.vocab) == 0 {
		return vector{}
	}

	counts := make(map[int]int)
	for _, term := range extractTerms(doc, v.cfg.NGramMin, v.cfg.NGramMax) {
		if idx, ok := v.vocab[term]; ok {
			counts[idx]++
		}
	}
	if len(counts) == 0 {
		return vector{}
	}

	indices := make([]int, 0, len(counts))
	for idx := range counts {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	values := make([]float64, len(indices))
	var normSq float64
	for i, idx := range indices {
		tf := float64(counts[idx])
		if v.cfg.SublinearTF {
			tf = 1 + math.Log(tf)
		}
		w := tf * v.idf[idx]
		values[i] = w
		normSq += w * w
	}

	norm := math.Sqrt(normSq)
	if norm == 0 {
		return vector{}
	}
	for i := range values {
		values[i] /= norm
	}
	return vector{indices: indices, values: values}
}

// vocabularySize reports the number of fitted features.
func (v *vectorizer) vocabularySize() int {
	return len(v.vocab)
}

// extractTerms tokenizes text and emits n-grams in the configured range.
// Tokens are lowercased runs of letters/digits at least two characters
// long; stop words are excluded from unigrams and n-gram composition.
func extractTerms(text string, nMin, nMax int) []string {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	var terms []string
	for n := nMin; n <= nMax; n++ {
		if n == 1 {
			terms = append(terms, tokens...)
			continue
		}
		for i := 0; i+n <= len(tokens); i++ {
			terms = append(terms, strings.Join(tokens[i:i+n], " "))
		}
	}
	return terms
}

func tokenize(text string) []string {
	var tokens []string
	var b strings.Builder
	runes := 0
	flush := func() {
		tok := b.String()
		b.Reset()
		if runes < 2 {
			runes = 0
			return
		}
		runes = 0
		if !isStopWord(tok) {
			tokens = append(tokens, tok)
		}
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			runes++
			continue
		}
		flush()
	}
	flush()
	return tokens
}
