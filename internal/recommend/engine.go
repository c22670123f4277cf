// Package recommend implements the content-based recommendation engine:
// TF-IDF vectorization over article title+content, cosine-similarity
// ranking with near-duplicate filtering, and an optional popularity-blended
// hybrid mode.
//
// The engine operates on immutable corpus snapshots. Rebuild constructs a
// complete new Index and swaps it in atomically, so concurrent Recommend
// calls always observe either the old or the new snapshot, never a partial
// one. Scoring does no I/O.
package recommend

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrNotFound is returned when the requested article is absent from the
// current index.
var ErrNotFound = errors.New("article not found in recommendation index")

// Article is the corpus view of a stored article. Content and PublishedAt
// may be absent; an article whose combined title+content is empty stays in
// the corpus with a degenerate zero vector and is never surfaced.
type Article struct {
	ID          int64
	Title       string
	Content     string
	Category    string
	Source      string
	PublishedAt *time.Time
}

// InteractionStats feeds popularity scoring. See Source.
type InteractionStats struct {
	ArticleID int64
	Views     int
	Clicks    int
	AvgRating float64
}

// Source supplies the corpus and interaction aggregates for index builds.
type Source interface {
	Articles(ctx context.Context) ([]Article, error)
	InteractionStats(ctx context.Context) ([]InteractionStats, error)
}

// Recommendation is a single ranked neighbor.
type Recommendation struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Category    string     `json:"category"`
	Source      string     `json:"source"`
	Similarity  float64    `json:"similarity"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Index is an immutable snapshot of the vectorized corpus.
type Index struct {
	cfg        Config
	articles   []Article // ascending ID order
	vectors    []vector
	byID       map[int64]int
	popularity map[int64]float64
	builtAt    time.Time
	vocabSize  int
}

// BuildIndex vectorizes the corpus and computes popularity scores.
// Articles are sorted by ascending ID before fitting so the vocabulary and
// vectors are reproducible regardless of input order.
func BuildIndex(articles []Article, stats []InteractionStats, cfg Config) *Index {
	cfg = cfg.normalize()

	sorted := make([]Article, len(articles))
	copy(sorted, articles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	docs := make([]string, len(sorted))
	for i, a := range sorted {
		docs[i] = combineText(a, cfg.TitleWeight)
	}

	vec := newVectorizer(cfg)
	vec.fit(docs)

	idx := &Index{
		cfg:        cfg,
		articles:   sorted,
		vectors:    make([]vector, len(sorted)),
		byID:       make(map[int64]int, len(sorted)),
		popularity: popularityScores(sorted, stats),
		builtAt:    time.Now().UTC(),
		vocabSize:  vec.vocabularySize(),
	}
	for i, doc := range docs {
		idx.vectors[i] = vec.transform(doc)
		idx.byID[sorted[i].ID] = i
	}
	return idx
}

// combineText builds the document fed to the vectorizer. The title is
// repeated titleWeight times so title terms outweigh body terms.
func combineText(a Article, titleWeight int) string {
	var b strings.Builder
	title := strings.TrimSpace(a.Title)
	if title != "" {
		for i := 0; i < titleWeight; i++ {
			b.WriteString(title)
			b.WriteByte(' ')
		}
	}
	b.WriteString(a.Content)
	return strings.TrimSpace(b.String())
}

// Size reports the number of articles in the snapshot.
func (idx *Index) Size() int {
	return len(idx.articles)
}

// VocabularySize reports the fitted feature count.
func (idx *Index) VocabularySize() int {
	return idx.vocabSize
}

// BuiltAt reports when the snapshot was constructed.
func (idx *Index) BuiltAt() time.Time {
	return idx.builtAt
}

// Article returns the snapshot's copy of an article by ID.
func (idx *Index) Article(id int64) (Article, bool) {
	pos, ok := idx.byID[id]
	if !ok {
		return Article{}, false
	}
	return idx.articles[pos], true
}

type candidate struct {
	pos   int
	score float64
}

// neighbors scores every other article against the target and returns
// candidates filtered by the near-duplicate threshold and minimum
// similarity, sorted by score descending with ascending-ID tie-break.
func (idx *Index) neighbors(id int64) ([]candidate, error) {
	pos, ok := idx.byID[id]
	if !ok {
		return nil, ErrNotFound
	}

	target := idx.vectors[pos]
	if target.isZero() {
		// Degenerate target: nothing can meaningfully match it.
		return nil, nil
	}

	var candidates []candidate
	for i := range idx.vectors {
		if i == pos {
			continue
		}
		score := dot(target, idx.vectors[i])
		if score <= 0 {
			continue // degenerate or orthogonal candidates are never surfaced
		}
		if score > idx.cfg.DuplicateThreshold {
			continue // near-duplicate, not a recommendation
		}
		if score < idx.cfg.MinSimilarity {
			continue
		}
		candidates = append(candidates, candidate{pos: i, score: score})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return idx.articles[candidates[i].pos].ID < idx.articles[candidates[j].pos].ID
	})
	return candidates, nil
}

// Recommend returns the top-N most similar articles to the target.
// An empty index returns an empty list; an unknown ID returns ErrNotFound.
func (idx *Index) Recommend(id int64, topN int) ([]Recommendation, error) {
	topN = idx.clampTopN(topN)

	if len(idx.articles) == 0 {
		return []Recommendation{}, nil
	}

	candidates, err := idx.neighbors(id)
	if err != nil {
		return nil, err
	}
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}

	recs := make([]Recommendation, 0, len(candidates))
	for _, c := range candidates {
		recs = append(recs, idx.toRecommendation(c.pos, c.score))
	}
	return recs, nil
}

// RecommendHybrid blends content similarity with interaction popularity:
// candidates come from a 3x topN content pool, content scores are
// normalized by the pool maximum, and the final score is
// ContentWeight*content + PopularityWeight*popularity.
func (idx *Index) RecommendHybrid(id int64, topN int) ([]Recommendation, error) {
	topN = idx.clampTopN(topN)

	if len(idx.articles) == 0 {
		return []Recommendation{}, nil
	}

	candidates, err := idx.neighbors(id)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []Recommendation{}, nil
	}
	if pool := topN * 3; len(candidates) > pool {
		candidates = candidates[:pool]
	}

	maxScore := candidates[0].score // candidates are sorted descending
	type hybridCandidate struct {
		pos   int
		score float64
	}
	hybrid := make([]hybridCandidate, len(candidates))
	for i, c := range candidates {
		content := 0.0
		if maxScore > 0 {
			content = c.score / maxScore
		}
		pop, ok := idx.popularity[idx.articles[c.pos].ID]
		if !ok {
			pop = coldArticleScore
		}
		hybrid[i] = hybridCandidate{
			pos:   c.pos,
			score: idx.cfg.ContentWeight*content + idx.cfg.PopularityWeight*pop,
		}
	}

	sort.Slice(hybrid, func(i, j int) bool {
		if hybrid[i].score != hybrid[j].score {
			return hybrid[i].score > hybrid[j].score
		}
		return idx.articles[hybrid[i].pos].ID < idx.articles[hybrid[j].pos].ID
	})
	if len(hybrid) > topN {
		hybrid = hybrid[:topN]
	}

	recs := make([]Recommendation, 0, len(hybrid))
	for _, c := range hybrid {
		recs = append(recs, idx.toRecommendation(c.pos, c.score))
	}
	return recs, nil
}

func (idx *Index) clampTopN(topN int) int {
	if topN <= 0 {
		return idx.cfg.DefaultTopN
	}
	if topN > idx.cfg.MaxTopN {
		return idx.cfg.MaxTopN
	}
	return topN
}

func (idx *Index) toRecommendation(pos int, score float64) Recommendation {
	a := idx.articles[pos]
	return Recommendation{
		ID:          a.ID,
		Title:       a.Title,
		Category:    a.Category,
		Source:      a.Source,
		Similarity:  roundScore(score),
		PublishedAt: a.PublishedAt,
	}
}

// roundScore rounds a similarity to 4 decimal places for output. Filtering
// and ordering always operate on raw scores.
func roundScore(s float64) float64 {
	return math.Round(s*10000) / 10000
}

// Engine serves recommendations over the current corpus snapshot and
// rebuilds it on demand.
type Engine struct {
	cfg    Config
	source Source
	idx    atomic.Pointer[Index]
	group  singleflight.Group
}

// NewEngine creates an Engine with an empty snapshot. Call Rebuild before
// serving recommendations.
func NewEngine(source Source, cfg Config) *Engine {
	e := &Engine{cfg: cfg.normalize(), source: source}
	e.idx.Store(BuildIndex(nil, nil, e.cfg))
	return e
}

// Rebuild loads the corpus from the source, builds a fresh Index, and swaps
// it in atomically. Concurrent calls are coalesced into a single build.
// Returns the article count of the new snapshot.
func (e *Engine) Rebuild(ctx context.Context) (int, error) {
	v, err, _ := e.group.Do("rebuild", func() (interface{}, error) {
		articles, err := e.source.Articles(ctx)
		if err != nil {
			return 0, err
		}
		stats, err := e.source.InteractionStats(ctx)
		if err != nil {
			return 0, err
		}
		idx := BuildIndex(articles, stats, e.cfg)
		e.idx.Store(idx)
		return idx.Size(), nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// Snapshot returns the current index. Never nil.
func (e *Engine) Snapshot() *Index {
	return e.idx.Load()
}

// Recommend ranks neighbors of the target article on the current snapshot.
func (e *Engine) Recommend(id int64, topN int) ([]Recommendation, error) {
	return e.Snapshot().Recommend(id, topN)
}

// RecommendHybrid ranks neighbors using the hybrid content+popularity score.
func (e *Engine) RecommendHybrid(id int64, topN int) ([]Recommendation, error) {
	return e.Snapshot().RecommendHybrid(id, topN)
}
