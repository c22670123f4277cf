package recommend

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"sync"
	"testing"
)

func testConfig() Config {
	cfg := DefaultConfig()
	// Small corpora would otherwise prune every shared term.
	cfg.MaxDF = 1.0
	return cfg
}

func testCorpus() []Article {
	return []Article{
		{ID: 1, Title: "Solar panels cut energy bills", Content: "Homeowners installing solar panels report lower energy bills and growing savings."},
		{ID: 2, Title: "Wind turbines expand offshore", Content: "Offshore wind turbines deliver clean energy to coastal cities at record scale."},
		{ID: 3, Title: "Solar energy adoption accelerates", Content: "Solar energy adoption accelerates as panel prices fall and energy bills climb."},
		{ID: 4, Title: "Parliament debates budget amendments", Content: "Lawmakers argued over budget amendments in a marathon parliament session."},
		{ID: 5, Title: "Championship final goes to penalties", Content: "The championship final was decided on penalties after a goalless draw."},
	}
}

func TestRecommendExcludesSelf(t *testing.T) {
	idx := BuildIndex(testCorpus(), nil, testConfig())

	recs, err := idx.Recommend(1, 10)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	for _, r := range recs {
		if r.ID == 1 {
			t.Error("target article appeared in its own recommendations")
		}
	}
}

func TestRecommendExcludesNearDuplicates(t *testing.T) {
	articles := testCorpus()
	// Exact copy of article 1 under a different ID: cosine 1.0, above the
	// duplicate threshold.
	articles = append(articles, Article{ID: 6, Title: articles[0].Title, Content: articles[0].Content})

	idx := BuildIndex(articles, nil, testConfig())

	recs, err := idx.Recommend(1, 10)
	if err != nil {
		t.Fatalf("Recommend(1): %v", err)
	}
	for _, r := range recs {
		if r.ID == 6 {
			t.Error("near-duplicate surfaced as a recommendation")
		}
	}

	// Symmetric: the copy must not recommend the original either.
	recs, err = idx.Recommend(6, 10)
	if err != nil {
		t.Fatalf("Recommend(6): %v", err)
	}
	for _, r := range recs {
		if r.ID == 1 {
			t.Error("near-duplicate exclusion is not symmetric")
		}
	}
}

func TestRecommendSortedWithTieBreak(t *testing.T) {
	cfg := testConfig()
	articles := []Article{
		{ID: 1, Title: "Solar panels", Content: "solar panels energy"},
		// 3 and 2 carry identical text, so they score identically against 1;
		// ascending ID must decide their order.
		{ID: 3, Title: "Solar panels research", Content: "solar panels research"},
		{ID: 2, Title: "Solar panels research", Content: "solar panels research"},
	}

	idx := BuildIndex(articles, nil, cfg)
	recs, err := idx.Recommend(1, 10)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}

	for i := 1; i < len(recs); i++ {
		if recs[i].Similarity > recs[i-1].Similarity {
			t.Errorf("recommendations not sorted descending: %v then %v", recs[i-1].Similarity, recs[i].Similarity)
		}
		if recs[i].Similarity == recs[i-1].Similarity && recs[i].ID < recs[i-1].ID {
			t.Errorf("tie not broken by ascending ID: %d before %d", recs[i-1].ID, recs[i].ID)
		}
	}
	if len(recs) == 2 && recs[0].ID != 2 {
		t.Errorf("expected article 2 first on the tie, got %d", recs[0].ID)
	}
}

func TestRecommendTopNClamping(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultTopN = 2
	cfg.MaxTopN = 3

	idx := BuildIndex(testCorpus(), nil, cfg)

	recs, err := idx.Recommend(1, 0)
	if err != nil {
		t.Fatalf("Recommend(topN=0): %v", err)
	}
	if len(recs) > 2 {
		t.Errorf("topN=0 should use the default of 2, got %d results", len(recs))
	}

	recs, err = idx.Recommend(1, 100)
	if err != nil {
		t.Fatalf("Recommend(topN=100): %v", err)
	}
	if len(recs) > 3 {
		t.Errorf("topN=100 should be capped at 3, got %d results", len(recs))
	}
}

func TestRecommendDeterministic(t *testing.T) {
	corpus := testCorpus()

	idx := BuildIndex(corpus, nil, testConfig())
	want, err := idx.Recommend(1, 10)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 5; trial++ {
		shuffled := make([]Article, len(corpus))
		copy(shuffled, corpus)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		got, err := BuildIndex(shuffled, nil, testConfig()).Recommend(1, 10)
		if err != nil {
			t.Fatalf("Recommend (shuffled): %v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("recommendations depend on insertion order:\ngot  %v\nwant %v", got, want)
		}
	}
}

func TestRecommendScoresRounded(t *testing.T) {
	idx := BuildIndex(testCorpus(), nil, testConfig())

	recs, err := idx.Recommend(1, 10)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	for _, r := range recs {
		if r.Similarity <= 0 || r.Similarity > 1 {
			t.Errorf("similarity %v outside (0, 1]", r.Similarity)
		}
		if rounded := roundScore(r.Similarity); rounded != r.Similarity {
			t.Errorf("similarity %v not rounded to 4 decimal places", r.Similarity)
		}
	}
}

func TestRecommendSingleArticle(t *testing.T) {
	idx := BuildIndex([]Article{{ID: 1, Title: "Lonely", Content: "only article here"}}, nil, testConfig())

	recs, err := idx.Recommend(1, 5)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("single-article corpus should yield no recommendations, got %d", len(recs))
	}
}

func TestRecommendUnknownID(t *testing.T) {
	idx := BuildIndex(testCorpus(), nil, testConfig())

	if _, err := idx.Recommend(999, 5); !errors.Is(err, ErrNotFound) {
		t.Errorf("Recommend(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestRecommendEmptyCorpus(t *testing.T) {
	idx := BuildIndex(nil, nil, testConfig())

	recs, err := idx.Recommend(1, 5)
	if err != nil {
		t.Fatalf("Recommend on empty corpus: %v", err)
	}
	if recs == nil || len(recs) != 0 {
		t.Errorf("empty corpus should yield an empty (non-nil) list, got %#v", recs)
	}
}

func TestRecommendZeroVectorTarget(t *testing.T) {
	articles := testCorpus()
	// Stop words and single characters only: vectorizes to nothing.
	articles = append(articles, Article{ID: 7, Title: "", Content: "the of a an to"})

	idx := BuildIndex(articles, nil, testConfig())
	recs, err := idx.Recommend(7, 5)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("degenerate target should yield no recommendations, got %d", len(recs))
	}
}

func TestRecommendHybridFavorsPopular(t *testing.T) {
	cfg := testConfig()
	articles := []Article{
		{ID: 1, Title: "Solar panels", Content: "solar panels energy"},
		// Identical text: content scores against 1 tie exactly, leaving
		// popularity to decide.
		{ID: 2, Title: "Solar panels research", Content: "solar panels research"},
		{ID: 3, Title: "Solar panels research", Content: "solar panels research"},
	}
	stats := []InteractionStats{
		{ArticleID: 3, Views: 100, Clicks: 50, AvgRating: 4.5},
		{ArticleID: 2, Views: 1, Clicks: 0, AvgRating: 3},
	}

	idx := BuildIndex(articles, stats, cfg)
	recs, err := idx.RecommendHybrid(1, 2)
	if err != nil {
		t.Fatalf("RecommendHybrid: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 recommendations, got %d", len(recs))
	}
	if recs[0].ID != 3 {
		t.Errorf("popular article should rank first, got order %d, %d", recs[0].ID, recs[1].ID)
	}
}

func TestRecommendHybridUnknownID(t *testing.T) {
	idx := BuildIndex(testCorpus(), nil, testConfig())

	if _, err := idx.RecommendHybrid(999, 5); !errors.Is(err, ErrNotFound) {
		t.Errorf("RecommendHybrid(unknown) error = %v, want ErrNotFound", err)
	}
}

type staticSource struct {
	mu       sync.Mutex
	articles []Article
	stats    []InteractionStats
}

func (s *staticSource) Articles(ctx context.Context) ([]Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Article(nil), s.articles...), nil
}

func (s *staticSource) InteractionStats(ctx context.Context) ([]InteractionStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]InteractionStats(nil), s.stats...), nil
}

func (s *staticSource) set(articles []Article) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.articles = articles
}

func TestEngineRebuildSwapsSnapshot(t *testing.T) {
	src := &staticSource{articles: testCorpus()}
	eng := NewEngine(src, testConfig())

	if eng.Snapshot().Size() != 0 {
		t.Fatal("engine should start with an empty snapshot")
	}

	count, err := eng.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if count != 5 {
		t.Errorf("Rebuild count = %d, want 5", count)
	}
	if eng.Snapshot().Size() != 5 {
		t.Errorf("snapshot size = %d, want 5", eng.Snapshot().Size())
	}

	src.set(testCorpus()[:2])
	if _, err := eng.Rebuild(context.Background()); err != nil {
		t.Fatalf("second Rebuild: %v", err)
	}
	if eng.Snapshot().Size() != 2 {
		t.Errorf("snapshot size after shrink = %d, want 2", eng.Snapshot().Size())
	}
}

func TestEngineRebuildError(t *testing.T) {
	srcErr := errors.New("source unavailable")
	eng := NewEngine(failingSource{err: srcErr}, testConfig())

	if _, err := eng.Rebuild(context.Background()); !errors.Is(err, srcErr) {
		t.Errorf("Rebuild error = %v, want %v", err, srcErr)
	}
	// The empty initial snapshot must survive a failed rebuild.
	if eng.Snapshot() == nil {
		t.Fatal("snapshot became nil after failed rebuild")
	}
}

type failingSource struct{ err error }

func (f failingSource) Articles(ctx context.Context) ([]Article, error) {
	return nil, f.err
}

func (f failingSource) InteractionStats(ctx context.Context) ([]InteractionStats, error) {
	return nil, f.err
}

func TestEngineConcurrentRecommendAndRebuild(t *testing.T) {
	src := &staticSource{articles: testCorpus()}
	eng := NewEngine(src, testConfig())
	if _, err := eng.Rebuild(context.Background()); err != nil {
		t.Fatalf("initial Rebuild: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := eng.Recommend(1, 5); err != nil && !errors.Is(err, ErrNotFound) {
					t.Errorf("concurrent Recommend: %v", err)
					return
				}
			}
		}()
	}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if _, err := eng.Rebuild(context.Background()); err != nil {
					t.Errorf("concurrent Rebuild: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestIndexArticleLookup(t *testing.T) {
	idx := BuildIndex(testCorpus(), nil, testConfig())

	a, ok := idx.Article(3)
	if !ok {
		t.Fatal("Article(3) not found")
	}
	if a.Title != "Solar energy adoption accelerates" {
		t.Errorf("Article(3).Title = %q", a.Title)
	}

	if _, ok := idx.Article(999); ok {
		t.Error("Article(999) should not be found")
	}
}
