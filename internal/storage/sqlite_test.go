package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testArticle(n int) Article {
	published := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Hour)
	return Article{
		Title:       fmt.Sprintf("Headline %d", n),
		Description: fmt.Sprintf("Description %d", n),
		Content:     fmt.Sprintf("Body of article %d", n),
		Category:    "technology",
		Source:      "Example News",
		Author:      "Staff",
		URL:         fmt.Sprintf("https://example.com/articles/%d", n),
		PublishedAt: &published,
	}
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the migration is not re-applied.
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestUpsertArticleInsertAndUpdate(t *testing.T) {
	s := openTestStore(t)

	a := testArticle(1)
	id1, err := s.UpsertArticle(a)
	if err != nil {
		t.Fatalf("UpsertArticle: %v", err)
	}

	// Same URL with a new title must update in place, not duplicate.
	a.Title = "Updated headline"
	id2, err := s.UpsertArticle(a)
	if err != nil {
		t.Fatalf("second UpsertArticle: %v", err)
	}
	if id1 != id2 {
		t.Errorf("upsert by URL created a new row: id %d -> %d", id1, id2)
	}

	got, err := s.GetArticle(id1)
	if err != nil {
		t.Fatalf("GetArticle: %v", err)
	}
	if got.Title != "Updated headline" {
		t.Errorf("Title = %q, want updated value", got.Title)
	}
	if got.URL != a.URL {
		t.Errorf("URL = %q, want %q", got.URL, a.URL)
	}
	if got.PublishedAt == nil || !got.PublishedAt.Equal(*a.PublishedAt) {
		t.Errorf("PublishedAt = %v, want %v", got.PublishedAt, a.PublishedAt)
	}
}

func TestGetArticleNotFound(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetArticle(12345); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetArticle(missing) error = %v, want ErrNotFound", err)
	}
}

func TestListArticlesFilterAndPaging(t *testing.T) {
	s := openTestStore(t)

	for i := 1; i <= 5; i++ {
		a := testArticle(i)
		if i%2 == 0 {
			a.Category = "sports"
		}
		if _, err := s.UpsertArticle(a); err != nil {
			t.Fatalf("UpsertArticle(%d): %v", i, err)
		}
	}

	all, err := s.ListArticles(ArticleFilter{Limit: 10})
	if err != nil {
		t.Fatalf("ListArticles: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 articles, got %d", len(all))
	}
	// Newest published first.
	for i := 1; i < len(all); i++ {
		if all[i].PublishedAt.After(*all[i-1].PublishedAt) {
			t.Errorf("articles not ordered newest first")
		}
	}

	sports, err := s.ListArticles(ArticleFilter{Category: "sports", Limit: 10})
	if err != nil {
		t.Fatalf("ListArticles(sports): %v", err)
	}
	if len(sports) != 2 {
		t.Errorf("expected 2 sports articles, got %d", len(sports))
	}

	count, err := s.CountArticles(ArticleFilter{Category: "sports"})
	if err != nil {
		t.Fatalf("CountArticles: %v", err)
	}
	if count != 2 {
		t.Errorf("CountArticles(sports) = %d, want 2", count)
	}

	page, err := s.ListArticles(ArticleFilter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("ListArticles(page 2): %v", err)
	}
	if len(page) != 2 {
		t.Errorf("expected 2 articles on page 2, got %d", len(page))
	}

	found, err := s.ListArticles(ArticleFilter{Search: "Headline 3", Limit: 10})
	if err != nil {
		t.Fatalf("ListArticles(search): %v", err)
	}
	if len(found) != 1 || found[0].Title != "Headline 3" {
		t.Errorf("search returned %v, want the single matching article", found)
	}
}

func TestAllArticlesAscendingID(t *testing.T) {
	s := openTestStore(t)

	for i := 1; i <= 3; i++ {
		if _, err := s.UpsertArticle(testArticle(i)); err != nil {
			t.Fatalf("UpsertArticle: %v", err)
		}
	}

	all, err := s.AllArticles()
	if err != nil {
		t.Fatalf("AllArticles: %v", err)
	}
	for i := 1; i < len(all); i++ {
		if all[i].ID <= all[i-1].ID {
			t.Errorf("AllArticles not in ascending ID order: %d after %d", all[i].ID, all[i-1].ID)
		}
	}
}

func TestGetStats(t *testing.T) {
	s := openTestStore(t)

	for i := 1; i <= 4; i++ {
		a := testArticle(i)
		if i > 2 {
			a.Category = "health"
			a.Source = "Other Source"
		}
		if _, err := s.UpsertArticle(a); err != nil {
			t.Fatalf("UpsertArticle: %v", err)
		}
	}

	stats, err := s.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.TotalArticles != 4 {
		t.Errorf("TotalArticles = %d, want 4", stats.TotalArticles)
	}
	if stats.Categories["technology"] != 2 || stats.Categories["health"] != 2 {
		t.Errorf("Categories = %v", stats.Categories)
	}
	if stats.Sources != 2 {
		t.Errorf("Sources = %d, want 2", stats.Sources)
	}
}

func TestInteractionStatsAggregation(t *testing.T) {
	s := openTestStore(t)

	id, err := s.UpsertArticle(testArticle(1))
	if err != nil {
		t.Fatalf("UpsertArticle: %v", err)
	}

	rating := 5.0
	interactions := []Interaction{
		{ArticleID: id, InteractionType: "view"},
		{ArticleID: id, InteractionType: "view"},
		{ArticleID: id, InteractionType: "click"},
		{ArticleID: id, InteractionType: "like", Rating: &rating},
	}
	for _, i := range interactions {
		if err := s.SaveInteraction(i); err != nil {
			t.Fatalf("SaveInteraction: %v", err)
		}
	}

	stats, err := s.InteractionStats()
	if err != nil {
		t.Fatalf("InteractionStats: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("expected stats for 1 article, got %d", len(stats))
	}
	st := stats[0]
	if st.ArticleID != id {
		t.Errorf("ArticleID = %d, want %d", st.ArticleID, id)
	}
	if st.Views != 2 {
		t.Errorf("Views = %d, want 2", st.Views)
	}
	if st.Clicks != 1 {
		t.Errorf("Clicks = %d, want 1", st.Clicks)
	}
	// Unrated interactions count as neutral 3: (3+3+3+5)/4 = 3.5
	if st.AvgRating != 3.5 {
		t.Errorf("AvgRating = %v, want 3.5", st.AvgRating)
	}
}

func TestJobQueueLifecycle(t *testing.T) {
	s := openTestStore(t)

	job := Job{ID: "job-1", Type: "fetch_category", PayloadJSON: `{"category":"science"}`}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	claimed, err := s.ClaimNextJob([]string{"fetch_category"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if claimed == nil {
		t.Fatal("expected to claim the pending job")
	}
	if claimed.ID != "job-1" || claimed.Status != "running" {
		t.Errorf("claimed job = %+v", claimed)
	}

	// A running job must not be claimable again.
	again, err := s.ClaimNextJob([]string{"fetch_category"})
	if err != nil {
		t.Fatalf("second ClaimNextJob: %v", err)
	}
	if again != nil {
		t.Errorf("claimed an already-running job: %+v", again)
	}

	if err := s.CompleteJob("job-1"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
}

func TestJobQueueFIFO(t *testing.T) {
	s := openTestStore(t)

	for i := 1; i <= 3; i++ {
		job := Job{
			ID:        fmt.Sprintf("job-%d", i),
			Type:      "fetch_category",
			CreatedAt: time.Now().UTC(),
		}
		if err := s.EnqueueJob(job); err != nil {
			t.Fatalf("EnqueueJob: %v", err)
		}
		// RFC3339 has second resolution; force distinct created_at values.
		if _, err := s.db.Exec(`UPDATE jobs SET created_at = ? WHERE id = ?`,
			time.Now().UTC().Add(time.Duration(i)*time.Second).Format(time.RFC3339), job.ID); err != nil {
			t.Fatalf("adjusting created_at: %v", err)
		}
		if _, err := s.db.Exec(`UPDATE jobs SET run_after = created_at WHERE id = ?`, job.ID); err != nil {
			t.Fatalf("adjusting run_after: %v", err)
		}
	}
	// Make all three immediately runnable while preserving relative order.
	if _, err := s.db.Exec(`UPDATE jobs SET run_after = ?`, time.Now().UTC().Add(-time.Minute).Format(time.RFC3339)); err != nil {
		t.Fatalf("resetting run_after: %v", err)
	}

	for i := 1; i <= 3; i++ {
		claimed, err := s.ClaimNextJob([]string{"fetch_category"})
		if err != nil {
			t.Fatalf("ClaimNextJob: %v", err)
		}
		if claimed == nil {
			t.Fatalf("expected job %d to be claimable", i)
		}
		want := fmt.Sprintf("job-%d", i)
		if claimed.ID != want {
			t.Errorf("claim order: got %s, want %s", claimed.ID, want)
		}
		if err := s.CompleteJob(claimed.ID); err != nil {
			t.Fatalf("CompleteJob: %v", err)
		}
	}
}

func TestFailJobRetriesWithBackoff(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "flaky", Type: "fetch_category", MaxAttempts: 2}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	claimed, err := s.ClaimNextJob([]string{"fetch_category"})
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNextJob: %v, %v", claimed, err)
	}

	if err := s.FailJob("flaky", "network timeout"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	// Back in pending but deferred into the future, so not yet claimable.
	again, err := s.ClaimNextJob([]string{"fetch_category"})
	if err != nil {
		t.Fatalf("ClaimNextJob after fail: %v", err)
	}
	if again != nil {
		t.Errorf("job claimable before its backoff expired: %+v", again)
	}

	var status string
	var attempts int
	var lastError string
	if err := s.db.QueryRow(`SELECT status, attempts, last_error FROM jobs WHERE id = 'flaky'`).
		Scan(&status, &attempts, &lastError); err != nil {
		t.Fatalf("inspecting job: %v", err)
	}
	if status != "pending" || attempts != 1 || lastError != "network timeout" {
		t.Errorf("after first failure: status=%q attempts=%d last_error=%q", status, attempts, lastError)
	}

	// Second failure exhausts max_attempts.
	if _, err := s.db.Exec(`UPDATE jobs SET run_after = ?, status = 'running' WHERE id = 'flaky'`,
		time.Now().UTC().Add(-time.Minute).Format(time.RFC3339)); err != nil {
		t.Fatalf("forcing job runnable: %v", err)
	}
	if err := s.FailJob("flaky", "network timeout again"); err != nil {
		t.Fatalf("second FailJob: %v", err)
	}
	if err := s.db.QueryRow(`SELECT status FROM jobs WHERE id = 'flaky'`).Scan(&status); err != nil {
		t.Fatalf("inspecting job: %v", err)
	}
	if status != "failed" {
		t.Errorf("status after exhausting attempts = %q, want failed", status)
	}
}

func TestFailJobNotFound(t *testing.T) {
	s := openTestStore(t)

	if err := s.FailJob("ghost", "boom"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FailJob(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.CompleteJob("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteJob(missing) error = %v, want ErrNotFound", err)
	}
}
