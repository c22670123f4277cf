package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Article is a stored news article. Content, Author, and PublishedAt come
// from upstream feeds and may be absent.
type Article struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Content     string     `json:"content,omitempty"`
	Category    string     `json:"category"`
	Source      string     `json:"source"`
	Author      string     `json:"author,omitempty"`
	URL         string     `json:"url"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ArticleFilter narrows ListArticles and CountArticles.
type ArticleFilter struct {
	Category string // exact match, empty = all
	Search   string // case-insensitive substring match on title
	Limit    int
	Offset   int
}

// Interaction records a user action against an article. Rating is nil
// unless the interaction carried one (1–5).
type Interaction struct {
	ID              int64
	UserID          string
	ArticleID       int64
	InteractionType string // "view", "click", "like", "dislike"
	Rating          *float64
	CreatedAt       time.Time
}

// ArticleStats aggregates interactions per article for popularity scoring.
type ArticleStats struct {
	ArticleID int64
	Views     int
	Clicks    int
	AvgRating float64 // missing ratings count as 3 (neutral)
}

// Stats summarizes the article corpus.
type Stats struct {
	TotalArticles int            `json:"total_articles"`
	Categories    map[string]int `json:"categories"`
	Sources       int            `json:"sources"`
}

// Job is a queued unit of background work.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
