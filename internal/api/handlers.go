// Package api exposes the REST and MCP surfaces of the recommendation
// service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mpetrov/newsrec/internal/ingest"
	"github.com/mpetrov/newsrec/internal/recommend"
	"github.com/mpetrov/newsrec/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds handler dependencies.
type Deps struct {
	Store      *storage.Store
	Engine     *recommend.Engine
	AdminToken string
	Categories []string
}

// NewHandler builds the HTTP router: public read endpoints, interaction
// tracking, and bearer-protected admin operations.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/articles", handleListArticles(deps))
	r.Get("/articles/{id}", handleGetArticle(deps))
	r.Get("/recommend/{id}", handleRecommend(deps))
	r.Get("/stats", handleStats(deps))
	r.Post("/track", handleTrack(deps))

	r.Route("/admin", func(r chi.Router) {
		r.Use(BearerAuth(deps.AdminToken))
		r.Post("/refresh", handleRefresh(deps))
		r.Post("/rebuild", handleRebuild(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

type articleListResponse struct {
	Articles []storage.Article `json:"articles"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

func handleListArticles(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := parseIntParam(r, "page", 1, 0)
		if page < 1 {
			page = 1
		}
		pageSize := parseIntParam(r, "page_size", 10, 100)
		if pageSize < 1 {
			pageSize = 10
		}

		filter := storage.ArticleFilter{
			Category: r.URL.Query().Get("category"),
			Search:   r.URL.Query().Get("search"),
			Limit:    pageSize,
			Offset:   (page - 1) * pageSize,
		}

		total, err := deps.Store.CountArticles(filter)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count articles: %v", err)
			return
		}
		articles, err := deps.Store.ListArticles(filter)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list articles: %v", err)
			return
		}
		if articles == nil {
			articles = []storage.Article{}
		}

		writeJSON(w, articleListResponse{
			Articles: articles,
			Total:    total,
			Page:     page,
			PageSize: pageSize,
		})
	}
}

func handleGetArticle(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseArticleID(w, r)
		if !ok {
			return
		}

		article, err := deps.Store.GetArticle(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "article not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get article: %v", err)
			return
		}

		writeJSON(w, article)
	}
}

type recommendationResponse struct {
	ArticleID       int64                      `json:"article_id"`
	ArticleTitle    string                     `json:"article_title"`
	Recommendations []recommend.Recommendation `json:"recommendations"`
	Total           int                        `json:"total"`
}

func handleRecommend(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseArticleID(w, r)
		if !ok {
			return
		}
		topN := parseIntParam(r, "top_n", 0, 0)
		useHybrid := r.URL.Query().Get("use_hybrid") != "false"

		// One snapshot for the whole request: lookup and scoring stay
		// consistent even if a rebuild lands mid-request.
		idx := deps.Engine.Snapshot()

		target, found := idx.Article(id)
		if !found {
			// An empty index is not a "not found" condition: the article may
			// exist in storage while the corpus has simply not been built.
			if idx.Size() == 0 {
				stored, err := deps.Store.GetArticle(id)
				if errors.Is(err, storage.ErrNotFound) {
					httpError(w, http.StatusNotFound, "not_found", "article not found")
					return
				}
				if err != nil {
					httpError(w, http.StatusInternalServerError, "api_error", "failed to get article: %v", err)
					return
				}
				writeJSON(w, recommendationResponse{
					ArticleID:       id,
					ArticleTitle:    stored.Title,
					Recommendations: []recommend.Recommendation{},
					Total:           0,
				})
				return
			}
			httpError(w, http.StatusNotFound, "not_found", "article not found")
			return
		}

		var recs []recommend.Recommendation
		var err error
		if useHybrid {
			recs, err = idx.RecommendHybrid(id, topN)
		} else {
			recs, err = idx.Recommend(id, topN)
		}
		if errors.Is(err, recommend.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "article not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "recommendation failed: %v", err)
			return
		}
		if recs == nil {
			recs = []recommend.Recommendation{}
		}

		writeJSON(w, recommendationResponse{
			ArticleID:       id,
			ArticleTitle:    target.Title,
			Recommendations: recs,
			Total:           len(recs),
		})
	}
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Store.GetStats()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get stats: %v", err)
			return
		}
		writeJSON(w, stats)
	}
}

type trackRequest struct {
	ArticleID       int64    `json:"article_id"`
	UserID          string   `json:"user_id"`
	InteractionType string   `json:"interaction_type"`
	Rating          *float64 `json:"rating"`
}

type trackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

var validInteractionTypes = map[string]struct{}{
	"view": {}, "click": {}, "like": {}, "dislike": {},
}

func handleTrack(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req trackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.InteractionType == "" {
			req.InteractionType = "view"
		}
		if _, ok := validInteractionTypes[req.InteractionType]; !ok {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid interaction_type %q", req.InteractionType)
			return
		}
		if req.Rating != nil && (*req.Rating < 1 || *req.Rating > 5) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "rating must be between 1 and 5")
			return
		}

		if _, err := deps.Store.GetArticle(req.ArticleID); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "article not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to verify article: %v", err)
			return
		}

		if err := deps.Store.SaveInteraction(storage.Interaction{
			UserID:          req.UserID,
			ArticleID:       req.ArticleID,
			InteractionType: req.InteractionType,
			Rating:          req.Rating,
		}); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save interaction: %v", err)
			return
		}

		writeJSON(w, trackResponse{
			Success: true,
			Message: "tracked " + req.InteractionType + " for article " + strconv.FormatInt(req.ArticleID, 10),
		})
	}
}

func handleRefresh(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := ingest.EnqueueRefresh(deps.Store, deps.Categories)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue refresh: %v", err)
			return
		}
		writeJSON(w, map[string]any{
			"status": "queued",
			"jobs":   ids,
		})
	}
}

func handleRebuild(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := deps.Engine.Rebuild(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to rebuild index: %v", err)
			return
		}
		writeJSON(w, map[string]any{
			"status":   "rebuilt",
			"articles": count,
		})
	}
}

func parseArticleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid article id")
		return 0, false
	}
	return id, true
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
