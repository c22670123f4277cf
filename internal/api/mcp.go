package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mpetrov/newsrec/internal/recommend"
	"github.com/mpetrov/newsrec/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store  *storage.Store
	Engine *recommend.Engine
}

// NewMCPServer creates an MCP server exposing article search, lookup, and
// recommendation tools plus a corpus stats resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"newsrec",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("newsrec — local news article store with content-based recommendations."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_articles",
			mcp.WithDescription("Search stored news articles by keyword in title or description."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithString("category", mcp.Description("Optional category filter")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpSearchArticles(deps),
	)

	s.AddTool(
		mcp.NewTool("get_article",
			mcp.WithDescription("Fetch a single stored article by its numeric ID, including full content."),
			mcp.WithNumber("id", mcp.Description("Article ID"), mcp.Required()),
		),
		mcpGetArticle(deps),
	)

	s.AddTool(
		mcp.NewTool("recommend_articles",
			mcp.WithDescription("Return articles similar to the given one, ranked by content similarity blended with popularity."),
			mcp.WithNumber("article_id", mcp.Description("Target article ID"), mcp.Required()),
			mcp.WithNumber("top_n", mcp.Description("Number of recommendations (default 5, max 20)")),
		),
		mcpRecommendArticles(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"news://stats",
			"Corpus Statistics",
			mcp.WithResourceDescription("Article counts per category and source as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStats(deps),
	)

	return s
}

func mcpSearchArticles(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 50 {
			limit = 50
		}

		articles, err := deps.Store.ListArticles(storage.ArticleFilter{
			Search:   query,
			Category: req.GetString("category", ""),
			Limit:    limit,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		if len(articles) == 0 {
			return mcpText("[]"), nil
		}

		type searchResult struct {
			ID          int64  `json:"id"`
			Title       string `json:"title"`
			Description string `json:"description,omitempty"`
			Category    string `json:"category,omitempty"`
			Source      string `json:"source,omitempty"`
			URL         string `json:"url"`
		}

		results := make([]searchResult, len(articles))
		for i, a := range articles {
			results[i] = searchResult{
				ID:          a.ID,
				Title:       a.Title,
				Description: a.Description,
				Category:    a.Category,
				Source:      a.Source,
				URL:         a.URL,
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpGetArticle(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		article, err := deps.Store.GetArticle(int64(id))
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("article %d not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("lookup failed: %v", err)), nil
		}

		b, err := json.Marshal(article)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal article: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpRecommendArticles(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("article_id")
		if err != nil {
			return mcpError("article_id is required"), nil
		}

		topN := req.GetInt("top_n", 0)

		recs, err := deps.Engine.RecommendHybrid(int64(id), topN)
		if errors.Is(err, recommend.ErrNotFound) {
			return mcpError(fmt.Sprintf("article %d not found in the recommendation index", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("recommendation failed: %v", err)), nil
		}

		if len(recs) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(recs)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal recommendations: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpResourceStats(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		stats, err := deps.Store.GetStats()
		if err != nil {
			return nil, fmt.Errorf("failed to get stats: %w", err)
		}

		b, err := json.Marshal(stats)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal stats: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
