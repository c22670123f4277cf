package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// --- fetch ---

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Queue a refresh of all configured news categories",
	Long: `Queue a refresh of all configured news categories.

The server fetches each category in the background, then rebuilds the
recommendation index once every fetch has completed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/admin/refresh", nil)
		if err != nil {
			return err
		}

		var result struct {
			Status string   `json:"status"`
			Jobs   []string `json:"jobs"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued %d jobs", len(result.Jobs))
		return nil
	},
}

// --- rebuild ---

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the recommendation index from stored articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/admin/rebuild", nil)
		if err != nil {
			return err
		}

		var result struct {
			Status   string `json:"status"`
			Articles int    `json:"articles"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Rebuilt index over %d articles", result.Articles)
		return nil
	},
}

// --- recommend ---

var recommendCmd = &cobra.Command{
	Use:   "recommend <article-id>",
	Short: "Show recommendations for an article",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid article id %q", args[0])
		}
		topN, _ := cmd.Flags().GetInt("top-n")
		contentOnly, _ := cmd.Flags().GetBool("content-only")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		if topN > 0 {
			q.Set("top_n", strconv.Itoa(topN))
		}
		if contentOnly {
			q.Set("use_hybrid", "false")
		}
		path := fmt.Sprintf("/recommend/%d", id)
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		resp, err := client.get(path)
		if err != nil {
			return err
		}

		var result struct {
			ArticleID       int64  `json:"article_id"`
			ArticleTitle    string `json:"article_title"`
			Recommendations []struct {
				ID         int64   `json:"id"`
				Title      string  `json:"title"`
				Category   string  `json:"category"`
				Source     string  `json:"source"`
				Similarity float64 `json:"similarity"`
			} `json:"recommendations"`
			Total int `json:"total"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Printf("Recommendations for #%d %q:\n", result.ArticleID, result.ArticleTitle)
		if result.Total == 0 {
			fmt.Println("  (none)")
			return nil
		}
		for _, r := range result.Recommendations {
			fmt.Printf("  %.4f  #%-6d %s", r.Similarity, r.ID, r.Title)
			if r.Source != "" {
				fmt.Printf("  (%s)", r.Source)
			}
			fmt.Println()
		}
		return nil
	},
}

// --- articles ---

var articlesCmd = &cobra.Command{
	Use:   "articles",
	Short: "List stored articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")
		search, _ := cmd.Flags().GetString("search")
		page, _ := cmd.Flags().GetInt("page")
		pageSize, _ := cmd.Flags().GetInt("page-size")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		if category != "" {
			q.Set("category", category)
		}
		if search != "" {
			q.Set("search", search)
		}
		if page > 0 {
			q.Set("page", strconv.Itoa(page))
		}
		if pageSize > 0 {
			q.Set("page_size", strconv.Itoa(pageSize))
		}
		path := "/articles"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		resp, err := client.get(path)
		if err != nil {
			return err
		}

		var result struct {
			Articles []struct {
				ID       int64  `json:"id"`
				Title    string `json:"title"`
				Category string `json:"category"`
				Source   string `json:"source"`
			} `json:"articles"`
			Total    int `json:"total"`
			Page     int `json:"page"`
			PageSize int `json:"page_size"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		for _, a := range result.Articles {
			fmt.Printf("  #%-6d [%s] %s", a.ID, a.Category, a.Title)
			if a.Source != "" {
				fmt.Printf("  (%s)", a.Source)
			}
			fmt.Println()
		}
		fmt.Printf("Page %d of %d articles\n", result.Page, result.Total)
		return nil
	},
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show corpus statistics as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/stats")
		if err != nil {
			return err
		}

		var stats any
		if err := decodeJSON(resp, &stats); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

func init() {
	recommendCmd.Flags().Int("top-n", 0, "number of recommendations (default server-side)")
	recommendCmd.Flags().Bool("content-only", false, "rank by content similarity only, skip popularity blending")

	articlesCmd.Flags().String("category", "", "filter by category")
	articlesCmd.Flags().String("search", "", "keyword search in title and description")
	articlesCmd.Flags().Int("page", 0, "page number")
	articlesCmd.Flags().Int("page-size", 0, "articles per page")
}
