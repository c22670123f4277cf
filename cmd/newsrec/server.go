package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/mpetrov/newsrec/internal/api"
	"github.com/mpetrov/newsrec/internal/config"
	"github.com/mpetrov/newsrec/internal/ingest"
	"github.com/mpetrov/newsrec/internal/recommend"
	"github.com/mpetrov/newsrec/internal/scraper"
	"github.com/mpetrov/newsrec/internal/storage"
)

var mcpStdio bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the newsrec server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running newsrec server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show newsrec system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().BoolVar(&mcpStdio, "mcp", false, "also serve MCP tools over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "newsrec.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// storageSource adapts storage.Store to the corpus interface the
// recommendation engine builds from. Description and content are merged
// into the document body.
type storageSource struct {
	store *storage.Store
}

func (s storageSource) Articles(ctx context.Context) ([]recommend.Article, error) {
	stored, err := s.store.AllArticles()
	if err != nil {
		return nil, err
	}
	articles := make([]recommend.Article, len(stored))
	for i, a := range stored {
		articles[i] = recommend.Article{
			ID:          a.ID,
			Title:       a.Title,
			Content:     strings.TrimSpace(a.Description + " " + a.Content),
			Category:    a.Category,
			Source:      a.Source,
			PublishedAt: a.PublishedAt,
		}
	}
	return articles, nil
}

func (s storageSource) InteractionStats(ctx context.Context) ([]recommend.InteractionStats, error) {
	stored, err := s.store.InteractionStats()
	if err != nil {
		return nil, err
	}
	stats := make([]recommend.InteractionStats, len(stored))
	for i, st := range stored {
		stats[i] = recommend.InteractionStats{
			ArticleID: st.ArticleID,
			Views:     st.Views,
			Clicks:    st.Clicks,
			AvgRating: st.AvgRating,
		}
	}
	return stats, nil
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "newsrec version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	adminToken := cfg.Server.AdminToken
	if adminToken == "" {
		adminToken = uuid.New().String()
		slog.Info("generated admin token", "token", adminToken)
	}

	// Refuse to start a second instance.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("newsrec is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("newsrec is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the recommendation engine and index whatever is already stored.
	engine := recommend.NewEngine(storageSource{store: store}, recommend.Config{
		MaxFeatures:        cfg.Recommend.MaxFeatures,
		NGramMin:           cfg.Recommend.NGramMin,
		NGramMax:           cfg.Recommend.NGramMax,
		MaxDF:              cfg.Recommend.MaxDF,
		SublinearTF:        cfg.Recommend.SublinearTF,
		TitleWeight:        cfg.Recommend.TitleWeight,
		DuplicateThreshold: cfg.Recommend.DuplicateThreshold,
		MinSimilarity:      cfg.Recommend.MinSimilarity,
		DefaultTopN:        cfg.Recommend.DefaultTopN,
		MaxTopN:            cfg.Recommend.MaxTopN,
	})
	count, err := engine.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("building initial index: %w", err)
	}
	slog.Info("recommendation index ready", "articles", count)

	// Background ingest: fetch jobs and index rebuilds from the queue.
	fetcher := scraper.New(cfg.NewsAPI.BaseURL, cfg.NewsAPI.APIKey, cfg.NewsAPI.Country, cfg.NewsAPI.PageSize)
	worker := ingest.NewWorker(store, fetcher, engine, 500*time.Millisecond)
	go worker.Run(ctx)

	scheduler := ingest.NewScheduler(store, cfg.NewsAPI.Categories, cfg.NewsAPI.RefreshInterval)
	go scheduler.Run(ctx)

	handler := api.NewHandler(api.Deps{
		Store:      store,
		Engine:     engine,
		AdminToken: adminToken,
		Categories: cfg.NewsAPI.Categories,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	if mcpStdio {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Store: store, Engine: engine})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "newsrec listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("newsrec is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop newsrec (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to newsrec (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if running {
		statsResp, err := client.Get(serverURL + "/stats")
		if err == nil {
			var stats struct {
				TotalArticles int            `json:"total_articles"`
				Categories    map[string]int `json:"categories"`
			}
			if json.NewDecoder(statsResp.Body).Decode(&stats) == nil {
				printStatus("Articles", "%d", stats.TotalArticles)
				printStatus("Categories", "%d", len(stats.Categories))
			}
			statsResp.Body.Close()
		}
	}

	if cfg.NewsAPI.RefreshInterval > 0 {
		printStatus("Refresh", "every %s", cfg.NewsAPI.RefreshInterval)
	} else {
		printStatus("Refresh", "manual only")
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
