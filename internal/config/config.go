// Package config loads layered configuration: struct defaults, then an
// optional YAML file, then NEWSREC_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes all recognized environment variables, e.g.
// NEWSREC_SERVER_PORT or NEWSREC_NEWSAPI_API_KEY.
const EnvPrefix = "NEWSREC_"

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "NEWSREC_CONFIG"

// DefaultConfigPaths lists where config files are searched, in order.
var DefaultConfigPaths = []string{
	"newsrec.yaml",
	"newsrec.yml",
	"/etc/newsrec/config.yaml",
}

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Storage   StorageConfig   `koanf:"storage"`
	NewsAPI   NewsAPIConfig   `koanf:"newsapi"`
	Recommend RecommendConfig `koanf:"recommend"`
	Log       LogConfig       `koanf:"log"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
	// AdminToken protects the admin endpoints. When empty, a random token
	// is generated at startup and logged.
	AdminToken string `koanf:"admin_token"`
}

type StorageConfig struct {
	DataDir string `koanf:"data_dir"`
}

type NewsAPIConfig struct {
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
	Country  string `koanf:"country"`
	PageSize int    `koanf:"page_size"`
	// Categories to fetch; comma-separated when set via environment.
	Categories []string `koanf:"categories"`
	// RefreshInterval between scheduled refresh batches. Zero disables
	// scheduled fetching (refreshes can still be triggered via the API).
	RefreshInterval time.Duration `koanf:"refresh_interval"`
}

type RecommendConfig struct {
	MaxFeatures        int     `koanf:"max_features"`
	NGramMin           int     `koanf:"ngram_min"`
	NGramMax           int     `koanf:"ngram_max"`
	MaxDF              float64 `koanf:"max_df"`
	SublinearTF        bool    `koanf:"sublinear_tf"`
	TitleWeight        int     `koanf:"title_weight"`
	DuplicateThreshold float64 `koanf:"duplicate_threshold"`
	MinSimilarity      float64 `koanf:"min_similarity"`
	DefaultTopN        int     `koanf:"default_top_n"`
	MaxTopN            int     `koanf:"max_top_n"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8000,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		NewsAPI: NewsAPIConfig{
			BaseURL:  "https://newsapi.org/v2/top-headlines",
			Country:  "us",
			PageSize: 100,
			Categories: []string{
				"business", "entertainment", "general", "health",
				"science", "sports", "technology",
			},
			RefreshInterval: 0,
		},
		Recommend: RecommendConfig{
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
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".newsrec"
	}
	return filepath.Join(home, ".newsrec")
}

// Load reads configuration in three layers: defaults, config file (if one
// exists), environment variables.
func Load() (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("loading defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return Config{}, fmt.Errorf("loading environment: %w", err)
	}

	// Categories arrive as a comma-separated string from the environment.
	if raw := k.String("newsapi.categories"); raw != "" && strings.Contains(raw, ",") {
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if err := k.Set("newsapi.categories", parts); err != nil {
			return Config{}, fmt.Errorf("parsing categories: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envTransform maps NEWSREC_SECTION_SOME_KEY to section.some_key. Sections
// are single words, so only the first underscore is a separator.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if key == strings.ToLower(ConfigPathEnvVar[len(EnvPrefix):]) {
		return "" // handled by findConfigFile, not a config key
	}
	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 {
		return key
	}
	return parts[0] + "." + parts[1]
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Recommend.DuplicateThreshold <= 0 || c.Recommend.DuplicateThreshold > 1 {
		return fmt.Errorf("duplicate_threshold must be in (0, 1], got %v", c.Recommend.DuplicateThreshold)
	}
	if c.Recommend.MaxTopN < c.Recommend.DefaultTopN {
		return fmt.Errorf("max_top_n (%d) must be >= default_top_n (%d)", c.Recommend.MaxTopN, c.Recommend.DefaultTopN)
	}
	if c.Recommend.NGramMin < 1 || c.Recommend.NGramMax < c.Recommend.NGramMin {
		return fmt.Errorf("invalid ngram range %d-%d", c.Recommend.NGramMin, c.Recommend.NGramMax)
	}
	if len(c.NewsAPI.Categories) == 0 {
		return fmt.Errorf("at least one news category is required")
	}
	if c.NewsAPI.RefreshInterval > 0 && c.NewsAPI.APIKey == "" {
		return fmt.Errorf("newsapi.api_key is required when refresh_interval is set " +
			"(set NEWSREC_NEWSAPI_API_KEY or disable scheduled refresh)")
	}
	return nil
}
