package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"novelrag/types"
)

// ChunkerConfig sizes passages. Size and Overlap are measured in runes.
type ChunkerConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// RetrievalConfig controls nearest-neighbour search.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// ContextConfig bounds the assembled prompt. Unit is "tokens" (tiktoken
// cl100k_base) or "runes". HistoryBudget is carved out of Budget.
type ContextConfig struct {
	Budget        int    `yaml:"budget"`
	HistoryBudget int    `yaml:"history_budget"`
	Unit          string `yaml:"unit"`
}

// BuildConfig controls the offline index build.
type BuildConfig struct {
	BatchSize   int `yaml:"batch_size"`
	SettleSecs  int `yaml:"settle_secs"`
	TimeoutSecs int `yaml:"timeout_secs"`
}

// ServerConfig bounds request handling.
type ServerConfig struct {
	RequestTimeoutSecs int `yaml:"request_timeout_secs"`
}

// Config is the root of the YAML config file. Endpoints and credentials come
// from the environment, this file holds the tunable pipeline parameters.
type Config struct {
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Context   ContextConfig   `yaml:"context"`
	Build     BuildConfig     `yaml:"build"`
	Server    ServerConfig    `yaml:"server"`
}

// fileConfig mirrors Config for decoding. Overlap and HistoryBudget are
// pointers because zero is a valid setting for both, so an absent key has to
// be distinguishable from an explicit 0.
type fileConfig struct {
	Chunker struct {
		Size    int  `yaml:"size"`
		Overlap *int `yaml:"overlap"`
	} `yaml:"chunker"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Context   struct {
		Budget        int    `yaml:"budget"`
		HistoryBudget *int   `yaml:"history_budget"`
		Unit          string `yaml:"unit"`
	} `yaml:"context"`
	Build  BuildConfig  `yaml:"build"`
	Server ServerConfig `yaml:"server"`
}

func (f fileConfig) toConfig() *Config {
	cfg := &Config{
		Chunker:   ChunkerConfig{Size: f.Chunker.Size},
		Retrieval: f.Retrieval,
		Context:   ContextConfig{Budget: f.Context.Budget, Unit: f.Context.Unit},
		Build:     f.Build,
		Server:    f.Server,
	}
	applyDefaults(cfg)
	if f.Chunker.Overlap != nil {
		cfg.Chunker.Overlap = *f.Chunker.Overlap
	}
	if f.Context.HistoryBudget != nil {
		cfg.Context.HistoryBudget = *f.Context.HistoryBudget
	}
	return cfg
}

// Load reads a config from path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			return cfg, cfg.validate()
		}
		return nil, err
	}
	var raw fileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	cfg := raw.toConfig()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSecs) * time.Second
}

func (c *Config) BuildTimeout() time.Duration {
	return time.Duration(c.Build.TimeoutSecs) * time.Second
}

func (c *Config) SettleTime() time.Duration {
	return time.Duration(c.Build.SettleSecs) * time.Second
}

func (c *Config) validate() error {
	if c.Chunker.Size <= 0 {
		return types.ConfigError{Field: "chunker.size", Reason: "must be positive"}
	}
	if c.Chunker.Overlap < 0 {
		return types.ConfigError{Field: "chunker.overlap", Reason: "must not be negative"}
	}
	if c.Chunker.Overlap >= c.Chunker.Size {
		return types.ConfigError{Field: "chunker.overlap", Reason: "must be smaller than chunker.size"}
	}
	if c.Retrieval.TopK <= 0 {
		return types.ConfigError{Field: "retrieval.top_k", Reason: "must be positive"}
	}
	if c.Context.Budget <= 0 {
		return types.ConfigError{Field: "context.budget", Reason: "must be positive"}
	}
	if c.Context.HistoryBudget < 0 || c.Context.HistoryBudget > c.Context.Budget {
		return types.ConfigError{Field: "context.history_budget", Reason: "must fit within context.budget"}
	}
	if c.Context.Unit != "tokens" && c.Context.Unit != "runes" {
		return types.ConfigError{Field: "context.unit", Reason: "must be 'tokens' or 'runes'"}
	}
	if c.Build.BatchSize <= 0 {
		return types.ConfigError{Field: "build.batch_size", Reason: "must be positive"}
	}
	if c.Server.RequestTimeoutSecs <= 0 {
		return types.ConfigError{Field: "server.request_timeout_secs", Reason: "must be positive"}
	}
	return nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = 500
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = 100
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Context.Budget == 0 {
		cfg.Context.Budget = 4000
	}
	if cfg.Context.HistoryBudget == 0 {
		cfg.Context.HistoryBudget = cfg.Context.Budget / 3
	}
	if cfg.Context.Unit == "" {
		cfg.Context.Unit = "tokens"
	}
	if cfg.Build.BatchSize == 0 {
		cfg.Build.BatchSize = 32
	}
	if cfg.Build.SettleSecs == 0 {
		cfg.Build.SettleSecs = 2
	}
	if cfg.Build.TimeoutSecs == 0 {
		cfg.Build.TimeoutSecs = 3600
	}
	if cfg.Server.RequestTimeoutSecs == 0 {
		cfg.Server.RequestTimeoutSecs = 60
	}
}
