// Package config loads and defaults the workspace's .cuedeck/config.toml,
// one Go struct per TOML table, plus the ignore-pattern matcher used by
// the parser and watcher.
package config

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/cuedeck/cue/internal/errs"
)

// Config is the root TOML document at <root>/.cuedeck/config.toml.
type Config struct {
	Core     Core     `toml:"core"`
	Parser   Parser   `toml:"parser"`
	Security Security `toml:"security"`
	MCP      MCP      `toml:"mcp"`
	Author   Author   `toml:"author"`
	Watcher  Watcher  `toml:"watcher"`
	Cache    Cache    `toml:"cache"`
	Search   Search   `toml:"search"`
	Sync     Sync     `toml:"sync"`
}

type Core struct {
	TokenLimit int    `toml:"token_limit"`
	HashAlgo   string `toml:"hash_algo"`
}

type Parser struct {
	IgnorePatterns []string `toml:"ignore_patterns"`
	AnchorLevels   []int    `toml:"anchor_levels"`
}

type Security struct {
	SecretPatterns []string `toml:"secret_patterns"`
	ExtraPatterns  []string `toml:"extra_patterns"`
}

type MCP struct {
	SearchLimit int `toml:"search_limit"`
}

type Author struct {
	Name  string `toml:"name"`
	Email string `toml:"email"`
}

type Watcher struct {
	Enabled        bool     `toml:"enabled"`
	DebounceMs     int      `toml:"debounce_ms"`
	IgnorePatterns []string `toml:"ignore_patterns"`
}

type Cache struct {
	CacheMode     string `toml:"cache_mode"`
	MemoryLimitMB int    `toml:"memory_limit_mb"`
	Enabled       bool   `toml:"enabled"`
}

type Search struct {
	SemanticWeight           float64 `toml:"semantic_weight"`
	KeywordWeight            float64 `toml:"keyword_weight"`
	EmbeddingCacheMaxEntries int     `toml:"embedding_cache_max_entries"`
	DefaultMode              string  `toml:"default_mode"`
}

// Sync holds the peer-replication tunables.
type Sync struct {
	ServerURL              string `toml:"server_url"`
	PeerID                 string `toml:"peer_id"`
	MaxOfflineDurationDays int    `toml:"max_offline_duration_days"`
	RecoveryWindowDays     int    `toml:"recovery_window_days"`
}

// Default returns a Config with every option at its documented default.
func Default() *Config {
	return &Config{
		Core: Core{TokenLimit: 32000, HashAlgo: "sha256"},
		Parser: Parser{
			IgnorePatterns: []string{"target/", "node_modules/", ".git/"},
			AnchorLevels:   []int{1, 2, 3},
		},
		Security: Security{
			SecretPatterns: []string{"sk-.*", "ghp_.*"},
			ExtraPatterns:  []string{},
		},
		MCP:    MCP{SearchLimit: 10},
		Author: Author{},
		Watcher: Watcher{
			Enabled:        true,
			DebounceMs:     500,
			IgnorePatterns: []string{".git/", ".cache/"},
		},
		Cache: Cache{CacheMode: "lazy", MemoryLimitMB: 512, Enabled: true},
		Search: Search{
			SemanticWeight:           0.7,
			KeywordWeight:            0.3,
			EmbeddingCacheMaxEntries: 1000,
			DefaultMode:              "hybrid",
		},
		Sync: Sync{
			MaxOfflineDurationDays: 7,
			RecoveryWindowDays:     7,
		},
	}
}

// Load reads <root>/.cuedeck/config.toml, applying Default() for any zero
// field left unset by the file (or if the file is absent entirely).
func Load(root string) (*Config, error) {
	cfg := Default()
	path := filepath.Join(root, ".cuedeck", "config.toml")

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, &errs.ConfigError{Path: path, Underlying: err}
	}

	var fileCfg Config
	if err := toml.Unmarshal(data, &fileCfg); err != nil {
		return nil, &errs.ConfigError{Path: path, Underlying: err}
	}
	mergeDefaults(cfg, &fileCfg)
	return cfg, nil
}

// Write serializes cfg to <root>/.cuedeck/config.toml, creating the
// directory if needed. Used by doctor's "write a default config" repair.
func Write(root string, cfg *Config) error {
	dir := filepath.Join(root, ".cuedeck")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.toml"), data, 0o644)
}

// mergeDefaults overlays non-zero fields from file onto base in place.
func mergeDefaults(base, file *Config) {
	if file.Core.TokenLimit != 0 {
		base.Core.TokenLimit = file.Core.TokenLimit
	}
	if file.Core.HashAlgo != "" {
		base.Core.HashAlgo = file.Core.HashAlgo
	}
	if len(file.Parser.IgnorePatterns) > 0 {
		base.Parser.IgnorePatterns = file.Parser.IgnorePatterns
	}
	if len(file.Parser.AnchorLevels) > 0 {
		base.Parser.AnchorLevels = file.Parser.AnchorLevels
	}
	if len(file.Security.SecretPatterns) > 0 {
		base.Security.SecretPatterns = file.Security.SecretPatterns
	}
	if len(file.Security.ExtraPatterns) > 0 {
		base.Security.ExtraPatterns = file.Security.ExtraPatterns
	}
	if file.MCP.SearchLimit != 0 {
		base.MCP.SearchLimit = file.MCP.SearchLimit
	}
	if file.Author.Name != "" {
		base.Author.Name = file.Author.Name
	}
	if file.Author.Email != "" {
		base.Author.Email = file.Author.Email
	}
	base.Watcher.Enabled = file.Watcher.Enabled || base.Watcher.Enabled
	if file.Watcher.DebounceMs != 0 {
		base.Watcher.DebounceMs = file.Watcher.DebounceMs
	}
	if len(file.Watcher.IgnorePatterns) > 0 {
		base.Watcher.IgnorePatterns = file.Watcher.IgnorePatterns
	}
	if file.Cache.CacheMode != "" {
		base.Cache.CacheMode = file.Cache.CacheMode
	}
	if file.Cache.MemoryLimitMB != 0 {
		base.Cache.MemoryLimitMB = file.Cache.MemoryLimitMB
	}
	if file.Search.SemanticWeight != 0 {
		base.Search.SemanticWeight = file.Search.SemanticWeight
	}
	if file.Search.KeywordWeight != 0 {
		base.Search.KeywordWeight = file.Search.KeywordWeight
	}
	if file.Search.EmbeddingCacheMaxEntries != 0 {
		base.Search.EmbeddingCacheMaxEntries = file.Search.EmbeddingCacheMaxEntries
	}
	if file.Search.DefaultMode != "" {
		base.Search.DefaultMode = file.Search.DefaultMode
	}
	if file.Sync.ServerURL != "" {
		base.Sync.ServerURL = file.Sync.ServerURL
	}
	if file.Sync.PeerID != "" {
		base.Sync.PeerID = file.Sync.PeerID
	}
	if file.Sync.MaxOfflineDurationDays != 0 {
		base.Sync.MaxOfflineDurationDays = file.Sync.MaxOfflineDurationDays
	}
	if file.Sync.RecoveryWindowDays != 0 {
		base.Sync.RecoveryWindowDays = file.Sync.RecoveryWindowDays
	}
}
