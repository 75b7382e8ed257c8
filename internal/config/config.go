// Package config loads imploid's JSON configuration via viper, following
// the same AddConfigPath/SetEnvPrefix/AutomaticEnv pattern as pm's
// cmd/root.go initConfig, adapted to imploid's fixed JSON schema.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/Hey-Diga/imploid/internal/imploiderr"
)

// Repo is one configured GitHub repository and its base clone path.
type Repo struct {
	Name         string `mapstructure:"name"`
	BaseRepoPath string `mapstructure:"base_repo_path"`
}

// Processor is the per-processor section of the config.
type Processor struct {
	Path                 string `mapstructure:"path"`
	TimeoutSeconds       float64 `mapstructure:"timeout_seconds"`
	CheckIntervalSeconds float64 `mapstructure:"check_interval_seconds"`
	PromptPath           string `mapstructure:"prompt_path"`
}

// Slack holds the optional Slack notifier sink configuration.
type Slack struct {
	BotToken  string `mapstructure:"bot_token"`
	ChannelID string `mapstructure:"channel_id"`
}

// Telegram holds the optional Telegram notifier sink configuration.
type Telegram struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// Config is the fully resolved, read-only configuration for one run.
type Config struct {
	GitHub struct {
		Token         string `mapstructure:"token"`
		Repos         []Repo `mapstructure:"repos"`
		MaxConcurrent int    `mapstructure:"max_concurrent"`
	} `mapstructure:"github"`
	Processors struct {
		Enabled []string             `mapstructure:"enabled"`
		Claude  Processor            `mapstructure:"claude"`
		Codex   Processor            `mapstructure:"codex"`
	} `mapstructure:"processors"`
	Slack               Slack    `mapstructure:"slack"`
	Telegram            Telegram `mapstructure:"telegram"`
	PollingIntervalSecs int      `mapstructure:"polling_interval_seconds"`
	LogLevel            string   `mapstructure:"log_level"`
}

// Dir returns the path of ~/.imploid. It does not create the directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".imploid"), nil
}

// ExpandHome expands a leading "~/" to the current user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// Load reads configuration from explicitPath if given, else
// ~/.imploid/config.json, applying defaults and IMPLOID_* env overrides.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, &imploiderr.ConfigError{Reason: "resolve config directory", Cause: err}
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("IMPLOID")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("github.max_concurrent", 3)
	v.SetDefault("processors.enabled", []string{"claude"})
	v.SetDefault("processors.claude.path", "claude")
	v.SetDefault("processors.claude.timeout_seconds", 3600.0)
	v.SetDefault("processors.claude.check_interval_seconds", 5.0)
	v.SetDefault("processors.codex.path", "codex")
	v.SetDefault("processors.codex.timeout_seconds", 3600.0)
	v.SetDefault("processors.codex.check_interval_seconds", 5.0)
	v.SetDefault("polling_interval_seconds", 60)
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, &imploiderr.ConfigError{Reason: "read config file", Cause: err}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &imploiderr.ConfigError{Reason: "unmarshal config", Cause: err}
	}

	applyLegacyRepoFallback(v, &cfg)

	for i := range cfg.GitHub.Repos {
		cfg.GitHub.Repos[i].BaseRepoPath = ExpandHome(cfg.GitHub.Repos[i].BaseRepoPath)
	}
	cfg.Processors.Claude.Path = ExpandHome(cfg.Processors.Claude.Path)
	cfg.Processors.Codex.Path = ExpandHome(cfg.Processors.Codex.Path)
	cfg.Processors.Claude.PromptPath = ExpandHome(cfg.Processors.Claude.PromptPath)
	cfg.Processors.Codex.PromptPath = ExpandHome(cfg.Processors.Codex.PromptPath)

	if len(cfg.GitHub.Repos) == 0 {
		return nil, &imploiderr.ConfigError{Reason: "no repositories configured (github.repos is empty)"}
	}
	if cfg.GitHub.MaxConcurrent < 1 {
		return nil, &imploiderr.ConfigError{Reason: "github.max_concurrent must be >= 1"}
	}

	return &cfg, nil
}

// applyLegacyRepoFallback mirrors the original orchestrator's config.py
// github_repos property: a bare single-repo pair is promoted into the
// repos list when the list form is absent, so older single-repo config
// files keep working without edits.
func applyLegacyRepoFallback(v *viper.Viper, cfg *Config) {
	if len(cfg.GitHub.Repos) > 0 {
		return
	}
	legacyName := v.GetString("github.repo")
	legacyPath := v.GetString("github.base_repo_path")
	if legacyName == "" {
		return
	}
	cfg.GitHub.Repos = []Repo{{Name: legacyName, BaseRepoPath: legacyPath}}
}

// EnabledProcessors intersects the configured enabled set with an optional
// per-run override (the --processors flag), preserving configured order.
func EnabledProcessors(cfg *Config, override []string) []string {
	if len(override) == 0 {
		return cfg.Processors.Enabled
	}
	want := make(map[string]bool, len(override))
	for _, o := range override {
		want[strings.TrimSpace(o)] = true
	}
	var out []string
	for _, p := range cfg.Processors.Enabled {
		if want[p] {
			out = append(out, p)
		}
	}
	return out
}
