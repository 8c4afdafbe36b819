package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ggonzalez94/insights-mcp/internal/registry"
)

const envPrefix = "INSIGHTS_MCP_"

const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
	TransportHTTP  = "http"
)

type GlobalFlags struct {
	ConfigPath  string
	JSON        bool
	Plain       bool
	Select      string
	ResultsOnly bool
	Timeout     string
	LogLevel    string
	LogFormat   string
	Catalog     string
	BaseURL     string
	Topics      string
	EnvFile     string
	NoJournal   bool
	Transport   string
	Addr        string
}

type Settings struct {
	OutputMode       string
	SelectFields     []string
	ResultsOnly      bool
	Transport        string
	Addr             string
	Timeout          time.Duration
	LogLevel         string
	LogFormat        string
	CatalogPath      string
	BaseURL          string
	Topics           []string
	EnvFile          string
	JournalEnabled   bool
	JournalPath      string
	JournalLockPath  string
	JournalRetention time.Duration
	Chains           map[string]registry.Override
}

type fileConfig struct {
	Output    string `yaml:"output"`
	Transport string `yaml:"transport"`
	Addr      string `yaml:"addr"`
	Timeout   string `yaml:"timeout"`
	Log       struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Catalog string   `yaml:"catalog"`
	BaseURL string   `yaml:"base_url"`
	Topics  []string `yaml:"topics"`
	EnvFile string   `yaml:"env_file"`
	Journal struct {
		Enabled   *bool  `yaml:"enabled"`
		Path      string `yaml:"path"`
		LockPath  string `yaml:"lock_path"`
		Retention string `yaml:"retention"`
	} `yaml:"journal"`
	Chains map[string]registry.Override `yaml:"chains"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}
	if settings.JournalRetention <= 0 {
		settings.JournalRetention = 30 * 24 * time.Hour
	}
	switch settings.Transport {
	case TransportStdio, TransportSSE, TransportHTTP:
	default:
		return Settings{}, fmt.Errorf("transport must be stdio, sse or http, got %q", settings.Transport)
	}
	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return Settings{}, fmt.Errorf("output must be json or plain")
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	journalPath, lockPath, err := defaultJournalPaths()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:       "json",
		Transport:        TransportStdio,
		Addr:             "127.0.0.1:8080",
		Timeout:          30 * time.Second,
		LogLevel:         "info",
		LogFormat:        "console",
		EnvFile:          ".env",
		JournalEnabled:   true,
		JournalPath:      journalPath,
		JournalLockPath:  lockPath,
		JournalRetention: 30 * 24 * time.Hour,
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "insights-mcp", "config.yaml"), nil
}

func defaultJournalPaths() (string, string, error) {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".local", "state")
	}
	dir := filepath.Join(base, "insights-mcp")
	return filepath.Join(dir, "journal.db"), filepath.Join(dir, "journal.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Transport != "" {
		settings.Transport = strings.ToLower(cfg.Transport)
	}
	if cfg.Addr != "" {
		settings.Addr = cfg.Addr
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Log.Level != "" {
		settings.LogLevel = cfg.Log.Level
	}
	if cfg.Log.Format != "" {
		settings.LogFormat = cfg.Log.Format
	}
	if cfg.Catalog != "" {
		settings.CatalogPath = cfg.Catalog
	}
	if cfg.BaseURL != "" {
		settings.BaseURL = cfg.BaseURL
	}
	if len(cfg.Topics) > 0 {
		settings.Topics = splitList(strings.Join(cfg.Topics, ","))
	}
	if cfg.EnvFile != "" {
		settings.EnvFile = cfg.EnvFile
	}
	if cfg.Journal.Enabled != nil {
		settings.JournalEnabled = *cfg.Journal.Enabled
	}
	if cfg.Journal.Path != "" {
		settings.JournalPath = cfg.Journal.Path
	}
	if cfg.Journal.LockPath != "" {
		settings.JournalLockPath = cfg.Journal.LockPath
	}
	if cfg.Journal.Retention != "" {
		d, err := time.ParseDuration(cfg.Journal.Retention)
		if err != nil {
			return fmt.Errorf("config journal.retention: %w", err)
		}
		settings.JournalRetention = d
	}
	if len(cfg.Chains) > 0 {
		settings.Chains = cfg.Chains
	}

	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv(envPrefix + "OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv(envPrefix + "TRANSPORT"); v != "" {
		settings.Transport = strings.ToLower(v)
	}
	if v := os.Getenv(envPrefix + "ADDR"); v != "" {
		settings.Addr = v
	}
	if v := os.Getenv(envPrefix + "TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		settings.LogLevel = v
	}
	if v := os.Getenv(envPrefix + "LOG_FORMAT"); v != "" {
		settings.LogFormat = v
	}
	if v := os.Getenv(envPrefix + "CATALOG"); v != "" {
		settings.CatalogPath = v
	}
	if v := os.Getenv(envPrefix + "BASE_URL"); v != "" {
		settings.BaseURL = v
	}
	if v := os.Getenv(envPrefix + "TOPICS"); v != "" {
		settings.Topics = splitList(v)
	}
	if v := os.Getenv(envPrefix + "ENV_FILE"); v != "" {
		settings.EnvFile = v
	}
	if v := os.Getenv(envPrefix + "NO_JOURNAL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.JournalEnabled = !b
		}
	}
	if v := os.Getenv(envPrefix + "JOURNAL_PATH"); v != "" {
		settings.JournalPath = v
	}
	if v := os.Getenv(envPrefix + "JOURNAL_LOCK_PATH"); v != "" {
		settings.JournalLockPath = v
	}
	if v := os.Getenv(envPrefix + "JOURNAL_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.JournalRetention = d
		}
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		settings.SelectFields = splitList(flags.Select)
	}
	settings.ResultsOnly = flags.ResultsOnly
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.LogLevel != "" {
		settings.LogLevel = flags.LogLevel
	}
	if flags.LogFormat != "" {
		settings.LogFormat = flags.LogFormat
	}
	if flags.Catalog != "" {
		settings.CatalogPath = flags.Catalog
	}
	if flags.BaseURL != "" {
		settings.BaseURL = flags.BaseURL
	}
	if strings.TrimSpace(flags.Topics) != "" {
		settings.Topics = splitList(flags.Topics)
	}
	if flags.EnvFile != "" {
		settings.EnvFile = flags.EnvFile
	}
	if flags.NoJournal {
		settings.JournalEnabled = false
	}
	if flags.Transport != "" {
		settings.Transport = strings.ToLower(flags.Transport)
	}
	if flags.Addr != "" {
		settings.Addr = flags.Addr
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
