package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for docbot.
type Config struct {
	General GeneralConfig `json:"general"`
	Backend BackendConfig `json:"backend"`
	Browser BrowserConfig `json:"browser"`
	Watcher WatcherConfig `json:"watcher"`
	Context ContextConfig `json:"context"`
	Render  RenderConfig  `json:"render"`
	Ledger  LedgerConfig  `json:"ledger"`
	Metrics MetricsConfig `json:"metrics"`
}

type GeneralConfig struct {
	OutputDir string `json:"outputDir"` // markdown/ and pdf/ are created under this
	LogLevel  string `json:"logLevel"`
	LogFile   string `json:"logFile,omitempty"`
}

// BackendConfig configures the OpenAI-compatible chat completions endpoint.
type BackendConfig struct {
	APIBase           string `json:"apiBase"`
	APIKey            string `json:"apiKey,omitempty"`
	APIKeyEnv         string `json:"apiKeyEnv"`   // env var consulted when apiKey is empty
	AnswerModel       string `json:"answerModel"` // vision+text model answering questions
	NamingModel       string `json:"namingModel"` // text model generating file names
	EnableThinking    bool   `json:"enableThinking"`
	ThinkingBudget    int    `json:"thinkingBudget,omitempty"`
	TimeoutSeconds    int    `json:"timeoutSeconds"`
	MaxRetries        int    `json:"maxRetries"`
	RetryDelaySeconds int    `json:"retryDelaySeconds"`
}

// ResolveAPIKey returns the configured key, falling back to the environment.
func (b BackendConfig) ResolveAPIKey() string {
	if b.APIKey != "" && !envVarPattern.MatchString(b.APIKey) {
		return b.APIKey
	}
	if b.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(b.APIKeyEnv)
}

type BrowserConfig struct {
	URL                  string `json:"url"`
	ProfileDir           string `json:"profileDir"`
	Headless             bool   `json:"headless"`
	DownloadDir          string `json:"downloadDir"`
	DownloadWaitSeconds  int    `json:"downloadWaitSeconds"`
	LookupTimeoutSeconds int    `json:"lookupTimeoutSeconds"`
	LoginTimeoutSeconds  int    `json:"loginTimeoutSeconds"`
	SelectorsFile        string `json:"selectorsFile,omitempty"` // optional YAML override of CSS selectors
}

type WatcherConfig struct {
	PollIntervalSeconds int    `json:"pollIntervalSeconds"`
	ErrorBackoffSeconds int    `json:"errorBackoffSeconds"`
	EchoMarker          string `json:"echoMarker"`
}

type ContextConfig struct {
	MaxEntries int `json:"maxEntries"`
	MaxTokens  int `json:"maxTokens,omitempty"` // 0 = no token budget
}

// RenderConfig configures the pandoc invocation used for markdown to PDF.
type RenderConfig struct {
	Pandoc     string   `json:"pandoc"`
	PDFEngine  string   `json:"pdfEngine"`
	CJKFont    string   `json:"cjkFont"`
	MainFont   string   `json:"mainFont"`
	FontFamily string   `json:"fontFamily,omitempty"`
	Margin     string   `json:"margin"`
	ExtraArgs  []string `json:"extraArgs,omitempty"`
}

// Options returns the ordered pandoc options derived from the config.
func (r RenderConfig) Options() []string {
	var opts []string
	if r.PDFEngine != "" {
		opts = append(opts, "--pdf-engine="+r.PDFEngine)
	}
	if r.CJKFont != "" {
		opts = append(opts, "--variable", "CJKmainfont="+r.CJKFont)
	}
	if r.MainFont != "" {
		opts = append(opts, "--variable", "mainfont="+r.MainFont)
	}
	if r.FontFamily != "" {
		opts = append(opts, "--variable", "fontfamily="+r.FontFamily)
	}
	if r.Margin != "" {
		opts = append(opts, "--variable", "geometry:margin="+r.Margin)
	}
	return append(opts, r.ExtraArgs...)
}

type LedgerConfig struct {
	Enabled bool   `json:"enabled"`
	DBPath  string `json:"dbPath"`
}

// MetricsConfig configures the Prometheus text endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// DefaultConfigDir returns the default config directory (~/.docbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docbot"
	}
	return filepath.Join(home, ".docbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	cfg.expandPaths()

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func (c *Config) expandPaths() {
	c.General.OutputDir = ExpandPath(c.General.OutputDir)
	c.General.LogFile = ExpandPath(c.General.LogFile)
	c.Browser.ProfileDir = ExpandPath(c.Browser.ProfileDir)
	c.Browser.DownloadDir = ExpandPath(c.Browser.DownloadDir)
	c.Browser.SelectorsFile = ExpandPath(c.Browser.SelectorsFile)
	c.Ledger.DBPath = ExpandPath(c.Ledger.DBPath)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.OutputDir == "" {
		errs = append(errs, "general.outputDir is required")
	}

	if cfg.Backend.APIBase == "" {
		errs = append(errs, "backend.apiBase is required")
	}
	if cfg.Backend.AnswerModel == "" || cfg.Backend.NamingModel == "" {
		errs = append(errs, "backend.answerModel and backend.namingModel are required")
	}
	if cfg.Backend.TimeoutSeconds < 1 {
		errs = append(errs, "backend.timeoutSeconds must be >= 1")
	}
	if cfg.Backend.MaxRetries < 0 || cfg.Backend.MaxRetries > 5 {
		errs = append(errs, "backend.maxRetries must be between 0 and 5")
	}
	if cfg.Backend.ThinkingBudget < 0 {
		errs = append(errs, "backend.thinkingBudget must be >= 0")
	}

	if cfg.Browser.URL == "" {
		errs = append(errs, "browser.url is required")
	}
	if cfg.Browser.LookupTimeoutSeconds < 1 {
		errs = append(errs, "browser.lookupTimeoutSeconds must be >= 1")
	}
	if cfg.Browser.LoginTimeoutSeconds < 1 {
		errs = append(errs, "browser.loginTimeoutSeconds must be >= 1")
	}
	if cfg.Browser.DownloadWaitSeconds < 0 {
		errs = append(errs, "browser.downloadWaitSeconds must be >= 0")
	}

	if cfg.Watcher.PollIntervalSeconds < 1 || cfg.Watcher.PollIntervalSeconds > 300 {
		errs = append(errs, "watcher.pollIntervalSeconds must be between 1 and 300")
	}
	if cfg.Watcher.ErrorBackoffSeconds < 0 {
		errs = append(errs, "watcher.errorBackoffSeconds must be >= 0")
	}

	if cfg.Context.MaxEntries < 1 || cfg.Context.MaxEntries > 100 {
		errs = append(errs, "context.maxEntries must be between 1 and 100")
	}
	if cfg.Context.MaxTokens < 0 {
		errs = append(errs, "context.maxTokens must be >= 0")
	}

	if cfg.Render.Pandoc == "" {
		errs = append(errs, "render.pandoc is required")
	}

	if cfg.Ledger.Enabled && cfg.Ledger.DBPath == "" {
		errs = append(errs, "ledger.dbPath is required when the ledger is enabled")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
