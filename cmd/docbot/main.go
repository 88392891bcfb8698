package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"docbot/internal/config"
	"docbot/internal/memory"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found, using environment variables")
	}

	root := &cobra.Command{
		Use:   "docbot",
		Short: "docbot: answers chat questions with generated PDFs",
		Long: `docbot watches the WeChat file transfer assistant in a browser, sends each
new question to an OpenAI-compatible model and replies with the answer
rendered to PDF.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.docbot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(loginCmd())
	root.AddCommand(askCmd())
	root.AddCommand(convertCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the config file, falling back to defaults when it does
// not exist, and reconfigures the global logger from it. The returned func
// closes the log file, if any.
func loadConfig() (*config.Config, func(), error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if _, statErr := os.Stat(config.ExpandPath(cfgPath)); !os.IsNotExist(statErr) {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
		logger.Warn("config not found, using defaults", "path", cfgPath)
		cfg = config.Defaults()
	}
	closeLog, err := configureLogger(cfg.General)
	if err != nil {
		return nil, nil, err
	}
	return cfg, closeLog, nil
}

func configureLogger(g config.GeneralConfig) (func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(g.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	closeFn := func() {}
	if g.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(g.LogFile), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(g.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closeFn = func() { f.Close() }
	}

	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	return closeFn, nil
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default config and the output directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.ExpandPath(resolveConfigPath())
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", cfgPath)
			}
			if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			for _, dir := range []string{
				filepath.Join(cfg.General.OutputDir, "markdown"),
				filepath.Join(cfg.General.OutputDir, "pdf"),
				cfg.Browser.ProfileDir,
			} {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			logger.Info("initialized", "config", cfgPath, "output", cfg.General.OutputDir)
			fmt.Println("Next: run 'docbot login' to scan the QR code, then 'docbot run'.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration summary and ledger statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			apiKey := "missing"
			if cfg.Backend.ResolveAPIKey() != "" {
				apiKey = "set"
			}

			fmt.Printf("docbot v%s\n", version)
			fmt.Printf("  config:       %s\n", resolveConfigPath())
			fmt.Printf("  chat page:    %s\n", cfg.Browser.URL)
			fmt.Printf("  backend:      %s (answer=%s, naming=%s, key %s)\n",
				cfg.Backend.APIBase, cfg.Backend.AnswerModel, cfg.Backend.NamingModel, apiKey)
			fmt.Printf("  output:       %s\n", cfg.General.OutputDir)
			fmt.Printf("  context:      %d entries", cfg.Context.MaxEntries)
			if cfg.Context.MaxTokens > 0 {
				fmt.Printf(", %d tokens", cfg.Context.MaxTokens)
			}
			fmt.Println()

			if !cfg.Ledger.Enabled {
				fmt.Println("  ledger:       disabled")
				return nil
			}
			ledger, err := memory.NewSQLiteLedger(cfg.Ledger.DBPath, logger)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer ledger.Close()
			stats, err := ledger.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("  ledger:       %s (schema v%d)\n", cfg.Ledger.DBPath, stats.SchemaVersion)
			fmt.Printf("  artifacts:    %d\n", stats.Count)
			if stats.Count > 0 {
				fmt.Printf("  last answer:  %s\n", stats.LastCreatedAt.Local().Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently produced artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()
			if !cfg.Ledger.Enabled {
				return fmt.Errorf("ledger is disabled (set ledger.enabled to true)")
			}

			ledger, err := memory.NewSQLiteLedger(cfg.Ledger.DBPath, logger)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer ledger.Close()

			records, err := ledger.ListArtifacts(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				data, _ := json.MarshalIndent(records, "", "  ")
				fmt.Println(string(data))
				return nil
			}
			if len(records) == 0 {
				fmt.Println("No artifacts yet.")
				return nil
			}
			for _, r := range records {
				fmt.Printf("%s  %-5s  %s\n", r.CreatedAt.Local().Format("2006-01-02 15:04"), r.QuestionKind, r.PDFPath)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of records to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and modify config values",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <path>",
		Short: "Print a config value by dot path (e.g. backend.answerModel)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			v, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <path> <value>",
		Short: "Set a config value by dot path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("config updated", "path", args[0], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			for _, pv := range config.ListPaths(config.Sanitize(cfg)) {
				fmt.Printf("%s = %v\n", pv.Path, pv.Value)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
