package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"docbot/internal/browser"
	"docbot/internal/config"
	"docbot/internal/memory"
	"docbot/internal/render"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your docbot installation",
		Long: `Verifies that docbot's configuration, API key, pandoc, PDF engine,
output directories and ledger database are correctly set up. Reports
pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("docbot doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(config.ExpandPath(cfgPath)); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'docbot init' to create a default configuration.\n")
				return fmt.Errorf("config file missing")
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				fmt.Printf("\n%d passed, 1 failed\n", passed)
				return fmt.Errorf("invalid config")
			}
			printPass("Config validation", "valid")
			passed++

			// 3. API key
			if cfg.Backend.ResolveAPIKey() == "" {
				printFail("API key", fmt.Sprintf("not set (backend.apiKey or $%s)", cfg.Backend.APIKeyEnv))
				failed++
			} else {
				printPass("API key", "configured")
				passed++
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			// 4. pandoc and PDF engine
			pandoc := render.NewPandoc(render.PandocConfig{Binary: cfg.Render.Pandoc, Logger: logger})
			if v, err := pandoc.Version(ctx); err != nil {
				printFail("pandoc", err.Error())
				failed++
			} else {
				printPass("pandoc", v)
				passed++
			}
			if engine := cfg.Render.PDFEngine; engine != "" {
				if p, err := exec.LookPath(engine); err != nil {
					printFail("PDF engine", fmt.Sprintf("%s not found in PATH", engine))
					failed++
				} else {
					printPass("PDF engine", p)
					passed++
				}
			}

			// 5. Selectors override
			if cfg.Browser.SelectorsFile != "" {
				if _, err := browser.LoadSelectors(cfg.Browser.SelectorsFile); err != nil {
					printFail("Selectors", err.Error())
					failed++
				} else {
					printPass("Selectors", cfg.Browser.SelectorsFile)
					passed++
				}
			}

			// 6. Directories
			for _, d := range []struct{ name, path string }{
				{"Markdown dir", filepath.Join(cfg.General.OutputDir, "markdown")},
				{"PDF dir", filepath.Join(cfg.General.OutputDir, "pdf")},
			} {
				if err := checkWritableDir(d.path); err != nil {
					printFail(d.name, err.Error())
					failed++
				} else {
					printPass(d.name, d.path)
					passed++
				}
			}
			if info, err := os.Stat(cfg.Browser.DownloadDir); err != nil || !info.IsDir() {
				printWarn("Download dir", fmt.Sprintf("not found: %s (image questions will fail)", cfg.Browser.DownloadDir))
				warned++
			} else {
				printPass("Download dir", cfg.Browser.DownloadDir)
				passed++
			}
			if _, err := os.Stat(cfg.Browser.ProfileDir); err != nil {
				printWarn("Browser profile", "no profile yet, run 'docbot login' first")
				warned++
			} else {
				printPass("Browser profile", cfg.Browser.ProfileDir)
				passed++
			}

			// 7. Ledger database
			if cfg.Ledger.Enabled {
				if err := checkLedger(ctx, cfg.Ledger.DBPath); err != nil {
					printFail("Ledger", err.Error())
					failed++
				} else {
					printPass("Ledger", cfg.Ledger.DBPath)
					passed++
				}
			}

			// 8. Metrics port
			if cfg.Metrics.Enabled {
				if err := checkAddr(cfg.Metrics.Addr); err != nil {
					printWarn("Metrics addr", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Addr, err))
					warned++
				} else {
					printPass("Metrics addr", cfg.Metrics.Addr+" available")
					passed++
				}
			}

			// 9. Log file writable
			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running docbot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\ndocbot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! docbot is ready to run.\n")
			}
			return nil
		},
	}
}

func checkWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create: %w", err)
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// checkLedger opens the ledger, which also applies pending migrations.
func checkLedger(ctx context.Context, dbPath string) error {
	ledger, err := memory.NewSQLiteLedger(dbPath, logger)
	if err != nil {
		return err
	}
	defer ledger.Close()
	if err := ledger.Ping(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}
	return nil
}

func checkAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
