package main

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docbot/internal/config"
	"docbot/internal/domain"
)

func TestMain(m *testing.M) {
	logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	os.Exit(m.Run())
}

func TestBuildComponents_MissingKey(t *testing.T) {
	cfg := config.Defaults()
	cfg.Backend.APIKey = ""
	cfg.Backend.APIKeyEnv = "DOCBOT_TEST_UNSET_KEY"
	t.Setenv("DOCBOT_TEST_UNSET_KEY", "")
	cfg.Ledger.Enabled = false

	_, err := buildComponents(cfg)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestBuildComponents_WithLedger(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Backend.APIKey = "sk-test"
	cfg.General.OutputDir = dir
	cfg.Ledger.DBPath = filepath.Join(dir, "ledger.db")

	comps, err := buildComponents(cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer comps.Close()
	if comps.ledger == nil || comps.pipeline == nil {
		t.Fatal("expected pipeline and ledger")
	}
	if got := comps.pipeline.PDFDir(); got != filepath.Join(dir, "pdf") {
		t.Fatalf("unexpected pdf dir %s", got)
	}
}

func TestConfigureLogger_TeesToFile(t *testing.T) {
	old := logger
	defer func() { logger = old }()

	logPath := filepath.Join(t.TempDir(), "logs", "docbot.log")
	closeLog, err := configureLogger(config.GeneralConfig{LogLevel: "debug", LogFile: logPath})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	logger.Debug("hello from test")
	closeLog()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "hello from test") {
		t.Fatalf("log file missing entry: %q", data)
	}
}

func TestResolveConfigPath(t *testing.T) {
	old := configPath
	defer func() { configPath = old }()

	configPath = ""
	if got := resolveConfigPath(); got != config.DefaultConfigPath() {
		t.Fatalf("expected default path, got %s", got)
	}
	configPath = "/tmp/custom.json"
	if got := resolveConfigPath(); got != "/tmp/custom.json" {
		t.Fatalf("expected flag path, got %s", got)
	}
}
