package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"docbot/internal/agent"
	"docbot/internal/browser"
	"docbot/internal/config"
	"docbot/internal/domain"
	"docbot/internal/memory"
	"docbot/internal/metrics"
	"docbot/internal/provider"
	"docbot/internal/render"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// components is everything between a question and its PDF reply.
type components struct {
	pipeline *agent.Pipeline
	pandoc   *render.Pandoc
	backend  *provider.OpenAI
	ledger   *memory.SQLiteLedger
}

func (c *components) Close() {
	if c.ledger != nil {
		c.ledger.Close()
	}
}

// buildComponents wires the question pipeline from cfg. It fails fast when
// the backend credential is missing.
func buildComponents(cfg *config.Config) (*components, error) {
	apiKey := cfg.Backend.ResolveAPIKey()
	if apiKey == "" {
		return nil, fmt.Errorf("%w: no API key (set backend.apiKey or $%s)", domain.ErrConfiguration, cfg.Backend.APIKeyEnv)
	}

	backend := provider.NewOpenAI(provider.OpenAIConfig{
		APIKey:  apiKey,
		APIBase: cfg.Backend.APIBase,
		Model:   cfg.Backend.AnswerModel,
		Client:  provider.SharedHTTPClient(seconds(cfg.Backend.TimeoutSeconds)),
		Retry: provider.RetryPolicy{
			MaxRetries: cfg.Backend.MaxRetries,
			Delay:      seconds(cfg.Backend.RetryDelaySeconds),
		},
		Logger: logger,
	})

	// The tokenizer is only loaded when a token budget is configured; its
	// ranks file may be fetched over the network on first use.
	var counter agent.TokenCounter
	if cfg.Context.MaxTokens > 0 {
		tc, err := agent.NewTiktokenCounter(cfg.Backend.AnswerModel)
		if err != nil {
			logger.Warn("token budget disabled", "err", err)
		} else {
			counter = tc
		}
	}

	window := agent.NewContextWindow(agent.ContextWindowConfig{
		MaxEntries: cfg.Context.MaxEntries,
		MaxTokens:  cfg.Context.MaxTokens,
		Counter:    counter,
	})

	var thinking *domain.ThinkingOptions
	if cfg.Backend.EnableThinking {
		thinking = &domain.ThinkingOptions{Enabled: true, Budget: cfg.Backend.ThinkingBudget}
	}

	answerer := agent.NewAnswerer(agent.AnswererConfig{
		Provider: backend,
		Window:   window,
		Model:    cfg.Backend.AnswerModel,
		Thinking: thinking,
		Counter:  counter,
		Logger:   logger,
	})
	namer := agent.NewNamer(agent.NamerConfig{
		Provider: backend,
		Model:    cfg.Backend.NamingModel,
		Logger:   logger,
	})
	pandoc := render.NewPandoc(render.PandocConfig{
		Binary:   cfg.Render.Pandoc,
		Defaults: cfg.Render.Options(),
		Logger:   logger,
	})

	c := &components{pandoc: pandoc, backend: backend}

	var ledger domain.ArtifactLedger
	if cfg.Ledger.Enabled {
		l, err := memory.NewSQLiteLedger(cfg.Ledger.DBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		c.ledger = l
		ledger = l
	}

	c.pipeline = agent.NewPipeline(agent.PipelineConfig{
		Answerer:  answerer,
		Namer:     namer,
		Converter: pandoc,
		Window:    window,
		Ledger:    ledger,
		OutputDir: cfg.General.OutputDir,
		Logger:    logger,
	})
	return c, nil
}

func newBridge(cfg *config.Config) *browser.Bridge {
	return browser.NewBridge(browser.BridgeConfig{
		ProfileDir: cfg.Browser.ProfileDir,
		Headless:   cfg.Browser.Headless,
		Logger:     logger,
	})
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Watch the chat and answer new questions",
		Long: `Opens the file transfer assistant in a browser, then polls the newest
message. Each new text or image question is answered, rendered to PDF
and the PDF is sent back. Press Ctrl+C to stop.`,
		RunE: runWatcher,
	}
}

func runWatcher(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	comps, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	if err := comps.backend.Healthy(ctx); err != nil {
		logger.Warn("backend unhealthy at startup", "err", err)
	}
	if v, err := comps.pandoc.Version(ctx); err != nil {
		logger.Warn("pandoc not usable, conversions will fail", "err", err)
	} else {
		logger.Info("pandoc found", "version", v)
	}

	selectors, err := browser.LoadSelectors(cfg.Browser.SelectorsFile)
	if err != nil {
		return err
	}

	tab, closeBrowser := newBridge(cfg).NewContext(ctx)
	defer closeBrowser()

	chat := browser.NewFileHelper(browser.FileHelperConfig{
		Tab:           tab,
		URL:           cfg.Browser.URL,
		Selectors:     selectors,
		DownloadDir:   cfg.Browser.DownloadDir,
		DownloadWait:  seconds(cfg.Browser.DownloadWaitSeconds),
		LookupTimeout: seconds(cfg.Browser.LookupTimeoutSeconds),
		Logger:        logger,
	})
	if err := chat.Open(ctx, seconds(cfg.Browser.LoginTimeoutSeconds)); err != nil {
		return fmt.Errorf("open chat page: %w", err)
	}

	watcher := agent.NewWatcher(agent.WatcherConfig{
		Surface:      chat,
		Handler:      comps.pipeline,
		EchoMarker:   cfg.Watcher.EchoMarker,
		PollInterval: seconds(cfg.Watcher.PollIntervalSeconds),
		ErrorBackoff: seconds(cfg.Watcher.ErrorBackoffSeconds),
		Logger:       logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return watcher.Run(gctx) })
	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(metrics.ServerConfig{Addr: cfg.Metrics.Addr, Logger: logger})
		g.Go(func() error { return srv.Run(gctx) })
	}

	logger.Info("watching chat. Press Ctrl+C to stop.", "output", cfg.General.OutputDir)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("stopped")
	return nil
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Open a visible browser to scan the login QR code",
		Long:  "Opens the chat page in a visible browser using the persistent profile, so later runs start logged in.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			selectors, err := browser.LoadSelectors(cfg.Browser.SelectorsFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			timeout := 2 * time.Minute
			if t := seconds(cfg.Browser.LoginTimeoutSeconds); t > timeout {
				timeout = t
			}
			if err := newBridge(cfg).Login(ctx, cfg.Browser.URL, selectors.Input, timeout); err != nil {
				return err
			}
			fmt.Println("Logged in. Run 'docbot run' to start watching.")
			return nil
		},
	}
}

func askCmd() *cobra.Command {
	var imagePath string
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question without the browser and print the PDF path",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var msg domain.Message
			switch {
			case imagePath != "":
				abs, err := filepath.Abs(imagePath)
				if err != nil {
					return err
				}
				msg = domain.ImageMessage(abs)
			case len(args) == 1:
				msg = domain.TextMessage(args[0])
			default:
				return fmt.Errorf("%w: pass a question or --image", domain.ErrInvalidInput)
			}

			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			comps, err := buildComponents(cfg)
			if err != nil {
				return err
			}
			defer comps.Close()

			reply, err := comps.pipeline.HandleQuestion(ctx, msg)
			if err != nil {
				return err
			}
			fmt.Println(reply.Content)
			return nil
		},
	}
	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "answer the question shown in this image")
	return cmd
}

func convertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convert <input.md> <output.pdf> [-- pandoc options...]",
		Short: "Render a markdown file to PDF with the configured pandoc options",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			pandoc := render.NewPandoc(render.PandocConfig{
				Binary:   cfg.Render.Pandoc,
				Defaults: cfg.Render.Options(),
				Logger:   logger,
			})
			if err := pandoc.Convert(cmd.Context(), args[0], args[1], args[2:]...); err != nil {
				return err
			}
			fmt.Println(args[1])
			return nil
		},
	}
}
