package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/chromedp/chromedp"

	"docbot/internal/domain"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Bridge launches Chrome on a persistent profile so the chat login survives
// restarts.
type Bridge struct {
	profileDir string
	headless   bool
	execPath   string
	logger     *slog.Logger
}

type BridgeConfig struct {
	ProfileDir string // Chrome user data directory
	Headless   bool   // the first login needs a visible window for the QR code
	ExecPath   string // optional Chrome binary, otherwise chromedp looks it up
	Logger     *slog.Logger
}

func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Bridge{
		profileDir: cfg.ProfileDir,
		headless:   cfg.Headless,
		execPath:   cfg.ExecPath,
		logger:     cfg.Logger,
	}
}

func (b *Bridge) allocatorOptions(headless bool) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.UserAgent(userAgent),
	)
	if b.profileDir != "" {
		opts = append(opts, chromedp.UserDataDir(b.profileDir))
	}
	if b.execPath != "" {
		opts = append(opts, chromedp.ExecPath(b.execPath))
	}
	if headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	return opts
}

// NewContext starts a browser and returns a tab context. The caller must
// call cancel on every exit path; it closes the tab and the browser.
func (b *Bridge) NewContext(parent context.Context) (context.Context, context.CancelFunc) {
	return b.newContext(parent, b.headless)
}

func (b *Bridge) newContext(parent context.Context, headless bool) (context.Context, context.CancelFunc) {
	if b.profileDir != "" {
		if err := os.MkdirAll(b.profileDir, 0o755); err != nil {
			b.logger.Error("failed to create profile dir", "dir", b.profileDir, "err", err)
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, b.allocatorOptions(headless)...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		b.logger.Debug(fmt.Sprintf(format, args...))
	}))

	return taskCtx, func() {
		taskCancel()
		allocCancel()
	}
}

// Login opens a visible browser at url and waits until readySelector shows
// up, which means the session is authenticated and stored in the profile.
// It gives up when timeout elapses or ctx is cancelled.
func (b *Bridge) Login(ctx context.Context, url, readySelector string, timeout time.Duration) error {
	b.logger.Info("opening browser for login", "url", url, "profile", b.profileDir)

	taskCtx, cancel := b.newContext(ctx, false)
	defer cancel()

	if err := chromedp.Run(taskCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to login page: %w", err)
	}

	b.logger.Info("scan the QR code in the browser window to log in", "timeout", timeout)

	waitCtx, waitCancel := context.WithTimeout(taskCtx, timeout)
	defer waitCancel()
	if err := chromedp.Run(waitCtx, chromedp.WaitReady(readySelector, chromedp.ByQuery)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: not logged in after %s", domain.ErrLookupTimeout, timeout)
		}
		return fmt.Errorf("wait for login: %w", err)
	}

	b.logger.Info("login session saved", "profile", b.profileDir)
	return nil
}
