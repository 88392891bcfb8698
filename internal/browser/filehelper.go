package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"docbot/internal/domain"
)

const (
	defaultLookupTimeout = 10 * time.Second
	defaultDownloadWait  = 2 * time.Second
)

// Entry kinds reported by the classification script.
const (
	entryText  = "text"
	entryImage = "image"
	entryOther = "other"
	entryNone  = "none"
)

// FileHelper implements domain.ChatSurface on the file transfer assistant
// page, driven through an existing chromedp tab.
type FileHelper struct {
	tab           context.Context
	url           string
	sel           SelectorSet
	downloadDir   string
	downloadWait  time.Duration
	lookupTimeout time.Duration
	downloads     downloadCache
	logger        *slog.Logger
}

type FileHelperConfig struct {
	Tab           context.Context // from Bridge.NewContext
	URL           string
	Selectors     SelectorSet
	DownloadDir   string
	DownloadWait  time.Duration
	LookupTimeout time.Duration
	Logger        *slog.Logger
}

func NewFileHelper(cfg FileHelperConfig) *FileHelper {
	if cfg.Selectors == (SelectorSet{}) {
		cfg.Selectors = FileHelperSelectors()
	}
	if cfg.DownloadWait <= 0 {
		cfg.DownloadWait = defaultDownloadWait
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = defaultLookupTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &FileHelper{
		tab:           cfg.Tab,
		url:           cfg.URL,
		sel:           cfg.Selectors,
		downloadDir:   cfg.DownloadDir,
		downloadWait:  cfg.DownloadWait,
		lookupTimeout: cfg.LookupTimeout,
		logger:        cfg.Logger,
	}
}

// withTimeout derives a context from the tab that also ends when ctx does.
func (f *FileHelper) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	c, cancel := context.WithTimeout(f.tab, d)
	stop := context.AfterFunc(ctx, cancel)
	return c, func() {
		stop()
		cancel()
	}
}

// Open navigates to the chat page, routes downloads into the download
// directory and waits up to loginTimeout for the input to appear.
func (f *FileHelper) Open(ctx context.Context, loginTimeout time.Duration) error {
	if f.downloadDir != "" {
		if err := os.MkdirAll(f.downloadDir, 0o755); err != nil {
			return fmt.Errorf("create download dir: %w", err)
		}
	}

	runCtx, cancel := f.withTimeout(ctx, loginTimeout)
	defer cancel()

	actions := []chromedp.Action{chromedp.Navigate(f.url)}
	if f.downloadDir != "" {
		actions = append(actions, cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(f.downloadDir))
	}
	f.logger.Info("opening chat page, scan the QR code if asked", "url", f.url, "timeout", loginTimeout)
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return fmt.Errorf("open chat page: %w", err)
	}

	if err := chromedp.Run(runCtx, chromedp.WaitReady(f.sel.Input, chromedp.ByQuery)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w: chat input %q did not appear within %s", domain.ErrLookupTimeout, f.sel.Input, loginTimeout)
		}
		return fmt.Errorf("wait for chat input: %w", err)
	}
	f.logger.Info("chat page ready")
	return nil
}

// entry is the tagged result of classifying the newest message entry.
// Ref is the entry's item attribute, or the image source when it has none.
type entry struct {
	Kind string `json:"kind"`
	Ref  string `json:"ref"`
	HTML string `json:"html"`
	Text string `json:"text"`
}

// downloadCache remembers the file downloaded for the last image entry, so
// polling the same entry again neither clicks download nor yields a new path.
type downloadCache struct {
	mu   sync.Mutex
	ref  string
	path string
}

func (c *downloadCache) lookup(ref string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ref == "" || ref != c.ref {
		return "", false
	}
	return c.path, true
}

func (c *downloadCache) remember(ref, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ref, c.path = ref, path
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// classifyScript inspects the newest self-authored entry once. A text node
// wins over an image node.
func (f *FileHelper) classifyScript() string {
	return fmt.Sprintf(`(() => {
	const items = document.querySelectorAll(%s);
	if (items.length === 0) return {kind: %q};
	const last = items[items.length - 1];
	const item = last.getAttribute("item") || "";
	const text = last.querySelector(%s);
	if (text) return {kind: %q, ref: item, html: text.innerHTML, text: text.innerText || text.textContent || ""};
	const img = last.querySelector(%s);
	if (img) {
		const src = img.getAttribute("src") || (img.querySelector("img") || {}).src || "";
		return {kind: %q, ref: item || src};
	}
	return {kind: %q, ref: item};
})()`, jsString(f.sel.Messages), entryNone, jsString(f.sel.Text), entryText, jsString(f.sel.Image), entryImage, entryOther)
}

// downloadScript clicks the download action of the newest entry, falling
// back to the last download action on the page.
func (f *FileHelper) downloadScript() string {
	return fmt.Sprintf(`(() => {
	const items = document.querySelectorAll(%s);
	const last = items.length ? items[items.length - 1] : null;
	let link = last ? last.querySelector(%s) : null;
	if (!link) {
		const all = document.querySelectorAll(%s);
		link = all.length ? all[all.length - 1] : null;
	}
	if (!link) return false;
	link.click();
	return true;
})()`, jsString(f.sel.Messages), jsString(f.sel.Download), jsString(f.sel.Download))
}

// LastMessage reads the newest self-authored entry. Text is converted from
// the bubble's HTML to markdown; images are downloaded and returned by path.
// ok is false when nothing actionable is there, including a lookup timeout.
func (f *FileHelper) LastMessage(ctx context.Context) (domain.Message, bool, error) {
	lookupCtx, cancel := f.withTimeout(ctx, f.lookupTimeout)
	defer cancel()

	if err := chromedp.Run(lookupCtx, chromedp.WaitReady(f.sel.Messages, chromedp.ByQuery)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			f.logger.Debug("no message entries yet")
			return domain.Message{}, false, nil
		}
		return domain.Message{}, false, fmt.Errorf("wait for messages: %w", err)
	}

	var e entry
	if err := chromedp.Run(lookupCtx, chromedp.Evaluate(f.classifyScript(), &e)); err != nil {
		return domain.Message{}, false, fmt.Errorf("classify last message: %w", err)
	}

	switch e.Kind {
	case entryText:
		msg, ok := textMessage(e)
		return msg, ok, nil
	case entryImage:
		if path, ok := f.downloads.lookup(e.Ref); ok {
			return domain.Message{Kind: domain.KindImage, Content: path, Ref: e.Ref}, true, nil
		}
		msg, ok, err := f.downloadImage(ctx)
		if err != nil || !ok {
			return msg, ok, err
		}
		msg.Ref = e.Ref
		f.downloads.remember(e.Ref, msg.Content)
		return msg, true, nil
	default:
		return domain.Message{}, false, nil
	}
}

func textMessage(e entry) (domain.Message, bool) {
	text := textFromHTML(e.HTML, e.Text)
	if text == "" {
		return domain.Message{}, false
	}
	return domain.TextMessage(text), true
}

// bubbleConverter renders bubble HTML without markdown escaping, so
// underscores, brackets and LaTeX backslashes survive as typed.
var bubbleConverter = converter.NewConverter(
	converter.WithPlugins(base.NewBasePlugin(), commonmark.NewCommonmarkPlugin()),
	converter.WithEscapeMode(converter.EscapeModeDisabled),
)

// textFromHTML returns the bubble's text as the user typed it. The rendered
// text is used whenever there is any; bubbles without it (inline images
// such as emoji only) fall back to the HTML rendered as markdown.
func textFromHTML(bubbleHTML, plain string) string {
	if text := strings.TrimSpace(plain); text != "" {
		return text
	}
	if strings.TrimSpace(bubbleHTML) == "" {
		return ""
	}
	md, err := bubbleConverter.ConvertString(bubbleHTML)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(md))
}

func (f *FileHelper) downloadImage(ctx context.Context) (domain.Message, bool, error) {
	clickCtx, cancel := f.withTimeout(ctx, f.lookupTimeout)
	defer cancel()

	var clicked bool
	if err := chromedp.Run(clickCtx, chromedp.Evaluate(f.downloadScript(), &clicked)); err != nil {
		return domain.Message{}, false, fmt.Errorf("click download: %w", err)
	}
	if !clicked {
		f.logger.Debug("image entry has no download action")
		return domain.Message{}, false, nil
	}

	select {
	case <-ctx.Done():
		return domain.Message{}, false, ctx.Err()
	case <-time.After(f.downloadWait):
	}

	path, ok, err := NewestImage(f.downloadDir)
	if err != nil {
		return domain.Message{}, false, fmt.Errorf("scan downloads: %w", err)
	}
	if !ok {
		f.logger.Warn("no downloaded image found", "dir", f.downloadDir)
		return domain.Message{}, false, nil
	}
	return domain.ImageMessage(path), true, nil
}

// Send types a text message followed by Enter, or attaches a file through
// the upload control.
func (f *FileHelper) Send(ctx context.Context, msg domain.Message) error {
	runCtx, cancel := f.withTimeout(ctx, f.lookupTimeout)
	defer cancel()

	var action chromedp.Action
	var target string
	switch msg.Kind {
	case domain.KindText:
		target = f.sel.Input
		action = chromedp.SendKeys(f.sel.Input, msg.Content+kb.Enter, chromedp.ByQuery)
	case domain.KindFile:
		abs, err := filepath.Abs(msg.Content)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", msg.Content, err)
		}
		target = f.sel.FileInput
		action = chromedp.SetUploadFiles(f.sel.FileInput, []string{abs}, chromedp.ByQuery)
	default:
		return fmt.Errorf("%w: cannot send a %s message", domain.ErrInvalidInput, msg.Kind)
	}

	if err := chromedp.Run(runCtx, action); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w: %q not found within %s", domain.ErrLookupTimeout, target, f.lookupTimeout)
		}
		return fmt.Errorf("send %s: %w", msg.Kind, err)
	}
	f.logger.Info("message sent", "kind", msg.Kind, "content", truncate(msg.Content, 50))
	return nil
}

// WaitForChange resolves true on the first DOM mutation, or false once
// timeout elapses without one.
func (f *FileHelper) WaitForChange(ctx context.Context, timeout time.Duration) (bool, error) {
	script := fmt.Sprintf(`new Promise(resolve => {
	let done = false;
	const finish = (v) => { if (!done) { done = true; obs.disconnect(); resolve(v); } };
	const obs = new MutationObserver(() => finish(true));
	obs.observe(document.body, {childList: true, subtree: true, characterData: true});
	setTimeout(() => finish(false), %d);
})`, timeout.Milliseconds())

	runCtx, cancel := f.withTimeout(ctx, timeout+f.lookupTimeout)
	defer cancel()

	var changed bool
	err := chromedp.Run(runCtx, chromedp.Evaluate(script, &changed, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		return false, fmt.Errorf("wait for change: %w", err)
	}
	return changed, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
