/*
Package browserfetch implements C6, the fallback headless-browser
fetcher: fetch_html(url) -> html?. It is the rendered-DOM counterpart
to internal/fetcher's plain HTTP path, invoked by the dual-mode engine
only when a page needs JavaScript execution to produce usable content.

Grounded in _examples/Easonliuliang-purify/scraper/scraper.go (launcher
construction, stealth flags, page pool) and scraper/page.go's
doScrapeRod lifecycle (stealth injection before Navigate, context
binding, wait strategy, HTML extraction, deferred pool return). Every
call borrows a page from a fixed-size pool and navigates it to
about:blank before releasing it, so the previous page's DOM is gone.
Pooled pages are reused across calls and all share the browser's
default context: cookies (including those set from the login
provider) and other browser storage persist from one call to the next.
*/
package browserfetch

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/rohmanhakim/smartcrawl/internal/login"
	"github.com/rohmanhakim/smartcrawl/internal/metadata"
)

// Fetcher owns the browser process and its page pool. It is safe for
// concurrent use; each Fetch call borrows and returns its own page.
type Fetcher struct {
	browser  *rod.Browser
	pagePool rod.Pool[rod.Page]
	cfg      BrowserConfig

	metadataSink  metadata.MetadataSink
	loginProvider login.Provider
}

// NewFetcher launches a headless browser with the stealth flag set
// and initialises the page pool. Callers must call Close on shutdown.
func NewFetcher(cfg BrowserConfig, metadataSink metadata.MetadataSink, loginProvider login.Provider) (*Fetcher, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.DefaultProxy != "" {
		l = l.Proxy(cfg.DefaultProxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-prompt-on-repost"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, &BrowserError{
			Message:   "failed to launch browser: " + err.Error(),
			Retryable: false,
			Cause:     ErrCauseLaunchFailed,
		}
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, &BrowserError{
			Message:   "failed to connect to browser: " + err.Error(),
			Retryable: false,
			Cause:     ErrCauseLaunchFailed,
		}
	}

	maxPages := cfg.MaxPages
	if maxPages < 1 {
		maxPages = 1
	}

	return &Fetcher{
		browser:       browser,
		pagePool:      rod.NewPagePool(maxPages),
		cfg:           cfg,
		metadataSink:  metadataSink,
		loginProvider: loginProvider,
	}, nil
}

// Close drains the page pool and kills the browser process.
func (f *Fetcher) Close() {
	f.pagePool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	f.browser.MustClose()
}

// Fetch renders target in a pooled headless tab and returns the
// post-render HTML. Any launch, navigation, or extraction failure
// collapses to ok=false per spec.md §4.5 — the browser fetcher never
// surfaces an error to its caller, only a metadata record. The
// browser's outbound proxy (if any) is fixed at launch time via
// BrowserConfig.DefaultProxy, matching the reference launcher's
// one-proxy-per-process model; it cannot be overridden per call.
func (f *Fetcher) Fetch(ctx context.Context, target url.URL, timeout time.Duration) (string, bool) {
	if timeout <= 0 || timeout > f.cfg.MaxTimeout {
		timeout = f.cfg.MaxTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	startTime := time.Now()
	html, fetchErr := f.fetchOnce(ctx, target)
	duration := time.Since(startTime)

	if fetchErr != nil {
		f.metadataSink.RecordFetch(target.String(), 0, duration, "", 1, 0)
		f.metadataSink.RecordError(
			time.Now(),
			"browserfetch",
			"Fetcher.Fetch",
			mapBrowserErrorToMetadataCause(fetchErr),
			fetchErr.Error(),
			[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, target.String())},
		)
		return "", false
	}

	f.metadataSink.RecordFetch(target.String(), 200, duration, "text/html", 1, 0)
	return html, true
}

func (f *Fetcher) fetchOnce(ctx context.Context, target url.URL) (string, *BrowserError) {
	page, acquireErr := f.pagePool.Get(func() (*rod.Page, error) {
		return f.browser.Page(proto.TargetCreateTarget{})
	})
	if acquireErr != nil {
		return "", &BrowserError{
			Message:   "failed to acquire page from pool: " + acquireErr.Error(),
			Retryable: true,
			Cause:     ErrCausePoolExhausted,
		}
	}
	defer func() {
		if navErr := page.Navigate("about:blank"); navErr != nil {
			slog.Debug("cleanup: failed to reset page to about:blank", "error", navErr)
		}
		f.pagePool.Put(page)
	}()

	// Stealth injection MUST happen before Navigate: it only affects
	// documents loaded after the script is installed.
	if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
		slog.Debug("stealth injection failed, proceeding without it", "error", evalErr)
	}

	for _, cookie := range f.loginProvider.Cookies() {
		domain := cookie.Domain
		if domain == "" {
			domain = target.Host
		}
		path := cookie.Path
		if path == "" {
			path = "/"
		}
		_, _ = proto.NetworkSetCookie{
			Name:   cookie.Name,
			Value:  cookie.Value,
			Domain: domain,
			Path:   path,
		}.Call(page)
	}

	if headers := f.loginProvider.AuthHeaders(); len(headers) > 0 {
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(headers)}.Call(page)
	}

	p := page.Context(ctx)

	if navErr := p.Navigate(target.String()); navErr != nil {
		return "", &BrowserError{
			Message:   "navigation failed: " + navErr.Error(),
			Retryable: true,
			Cause:     ErrCauseNavigationFailed,
		}
	}

	// WaitRequestIdle relies on the Fetch domain, which conflicts with
	// resource hijacking on recent Chromium; WaitDOMStable is used as
	// the practical networkidle-equivalent instead.
	if stableErr := p.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", stableErr)
	}

	html, htmlErr := p.HTML()
	if htmlErr != nil {
		return "", &BrowserError{
			Message:   "failed to extract page HTML: " + htmlErr.Error(),
			Retryable: true,
			Cause:     ErrCauseExtractFailed,
		}
	}

	return html, nil
}

func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	out := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		out[k] = gson.New(v)
	}
	return out
}
