package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/rohmanhakim/smartcrawl/internal/detector"
	"github.com/rohmanhakim/smartcrawl/internal/extractfields"
	"github.com/rohmanhakim/smartcrawl/internal/item"
	"github.com/rohmanhakim/smartcrawl/internal/metadata"
	"github.com/rohmanhakim/smartcrawl/pkg/retry"
	"github.com/rohmanhakim/smartcrawl/pkg/urlutil"

	"net/url"
)

// HTMLFetcher is the C5 contract the engine consumes: fetch(url) ->
// html?. internal/fetcher.Gate satisfies this.
type HTMLFetcher interface {
	Fetch(ctx context.Context, target url.URL, userAgent string, retryParam retry.RetryParam) (string, bool)
}

// BrowserFetcher is the C6 contract the engine consumes:
// fetch_html(url) -> html?. internal/browserfetch.Fetcher satisfies
// this. A nil BrowserFetcher means "browser rendering unavailable",
// per config.EnablePlaywright()==false.
type BrowserFetcher interface {
	Fetch(ctx context.Context, target url.URL, timeout time.Duration) (string, bool)
}

// Engine is C9, the dual-mode fetch engine. It owns ModeMemory and
// the per-domain PatternSet cache for the session (spec.md §3
// "Ownership"); the scheduler owns exactly one Engine per session.
type Engine struct {
	html    HTMLFetcher
	browser BrowserFetcher

	metadataSink metadata.MetadataSink
	detectParam  detector.DetectParam

	browserTimeout time.Duration

	mu           sync.Mutex
	byHost       map[string]*domainState
	autoSwitches int
}

// New builds an Engine. browser may be nil when playwright/browser
// rendering is disabled (config.EnablePlaywright()==false); the
// engine then never escalates past HTML.
func New(html HTMLFetcher, browser BrowserFetcher, metadataSink metadata.MetadataSink, browserTimeout time.Duration) *Engine {
	return &Engine{
		html:           html,
		browser:        browser,
		metadataSink:   metadataSink,
		detectParam:    detector.DefaultDetectParam(),
		browserTimeout: browserTimeout,
		byHost:         make(map[string]*domainState),
	}
}

// AutoSwitches returns how many times the engine has escalated a host
// from HTML to BROWSER and recorded it in ModeMemory, per spec.md §9
// "auto_switches increments by 1".
func (e *Engine) AutoSwitches() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.autoSwitches
}

func (e *Engine) stateFor(host string) *domainState {
	s, ok := e.byHost[host]
	if !ok {
		s = &domainState{}
		e.byHost[host] = s
	}
	return s
}

// rememberBrowser records that host needs BROWSER mode and bumps
// auto_switches. Caller must not hold e.mu.
func (e *Engine) rememberBrowser(host string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stateFor(host)
	s.mode = ModeBrowser
	s.hasMode = true
	e.autoSwitches++
}

// resolveStartMode implements spec.md §4.8 step 1: AUTO consults
// ModeMemory, defaulting to HTML when the host has no entry yet.
func (e *Engine) resolveStartMode(host string, requested Mode) Mode {
	if requested != ModeAuto {
		return requested
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stateFor(host)
	if s.hasMode {
		return s.mode
	}
	return ModeHTML
}

// Fetch implements fetch(url, mode) -> (html?, actual_mode) of
// spec.md §4.8.
func (e *Engine) Fetch(ctx context.Context, target url.URL, mode Mode, userAgent string, retryParam retry.RetryParam) FetchOutcome {
	host := urlutil.Domain(target)
	start := e.resolveStartMode(host, mode)

	if start == ModeHTML {
		if html, ok := e.html.Fetch(ctx, target, userAgent, retryParam); ok {
			return FetchOutcome{HTML: html, ActualMode: ModeHTML, OK: true}
		}
		if e.browser == nil {
			e.recordFailure(target, ErrCauseFetchExhausted)
			return FetchOutcome{ActualMode: ModeHTML, OK: false}
		}
		if html, ok := e.browser.Fetch(ctx, target, e.browserTimeout); ok {
			e.rememberBrowser(host)
			return FetchOutcome{HTML: html, ActualMode: ModeBrowser, OK: true}
		}
		e.recordFailure(target, ErrCauseFetchExhausted)
		return FetchOutcome{ActualMode: ModeBrowser, OK: false}
	}

	// start == ModeBrowser
	if e.browser == nil {
		e.recordFailure(target, ErrCauseFetchExhausted)
		return FetchOutcome{ActualMode: ModeBrowser, OK: false}
	}
	if html, ok := e.browser.Fetch(ctx, target, e.browserTimeout); ok {
		return FetchOutcome{HTML: html, ActualMode: ModeBrowser, OK: true}
	}
	e.recordFailure(target, ErrCauseFetchExhausted)
	return FetchOutcome{ActualMode: ModeBrowser, OK: false}
}

// patternsFor returns the cached PatternSet for host, detecting it
// from doc when absent. Detection runs at most once per domain for
// the lifetime of the Engine (spec.md §3).
func (e *Engine) patternsFor(host string, doc *goquery.Document, pageURL url.URL) (detector.PatternSet, bool) {
	e.mu.Lock()
	s := e.stateFor(host)
	if s.hasPatterns {
		patterns := s.patterns
		e.mu.Unlock()
		return patterns, true
	}
	e.mu.Unlock()

	patterns, err := detector.Analyze(doc, pageURL, e.detectParam)
	if err != nil {
		e.metadataSink.RecordError(
			time.Now(), "engine", "Engine.patternsFor",
			mapEngineCauseToMetadataCause(ErrCauseDetectionMiss),
			err.Error(),
			[]metadata.Attribute{metadata.NewAttr(metadata.AttrHost, host)},
		)
		return detector.PatternSet{}, false
	}

	e.mu.Lock()
	s.patterns = patterns
	s.hasPatterns = true
	e.mu.Unlock()
	return patterns, true
}

// FetchAndExtract implements fetch_and_extract(url, mode) -> (items,
// next_url?, actual_mode) of spec.md §4.8, including the
// zero-item-triggers-browser-escalation step (ExtractionMiss of
// §4.10/§4.8 step 3).
func (e *Engine) FetchAndExtract(ctx context.Context, target url.URL, mode Mode, userAgent string, retryParam retry.RetryParam) ExtractOutcome {
	host := urlutil.Domain(target)

	fetched := e.Fetch(ctx, target, mode, userAgent, retryParam)
	if !fetched.OK {
		return ExtractOutcome{ActualMode: fetched.ActualMode, OK: false}
	}

	items, next := e.extractOnce(host, fetched.HTML, target)

	if len(items) == 0 && fetched.ActualMode == ModeHTML && e.browser != nil {
		if html, ok := e.browser.Fetch(ctx, target, e.browserTimeout); ok {
			e.rememberBrowser(host)
			retryItems, retryNext := e.extractOnce(host, html, target)
			return ExtractOutcome{Items: retryItems, NextURL: retryNext, ActualMode: ModeBrowser, OK: true}
		}
	}

	return ExtractOutcome{Items: items, NextURL: next, ActualMode: fetched.ActualMode, OK: true}
}

// extractOnce parses html, resolves (or detects) the domain's
// PatternSet, extracts items, and derives the next-page URL.
func (e *Engine) extractOnce(host, html string, pageURL url.URL) ([]item.Item, string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, ""
	}

	patterns, ok := e.patternsFor(host, doc, pageURL)
	if !ok {
		return nil, ""
	}

	items, extractErr := extractfields.Extract(doc, pageURL, patterns)
	if extractErr != nil {
		return nil, nextPageURL(patterns)
	}

	for i := range items {
		e.metadataSink.RecordItem(items[i].Meta.Selector, itemAttrs(items[i]))
	}

	return items, nextPageURL(patterns)
}

func itemAttrs(it item.Item) []metadata.Attribute {
	attrs := make([]metadata.Attribute, 0, len(it.Fields))
	for k, v := range it.Fields {
		attrs = append(attrs, metadata.NewAttr(metadata.AttributeKey(k), v))
	}
	return attrs
}

// nextPageURL derives the next-page URL from a PatternSet's
// pagination hint, per spec.md §4.8. load_more never produces one
// (spec.md §9 "Open questions": no driver is specified for it).
func nextPageURL(patterns detector.PatternSet) string {
	if patterns.Pagination == nil {
		return ""
	}
	switch patterns.Pagination.Kind {
	case detector.PaginationButton:
		return patterns.Pagination.NextURL
	case detector.PaginationLinks:
		if !strings.Contains(patterns.Pagination.URLPattern, "{page}") {
			return ""
		}
		next := patterns.Pagination.Current + 1
		return strings.ReplaceAll(patterns.Pagination.URLPattern, "{page}", strconv.Itoa(next))
	default:
		return ""
	}
}

func (e *Engine) recordFailure(target url.URL, cause EngineErrorCause) {
	e.metadataSink.RecordError(
		time.Now(), "engine", "Engine.Fetch",
		mapEngineCauseToMetadataCause(cause),
		fmt.Sprintf("%s: %s", cause, target.String()),
		[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, target.String())},
	)
}

// FetchBatch applies the engine over urls under a caller-supplied
// concurrency bound, per spec.md §4.8 "Batch fetch": per-URL failures
// are swallowed (logged, not returned), and only successful
// (url, html, mode) tuples are gathered.
func (e *Engine) FetchBatch(ctx context.Context, urls []url.URL, mode Mode, userAgent string, retryParam retry.RetryParam, concurrency int) []BatchResult {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]BatchResult, len(urls))
	ok := make([]bool, len(urls))

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, u := range urls {
		wg.Add(1)
		go func(i int, u url.URL) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcome := e.Fetch(ctx, u, mode, userAgent, retryParam)
			if !outcome.OK {
				e.metadataSink.Log(fmt.Sprintf("batch fetch failed for %s", u.String()))
				return
			}
			results[i] = BatchResult{URL: u, HTML: outcome.HTML, ActualMode: outcome.ActualMode}
			ok[i] = true
		}(i, u)
	}
	wg.Wait()

	out := make([]BatchResult, 0, len(urls))
	for i, res := range results {
		if ok[i] {
			out = append(out, res)
		}
	}
	return out
}
