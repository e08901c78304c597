// Package engine implements C9, the dual-mode fetch engine: it
// orchestrates the HTTP fetcher (C5) and the browser fetcher (C6),
// memoizes which mode a host actually needed, and folds in detection
// (C7) and extraction (C8) to hand the scale handler (C10) finished
// items plus a next-page URL. It replaces the teacher's single-path
// fetch step in internal/scheduler/scheduler.go, generalized to the
// mode-escalation decision tree of spec.md §4.8.
package engine

import (
	"net/url"

	"github.com/rohmanhakim/smartcrawl/internal/detector"
	"github.com/rohmanhakim/smartcrawl/internal/item"
)

// Mode selects which fetcher path an Engine call should prefer, per
// spec.md §4.8. ModeAuto consults ModeMemory before falling back to
// ModeHTML.
type Mode string

const (
	ModeAuto    Mode = "auto"
	ModeHTML    Mode = "html"
	ModeBrowser Mode = "browser"
)

// FetchOutcome is the result of a single fetch(url, mode) call: the
// page body (when ok), and the mode actually used to produce it.
type FetchOutcome struct {
	HTML       string
	ActualMode Mode
	OK         bool
}

// ExtractOutcome is the result of fetch_and_extract(url, mode): the
// cleaned items, the mode that was actually used, and the detected
// next-page URL (empty when pagination yields none, e.g. load_more).
type ExtractOutcome struct {
	Items      []item.Item
	NextURL    string
	ActualMode Mode
	OK         bool
}

// BatchResult is one successful entry of a batch fetch: the teacher's
// per-URL tuple, with per-URL failures swallowed (spec.md §4.8
// "Batch fetch ... gathering results and swallowing per-URL
// exceptions with a log line").
type BatchResult struct {
	URL        url.URL
	HTML       string
	ActualMode Mode
}

// domainState is the per-host bundle the engine memoizes across
// calls: the preferred fetch mode (ModeMemory) and the cached
// PatternSet (detection is run at most once per domain, per spec.md
// §3 "PatternSet (per domain, cached)").
type domainState struct {
	mode     Mode
	hasMode  bool
	patterns detector.PatternSet
	hasPatterns bool
}
