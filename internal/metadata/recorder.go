package metadata

/*
Metadata Collected
- Fetch timestamps
- HTTP status codes
- Extracted items and crawl progress
- Crawl depth

Logging Goals
- Debuggable crawl behavior
- Post-run auditability
- Failure diagnostics

Structured logging is preferred.

Allowed:
- Primitive values
- Timestamps
- URLs (as values, not objects with behavior)
- Hashes
- Status codes
- Durations
- Identifiers (page ID, crawl ID)
*/

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-logfmt/logfmt"
)

// MetadataSink is the single sink every pipeline package records
// observability events through. Implementations must never be
// consulted for control-flow decisions; see ErrorCause's non-goals.
type MetadataSink interface {
	RecordError(observedAt time.Time, pkg, action string, cause ErrorCause, errString string, attrs []Attribute)
	RecordFetch(fetchURL string, statusCode int, duration time.Duration, contentType string, retryCount, crawlDepth int)
	RecordArtifact(kind ArtifactKind, path string, attrs []Attribute)
	RecordItem(selector string, fields []Attribute)
	RecordProgress(snapshot ProgressSnapshot)
	Log(text string)
}

// CrawlFinalizer records the terminal, derived summary of a completed
// crawl exactly once. It must be constructed without reading any
// metadata recorded during the crawl.
type CrawlFinalizer interface {
	RecordFinalCrawlStats(totalPages, totalErrors, totalAssets int, duration time.Duration)
}

// Recorder is the default MetadataSink/CrawlFinalizer implementation.
// It is safe for concurrent use: the scheduler is logically serial
// per session, but fetch/retry paths may record from goroutines
// spawned for batch fetches.
type Recorder struct {
	workerID string
	mu       sync.Mutex
	enc      *logfmt.Encoder
	errors   []ErrorRecord
	fetches  []FetchEvent
	stats    crawlStats
}

// NewRecorder creates a Recorder that writes human-readable logfmt
// lines to stdout, tagged with the given worker/session identifier.
func NewRecorder(workerID string) Recorder {
	return NewRecorderWithWriter(workerID, os.Stdout)
}

// NewRecorderWithWriter is the test/injection seam for NewRecorder.
func NewRecorderWithWriter(workerID string, w io.Writer) Recorder {
	return Recorder{
		workerID: workerID,
		enc:      logfmt.NewEncoder(w),
	}
}

func (r *Recorder) logLine(keyvals ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return
	}
	_ = r.enc.EncodeKeyvals(append([]interface{}{"worker", r.workerID}, keyvals...)...)
	_ = r.enc.EndRecord()
}

func (r *Recorder) RecordError(observedAt time.Time, pkg, action string, cause ErrorCause, errString string, attrs []Attribute) {
	record := ErrorRecord{
		packageName: pkg,
		action:      action,
		cause:       cause,
		errorString: errString,
		observedAt:  observedAt,
		attrs:       attrs,
	}
	r.mu.Lock()
	r.errors = append(r.errors, record)
	r.mu.Unlock()

	kv := []interface{}{"event", "error", "pkg", pkg, "action", action, "cause", cause, "err", errString}
	for _, a := range attrs {
		kv = append(kv, string(a.Key), a.Value)
	}
	r.logLine(kv...)
}

func (r *Recorder) RecordFetch(fetchURL string, statusCode int, duration time.Duration, contentType string, retryCount, crawlDepth int) {
	event := FetchEvent{
		fetchUrl:    fetchURL,
		httpStatus:  statusCode,
		duration:    duration,
		contentType: contentType,
		retryCount:  retryCount,
		crawlDepth:  crawlDepth,
	}
	r.mu.Lock()
	r.fetches = append(r.fetches, event)
	r.mu.Unlock()

	r.logLine(
		"event", "fetch",
		"url", fetchURL,
		"status", statusCode,
		"duration_ms", duration.Milliseconds(),
		"content_type", contentType,
		"retries", retryCount,
		"depth", crawlDepth,
	)
}

func (r *Recorder) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {
	kv := []interface{}{"event", "artifact", "kind", string(kind), "path", path}
	for _, a := range attrs {
		kv = append(kv, string(a.Key), a.Value)
	}
	r.logLine(kv...)
}

func (r *Recorder) RecordItem(selector string, fields []Attribute) {
	kv := []interface{}{"event", "item", "selector", selector}
	for _, a := range fields {
		kv = append(kv, string(a.Key), a.Value)
	}
	r.logLine(kv...)
}

func (r *Recorder) RecordProgress(snapshot ProgressSnapshot) {
	r.logLine(
		"event", "progress",
		"pages_crawled", snapshot.PagesCrawled,
		"pages_total", snapshot.PagesTotal,
		"progress_pct", fmt.Sprintf("%.2f", snapshot.ProgressPct),
		"items_extracted", snapshot.ItemsExtracted,
		"errors", snapshot.Errors,
		"pages_per_sec", fmt.Sprintf("%.2f", snapshot.PagesPerSec),
		"eta_seconds", fmt.Sprintf("%.0f", snapshot.ETASeconds),
	)
}

func (r *Recorder) Log(text string) {
	r.logLine("event", "log", "message", text)
}

// RecordFinalCrawlStats implements CrawlFinalizer. The scheduler
// invokes it once at the end of each run (Crawl or Continue).
func (r *Recorder) RecordFinalCrawlStats(totalPages, totalErrors, totalAssets int, duration time.Duration) {
	r.mu.Lock()
	r.stats = crawlStats{
		totalPages:  totalPages,
		totalErrors: totalErrors,
		totalAssets: totalAssets,
		durationMs:  duration.Milliseconds(),
	}
	r.mu.Unlock()

	r.logLine(
		"event", "crawl_finished",
		"total_pages", totalPages,
		"total_errors", totalErrors,
		"total_assets", totalAssets,
		"duration_ms", duration.Milliseconds(),
	)
}

// ErrorCount returns the number of errors recorded so far. Exposed
// for tests that want to assert on recorder state without reaching
// into private fields.
func (r *Recorder) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

// FetchCount returns the number of fetch events recorded so far.
func (r *Recorder) FetchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fetches)
}
