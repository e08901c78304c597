package scheduler

import (
	"context"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rohmanhakim/smartcrawl/internal/browserfetch"
	"github.com/rohmanhakim/smartcrawl/internal/config"
	"github.com/rohmanhakim/smartcrawl/internal/engine"
	"github.com/rohmanhakim/smartcrawl/internal/fetcher"
	"github.com/rohmanhakim/smartcrawl/internal/frontier"
	"github.com/rohmanhakim/smartcrawl/internal/login"
	"github.com/rohmanhakim/smartcrawl/internal/metadata"
	"github.com/rohmanhakim/smartcrawl/internal/proxy"
	"github.com/rohmanhakim/smartcrawl/internal/robots"
	"github.com/rohmanhakim/smartcrawl/internal/robots/cache"
	"github.com/rohmanhakim/smartcrawl/internal/sink"
	"github.com/rohmanhakim/smartcrawl/pkg/limiter"
	"github.com/rohmanhakim/smartcrawl/pkg/retry"
	"github.com/rohmanhakim/smartcrawl/pkg/timeutil"
	"github.com/rohmanhakim/smartcrawl/pkg/urlutil"
)

// pausePollInterval bounds how long a paused loop sleeps between
// checks of its own status flag.
const pausePollInterval = 50 * time.Millisecond

// Engine is the C9 contract the scheduler drives: fetch_and_extract
// plus the auto_switches counter it reports in Summary.
// internal/engine.Engine satisfies this.
type Engine interface {
	FetchAndExtract(ctx context.Context, target url.URL, mode engine.Mode, userAgent string, retryParam retry.RetryParam) engine.ExtractOutcome
	AutoSwitches() int
}

// RobotsChecker is the C2 contract the scheduler consults at every
// admission point. internal/robots.Gate satisfies this.
type RobotsChecker interface {
	Allowed(ctx context.Context, target url.URL, userAgent string, followRobots bool) bool
}

// Scheduler is C10, the Scale Handler: it owns one session's worth of
// Frontier, Engine, RateLimiter and Sinks, and drives the core loop
// of spec.md §4.9. A Scheduler is not safe for concurrent Crawl
// calls, but Stop/Pause/Resume may be called from another goroutine
// while a crawl is running.
type Scheduler struct {
	cfg config.Config

	frontier       *frontier.Frontier
	engine         Engine
	robotsGate     RobotsChecker
	rateLimiter    limiter.RateLimiter
	sleeper        timeutil.Sleeper
	resultSink     sink.Sink
	checkpointSink sink.CheckpointSink
	metadataSink   metadata.MetadataSink
	crawlFinalizer metadata.CrawlFinalizer

	excludedExtensions map[string]struct{}

	sessionID string
	status    int32

	startedAt      time.Time
	pagesCrawled   int
	itemsExtracted int
	errorCount     int
	domainsSeen    map[string]struct{}
	pagesPerDomain map[string]int
}

// NewScheduler builds a production Scheduler wired from cfg: an HTTP
// gate (C5), an optional browser fetcher (C6) when
// cfg.EnablePlaywright() is set, a robots Gate (C2) backed by an
// in-memory per-session cache, a JSON-lines result sink and a file
// checkpoint sink (C11), and a logfmt metadata Recorder.
func NewScheduler(cfg config.Config) (*Scheduler, error) {
	recorder := metadata.NewRecorder(fmt.Sprintf("scheduler-%d", time.Now().UnixNano()))

	htmlFetcher := fetcher.NewGate(
		&recorder,
		proxy.NoopProvider{},
		login.NoopProvider{},
		cfg.MaxConcurrency(),
		cfg.Timeout(),
		cfg.DelayMin(),
		cfg.DelayMax(),
		cfg.RandomSeed(),
	)

	var browserFetcher engine.BrowserFetcher
	if cfg.EnablePlaywright() {
		bf, err := browserfetch.NewFetcher(browserfetch.DefaultBrowserConfig(), &recorder, login.NoopProvider{})
		if err != nil {
			return nil, fmt.Errorf("scheduler: launching browser fetcher: %w", err)
		}
		browserFetcher = bf
	}

	eng := engine.New(htmlFetcher, browserFetcher, &recorder, cfg.Timeout())

	robotsGate := robots.NewDefaultGate(cfg.UserAgent(), cache.NewMemoryCache())

	resultSink, sinkErr := sink.NewJSONLinesSink(&recorder, cfg.OutputDir())
	if sinkErr != nil {
		return nil, fmt.Errorf("scheduler: opening result sink: %w", sinkErr)
	}
	checkpointSink := sink.NewFileCheckpointSink(&recorder, cfg.OutputDir())

	fr := frontier.NewFrontier()
	fr.Init(cfg)

	return NewSchedulerWithDeps(cfg, &fr, eng, robotsGate, limiter.NewConcurrentRateLimiter(), timeutil.NewRealSleeper(), resultSink, checkpointSink, &recorder, &recorder), nil
}

// NewSchedulerWithDeps builds a Scheduler from caller-supplied
// collaborators; it is the seam tests use to inject fakes for the
// engine, robots gate, rate limiter, sleeper and sinks.
func NewSchedulerWithDeps(
	cfg config.Config,
	fr *frontier.Frontier,
	eng Engine,
	robotsGate RobotsChecker,
	rateLimiter limiter.RateLimiter,
	sleeper timeutil.Sleeper,
	resultSink sink.Sink,
	checkpointSink sink.CheckpointSink,
	metadataSink metadata.MetadataSink,
	crawlFinalizer metadata.CrawlFinalizer,
) *Scheduler {
	return &Scheduler{
		cfg:                 cfg,
		frontier:            fr,
		engine:              eng,
		robotsGate:          robotsGate,
		rateLimiter:         rateLimiter,
		sleeper:             sleeper,
		resultSink:          resultSink,
		checkpointSink:      checkpointSink,
		metadataSink:        metadataSink,
		crawlFinalizer:      crawlFinalizer,
		excludedExtensions:  excludedExtensionSet(cfg.ExcludeExtensions()),
		sessionID:           fmt.Sprintf("session-%d", time.Now().UnixNano()),
		domainsSeen:         make(map[string]struct{}),
		pagesPerDomain:      make(map[string]int),
	}
}

func excludedExtensionSet(extensions []string) map[string]struct{} {
	set := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		set[ext] = struct{}{}
	}
	return set
}

// SessionID returns the identifier stamped on this scheduler's
// checkpoints.
func (s *Scheduler) SessionID() string {
	return s.sessionID
}

// Status reports the current state of the crawl session's control
// flag, per spec.md §4.9.1.
func (s *Scheduler) Status() Status {
	return Status(atomic.LoadInt32(&s.status))
}

// Stop transitions the session to the terminal stopped state. Once
// stopped, the loop exits at its next poll and Stop/Pause/Resume have
// no further effect.
func (s *Scheduler) Stop() {
	atomic.StoreInt32(&s.status, int32(StatusStopped))
}

// Pause transitions a running session to paused. It is a no-op once
// the session has stopped.
func (s *Scheduler) Pause() {
	atomic.CompareAndSwapInt32(&s.status, int32(StatusRunning), int32(StatusPaused))
}

// Resume transitions a paused session back to running. It is a no-op
// once the session has stopped.
func (s *Scheduler) Resume() {
	atomic.CompareAndSwapInt32(&s.status, int32(StatusPaused), int32(StatusRunning))
}

// SubmitURLForAdmission is the single admission choke point of
// spec.md §4.9: extension filtering, then robots, then the
// max_domains / max_pages_per_domain caps, and only then a Frontier
// submission (which itself enforces max_depth/max_pages and
// dedupes). Every other path that wants a URL crawled - seeds,
// pagination next_url - must go through here.
func (s *Scheduler) SubmitURLForAdmission(ctx context.Context, target url.URL, sourceContext frontier.SourceContext, depth int) {
	if !urlutil.IsAllowedExtension(target, s.excludedExtensions) {
		return
	}
	if !s.robotsGate.Allowed(ctx, target, s.cfg.UserAgent(), s.cfg.FollowRobots()) {
		return
	}

	host := urlutil.Domain(target)
	if _, seen := s.domainsSeen[host]; !seen {
		if maxDomains := s.cfg.MaxDomains(); maxDomains > 0 && len(s.domainsSeen) >= maxDomains {
			return
		}
	}
	if maxPerDomain := s.cfg.MaxPagesPerDomain(); maxPerDomain > 0 && s.pagesPerDomain[host] >= maxPerDomain {
		return
	}

	candidate := frontier.NewCrawlAdmissionCandidate(target, sourceContext, frontier.NewDiscoveryMetadata(depth, nil))
	s.frontier.Submit(candidate)
	s.domainsSeen[host] = struct{}{}
}

// Crawl runs a fresh session seeded from startURLs until the queue
// drains, a configured cap is hit, or Stop is called. Multi-domain
// caps (max_domains, max_pages_per_domain) are always enforced from
// cfg; a single-domain crawl simply leaves those at their zero
// (unlimited) value, so one loop implements both spec.md §4.9 and the
// multi-domain extension without duplicated control flow.
func (s *Scheduler) Crawl(ctx context.Context, startURLs []url.URL, mode engine.Mode) (Summary, error) {
	if len(startURLs) == 0 {
		return Summary{}, fmt.Errorf("scheduler: no seed URLs configured")
	}

	for _, seed := range startURLs {
		s.SubmitURLForAdmission(ctx, seed, frontier.SourceSeed, 0)
	}

	return s.run(ctx, mode)
}

// Continue resumes a session previously restored via Resume, picking
// up from whatever tokens Deserialize left pending in the frontier.
// It does not re-submit any seed URLs.
func (s *Scheduler) Continue(ctx context.Context, mode engine.Mode) (Summary, error) {
	return s.run(ctx, mode)
}

// RestoreCheckpoint reloads a previously saved CheckpointBlob: the
// frontier's pending queue and visited set, plus the four counters of
// spec.md §4.9 ("reload the four fields and reset the start-time to
// now"). Callers typically follow this with Continue.
func (s *Scheduler) RestoreCheckpoint(blob sink.CheckpointBlob) error {
	if err := s.frontier.Deserialize(blob.QueueSerialized); err != nil {
		return fmt.Errorf("scheduler: restoring frontier: %w", err)
	}
	s.sessionID = blob.SessionID
	s.pagesCrawled = blob.PagesCrawled
	s.itemsExtracted = blob.ItemsExtracted
	s.domainsSeen = make(map[string]struct{}, len(blob.Domains))
	for _, host := range blob.Domains {
		s.domainsSeen[host] = struct{}{}
	}
	atomic.StoreInt32(&s.status, int32(StatusRunning))
	return nil
}

func (s *Scheduler) run(ctx context.Context, mode engine.Mode) (Summary, error) {
	s.startedAt = time.Now()
	atomic.StoreInt32(&s.status, int32(StatusRunning))

	s.rateLimiter.SetBaseDelay(s.cfg.DomainDelay())
	s.rateLimiter.SetJitter(s.cfg.Jitter())
	s.rateLimiter.SetRandomSeed(s.cfg.RandomSeed())

	retryParam := RetryParam(s.cfg)

loop:
	for {
		if ctx.Err() != nil {
			break loop
		}

		switch Status(atomic.LoadInt32(&s.status)) {
		case StatusStopped:
			break loop
		case StatusPaused:
			s.sleeper.Sleep(pausePollInterval)
			continue loop
		}

		if maxPages := s.cfg.MaxPages(); maxPages > 0 && s.pagesCrawled >= maxPages {
			break loop
		}

		token, ok := s.frontier.Dequeue()
		if !ok {
			break loop
		}

		host := urlutil.Domain(token.URL())
		if maxPerDomain := s.cfg.MaxPagesPerDomain(); maxPerDomain > 0 && s.pagesPerDomain[host] >= maxPerDomain {
			continue loop
		}

		s.sleeper.Sleep(s.rateLimiter.ResolveDelay(host))

		outcome := s.engine.FetchAndExtract(ctx, token.URL(), mode, s.cfg.UserAgent(), retryParam)
		s.rateLimiter.MarkLastFetchAsNow(host)

		if !outcome.OK {
			s.errorCount++
			s.reportProgress()
			continue loop
		}

		s.pagesCrawled++
		s.pagesPerDomain[host]++

		for _, it := range outcome.Items {
			if writeErr := s.resultSink.Write(it); writeErr != nil {
				s.errorCount++
				continue
			}
			s.itemsExtracted++
		}

		if outcome.NextURL != "" {
			if next, parseErr := url.Parse(outcome.NextURL); parseErr == nil {
				s.SubmitURLForAdmission(ctx, *next, frontier.SourceCrawl, token.Depth()+1)
			}
		}

		s.reportProgress()

		if interval := s.cfg.CheckpointInterval(); interval > 0 && s.pagesCrawled%interval == 0 {
			if checkpointErr := s.checkpoint(); checkpointErr != nil {
				s.errorCount++
			}
		}
	}

	atomic.StoreInt32(&s.status, int32(StatusStopped))

	duration := time.Since(s.startedAt)
	s.crawlFinalizer.RecordFinalCrawlStats(s.pagesCrawled, s.errorCount, 0, duration)

	return Summary{
		SessionID:      s.sessionID,
		PagesCrawled:   s.pagesCrawled,
		ItemsExtracted: s.itemsExtracted,
		Errors:         s.errorCount,
		Domains:        s.domainsList(),
		AutoSwitches:   s.engine.AutoSwitches(),
	}, nil
}

// reportProgress feeds the metadata sink's progress_sink at least
// once per page, satisfying spec.md §4.9's "at least every 10 pages"
// bound with room to spare.
func (s *Scheduler) reportProgress() {
	total := s.cfg.MaxPages()
	var pct float64
	if total > 0 {
		pct = float64(s.pagesCrawled) / float64(total) * 100
	}

	elapsed := time.Since(s.startedAt).Seconds()
	var pagesPerSec float64
	if elapsed > 0 {
		pagesPerSec = float64(s.pagesCrawled) / elapsed
	}

	var eta float64
	if pagesPerSec > 0 && total > 0 {
		remaining := total - s.pagesCrawled
		if remaining > 0 {
			eta = float64(remaining) / pagesPerSec
		}
	}

	s.metadataSink.RecordProgress(metadata.ProgressSnapshot{
		PagesCrawled:   s.pagesCrawled,
		PagesTotal:     total,
		ProgressPct:    pct,
		ItemsExtracted: s.itemsExtracted,
		Errors:         s.errorCount,
		PagesPerSec:    pagesPerSec,
		ETASeconds:     eta,
	})
}

// checkpoint snapshots the frontier, counters and seen-domain set
// into the checkpoint sink, per spec.md §4.9's resume blob.
func (s *Scheduler) checkpoint() error {
	queueBytes, err := s.frontier.Serialize()
	if err != nil {
		return fmt.Errorf("scheduler: serializing frontier: %w", err)
	}

	blob := sink.CheckpointBlob{
		SessionID:       s.sessionID,
		PagesCrawled:    s.pagesCrawled,
		ItemsExtracted:  s.itemsExtracted,
		QueueSerialized: queueBytes,
		Domains:         s.domainsList(),
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}
	if ckErr := s.checkpointSink.Checkpoint(blob); ckErr != nil {
		return ckErr
	}
	return nil
}

func (s *Scheduler) domainsList() []string {
	domains := make([]string, 0, len(s.domainsSeen))
	for host := range s.domainsSeen {
		domains = append(domains, host)
	}
	return domains
}

// RetryParam builds the retry.RetryParam a single fetch attempt
// should use, derived entirely from cfg's retry/backoff knobs.
func RetryParam(cfg config.Config) retry.RetryParam {
	return retry.NewRetryParam(
		cfg.BaseDelay(),
		cfg.Jitter(),
		cfg.RandomSeed(),
		cfg.MaxAttempt(),
		timeutil.NewBackoffParam(
			cfg.BackoffInitialDuration(),
			cfg.BackoffMultiplier(),
			cfg.BackoffMaxDuration(),
		),
	)
}
