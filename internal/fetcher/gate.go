package fetcher

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rohmanhakim/smartcrawl/internal/login"
	"github.com/rohmanhakim/smartcrawl/internal/metadata"
	"github.com/rohmanhakim/smartcrawl/internal/proxy"
	"github.com/rohmanhakim/smartcrawl/pkg/failure"
	"github.com/rohmanhakim/smartcrawl/pkg/retry"
)

/*
Gate is the public C5 contract of spec.md §4.4: fetch(url) -> html?.
It is a self-contained GET-and-classify fetcher with the crawl-wide
concerns the core needs layered on top: a counting semaphore bounding
max_concurrency, proxy/login injection per attempt, and a randomized
post-attempt delay applied whether the attempt succeeded or failed.
Callers never see an error: exhausted retries report ok=false.
*/
type Gate struct {
	metadataSink  metadata.MetadataSink
	proxyProvider proxy.Provider
	loginProvider login.Provider

	sem     chan struct{}
	timeout time.Duration

	delayMin time.Duration
	delayMax time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewGate builds a Gate bounding concurrent fetches at maxConcurrency
// and sleeping a random [delayMin, delayMax) duration after every
// attempt, per spec.md §4.4.
func NewGate(
	metadataSink metadata.MetadataSink,
	proxyProvider proxy.Provider,
	loginProvider login.Provider,
	maxConcurrency int,
	timeout time.Duration,
	delayMin time.Duration,
	delayMax time.Duration,
	randomSeed int64,
) *Gate {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Gate{
		metadataSink:  metadataSink,
		proxyProvider: proxyProvider,
		loginProvider: loginProvider,
		sem:           make(chan struct{}, maxConcurrency),
		timeout:       timeout,
		delayMin:      delayMin,
		delayMax:      delayMax,
		rng:           rand.New(rand.NewSource(randomSeed)),
	}
}

// Fetch implements the simplified public contract: at most
// max_concurrency concurrent calls globally, retried per retryParam,
// with proxy/cookie/auth injection and a randomized delay after every
// attempt. Returns ok=false whenever retries are exhausted or the
// context is cancelled while waiting for a concurrency slot.
func (g *Gate) Fetch(ctx context.Context, target url.URL, userAgent string, retryParam retry.RetryParam) (string, bool) {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return "", false
	}
	defer func() { <-g.sem }()

	attempt := func() (string, failure.ClassifiedError) {
		body, err := g.performAttempt(ctx, target, userAgent)
		g.sleepRandomDelay()
		return body, err
	}

	startTime := time.Now()
	result := retry.Retry(retryParam, attempt)
	duration := time.Since(startTime)

	if result.IsFailure() {
		g.metadataSink.RecordFetch(target.String(), 0, duration, "", result.Attempts(), 0)
		g.recordFailure(target, result.Err())
		return "", false
	}

	g.metadataSink.RecordFetch(target.String(), http.StatusOK, duration, "text/html", result.Attempts(), 0)
	return result.Value(), true
}

func (g *Gate) recordFailure(target url.URL, err failure.ClassifiedError) {
	var fetchErr *FetchError
	cause := metadata.CauseNetworkFailure
	if errors.As(err, &fetchErr) {
		cause = mapFetchErrorToMetadataCause(fetchErr)
	} else if err != nil {
		cause = metadata.CauseRetryFailure
	}
	g.metadataSink.RecordError(
		time.Now(),
		"fetcher",
		"Gate.Fetch",
		cause,
		err.Error(),
		[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, target.String())},
	)
}

func (g *Gate) performAttempt(ctx context.Context, target url.URL, userAgent string) (string, failure.ClassifiedError) {
	client := &http.Client{Timeout: g.timeout}

	if proxyURL, err := g.proxyProvider.HTTPProxy(ctx); err == nil && proxyURL != nil {
		client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return "", &FetchError{
			Message:   "failed to create request",
			Retryable: false,
			Cause:     ErrCauseNetworkFailure,
		}
	}

	for key, value := range requestHeaders(userAgent) {
		req.Header.Set(key, value)
	}
	for key, value := range g.loginProvider.AuthHeaders() {
		req.Header.Set(key, value)
	}
	for _, cookie := range g.loginProvider.Cookies() {
		req.AddCookie(cookie)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", &FetchError{
				Message:   "request timed out",
				Retryable: true,
				Cause:     ErrCauseTimeout,
			}
		}
		return "", &FetchError{
			Message:   "request failed",
			Retryable: true,
			Cause:     ErrCauseNetworkFailure,
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return "", &FetchError{Message: "server error", Retryable: true, Cause: ErrCauseRequest5xx}
	case resp.StatusCode == 429:
		return "", &FetchError{Message: "rate limited", Retryable: true, Cause: ErrCauseRequestTooMany}
	case resp.StatusCode == 403:
		return "", &FetchError{Message: "forbidden", Retryable: false, Cause: ErrCauseRequestPageForbidden}
	case resp.StatusCode >= 400:
		return "", &FetchError{Message: "client error", Retryable: false, Cause: ErrCauseRequestPageForbidden}
	case resp.StatusCode >= 300:
		return "", &FetchError{Message: "redirect error", Retryable: false, Cause: ErrCauseRedirectLimitExceeded}
	case resp.StatusCode != http.StatusOK:
		return "", &FetchError{Message: "unexpected status", Retryable: true, Cause: ErrCauseNetworkFailure}
	}

	if !isHTMLContent(resp.Header.Get("Content-Type")) {
		return "", &FetchError{Message: "non-HTML content", Retryable: false, Cause: ErrCauseContentTypeInvalid}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &FetchError{Message: "failed to read body", Retryable: true, Cause: ErrCauseReadResponseBodyError}
	}

	return string(body), nil
}

func (g *Gate) sleepRandomDelay() {
	if g.delayMax <= g.delayMin {
		time.Sleep(g.delayMin)
		return
	}
	span := int64(g.delayMax - g.delayMin)

	g.rngMu.Lock()
	offset := g.rng.Int63n(span)
	g.rngMu.Unlock()

	time.Sleep(g.delayMin + time.Duration(offset))
}
