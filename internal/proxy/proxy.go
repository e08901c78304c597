// Package proxy implements C4: an optional proxy endpoint per
// request. Grounded in original_source/core/proxy_manager.py (static
// list with rotation, remote proxy-API fallback, last-used memory).
package proxy

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// BrowserProxyConfig is the shape a headless-browser launcher expects
// for proxy configuration (spec.md §4.8 "Browser proxy").
type BrowserProxyConfig struct {
	Server string
}

// Provider yields an optional proxy endpoint per request.
type Provider interface {
	HTTPProxy(ctx context.Context) (*url.URL, error)
	BrowserProxy(ctx context.Context) (*BrowserProxyConfig, error)
}

// NoopProvider never supplies a proxy; the common no-proxy case.
type NoopProvider struct{}

func (NoopProvider) HTTPProxy(context.Context) (*url.URL, error)              { return nil, nil }
func (NoopProvider) BrowserProxy(context.Context) (*BrowserProxyConfig, error) { return nil, nil }

// StaticListProvider rotates (or sticks to) a fixed proxy list.
type StaticListProvider struct {
	mu      sync.Mutex
	list    []string
	rotate  bool
	current string
	rng     *rand.Rand
}

// NewStaticListProvider builds a provider over a fixed proxy list.
// When rotate is true, each call picks a random entry; otherwise the
// first successful pick is reused (sticky).
func NewStaticListProvider(list []string, rotate bool) *StaticListProvider {
	return &StaticListProvider{
		list:   list,
		rotate: rotate,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *StaticListProvider) pick() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.list) == 0 {
		return ""
	}
	if p.rotate {
		p.current = p.list[p.rng.Intn(len(p.list))]
		return p.current
	}
	if p.current == "" {
		p.current = p.list[0]
	}
	return p.current
}

func (p *StaticListProvider) HTTPProxy(context.Context) (*url.URL, error) {
	raw := p.pick()
	if raw == "" {
		return nil, nil
	}
	return url.Parse(raw)
}

func (p *StaticListProvider) BrowserProxy(context.Context) (*BrowserProxyConfig, error) {
	raw := p.pick()
	if raw == "" {
		return nil, nil
	}
	return &BrowserProxyConfig{Server: raw}, nil
}

// APIProvider fetches a single proxy URL from a remote endpoint (one
// GET, 5s timeout, the trimmed response body is the proxy URL),
// falling back to a static list on any failure.
type APIProvider struct {
	apiURL   string
	client   *http.Client
	fallback *StaticListProvider

	mu      sync.Mutex
	current string
}

const apiProviderTimeout = 5 * time.Second

// NewAPIProvider builds a provider that prefers apiURL and falls back
// to fallback (may be nil) when the API call fails.
func NewAPIProvider(apiURL string, fallback *StaticListProvider) *APIProvider {
	return &APIProvider{
		apiURL:   apiURL,
		client:   &http.Client{Timeout: apiProviderTimeout},
		fallback: fallback,
	}
}

func (p *APIProvider) fetchFromAPI(ctx context.Context) string {
	if p.apiURL == "" {
		return ""
	}
	reqCtx, cancel := context.WithTimeout(ctx, apiProviderTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, p.apiURL, nil)
	if err != nil {
		return ""
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(body))
}

func (p *APIProvider) resolve(ctx context.Context) string {
	if proxyURL := p.fetchFromAPI(ctx); proxyURL != "" {
		p.mu.Lock()
		p.current = proxyURL
		p.mu.Unlock()
		return proxyURL
	}
	if p.fallback != nil {
		return p.fallback.pick()
	}
	return ""
}

func (p *APIProvider) HTTPProxy(ctx context.Context) (*url.URL, error) {
	raw := p.resolve(ctx)
	if raw == "" {
		return nil, nil
	}
	return url.Parse(raw)
}

func (p *APIProvider) BrowserProxy(ctx context.Context) (*BrowserProxyConfig, error) {
	raw := p.resolve(ctx)
	if raw == "" {
		return nil, nil
	}
	return &BrowserProxyConfig{Server: raw}, nil
}
