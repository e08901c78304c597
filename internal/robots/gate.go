package robots

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rohmanhakim/smartcrawl/internal/robots/cache"
)

/*
Gate is the public C2 "robots gate": Allowed(url) decides whether a
URL may be fetched. It owns the per-origin ruleSet cache for the
session; RobotsFetcher owns the lower-level HTTP fetch + cache of raw
responses. On fetch failure or a non-200 status that the fetcher
cannot turn into a clean empty response, the gate caches a permissive
"allow all" ruleSet for that origin — robots.txt failures never block
a crawl and are never retried by the gate itself.
*/
type Gate struct {
	fetcher   *RobotsFetcher
	userAgent string

	mu    sync.Mutex
	rules map[string]ruleSet
}

// NewGate builds a Gate with a fixed ~5s per-fetch timeout, per
// spec.md §4.2.
func NewGate(fetcher *RobotsFetcher, userAgent string) *Gate {
	return &Gate{
		fetcher:   fetcher,
		userAgent: userAgent,
		rules:     make(map[string]ruleSet),
	}
}

const gateFetchTimeout = 5 * time.Second

func originKey(target url.URL) string {
	return target.Scheme + "://" + target.Host
}

func permissiveRuleSet(host string) ruleSet {
	return ruleSet{host: host, matchedGroup: true, hasGroups: false}
}

// Allowed reports whether target may be fetched. If followRobots is
// false the gate always allows (spec.md §4.2: "if following is
// disabled, always true"). The userAgent defaults to "*" when empty.
func (g *Gate) Allowed(ctx context.Context, target url.URL, userAgent string, followRobots bool) bool {
	if !followRobots {
		return true
	}
	if userAgent == "" {
		userAgent = "*"
	}

	key := originKey(target)

	g.mu.Lock()
	cached, ok := g.rules[key]
	g.mu.Unlock()

	if !ok {
		cached = g.fetchRuleSet(ctx, target, userAgent)
		g.mu.Lock()
		g.rules[key] = cached
		g.mu.Unlock()
	}

	return isAllowed(cached, target.Path)
}

func (g *Gate) fetchRuleSet(ctx context.Context, target url.URL, userAgent string) ruleSet {
	scheme := target.Scheme
	if scheme == "" {
		scheme = "http"
	}

	fetchCtx, cancel := context.WithTimeout(ctx, gateFetchTimeout)
	defer cancel()

	result, err := g.fetcher.Fetch(fetchCtx, scheme, target.Host)
	if err != nil {
		// Any fetch failure (timeout, transport, 5xx) is treated as a
		// permissive default; the gate never retries robots.txt itself.
		return permissiveRuleSet(target.Host)
	}
	return MapResponseToRuleSet(result.Response, userAgent, result.FetchedAt)
}

// isAllowed applies longest-match-wins between allow and disallow
// rules. An empty or group-less ruleSet is always permissive.
func isAllowed(rs ruleSet, path string) bool {
	if !rs.hasGroups || !rs.matchedGroup {
		return true
	}
	if path == "" {
		path = "/"
	}

	bestLen := -1
	allowed := true

	for _, rule := range rs.disallowRules {
		if rule.prefix == "" {
			continue
		}
		if matchesPrefix(path, rule.prefix) && len(rule.prefix) > bestLen {
			bestLen = len(rule.prefix)
			allowed = false
		}
	}
	for _, rule := range rs.allowRules {
		if rule.prefix == "" {
			continue
		}
		if matchesPrefix(path, rule.prefix) && len(rule.prefix) > bestLen {
			bestLen = len(rule.prefix)
			allowed = true
		}
	}
	return allowed
}

func matchesPrefix(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	return len(path) >= len(prefix) && path[:len(prefix)] == prefix
}

// DefaultUserAgent is used whenever the caller does not supply one.
const DefaultUserAgent = "*"

// NewDefaultGate builds a Gate backed by the given ruleSet cache and a
// plain http.Client-based fetcher, the common case for a single crawl
// session.
func NewDefaultGate(userAgent string, robotsCache cache.Cache) *Gate {
	fetcher := NewRobotsFetcherWithClient(nil, userAgent, &http.Client{Timeout: gateFetchTimeout}, robotsCache)
	return NewGate(fetcher, userAgent)
}
