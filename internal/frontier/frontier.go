package frontier

import (
	"encoding/json"
	"net/url"
	"sync"

	"github.com/rohmanhakim/smartcrawl/internal/config"
	"github.com/rohmanhakim/smartcrawl/pkg/urlutil"
)

func parseURL(raw string) (url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return url.URL{}, err
	}
	return *parsed, nil
}

/*
Frontier Responsibilities
- Maintain BFS ordering
- Deduplicate URLs
- Track crawl depth
- Prevent infinite traversal
- Knows nothing about:
	- fetching
	- extraction
	- markdown
	- storage

It is a data structure + policy module, not a pipeline executor.
*/

// Frontier is the BFS-ordered, depth-bucketed admission queue. Only
// the scheduler submits to it; it performs no semantic admission
// checks of its own beyond the depth/page caps already decided upstream.
type Frontier struct {
	mu sync.Mutex

	cfg config.Config

	queuesByDepth map[int]*FIFOQueue[CrawlToken]
	currentDepth  int

	visited Set[string]
	depths  map[string]int
}

// NewFrontier constructs a zero-value Frontier; Init must be called
// before Submit/Dequeue.
func NewFrontier() Frontier {
	return Frontier{}
}

// NewCrawlFrontier is an alias of NewFrontier matching the name used
// by earlier callers; both return the same type.
func NewCrawlFrontier() Frontier {
	return NewFrontier()
}

func (f *Frontier) Init(cfg config.Config) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
	f.queuesByDepth = make(map[int]*FIFOQueue[CrawlToken])
	f.currentDepth = 0
	f.visited = NewSet[string]()
	f.depths = make(map[string]int)
}

// Submit admits an already-authorized candidate into the frontier.
// Depth and page caps are enforced here because they are pure queue
// capacity concerns, not semantic policy; robots/scope decisions are
// made upstream by the scheduler before this is ever called.
func (f *Frontier) Submit(candidate CrawlAdmissionCandidate) {
	f.mu.Lock()
	defer f.mu.Unlock()

	target := candidate.TargetURL()
	key := urlutil.Canonicalize(target).String()

	if f.visited.Contains(key) {
		return
	}

	depth := candidate.DiscoveryMetadata().Depth()

	if maxDepth := f.cfg.MaxDepth(); maxDepth > 0 && depth > maxDepth {
		return
	}
	if maxPages := f.cfg.MaxPages(); maxPages > 0 && f.visited.Size() >= maxPages {
		return
	}

	f.visited.Add(key)
	f.depths[key] = depth

	if f.queuesByDepth[depth] == nil {
		f.queuesByDepth[depth] = NewFIFOQueue[CrawlToken]()
	}
	f.queuesByDepth[depth].Enqueue(NewCrawlToken(target, depth))
}

// Dequeue returns the next token in strict BFS order: every token at
// depth N is exhausted before any token at depth N+1 is returned.
func (f *Frontier) Dequeue() (CrawlToken, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		q := f.queuesByDepth[f.currentDepth]
		if q == nil || q.Size() == 0 {
			if f.hasDeeperPending() {
				f.currentDepth++
				continue
			}
			return CrawlToken{}, false
		}
		return q.Dequeue()
	}
}

func (f *Frontier) hasDeeperPending() bool {
	for depth, q := range f.queuesByDepth {
		if depth > f.currentDepth && q != nil && q.Size() > 0 {
			return true
		}
	}
	return false
}

// IsDepthExhausted reports whether no more tokens remain pending at
// the given depth. Negative depths are always exhausted.
func (f *Frontier) IsDepthExhausted(depth int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if depth < 0 {
		return true
	}
	q := f.queuesByDepth[depth]
	return q == nil || q.Size() == 0
}

// CurrentMinDepth returns the smallest depth with a pending token, or
// -1 if the frontier is empty.
func (f *Frontier) CurrentMinDepth() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	min := -1
	for depth, q := range f.queuesByDepth {
		if q == nil || q.Size() == 0 {
			continue
		}
		if min == -1 || depth < min {
			min = depth
		}
	}
	return min
}

// VisitedCount returns the number of unique, canonicalized URLs ever
// admitted into the frontier. It never decreases.
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited.Size()
}

// Depth returns the depth recorded for a URL at admission time, and
// whether that URL has ever been submitted.
func (f *Frontier) Depth(target CrawlToken) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := urlutil.Canonicalize(target.URL()).String()
	d, ok := f.depths[key]
	return d, ok
}

// frontierSnapshot is the serialized, resumable form of a Frontier:
// enough to rebuild the visited set and per-depth queues exactly.
type frontierSnapshot struct {
	CurrentDepth int             `json:"currentDepth"`
	Depths       map[string]int  `json:"depths"`
	Pending      []snapshotToken `json:"pending"`
}

type snapshotToken struct {
	URL   string `json:"url"`
	Depth int    `json:"depth"`
}

// Serialize captures enough frontier state (visited set, per-URL
// depth, and still-pending tokens) to resume a crawl across restarts.
func (f *Frontier) Serialize() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	snapshot := frontierSnapshot{
		CurrentDepth: f.currentDepth,
		Depths:       make(map[string]int, len(f.depths)),
	}
	for k, v := range f.depths {
		snapshot.Depths[k] = v
	}
	for depth, q := range f.queuesByDepth {
		if q == nil {
			continue
		}
		for _, token := range *q {
			snapshot.Pending = append(snapshot.Pending, snapshotToken{
				URL:   token.URL().String(),
				Depth: depth,
			})
		}
	}
	return json.Marshal(snapshot)
}

// Deserialize restores a Frontier from a snapshot produced by
// Serialize. Init must already have been called so cfg is populated.
func (f *Frontier) Deserialize(data []byte) error {
	var snapshot frontierSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.queuesByDepth == nil {
		f.queuesByDepth = make(map[int]*FIFOQueue[CrawlToken])
	}
	if f.visited == nil {
		f.visited = NewSet[string]()
	}
	if f.depths == nil {
		f.depths = make(map[string]int)
	}

	f.currentDepth = snapshot.CurrentDepth
	for k, v := range snapshot.Depths {
		f.depths[k] = v
		f.visited.Add(k)
	}
	for _, pending := range snapshot.Pending {
		parsed, err := parseURL(pending.URL)
		if err != nil {
			return err
		}
		if f.queuesByDepth[pending.Depth] == nil {
			f.queuesByDepth[pending.Depth] = NewFIFOQueue[CrawlToken]()
		}
		f.queuesByDepth[pending.Depth].Enqueue(NewCrawlToken(parsed, pending.Depth))
	}
	return nil
}
