package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	//===============
	//  Crawl scope
	//===============
	// Initial pages to give to the crawler to begin discovering and traversing other pages.
	seedURLs []url.URL
	// Whitelisted hostname. When left empty, Build fills it with the seed URLs' hosts
	allowedHosts map[string]struct{}
	// Which URL path segments are permitted to be fetched and traversed, even if the links are on the same domain
	allowedPathPrefix []string

	//===============
	// Limits
	//===============
	// Maximum number of hyperlink hops from a seed (root) URL
	maxDepth int
	// Maximum number of total documents are allowed to be fetched
	maxPages int

	//===============
	// Politeness
	//===============
	// Maximum number of crawl worker goroutines processing URLs concurrently;
	// it does not control OS threads or CPU parallelism.
	concurrency int
	// Minimum, fixed waiting time you enforce between two HTTP requests to the same host.
	baseDelay time.Duration
	// Randomized variation added on top of the base delay.
	// Intentional randomness applied to timing.
	jitter time.Duration
	// Controls the random number generator
	randomSeed int64
	// maximum attempt during retry
	maxAttempt int
	// initial delay for backoff
	backoffInitialDuration time.Duration
	// multiplier during exponential backoff
	backoffMultiplier float64
	// capped maximum delay for backoff to stop exponential multiplication
	backoffMaxDuration time.Duration

	//===============
	// Fetch
	//===============
	// Maximum time of a single fetch request
	timeout time.Duration
	// User agent that will be used in the request header. In raw string
	userAgent string

	//===============
	// Output
	//===============
	// Root directory in which to store the resulting markdown files
	outputDir string
	// Whether the program will simulates what it would do without
	// actually performing any irreversible or side-effecting actions
	dryRun bool

	//===============
	// Scale / politeness (crawler-level, distinct from per-request retry above)
	//===============
	// Hard ceiling on concurrently in-flight fetches, enforced globally
	// (not per-host); backs the C5 fetcher semaphore.
	maxConcurrency int
	// Minimum spacing enforced between two requests to the same host,
	// independent of baseDelay/jitter above.
	domainDelay time.Duration
	// Lower/upper bound of the randomized post-fetch delay window.
	delayMin time.Duration
	delayMax time.Duration
	// Whether the browser-backed fetcher (C6) may be used at all; when
	// false the dual-mode engine never escalates past the HTTP fetcher.
	enablePlaywright bool
	// Whether robots.txt is consulted before admission. When false the
	// robots gate always allows.
	followRobots bool
	// Maximum distinct hosts (lowercased hostnames) admitted into a single crawl.
	maxDomains int
	// Maximum pages admitted per domain, independent of maxPages overall.
	maxPagesPerDomain int
	// How many pages between checkpoint snapshots; 0 disables checkpointing.
	checkpointInterval int
	// File extensions excluded from admission regardless of allow rules.
	excludeExtensions []string
}

type configDTO struct {
	SeedURLs               []url.URL           `json:"seedUrls"`
	AllowedHosts           map[string]struct{} `json:"allowedHosts,omitempty"`
	AllowedPathPrefix      []string            `json:"allowedPathPrefix,omitempty"`
	MaxDepth               int                 `json:"maxDepth,omitempty"`
	MaxPages               int                 `json:"maxPages,omitempty"`
	Concurrency            int                 `json:"concurrency,omitempty"`
	BaseDelay              time.Duration       `json:"baseDelay,omitempty"`
	Jitter                 time.Duration       `json:"jitter,omitempty"`
	RandomSeed             int64               `json:"randomSeed,omitempty"`
	MaxAttempt             int                 `json:"maxAttempt,omitempty"`
	BackoffInitialDuration time.Duration       `json:"backoffInitialDuration,omitempty"`
	BackoffMultiplier      float64             `json:"backoffMultiplier,omitempty"`
	BackoffMaxDuration     time.Duration       `json:"backoffMaxDuration,omitempty"`
	Timeout                time.Duration       `json:"timeout,omitempty"`
	UserAgent              string              `json:"userAgent,omitempty"`
	OutputDir              string              `json:"outputDir,omitempty"`
	DryRun                 bool                `json:"dryRun,omitempty"`
	// Scale / politeness
	MaxConcurrency     int           `json:"maxConcurrency,omitempty" yaml:"maxConcurrency,omitempty"`
	DomainDelay        time.Duration `json:"domainDelay,omitempty" yaml:"domainDelay,omitempty"`
	DelayMin           time.Duration `json:"delayMin,omitempty" yaml:"delayMin,omitempty"`
	DelayMax           time.Duration `json:"delayMax,omitempty" yaml:"delayMax,omitempty"`
	EnablePlaywright   bool          `json:"enablePlaywright,omitempty" yaml:"enablePlaywright,omitempty"`
	FollowRobots       bool          `json:"followRobots,omitempty" yaml:"followRobots,omitempty"`
	MaxDomains         int           `json:"maxDomains,omitempty" yaml:"maxDomains,omitempty"`
	MaxPagesPerDomain  int           `json:"maxPagesPerDomain,omitempty" yaml:"maxPagesPerDomain,omitempty"`
	CheckpointInterval int           `json:"checkpointInterval,omitempty" yaml:"checkpointInterval,omitempty"`
	ExcludeExtensions  []string      `json:"excludeExtensions,omitempty" yaml:"excludeExtensions,omitempty"`
}

func newConfigFromDTO(dto configDTO) (Config, error) {

	// Start with default config
	cfg, err := WithDefault(dto.SeedURLs).Build()
	if err != nil {
		return Config{}, err
	}

	// AllowedHosts can be empty - if so, default to seed URLs hostnames
	if len(dto.AllowedHosts) > 0 {
		cfg.allowedHosts = dto.AllowedHosts
	}

	// AllowedPathPrefix can be empty - always use DTO values
	cfg.allowedPathPrefix = dto.AllowedPathPrefix

	// For other fields, only override if non-zero value is provided
	if dto.MaxDepth != 0 {
		cfg.maxDepth = dto.MaxDepth
	}
	if dto.MaxPages != 0 {
		cfg.maxPages = dto.MaxPages
	}
	if dto.Concurrency != 0 {
		cfg.concurrency = dto.Concurrency
	}
	if dto.BaseDelay != 0 {
		cfg.baseDelay = dto.BaseDelay
	}
	if dto.Jitter != 0 {
		cfg.jitter = dto.Jitter
	}
	if dto.RandomSeed != 0 {
		cfg.randomSeed = dto.RandomSeed
	}
	if dto.MaxAttempt != 0 {
		cfg.maxAttempt = dto.MaxAttempt
	}
	if dto.BackoffInitialDuration != 0 {
		cfg.backoffInitialDuration = dto.BackoffInitialDuration
	}
	if dto.BackoffMultiplier != 0 {
		cfg.backoffMultiplier = dto.BackoffMultiplier
	}
	if dto.BackoffMaxDuration != 0 {
		cfg.backoffMaxDuration = dto.BackoffMaxDuration
	}

	if dto.Timeout != 0 {
		cfg.timeout = dto.Timeout
	}
	if dto.UserAgent != "" {
		cfg.userAgent = dto.UserAgent
	}
	if dto.OutputDir != "" {
		cfg.outputDir = dto.OutputDir
	}
	// DryRun is a boolean, check if explicitly set (we use the DTO value as-is since bool zero value is false)
	cfg.dryRun = dto.DryRun

	// Scale / politeness - only override if non-zero value is provided
	if dto.MaxConcurrency != 0 {
		cfg.maxConcurrency = dto.MaxConcurrency
	}
	if dto.DomainDelay != 0 {
		cfg.domainDelay = dto.DomainDelay
	}
	if dto.DelayMin != 0 {
		cfg.delayMin = dto.DelayMin
	}
	if dto.DelayMax != 0 {
		cfg.delayMax = dto.DelayMax
	}
	// EnablePlaywright/FollowRobots are booleans: DTO value wins as-is.
	cfg.enablePlaywright = dto.EnablePlaywright
	cfg.followRobots = dto.FollowRobots
	if dto.MaxDomains != 0 {
		cfg.maxDomains = dto.MaxDomains
	}
	if dto.MaxPagesPerDomain != 0 {
		cfg.maxPagesPerDomain = dto.MaxPagesPerDomain
	}
	if dto.CheckpointInterval != 0 {
		cfg.checkpointInterval = dto.CheckpointInterval
	}
	if len(dto.ExcludeExtensions) > 0 {
		cfg.excludeExtensions = dto.ExcludeExtensions
	}

	return cfg, nil
}

// yamlConfigDTO mirrors configDTO for YAML config files. Seed URLs are
// plain strings in YAML (url.URL has no YAML unmarshaler), parsed and
// folded into a configDTO before reuse of newConfigFromDTO.
type yamlConfigDTO struct {
	SeedURLs               []string      `yaml:"seedUrls"`
	AllowedPathPrefix      []string      `yaml:"allowedPathPrefix,omitempty"`
	MaxDepth               int           `yaml:"maxDepth,omitempty"`
	MaxPages               int           `yaml:"maxPages,omitempty"`
	Concurrency            int           `yaml:"concurrency,omitempty"`
	BaseDelay              time.Duration `yaml:"baseDelay,omitempty"`
	Jitter                 time.Duration `yaml:"jitter,omitempty"`
	MaxAttempt             int           `yaml:"maxAttempt,omitempty"`
	BackoffInitialDuration time.Duration `yaml:"backoffInitialDuration,omitempty"`
	BackoffMultiplier      float64       `yaml:"backoffMultiplier,omitempty"`
	BackoffMaxDuration     time.Duration `yaml:"backoffMaxDuration,omitempty"`
	Timeout                time.Duration `yaml:"timeout,omitempty"`
	UserAgent              string        `yaml:"userAgent,omitempty"`
	OutputDir              string        `yaml:"outputDir,omitempty"`
	DryRun                 bool          `yaml:"dryRun,omitempty"`
	MaxConcurrency         int           `yaml:"maxConcurrency,omitempty"`
	DomainDelay            time.Duration `yaml:"domainDelay,omitempty"`
	DelayMin               time.Duration `yaml:"delayMin,omitempty"`
	DelayMax               time.Duration `yaml:"delayMax,omitempty"`
	EnablePlaywright       bool          `yaml:"enablePlaywright,omitempty"`
	FollowRobots           bool          `yaml:"followRobots,omitempty"`
	MaxDomains             int           `yaml:"maxDomains,omitempty"`
	MaxPagesPerDomain      int           `yaml:"maxPagesPerDomain,omitempty"`
	CheckpointInterval     int           `yaml:"checkpointInterval,omitempty"`
	ExcludeExtensions      []string      `yaml:"excludeExtensions,omitempty"`
}

// WithConfigFileYAML loads a Config from a YAML file, the operator-facing
// format for the crawler-scale fields (§6 of the config surface).
func WithConfigFileYAML(path string) (Config, error) {
	_, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	configContent, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}

	yamlDTO := yamlConfigDTO{}
	if err := yaml.Unmarshal(configContent, &yamlDTO); err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}

	seedURLs := make([]url.URL, 0, len(yamlDTO.SeedURLs))
	for _, raw := range yamlDTO.SeedURLs {
		parsed, err := url.Parse(raw)
		if err != nil {
			return Config{}, fmt.Errorf("%w: invalid seed url %q: %s", ErrConfigParsingFail, raw, err.Error())
		}
		seedURLs = append(seedURLs, *parsed)
	}

	dto := configDTO{
		SeedURLs:               seedURLs,
		AllowedPathPrefix:      yamlDTO.AllowedPathPrefix,
		MaxDepth:               yamlDTO.MaxDepth,
		MaxPages:               yamlDTO.MaxPages,
		Concurrency:            yamlDTO.Concurrency,
		BaseDelay:              yamlDTO.BaseDelay,
		Jitter:                 yamlDTO.Jitter,
		MaxAttempt:             yamlDTO.MaxAttempt,
		BackoffInitialDuration: yamlDTO.BackoffInitialDuration,
		BackoffMultiplier:      yamlDTO.BackoffMultiplier,
		BackoffMaxDuration:     yamlDTO.BackoffMaxDuration,
		Timeout:                yamlDTO.Timeout,
		UserAgent:              yamlDTO.UserAgent,
		OutputDir:              yamlDTO.OutputDir,
		DryRun:                 yamlDTO.DryRun,
		MaxConcurrency:         yamlDTO.MaxConcurrency,
		DomainDelay:            yamlDTO.DomainDelay,
		DelayMin:               yamlDTO.DelayMin,
		DelayMax:               yamlDTO.DelayMax,
		EnablePlaywright:       yamlDTO.EnablePlaywright,
		FollowRobots:           yamlDTO.FollowRobots,
		MaxDomains:             yamlDTO.MaxDomains,
		MaxPagesPerDomain:      yamlDTO.MaxPagesPerDomain,
		CheckpointInterval:     yamlDTO.CheckpointInterval,
		ExcludeExtensions:      yamlDTO.ExcludeExtensions,
	}

	return newConfigFromDTO(dto)
}

func WithConfigFile(path string) (Config, error) {
	_, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	configContent, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	cfgDTO := configDTO{}

	err = json.Unmarshal(configContent, &cfgDTO)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}

	cfg, err := newConfigFromDTO(cfgDTO)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WithDefault creates a new Config with the provided seed URLs and default values for all other fields.
// seedUrls is mandatory and must not be empty - an error will be returned if it is.
func WithDefault(seedUrls []url.URL) *Config {
	defaultConfig := Config{
		seedURLs:     seedUrls,
		allowedHosts: map[string]struct{}{},
		allowedPathPrefix: []string{
			"/",
		},
		maxDepth:               3,
		maxPages:               100,
		concurrency:            10,
		baseDelay:              time.Second,
		jitter:                 time.Millisecond * 500,
		randomSeed:             time.Now().UnixNano(),
		maxAttempt:             10,
		backoffInitialDuration: 100 * time.Millisecond,
		backoffMultiplier:      2.0,
		backoffMaxDuration:     10 * time.Second,
		timeout:                time.Second * 10,
		userAgent:              "docs-crawler/1.0",
		outputDir:              "output",
		dryRun:                 false,
		// Scale / politeness defaults
		maxConcurrency:     10,
		domainDelay:        time.Second,
		delayMin:           500 * time.Millisecond,
		delayMax:           2 * time.Second,
		enablePlaywright:   false,
		followRobots:       true,
		maxDomains:         0,
		maxPagesPerDomain:  0,
		checkpointInterval: 10,
		excludeExtensions: []string{
			".pdf", ".zip", ".exe", ".dmg", ".jpg", ".jpeg", ".png", ".gif", ".svg", ".mp4", ".mp3",
		},
	}
	return &defaultConfig
}

func (c *Config) WithSeedUrls(urls []url.URL) *Config {
	c.seedURLs = urls
	return c
}

func (c *Config) WithAllowedHosts(hosts map[string]struct{}) *Config {
	c.allowedHosts = hosts
	return c
}

func (c *Config) WithAllowedPathPrefix(prefixes []string) *Config {
	c.allowedPathPrefix = prefixes
	return c
}

func (c *Config) WithMaxDepth(depth int) *Config {
	c.maxDepth = depth
	return c
}

func (c *Config) WithMaxPages(pages int) *Config {
	c.maxPages = pages
	return c
}

func (c *Config) WithConcurrency(concurrency int) *Config {
	c.concurrency = concurrency
	return c
}

func (c *Config) WithBaseDelay(delay time.Duration) *Config {
	c.baseDelay = delay
	return c
}

func (c *Config) WithJitter(jitter time.Duration) *Config {
	c.jitter = jitter
	return c
}

func (c *Config) WithRandomSeed(seed int64) *Config {
	c.randomSeed = seed
	return c
}

func (c *Config) WithMaxAttempt(attempts int) *Config {
	c.maxAttempt = attempts
	return c
}

func (c *Config) WithBackoffInitialDuration(duration time.Duration) *Config {
	c.backoffInitialDuration = duration
	return c
}

func (c *Config) WithBackoffMultiplier(multiplier float64) *Config {
	c.backoffMultiplier = multiplier
	return c
}

func (c *Config) WithBackoffMaxDuration(duration time.Duration) *Config {
	c.backoffMaxDuration = duration
	return c
}

func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.timeout = timeout
	return c
}

func (c *Config) WithUserAgent(agent string) *Config {
	c.userAgent = agent
	return c
}

func (c *Config) WithOutputDir(outputDir string) *Config {
	c.outputDir = outputDir
	return c
}

func (c *Config) WithDryRun(dryRun bool) *Config {
	c.dryRun = dryRun
	return c
}


func (c *Config) WithMaxConcurrency(max int) *Config {
	c.maxConcurrency = max
	return c
}

func (c *Config) WithDomainDelay(delay time.Duration) *Config {
	c.domainDelay = delay
	return c
}

func (c *Config) WithDelayRange(min, max time.Duration) *Config {
	c.delayMin = min
	c.delayMax = max
	return c
}

func (c *Config) WithEnablePlaywright(enabled bool) *Config {
	c.enablePlaywright = enabled
	return c
}

func (c *Config) WithFollowRobots(follow bool) *Config {
	c.followRobots = follow
	return c
}

func (c *Config) WithMaxDomains(max int) *Config {
	c.maxDomains = max
	return c
}

func (c *Config) WithMaxPagesPerDomain(max int) *Config {
	c.maxPagesPerDomain = max
	return c
}

func (c *Config) WithCheckpointInterval(pages int) *Config {
	c.checkpointInterval = pages
	return c
}

func (c *Config) WithExcludeExtensions(extensions []string) *Config {
	c.excludeExtensions = extensions
	return c
}

func (c *Config) Build() (Config, error) {
	if len(c.seedURLs) == 0 {
		return Config{}, fmt.Errorf("%w: seedUrls cannot be empty", ErrInvalidConfig)
	}

	// If allowedHosts is empty, default to seed URLs hostnames
	if len(c.allowedHosts) == 0 {
		c.allowedHosts = make(map[string]struct{})
		for _, u := range c.seedURLs {
			if u.Host != "" {
				c.allowedHosts[u.Host] = struct{}{}
			}
		}
	}

	return *c, nil
}

func (c Config) SeedURLs() []url.URL {
	urls := make([]url.URL, len(c.seedURLs))
	copy(urls, c.seedURLs)
	return urls
}

func (c Config) AllowedHosts() map[string]struct{} {
	hosts := make(map[string]struct{})
	for k, v := range c.allowedHosts {
		hosts[k] = v
	}
	return hosts
}

func (c Config) AllowedPathPrefix() []string {
	prefixes := make([]string, len(c.allowedPathPrefix))
	copy(prefixes, c.allowedPathPrefix)
	return prefixes
}

func (c Config) MaxDepth() int {
	return c.maxDepth
}

func (c Config) MaxPages() int {
	return c.maxPages
}

func (c Config) Concurrency() int {
	return c.concurrency
}

func (c Config) BaseDelay() time.Duration {
	return c.baseDelay
}

func (c Config) Jitter() time.Duration {
	return c.jitter
}

func (c Config) RandomSeed() int64 {
	return c.randomSeed
}

func (c Config) Timeout() time.Duration {
	return c.timeout
}

func (c Config) UserAgent() string {
	return c.userAgent
}

func (c Config) OutputDir() string {
	return c.outputDir
}

func (c Config) DryRun() bool {
	return c.dryRun
}

func (c Config) MaxAttempt() int {
	return c.maxAttempt
}

func (c Config) BackoffInitialDuration() time.Duration {
	return c.backoffInitialDuration
}

func (c Config) BackoffMultiplier() float64 {
	return c.backoffMultiplier
}

func (c Config) BackoffMaxDuration() time.Duration {
	return c.backoffMaxDuration
}

func (c Config) MaxConcurrency() int {
	return c.maxConcurrency
}

func (c Config) DomainDelay() time.Duration {
	return c.domainDelay
}

func (c Config) DelayMin() time.Duration {
	return c.delayMin
}

func (c Config) DelayMax() time.Duration {
	return c.delayMax
}

func (c Config) EnablePlaywright() bool {
	return c.enablePlaywright
}

func (c Config) FollowRobots() bool {
	return c.followRobots
}

func (c Config) MaxDomains() int {
	return c.maxDomains
}

func (c Config) MaxPagesPerDomain() int {
	return c.maxPagesPerDomain
}

func (c Config) CheckpointInterval() int {
	return c.checkpointInterval
}

func (c Config) ExcludeExtensions() []string {
	extensions := make([]string, len(c.excludeExtensions))
	copy(extensions, c.excludeExtensions)
	return extensions
}
