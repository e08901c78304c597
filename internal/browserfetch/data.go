package browserfetch

import "time"

// BrowserConfig controls the headless browser instance launched for
// C6. Grounded in Easonliuliang-purify/config's BrowserConfig shape.
type BrowserConfig struct {
	Headless    bool
	NoSandbox   bool
	BrowserBin  string
	MaxPages    int
	MaxTimeout  time.Duration
	DefaultProxy string
}

// DefaultBrowserConfig returns a sane headless, sandboxed default.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless:   true,
		NoSandbox:  false,
		MaxPages:   4,
		MaxTimeout: 30 * time.Second,
	}
}
