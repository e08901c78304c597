package browserfetch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rohmanhakim/smartcrawl/pkg/failure"
)

func TestDefaultBrowserConfig(t *testing.T) {
	cfg := DefaultBrowserConfig()
	assert.True(t, cfg.Headless)
	assert.False(t, cfg.NoSandbox)
	assert.Equal(t, 4, cfg.MaxPages)
	assert.Equal(t, 30*time.Second, cfg.MaxTimeout)
}

func TestBrowserError_Severity(t *testing.T) {
	retryable := &BrowserError{Retryable: true, Cause: ErrCauseNavigationFailed}
	assert.Equal(t, failure.SeverityRecoverable, retryable.Severity())

	permanent := &BrowserError{Retryable: false, Cause: ErrCauseLaunchFailed}
	assert.Equal(t, failure.SeverityFatal, permanent.Severity())
}

func TestToHeadersMap(t *testing.T) {
	headers := map[string]string{"Authorization": "Bearer token", "X-Custom": "value"}
	mapped := toHeadersMap(headers)

	assert.Len(t, mapped, 2)
	assert.Equal(t, "Bearer token", mapped["Authorization"].Str())
	assert.Equal(t, "value", mapped["X-Custom"].Str())
}

func TestMapBrowserErrorToMetadataCause(t *testing.T) {
	err := &BrowserError{Cause: ErrCauseExtractFailed}
	cause := mapBrowserErrorToMetadataCause(err)
	assert.NotZero(t, cause)
}
