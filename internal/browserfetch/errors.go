package browserfetch

import (
	"github.com/rohmanhakim/smartcrawl/internal/metadata"
	"github.com/rohmanhakim/smartcrawl/pkg/failure"
)

type BrowserErrorCause string

const (
	ErrCauseLaunchFailed    BrowserErrorCause = "launch_failed"
	ErrCausePoolExhausted   BrowserErrorCause = "pool_exhausted"
	ErrCauseNavigationFailed BrowserErrorCause = "navigation_failed"
	ErrCauseExtractFailed   BrowserErrorCause = "extract_failed"
)

// BrowserError is the classified error produced by the browser
// fetcher. Fetch never surfaces it directly (it collapses to ok=false
// per spec.md §4.5), but it still carries a Severity for metadata
// recording, mirroring FetchError in internal/fetcher.
type BrowserError struct {
	Message   string
	Retryable bool
	Cause     BrowserErrorCause
}

func (e *BrowserError) Error() string {
	return e.Message
}

func (e *BrowserError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func mapBrowserErrorToMetadataCause(err *BrowserError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseLaunchFailed, ErrCausePoolExhausted:
		return metadata.CauseNetworkFailure
	case ErrCauseNavigationFailed:
		return metadata.CauseNetworkFailure
	case ErrCauseExtractFailed:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseRetryFailure
	}
}
