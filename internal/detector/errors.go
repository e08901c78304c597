package detector

import (
	"fmt"

	"github.com/rohmanhakim/smartcrawl/internal/metadata"
	"github.com/rohmanhakim/smartcrawl/pkg/failure"
)

type DetectionErrorCause string

const (
	ErrCauseNoCandidates DetectionErrorCause = "no surviving candidates"
	ErrCauseParseError   DetectionErrorCause = "document parse error"
)

type DetectionError struct {
	Message   string
	Retryable bool
	Cause     DetectionErrorCause
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("detection error: %s", e.Cause)
}

func (e *DetectionError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// mapDetectionErrorToMetadataCause maps detector-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapDetectionErrorToMetadataCause(err *DetectionError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseNoCandidates:
		return metadata.CauseContentInvalid
	case ErrCauseParseError:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
