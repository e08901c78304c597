package sink

import (
	"fmt"

	"github.com/rohmanhakim/smartcrawl/internal/metadata"
	"github.com/rohmanhakim/smartcrawl/pkg/failure"
)

type SinkErrorCause string

const (
	ErrCauseDiskFull     SinkErrorCause = "disk is full"
	ErrCauseWriteFailure SinkErrorCause = "write failed"
	ErrCausePathError    SinkErrorCause = "path error"
	ErrCauseEncodeFailed SinkErrorCause = "encode failed"
)

type SinkError struct {
	Message   string
	Retryable bool
	Cause     SinkErrorCause
	Path      string
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink error: %s", e.Cause)
}

func (e *SinkError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// mapSinkErrorToMetadataCause maps sink-local error semantics to the
// canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used to derive
// control-flow decisions.
func mapSinkErrorToMetadataCause(err *SinkError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseDiskFull, ErrCauseWriteFailure, ErrCausePathError:
		return metadata.CauseStorageFailure
	case ErrCauseEncodeFailed:
		return metadata.CauseInvariantViolation
	default:
		return metadata.CauseUnknown
	}
}
