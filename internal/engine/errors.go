package engine

import "github.com/rohmanhakim/smartcrawl/internal/metadata"

// EngineErrorCause classifies engine-local failure observability
// events. The engine never returns a ClassifiedError to its caller —
// spec.md §4.10 is explicit that "the engine never throws per URL; it
// returns structured triples" — so this enum exists purely to map
// into metadata.ErrorCause for RecordError calls.
type EngineErrorCause string

const (
	ErrCauseFetchExhausted EngineErrorCause = "all fetch modes exhausted"
	ErrCauseDetectionMiss  EngineErrorCause = "detector found no candidates"
)

// mapEngineCauseToMetadataCause maps engine-local observability
// causes to the canonical metadata.ErrorCause table. Observational
// only: see metadata.ErrorCause's own non-goals.
func mapEngineCauseToMetadataCause(cause EngineErrorCause) metadata.ErrorCause {
	switch cause {
	case ErrCauseFetchExhausted:
		return metadata.CauseNetworkFailure
	case ErrCauseDetectionMiss:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
