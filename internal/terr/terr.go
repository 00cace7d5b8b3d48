// Package terr defines the closed error-kind taxonomy shared by every
// telemetry component. Errors cross package boundaries as values, never
// panics, and callers branch on Kind rather than comparing messages.
package terr

import "fmt"

// Kind is a closed enumeration of error categories. Unknown is reserved and
// never constructed by the core.
type Kind string

// Closed error kind set.
const (
	KindInvalidConfiguration   Kind = "invalid_configuration"
	KindCollectionFailed       Kind = "collection_failed"
	KindStorageFull            Kind = "storage_full"
	KindStorageEmpty           Kind = "storage_empty"
	KindNetworkError           Kind = "network_error"
	KindOperationTimeout       Kind = "operation_timeout"
	KindResourceExhausted      Kind = "resource_exhausted"
	KindResourceUnavailable    Kind = "resource_unavailable"
	KindNotFound               Kind = "not_found"
	KindAlreadyExists          Kind = "already_exists"
	KindDependencyMissing      Kind = "dependency_missing"
	KindInvalidState           Kind = "invalid_state"
	KindExportFailed           Kind = "export_failed"
	KindProcessingFailed       Kind = "processing_failed"
	KindMemoryAllocationFailed Kind = "memory_allocation_failed"
	KindInvalidArgument        Kind = "invalid_argument"
	KindUnknown                Kind = "unknown"
)

// Error is the tagged error variant every public operation returns on
// failure. Source is a "package.Func" style location, set by New at the
// call site rather than derived from runtime.Caller to keep the hot path
// allocation-light and the value deterministic in tests.
type Error struct {
	Kind    Kind
	Message string
	Context string
	Source  string
}

// New constructs an Error for kind with message, attributing it to source
// (conventionally "pkg.Func").
func New(kind Kind, source, message string) *Error {
	return &Error{Kind: kind, Message: message, Source: source}
}

// WithContext returns a copy of e with Context set.
func (e *Error) WithContext(ctx string) *Error {
	cp := *e
	cp.Context = ctx

	return &cp
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (%s) [%s]", e.Source, e.Message, e.Context, e.Kind)
	}

	return fmt.Sprintf("%s: %s [%s]", e.Source, e.Message, e.Kind)
}

// Is reports whether target is a *Error with the same Kind, enabling
// errors.Is(err, terr.New(terr.KindNotFound, "", "")) style checks against
// a zero-value sentinel carrying only the Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return e.Kind == t.Kind
}

// Sentinel returns a minimal *Error usable only as an errors.Is target.
func Sentinel(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Retryable reports whether errors of this kind are eligible for retry by
// the export pipeline and health evaluation per the transient-error policy.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetworkError, KindOperationTimeout, KindResourceUnavailable:
		return true
	default:
		return false
	}
}
