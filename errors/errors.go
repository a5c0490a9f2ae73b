package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDecode    Phase = "decode"    // wire bytes to intermediate value
	PhaseEncode    Phase = "encode"    // native value to wire bytes
	PhaseQuery     Phase = "query"     // query execution
	PhaseSubscribe Phase = "subscribe" // live query submission and feed
	PhaseCancel    Phase = "cancel"    // subscription cancellation
	PhaseHost      Phase = "host"      // host function registration and ABI
	PhaseConfig    Phase = "config"    // configuration loading
	PhaseLoad      Phase = "load"      // guest module loading
)

// Kind categorizes the error
type Kind string

const (
	KindUnsupportedInteger Kind = "unsupported_integer"
	KindInvalidFloat       Kind = "invalid_float"
	KindUnsupportedMapKey  Kind = "unsupported_map_key"
	KindUnsupportedValue   Kind = "unsupported_value"
	KindParamDecode        Kind = "param_decode"
	KindQueryExecution     Kind = "query_execution"
	KindConversion         Kind = "conversion"
	KindStreamOpen         Kind = "stream_open"
	KindNotFound           Kind = "not_found"
	KindOutOfBounds        Kind = "out_of_bounds"
	KindInvalidUTF8        Kind = "invalid_utf8"
	KindAllocation         Kind = "allocation"
	KindInvalidInput       Kind = "invalid_input"
	KindRegistration       Kind = "registration"
	KindInstantiation      Kind = "instantiation"
	KindShutdown           Kind = "shutdown"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Message returns the innermost human-readable reason, without the
// phase/kind prefix. Used where an error crosses the call boundary as text.
func (e *Error) Message() string {
	if e.Cause != nil {
		reason := e.Cause.Error()
		if inner, ok := e.Cause.(*Error); ok {
			reason = inner.Message()
		}
		if e.Detail != "" {
			return e.Detail + ": " + reason
		}
		return reason
	}
	if e.Detail != "" {
		return e.Detail
	}
	return string(e.Kind)
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Targets for errors.Is. Only Phase and Kind take part in matching.
var (
	ErrParamDecode          = &Error{Phase: PhaseDecode, Kind: KindParamDecode}
	ErrQueryExecution       = &Error{Phase: PhaseQuery, Kind: KindQueryExecution}
	ErrConversion           = &Error{Phase: PhaseEncode, Kind: KindConversion}
	ErrStreamOpen           = &Error{Phase: PhaseSubscribe, Kind: KindStreamOpen}
	ErrSubscriptionNotFound = &Error{Phase: PhaseCancel, Kind: KindNotFound}
)

// Value codec constructors

// UnsupportedInteger creates an error for an integer outside both the
// signed and unsigned 64-bit ranges.
func UnsupportedInteger(path []string, value any) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindUnsupportedInteger,
		Path:   path,
		Detail: fmt.Sprintf("integer %v does not fit in 64 bits", value),
		Value:  value,
	}
}

// InvalidFloat creates an error for a NaN or infinite float.
func InvalidFloat(path []string, value float64) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindInvalidFloat,
		Path:   path,
		Detail: fmt.Sprintf("float %v is not finite", value),
		Value:  value,
	}
}

// UnsupportedMapKey creates an error for a map key that is neither text nor integer.
func UnsupportedMapKey(path []string, key any) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindUnsupportedMapKey,
		Path:   path,
		Detail: fmt.Sprintf("map key of type %T is not text or integer", key),
		Value:  key,
	}
}

// UnsupportedValue creates an error for a wire value with no intermediate form.
func UnsupportedValue(path []string, what string) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindUnsupportedValue,
		Path:   path,
		Detail: what,
	}
}

// Bridge taxonomy constructors

// ParamDecode creates the call-aborting error for a bound parameter whose
// bytes could not be decoded.
func ParamDecode(key string, cause error) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindParamDecode,
		Path:   []string{key},
		Detail: fmt.Sprintf("parameter %q", key),
		Value:  key,
		Cause:  cause,
	}
}

// QueryExecution creates the call-aborting error for a query the driver
// rejected or could not run as a whole.
func QueryExecution(cause error) *Error {
	return &Error{
		Phase:  PhaseQuery,
		Kind:   KindQueryExecution,
		Detail: "execute query",
		Cause:  cause,
	}
}

// Conversion creates the error for a native value that could not be
// re-encoded to wire bytes.
func Conversion(cause error) *Error {
	return &Error{
		Phase:  PhaseEncode,
		Kind:   KindConversion,
		Detail: "convert result",
		Cause:  cause,
	}
}

// StreamOpen creates the call-aborting error for a live query whose
// notification feed could not be obtained.
func StreamOpen(cause error) *Error {
	return &Error{
		Phase:  PhaseSubscribe,
		Kind:   KindStreamOpen,
		Detail: "open live feed",
		Cause:  cause,
	}
}

// SubscriptionNotFound creates the error for a cancel of an unknown id.
func SubscriptionNotFound(id uint64) *Error {
	return &Error{
		Phase:  PhaseCancel,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("subscription %d not found", id),
		Value:  id,
	}
}

// Boundary constructors

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, path []string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Path:   path,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// OutOfBounds creates a guest memory access error
func OutOfBounds(phase Phase, offset, length uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("offset=%d, length=%d out of bounds", offset, length),
		Value:  offset,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint32, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Registration creates a registration error
func Registration(namespace, name string, cause error) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s#%s", namespace, name),
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Shutdown creates the error returned by operations on a closed bridge.
func Shutdown(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindShutdown,
		Detail: "bridge is shut down",
	}
}
