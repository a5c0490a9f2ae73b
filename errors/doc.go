// Package errors provides structured error types for the livebridge host.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries a field path, the offending value, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindUnsupportedMapKey).
//		Path("filter", "tags").
//		Value(true).
//		Detail("map key of type bool is not text or integer").
//		Build()
//
// Or use the taxonomy constructors:
//
//	err := errors.ParamDecode("id", cause)
//	err := errors.SubscriptionNotFound(7)
//
// Is matches on Phase and Kind only, so the Err* targets work with the
// standard library:
//
//	if errors.Is(err, lberrors.ErrParamDecode) { ... }
package errors
