// Package codec moves values across the call boundary.
//
// Guest parameters arrive as CBOR and are decoded into the intermediate
// Value form, which the driver binds. Driver results travel the other way:
// the native Go value is encoded straight to CBOR.
//
//	v, err := codec.DecodeParam(data)       // CBOR -> Value
//	data, err := codec.EncodeResult(native) // native -> CBOR
//
// Encoding is deterministic: map keys are sorted, time.Time is written as an
// RFC 3339 string under tag 0.
package codec
