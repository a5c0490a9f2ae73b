package codec

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/seamlezz/livebridge/errors"
)

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.EncOptions{
		Sort:    cbor.SortCoreDeterministic,
		Time:    cbor.TimeRFC3339Nano,
		TimeTag: cbor.EncTagRequired,
	}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

// EncodeResult serializes a driver's native value straight to CBOR.
// Values CBOR cannot represent fail with a conversion error carrying the
// encoder's cause.
func EncodeResult(native any) ([]byte, error) {
	if v, ok := native.(Value); ok {
		native = v.Native()
	}
	data, err := encMode.Marshal(native)
	if err != nil {
		return nil, errors.Conversion(err)
	}
	return data, nil
}

// Encode serializes an intermediate value to CBOR.
func Encode(v Value) ([]byte, error) {
	if v == nil {
		v = Null{}
	}
	return EncodeResult(v.Native())
}

// Unmarshal decodes CBOR produced by EncodeResult into a Go value, using the
// same options as parameter decoding.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
