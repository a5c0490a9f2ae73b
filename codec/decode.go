package codec

import (
	"encoding/binary"
	"math"
	"math/big"
	"strconv"

	"github.com/fxamacker/cbor/v2"

	"github.com/seamlezz/livebridge/errors"
)

// CBOR major types
const (
	majorUnsigned = 0
	majorNegative = 1
	majorBytes    = 2
	majorText     = 3
	majorArray    = 4
	majorMap      = 5
	majorTag      = 6
	majorSimple   = 7
)

// Major type 7 initial bytes
const (
	simpleFalse     = 0xf4
	simpleTrue      = 0xf5
	simpleNull      = 0xf6
	simpleUndefined = 0xf7
	floatHalf       = 0xf9
	floatSingle     = 0xfa
	floatDouble     = 0xfb
	breakByte       = 0xff
)

var decMode = mustDecMode()

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{
		IntDec:           cbor.IntDecConvertNone,
		MapKeyByteString: cbor.MapKeyByteStringAllowed,
		UTF8:             cbor.UTF8RejectInvalid,
		MaxNestedLevels:  256,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}

// DecodeParam decodes one CBOR data item into an intermediate value.
//
// Integers in the signed 64-bit range become Int, those above it and within
// the unsigned range become Uint. Negative integers below the signed range
// fail with unsupported_integer. NaN and infinities fail with invalid_float.
// Byte strings become an Array of Int. Map keys must be text or integer;
// integer keys of any size are stringified, and a text key wins over an
// integer key with the same name. Tags are discarded and their content kept.
// undefined and the other simple values fail with unsupported_value.
func DecodeParam(data []byte) (Value, error) {
	if err := decMode.Wellformed(data); err != nil {
		return nil, errors.New(errors.PhaseDecode, errors.KindUnsupportedValue).
			Cause(err).
			Detail("malformed CBOR").
			Build()
	}
	return decodeItem(data, nil)
}

func decodeItem(data cbor.RawMessage, path []string) (Value, error) {
	switch data[0] >> 5 {
	case majorUnsigned:
		var u uint64
		if err := decMode.Unmarshal(data, &u); err != nil {
			return nil, malformed(path, err)
		}
		return uintValue(u), nil

	case majorNegative:
		var n big.Int
		if err := decMode.Unmarshal(data, &n); err != nil {
			return nil, malformed(path, err)
		}
		if !n.IsInt64() {
			return nil, errors.UnsupportedInteger(path, n.String())
		}
		return Int(n.Int64()), nil

	case majorBytes:
		var b []byte
		if err := decMode.Unmarshal(data, &b); err != nil {
			return nil, malformed(path, err)
		}
		return Bytes(b), nil

	case majorText:
		var s string
		if err := decMode.Unmarshal(data, &s); err != nil {
			return nil, malformed(path, err)
		}
		return String(s), nil

	case majorArray:
		var items []cbor.RawMessage
		if err := decMode.Unmarshal(data, &items); err != nil {
			return nil, malformed(path, err)
		}
		out := make(Array, len(items))
		for i, item := range items {
			v, err := decodeItem(item, child(path, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case majorMap:
		return decodeMap(data, path)

	case majorTag:
		var tag cbor.RawTag
		if err := decMode.Unmarshal(data, &tag); err != nil {
			return nil, malformed(path, err)
		}
		return decodeItem(tag.Content, path)

	case majorSimple:
		return decodeSimple(data, path)
	}

	return nil, errors.UnsupportedValue(path, "unknown major type")
}

// decodeMap walks the entries in wire order. Text and integer keys can
// stringify to the same name; the text key's value is kept, and among keys
// of one kind the last entry wins.
func decodeMap(data cbor.RawMessage, path []string) (Value, error) {
	n, rest, indefinite := mapHeader(data)

	out := make(Object)
	textKeys := make(map[string]bool)
	for i := uint64(0); indefinite || i < n; i++ {
		if indefinite && rest[0] == breakByte {
			break
		}
		var rawKey, rawVal cbor.RawMessage
		var err error
		if rest, err = decMode.UnmarshalFirst(rest, &rawKey); err != nil {
			return nil, malformed(path, err)
		}
		if rest, err = decMode.UnmarshalFirst(rest, &rawVal); err != nil {
			return nil, malformed(path, err)
		}

		key, text, err := decodeMapKey(rawKey, path)
		if err != nil {
			return nil, err
		}
		if !text && textKeys[key] {
			continue
		}
		v, err := decodeItem(rawVal, child(path, key))
		if err != nil {
			return nil, err
		}
		out[key] = v
		if text {
			textKeys[key] = true
		}
	}
	return out, nil
}

// mapHeader returns the entry count and the bytes after the map head.
// data is known to be well-formed.
func mapHeader(data []byte) (n uint64, rest []byte, indefinite bool) {
	switch ai := data[0] & 0x1f; {
	case ai < 24:
		return uint64(ai), data[1:], false
	case ai == 24:
		return uint64(data[1]), data[2:], false
	case ai == 25:
		return uint64(binary.BigEndian.Uint16(data[1:])), data[3:], false
	case ai == 26:
		return uint64(binary.BigEndian.Uint32(data[1:])), data[5:], false
	case ai == 27:
		return binary.BigEndian.Uint64(data[1:]), data[9:], false
	}
	return 0, data[1:], true
}

// decodeMapKey stringifies an integer key of any size and keeps text keys
// as they are. text reports whether the key was text on the wire.
func decodeMapKey(raw cbor.RawMessage, path []string) (key string, text bool, err error) {
	switch raw[0] >> 5 {
	case majorUnsigned:
		var u uint64
		if err := decMode.Unmarshal(raw, &u); err != nil {
			return "", false, malformed(path, err)
		}
		return strconv.FormatUint(u, 10), false, nil
	case majorNegative:
		var n big.Int
		if err := decMode.Unmarshal(raw, &n); err != nil {
			return "", false, malformed(path, err)
		}
		return n.String(), false, nil
	case majorText:
		var s string
		if err := decMode.Unmarshal(raw, &s); err != nil {
			return "", false, malformed(path, err)
		}
		return s, true, nil
	case majorTag:
		var tag cbor.RawTag
		if err := decMode.Unmarshal(raw, &tag); err != nil {
			return "", false, malformed(path, err)
		}
		return decodeMapKey(tag.Content, path)
	}

	var k any
	_ = decMode.Unmarshal(raw, &k)
	return "", false, errors.UnsupportedMapKey(path, k)
}

func decodeSimple(data cbor.RawMessage, path []string) (Value, error) {
	switch data[0] {
	case simpleFalse:
		return Bool(false), nil
	case simpleTrue:
		return Bool(true), nil
	case simpleNull:
		return Null{}, nil
	case simpleUndefined:
		return nil, errors.UnsupportedValue(path, "undefined has no intermediate form")
	case floatHalf, floatSingle, floatDouble:
		var f float64
		if err := decMode.Unmarshal(data, &f); err != nil {
			return nil, malformed(path, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, errors.InvalidFloat(path, f)
		}
		return Float(f), nil
	}
	return nil, errors.New(errors.PhaseDecode, errors.KindUnsupportedValue).
		Path(path...).
		Value(data[0]).
		Detail("simple value 0x%02x has no intermediate form", data[0]).
		Build()
}

func malformed(path []string, err error) *errors.Error {
	return errors.New(errors.PhaseDecode, errors.KindUnsupportedValue).
		Path(path...).
		Cause(err).
		Detail("malformed CBOR").
		Build()
}
