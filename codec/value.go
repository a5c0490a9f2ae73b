package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"time"

	"github.com/seamlezz/livebridge/errors"
)

// Value is a sealed interface over the intermediate value forms.
// Only Null, Bool, Int, Uint, Float, String, Array and Object implement it.
// There is no binary case: byte strings decode to an Array of Int.
type Value interface {
	// Native returns the value as plain Go data: nil, bool, int64, uint64,
	// float64, string, []any or map[string]any.
	Native() any
	value()
}

// Null is the absent value.
type Null struct{}

func (Null) value()      {}
func (Null) Native() any { return nil }

// Bool is a boolean value.
type Bool bool

func (Bool) value()        {}
func (b Bool) Native() any { return bool(b) }

// Int is an integer within the signed 64-bit range.
type Int int64

func (Int) value()        {}
func (i Int) Native() any { return int64(i) }

// Uint is an integer above math.MaxInt64 and within the unsigned 64-bit range.
type Uint uint64

func (Uint) value()        {}
func (u Uint) Native() any { return uint64(u) }

// Float is a finite float.
type Float float64

func (Float) value()        {}
func (f Float) Native() any { return float64(f) }

// String is a text value.
type String string

func (String) value()        {}
func (s String) Native() any { return string(s) }

// Array is an ordered list of values.
type Array []Value

func (Array) value() {}

func (a Array) Native() any {
	out := make([]any, len(a))
	for i, v := range a {
		out[i] = v.Native()
	}
	return out
}

// Object maps unique string keys to values.
// Use SortedKeys() for deterministic iteration.
type Object map[string]Value

func (Object) value() {}

func (o Object) Native() any {
	out := make(map[string]any, len(o))
	for k, v := range o {
		out[k] = v.Native()
	}
	return out
}

// SortedKeys returns the keys in lexicographic byte order.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Bytes builds the intermediate form of a raw byte string.
func Bytes(b []byte) Array {
	out := make(Array, len(b))
	for i, c := range b {
		out[i] = Int(c)
	}
	return out
}

// FromNative converts plain Go data into an intermediate value. It accepts
// the shapes Native produces plus the other fixed-size integer and float
// kinds, json.Number, []byte and map[string]T / []T via reflection.
func FromNative(v any) (Value, error) {
	return fromNative(v, nil)
}

func fromNative(v any, path []string) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case []byte:
		return Bytes(x), nil
	case time.Time:
		return String(x.Format(time.RFC3339Nano)), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i), nil
		}
		if u, err := strconv.ParseUint(string(x), 10, 64); err == nil {
			return Uint(u), nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, errors.New(errors.PhaseDecode, errors.KindUnsupportedValue).
				Path(path...).Value(string(x)).Cause(err).Detail("number %s", x).Build()
		}
		return floatValue(f, path)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return uintValue(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return floatValue(rv.Float(), path)
	case reflect.Slice, reflect.Array:
		out := make(Array, rv.Len())
		for i := range out {
			elem, err := fromNative(rv.Index(i).Interface(), child(path, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			out[i] = elem
		}
		return out, nil
	case reflect.Map:
		out := make(Object, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key, err := mapKey(iter.Key().Interface(), path)
			if err != nil {
				return nil, err
			}
			elem, err := fromNative(iter.Value().Interface(), child(path, key))
			if err != nil {
				return nil, err
			}
			out[key] = elem
		}
		return out, nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null{}, nil
		}
		return fromNative(rv.Elem().Interface(), path)
	}

	return nil, errors.UnsupportedValue(path, fmt.Sprintf("Go type %T has no intermediate form", v))
}

func child(path []string, seg string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = seg
	return out
}

func uintValue(u uint64) Value {
	if u <= math.MaxInt64 {
		return Int(int64(u))
	}
	return Uint(u)
}

func floatValue(f float64, path []string) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, errors.InvalidFloat(path, f)
	}
	return Float(f), nil
}

// mapKey applies the key rule to Go map keys: text keys are kept, integer
// keys are stringified, anything else is rejected.
func mapKey(k any, path []string) (string, error) {
	switch key := k.(type) {
	case string:
		return key, nil
	case int:
		return strconv.FormatInt(int64(key), 10), nil
	case int64:
		return strconv.FormatInt(key, 10), nil
	case uint64:
		return strconv.FormatUint(key, 10), nil
	case int8, int16, int32, uint, uint8, uint16, uint32:
		return fmt.Sprint(key), nil
	}
	return "", errors.UnsupportedMapKey(path, k)
}
