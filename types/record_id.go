package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/seamlezz/livebridge/codec"
	"github.com/seamlezz/livebridge/errors"
)

// Key tags recognized on a one-field object.
const (
	TagString  = "String"
	TagNumber  = "Number"
	TagInteger = "Integer"
	TagUUID    = "Uuid"
	TagArray   = "Array"
	TagObject  = "Object"
)

// RecordIDKey is the key part of a record id. Implementations are
// StringKey, NumberKey, UUIDKey, ArrayKey and ObjectKey.
type RecordIDKey interface {
	fmt.Stringer

	// Value returns the untagged form of the key.
	Value() codec.Value

	recordIDKey()
}

// StringKey is a text key.
type StringKey string

// NumberKey is an integer key.
type NumberKey int64

// UUIDKey is a uuid key.
type UUIDKey uuid.UUID

// ArrayKey is a composite key of ordered values.
type ArrayKey []codec.Value

// ObjectKey is a composite key of named values.
type ObjectKey codec.Object

func (StringKey) recordIDKey() {}
func (NumberKey) recordIDKey() {}
func (UUIDKey) recordIDKey()   {}
func (ArrayKey) recordIDKey()  {}
func (ObjectKey) recordIDKey() {}

func (k StringKey) String() string { return string(k) }
func (k NumberKey) String() string { return strconv.FormatInt(int64(k), 10) }
func (k UUIDKey) String() string   { return uuid.UUID(k).String() }
func (k ArrayKey) String() string  { return display(codec.Array(k)) }
func (k ObjectKey) String() string { return display(codec.Object(k)) }

func (k StringKey) Value() codec.Value { return codec.String(k) }
func (k NumberKey) Value() codec.Value { return codec.Int(k) }
func (k UUIDKey) Value() codec.Value   { return codec.String(k.String()) }
func (k ArrayKey) Value() codec.Value  { return codec.Array(k) }
func (k ObjectKey) Value() codec.Value { return codec.Object(k) }

// DecodeRecordIDKey reads a key from its intermediate form.
//
// Text and integers map to StringKey and NumberKey, arrays to ArrayKey.
// An object with exactly one field whose name is a known tag and whose
// value has the matching shape selects that variant; any other object,
// including a one-field object with an unknown tag, is an ObjectKey.
func DecodeRecordIDKey(v codec.Value) (RecordIDKey, error) {
	switch v := v.(type) {
	case codec.String:
		return StringKey(v), nil
	case codec.Int:
		return NumberKey(v), nil
	case codec.Uint:
		if v > math.MaxInt64 {
			return nil, errors.UnsupportedInteger([]string{"id"}, uint64(v))
		}
		return NumberKey(v), nil
	case codec.Array:
		return ArrayKey(v), nil
	case codec.Object:
		if len(v) == 1 {
			for tag, inner := range v {
				if k, ok := tagged(tag, inner); ok {
					return k, nil
				}
			}
		}
		return ObjectKey(v), nil
	}
	return nil, errors.New(errors.PhaseDecode, errors.KindUnsupportedValue).
		Path("id").
		Value(v).
		Detail("%T is not a record id key", v).
		Build()
}

func tagged(tag string, v codec.Value) (RecordIDKey, bool) {
	switch tag {
	case TagString:
		if s, ok := v.(codec.String); ok {
			return StringKey(s), true
		}
	case TagNumber, TagInteger:
		switch n := v.(type) {
		case codec.Int:
			return NumberKey(n), true
		case codec.Uint:
			if n <= math.MaxInt64 {
				return NumberKey(n), true
			}
		}
	case TagUUID:
		if s, ok := v.(codec.String); ok {
			if u, err := uuid.Parse(string(s)); err == nil {
				return UUIDKey(u), true
			}
		}
	case TagArray:
		if a, ok := v.(codec.Array); ok {
			return ArrayKey(a), true
		}
	case TagObject:
		if o, ok := v.(codec.Object); ok {
			return ObjectKey(o), true
		}
	}
	return nil, false
}

// RecordID names one record: a table and a key within it.
type RecordID struct {
	Key   RecordIDKey
	Table string
}

// NewRecordID creates a record id with a text key.
func NewRecordID(table, key string) RecordID {
	return RecordID{Table: table, Key: StringKey(key)}
}

// String renders the id as table:key.
func (r RecordID) String() string {
	if r.Key == nil {
		return r.Table + ":"
	}
	return r.Table + ":" + r.Key.String()
}

// Value returns the {tb, id} object form of the id.
func (r RecordID) Value() codec.Value {
	var key codec.Value = codec.Null{}
	if r.Key != nil {
		key = r.Key.Value()
	}
	return codec.Object{"tb": codec.String(r.Table), "id": key}
}

// ParseRecordID parses table:key text. A key that is a valid integer is a
// NumberKey; everything after the first colon is otherwise a StringKey.
func ParseRecordID(s string) (RecordID, error) {
	table, key, ok := strings.Cut(s, ":")
	if !ok || table == "" || key == "" {
		return RecordID{}, errors.InvalidInput(errors.PhaseDecode, fmt.Sprintf("record id %q is not table:key", s))
	}
	if n, err := strconv.ParseInt(key, 10, 64); err == nil {
		return RecordID{Table: table, Key: NumberKey(n)}, nil
	}
	return RecordID{Table: table, Key: StringKey(key)}, nil
}

// DecodeRecordID reads a record id from a {tb, id} object or table:key
// text.
func DecodeRecordID(v codec.Value) (RecordID, error) {
	switch v := v.(type) {
	case codec.String:
		return ParseRecordID(string(v))
	case codec.Object:
		tb, ok := v["tb"].(codec.String)
		if !ok {
			return RecordID{}, errors.New(errors.PhaseDecode, errors.KindUnsupportedValue).
				Path("tb").
				Detail("record id table must be text").
				Build()
		}
		id, ok := v["id"]
		if !ok {
			return RecordID{}, errors.New(errors.PhaseDecode, errors.KindUnsupportedValue).
				Path("id").
				Detail("record id has no key").
				Build()
		}
		key, err := DecodeRecordIDKey(id)
		if err != nil {
			return RecordID{}, err
		}
		return RecordID{Table: string(tb), Key: key}, nil
	}
	return RecordID{}, errors.New(errors.PhaseDecode, errors.KindUnsupportedValue).
		Value(v).
		Detail("%T is not a record id", v).
		Build()
}

func display(v codec.Value) string {
	var b strings.Builder
	writeDisplay(&b, v)
	return b.String()
}

func writeDisplay(b *strings.Builder, v codec.Value) {
	switch v := v.(type) {
	case codec.Null:
		b.WriteString("null")
	case codec.Bool:
		b.WriteString(strconv.FormatBool(bool(v)))
	case codec.Int:
		b.WriteString(strconv.FormatInt(int64(v), 10))
	case codec.Uint:
		b.WriteString(strconv.FormatUint(uint64(v), 10))
	case codec.Float:
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 64))
	case codec.String:
		b.WriteString(strconv.Quote(string(v)))
	case codec.Array:
		b.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				b.WriteString(", ")
			}
			writeDisplay(b, item)
		}
		b.WriteByte(']')
	case codec.Object:
		b.WriteByte('{')
		for i, k := range v.SortedKeys() {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(strconv.Quote(k))
			b.WriteString(": ")
			writeDisplay(b, v[k])
		}
		b.WriteByte('}')
	}
}
