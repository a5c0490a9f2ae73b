package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/seamlezz/livebridge/codec"
)

// ErrUnsignedRange is returned for statements that reference an unsigned
// value SQLite cannot store.
var ErrUnsignedRange = errors.New("unsigned integer exceeds the signed 64-bit range")

// bindArgs builds the named arguments for the parameters a statement
// references. Unknown names bind NULL.
func bindArgs(names []string, vars codec.Object) ([]any, error) {
	args := make([]any, 0, len(names))
	for _, name := range names {
		v, err := bindValue(vars[name])
		if err != nil {
			return nil, fmt.Errorf("parameter $%s: %w", name, err)
		}
		args = append(args, sql.Named(name, v))
	}
	return args, nil
}

func bindValue(v codec.Value) (any, error) {
	switch x := v.(type) {
	case nil, codec.Null:
		return nil, nil
	case codec.Bool:
		return bool(x), nil
	case codec.Int:
		return int64(x), nil
	case codec.Uint:
		return nil, fmt.Errorf("%w: %d", ErrUnsignedRange, uint64(x))
	case codec.Float:
		return float64(x), nil
	case codec.String:
		return string(x), nil
	case codec.Array, codec.Object:
		data, err := json.Marshal(x.Native())
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
	return nil, fmt.Errorf("unsupported value %T", v)
}

// literal renders a value as SQL text for trigger conditions, where
// parameters cannot be bound.
func literal(v codec.Value) (string, error) {
	switch x := v.(type) {
	case nil, codec.Null:
		return "NULL", nil
	case codec.Bool:
		if x {
			return "1", nil
		}
		return "0", nil
	case codec.Int:
		return strconv.FormatInt(int64(x), 10), nil
	case codec.Uint:
		return "", fmt.Errorf("%w: %d", ErrUnsignedRange, uint64(x))
	case codec.Float:
		return strconv.FormatFloat(float64(x), 'g', -1, 64), nil
	case codec.String:
		return quoteLiteral(string(x)), nil
	case codec.Array, codec.Object:
		data, err := json.Marshal(x.Native())
		if err != nil {
			return "", err
		}
		return quoteLiteral(string(data)), nil
	}
	return "", fmt.Errorf("unsupported value %T", v)
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// decodeSnapshot parses the json_object text a trigger sends. Integral
// numbers become int64, the rest float64.
func decodeSnapshot(data string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return numbers(v), nil
}

func numbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = numbers(x[i])
		}
	case map[string]any:
		for k := range x {
			x[k] = numbers(x[k])
		}
	}
	return v
}
