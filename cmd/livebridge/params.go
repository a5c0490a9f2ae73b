package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/seamlezz/livebridge/codec"
	"github.com/seamlezz/livebridge/params"
)

// parseParams turns name=value flags into call parameters. A value that
// parses as JSON keeps its type; anything else is a string.
func parseParams(flags []string) ([]params.Param, error) {
	out := make([]params.Param, 0, len(flags))
	for _, f := range flags {
		name, raw, ok := strings.Cut(f, "=")
		name = strings.TrimPrefix(strings.TrimSpace(name), "$")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q: expected name=value", f)
		}

		v, err := codec.FromNative(parseValue(raw))
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		data, err := codec.Encode(v)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		out = append(out, params.Param{Name: name, Data: data})
	}
	return out, nil
}

func parseValue(raw string) any {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return raw
	}
	// Trailing data means raw was text that merely starts like JSON.
	if _, err := dec.Token(); err != io.EOF {
		return raw
	}
	return v
}
