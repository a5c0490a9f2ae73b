// Package params turns the named, CBOR-encoded parameters of a call into
// the variables a driver binds.
package params

import (
	"slices"
	"strings"

	"github.com/seamlezz/livebridge/codec"
	"github.com/seamlezz/livebridge/errors"
)

// Param is one bound parameter as it crosses the call boundary.
type Param struct {
	Name string
	Data []byte
}

// Binding is a decoded variable in bind order.
type Binding struct {
	Value codec.Value
	Name  string
}

// Decode decodes every parameter before anything is bound. The first
// failure aborts with a param_decode error naming the key; no partial set
// is returned. A name seen twice keeps its later value.
func Decode(ps []Param) (codec.Object, error) {
	vars := make(codec.Object, len(ps))
	for _, p := range ps {
		v, err := codec.DecodeParam(p.Data)
		if err != nil {
			return nil, errors.ParamDecode(p.Name, err)
		}
		vars[p.Name] = v
	}
	return vars, nil
}

// Bind returns the variables ordered lexicographically by name, independent
// of the order the caller supplied them in.
func Bind(vars codec.Object) []Binding {
	out := make([]Binding, 0, len(vars))
	for name, v := range vars {
		out = append(out, Binding{Name: name, Value: v})
	}
	slices.SortFunc(out, func(a, b Binding) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}
