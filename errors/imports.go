package errors

import (
	"fmt"
	"strings"
)

// MissingImport is one guest import no host module provides.
type MissingImport struct {
	Module   string // e.g., "seamlezz:surrealdb/call@0.2.0"
	Function string // e.g., "subscribe"
}

// MissingImportsError is returned when a guest imports functions the bridge
// cannot satisfy.
type MissingImportsError struct {
	Imports []MissingImport
}

// NewMissingImportsError creates an error from "module#function" keys.
func NewMissingImportsError(keys []string) *MissingImportsError {
	result := &MissingImportsError{
		Imports: make([]MissingImport, 0, len(keys)),
	}
	for _, key := range keys {
		mod, fn, found := strings.Cut(key, "#")
		if !found {
			mod, fn = key, ""
		}
		result.Imports = append(result.Imports, MissingImport{Module: mod, Function: fn})
	}
	return result
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[load] missing_import: no imports specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "missing %d host function(s):\n", len(e.Imports))

	byModule := make(map[string][]string)
	var order []string
	for _, imp := range e.Imports {
		if _, seen := byModule[imp.Module]; !seen {
			order = append(order, imp.Module)
		}
		byModule[imp.Module] = append(byModule[imp.Module], imp.Function)
	}

	for _, mod := range order {
		b.WriteString("\n  ")
		b.WriteString(mod)
		b.WriteString(":\n")
		for _, fn := range byModule[mod] {
			b.WriteString("    - ")
			b.WriteString(fn)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingImportsError) Is(target error) bool {
	_, ok := target.(*MissingImportsError)
	return ok
}
