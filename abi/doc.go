// Package abi moves call-interface values across guest linear memory using
// the Component Model canonical ABI.
//
// # Layout Rules
//
// The Canonical ABI defines specific layout rules:
//   - Primitives: size equals alignment (u8=1, u32=4, u64=8, etc.)
//   - Records: fields laid out sequentially with padding for alignment
//   - Variants, options and results: discriminant followed by the largest payload
//   - Lists/Strings: (pointer, length) pair in memory, content elsewhere
//   - own/borrow handles: a u32
//
// The WIT types of seamlezz:surrealdb/call are declared in this package and
// CallLayouts computes their sizes and field offsets once.
//
// # Memory
//
// Memory wraps wazero's api.Memory with bounds-checked little-endian access.
// Allocator calls the guest's cabi_realloc export, so lowered results are
// owned by the guest. Lifted strings are validated as UTF-8.
package abi
