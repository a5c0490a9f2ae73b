// Package resource provides Component Model resource handle management.
//
// Resources are opaque handles representing host-side values that are
// passed to a WASM guest. The bridge hands out one live-stream resource per
// subscription; the guest calls its methods by handle and drops it when it
// is done.
//
// # Resource Lifecycle
//
//	own<T>    - Ownership transfer (caller loses handle)
//	borrow<T> - Temporary access (handle remains valid)
//	drop      - Explicit destruction of owned resource
//
// # Handle Table
//
// Table maps integer handles to Go values of one type:
//
//	streams := resource.NewTable[*stream.Adapter]()
//
//	handle, err := streams.Insert(adapter)
//	adapter, ok := streams.Get(handle)
//	adapter, ok = streams.Remove(handle) // calls Drop if implemented
//
// Handle 0 is never issued. Removed handles are reused by later inserts.
//
// # Memory Management
//
// Resources are not garbage collected. The host must call Remove when the
// guest drops a handle, and Close when the guest instance goes away.
package resource
