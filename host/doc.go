// Package host exposes a bridge to WASM guests as the
// seamlezz:surrealdb/call interface.
//
// A Host registers the call interface as a wazero host module. Its
// functions follow the canonical ABI: strings and lists arrive as
// (pointer, length) pairs in guest memory, results that do not fit a
// single core value are written through a return pointer, and every
// buffer handed back to the guest is allocated with the guest's
// cabi_realloc export.
//
// # Exports
//
//	query(query, params) -> result<list<result<list<u8>, string>>, query-error>
//	subscribe(query, params) -> result<tuple<u64, live-stream>, query-error>
//	cancel(subscription-id) -> result<_, string>
//
//	[method]live-stream.poll-next(self) -> poll-result
//	[method]live-stream.next(self) -> option<live-event>
//	[method]live-stream.ready(self) -> bool
//	[method]live-stream.cancel(self)
//	[resource-drop]live-stream(self)
//
// Call failures come back to the guest as query-error values. Violations of
// the ABI itself (out-of-bounds pointers, invalid UTF-8, unknown
// live-stream handles) trap.
//
// # Versioning
//
// A guest built against seamlezz:surrealdb/call@X.Y.W binds to a host at
// X.Y'.Z when the majors are equal and (Y', Z) >= (Y, W).
//
// # Running Guests
//
//	h := host.New(b)
//	r, err := host.NewRunner(ctx, h, host.WithStdout(os.Stdout))
//	defer r.Close(ctx)
//
//	err = r.Run(ctx, wasmBytes, "run")
//
// The runner provides WASI preview1 and reports every import it cannot
// satisfy in one MissingImportsError.
package host
