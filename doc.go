// Package livebridge lets a sandboxed WebAssembly guest run database queries
// and live subscriptions against a driver that lives in the host process.
//
// The guest sees three functions and one resource type:
//
//	query(query, params)     -> result<list<result<bytes, string>>, query-error>
//	subscribe(query, params) -> result<tuple<u64, live-stream>, query-error>
//	cancel(id)               -> result<_, string>
//
// Every payload crossing the boundary is CBOR. Parameters are decoded into an
// intermediate value, bound in name order, executed by the driver, and each
// statement's native result is re-encoded on the way back.
//
// # Architecture Overview
//
//	livebridge/          Root package with guest Memory and Allocator interfaces
//	├── codec/           CBOR <-> intermediate value <-> native value
//	├── params/          Named parameter decoding and bind order
//	├── executor/        Multi-statement execution, per-statement outcomes
//	├── subscription/    Live subscription tasks and their registry
//	├── stream/          Push-to-poll adapter with one item of lookahead
//	├── bridge/          The three operations over a shared driver
//	├── driver/          Driver contract, SQLite driver, test driver
//	├── abi/             Canonical ABI layouts, guest memory, allocation
//	├── resource/        Handle table for live-stream resources
//	├── host/            wazero host module and guest runner
//	├── types/           Record id and datetime payload contracts
//	├── config/          Connection configuration and hot reload
//	├── errors/          Structured error types
//	└── cmd/livebridge/  CLI: query, watch, serve
//
// # Quick Start
//
//	db, err := sqlite.Open("file:app.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	b := bridge.New(db)
//	defer b.Shutdown(ctx)
//
//	outcomes, err := b.Query(ctx, "SELECT * FROM person WHERE id = $id", []params.Param{
//	    {Name: "id", Data: cborBytes},
//	})
//
// To host a guest instead:
//
//	h := host.New(b)
//	r, err := host.NewRunner(ctx, h)
//	...
//	err = r.Run(ctx, wasm, "run")
//
// # Thread Safety
//
// Bridge is safe for concurrent use. Queries and live query submissions share
// the driver under a read lock; each subscription runs in its own goroutine
// and is torn down by Cancel, by the consumer dropping its stream, by its feed
// ending, or by Shutdown.
package livebridge
