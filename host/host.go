package host

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/seamlezz/livebridge"
	"github.com/seamlezz/livebridge/abi"
	"github.com/seamlezz/livebridge/bridge"
	"github.com/seamlezz/livebridge/errors"
	"github.com/seamlezz/livebridge/resource"
	"github.com/seamlezz/livebridge/stream"
)

// Export names of the call interface.
const (
	FuncQuery       = "query"
	FuncSubscribe   = "subscribe"
	FuncCancel      = "cancel"
	FuncPollNext    = "[method]live-stream.poll-next"
	FuncNext        = "[method]live-stream.next"
	FuncReady       = "[method]live-stream.ready"
	FuncStreamClose = "[method]live-stream.cancel"
	FuncStreamDrop  = "[resource-drop]live-stream"
)

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

// liveStream is the host side of one live-stream resource.
type liveStream struct {
	adapter *stream.Adapter
	id      uint64
}

func (s *liveStream) Drop() { s.adapter.Cancel() }

// call is the guest memory a host function works on.
type call struct {
	mem   livebridge.Memory
	alloc livebridge.Allocator
}

func (c *call) writer() *abi.Writer {
	return &abi.Writer{Mem: c.mem, Alloc: c.alloc}
}

type handler func(ctx context.Context, c *call, stack []uint64) error

// funcDef defines one host function and its core signature.
type funcDef struct {
	handler     handler
	name        string
	paramTypes  []api.ValueType
	resultTypes []api.ValueType
	allocates   bool
}

// Host exposes a bridge to guests as the call interface.
type Host struct {
	bridge  *bridge.Bridge
	streams *resource.Table[*liveStream]
	layouts abi.Layouts
}

// New creates a host over b. The host does not own b.
func New(b *bridge.Bridge) *Host {
	h := &Host{
		bridge:  b,
		streams: resource.NewTable[*liveStream](),
		layouts: abi.CallLayouts(),
	}
	h.streams.Observe(func(t resource.EventType, handle resource.Handle, s *liveStream) {
		if t == resource.EventDropped {
			Logger().Debug("live stream dropped",
				zap.Uint32("handle", uint32(handle)),
				zap.Uint64("subscription_id", s.id))
		}
	})
	return h
}

// Namespace returns the module name the host exports under by default.
func (h *Host) Namespace() string {
	return Namespace
}

// Streams returns the number of live-stream handles held by guests.
func (h *Host) Streams() int {
	return h.streams.Len()
}

// Close drops every live-stream handle.
func (h *Host) Close() error {
	return h.streams.Close()
}

// Provides reports whether the host exports a function called name.
func (h *Host) Provides(name string) bool {
	for _, def := range h.funcs() {
		if def.name == name {
			return true
		}
	}
	return false
}

// Instantiate registers the host functions in r as module name. Guests
// pinned to another compatible version of the interface get their own
// module name over the same host state.
func (h *Host) Instantiate(ctx context.Context, r wazero.Runtime, name string) (api.Module, error) {
	if name == "" {
		name = Namespace
	}
	builder := r.NewHostModuleBuilder(name)
	for _, def := range h.funcs() {
		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(h.wrap(def), def.paramTypes, def.resultTypes).
			Export(def.name)
	}
	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, fmt.Errorf("instantiate %s: %w", name, err)
	}
	Logger().Debug("host module instantiated", zap.String("module", name))
	return mod, nil
}

func (h *Host) funcs() []funcDef {
	return []funcDef{
		{name: FuncQuery, handler: h.query, paramTypes: []api.ValueType{i32, i32, i32, i32, i32}, allocates: true},
		{name: FuncSubscribe, handler: h.subscribe, paramTypes: []api.ValueType{i32, i32, i32, i32, i32}, allocates: true},
		{name: FuncCancel, handler: h.cancel, paramTypes: []api.ValueType{i64, i32}, allocates: true},
		{name: FuncPollNext, handler: h.pollNext, paramTypes: []api.ValueType{i32, i32}, allocates: true},
		{name: FuncNext, handler: h.next, paramTypes: []api.ValueType{i32, i32}, allocates: true},
		{name: FuncReady, handler: h.ready, paramTypes: []api.ValueType{i32}, resultTypes: []api.ValueType{i32}},
		{name: FuncStreamClose, handler: h.cancelStream, paramTypes: []api.ValueType{i32}},
		{name: FuncStreamDrop, handler: h.drop, paramTypes: []api.ValueType{i32}},
	}
}

// wrap adapts a handler to wazero. Handler errors are ABI violations and
// trap the guest.
func (h *Host) wrap(def funcDef) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		mem := mod.Memory()
		if mem == nil {
			h.trap(def.name, errors.NotFound(errors.PhaseHost, "export", "memory"))
		}
		c := &call{mem: abi.NewMemory(mem)}
		if def.allocates {
			alloc, err := abi.NewAllocator(ctx, mod)
			if err != nil {
				h.trap(def.name, err)
			}
			c.alloc = alloc
		}
		if err := def.handler(ctx, c, stack); err != nil {
			h.trap(def.name, err)
		}
	}
}

func (h *Host) trap(name string, err error) {
	Logger().Error("host call trapped", zap.String("function", name), zap.Error(err))
	panic(err)
}
