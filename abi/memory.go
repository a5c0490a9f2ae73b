package abi

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"

	"github.com/seamlezz/livebridge"
	"github.com/seamlezz/livebridge/errors"
)

// ReallocExport is the guest export used to allocate result memory.
const ReallocExport = "cabi_realloc"

// Memory wraps wazero memory to implement livebridge.Memory.
type Memory struct {
	mem api.Memory
}

// NewMemory wraps mem.
func NewMemory(mem api.Memory) *Memory {
	return &Memory{mem: mem}
}

func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseHost, offset, length)
	}
	return data, nil
}

func (m *Memory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseHost, offset, uint32(len(data)))
	}
	return nil
}

func (m *Memory) ReadU8(offset uint32) (uint8, error) {
	val, ok := m.mem.ReadByte(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseHost, offset, 1)
	}
	return val, nil
}

func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	val, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseHost, offset, 4)
	}
	return val, nil
}

func (m *Memory) ReadU64(offset uint32) (uint64, error) {
	val, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseHost, offset, 8)
	}
	return val, nil
}

func (m *Memory) WriteU8(offset uint32, value uint8) error {
	if !m.mem.WriteByte(offset, value) {
		return errors.OutOfBounds(errors.PhaseHost, offset, 1)
	}
	return nil
}

func (m *Memory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseHost, offset, 4)
	}
	return nil
}

func (m *Memory) WriteU64(offset uint32, value uint64) error {
	if !m.mem.WriteUint64Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseHost, offset, 8)
	}
	return nil
}

func (m *Memory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

var (
	_ livebridge.Memory      = (*Memory)(nil)
	_ livebridge.MemorySizer = (*Memory)(nil)
)

// Allocator allocates guest memory through the guest's cabi_realloc.
type Allocator struct {
	ctx      context.Context
	fn       api.Function
	stackBuf [4]uint64
	mu       sync.Mutex
}

// NewAllocator finds cabi_realloc in mod. Calls run with ctx.
func NewAllocator(ctx context.Context, mod api.Module) (*Allocator, error) {
	fn := mod.ExportedFunction(ReallocExport)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseHost, "export", ReallocExport)
	}
	return &Allocator{ctx: ctx, fn: fn}, nil
}

// Alloc calls cabi_realloc(0, 0, align, size).
func (a *Allocator) Alloc(size, align uint32) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stackBuf[0] = 0
	a.stackBuf[1] = 0
	a.stackBuf[2] = uint64(align)
	a.stackBuf[3] = uint64(size)
	if err := a.fn.CallWithStack(a.ctx, a.stackBuf[:]); err != nil {
		return 0, errors.AllocationFailed(errors.PhaseHost, size, align, err)
	}
	return uint32(a.stackBuf[0]), nil
}

var _ livebridge.Allocator = (*Allocator)(nil)
