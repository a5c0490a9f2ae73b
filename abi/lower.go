package abi

import (
	"github.com/seamlezz/livebridge"
)

// Writer lowers values into guest memory, allocating through the guest.
type Writer struct {
	Mem   livebridge.Memory
	Alloc livebridge.Allocator
}

// Bytes copies data into a fresh allocation. Empty data still allocates,
// so the guest always receives a pointer it owns.
func (w *Writer) Bytes(data []byte) (ptr, length uint32, err error) {
	ptr, err = w.Alloc.Alloc(uint32(len(data)), 1)
	if err != nil {
		return 0, 0, err
	}
	if len(data) > 0 {
		if err := w.Mem.Write(ptr, data); err != nil {
			return 0, 0, err
		}
	}
	return ptr, uint32(len(data)), nil
}

// String copies s into a fresh allocation.
func (w *Writer) String(s string) (ptr, length uint32, err error) {
	return w.Bytes([]byte(s))
}

// List writes a (ptr, len) header at addr.
func (w *Writer) List(addr, ptr, length uint32) error {
	if err := w.Mem.WriteU32(addr, ptr); err != nil {
		return err
	}
	return w.Mem.WriteU32(addr+4, length)
}

// BytesAt lowers data and writes its header at addr.
func (w *Writer) BytesAt(addr uint32, data []byte) error {
	ptr, n, err := w.Bytes(data)
	if err != nil {
		return err
	}
	return w.List(addr, ptr, n)
}

// StringAt lowers s and writes its header at addr.
func (w *Writer) StringAt(addr uint32, s string) error {
	return w.BytesAt(addr, []byte(s))
}

// Array allocates n elements of the given layout and returns the base.
func (w *Writer) Array(n uint32, elem Info) (uint32, error) {
	size, err := ListBounds(0, n, elem.Size)
	if err != nil {
		return 0, err
	}
	return w.Alloc.Alloc(size, elem.Align)
}
