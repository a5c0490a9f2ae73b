package abi

import (
	"math"
	"unicode/utf8"

	"github.com/seamlezz/livebridge"
	"github.com/seamlezz/livebridge/errors"
)

// ReadBytes copies length bytes at ptr out of guest memory.
func ReadBytes(mem livebridge.Memory, ptr, length uint32) ([]byte, error) {
	if length == 0 {
		return []byte{}, nil
	}
	data, err := mem.Read(ptr, length)
	if err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, data)
	return out, nil
}

// ReadString lifts a UTF-8 string. path names the value in errors.
func ReadString(mem livebridge.Memory, ptr, length uint32, path ...string) (string, error) {
	if length == 0 {
		return "", nil
	}
	data, err := mem.Read(ptr, length)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", errors.InvalidUTF8(errors.PhaseHost, path, data)
	}
	return string(data), nil
}

// ReadList reads the (ptr, len) header of a list at addr.
func ReadList(mem livebridge.Memory, addr uint32) (ptr, length uint32, err error) {
	if ptr, err = mem.ReadU32(addr); err != nil {
		return 0, 0, err
	}
	if length, err = mem.ReadU32(addr + 4); err != nil {
		return 0, 0, err
	}
	return ptr, length, nil
}

// ListBounds checks that n elements of size bytes at ptr fit in 32-bit
// memory and returns their total size.
func ListBounds(ptr, n, size uint32) (uint32, error) {
	total := uint64(n) * uint64(size)
	if total > math.MaxUint32 || uint64(ptr)+total > math.MaxUint32+1 {
		return 0, errors.OutOfBounds(errors.PhaseHost, ptr, uint32(min(total, math.MaxUint32)))
	}
	return uint32(total), nil
}
