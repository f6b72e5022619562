package common

import (
	"unsafe"

	"github.com/chewxy/math32"
)

// SliceToBytes reinterprets a slice of plain values as its raw bytes for a buffer upload.
// The result aliases data. T must not contain pointers.
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	n := int(unsafe.Sizeof(data[0])) * len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(data))), n)
}

// Halton returns element index of the Halton low-discrepancy sequence in the given base.
// Index 0 maps to 0, so callers that need a non-zero sample start at index 1.
//
// Parameters:
//   - index: position in the sequence
//   - base: prime radix of the sequence (2 and 3 for 2D jitter)
//
// Returns:
//   - float32: a value in [0, 1)
func Halton(index, base uint32) float32 {
	var result float32
	f := float32(1)
	for i := index; i > 0; i /= base {
		f /= float32(base)
		result += f * float32(i%base)
	}
	return result
}

// Float32Bits reinterprets a float32 as its IEEE-754 bit pattern.
func Float32Bits(f float32) uint32 {
	return math32.Float32bits(f)
}

// Float32FromBits reinterprets an IEEE-754 bit pattern as a float32.
func Float32FromBits(b uint32) float32 {
	return math32.Float32frombits(b)
}
