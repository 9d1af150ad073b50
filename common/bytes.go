package common

import (
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
)

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// Uses unsafe pointer operations to create a view into the original data.
// WARNING: The returned slice shares memory with the input.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	totalBytes := int(size) * len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), totalBytes)
}

// StructToBytes reinterprets a pointer to a value as a raw byte slice using unsafe.
// The returned slice has length equal to the value's size in memory.
//
// Parameters:
//   - v: pointer to the value to reinterpret
//
// Returns:
//   - []byte: byte slice view of the value's memory
func StructToBytes[T any](v *T) []byte {
	size := unsafe.Sizeof(*v)
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), int(size))
}

// BytesToStruct copies the leading bytes of b into a new value of type T.
// b must hold at least unsafe.Sizeof(T) bytes.
//
// Parameters:
//   - b: the source bytes
//
// Returns:
//   - T: the decoded value
func BytesToStruct[T any](b []byte) T {
	var v T
	copy(StructToBytes(&v), b)
	return v
}

// ElementStride returns the in-memory stride of T after validating that T has a fixed size.
// Types such as int, pointers, slices or maps cannot be laid out in GPU memory and cause a panic
// marked with ErrUsageViolation.
//
// Returns:
//   - int: unsafe.Sizeof(T)
func ElementStride[T any]() int {
	var zero T
	if binary.Size(zero) < 0 {
		panic(errors.Mark(errors.Newf("element type %T has no fixed size; use a sized type such as int32", zero), ErrUsageViolation))
	}
	return int(unsafe.Sizeof(zero))
}

// ReadElement decodes the element at index i of a packed array of T stored in b.
//
// Parameters:
//   - b: packed element bytes
//   - i: element index
//
// Returns:
//   - T: the element
func ReadElement[T any](b []byte, i int) T {
	var zero T
	stride := int(unsafe.Sizeof(zero))
	return BytesToStruct[T](b[i*stride : (i+1)*stride])
}

// WriteElement encodes v at index i of a packed array of T stored in b.
//
// Parameters:
//   - b: packed element bytes
//   - i: element index
//   - v: the value to store
func WriteElement[T any](b []byte, i int, v T) {
	stride := int(unsafe.Sizeof(v))
	copy(b[i*stride:(i+1)*stride], StructToBytes(&v))
}
