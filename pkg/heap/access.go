package heap

import (
	"encoding/binary"
	"math"
	"sync/atomic"
	"unsafe"

	"github.com/shunsuke-abe/govm/pkg/descriptor"
)

// Typed field/element access, widening narrow primitives on read and
// narrowing on write per spec.md section 4.3. Every access goes through a
// freshly Get()'d Value's Data slice; nothing outside this file assumes
// the slice's backing array stays put across a GC cycle — callers must
// re-Get() after any safepoint, never cache a Data slice across one.

// ReadInt reads a bool/byte/char/short/int field as a widened int32.
func ReadInt(data []byte, offset int, kind descriptor.Kind) int32 {
	switch kind {
	case descriptor.Boolean, descriptor.Byte:
		return int32(int8(data[offset]))
	case descriptor.Char:
		return int32(binary.BigEndian.Uint16(data[offset : offset+2]))
	case descriptor.Short:
		return int32(int16(binary.BigEndian.Uint16(data[offset : offset+2])))
	default: // Int
		return int32(binary.BigEndian.Uint32(data[offset : offset+4]))
	}
}

// WriteInt narrows and writes an int32 value into a bool/byte/char/short/int field.
func WriteInt(data []byte, offset int, kind descriptor.Kind, v int32) {
	switch kind {
	case descriptor.Boolean, descriptor.Byte:
		data[offset] = byte(v)
	case descriptor.Char, descriptor.Short:
		binary.BigEndian.PutUint16(data[offset:offset+2], uint16(v))
	default: // Int
		binary.BigEndian.PutUint32(data[offset:offset+4], uint32(v))
	}
}

// ReadLong reads a long (8-byte) field.
func ReadLong(data []byte, offset int) int64 {
	return int64(binary.BigEndian.Uint64(data[offset : offset+8]))
}

// WriteLong writes a long (8-byte) field.
func WriteLong(data []byte, offset int, v int64) {
	binary.BigEndian.PutUint64(data[offset:offset+8], uint64(v))
}

// ReadFloat reads a 4-byte float field.
func ReadFloat(data []byte, offset int) float32 {
	bits := binary.BigEndian.Uint32(data[offset : offset+4])
	return math.Float32frombits(bits)
}

// WriteFloat writes a 4-byte float field.
func WriteFloat(data []byte, offset int, v float32) {
	binary.BigEndian.PutUint32(data[offset:offset+4], math.Float32bits(v))
}

// ReadDouble reads an 8-byte double field.
func ReadDouble(data []byte, offset int) float64 {
	bits := binary.BigEndian.Uint64(data[offset : offset+8])
	return math.Float64frombits(bits)
}

// WriteDouble writes an 8-byte double field.
func WriteDouble(data []byte, offset int, v float64) {
	binary.BigEndian.PutUint64(data[offset:offset+8], math.Float64bits(v))
}

// refPtr returns an atomically-accessible pointer to the 4-byte reference
// slot at data[offset:offset+4].
func refPtr(data []byte, offset int) *uint32 {
	return (*uint32)(unsafe.Pointer(&data[offset]))
}

// ReadRef reads a reference field using an atomic load: spec.md's open
// question on weak-memory semantics asks for "relaxed atomics for
// reference fields to avoid data-race UB" when Java threads race without
// synchronization, so reference fields always go through sync/atomic
// rather than a plain byte read. Host byte order, not wire byte order —
// this slot is never read by anything other than this pair of functions.
func ReadRef(data []byte, offset int) Reference {
	return Reference(atomic.LoadUint32(refPtr(data, offset)))
}

// WriteRef atomically writes a reference field.
func WriteRef(data []byte, offset int, ref Reference) {
	atomic.StoreUint32(refPtr(data, offset), uint32(ref))
}
