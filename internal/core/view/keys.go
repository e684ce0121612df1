package view

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/guerrero-dev/guerrero/internal/core/layout"
	"github.com/guerrero-dev/guerrero/internal/core/memory"
)

// Key abstracts a lookup/insert key for the hash containers. The concrete
// implementations mirror the container's key storage specializations:
// inline raw bytes (primitives and fixed struct views) and indirect
// strings. Hash values must agree with Ops.Hash over the stored key region
// so rehashing relocates nodes consistently.
type Key interface {
	Hash() uint64
	Size() uint32
	// Matches compares against the key region stored inside a node.
	Matches(a *memory.Arena, off memory.Ptr) bool
	// Write stores the key into a fresh node's key region, allocating for
	// indirect keys.
	Write(a *memory.Arena, off memory.Ptr) error
}

// BytesKey is an inline key: the raw little-endian bytes of a primitive or
// the fixed region of a struct value.
type BytesKey []byte

func (k BytesKey) Hash() uint64 { return xxhash.Sum64(k) }
func (k BytesKey) Size() uint32 { return uint32(len(k)) }

func (k BytesKey) Matches(a *memory.Arena, off memory.Ptr) bool {
	return bytes.Equal(a.Bytes(off, uint32(len(k))), k)
}

func (k BytesKey) Write(a *memory.Arena, off memory.Ptr) error {
	copy(a.Bytes(off, uint32(len(k))), k)
	return nil
}

// StringKey is an indirect key: the node's key region is a pointer slot to
// a {length, bytes} block owned by the node.
type StringKey string

func (k StringKey) Hash() uint64 { return xxhash.Sum64String(string(k)) }
func (k StringKey) Size() uint32 { return layout.PtrSize }

func (k StringKey) Matches(a *memory.Arena, off memory.Ptr) bool {
	return string(stringBytes(a, off)) == string(k)
}

func (k StringKey) Write(a *memory.Arena, off memory.Ptr) error {
	a.PutPtr(off, memory.NullPtr)
	return NewString(a, off).Set(string(k))
}

// KeyFor builds the Key matching a type's storage specialization from raw
// encoded bytes (or the Go string for str-keyed containers).
func KeyFor(info *layout.BinaryInfo, raw []byte) Key {
	if info.Kind == layout.KindString {
		return StringKey(raw)
	}
	return BytesKey(raw)
}

// Raw little-endian encoders for passing primitive values to the
// byte-oriented container APIs.

func U8Bytes(v uint8) []byte { return []byte{v} }

func BoolBytes(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

func U16Bytes(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func U32Bytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func U64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func I32Bytes(v int32) []byte { return U32Bytes(uint32(v)) }
func I64Bytes(v int64) []byte { return U64Bytes(uint64(v)) }

func F32Bytes(v float32) []byte { return U32Bytes(math.Float32bits(v)) }
func F64Bytes(v float64) []byte { return U64Bytes(math.Float64bits(v)) }
