package view

import (
	"github.com/guerrero-dev/guerrero/internal/core/layout"
	"github.com/guerrero-dev/guerrero/internal/core/memory"
)

// Field returns the offset of a named property inside a struct value at
// base. Bit-packed properties return their container offset; use Bits for
// the field value itself.
func Field(base memory.Ptr, lay *layout.SchemaLayout, key string) (memory.Ptr, *layout.PropertyLayout, bool) {
	p, ok := lay.Property(key)
	if !ok {
		return memory.NullPtr, nil, false
	}
	return base + memory.Ptr(p.Offset), p, true
}

// FixedArray is the accessor for a fixed-size inline array.
type FixedArray struct {
	a    *memory.Arena
	off  memory.Ptr
	info *layout.BinaryInfo
}

func NewFixedArray(a *memory.Arena, off memory.Ptr, info *layout.BinaryInfo) FixedArray {
	return FixedArray{a: a, off: off, info: info}
}

func (v FixedArray) Len() uint32 { return v.info.Count }

func (v FixedArray) At(i uint32) (memory.Ptr, bool) {
	if i >= v.info.Count {
		return memory.NullPtr, false
	}
	return v.off + memory.Ptr(i*v.info.Element.Size), true
}

// Tuple is the accessor for an inline tuple value.
type Tuple struct {
	a    *memory.Arena
	off  memory.Ptr
	info *layout.BinaryInfo
}

func NewTuple(a *memory.Arena, off memory.Ptr, info *layout.BinaryInfo) Tuple {
	return Tuple{a: a, off: off, info: info}
}

func (v Tuple) Len() int { return len(v.info.Elements) }

func (v Tuple) At(i int) (memory.Ptr, *layout.BinaryInfo, bool) {
	if i < 0 || i >= len(v.info.Elements) {
		return memory.NullPtr, nil, false
	}
	return v.off + memory.Ptr(v.info.ElementOffsets[i]), v.info.Elements[i], true
}

// Bits reads a bit-packed field out of its shared u32 container.
func Bits(a *memory.Arena, base memory.Ptr, p *layout.PropertyLayout) uint32 {
	word := a.U32(base + memory.Ptr(p.Offset))
	mask := uint32(1)<<p.BitWidth - 1
	return (word >> p.BitOffset) & mask
}

// PutBits writes a bit-packed field into its shared u32 container. Value
// bits beyond the declared width are masked off.
func PutBits(a *memory.Arena, base memory.Ptr, p *layout.PropertyLayout, v uint32) {
	at := base + memory.Ptr(p.Offset)
	mask := (uint32(1)<<p.BitWidth - 1) << p.BitOffset
	word := a.U32(at)&^mask | (v<<p.BitOffset)&mask
	a.PutU32(at, word)
}

// Union tag encoding: nullable unions reserve tag 0 for undefined and
// number variants from 1; non-nullable unions number variants from 0.

// Union is the accessor for a tagged union value.
//
// The degenerate tagged-pointer representation (all variants pointer-sized
// dynamic) stores a {tag u8, pad, variant data} block behind a single
// pointer slot instead of an inline tag + data region.
type Union struct {
	a    *memory.Arena
	off  memory.Ptr
	info *layout.BinaryInfo
}

func NewUnion(a *memory.Arena, off memory.Ptr, info *layout.BinaryInfo) Union {
	return Union{a: a, off: off, info: info}
}

// tpDataOff places the variant data after the tag byte in a
// tagged-pointer block, at the arena's own alignment.
const tpDataOff = 8

// Variant returns the active variant index, or -1 when the union is unset
// (nullable tag 0, or a null tagged pointer).
func (v Union) Variant() int {
	if v.info.TaggedPointer {
		block := v.a.Ptr(v.off)
		if block == memory.NullPtr {
			return -1
		}
		return int(v.a.U8(block))
	}
	tag := int(v.a.U8(v.off + memory.Ptr(v.info.TagOffset)))
	if v.info.Nullable {
		return tag - 1
	}
	return tag
}

// Data returns the offset of the active variant's storage, false when
// unset.
func (v Union) Data() (memory.Ptr, bool) {
	if v.info.TaggedPointer {
		block := v.a.Ptr(v.off)
		if block == memory.NullPtr {
			return memory.NullPtr, false
		}
		return block + tpDataOff, true
	}
	if v.Variant() < 0 {
		return memory.NullPtr, false
	}
	return v.off + memory.Ptr(v.info.DataOffset), true
}

// Select activates variant i, freeing the previous variant's dynamic
// payload, and returns the zeroed data offset for in-place
// initialization.
func (v Union) Select(i int) (memory.Ptr, error) {
	if i < 0 || i >= len(v.info.Variants) {
		return memory.NullPtr, ErrValueSize
	}
	v.freeActive()
	variant := v.info.Variants[i]

	if v.info.TaggedPointer {
		block := v.a.Ptr(v.off)
		if block == memory.NullPtr {
			block = v.a.Allocate(tpDataOff+v.maxVariantSize(), "union", v.off)
			if block == memory.NullPtr {
				return memory.NullPtr, ErrOutOfMemory
			}
			v.a.PutPtr(v.off, block)
		}
		v.a.PutU8(block, uint8(i))
		v.a.Zero(block+tpDataOff, variant.Size)
		return block + tpDataOff, nil
	}

	tag := uint8(i)
	if v.info.Nullable {
		tag++
	}
	v.a.PutU8(v.off+memory.Ptr(v.info.TagOffset), tag)
	data := v.off + memory.Ptr(v.info.DataOffset)
	v.a.Zero(data, variant.Size)
	return data, nil
}

// SetUndefined clears a nullable union back to the undefined variant.
func (v Union) SetUndefined() {
	v.freeActive()
	if v.info.TaggedPointer {
		if block := v.a.Ptr(v.off); block != memory.NullPtr {
			v.a.Free(block)
			v.a.PutPtr(v.off, memory.NullPtr)
		}
		return
	}
	v.a.PutU8(v.off+memory.Ptr(v.info.TagOffset), 0)
}

// Free releases the active variant's payload and, for tagged pointers, the
// block itself.
func (v Union) Free() {
	v.SetUndefined()
}

// CopyFrom deep-copies another union value of the same type.
func (v Union) CopyFrom(src Union) error {
	i := src.Variant()
	if i < 0 {
		v.SetUndefined()
		return nil
	}
	dst, err := v.Select(i)
	if err != nil {
		return err
	}
	srcData, _ := src.Data()
	return OpsFor(v.info.Variants[i]).CopyInto(v.a, dst, srcData)
}

func (v Union) freeActive() {
	i := v.Variant()
	if i < 0 || i >= len(v.info.Variants) {
		return
	}
	variant := v.info.Variants[i]
	if !variant.Dynamic {
		return
	}
	data, ok := v.Data()
	if ok {
		OpsFor(variant).Free(v.a, data)
	}
}

func (v Union) maxVariantSize() uint32 {
	var max uint32
	for _, variant := range v.info.Variants {
		if variant.Size > max {
			max = variant.Size
		}
	}
	return max
}
