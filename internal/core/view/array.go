package view

import (
	"github.com/guerrero-dev/guerrero/internal/core/layout"
	"github.com/guerrero-dev/guerrero/internal/core/memory"
)

// Dynamic array control block field offsets.
const (
	arrLenOff  = 0
	arrCapOff  = 4
	arrElemOff = 8
	arrCBSize  = 12

	arrMinCapacity = 4
)

// Array is the accessor for a dynamic array slot. The slot holds the
// control block pointer ({length, capacity, elementsPtr}); a null slot is a
// valid empty array that has simply never allocated.
//
// Element offsets handed out by Get/Push are invalidated by any mutation
// that can grow the backing store; callers must not hold them across such
// calls.
type Array struct {
	a    *memory.Arena
	slot memory.Ptr
	elem *Ops
}

func NewArray(a *memory.Arena, slot memory.Ptr, elemInfo *layout.BinaryInfo) Array {
	return Array{a: a, slot: slot, elem: OpsFor(elemInfo)}
}

func (v Array) cb() memory.Ptr { return v.a.Ptr(v.slot) }

// Len returns the element count; 0 when the array was never allocated.
func (v Array) Len() uint32 {
	cb := v.cb()
	if cb == memory.NullPtr {
		return 0
	}
	return v.a.U32(cb + arrLenOff)
}

// Get returns the offset of element i, bounds-checked against Len.
func (v Array) Get(i uint32) (memory.Ptr, bool) {
	cb := v.cb()
	if cb == memory.NullPtr || i >= v.a.U32(cb+arrLenOff) {
		return memory.NullPtr, false
	}
	elems := v.a.Ptr(cb + arrElemOff)
	return elems + memory.Ptr(i*v.elem.Size()), true
}

// Push appends raw element values. Each value must be exactly the element
// size; growth doubles capacity (minimum 4) and is never in-place.
func (v Array) Push(values ...[]byte) error {
	for _, raw := range values {
		if uint32(len(raw)) != v.elem.Size() {
			return ErrValueSize
		}
	}
	if err := v.ensure(uint32(len(values))); err != nil {
		return err
	}
	cb := v.cb()
	length := v.a.U32(cb + arrLenOff)
	elems := v.a.Ptr(cb + arrElemOff)
	for _, raw := range values {
		copy(v.a.Bytes(elems+memory.Ptr(length*v.elem.Size()), v.elem.Size()), raw)
		length++
	}
	v.a.PutU32(cb+arrLenOff, length)
	return nil
}

// PushZero appends one zeroed element and returns its offset, for callers
// that initialize structured values in place.
func (v Array) PushZero() (memory.Ptr, error) {
	if err := v.ensure(1); err != nil {
		return memory.NullPtr, err
	}
	cb := v.cb()
	length := v.a.U32(cb + arrLenOff)
	elems := v.a.Ptr(cb + arrElemOff)
	off := elems + memory.Ptr(length*v.elem.Size())
	v.a.Zero(off, v.elem.Size())
	v.a.PutU32(cb+arrLenOff, length+1)
	return off, nil
}

// Pop removes and returns the offset of the last element. The backing
// allocation is not shrunk; the returned offset stays readable until the
// next mutation.
func (v Array) Pop() (memory.Ptr, bool) {
	cb := v.cb()
	if cb == memory.NullPtr {
		return memory.NullPtr, false
	}
	length := v.a.U32(cb + arrLenOff)
	if length == 0 {
		return memory.NullPtr, false
	}
	length--
	v.a.PutU32(cb+arrLenOff, length)
	elems := v.a.Ptr(cb + arrElemOff)
	return elems + memory.Ptr(length*v.elem.Size()), true
}

// IndexOf scans for the first element equal to the raw value, delegating
// equality to the element type's operation set. Returns -1 when absent.
func (v Array) IndexOf(raw []byte) int {
	length := v.Len()
	if length == 0 {
		return -1
	}
	cb := v.cb()
	elems := v.a.Ptr(cb + arrElemOff)
	for i := uint32(0); i < length; i++ {
		if v.elem.EqualsBytes(v.a, elems+memory.Ptr(i*v.elem.Size()), raw) {
			return int(i)
		}
	}
	return -1
}

func (v Array) Includes(raw []byte) bool { return v.IndexOf(raw) >= 0 }

// Clear deep-frees every element but keeps the backing store for reuse.
func (v Array) Clear() {
	cb := v.cb()
	if cb == memory.NullPtr {
		return
	}
	v.freeElements(cb)
	v.a.PutU32(cb+arrLenOff, 0)
}

// Free deep-frees every element, the backing store and the control block,
// and nulls the slot. The slot is reusable as a fresh empty array.
func (v Array) Free() {
	cb := v.cb()
	if cb == memory.NullPtr {
		return
	}
	v.freeElements(cb)
	if elems := v.a.Ptr(cb + arrElemOff); elems != memory.NullPtr {
		v.a.Free(elems)
	}
	v.a.Free(cb)
	v.a.PutPtr(v.slot, memory.NullPtr)
}

// CopyFrom clears the array and deep-copies every element from src.
func (v Array) CopyFrom(src Array) error {
	v.Clear()
	n := src.Len()
	for i := uint32(0); i < n; i++ {
		dstOff, err := v.PushZero()
		if err != nil {
			return err
		}
		// Resolve the source offset after the push: growth of v never
		// moves src's storage, but offsets are cheap to recompute.
		srcOff, _ := src.Get(i)
		if err := v.elem.CopyInto(v.a, dstOff, srcOff); err != nil {
			return err
		}
	}
	return nil
}

func (v Array) freeElements(cb memory.Ptr) {
	if !v.elem.Dynamic() {
		return
	}
	length := v.a.U32(cb + arrLenOff)
	elems := v.a.Ptr(cb + arrElemOff)
	for i := uint32(0); i < length; i++ {
		v.elem.Free(v.a, elems+memory.Ptr(i*v.elem.Size()))
	}
}

// ensure makes room for extra more elements, allocating or growing the
// backing store. Growth copies into a fresh region and frees the old one.
func (v Array) ensure(extra uint32) error {
	cb := v.cb()
	if cb == memory.NullPtr {
		cb = v.a.Allocate(arrCBSize, "arr.cb", v.slot)
		if cb == memory.NullPtr {
			return ErrOutOfMemory
		}
		v.a.Zero(cb, arrCBSize)
		v.a.PutPtr(v.slot, cb)
	}
	length := v.a.U32(cb + arrLenOff)
	capacity := v.a.U32(cb + arrCapOff)
	if length+extra <= capacity {
		return nil
	}

	newCap := capacity * 2
	if newCap < arrMinCapacity {
		newCap = arrMinCapacity
	}
	for newCap < length+extra {
		newCap *= 2
	}
	fresh := v.a.Allocate(newCap*v.elem.Size(), "arr.elems", cb)
	if fresh == memory.NullPtr {
		return ErrOutOfMemory
	}
	old := v.a.Ptr(cb + arrElemOff)
	if old != memory.NullPtr {
		v.a.Copy(fresh, old, length*v.elem.Size())
		v.a.Free(old)
	}
	v.a.PutPtr(cb+arrElemOff, fresh)
	v.a.PutU32(cb+arrCapOff, newCap)
	return nil
}
