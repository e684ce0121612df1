package view

import (
	"github.com/guerrero-dev/guerrero/internal/core/memory"
)

// String is the accessor for a str slot: the slot holds a pointer to a
// {length u32, bytes} block, NullPtr meaning the empty/unset string.
type String struct {
	a    *memory.Arena
	slot memory.Ptr
}

func NewString(a *memory.Arena, slot memory.Ptr) String {
	return String{a: a, slot: slot}
}

// Len returns the byte length, 0 when the slot is null.
func (s String) Len() uint32 {
	ptr := s.a.Ptr(s.slot)
	if ptr == memory.NullPtr {
		return 0
	}
	return s.a.U32(ptr)
}

// Get returns the string value, "" when unset.
func (s String) Get() string {
	ptr := s.a.Ptr(s.slot)
	if ptr == memory.NullPtr {
		return ""
	}
	return string(s.a.Bytes(ptr+4, s.a.U32(ptr)))
}

// Set replaces the value, releasing any previous allocation first.
func (s String) Set(v string) error {
	s.Free()
	if v == "" {
		return nil
	}
	ptr := s.a.Allocate(4+uint32(len(v)), "str", s.slot)
	if ptr == memory.NullPtr {
		return ErrOutOfMemory
	}
	s.a.PutU32(ptr, uint32(len(v)))
	copy(s.a.Bytes(ptr+4, uint32(len(v))), v)
	s.a.PutPtr(s.slot, ptr)
	return nil
}

// Free releases the backing block and nulls the slot.
func (s String) Free() {
	ptr := s.a.Ptr(s.slot)
	if ptr != memory.NullPtr {
		s.a.Free(ptr)
		s.a.PutPtr(s.slot, memory.NullPtr)
	}
}
