package view

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/guerrero-dev/guerrero/internal/core/layout"
	"github.com/guerrero-dev/guerrero/internal/core/memory"
)

// Shared fixtures: one arena and registry per test, plus a zeroed
// pointer slot standing in for a struct field.

func testArena() *memory.Arena {
	return memory.NewArena(1<<20, nil)
}

func testSlot(t testing.TB, a *memory.Arena) memory.Ptr {
	t.Helper()
	slot := a.Allocate(layout.PtrSize, "test.slot", memory.NullPtr)
	require.NotEqual(t, memory.NullPtr, slot)
	a.Zero(slot, layout.PtrSize)
	return slot
}

func resolve(t testing.TB, r *layout.Registry, expr string) *layout.BinaryInfo {
	t.Helper()
	info, err := r.Resolve(expr)
	require.NoError(t, err)
	return info
}
