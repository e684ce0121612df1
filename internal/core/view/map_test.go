package view

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guerrero-dev/guerrero/internal/core/layout"
	"github.com/guerrero-dev/guerrero/internal/core/memory"
)

func TestMapSetGetDelete(t *testing.T) {
	a := testArena()
	r := layout.NewRegistry(nil)
	m := NewMap(a, testSlot(t, a), resolve(t, r, "u32"), resolve(t, r, "u64"))

	assert.Zero(t, m.Len())
	_, ok := m.Get(BytesKey(U32Bytes(1)))
	assert.False(t, ok)

	require.NoError(t, m.Set(BytesKey(U32Bytes(1)), U64Bytes(100)))
	require.NoError(t, m.Set(BytesKey(U32Bytes(2)), U64Bytes(200)))
	assert.Equal(t, uint32(2), m.Len())

	off, ok := m.Get(BytesKey(U32Bytes(2)))
	require.True(t, ok)
	assert.Equal(t, uint64(200), a.U64(off))

	// Overwrite replaces in place.
	require.NoError(t, m.Set(BytesKey(U32Bytes(2)), U64Bytes(222)))
	assert.Equal(t, uint32(2), m.Len())
	off, _ = m.Get(BytesKey(U32Bytes(2)))
	assert.Equal(t, uint64(222), a.U64(off))

	assert.True(t, m.Delete(BytesKey(U32Bytes(1))))
	assert.False(t, m.Delete(BytesKey(U32Bytes(1))))
	assert.Equal(t, uint32(1), m.Len())
	assert.False(t, m.Has(BytesKey(U32Bytes(1))))
	assert.True(t, m.Has(BytesKey(U32Bytes(2))))
}

func TestMapGrowth(t *testing.T) {
	a := testArena()
	r := layout.NewRegistry(nil)
	m := NewMap(a, testSlot(t, a), resolve(t, r, "u32"), resolve(t, r, "u32"))

	// Enough entries to force the bucket array through several
	// doublings from its minimum size.
	const n = 200
	for i := uint32(0); i < n; i++ {
		require.NoError(t, m.Set(BytesKey(U32Bytes(i)), U32Bytes(i*3)))
	}
	require.Equal(t, uint32(n), m.Len())
	for i := uint32(0); i < n; i++ {
		off, ok := m.Get(BytesKey(U32Bytes(i)))
		require.True(t, ok, i)
		assert.Equal(t, i*3, a.U32(off))
	}
}

func TestMapStringKeys(t *testing.T) {
	a := testArena()
	r := layout.NewRegistry(nil)
	m := NewMap(a, testSlot(t, a), resolve(t, r, "str"), resolve(t, r, "u32"))

	require.NoError(t, m.Set(StringKey("health"), U32Bytes(100)))
	require.NoError(t, m.Set(StringKey("mana"), U32Bytes(50)))

	off, ok := m.Get(StringKey("health"))
	require.True(t, ok)
	assert.Equal(t, uint32(100), a.U32(off))
	assert.False(t, m.Has(StringKey("stamina")))

	assert.True(t, m.Delete(StringKey("mana")))
	assert.Equal(t, uint32(1), m.Len())
}

func TestMapDynamicValuesFreed(t *testing.T) {
	a := testArena()
	r := layout.NewRegistry(nil)
	slot := testSlot(t, a)
	baseline := a.Stats().LiveBytes

	m := NewMap(a, slot, resolve(t, r, "u32"), resolve(t, r, "str"))
	for i := uint32(0); i < 20; i++ {
		off, err := m.Emplace(BytesKey(U32Bytes(i)))
		require.NoError(t, err)
		require.NoError(t, NewString(a, off).Set(fmt.Sprintf("value-%d", i)))
	}

	// Deleting an entry releases its value payload too.
	require.True(t, m.Delete(BytesKey(U32Bytes(0))))

	m.Free()
	assert.Equal(t, baseline, a.Stats().LiveBytes)
	assert.Equal(t, memory.NullPtr, a.Ptr(slot))
}

func TestMapEach(t *testing.T) {
	a := testArena()
	r := layout.NewRegistry(nil)
	m := NewMap(a, testSlot(t, a), resolve(t, r, "u32"), resolve(t, r, "u32"))

	want := map[uint32]uint32{1: 10, 2: 20, 3: 30}
	for k, v := range want {
		require.NoError(t, m.Set(BytesKey(U32Bytes(k)), U32Bytes(v)))
	}

	got := make(map[uint32]uint32)
	m.Each(func(keyOff, valOff memory.Ptr) bool {
		got[a.U32(keyOff)] = a.U32(valOff)
		return true
	})
	assert.Equal(t, want, got)

	// Early exit stops the walk.
	n := 0
	m.Each(func(_, _ memory.Ptr) bool {
		n++
		return false
	})
	assert.Equal(t, 1, n)
}

func TestMapCopyFrom(t *testing.T) {
	a := testArena()
	r := layout.NewRegistry(nil)
	key := resolve(t, r, "u32")
	val := resolve(t, r, "str")

	src := NewMap(a, testSlot(t, a), key, val)
	off, err := src.Emplace(BytesKey(U32Bytes(7)))
	require.NoError(t, err)
	require.NoError(t, NewString(a, off).Set("seven"))

	dst := NewMap(a, testSlot(t, a), key, val)
	require.NoError(t, dst.CopyFrom(src))
	require.Equal(t, uint32(1), dst.Len())

	off, ok := dst.Get(BytesKey(U32Bytes(7)))
	require.True(t, ok)
	assert.Equal(t, "seven", NewString(a, off).Get())
}

func BenchmarkMapSetGet(b *testing.B) {
	a := memory.NewArena(1<<22, nil)
	r := layout.NewRegistry(nil)
	m := NewMap(a, testSlot(b, a), resolve(b, r, "u32"), resolve(b, r, "u64"))
	for i := uint32(0); i < 1024; i++ {
		if err := m.Set(BytesKey(U32Bytes(i)), U64Bytes(uint64(i))); err != nil {
			b.Fatal(err)
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := BytesKey(U32Bytes(uint32(i) & 1023))
		if err := m.Set(k, U64Bytes(uint64(i))); err != nil {
			b.Fatal(err)
		}
		if _, ok := m.Get(k); !ok {
			b.Fatal("missing key")
		}
	}
}
