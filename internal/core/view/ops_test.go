package view

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guerrero-dev/guerrero/internal/core/layout"
	"github.com/guerrero-dev/guerrero/internal/core/memory"
)

func TestStringSetGetFree(t *testing.T) {
	a := testArena()
	slot := testSlot(t, a)
	baseline := a.Stats().LiveBytes

	s := NewString(a, slot)
	assert.Equal(t, "", s.Get())
	assert.Zero(t, s.Len())

	require.NoError(t, s.Set("hello"))
	assert.Equal(t, "hello", s.Get())
	assert.Equal(t, uint32(5), s.Len())

	// Reassignment frees the old payload first.
	require.NoError(t, s.Set("a considerably longer replacement value"))
	assert.Equal(t, "a considerably longer replacement value", s.Get())

	// The empty string is stored as the null pointer, not an empty
	// block.
	require.NoError(t, s.Set(""))
	assert.Equal(t, memory.NullPtr, a.Ptr(slot))
	assert.Equal(t, baseline, a.Stats().LiveBytes)

	require.NoError(t, s.Set("again"))
	s.Free()
	assert.Equal(t, baseline, a.Stats().LiveBytes)
}

func structOps(t *testing.T, r *layout.Registry, name string, fields []layout.FieldMeta) (*Ops, *layout.SchemaLayout) {
	t.Helper()
	require.NoError(t, r.RegisterStruct(name, fields))
	lay, err := r.Layout(name)
	require.NoError(t, err)
	info := resolve(t, r, name)
	return OpsFor(info), lay
}

func TestOpsCopyIntoDeep(t *testing.T) {
	a := testArena()
	r := layout.NewRegistry(nil)
	ops, lay := structOps(t, r, "item", []layout.FieldMeta{
		{Key: "id", Type: "u32"},
		{Key: "name", Type: "str"},
		{Key: "tags", Type: "set<u32>"},
	})

	src := a.Allocate(lay.TotalSize, "test", memory.NullPtr)
	dst := a.Allocate(lay.TotalSize, "test", memory.NullPtr)
	a.Zero(src, lay.TotalSize)
	a.Zero(dst, lay.TotalSize)

	id, _ := lay.Property("id")
	name, _ := lay.Property("name")
	tags, _ := lay.Property("tags")

	a.PutU32(src+memory.Ptr(id.Offset), 77)
	require.NoError(t, NewString(a, src+memory.Ptr(name.Offset)).Set("sword"))
	srcTags := NewSet(a, src+memory.Ptr(tags.Offset), tags.Binary.Element)
	_, err := srcTags.Add(BytesKey(U32Bytes(9)))
	require.NoError(t, err)

	require.NoError(t, ops.CopyInto(a, dst, src))

	assert.Equal(t, uint32(77), a.U32(dst+memory.Ptr(id.Offset)))
	assert.Equal(t, "sword", NewString(a, dst+memory.Ptr(name.Offset)).Get())
	dstTags := NewSet(a, dst+memory.Ptr(tags.Offset), tags.Binary.Element)
	assert.True(t, dstTags.Has(BytesKey(U32Bytes(9))))

	// The copy owns its own payloads.
	require.NoError(t, NewString(a, src+memory.Ptr(name.Offset)).Set("axe"))
	assert.Equal(t, "sword", NewString(a, dst+memory.Ptr(name.Offset)).Get())
}

func TestOpsEqualsAndHash(t *testing.T) {
	a := testArena()
	r := layout.NewRegistry(nil)
	ops, lay := structOps(t, r, "pair", []layout.FieldMeta{
		{Key: "k", Type: "u32"},
		{Key: "label", Type: "str"},
	})

	x := a.Allocate(lay.TotalSize, "test", memory.NullPtr)
	y := a.Allocate(lay.TotalSize, "test", memory.NullPtr)
	a.Zero(x, lay.TotalSize)
	a.Zero(y, lay.TotalSize)

	k, _ := lay.Property("k")
	label, _ := lay.Property("label")
	for _, off := range []memory.Ptr{x, y} {
		a.PutU32(off+memory.Ptr(k.Offset), 5)
		require.NoError(t, NewString(a, off+memory.Ptr(label.Offset)).Set("same"))
	}

	// Equal content with distinct payload pointers: equality and hashing
	// follow the pointed-at bytes, not the pointers.
	assert.True(t, ops.Equals(a, x, y))
	assert.Equal(t, ops.Hash(a, x), ops.Hash(a, y))

	require.NoError(t, NewString(a, y+memory.Ptr(label.Offset)).Set("different"))
	assert.False(t, ops.Equals(a, x, y))
}

func TestArrayIndexOfStructByContent(t *testing.T) {
	a := testArena()
	r := layout.NewRegistry(nil)
	ops, lay := structOps(t, r, "entry", []layout.FieldMeta{
		{Key: "id", Type: "u32"},
		{Key: "name", Type: "str"},
	})

	slot := testSlot(t, a)
	arr := NewArray(a, slot, ops.Info)
	id, _ := lay.Property("id")
	name, _ := lay.Property("name")
	for i, label := range []string{"first", "second", "third"} {
		off, err := arr.PushZero()
		require.NoError(t, err)
		a.PutU32(off+memory.Ptr(id.Offset), uint32(i))
		require.NoError(t, NewString(a, off+memory.Ptr(name.Offset)).Set(label))
	}

	// A needle with equal content but its own string payload is found by
	// value, not by pointer.
	needle := a.Allocate(lay.TotalSize, "test", memory.NullPtr)
	a.Zero(needle, lay.TotalSize)
	a.PutU32(needle+memory.Ptr(id.Offset), 1)
	require.NoError(t, NewString(a, needle+memory.Ptr(name.Offset)).Set("second"))

	assert.Equal(t, 1, arr.IndexOf(a.Bytes(needle, lay.TotalSize)))
	assert.True(t, arr.Includes(a.Bytes(needle, lay.TotalSize)))

	require.NoError(t, NewString(a, needle+memory.Ptr(name.Offset)).Set("absent"))
	assert.Equal(t, -1, arr.IndexOf(a.Bytes(needle, lay.TotalSize)))
}

func TestOpsFreeReleasesNestedPayloads(t *testing.T) {
	a := testArena()
	r := layout.NewRegistry(nil)
	ops, lay := structOps(t, r, "nested", []layout.FieldMeta{
		{Key: "names", Type: "arr<str>"},
		{Key: "index", Type: "map<u32, str>"},
	})

	region := a.Allocate(lay.TotalSize, "test", memory.NullPtr)
	a.Zero(region, lay.TotalSize)
	baseline := a.Stats().LiveBytes

	names, _ := lay.Property("names")
	index, _ := lay.Property("index")

	arr := NewArray(a, region+memory.Ptr(names.Offset), names.Binary.Element)
	for i := 0; i < 5; i++ {
		off, err := arr.PushZero()
		require.NoError(t, err)
		require.NoError(t, NewString(a, off).Set("entry"))
	}
	m := NewMap(a, region+memory.Ptr(index.Offset), index.Binary.Key, index.Binary.Value)
	off, err := m.Emplace(BytesKey(U32Bytes(1)))
	require.NoError(t, err)
	require.NoError(t, NewString(a, off).Set("mapped"))

	ops.Free(a, region)
	assert.Equal(t, baseline, a.Stats().LiveBytes)
}
