package ecs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guerrero-dev/guerrero/internal/core/ecs"
	"github.com/guerrero-dev/guerrero/internal/core/layout"
	"github.com/guerrero-dev/guerrero/internal/core/memory"
	"github.com/guerrero-dev/guerrero/internal/core/view"
)

// registerOwnership installs an owned_by/owner_of pair for tests that
// need a relationship besides the built-in parent one.
func registerOwnership(t *testing.T, w *ecs.World, linkedSpawn bool) {
	t.Helper()
	require.NoError(t, w.RegisterComponent("owned_by", []layout.FieldMeta{
		{Key: "target", Type: "u32"},
	}))
	require.NoError(t, w.RegisterComponent("owner_of", []layout.FieldMeta{
		{Key: "sources", Type: "set<u32>"},
	}))
	require.NoError(t, w.RegisterRelationship(ecs.RelationshipMetadata{
		RelationshipType: "owned_by",
		TargetField:      "target",
		TargetType:       "owner_of",
		SourcesField:     "sources",
		LinkedSpawn:      linkedSpawn,
	}))
}

func setOwner(t *testing.T, w *ecs.World, source, owner ecs.Entity) error {
	t.Helper()
	off := fieldOffset(t, w, "owned_by", "target")
	return w.ComponentAdd(source, ecs.ComponentInit{
		Name: "owned_by",
		Init: initU32(off, uint32(owner)),
	})
}

// sourcesOf reads the mirrored source ids off a target entity.
func sourcesOf(t *testing.T, w *ecs.World, target ecs.Entity) []uint32 {
	t.Helper()
	base, ok := w.ComponentGet(target, "owner_of")
	if !ok {
		return nil
	}
	lay, err := w.Layouts().Layout("owner_of")
	require.NoError(t, err)
	prop, ok := lay.Property("sources")
	require.True(t, ok)
	set := view.NewSet(w.Arena(), base+memory.Ptr(prop.Offset), prop.Binary.Element)
	return set.ItemsU32()
}

func TestParentSetAndReparent(t *testing.T) {
	w := newTestWorld(t)
	p1, err := w.EntityCreate()
	require.NoError(t, err)
	p2, err := w.EntityCreate()
	require.NoError(t, err)
	child, err := w.EntityCreate()
	require.NoError(t, err)

	parentEvents := recordEvents(t, w, ecs.EventParentSet)

	require.NoError(t, w.ParentSet(child, p1))
	got, ok := w.ParentGet(child)
	require.True(t, ok)
	assert.Equal(t, p1, got)
	assert.Equal(t, []ecs.Entity{child}, w.Children(p1))

	require.NoError(t, w.ParentSet(child, p2))
	got, ok = w.ParentGet(child)
	require.True(t, ok)
	assert.Equal(t, p2, got)
	assert.Empty(t, w.Children(p1))
	assert.Equal(t, []ecs.Entity{child}, w.Children(p2))

	require.Len(t, *parentEvents, 2)
	assert.Equal(t, []any{child, ecs.InvalidEntity, p1}, (*parentEvents)[0].Args)
	assert.Equal(t, []any{child, p1, p2}, (*parentEvents)[1].Args)
}

func TestParentClear(t *testing.T) {
	w := newTestWorld(t)
	parent, err := w.EntityCreate()
	require.NoError(t, err)
	child, err := w.EntityCreate()
	require.NoError(t, err)
	require.NoError(t, w.ParentSet(child, parent))

	events := recordEvents(t, w, ecs.EventParentSet, ecs.EventChildRemoved)

	require.NoError(t, w.ComponentRemove(child, ecs.ChildOfComponent))
	_, ok := w.ParentGet(child)
	assert.False(t, ok)
	assert.Empty(t, w.Children(parent))
	// The empty mirror component is dropped from the parent too.
	assert.False(t, w.ComponentHas(parent, ecs.ChildrenComponent))

	require.Len(t, *events, 2)
	assert.Equal(t, ecs.EventChildRemoved, (*events)[0].Type)
	assert.Equal(t, []any{parent, child}, (*events)[0].Args)
	assert.Equal(t, ecs.EventParentSet, (*events)[1].Type)
	assert.Equal(t, []any{child, parent, ecs.InvalidEntity}, (*events)[1].Args)
}

func TestParentSetRejections(t *testing.T) {
	w := newTestWorld(t)
	e, err := w.EntityCreate()
	require.NoError(t, err)

	assert.Error(t, w.ParentSet(e, e))
	assert.ErrorIs(t, w.ParentSet(e, e+100), ecs.ErrEntityNotFound)
	assert.ErrorIs(t, w.ParentSet(e+100, e), ecs.ErrEntityNotFound)
}

func TestRelationshipMirror(t *testing.T) {
	w := newTestWorld(t)
	registerOwnership(t, w, false)

	owner, err := w.EntityCreate()
	require.NoError(t, err)
	a, err := w.EntityCreate()
	require.NoError(t, err)
	b, err := w.EntityCreate()
	require.NoError(t, err)

	events := recordEvents(t, w, ecs.EventRelationshipSet, ecs.EventRelationshipSourceAdded)

	require.NoError(t, setOwner(t, w, a, owner))
	require.NoError(t, setOwner(t, w, b, owner))
	assert.True(t, w.ComponentHas(owner, "owner_of"))
	assert.ElementsMatch(t, []uint32{uint32(a), uint32(b)}, sourcesOf(t, w, owner))

	require.Len(t, *events, 4)
	assert.Equal(t, ecs.EventRelationshipSourceAdded, (*events)[0].Type)
	assert.Equal(t, []any{owner, "owned_by", a}, (*events)[0].Args)
	assert.Equal(t, ecs.EventRelationshipSet, (*events)[1].Type)
	assert.Equal(t, []any{a, "owned_by", ecs.InvalidEntity, owner}, (*events)[1].Args)

	// Dropping one source keeps the mirror for the other.
	require.NoError(t, w.ComponentRemove(a, "owned_by"))
	assert.ElementsMatch(t, []uint32{uint32(b)}, sourcesOf(t, w, owner))
	assert.True(t, w.ComponentHas(owner, "owner_of"))

	require.NoError(t, w.ComponentRemove(b, "owned_by"))
	assert.False(t, w.ComponentHas(owner, "owner_of"))
}

func TestRelationshipDeadTargetVoided(t *testing.T) {
	w := newTestWorld(t)
	registerOwnership(t, w, false)

	// Create both entities before the delete so the freed id is not
	// recycled into e.
	ghost, err := w.EntityCreate()
	require.NoError(t, err)
	e, err := w.EntityCreate()
	require.NoError(t, err)
	require.NoError(t, w.EntityDelete(ghost))

	// Pointing at a dead entity voids the add.
	require.NoError(t, setOwner(t, w, e, ghost))
	assert.False(t, w.ComponentHas(e, "owned_by"))

	// Same for an unset target.
	require.NoError(t, setOwner(t, w, e, ecs.InvalidEntity))
	assert.False(t, w.ComponentHas(e, "owned_by"))
}

func TestRelationshipSourceDeleted(t *testing.T) {
	w := newTestWorld(t)
	registerOwnership(t, w, false)

	owner, err := w.EntityCreate()
	require.NoError(t, err)
	a, err := w.EntityCreate()
	require.NoError(t, err)
	require.NoError(t, setOwner(t, w, a, owner))

	require.NoError(t, w.EntityDelete(a))
	assert.True(t, w.EntityIsAlive(owner))
	assert.False(t, w.ComponentHas(owner, "owner_of"))
}

func TestLinkedSpawnCascade(t *testing.T) {
	w := newTestWorld(t)

	root, err := w.EntitySpawn(ecs.EntityDefinition{
		Children: []ecs.EntityDefinition{
			{Children: []ecs.EntityDefinition{{}}},
			{},
		},
	})
	require.NoError(t, err)

	kids := w.Children(root)
	require.Len(t, kids, 2)
	grandkids := w.Children(kids[0])
	if len(grandkids) == 0 {
		grandkids = w.Children(kids[1])
	}
	require.Len(t, grandkids, 1)

	deleted := recordEvents(t, w, ecs.EventEntityDeleted)

	require.NoError(t, w.EntityDelete(root))
	assert.False(t, w.EntityIsAlive(root))
	for _, kid := range kids {
		assert.False(t, w.EntityIsAlive(kid))
	}
	assert.False(t, w.EntityIsAlive(grandkids[0]))
	assert.Len(t, *deleted, 4)
}

func TestLinkedSpawnCycleTerminates(t *testing.T) {
	w := newTestWorld(t)
	registerOwnership(t, w, true)

	a, err := w.EntityCreate()
	require.NoError(t, err)
	b, err := w.EntityCreate()
	require.NoError(t, err)
	require.NoError(t, setOwner(t, w, a, b))
	require.NoError(t, setOwner(t, w, b, a))

	require.NoError(t, w.EntityDelete(a))
	assert.False(t, w.EntityIsAlive(a))
	assert.False(t, w.EntityIsAlive(b))
}

func TestRegisterRelationshipValidation(t *testing.T) {
	w := newTestWorld(t)
	require.NoError(t, w.RegisterComponent("bad_rel", []layout.FieldMeta{
		{Key: "target", Type: "f32"},
	}))
	require.NoError(t, w.RegisterComponent("bad_target", []layout.FieldMeta{
		{Key: "sources", Type: "arr<u32>"},
	}))
	require.NoError(t, w.RegisterComponent("good_target", []layout.FieldMeta{
		{Key: "sources", Type: "set<u32>"},
	}))

	// Target field must be u32.
	assert.Error(t, w.RegisterRelationship(ecs.RelationshipMetadata{
		RelationshipType: "bad_rel", TargetField: "target",
		TargetType: "good_target", SourcesField: "sources",
	}))

	require.NoError(t, w.RegisterComponent("good_rel", []layout.FieldMeta{
		{Key: "target", Type: "u32"},
	}))

	// Sources field must be set<u32>.
	assert.Error(t, w.RegisterRelationship(ecs.RelationshipMetadata{
		RelationshipType: "good_rel", TargetField: "target",
		TargetType: "bad_target", SourcesField: "sources",
	}))

	require.NoError(t, w.RegisterRelationship(ecs.RelationshipMetadata{
		RelationshipType: "good_rel", TargetField: "target",
		TargetType: "good_target", SourcesField: "sources",
	}))

	// A component type sits in at most one relationship.
	assert.ErrorIs(t, w.RegisterRelationship(ecs.RelationshipMetadata{
		RelationshipType: "good_rel", TargetField: "target",
		TargetType: "good_target", SourcesField: "sources",
	}), ecs.ErrRelationshipConflict)
}
