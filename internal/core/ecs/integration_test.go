package ecs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guerrero-dev/guerrero/internal/core/ecs"
	"github.com/guerrero-dev/guerrero/internal/core/layout"
)

// compileSystem gives every childless command node a compiled component
// and strips it from nodes that gained children since.
type compileSystem struct {
	ecs.BaseSystem
}

func (compileSystem) Name() string { return "command_compile" }

func (compileSystem) Update(w *ecs.World) error {
	for _, id := range w.ComponentView("command", nil, []string{ecs.ChildrenComponent, "compiled"}) {
		if err := w.ComponentAdd(id, ecs.Component("compiled")); err != nil {
			return err
		}
	}
	for _, id := range w.EntityView([]string{"command", "compiled", ecs.ChildrenComponent}, nil) {
		if err := w.ComponentRemove(id, "compiled"); err != nil {
			return err
		}
	}
	return nil
}

func TestCommandTreeCompilation(t *testing.T) {
	w := newTestWorld(t)
	require.NoError(t, w.RegisterComponent("command", []layout.FieldMeta{
		{Key: "opcode", Type: "u32"},
	}))
	require.NoError(t, w.RegisterComponent("compiled", []layout.FieldMeta{
		{Key: "program", Type: "arr<u32>"},
	}))
	w.AddSystem(ecs.ScheduleUpdate, compileSystem{})
	require.NoError(t, w.Initialize())

	parent, err := w.EntitySpawn(ecs.EntityDefinition{
		Components: []ecs.ComponentInit{ecs.Component("command")},
		Children: []ecs.EntityDefinition{
			{Components: []ecs.ComponentInit{ecs.Component("command")}},
		},
	})
	require.NoError(t, err)
	child := w.Children(parent)[0]

	// Only the leaf compiles.
	require.NoError(t, w.Update(ecs.ScheduleUpdate, 0.016))
	assert.True(t, w.ComponentHas(child, "compiled"))
	assert.False(t, w.ComponentHas(parent, "compiled"))

	// Deleting the child makes the parent the new leaf; the next pass
	// picks it up.
	require.NoError(t, w.EntityDelete(child))
	require.NoError(t, w.Update(ecs.ScheduleUpdate, 0.016))
	assert.True(t, w.ComponentHas(parent, "compiled"))

	// Growing a new child under a compiled node reverses it again.
	_, err = w.EntitySpawnChild(ecs.EntityDefinition{
		Components: []ecs.ComponentInit{ecs.Component("command")},
	}, parent)
	require.NoError(t, err)
	require.NoError(t, w.Update(ecs.ScheduleUpdate, 0.016))
	assert.False(t, w.ComponentHas(parent, "compiled"))
}
