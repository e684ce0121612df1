package ecs_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guerrero-dev/guerrero/internal/core/ecs"
)

type countingSystem struct {
	ecs.BaseSystem
	name     string
	deps     []string
	enabled  bool
	runs     int
	inits    int
	cleanups int
	updateFn func(w *ecs.World) error
}

func newCountingSystem(name string, deps ...string) *countingSystem {
	return &countingSystem{name: name, deps: deps, enabled: true}
}

func (s *countingSystem) Name() string                { return s.name }
func (s *countingSystem) Components() []string        { return s.deps }
func (s *countingSystem) RunCriteria(*ecs.World) bool { return s.enabled }
func (s *countingSystem) Initialize(*ecs.World) error { s.inits++; return nil }
func (s *countingSystem) Cleanup(*ecs.World) error    { s.cleanups++; return nil }

func (s *countingSystem) Update(w *ecs.World) error {
	s.runs++
	if s.updateFn != nil {
		return s.updateFn(w)
	}
	return nil
}

func TestSchedulerRunsInScheduleOrder(t *testing.T) {
	w := newTestWorld(t)

	var order []string
	mk := func(name string) *countingSystem {
		s := newCountingSystem(name)
		s.updateFn = func(*ecs.World) error {
			order = append(order, name)
			return nil
		}
		return s
	}
	w.AddSystem(ecs.SchedulePostUpdate, mk("post"))
	w.AddSystem(ecs.ScheduleUpdate, mk("first"))
	w.AddSystem(ecs.ScheduleUpdate, mk("second"))

	require.NoError(t, w.Update(ecs.ScheduleUpdate, 0.016))
	require.NoError(t, w.Update(ecs.SchedulePostUpdate, 0.016))
	assert.Equal(t, []string{"first", "second", "post"}, order)
}

func TestSchedulerRunCriteriaGate(t *testing.T) {
	w := newTestWorld(t)
	sys := newCountingSystem("gated")
	sys.enabled = false
	w.AddSystem(ecs.ScheduleUpdate, sys)

	require.NoError(t, w.Update(ecs.ScheduleUpdate, 0.016))
	assert.Equal(t, 0, sys.runs)

	sys.enabled = true
	require.NoError(t, w.Update(ecs.ScheduleUpdate, 0.016))
	assert.Equal(t, 1, sys.runs)
}

func TestSchedulerChangeDetection(t *testing.T) {
	w := newTestWorld(t)
	registerHealth(t, w)

	gated := newCountingSystem("gated", "health")
	free := newCountingSystem("free")
	w.AddSystem(ecs.ScheduleUpdate, gated)
	w.AddSystem(ecs.ScheduleUpdate, free)

	// First run is unconditional.
	require.NoError(t, w.Update(ecs.ScheduleUpdate, 0.016))
	assert.Equal(t, 1, gated.runs)
	assert.Equal(t, 1, free.runs)

	// No writes since: the gated system sits out, the free one runs.
	require.NoError(t, w.Update(ecs.ScheduleUpdate, 0.016))
	assert.Equal(t, 1, gated.runs)
	assert.Equal(t, 2, free.runs)

	// A write on a later tick wakes it up again.
	require.NoError(t, w.Update(ecs.ScheduleFixedUpdate, 0.016))
	w.Touch("health")
	require.NoError(t, w.Update(ecs.ScheduleUpdate, 0.016))
	assert.Equal(t, 2, gated.runs)

	require.NoError(t, w.Update(ecs.ScheduleUpdate, 0.016))
	assert.Equal(t, 2, gated.runs)
}

func TestSchedulerComponentAddWakesSystems(t *testing.T) {
	w := newTestWorld(t)
	registerHealth(t, w)

	sys := newCountingSystem("health_watcher", "health")
	w.AddSystem(ecs.ScheduleUpdate, sys)

	require.NoError(t, w.Update(ecs.ScheduleUpdate, 0.016))
	require.NoError(t, w.Update(ecs.ScheduleFixedUpdate, 0.016))

	e, err := w.EntityCreate()
	require.NoError(t, err)
	require.NoError(t, w.ComponentAdd(e, ecs.Component("health")))

	require.NoError(t, w.Update(ecs.ScheduleUpdate, 0.016))
	assert.Equal(t, 2, sys.runs)
}

func TestSchedulerSystemErrorDoesNotStopPlan(t *testing.T) {
	w := newTestWorld(t)

	failing := newCountingSystem("failing")
	failing.updateFn = func(*ecs.World) error { return errors.New("boom") }
	after := newCountingSystem("after")
	w.AddSystem(ecs.ScheduleUpdate, failing)
	w.AddSystem(ecs.ScheduleUpdate, after)

	require.NoError(t, w.Update(ecs.ScheduleUpdate, 0.016))
	assert.Equal(t, 1, failing.runs)
	assert.Equal(t, 1, after.runs)
}

func TestSchedulerRemoveSystem(t *testing.T) {
	w := newTestWorld(t)
	sys := newCountingSystem("victim")
	w.AddSystem(ecs.ScheduleUpdate, sys)

	assert.True(t, w.RemoveSystem(ecs.ScheduleUpdate, "victim"))
	assert.False(t, w.RemoveSystem(ecs.ScheduleUpdate, "victim"))

	require.NoError(t, w.Update(ecs.ScheduleUpdate, 0.016))
	assert.Equal(t, 0, sys.runs)
}

func TestSchedulerInitializeHooks(t *testing.T) {
	w := newTestWorld(t)
	sys := newCountingSystem("lifecycle")
	w.AddSystem(ecs.ScheduleUpdate, sys)

	require.NoError(t, w.Initialize())
	assert.Equal(t, 1, sys.inits)

	w.Cleanup()
	assert.Equal(t, 1, sys.cleanups)
}

func TestSchedulerScheduleEvents(t *testing.T) {
	w := newTestWorld(t)
	events := recordEvents(t, w, ecs.EventScheduleStarted, ecs.EventScheduleEnded)

	require.NoError(t, w.Update(ecs.ScheduleRender, 0.016))
	require.Len(t, *events, 2)
	assert.Equal(t, ecs.EventScheduleStarted, (*events)[0].Type)
	assert.Equal(t, []any{ecs.ScheduleRender}, (*events)[0].Args)
	assert.Equal(t, ecs.EventScheduleEnded, (*events)[1].Type)
}
