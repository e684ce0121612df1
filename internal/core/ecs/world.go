package ecs

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/guerrero-dev/guerrero/internal/core/config"
	"github.com/guerrero-dev/guerrero/internal/core/events/bus"
	"github.com/guerrero-dev/guerrero/internal/core/layout"
	"github.com/guerrero-dev/guerrero/internal/core/memory"
	"github.com/guerrero-dev/guerrero/internal/core/observability/log"
	"github.com/guerrero-dev/guerrero/pkg/generic"
)

// Options wires a world. Storage, Arena, Layouts, Relationships and
// Ticks are required and must be the same instances the storage backend
// was built with. Config, Logger and Bus default when nil.
type Options struct {
	Config        *config.Config
	Logger        log.Log
	Bus           bus.EventBus
	Arena         *memory.Arena
	Layouts       *layout.Registry
	Relationships *RelationshipRegistry
	Ticks         *Ticks
	Storage       StorageBackend
}

// World is the engine's root object: one arena, one layout registry,
// one storage backend, plus the relationship engine, event bus and
// scheduler layered over them. Worlds are single-threaded; all
// operations happen on the owning goroutine.
type World struct {
	id            string
	cfg           *config.Config
	log           log.Log
	arena         *memory.Arena
	layouts       *layout.Registry
	storage       StorageBackend
	bus           bus.EventBus
	relationships *RelationshipRegistry
	ticks         *Ticks
	sched         *scheduler

	plugins     []Plugin
	pluginNames map[string]struct{}

	// pendingOldTargets carries the previous target of a relationship
	// across an overwrite's remove/add pair.
	pendingOldTargets map[pendingKey]Entity

	visitedPool *generic.Pool[map[Entity]struct{}]

	deltaTime   float64
	initialized bool
	closed      bool
}

// NewWorld assembles a world over a prepared storage backend, installs
// itself as the backend's observer and registers the built-in
// parent/child relationship pair.
func NewWorld(opts Options) (*World, error) {
	if opts.Storage == nil || opts.Arena == nil || opts.Layouts == nil ||
		opts.Relationships == nil || opts.Ticks == nil {
		return nil, errors.New("ecs: storage, arena, layouts, relationships and ticks are required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.ParseLevel(cfg.LogLevel))
	}
	eventBus := opts.Bus
	if eventBus == nil {
		eventBus = bus.New()
	}

	w := &World{
		id:                uuid.NewString(),
		cfg:               cfg,
		log:               logger,
		arena:             opts.Arena,
		layouts:           opts.Layouts,
		storage:           opts.Storage,
		bus:               eventBus,
		relationships:     opts.Relationships,
		ticks:             opts.Ticks,
		sched:             newScheduler(),
		pluginNames:       make(map[string]struct{}),
		pendingOldTargets: make(map[pendingKey]Entity),
		visitedPool: generic.NewPool(func() map[Entity]struct{} {
			return make(map[Entity]struct{})
		}),
	}
	w.storage.SetObserver(w)
	if err := w.registerParentPair(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *World) ID() string                           { return w.id }
func (w *World) Config() *config.Config               { return w.cfg }
func (w *World) Logger() log.Log                      { return w.log }
func (w *World) Arena() *memory.Arena                 { return w.arena }
func (w *World) Layouts() *layout.Registry            { return w.layouts }
func (w *World) Bus() bus.EventBus                    { return w.bus }
func (w *World) Relationships() *RelationshipRegistry { return w.relationships }
func (w *World) Ticks() *Ticks                        { return w.ticks }
func (w *World) Storage() StorageBackend              { return w.storage }

// DeltaTime is the dt passed to the current Update call, in seconds.
func (w *World) DeltaTime() float64 { return w.deltaTime }

// Touch records a direct write to component data so change detection
// and query caches see it. Systems mutating component memory through
// the arena call this themselves; structural changes touch implicitly.
func (w *World) Touch(component string) { w.ticks.Touch(component) }

func (w *World) publish(eventType string, args ...any) {
	if err := w.bus.Publish(bus.NewEvent(eventType, w.id, args...)); err != nil {
		w.log.Warn("event handler failed", log.String("event", eventType), log.Error(err))
	}
}

// On subscribes a handler to one of the Event* types.
func (w *World) On(eventType string, handler bus.EventHandler) (bus.Subscription, error) {
	return w.bus.Subscribe(eventType, handler)
}

// Off cancels a subscription from On.
func (w *World) Off(sub bus.Subscription) error { return w.bus.Unsubscribe(sub) }

// StorageObserver implementation. The backend calls these once its own
// state is consistent; the world raises events and runs the
// relationship engine from here.

func (w *World) EntityCreated(id Entity) {
	w.publish(EventEntityCreated, id)
}

func (w *World) EntityDeleted(id Entity) {
	w.publish(EventEntityDeleted, id)
}

func (w *World) ComponentAdded(id Entity, name string) {
	w.ticks.Touch(name)
	w.publish(EventComponentAdded, id, name)
	if meta := w.relationships.ByRelationship(name); meta != nil {
		w.onRelationshipAdded(id, meta)
	}
}

func (w *World) ComponentRemoved(id Entity, name string, captured memory.Ptr, overwrite bool) {
	w.ticks.Touch(name)
	w.publish(EventComponentRemoved, id, name)
	if meta := w.relationships.ByRelationship(name); meta != nil {
		w.onRelationshipRemoved(id, meta, captured, overwrite)
	}
}

// Schema registration.

// RegisterComponent declares a component type's fields and computes its
// layout lazily on first use.
func (w *World) RegisterComponent(name string, fields []layout.FieldMeta) error {
	return w.layouts.RegisterStruct(name, fields)
}

// RegisterEnum declares an enum usable in component field types.
func (w *World) RegisterEnum(name, base string, members []layout.EnumMember) error {
	return w.layouts.RegisterEnum(name, base, members)
}

// LoadSchema registers every enum and struct in a YAML schema document.
func (w *World) LoadSchema(data []byte) error {
	return w.layouts.LoadSchema(data)
}

// LoadSchemaFile reads and registers a schema declaration file.
func (w *World) LoadSchemaFile(path string) error {
	return w.layouts.LoadSchemaFile(path)
}

// Entity operations.

func (w *World) EntityCreate() (Entity, error) {
	return w.storage.EntityCreate()
}

// EntitySpawn builds an entity subtree depth-first from a definition.
func (w *World) EntitySpawn(def EntityDefinition) (Entity, error) {
	return w.storage.EntitySpawn(def, InvalidEntity)
}

// EntitySpawnChild is EntitySpawn with the subtree parented under
// parent.
func (w *World) EntitySpawnChild(def EntityDefinition, parent Entity) (Entity, error) {
	return w.storage.EntitySpawn(def, parent)
}

// EntityDelete removes the entity and cascades over linked-spawn
// relationships. Deleting a dead entity is a no-op.
func (w *World) EntityDelete(id Entity) error {
	visited := w.visitedPool.Get()
	err := w.storage.EntityDelete(id, visited)
	clear(visited)
	w.visitedPool.Put(visited)
	return err
}

func (w *World) EntityIsAlive(id Entity) bool { return w.storage.EntityIsAlive(id) }

func (w *World) EntityFind(components ...string) (Entity, bool) {
	return w.storage.EntityFind(components)
}

func (w *World) EntityFindMultiple(components ...string) []Entity {
	return w.storage.EntityFindMultiple(components)
}

func (w *World) EntityView(with, without []string) []Entity {
	return w.storage.EntityView(with, without)
}

func (w *World) ComponentView(name string, with, without []string) []Entity {
	return w.storage.ComponentView(name, with, without)
}

// Component operations.

func (w *World) ComponentAdd(id Entity, comps ...ComponentInit) error {
	return w.storage.ComponentAddMultiple(id, comps...)
}

func (w *World) ComponentRemove(id Entity, names ...string) error {
	return w.storage.ComponentRemoveMultiple(id, names...)
}

func (w *World) ComponentHas(id Entity, name string) bool {
	return w.storage.ComponentHas(id, name)
}

func (w *World) ComponentGet(id Entity, name string) (memory.Ptr, bool) {
	return w.storage.ComponentGet(id, name)
}

func (w *World) ComponentGetMultiple(id Entity, names ...string) (map[string]memory.Ptr, error) {
	return w.storage.ComponentGetMultiple(id, names...)
}

func (w *World) ComponentGetAll(id Entity) map[string]memory.Ptr {
	return w.storage.ComponentGetAll(id)
}

// Parent operations.

func (w *World) ParentSet(child, parent Entity) error { return w.storage.ParentSet(child, parent) }

func (w *World) ParentGet(child Entity) (Entity, bool) { return w.storage.ParentGet(child) }

func (w *World) Children(parent Entity) []Entity { return w.storage.ChildrenGet(parent) }

// Plugins and systems.

// AddPlugin validates the plugin's dependencies, runs its Build and
// registers it. A failed Build leaves the plugin out; whatever Build
// already did is not rolled back.
func (w *World) AddPlugin(p Plugin) error {
	if _, ok := w.pluginNames[p.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrPluginConflict, p.Name())
	}
	for _, dep := range p.Dependencies() {
		if _, ok := w.pluginNames[dep]; !ok {
			return fmt.Errorf("%w: %s requires %s", ErrPluginDependency, p.Name(), dep)
		}
	}
	if err := p.Build(w); err != nil {
		return fmt.Errorf("plugin %s build: %w", p.Name(), err)
	}
	w.plugins = append(w.plugins, p)
	w.pluginNames[p.Name()] = struct{}{}
	w.publish(EventPluginAdded, p.Name())
	return nil
}

// RemovePlugin runs the plugin's Remove and unregisters it. Systems
// the plugin added stay unless Remove takes them out.
func (w *World) RemovePlugin(name string) bool {
	for i, p := range w.plugins {
		if p.Name() == name {
			p.Remove(w)
			w.plugins = append(w.plugins[:i], w.plugins[i+1:]...)
			delete(w.pluginNames, name)
			w.publish(EventPluginRemoved, name)
			return true
		}
	}
	return false
}

// AddSystem registers a system into a schedule. Execution follows
// registration order within the schedule.
func (w *World) AddSystem(schedule Schedule, sys System) {
	w.sched.add(schedule, sys, "")
	w.publish(EventSystemAdded, schedule, sys.Name())
}

// RemoveSystem drops the named system from the schedule.
func (w *World) RemoveSystem(schedule Schedule, name string) bool {
	if w.sched.remove(schedule, name) {
		w.publish(EventSystemRemoved, schedule, name)
		return true
	}
	return false
}

// Lifecycle.

// Initialize runs the one-shot startup sequence: the first three
// startup schedules, then every registered system's Initialize hook,
// then the remaining startup schedules with a fixed flush between
// them. Calling it twice warns and does nothing.
func (w *World) Initialize() error {
	if w.closed {
		return ErrWorldClosed
	}
	if w.initialized {
		w.log.Warn("world already initialized", log.String("world", w.id))
		return nil
	}

	w.runSchedule(ScheduleFirstStartup)
	w.runSchedule(SchedulePreStartup)
	w.runSchedule(ScheduleStartup)

	var initErr error
	w.sched.each(func(_ Schedule, ss *scheduledSystem) {
		if err := ss.system.Initialize(w); err != nil {
			w.log.Error("system initialize failed",
				log.String("system", ss.system.Name()), log.Error(err))
			if initErr == nil {
				initErr = err
			}
		}
	})
	if initErr != nil {
		return initErr
	}

	w.runSchedule(SchedulePostStartup)
	w.runSchedule(ScheduleFixedFlush)
	w.runSchedule(ScheduleLastStartup)

	w.initialized = true
	w.publish(EventWorldInitialized)
	return nil
}

// Update runs one schedule. A fixed-update advances the world tick
// before anything else, so every write inside the step lands on the new
// tick.
func (w *World) Update(schedule Schedule, dt float64) error {
	if w.closed {
		return ErrWorldClosed
	}
	w.deltaTime = dt
	if schedule == ScheduleFixedUpdate {
		w.ticks.Advance()
	}
	w.runSchedule(schedule)
	return nil
}

// Cleanup tears the world down: system and plugin cleanup hooks, then
// storage, then the bus. The world is unusable afterwards.
func (w *World) Cleanup() {
	if w.closed {
		return
	}
	w.publish(EventWorldCleanup)

	w.sched.each(func(_ Schedule, ss *scheduledSystem) {
		if err := ss.system.Cleanup(w); err != nil {
			w.log.Error("system cleanup failed",
				log.String("system", ss.system.Name()), log.Error(err))
		}
	})
	for i := len(w.plugins) - 1; i >= 0; i-- {
		w.plugins[i].Remove(w)
	}
	w.plugins = nil
	w.pluginNames = make(map[string]struct{})
	w.sched.reset()

	w.storage.Cleanup()
	w.bus.Clear()
	w.initialized = false
	w.closed = true
}
