package ecs

import (
	"github.com/guerrero-dev/guerrero/internal/core/memory"
)

// StorageBackend is the entity/component store the world drives. The
// canonical implementation lives in internal/core/archetype; the world
// layers relationships, events and scheduling on top of it.
//
// Offsets returned by Component* methods are arena offsets of a
// component's fixed region. They are invalidated by any structural
// change to the owning entity (component add/remove, migration,
// deletion) and must not be held across such operations.
type StorageBackend interface {
	// SetObserver installs the structural-change observer. Must be
	// called before any mutation; the world installs itself.
	SetObserver(obs StorageObserver)

	EntityCreate() (Entity, error)
	EntitySpawn(def EntityDefinition, parent Entity) (Entity, error)
	// EntityDelete removes the entity, cascading over linked-spawn
	// relationships. visited guards against relationship cycles; pass
	// an empty non-nil map.
	EntityDelete(id Entity, visited map[Entity]struct{}) error
	EntityIsAlive(id Entity) bool
	// EntityFind returns the lowest-id live entity holding every named
	// component.
	EntityFind(components []string) (Entity, bool)
	EntityFindMultiple(components []string) []Entity
	// EntityView returns live entities holding all of with and none of
	// without, served through the archetype-level query cache.
	EntityView(with, without []string) []Entity
	// ComponentView is EntityView with the named component as an
	// implicit with-filter.
	ComponentView(name string, with, without []string) []Entity

	ComponentHas(id Entity, name string) bool
	ComponentGet(id Entity, name string) (memory.Ptr, bool)
	ComponentGetMultiple(id Entity, names ...string) (map[string]memory.Ptr, error)
	ComponentGetAll(id Entity) map[string]memory.Ptr
	ComponentAddMultiple(id Entity, comps ...ComponentInit) error
	ComponentRemoveMultiple(id Entity, names ...string) error
	ComponentIsRegistered(name string) bool
	// ComponentValidateDependencies fails if any named component type
	// has no registered layout.
	ComponentValidateDependencies(names []string) error

	ParentSet(child, parent Entity) error
	ParentGet(child Entity) (Entity, bool)
	ChildrenGet(parent Entity) []Entity

	// Cleanup drops all entities and archetypes. The backend is not
	// usable afterwards.
	Cleanup()
}

// StorageObserver receives structural-change callbacks from a backend.
// Callbacks fire after the store is consistent, so a handler may issue
// further backend operations.
type StorageObserver interface {
	EntityCreated(id Entity)
	EntityDeleted(id Entity)
	// ComponentAdded fires once the component exists on the entity.
	// Handlers fetch the offset themselves; a preceding handler may
	// have migrated the entity.
	ComponentAdded(id Entity, name string)
	// ComponentRemoved fires with a captured copy of the removed
	// component's fixed region. The capture and any dynamic payloads it
	// references stay readable for the duration of the callback and are
	// freed by the backend afterwards. overwrite is set when the
	// removal makes room for an immediate re-add of the same component.
	ComponentRemoved(id Entity, name string, captured memory.Ptr, overwrite bool)
}

// System is a unit of per-schedule work. Components declares the
// component types whose writes gate the system: when non-empty, the
// system is skipped on ticks where none of them changed since its last
// run. An empty list means the system always runs (subject to
// RunCriteria).
type System interface {
	Name() string
	Components() []string
	RunCriteria(w *World) bool
	Initialize(w *World) error
	Update(w *World) error
	Cleanup(w *World) error
}

// BaseSystem supplies no-op defaults for everything but Name and
// Update. Embed it and override what you need.
type BaseSystem struct{}

func (BaseSystem) Components() []string    { return nil }
func (BaseSystem) RunCriteria(*World) bool { return true }
func (BaseSystem) Initialize(*World) error { return nil }
func (BaseSystem) Cleanup(*World) error    { return nil }

// Plugin bundles systems, components and resources into an installable
// unit. Build runs at add time; the startup hooks run when their
// matching startup schedule executes.
type Plugin interface {
	Name() string
	Dependencies() []string
	Build(w *World) error
	Remove(w *World)

	FirstStartup(w *World) error
	PreStartup(w *World) error
	PostStartup(w *World) error
	LastStartup(w *World) error
}

// BasePlugin supplies no-op defaults for everything but Name and Build.
type BasePlugin struct{}

func (BasePlugin) Dependencies() []string    { return nil }
func (BasePlugin) Remove(*World)             {}
func (BasePlugin) FirstStartup(*World) error { return nil }
func (BasePlugin) PreStartup(*World) error   { return nil }
func (BasePlugin) PostStartup(*World) error  { return nil }
func (BasePlugin) LastStartup(*World) error  { return nil }
