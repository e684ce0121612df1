package archetype

import (
	"errors"
	"fmt"
	"sort"

	"github.com/guerrero-dev/guerrero/internal/core/config"
	"github.com/guerrero-dev/guerrero/internal/core/ecs"
	"github.com/guerrero-dev/guerrero/internal/core/layout"
	"github.com/guerrero-dev/guerrero/internal/core/memory"
	"github.com/guerrero-dev/guerrero/internal/core/observability/log"
	"github.com/guerrero-dev/guerrero/internal/core/view"
	"github.com/guerrero-dev/guerrero/pkg/sequence"
)

// Backend is the archetype-based ecs.StorageBackend. It owns entity id
// allocation, archetype membership and the query cache; the world layers
// relationships and events over it through the observer callbacks.
//
// Backends are single-threaded, matching the world that drives them.
type Backend struct {
	log     log.Log
	arena   *memory.Arena
	layouts *layout.Registry
	rels    *ecs.RelationshipRegistry
	ticks   *ecs.Ticks
	obs     ecs.StorageObserver

	archetypes []*archetype
	byKey      map[string]*archetype
	// empty holds entities with no components; it exists from the
	// start so creation never allocates.
	empty *archetype

	// metas is indexed by entity id; id 0 stays unused.
	metas   []entityMeta
	freeIDs []ecs.Entity

	compTypes map[string]*compType
	// compIndex maps a component type to the live entities holding it.
	compIndex map[string]map[ecs.Entity]struct{}

	cache *queryCache
}

type entityMeta struct {
	arch  *archetype
	row   int
	alive bool
}

// overwriteRemoval is a pending in-place component replacement: the
// capture of the old value, reported to the observer before the re-add
// is announced.
type overwriteRemoval struct {
	ct  *compType
	cap memory.Ptr
}

func New(arena *memory.Arena, layouts *layout.Registry, rels *ecs.RelationshipRegistry,
	ticks *ecs.Ticks, cfg *config.Config, logger log.Log) *Backend {
	if logger == nil {
		logger = log.Discard()
	}
	b := &Backend{
		log:       logger.With(log.String("component", "archetype")),
		arena:     arena,
		layouts:   layouts,
		rels:      rels,
		ticks:     ticks,
		byKey:     make(map[string]*archetype),
		metas:     make([]entityMeta, 1, cfg.InitialEntityCapacity+1),
		compTypes: make(map[string]*compType),
		compIndex: make(map[string]map[ecs.Entity]struct{}),
		cache:     newQueryCache(),
	}
	b.empty = b.newArchetype(nil)
	return b
}

func (b *Backend) SetObserver(obs ecs.StorageObserver) { b.obs = obs }

// CacheStats exposes query cache counters.
func (b *Backend) CacheStats() CacheStats { return b.cache.stats() }

// typeFor resolves and caches the backend view of a component type.
func (b *Backend) typeFor(name string) (*compType, error) {
	if ct, ok := b.compTypes[name]; ok {
		return ct, nil
	}
	lay, err := b.layouts.Layout(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ecs.ErrComponentUnknown, name, err)
	}
	info, err := b.layouts.Resolve(name)
	if err != nil {
		return nil, err
	}
	ct := &compType{name: name, lay: lay, info: info, ops: view.OpsFor(info)}
	b.compTypes[name] = ct
	return ct, nil
}

// newArchetype builds the archetype for a sorted component name set.
// Every name must already have a cached compType.
func (b *Backend) newArchetype(names []string) *archetype {
	ar := &archetype{
		key:    archetypeKey(names),
		names:  names,
		byName: make(map[string]int, len(names)),
	}
	for i, n := range names {
		ct := b.compTypes[n]
		ar.byName[n] = i
		ar.columns = append(ar.columns, column{typ: ct, stride: ct.lay.TotalSize})
	}
	b.archetypes = append(b.archetypes, ar)
	b.byKey[ar.key] = ar
	return ar
}

func (b *Backend) archetypeFor(names []string) *archetype {
	key := archetypeKey(names)
	if ar, ok := b.byKey[key]; ok {
		return ar
	}
	return b.newArchetype(names)
}

// capture snapshots a component's fixed region into a fresh arena
// allocation. Dynamic payloads are not copied; the snapshot takes over
// their ownership, so the source region must be zeroed or overwritten
// afterwards, never freed through.
func (b *Backend) capture(ct *compType, off memory.Ptr) (memory.Ptr, error) {
	cp := b.arena.Allocate(ct.lay.TotalSize, "capture", memory.NullPtr)
	if cp == memory.NullPtr {
		return memory.NullPtr, view.ErrOutOfMemory
	}
	b.arena.Copy(cp, off, ct.lay.TotalSize)
	return cp, nil
}

// freeCapture releases a snapshot and the dynamic payloads it owns.
func (b *Backend) freeCapture(ct *compType, cp memory.Ptr) {
	ct.ops.Free(b.arena, cp)
	b.arena.Free(cp)
}

func (b *Backend) indexAdd(name string, id ecs.Entity) {
	set, ok := b.compIndex[name]
	if !ok {
		set = make(map[ecs.Entity]struct{})
		b.compIndex[name] = set
	}
	set[id] = struct{}{}
}

func (b *Backend) indexRemove(name string, id ecs.Entity) {
	if set, ok := b.compIndex[name]; ok {
		delete(set, id)
	}
}

// Entity lifecycle.

func (b *Backend) EntityCreate() (ecs.Entity, error) {
	var id ecs.Entity
	if n := len(b.freeIDs); n > 0 {
		id = b.freeIDs[n-1]
		b.freeIDs = b.freeIDs[:n-1]
	} else {
		id = ecs.Entity(len(b.metas))
		b.metas = append(b.metas, entityMeta{})
	}
	row, err := b.empty.push(b.arena, id)
	if err != nil {
		b.freeIDs = append(b.freeIDs, id)
		return ecs.InvalidEntity, err
	}
	b.metas[id] = entityMeta{arch: b.empty, row: row, alive: true}
	if b.obs != nil {
		b.obs.EntityCreated(id)
	}
	return id, nil
}

func (b *Backend) EntityIsAlive(id ecs.Entity) bool {
	return int(id) < len(b.metas) && b.metas[id].alive
}

// EntitySpawn creates the definition's subtree depth-first. An error
// partway leaves the already-spawned part in place.
func (b *Backend) EntitySpawn(def ecs.EntityDefinition, parent ecs.Entity) (ecs.Entity, error) {
	id, err := b.EntityCreate()
	if err != nil {
		return ecs.InvalidEntity, err
	}
	if len(def.Components) > 0 {
		if err := b.ComponentAddMultiple(id, def.Components...); err != nil {
			return id, err
		}
	}
	if parent != ecs.InvalidEntity {
		if err := b.ParentSet(id, parent); err != nil {
			return id, err
		}
	}
	for _, child := range def.Children {
		if _, err := b.EntitySpawn(child, id); err != nil {
			return id, err
		}
	}
	return id, nil
}

// EntityDelete removes the entity and everything linked-spawned to it.
// The removed components are snapshotted first so relationship cleanup
// and the cascade can still read them after the rows are gone.
func (b *Backend) EntityDelete(id ecs.Entity, visited map[ecs.Entity]struct{}) error {
	if _, seen := visited[id]; seen {
		return nil
	}
	if !b.EntityIsAlive(id) {
		return nil
	}
	visited[id] = struct{}{}

	meta := b.metas[id]
	ar := meta.arch

	captures := make([]overwriteRemoval, 0, len(ar.columns))
	for i := range ar.columns {
		c := &ar.columns[i]
		cp, err := b.capture(c.typ, c.cell(meta.row))
		if err != nil {
			for _, prev := range captures {
				b.arena.Free(prev.cap)
			}
			return err
		}
		captures = append(captures, overwriteRemoval{ct: c.typ, cap: cp})
	}

	if moved := ar.removeRow(b.arena, meta.row); moved != ecs.InvalidEntity {
		b.metas[moved].row = meta.row
	}
	b.metas[id] = entityMeta{}
	for _, c := range captures {
		b.indexRemove(c.ct.name, id)
		b.ticks.Touch(c.ct.name)
	}

	if b.obs != nil {
		for _, c := range captures {
			b.obs.ComponentRemoved(id, c.ct.name, c.cap, false)
		}
	}

	// Cascade: a linked-spawn target dying takes its sources with it.
	for _, c := range captures {
		rm := b.rels.ByTarget(c.ct.name)
		if rm == nil || !rm.LinkedSpawn {
			continue
		}
		for _, src := range b.capturedSources(rm, c.cap) {
			if err := b.EntityDelete(src, visited); err != nil {
				b.log.Error("linked spawn cascade failed",
					log.Uint32("source", uint32(src)), log.Error(err))
			}
		}
	}

	for _, c := range captures {
		b.freeCapture(c.ct, c.cap)
	}

	b.freeIDs = append(b.freeIDs, id)
	if b.obs != nil {
		b.obs.EntityDeleted(id)
	}
	return nil
}

// capturedSources reads the source id set out of a captured target-side
// relationship component.
func (b *Backend) capturedSources(rm *ecs.RelationshipMetadata, cp memory.Ptr) []ecs.Entity {
	ct, err := b.typeFor(rm.TargetType)
	if err != nil {
		return nil
	}
	prop, ok := ct.lay.Property(rm.SourcesField)
	if !ok {
		return nil
	}
	set := view.NewSet(b.arena, cp+memory.Ptr(prop.Offset), prop.Binary.Element)
	return sequence.Map(set.ItemsU32(), func(v uint32) ecs.Entity { return ecs.Entity(v) })
}

// Component operations.

func (b *Backend) ComponentIsRegistered(name string) bool {
	return b.layouts.IsRegistered(name)
}

func (b *Backend) ComponentValidateDependencies(names []string) error {
	var missing []string
	for _, n := range names {
		if !b.layouts.IsRegistered(n) {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ecs.ErrComponentUnknown, missing)
	}
	return nil
}

func (b *Backend) ComponentHas(id ecs.Entity, name string) bool {
	if !b.EntityIsAlive(id) {
		return false
	}
	return b.metas[id].arch.has(name)
}

func (b *Backend) ComponentGet(id ecs.Entity, name string) (memory.Ptr, bool) {
	if !b.EntityIsAlive(id) {
		return memory.NullPtr, false
	}
	meta := b.metas[id]
	c := meta.arch.col(name)
	if c == nil {
		return memory.NullPtr, false
	}
	return c.cell(meta.row), true
}

func (b *Backend) ComponentGetMultiple(id ecs.Entity, names ...string) (map[string]memory.Ptr, error) {
	if !b.EntityIsAlive(id) {
		return nil, ecs.ErrEntityNotFound
	}
	out := make(map[string]memory.Ptr, len(names))
	for _, n := range names {
		off, ok := b.ComponentGet(id, n)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ecs.ErrComponentNotFound, n)
		}
		out[n] = off
	}
	return out, nil
}

func (b *Backend) ComponentGetAll(id ecs.Entity) map[string]memory.Ptr {
	if !b.EntityIsAlive(id) {
		return nil
	}
	meta := b.metas[id]
	out := make(map[string]memory.Ptr, len(meta.arch.names))
	for _, n := range meta.arch.names {
		out[n] = meta.arch.col(n).cell(meta.row)
	}
	return out
}

// ComponentAddMultiple adds the named components in one structural
// change. Components the entity already holds are replaced in place:
// the old value is captured, reported as an overwrite removal, and the
// slot re-initialized. New components migrate the entity to its new
// archetype with one row copy.
func (b *Backend) ComponentAddMultiple(id ecs.Entity, comps ...ecs.ComponentInit) error {
	if !b.EntityIsAlive(id) {
		return ecs.ErrEntityNotFound
	}
	if len(comps) == 0 {
		return nil
	}

	var added []ecs.ComponentInit
	var replaced []ecs.ComponentInit
	seen := make(map[string]struct{}, len(comps))
	for _, c := range comps {
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("component %s named twice in one add", c.Name)
		}
		seen[c.Name] = struct{}{}
		if _, err := b.typeFor(c.Name); err != nil {
			return err
		}
		if b.metas[id].arch.has(c.Name) {
			replaced = append(replaced, c)
		} else {
			added = append(added, c)
		}
	}

	var initErrs []error
	overwrites := make([]overwriteRemoval, 0, len(replaced))

	for _, c := range replaced {
		meta := b.metas[id]
		ct := b.compTypes[c.Name]
		off := meta.arch.col(c.Name).cell(meta.row)
		cp, err := b.capture(ct, off)
		if err != nil {
			return err
		}
		b.arena.Zero(off, ct.lay.TotalSize)
		if c.Init != nil {
			if err := c.Init(b.arena, off); err != nil {
				initErrs = append(initErrs, fmt.Errorf("init %s: %w", c.Name, err))
			}
		}
		overwrites = append(overwrites, overwriteRemoval{ct: ct, cap: cp})
		b.ticks.Touch(c.Name)
	}

	if len(added) > 0 {
		meta := b.metas[id]
		src := meta.arch

		destNames := make([]string, 0, len(src.names)+len(added))
		destNames = append(destNames, src.names...)
		for _, c := range added {
			destNames = append(destNames, c.Name)
		}
		sort.Strings(destNames)

		dest := b.archetypeFor(destNames)
		newRow, err := dest.push(b.arena, id)
		if err != nil {
			return err
		}
		for _, n := range src.names {
			b.arena.Copy(dest.col(n).cell(newRow), src.col(n).cell(meta.row), src.col(n).stride)
		}
		moved := src.removeRow(b.arena, meta.row)
		if moved != ecs.InvalidEntity {
			b.metas[moved].row = meta.row
		}
		b.metas[id] = entityMeta{arch: dest, row: newRow, alive: true}

		for _, c := range added {
			b.indexAdd(c.Name, id)
			b.ticks.Touch(c.Name)
			if c.Init != nil {
				off := dest.col(c.Name).cell(newRow)
				if err := c.Init(b.arena, off); err != nil {
					initErrs = append(initErrs, fmt.Errorf("init %s: %w", c.Name, err))
				}
			}
		}
	}

	if b.obs != nil {
		for _, ow := range overwrites {
			b.obs.ComponentRemoved(id, ow.ct.name, ow.cap, true)
		}
	}
	for _, ow := range overwrites {
		b.freeCapture(ow.ct, ow.cap)
	}
	if b.obs != nil {
		for _, c := range replaced {
			b.obs.ComponentAdded(id, c.Name)
		}
		for _, c := range added {
			b.obs.ComponentAdded(id, c.Name)
		}
	}

	return errors.Join(initErrs...)
}

// ComponentRemoveMultiple removes the named components the entity
// actually holds; absent names are ignored. Removed values are captured
// for the observer, then freed.
func (b *Backend) ComponentRemoveMultiple(id ecs.Entity, names ...string) error {
	if !b.EntityIsAlive(id) {
		return ecs.ErrEntityNotFound
	}
	meta := b.metas[id]
	src := meta.arch

	var present []string
	for _, n := range names {
		if src.has(n) {
			present = append(present, n)
		}
	}
	if len(present) == 0 {
		return nil
	}

	drop := make(map[string]struct{}, len(present))
	captures := make([]overwriteRemoval, 0, len(present))
	for _, n := range present {
		drop[n] = struct{}{}
		ct := b.compTypes[n]
		cp, err := b.capture(ct, src.col(n).cell(meta.row))
		if err != nil {
			for _, prev := range captures {
				b.arena.Free(prev.cap)
			}
			return err
		}
		captures = append(captures, overwriteRemoval{ct: ct, cap: cp})
	}

	destNames := make([]string, 0, len(src.names)-len(present))
	for _, n := range src.names {
		if _, gone := drop[n]; !gone {
			destNames = append(destNames, n)
		}
	}
	dest := b.archetypeFor(destNames)
	newRow, err := dest.push(b.arena, id)
	if err != nil {
		for _, c := range captures {
			b.arena.Free(c.cap)
		}
		return err
	}
	for _, n := range destNames {
		b.arena.Copy(dest.col(n).cell(newRow), src.col(n).cell(meta.row), src.col(n).stride)
	}
	moved := src.removeRow(b.arena, meta.row)
	if moved != ecs.InvalidEntity {
		b.metas[moved].row = meta.row
	}
	b.metas[id] = entityMeta{arch: dest, row: newRow, alive: true}
	for _, n := range present {
		b.indexRemove(n, id)
		b.ticks.Touch(n)
	}

	if b.obs != nil {
		for _, c := range captures {
			b.obs.ComponentRemoved(id, c.ct.name, c.cap, false)
		}
	}
	for _, c := range captures {
		b.freeCapture(c.ct, c.cap)
	}
	return nil
}

// Lookup.

// EntityFind returns the lowest-id live entity holding every named
// component.
func (b *Backend) EntityFind(components []string) (ecs.Entity, bool) {
	found := ecs.InvalidEntity
	for _, id := range b.candidates(components) {
		if b.holdsAll(id, components) && (found == ecs.InvalidEntity || id < found) {
			found = id
		}
	}
	return found, found != ecs.InvalidEntity
}

// EntityFindMultiple returns every live entity holding all named
// components, ascending by id.
func (b *Backend) EntityFindMultiple(components []string) []ecs.Entity {
	var out []ecs.Entity
	for _, id := range b.candidates(components) {
		if b.holdsAll(id, components) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// candidates returns the members of the smallest component index among
// the named components, the cheapest driver for an intersection.
func (b *Backend) candidates(components []string) []ecs.Entity {
	if len(components) == 0 {
		return nil
	}
	var smallest map[ecs.Entity]struct{}
	for _, n := range components {
		set := b.compIndex[n]
		if len(set) == 0 {
			return nil
		}
		if smallest == nil || len(set) < len(smallest) {
			smallest = set
		}
	}
	out := make([]ecs.Entity, 0, len(smallest))
	for id := range smallest {
		out = append(out, id)
	}
	return out
}

func (b *Backend) holdsAll(id ecs.Entity, components []string) bool {
	if !b.EntityIsAlive(id) {
		return false
	}
	ar := b.metas[id].arch
	for _, n := range components {
		if !ar.has(n) {
			return false
		}
	}
	return true
}

// EntityView answers a with/without filter through the query cache. A
// cached result is reused until a write touches any involved component
// type; entities that died since validation are skipped on replay.
func (b *Backend) EntityView(with, without []string) []ecs.Entity {
	sig, w, wo := querySignature(with, without)

	entry := b.cache.entries[sig]
	if entry != nil && !b.ticks.AnyWrittenAtOrAfter(entry.involved, entry.validatedAt) {
		b.cache.hits++
		return b.replay(entry)
	}
	b.cache.misses++

	if entry == nil {
		involved := make([]string, 0, len(w)+len(wo))
		involved = append(involved, w...)
		involved = append(involved, wo...)
		entry = &cacheEntry{with: w, without: wo, involved: involved}
		b.cache.entries[sig] = entry
	}
	entry.entities = entry.entities[:0]
	for _, ar := range b.archetypes {
		if ar.matches(entry.with, entry.without) {
			entry.entities = append(entry.entities, ar.entities...)
		}
	}
	entry.validatedAt = b.ticks.World()
	return b.replay(entry)
}

func (b *Backend) ComponentView(name string, with, without []string) []ecs.Entity {
	full := make([]string, 0, len(with)+1)
	full = append(full, name)
	full = append(full, with...)
	return b.EntityView(full, without)
}

func (b *Backend) replay(entry *cacheEntry) []ecs.Entity {
	out := make([]ecs.Entity, 0, len(entry.entities))
	for _, id := range entry.entities {
		if !b.EntityIsAlive(id) {
			b.log.Debug("query cache skipping deleted entity",
				log.Uint32("entity", uint32(id)))
			continue
		}
		out = append(out, id)
	}
	return out
}

// Parent/child, expressed through the registered parent relationship
// pair.

func (b *Backend) ParentSet(child, parent ecs.Entity) error {
	pp := b.rels.ParentPair()
	if pp == nil {
		return ecs.ErrNoParentPair
	}
	if child == parent {
		return fmt.Errorf("entity %d cannot parent itself", child)
	}
	if !b.EntityIsAlive(child) || !b.EntityIsAlive(parent) {
		return ecs.ErrEntityNotFound
	}
	ct, err := b.typeFor(pp.RelationshipType)
	if err != nil {
		return err
	}
	prop, ok := ct.lay.Property(pp.TargetField)
	if !ok {
		return fmt.Errorf("%w: %s missing %q", ecs.ErrRelationshipUnknown, pp.RelationshipType, pp.TargetField)
	}
	return b.ComponentAddMultiple(child, ecs.ComponentInit{
		Name: pp.RelationshipType,
		Init: func(a *memory.Arena, off memory.Ptr) error {
			a.PutU32(off+memory.Ptr(prop.Offset), uint32(parent))
			return nil
		},
	})
}

func (b *Backend) ParentGet(child ecs.Entity) (ecs.Entity, bool) {
	pp := b.rels.ParentPair()
	if pp == nil {
		return ecs.InvalidEntity, false
	}
	off, ok := b.ComponentGet(child, pp.RelationshipType)
	if !ok {
		return ecs.InvalidEntity, false
	}
	ct := b.compTypes[pp.RelationshipType]
	prop, ok := ct.lay.Property(pp.TargetField)
	if !ok {
		return ecs.InvalidEntity, false
	}
	parent := ecs.Entity(b.arena.U32(off + memory.Ptr(prop.Offset)))
	return parent, parent != ecs.InvalidEntity
}

func (b *Backend) ChildrenGet(parent ecs.Entity) []ecs.Entity {
	pp := b.rels.ParentPair()
	if pp == nil {
		return nil
	}
	off, ok := b.ComponentGet(parent, pp.TargetType)
	if !ok {
		return nil
	}
	ct := b.compTypes[pp.TargetType]
	prop, ok := ct.lay.Property(pp.SourcesField)
	if !ok {
		return nil
	}
	set := view.NewSet(b.arena, off+memory.Ptr(prop.Offset), prop.Binary.Element)
	raw := sequence.SortedCopy(set.ItemsU32())
	return sequence.Map(raw, func(v uint32) ecs.Entity { return ecs.Entity(v) })
}

// Cleanup drops every archetype and entity. Arena memory is not
// reclaimed piecemeal; the arena is torn down with the world.
func (b *Backend) Cleanup() {
	b.archetypes = nil
	b.byKey = make(map[string]*archetype)
	b.metas = b.metas[:1]
	b.freeIDs = nil
	b.compIndex = make(map[string]map[ecs.Entity]struct{})
	b.cache.clear()
	b.empty = b.newArchetype(nil)
}
