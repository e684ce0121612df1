package ecs

import (
	"fmt"

	"github.com/guerrero-dev/guerrero/internal/core/layout"
	"github.com/guerrero-dev/guerrero/internal/core/memory"
	"github.com/guerrero-dev/guerrero/internal/core/observability/log"
	"github.com/guerrero-dev/guerrero/internal/core/view"
)

// Built-in parent/child relationship pair, registered on every world.
const (
	ChildOfComponent  = "child_of"
	ChildrenComponent = "children"
	TargetFieldKey    = "target"
	SourcesFieldKey   = "sources"
)

// RelationshipMetadata declares a bidirectional link between two
// component types. The relationship component lives on the source
// entity and names one target in TargetField; the target component
// lives on the target entity and mirrors every source in SourcesField.
// The engine maintains the mirror automatically.
type RelationshipMetadata struct {
	// RelationshipType is the source-side component; its TargetField
	// property is a u32 entity id.
	RelationshipType string
	TargetField      string
	// TargetType is the target-side component; its SourcesField
	// property is a set<u32> of entity ids.
	TargetType   string
	SourcesField string
	// LinkedSpawn cascades deletion: when the target dies, every
	// remaining source dies with it.
	LinkedSpawn bool
}

// RelationshipRegistry indexes relationship metadata both ways. A
// component type can appear in at most one relationship, on one side.
type RelationshipRegistry struct {
	byRelationship map[string]*RelationshipMetadata
	byTarget       map[string]*RelationshipMetadata
	parent         *RelationshipMetadata
}

func NewRelationshipRegistry() *RelationshipRegistry {
	return &RelationshipRegistry{
		byRelationship: make(map[string]*RelationshipMetadata),
		byTarget:       make(map[string]*RelationshipMetadata),
	}
}

func (r *RelationshipRegistry) Register(meta RelationshipMetadata) error {
	if _, ok := r.byRelationship[meta.RelationshipType]; ok {
		return fmt.Errorf("%w: %s", ErrRelationshipConflict, meta.RelationshipType)
	}
	if _, ok := r.byTarget[meta.TargetType]; ok {
		return fmt.Errorf("%w: %s", ErrRelationshipConflict, meta.TargetType)
	}
	m := meta
	r.byRelationship[m.RelationshipType] = &m
	r.byTarget[m.TargetType] = &m
	return nil
}

// ByRelationship returns the metadata whose source-side component is
// name, or nil.
func (r *RelationshipRegistry) ByRelationship(name string) *RelationshipMetadata {
	return r.byRelationship[name]
}

// ByTarget returns the metadata whose target-side component is name,
// or nil.
func (r *RelationshipRegistry) ByTarget(name string) *RelationshipMetadata {
	return r.byTarget[name]
}

// ParentPair returns the metadata registered as the world's parent
// relationship, or nil.
func (r *RelationshipRegistry) ParentPair() *RelationshipMetadata {
	return r.parent
}

func (r *RelationshipRegistry) markParent(meta *RelationshipMetadata) {
	r.parent = meta
}

// RegisterRelationship validates the pair against registered layouts
// and installs it. TargetField must be a u32 property of the
// relationship component, SourcesField a set<u32> property of the
// target component.
func (w *World) RegisterRelationship(meta RelationshipMetadata) error {
	relLay, err := w.layouts.Layout(meta.RelationshipType)
	if err != nil {
		return fmt.Errorf("relationship %s: %w", meta.RelationshipType, err)
	}
	tf, ok := relLay.Property(meta.TargetField)
	if !ok {
		return fmt.Errorf("relationship %s: no field %q", meta.RelationshipType, meta.TargetField)
	}
	if tf.Binary.Kind != layout.KindPrimitive || tf.Binary.Size != 4 || tf.Binary.Signed || tf.Binary.Float {
		return fmt.Errorf("relationship %s: field %q must be u32", meta.RelationshipType, meta.TargetField)
	}
	tgtLay, err := w.layouts.Layout(meta.TargetType)
	if err != nil {
		return fmt.Errorf("relationship target %s: %w", meta.TargetType, err)
	}
	sf, ok := tgtLay.Property(meta.SourcesField)
	if !ok {
		return fmt.Errorf("relationship target %s: no field %q", meta.TargetType, meta.SourcesField)
	}
	if sf.Binary.Kind != layout.KindDynamicSet || sf.Binary.Element == nil || sf.Binary.Element.Size != 4 {
		return fmt.Errorf("relationship target %s: field %q must be set<u32>", meta.TargetType, meta.SourcesField)
	}
	return w.relationships.Register(meta)
}

// registerParentPair installs the built-in child_of/children schemas
// and marks them as the parent relationship.
func (w *World) registerParentPair() error {
	if !w.layouts.IsRegistered(ChildOfComponent) {
		err := w.layouts.RegisterStruct(ChildOfComponent, []layout.FieldMeta{
			{Key: TargetFieldKey, Type: "u32"},
		})
		if err != nil {
			return err
		}
	}
	if !w.layouts.IsRegistered(ChildrenComponent) {
		err := w.layouts.RegisterStruct(ChildrenComponent, []layout.FieldMeta{
			{Key: SourcesFieldKey, Type: "set<u32>"},
		})
		if err != nil {
			return err
		}
	}
	meta := RelationshipMetadata{
		RelationshipType: ChildOfComponent,
		TargetField:      TargetFieldKey,
		TargetType:       ChildrenComponent,
		SourcesField:     SourcesFieldKey,
		LinkedSpawn:      true,
	}
	if err := w.RegisterRelationship(meta); err != nil {
		return err
	}
	w.relationships.markParent(w.relationships.ByRelationship(ChildOfComponent))
	return nil
}

type pendingKey struct {
	source Entity
	rel    string
}

// relationshipTarget reads the target id out of a relationship
// component located at off.
func (w *World) relationshipTarget(meta *RelationshipMetadata, off memory.Ptr) Entity {
	lay, err := w.layouts.Layout(meta.RelationshipType)
	if err != nil {
		return InvalidEntity
	}
	prop, ok := lay.Property(meta.TargetField)
	if !ok {
		return InvalidEntity
	}
	return Entity(w.arena.U32(off + memory.Ptr(prop.Offset)))
}

// sourcesView opens the sources set of a target component located at
// off.
func (w *World) sourcesView(meta *RelationshipMetadata, off memory.Ptr) (view.Set, bool) {
	lay, err := w.layouts.Layout(meta.TargetType)
	if err != nil {
		return view.Set{}, false
	}
	prop, ok := lay.Property(meta.SourcesField)
	if !ok {
		return view.Set{}, false
	}
	return view.NewSet(w.arena, off+memory.Ptr(prop.Offset), prop.Binary.Element), true
}

// onRelationshipAdded runs after a relationship component landed on
// source. It validates the target, mirrors the source into the
// target's sources set, and raises the relationship notifications.
// A dead or unset target voids the add: the component is removed again
// and nothing is mirrored.
func (w *World) onRelationshipAdded(source Entity, meta *RelationshipMetadata) {
	off, ok := w.storage.ComponentGet(source, meta.RelationshipType)
	if !ok {
		return
	}
	target := w.relationshipTarget(meta, off)

	key := pendingKey{source: source, rel: meta.RelationshipType}
	oldTarget := w.pendingOldTargets[key]
	delete(w.pendingOldTargets, key)

	if target == InvalidEntity || !w.storage.EntityIsAlive(target) {
		w.log.Warn("relationship add voided, target not alive",
			log.String("relationship", meta.RelationshipType),
			log.Uint32("source", uint32(source)),
			log.Uint32("target", uint32(target)))
		_ = w.storage.ComponentRemoveMultiple(source, meta.RelationshipType)
		return
	}

	if !w.storage.ComponentHas(target, meta.TargetType) {
		if err := w.storage.ComponentAddMultiple(target, Component(meta.TargetType)); err != nil {
			w.log.Error("relationship target component add failed",
				log.String("component", meta.TargetType), log.Error(err))
			return
		}
	}
	tOff, ok := w.storage.ComponentGet(target, meta.TargetType)
	if !ok {
		return
	}
	set, ok := w.sourcesView(meta, tOff)
	if !ok {
		return
	}
	if _, err := set.Add(view.BytesKey(view.U32Bytes(uint32(source)))); err != nil {
		w.log.Error("relationship source mirror failed", log.Error(err))
		return
	}
	w.ticks.Touch(meta.TargetType)

	w.publish(EventRelationshipSourceAdded, target, meta.RelationshipType, source)
	w.publish(EventRelationshipSet, source, meta.RelationshipType, oldTarget, target)
	if w.relationships.ParentPair() == meta {
		w.publish(EventParentSet, source, oldTarget, target)
		w.publish(EventChildAdded, target, source)
	}
}

// onRelationshipRemoved runs after a relationship component left
// source; captured is the backend's copy of the removed component. It
// unmirrors the source from the target's sources set and, when the set
// empties, removes the now-unreferenced target component. On an
// overwrite removal the old target is stashed so the follow-up add can
// report it, and no cleared notification fires.
func (w *World) onRelationshipRemoved(source Entity, meta *RelationshipMetadata, captured memory.Ptr, overwrite bool) {
	target := w.relationshipTarget(meta, captured)
	if overwrite {
		w.pendingOldTargets[pendingKey{source: source, rel: meta.RelationshipType}] = target
	}

	if target != InvalidEntity && w.storage.EntityIsAlive(target) {
		if tOff, ok := w.storage.ComponentGet(target, meta.TargetType); ok {
			if set, ok := w.sourcesView(meta, tOff); ok {
				if set.Delete(view.BytesKey(view.U32Bytes(uint32(source)))) {
					w.ticks.Touch(meta.TargetType)
					w.publish(EventRelationshipSourceRemoved, target, meta.RelationshipType, source)
					if w.relationships.ParentPair() == meta {
						w.publish(EventChildRemoved, target, source)
					}
				}
				if set.Len() == 0 {
					if err := w.storage.ComponentRemoveMultiple(target, meta.TargetType); err != nil {
						w.log.Error("empty relationship target remove failed",
							log.String("component", meta.TargetType), log.Error(err))
					}
				}
			}
		}
	}

	if !overwrite {
		w.publish(EventRelationshipSet, source, meta.RelationshipType, target, InvalidEntity)
		if w.relationships.ParentPair() == meta {
			w.publish(EventParentSet, source, target, InvalidEntity)
		}
	}
}
