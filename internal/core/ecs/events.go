package ecs

// Lifecycle event types published on the world's bus. Handlers receive
// positional args as documented per constant.
const (
	// EventEntityCreated args: Entity.
	EventEntityCreated = "entity_created"
	// EventEntityDeleted args: Entity.
	EventEntityDeleted = "entity_deleted"

	// EventComponentAdded args: Entity, component name.
	EventComponentAdded = "component_added"
	// EventComponentRemoved args: Entity, component name.
	EventComponentRemoved = "component_removed"

	// EventRelationshipSet args: source Entity, relationship name,
	// old target Entity (InvalidEntity when none), new target Entity
	// (InvalidEntity when cleared).
	EventRelationshipSet = "relationship_set"
	// EventRelationshipSourceAdded args: target Entity, relationship
	// name, source Entity.
	EventRelationshipSourceAdded = "relationship_source_added"
	// EventRelationshipSourceRemoved args: target Entity, relationship
	// name, source Entity.
	EventRelationshipSourceRemoved = "relationship_source_removed"

	// EventParentSet args: child Entity, old parent, new parent.
	EventParentSet = "entity_parent_set"
	// EventChildAdded args: parent Entity, child Entity.
	EventChildAdded = "entity_child_added"
	// EventChildRemoved args: parent Entity, child Entity.
	EventChildRemoved = "entity_child_removed"

	// EventSystemAdded args: schedule, system name.
	EventSystemAdded = "system_added"
	// EventSystemRemoved args: schedule, system name.
	EventSystemRemoved = "system_removed"

	// EventPluginAdded args: plugin name.
	EventPluginAdded = "plugin_added"
	// EventPluginRemoved args: plugin name.
	EventPluginRemoved = "plugin_removed"

	// EventScheduleStarted args: schedule.
	EventScheduleStarted = "schedule_started"
	// EventScheduleEnded args: schedule.
	EventScheduleEnded = "schedule_ended"

	// EventWorldInitialized has no args.
	EventWorldInitialized = "world_initialized"
	// EventWorldCleanup has no args.
	EventWorldCleanup = "world_cleanup"
)
