package ecs

import "errors"

var (
	ErrEntityNotFound       = errors.New("ecs: entity not found or deleted")
	ErrComponentNotFound    = errors.New("ecs: component not present on entity")
	ErrComponentUnknown     = errors.New("ecs: component type not registered")
	ErrRelationshipUnknown  = errors.New("ecs: relationship not registered")
	ErrRelationshipConflict = errors.New("ecs: relationship already registered")
	ErrPluginDependency     = errors.New("ecs: plugin dependency not satisfied")
	ErrPluginConflict       = errors.New("ecs: plugin already added")
	ErrNoParentPair         = errors.New("ecs: parent relationship pair not registered")
	ErrWorldClosed          = errors.New("ecs: world has been cleaned up")
)
