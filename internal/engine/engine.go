// Package engine assembles a ready-to-use world: arena, layout
// registry, archetype backend and the world itself, wired together from
// one config.
package engine

import (
	"github.com/guerrero-dev/guerrero/internal/core/archetype"
	"github.com/guerrero-dev/guerrero/internal/core/config"
	"github.com/guerrero-dev/guerrero/internal/core/ecs"
	"github.com/guerrero-dev/guerrero/internal/core/layout"
	"github.com/guerrero-dev/guerrero/internal/core/memory"
	"github.com/guerrero-dev/guerrero/internal/core/observability/log"
)

// New builds a world from the config. A nil config uses defaults; a nil
// logger gets one at the config's level.
func New(cfg *config.Config, logger log.Log) (*ecs.World, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(log.ParseLevel(cfg.LogLevel))
	}

	arena := memory.NewArena(cfg.ArenaSize, logger)
	layouts := layout.NewRegistry(logger)
	rels := ecs.NewRelationshipRegistry()
	ticks := ecs.NewTicks()
	backend := archetype.New(arena, layouts, rels, ticks, cfg, logger)

	return ecs.NewWorld(ecs.Options{
		Config:        cfg,
		Logger:        logger,
		Arena:         arena,
		Layouts:       layouts,
		Relationships: rels,
		Ticks:         ticks,
		Storage:       backend,
	})
}
