// Command profile runs a synthetic world workload under pprof
// profiling: schema registration, bulk spawning, per-tick mutation
// through systems, queries and cascaded deletion.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pkg/profile"

	"github.com/guerrero-dev/guerrero/internal/core/config"
	"github.com/guerrero-dev/guerrero/internal/core/ecs"
	"github.com/guerrero-dev/guerrero/internal/core/memory"
	"github.com/guerrero-dev/guerrero/internal/engine"
)

var schema = []byte(`
structs:
  - name: position
    fields:
      - key: x
        type: f32
      - key: y
        type: f32
  - name: velocity
    fields:
      - key: dx
        type: f32
      - key: dy
        type: f32
  - name: status
    fields:
      - key: health
        type: u32
        bits: 10
      - key: stunned
        type: bool
      - key: team
        type: u32
        bits: 3
  - name: inventory
    fields:
      - key: items
        type: arr<u32>
      - key: label
        type: str
`)

type movement struct {
	ecs.BaseSystem
}

func (movement) Name() string         { return "movement" }
func (movement) Components() []string { return []string{"velocity"} }

func (movement) Update(w *ecs.World) error {
	a := w.Arena()
	pos, err := w.Layouts().Layout("position")
	if err != nil {
		return err
	}
	vel, err := w.Layouts().Layout("velocity")
	if err != nil {
		return err
	}
	px, _ := pos.Property("x")
	py, _ := pos.Property("y")
	vx, _ := vel.Property("dx")
	vy, _ := vel.Property("dy")

	dt := float32(w.DeltaTime())
	for _, id := range w.EntityView([]string{"position", "velocity"}, nil) {
		p, _ := w.ComponentGet(id, "position")
		v, _ := w.ComponentGet(id, "velocity")
		a.PutF32(p+memory.Ptr(px.Offset), a.F32(p+memory.Ptr(px.Offset))+a.F32(v+memory.Ptr(vx.Offset))*dt)
		a.PutF32(p+memory.Ptr(py.Offset), a.F32(p+memory.Ptr(py.Offset))+a.F32(v+memory.Ptr(vy.Offset))*dt)
	}
	w.Touch("position")
	return nil
}

func run() error {
	entities := flag.Int("n", 10000, "entities to spawn")
	ticks := flag.Int("ticks", 600, "fixed updates to run")
	mode := flag.String("profile", "cpu", "profile mode: cpu or mem")
	configPath := flag.String("config", "", "optional config file")
	schemaPath := flag.String("schema", "", "extra schema declaration file to register")
	flag.Parse()

	switch *mode {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(".")).Stop()
	default:
		return fmt.Errorf("unknown profile mode %q", *mode)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}

	w, err := engine.New(cfg, nil)
	if err != nil {
		return err
	}
	defer w.Cleanup()

	if err := w.LoadSchema(schema); err != nil {
		return err
	}
	// Extra declarations widen the registry so registration and layout
	// work show up in the profile at a realistic scale.
	if *schemaPath != "" {
		if err := w.LoadSchemaFile(*schemaPath); err != nil {
			return err
		}
	}
	w.AddSystem(ecs.ScheduleFixedUpdate, movement{})
	if err := w.Initialize(); err != nil {
		return err
	}

	velLay, err := w.Layouts().Layout("velocity")
	if err != nil {
		return err
	}
	dx, _ := velLay.Property("dx")
	dy, _ := velLay.Property("dy")

	roots := make([]ecs.Entity, 0, *entities)
	for i := 0; i < *entities; i++ {
		i := i
		id, err := w.EntitySpawn(ecs.EntityDefinition{
			Components: []ecs.ComponentInit{
				ecs.Component("position"),
				{Name: "velocity", Init: func(a *memory.Arena, off memory.Ptr) error {
					a.PutF32(off+memory.Ptr(dx.Offset), float32(i%7)-3)
					a.PutF32(off+memory.Ptr(dy.Offset), float32(i%5)-2)
					return nil
				}},
				ecs.Component("status"),
			},
			Children: []ecs.EntityDefinition{
				{Components: []ecs.ComponentInit{ecs.Component("inventory")}},
			},
		})
		if err != nil {
			return err
		}
		roots = append(roots, id)
	}

	dt := cfg.FixedTimestep.Std().Seconds()
	for t := 0; t < *ticks; t++ {
		if err := w.Update(ecs.ScheduleFixedUpdate, dt); err != nil {
			return err
		}
		// Churn a slice of the population so deletion and the query
		// cache see realistic traffic.
		if t%60 == 59 {
			for i := t % len(roots); i < len(roots); i += 97 {
				if w.EntityIsAlive(roots[i]) {
					if err := w.EntityDelete(roots[i]); err != nil {
						return err
					}
				}
			}
		}
		_ = w.EntityView([]string{"position"}, []string{"inventory"})
	}

	stats := w.Arena().Stats()
	fmt.Printf("allocs=%d frees=%d live=%dB\n", stats.AllocCount, stats.FreeCount, stats.LiveBytes)
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "profile run failed:", err)
		os.Exit(1)
	}
}
