package ecs

import (
	"github.com/guerrero-dev/guerrero/internal/core/observability/log"
)

// scheduledSystem pairs a registered system with its bookkeeping.
// lastRun is the world tick of the most recent execution, -1 before the
// first one; change detection never skips a system that has yet to run.
type scheduledSystem struct {
	system  System
	plugin  string
	lastRun int64
}

// scheduler owns system registration and the per-schedule execution
// plans. Plans are rebuilt lazily: registration marks the schedule
// dirty and the next run recompiles the plan in registration order.
type scheduler struct {
	registered map[Schedule][]*scheduledSystem
	plans      map[Schedule][]*scheduledSystem
	dirty      map[Schedule]bool
}

func newScheduler() *scheduler {
	return &scheduler{
		registered: make(map[Schedule][]*scheduledSystem),
		plans:      make(map[Schedule][]*scheduledSystem),
		dirty:      make(map[Schedule]bool),
	}
}

func (s *scheduler) add(schedule Schedule, sys System, plugin string) {
	s.registered[schedule] = append(s.registered[schedule], &scheduledSystem{
		system:  sys,
		plugin:  plugin,
		lastRun: -1,
	})
	s.dirty[schedule] = true
}

// remove drops the named system from the schedule and reports whether
// it was present.
func (s *scheduler) remove(schedule Schedule, name string) bool {
	list := s.registered[schedule]
	for i, ss := range list {
		if ss.system.Name() == name {
			s.registered[schedule] = append(list[:i], list[i+1:]...)
			s.dirty[schedule] = true
			return true
		}
	}
	return false
}

// plan returns the execution plan for the schedule, recompiling it if a
// registration changed since the last run.
func (s *scheduler) plan(schedule Schedule) []*scheduledSystem {
	if s.dirty[schedule] {
		s.plans[schedule] = append([]*scheduledSystem(nil), s.registered[schedule]...)
		s.dirty[schedule] = false
	}
	return s.plans[schedule]
}

// each visits every registered system across all schedules in schedule
// order, registration order within a schedule.
func (s *scheduler) each(fn func(schedule Schedule, ss *scheduledSystem)) {
	for sched := Schedule(0); sched < scheduleCount; sched++ {
		for _, ss := range s.registered[sched] {
			fn(sched, ss)
		}
	}
}

func (s *scheduler) reset() {
	s.registered = make(map[Schedule][]*scheduledSystem)
	s.plans = make(map[Schedule][]*scheduledSystem)
	s.dirty = make(map[Schedule]bool)
}

// runSchedule executes one schedule's plan against the world. Each
// system is gated first by its run criteria, then by change detection
// over its declared components. A system error is logged and ends that
// system's turn only; the rest of the plan still runs.
func (w *World) runSchedule(schedule Schedule) {
	w.publish(EventScheduleStarted, schedule)

	for _, ss := range w.sched.plan(schedule) {
		if !ss.system.RunCriteria(w) {
			continue
		}
		deps := ss.system.Components()
		if len(deps) > 0 && ss.lastRun >= 0 && !w.ticks.AnyWrittenSince(deps, ss.lastRun) {
			continue
		}
		if err := ss.system.Update(w); err != nil {
			w.log.Error("system update failed",
				log.String("system", ss.system.Name()),
				log.String("schedule", schedule.String()),
				log.Error(err))
		}
		ss.lastRun = w.ticks.World()
	}

	if schedule.IsStartup() {
		w.runStartupHooks(schedule)
	}

	w.publish(EventScheduleEnded, schedule)
}

// runStartupHooks dispatches the plugin-level hook matching a startup
// schedule.
func (w *World) runStartupHooks(schedule Schedule) {
	for _, p := range w.plugins {
		var err error
		switch schedule {
		case ScheduleFirstStartup:
			err = p.FirstStartup(w)
		case SchedulePreStartup:
			err = p.PreStartup(w)
		case SchedulePostStartup:
			err = p.PostStartup(w)
		case ScheduleLastStartup:
			err = p.LastStartup(w)
		}
		if err != nil {
			w.log.Error("plugin startup hook failed",
				log.String("plugin", p.Name()),
				log.String("schedule", schedule.String()),
				log.Error(err))
		}
	}
}
