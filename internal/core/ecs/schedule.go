package ecs

// Schedule names a phase of the frame (or of world startup). Systems
// register into exactly one schedule; the host decides which schedules
// run each frame and in what order, except for the startup phases,
// which Initialize drives once.
type Schedule uint8

const (
	ScheduleFirstStartup Schedule = iota
	SchedulePreStartup
	ScheduleStartup
	SchedulePostStartup
	ScheduleLastStartup

	ScheduleFirst
	SchedulePreUpdate
	ScheduleUpdate
	ScheduleFixedUpdate
	SchedulePostUpdate
	SchedulePreRender
	ScheduleRender
	SchedulePostRender
	ScheduleFixedFlush
	ScheduleFlush
	ScheduleLast

	scheduleCount
)

var scheduleNames = [scheduleCount]string{
	ScheduleFirstStartup: "first_startup",
	SchedulePreStartup:   "pre_startup",
	ScheduleStartup:      "startup",
	SchedulePostStartup:  "post_startup",
	ScheduleLastStartup:  "last_startup",
	ScheduleFirst:        "first",
	SchedulePreUpdate:    "pre_update",
	ScheduleUpdate:       "update",
	ScheduleFixedUpdate:  "fixed_update",
	SchedulePostUpdate:   "post_update",
	SchedulePreRender:    "pre_render",
	ScheduleRender:       "render",
	SchedulePostRender:   "post_render",
	ScheduleFixedFlush:   "fixed_flush",
	ScheduleFlush:        "flush",
	ScheduleLast:         "last",
}

func (s Schedule) String() string {
	if s < scheduleCount {
		return scheduleNames[s]
	}
	return "unknown"
}

// IsStartup reports whether the schedule belongs to the one-shot
// startup sequence driven by World.Initialize.
func (s Schedule) IsStartup() bool {
	return s <= ScheduleLastStartup
}
