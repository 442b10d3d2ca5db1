package orchestrator

import (
	"time"

	"github.com/google/uuid"
)

// Action selects which of the three Request Orchestrator operations a
// ScheduleCaptureCommand performs (§4.9).
type Action string

const (
	ActionSchedule   Action = "schedule"
	ActionReschedule Action = "reschedule"
	ActionComplete   Action = "complete"
)

// ScheduleCaptureCommand is the public schedule-capture request (§6),
// satisfying sharedApplication.Command.
type ScheduleCaptureCommand struct {
	UserID                uuid.UUID
	CaptureID             uuid.UUID
	Action                Action
	PreferredStart        *time.Time
	PreferredEnd          *time.Time
	AllowOverlap          bool
	Timezone              string
	TimezoneOffsetMinutes int
}

func (ScheduleCaptureCommand) CommandName() string { return "schedule_capture" }

// Offset returns the command's timezone offset as a time.Duration,
// defaulting to UTC when unset.
func (c ScheduleCaptureCommand) Offset() time.Duration {
	return time.Duration(c.TimezoneOffsetMinutes) * time.Minute
}

// UndoPlanCommand is the public undo-plan request (§4.8, §6).
type UndoPlanCommand struct {
	UserID uuid.UUID
	PlanID uuid.UUID
}

func (UndoPlanCommand) CommandName() string { return "undo_plan" }
