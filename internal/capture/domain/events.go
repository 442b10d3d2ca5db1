package domain

import (
	"time"

	sharedDomain "github.com/diaguru/scheduler/internal/shared/domain"
	"github.com/google/uuid"
)

// AggregateType is the aggregate type tag carried on every capture event,
// matching the teacher's per-aggregate routing-key convention.
const AggregateType = "Capture"

// CaptureScheduled is emitted whenever a capture is placed on the calendar,
// whether by a fresh schedule or by the cascade reschedule after preemption.
type CaptureScheduled struct {
	sharedDomain.BaseEvent
	OwnerID uuid.UUID
	Start   time.Time
	End     time.Time
	PlanID  uuid.UUID
}

func NewCaptureScheduled(captureID, ownerID uuid.UUID, start, end time.Time, planID uuid.UUID) CaptureScheduled {
	return CaptureScheduled{
		BaseEvent: sharedDomain.NewBaseEvent(captureID, AggregateType, "capture.scheduled"),
		OwnerID:   ownerID,
		Start:     start,
		End:       end,
		PlanID:    planID,
	}
}

// CaptureRescheduled is emitted when a previously scheduled capture moves
// to a new time (displacement or explicit reschedule).
type CaptureRescheduled struct {
	sharedDomain.BaseEvent
	OwnerID           uuid.UUID
	PreviousStart     time.Time
	PreviousEnd       time.Time
	NewStart          time.Time
	NewEnd            time.Time
	PlanID            uuid.UUID
}

func NewCaptureRescheduled(captureID, ownerID uuid.UUID, prevStart, prevEnd, newStart, newEnd time.Time, planID uuid.UUID) CaptureRescheduled {
	return CaptureRescheduled{
		BaseEvent:     sharedDomain.NewBaseEvent(captureID, AggregateType, "capture.rescheduled"),
		OwnerID:       ownerID,
		PreviousStart: prevStart,
		PreviousEnd:   prevEnd,
		NewStart:      newStart,
		NewEnd:        newEnd,
		PlanID:        planID,
	}
}

// CaptureUnscheduled is emitted when a capture is returned to pending.
type CaptureUnscheduled struct {
	sharedDomain.BaseEvent
	OwnerID uuid.UUID
	PlanID  uuid.UUID
}

func NewCaptureUnscheduled(captureID, ownerID uuid.UUID, planID uuid.UUID) CaptureUnscheduled {
	return CaptureUnscheduled{
		BaseEvent: sharedDomain.NewBaseEvent(captureID, AggregateType, "capture.unscheduled"),
		OwnerID:   ownerID,
		PlanID:    planID,
	}
}

// CaptureCompleted is emitted when a capture's remote event is removed and
// its placement cleared because the user marked the underlying task done.
type CaptureCompleted struct {
	sharedDomain.BaseEvent
	OwnerID uuid.UUID
}

func NewCaptureCompleted(captureID, ownerID uuid.UUID) CaptureCompleted {
	return CaptureCompleted{
		BaseEvent: sharedDomain.NewBaseEvent(captureID, AggregateType, "capture.completed"),
		OwnerID:   ownerID,
	}
}
