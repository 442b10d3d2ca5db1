package domain

import (
	"errors"
	"time"

	sharedDomain "github.com/diaguru/scheduler/internal/shared/domain"
	"github.com/google/uuid"
)

var (
	ErrInvalidDuration      = errors.New("capture: estimated duration out of range")
	ErrNotScheduled         = errors.New("capture: not currently scheduled")
	ErrInvalidPlacement     = errors.New("capture: planned_end must be after planned_start")
	ErrFrozen               = errors.New("capture: capture is frozen until a future time")
)

// Kind classifies the capture's content. Routine kinds are assigned by the
// normalizer at ingest time; everything else comes from the Extractor.
type Kind string

const (
	KindTask         Kind = "task"
	KindMeeting      Kind = "meeting"
	KindRoutineSleep Kind = "routine.sleep"
	KindRoutineMeal  Kind = "routine.meal"
)

// Status is the capture's placement state.
type Status string

const (
	StatusPending              Status = "pending"
	StatusScheduled            Status = "scheduled"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusCompleted            Status = "completed"
)

// StartFlexibility describes how strongly a capture prefers a fixed start time.
type StartFlexibility string

const (
	StartFlexHard     StartFlexibility = "hard"
	StartFlexSoft     StartFlexibility = "soft"
	StartFlexAnytime  StartFlexibility = "anytime"
)

// DurationFlexibility describes whether a capture's duration may be split.
type DurationFlexibility string

const (
	DurationFixed        DurationFlexibility = "fixed"
	DurationSplitAllowed DurationFlexibility = "split_allowed"
)

// MinEstimatedMinutes / MaxEstimatedMinutes bound the clamped duration (§3).
const (
	MinEstimatedMinutes = 5
	MaxEstimatedMinutes = 480
	DefaultEstimatedMinutes = 30
)

// Capture is the unit of work this system schedules.
type Capture struct {
	sharedDomain.BaseAggregateRoot

	ownerID uuid.UUID
	content string
	kind    Kind

	estimatedMinutes int

	urgency           int
	impact            int
	blocking          bool
	reschedulePenalty int
	externalityScore  float64
	importance        int // legacy coarse 1..3

	constraint ConstraintSpec

	cannotOverlap       bool
	startFlexibility    StartFlexibility
	durationFlexibility DurationFlexibility
	minChunkMinutes     int
	maxSplits           int

	status            Status
	plannedStart      *time.Time
	plannedEnd        *time.Time
	calendarEventID   string
	calendarEventETag string
	rescheduleCount   int
	freezeUntil       *time.Time
	planID            *uuid.UUID
	manualTouchAt     *time.Time
	schedulingNotes   string
}

// NewCapture creates a pending capture. Constraint and flexibility fields are
// set separately (by the Routine Normalizer or directly from the Extractor's
// output) before the capture is first scheduled.
func NewCapture(ownerID uuid.UUID, content string, kind Kind) *Capture {
	return &Capture{
		BaseAggregateRoot:   sharedDomain.NewBaseAggregateRoot(),
		ownerID:             ownerID,
		content:             content,
		kind:                kind,
		estimatedMinutes:    DefaultEstimatedMinutes,
		urgency:             1,
		impact:              1,
		importance:          1,
		constraint:          Flexible{},
		startFlexibility:    StartFlexSoft,
		durationFlexibility: DurationFixed,
		minChunkMinutes:     DefaultEstimatedMinutes,
		status:              StatusPending,
	}
}

// Getters.
func (c *Capture) OwnerID() uuid.UUID                       { return c.ownerID }
func (c *Capture) Content() string                          { return c.content }
func (c *Capture) Kind() Kind                                { return c.kind }
func (c *Capture) Urgency() int                              { return c.urgency }
func (c *Capture) Impact() int                                { return c.impact }
func (c *Capture) Blocking() bool                             { return c.blocking }
func (c *Capture) ReschedulePenalty() int                     { return c.reschedulePenalty }
func (c *Capture) ExternalityScore() float64                  { return c.externalityScore }
func (c *Capture) Importance() int                            { return c.importance }
func (c *Capture) Constraint() ConstraintSpec                 { return c.constraint }
func (c *Capture) CannotOverlap() bool                        { return c.cannotOverlap }
func (c *Capture) StartFlexibility() StartFlexibility         { return c.startFlexibility }
func (c *Capture) DurationFlexibility() DurationFlexibility   { return c.durationFlexibility }
func (c *Capture) MinChunkMinutes() int                       { return c.minChunkMinutes }
func (c *Capture) MaxSplits() int                              { return c.maxSplits }
func (c *Capture) Status() Status                              { return c.status }
func (c *Capture) PlannedStart() *time.Time                    { return c.plannedStart }
func (c *Capture) PlannedEnd() *time.Time                      { return c.plannedEnd }
func (c *Capture) CalendarEventID() string                     { return c.calendarEventID }
func (c *Capture) CalendarEventETag() string                   { return c.calendarEventETag }
func (c *Capture) RescheduleCount() int                        { return c.rescheduleCount }
func (c *Capture) FreezeUntil() *time.Time                      { return c.freezeUntil }
func (c *Capture) PlanID() *uuid.UUID                           { return c.planID }
func (c *Capture) SchedulingNotes() string                      { return c.schedulingNotes }

// EstimatedMinutes returns the duration clamped to [MinEstimatedMinutes, MaxEstimatedMinutes].
func (c *Capture) EstimatedMinutes() int {
	return clampInt(c.estimatedMinutes, MinEstimatedMinutes, MaxEstimatedMinutes)
}

// EstimatedDuration is EstimatedMinutes as a time.Duration.
func (c *Capture) EstimatedDuration() time.Duration {
	return time.Duration(c.EstimatedMinutes()) * time.Minute
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SetEstimatedMinutes sets the raw estimate; it is clamped on read by
// EstimatedMinutes, not here. The repositories persist that clamped value.
func (c *Capture) SetEstimatedMinutes(m int) { c.estimatedMinutes = m }

// SetImportanceFacets sets the importance-related attributes (§3).
func (c *Capture) SetImportanceFacets(urgency, impact int, blocking bool, reschedulePenalty int, externalityScore float64, importance int) {
	c.urgency = urgency
	c.impact = impact
	c.blocking = blocking
	c.reschedulePenalty = reschedulePenalty
	c.externalityScore = externalityScore
	c.importance = importance
}

// SetKind reclassifies the capture, used by the Routine Normalizer when
// content implies a routine kind the Extractor did not already assign.
func (c *Capture) SetKind(k Kind) { c.kind = k }

// SetConstraint replaces the capture's constraint spec (§4.4, §9 polymorphism note).
func (c *Capture) SetConstraint(spec ConstraintSpec) { c.constraint = spec }

// SetFlexibility sets the flexibility facets.
func (c *Capture) SetFlexibility(cannotOverlap bool, startFlex StartFlexibility, durFlex DurationFlexibility, minChunkMinutes, maxSplits int) {
	c.cannotOverlap = cannotOverlap
	c.startFlexibility = startFlex
	c.durationFlexibility = durFlex
	c.minChunkMinutes = minChunkMinutes
	c.maxSplits = maxSplits
}

// SetFreezeUntil protects the capture from displacement until the given instant.
func (c *Capture) SetFreezeUntil(t *time.Time) { c.freezeUntil = t }

// IsFrozen reports whether the capture is protected from displacement at now.
func (c *Capture) IsFrozen(now time.Time) bool {
	return c.freezeUntil != nil && c.freezeUntil.After(now)
}

// MarkScheduled transitions the capture into status=scheduled and records the
// remote event binding. The plan ID groups this mutation with its run.
func (c *Capture) MarkScheduled(start, end time.Time, eventID, etag string, planID uuid.UUID, bumpReschedule bool) error {
	if !end.After(start) {
		return ErrInvalidPlacement
	}
	c.status = StatusScheduled
	c.plannedStart = &start
	c.plannedEnd = &end
	c.calendarEventID = eventID
	c.calendarEventETag = etag
	c.planID = &planID
	if bumpReschedule {
		c.rescheduleCount++
	}
	c.schedulingNotes = ""
	c.Touch()
	c.AddDomainEvent(NewCaptureScheduled(c.ID(), c.ownerID, start, end, planID))
	return nil
}

// MarkUnscheduled returns the capture to pending, e.g. after preemption
// failed to find a replan slot, or as the first step of an explicit reschedule.
func (c *Capture) MarkUnscheduled(planID uuid.UUID, notes string) {
	c.status = StatusPending
	c.plannedStart = nil
	c.plannedEnd = nil
	c.calendarEventID = ""
	c.calendarEventETag = ""
	c.planID = &planID
	c.schedulingNotes = notes
	c.Touch()
	c.AddDomainEvent(NewCaptureUnscheduled(c.ID(), c.ownerID, planID))
}

// MarkCompleted clears placement fields but preserves the row (§3 lifecycle).
func (c *Capture) MarkCompleted() error {
	if c.status != StatusScheduled && c.status != StatusAwaitingConfirmation {
		return ErrNotScheduled
	}
	c.status = StatusCompleted
	c.plannedStart = nil
	c.plannedEnd = nil
	c.calendarEventID = ""
	c.calendarEventETag = ""
	c.Touch()
	c.AddDomainEvent(NewCaptureCompleted(c.ID(), c.ownerID))
	return nil
}

// RehydrateCapture reconstructs a capture from persisted columns.
func RehydrateCapture(
	id, ownerID uuid.UUID,
	content string,
	kind Kind,
	estimatedMinutes int,
	urgency, impact int,
	blocking bool,
	reschedulePenalty int,
	externalityScore float64,
	importance int,
	constraint ConstraintSpec,
	cannotOverlap bool,
	startFlex StartFlexibility,
	durFlex DurationFlexibility,
	minChunkMinutes, maxSplits int,
	status Status,
	plannedStart, plannedEnd *time.Time,
	calendarEventID, calendarEventETag string,
	rescheduleCount int,
	freezeUntil *time.Time,
	planID *uuid.UUID,
	manualTouchAt *time.Time,
	schedulingNotes string,
	createdAt, updatedAt time.Time,
) *Capture {
	baseEntity := sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt)
	return &Capture{
		BaseAggregateRoot:   sharedDomain.RehydrateBaseAggregateRoot(baseEntity, 0),
		ownerID:             ownerID,
		content:             content,
		kind:                kind,
		estimatedMinutes:    estimatedMinutes,
		urgency:             urgency,
		impact:              impact,
		blocking:            blocking,
		reschedulePenalty:   reschedulePenalty,
		externalityScore:    externalityScore,
		importance:          importance,
		constraint:          constraint,
		cannotOverlap:       cannotOverlap,
		startFlexibility:    startFlex,
		durationFlexibility: durFlex,
		minChunkMinutes:     minChunkMinutes,
		maxSplits:           maxSplits,
		status:              status,
		plannedStart:        plannedStart,
		plannedEnd:          plannedEnd,
		calendarEventID:     calendarEventID,
		calendarEventETag:   calendarEventETag,
		rescheduleCount:     rescheduleCount,
		freezeUntil:         freezeUntil,
		planID:              planID,
		manualTouchAt:       manualTouchAt,
		schedulingNotes:     schedulingNotes,
	}
}
