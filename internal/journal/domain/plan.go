// Package domain models the Plan Journal (§4.8): every scheduling request
// that mutates state opens one plan, each mutation appends a reversible
// action, and undo walks those actions in reverse.
package domain

import (
	"errors"
	"strconv"
	"time"

	sharedDomain "github.com/diaguru/scheduler/internal/shared/domain"
	"github.com/google/uuid"
)

var (
	ErrAlreadyUndone  = errors.New("journal: plan already undone")
	ErrNotOwner       = errors.New("journal: plan belongs to another user")
	ErrPlanNotFound   = errors.New("journal: plan not found")
)

// ActionType classifies one capture mutation within a plan (§3 "Plan Action").
type ActionType string

const (
	ActionScheduled   ActionType = "scheduled"
	ActionRescheduled ActionType = "rescheduled"
	ActionUnscheduled ActionType = "unscheduled"
)

// CaptureSnapshot is the capture placement state before or after one
// mutation, flat per §3's Plan Action attribute list.
type CaptureSnapshot struct {
	Status            string
	PlannedStart       *time.Time
	PlannedEnd         *time.Time
	CalendarEventID    string
	CalendarEventETag  string
	FreezeUntil        *time.Time
	PlanID             *uuid.UUID
}

// PlanAction is one reversible mutation record.
type PlanAction struct {
	ID             uuid.UUID
	PlanID         uuid.UUID
	CaptureID      uuid.UUID
	CaptureContent string
	ActionType     ActionType
	Prev           CaptureSnapshot
	Next           CaptureSnapshot
	CreatedAt      time.Time
}

// Plan is an audited group of mutations caused by one scheduling request
// (§3 "Plan", §4.8).
type Plan struct {
	sharedDomain.BaseAggregateRoot

	ownerID   uuid.UUID
	summary   string
	undoneAt  *time.Time
	undoUserID *uuid.UUID
	actions   []PlanAction
}

// NewPlan opens a plan lazily, on the first mutation of a scheduling request.
func NewPlan(ownerID uuid.UUID) *Plan {
	return &Plan{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(),
		ownerID:           ownerID,
		actions:           make([]PlanAction, 0, 4),
	}
}

// RehydratePlan reconstructs a plan from persisted rows; actions must already
// be ordered by CreatedAt ascending (append order).
func RehydratePlan(id, ownerID uuid.UUID, summary string, undoneAt *time.Time, undoUserID *uuid.UUID, actions []PlanAction, createdAt, updatedAt time.Time) *Plan {
	baseEntity := sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt)
	return &Plan{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(baseEntity, 0),
		ownerID:           ownerID,
		summary:           summary,
		undoneAt:          undoneAt,
		undoUserID:        undoUserID,
		actions:           actions,
	}
}

func (p *Plan) OwnerID() uuid.UUID        { return p.ownerID }
func (p *Plan) Summary() string           { return p.summary }
func (p *Plan) UndoneAt() *time.Time      { return p.undoneAt }
func (p *Plan) UndoUserID() *uuid.UUID    { return p.undoUserID }
func (p *Plan) Actions() []PlanAction     { return p.actions }
func (p *Plan) IsUndone() bool            { return p.undoneAt != nil }

// AppendAction records one reversible mutation. Order of calls is the plan's
// undo order when reversed.
func (p *Plan) AppendAction(captureID uuid.UUID, content string, actionType ActionType, prev, next CaptureSnapshot) PlanAction {
	action := PlanAction{
		ID:             uuid.New(),
		PlanID:         p.ID(),
		CaptureID:      captureID,
		CaptureContent: content,
		ActionType:     actionType,
		Prev:           prev,
		Next:           next,
		CreatedAt:      time.Now().UTC(),
	}
	p.actions = append(p.actions, action)
	p.Touch()
	return action
}

// Finalize stamps the plan's summary string once the request has completed
// successfully (§4.8 `scheduled:N moved:M unscheduled:K`).
func (p *Plan) Finalize() {
	var scheduled, moved, unscheduled int
	for _, a := range p.actions {
		switch a.ActionType {
		case ActionScheduled:
			scheduled++
		case ActionRescheduled:
			moved++
		case ActionUnscheduled:
			unscheduled++
		}
	}
	p.summary = Summary(scheduled, moved, unscheduled)
	p.Touch()
}

// Summary renders the finalize string, exported so the orchestrator can
// preview it before commit if needed.
func Summary(scheduled, moved, unscheduled int) string {
	return "scheduled:" + strconv.Itoa(scheduled) + " moved:" + strconv.Itoa(moved) + " unscheduled:" + strconv.Itoa(unscheduled)
}

// MarkUndone records that requestingUser has undone the plan. Refused if
// already undone or owned by a different user (§4.8).
func (p *Plan) MarkUndone(requestingUser uuid.UUID, now time.Time, revertedCaptures []uuid.UUID) error {
	if p.IsUndone() {
		return ErrAlreadyUndone
	}
	if p.ownerID != requestingUser {
		return ErrNotOwner
	}
	p.undoneAt = &now
	p.undoUserID = &requestingUser
	p.Touch()
	p.AddDomainEvent(NewPlanUndone(p.ID(), p.ownerID, revertedCaptures))
	return nil
}

// ReverseActions returns the plan's actions in undo order: most recent
// mutation first (§4.8 "reads the plan's actions in reverse order").
func (p *Plan) ReverseActions() []PlanAction {
	out := make([]PlanAction, len(p.actions))
	for i, a := range p.actions {
		out[len(p.actions)-1-i] = a
	}
	return out
}
