package domain

import (
	sharedDomain "github.com/diaguru/scheduler/internal/shared/domain"
	"github.com/google/uuid"
)

// AggregateType is the aggregate type tag carried on every plan event.
const AggregateType = "Plan"

// PlanUndone is emitted once a plan's actions have all been reversed
// (§4.8, §5.2).
type PlanUndone struct {
	sharedDomain.BaseEvent
	OwnerID          uuid.UUID
	RevertedCaptures []uuid.UUID
}

func NewPlanUndone(planID, ownerID uuid.UUID, revertedCaptures []uuid.UUID) PlanUndone {
	return PlanUndone{
		BaseEvent:        sharedDomain.NewBaseEvent(planID, AggregateType, "plan.undone"),
		OwnerID:          ownerID,
		RevertedCaptures: revertedCaptures,
	}
}
