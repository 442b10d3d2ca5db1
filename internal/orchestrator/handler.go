package orchestrator

import (
	"context"
	"log/slog"
	"time"

	capdomain "github.com/diaguru/scheduler/internal/capture/domain"
	journaldomain "github.com/diaguru/scheduler/internal/journal/domain"
	"github.com/diaguru/scheduler/internal/orchestrator/lock"
	"github.com/diaguru/scheduler/internal/planner/advisor"
	sharedApplication "github.com/diaguru/scheduler/internal/shared/application"
	sharedDomain "github.com/diaguru/scheduler/internal/shared/domain"
	"github.com/diaguru/scheduler/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
)

// DefaultLockTTL bounds how long a request holds its per-capture lock
// (§5), matched to the scheduling request's own time budget.
const DefaultLockTTL = 30 * time.Second

// Handler is the Request Orchestrator (§4.9): it owns the end-to-end
// schedule/reschedule/complete flow and the separate undo-plan flow,
// wiring together the Constraint Planner, Slot Search, Conflict Resolver,
// Calendar Gateway, and Plan Journal behind one per-capture lock.
type Handler struct {
	captures   capdomain.Repository
	plans      journaldomain.Repository
	gateways   GatewayResolver
	advisorSvc advisor.Service
	locker     lock.Locker
	lockTTL    time.Duration
	uow        sharedApplication.UnitOfWork
	outboxRepo outbox.Repository
	logger     *slog.Logger
}

// NewHandler wires the orchestrator's dependencies, grounded on the
// teacher's constructor-injected AutoScheduleHandler
// (internal/scheduling/application/commands/auto_schedule.go).
func NewHandler(
	captures capdomain.Repository,
	plans journaldomain.Repository,
	gateways GatewayResolver,
	advisorSvc advisor.Service,
	locker lock.Locker,
	uow sharedApplication.UnitOfWork,
	outboxRepo outbox.Repository,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if advisorSvc == nil {
		advisorSvc = advisor.NoOp{}
	}
	return &Handler{
		captures:   captures,
		plans:      plans,
		gateways:   gateways,
		advisorSvc: advisorSvc,
		locker:     locker,
		lockTTL:    DefaultLockTTL,
		uow:        uow,
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

// ScheduleResult is the public outcome of a schedule-capture request (§6).
// Exactly one of PlanSummary or Decision is set: PlanSummary on a
// placement (possibly with cascaded moves), Decision when the engine
// instead surfaces an advisory preferred_conflict without mutating state.
type ScheduleResult struct {
	Capture     *capdomain.Capture
	PlanSummary *PlanSummaryView
	Decision    *DecisionView
}

// DecisionView mirrors planner.Decision for the HTTP layer, kept in this
// package so httpapi never imports the planner package directly.
type DecisionView struct {
	Type       string
	Preferred  SlotView
	Conflicts  []ConflictView
	Suggestion *SlotView
}

type SlotView struct {
	Start time.Time
	End   time.Time
}

type ConflictView struct {
	ID        string
	Summary   string
	Start     time.Time
	End       time.Time
	DiaGuru   bool
	CaptureID *uuid.UUID
}

// PlanSummaryView mirrors a journal.Plan for the HTTP layer (§6).
type PlanSummaryView struct {
	ID        uuid.UUID
	Summary   string
	CreatedAt time.Time
	Actions   []PlanActionView
}

type PlanActionView struct {
	ActionID       uuid.UUID
	CaptureID      uuid.UUID
	Content        string
	ActionType     string
	PreviousStart  *time.Time
	PreviousEnd    *time.Time
	NextStart      *time.Time
	NextEnd        *time.Time
}

func snapshotOf(c *capdomain.Capture) journaldomain.CaptureSnapshot {
	return journaldomain.CaptureSnapshot{
		Status:            string(c.Status()),
		PlannedStart:      c.PlannedStart(),
		PlannedEnd:        c.PlannedEnd(),
		CalendarEventID:   c.CalendarEventID(),
		CalendarEventETag: c.CalendarEventETag(),
		FreezeUntil:       c.FreezeUntil(),
		PlanID:            c.PlanID(),
	}
}

func planSummaryView(plan *journaldomain.Plan) *PlanSummaryView {
	actions := plan.Actions()
	views := make([]PlanActionView, 0, len(actions))
	for _, a := range actions {
		views = append(views, PlanActionView{
			ActionID:      a.ID,
			CaptureID:     a.CaptureID,
			Content:       a.CaptureContent,
			ActionType:    string(a.ActionType),
			PreviousStart: a.Prev.PlannedStart,
			PreviousEnd:   a.Prev.PlannedEnd,
			NextStart:     a.Next.PlannedStart,
			NextEnd:       a.Next.PlannedEnd,
		})
	}
	return &PlanSummaryView{
		ID:        plan.ID(),
		Summary:   plan.Summary(),
		CreatedAt: plan.CreatedAt(),
		Actions:   views,
	}
}

// commitMutation persists one capture+plan mutation and its resulting
// domain events in a single unit of work, mirroring the teacher's
// WithUnitOfWork + outbox.SaveBatch pattern. The Plan Journal's per-action
// design means every individual capture mutation commits on its own,
// rather than the whole request sharing one transaction (§4.8, §5): a
// remote event delete cannot be rolled back, so the local row reflecting
// it must survive even if a later step in the same request fails.
func (h *Handler) commitMutation(ctx context.Context, userID uuid.UUID, plan *journaldomain.Plan, capture *capdomain.Capture) error {
	return h.persist(ctx, userID, func(txCtx context.Context) ([]sharedDomain.DomainEvent, error) {
		if err := h.captures.Save(txCtx, capture); err != nil {
			return nil, err
		}
		if err := h.plans.Save(txCtx, plan); err != nil {
			return nil, err
		}
		events := append(append([]sharedDomain.DomainEvent{}, capture.DomainEvents()...), plan.DomainEvents()...)
		capture.ClearDomainEvents()
		plan.ClearDomainEvents()
		return events, nil
	})
}

// commitCapture persists a single capture mutation with no accompanying
// plan row write, used while reverting individual Plan Actions during
// undo: the plan itself is committed once, separately, via commitPlan.
func (h *Handler) commitCapture(ctx context.Context, userID uuid.UUID, capture *capdomain.Capture) error {
	return h.persist(ctx, userID, func(txCtx context.Context) ([]sharedDomain.DomainEvent, error) {
		if err := h.captures.Save(txCtx, capture); err != nil {
			return nil, err
		}
		events := append([]sharedDomain.DomainEvent{}, capture.DomainEvents()...)
		capture.ClearDomainEvents()
		return events, nil
	})
}

// commitPlan persists the plan alone, used once an undo has revisited
// every action and called Plan.MarkUndone.
func (h *Handler) commitPlan(ctx context.Context, userID uuid.UUID, plan *journaldomain.Plan) error {
	return h.persist(ctx, userID, func(txCtx context.Context) ([]sharedDomain.DomainEvent, error) {
		if err := h.plans.Save(txCtx, plan); err != nil {
			return nil, err
		}
		events := append([]sharedDomain.DomainEvent{}, plan.DomainEvents()...)
		plan.ClearDomainEvents()
		return events, nil
	})
}

// persist wraps a save step in a unit of work and flushes whatever domain
// events it returns to the outbox in the same transaction.
func (h *Handler) persist(ctx context.Context, userID uuid.UUID, save func(context.Context) ([]sharedDomain.DomainEvent, error)) error {
	return sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		events, err := save(txCtx)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(userID))

		msgs := make([]*outbox.Message, 0, len(events))
		for _, e := range events {
			msg, err := outbox.NewMessage(e)
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
		return h.outboxRepo.SaveBatch(txCtx, msgs)
	})
}
