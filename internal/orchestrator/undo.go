package orchestrator

import (
	"context"
	"errors"
	"time"

	capdomain "github.com/diaguru/scheduler/internal/capture/domain"
	"github.com/diaguru/scheduler/internal/calendargw"
	journaldomain "github.com/diaguru/scheduler/internal/journal/domain"
	"github.com/google/uuid"
)

// UndoResult is the public outcome of an undo-plan request (§4.8, §6).
type UndoResult struct {
	PlanID           uuid.UUID
	RevertedCaptures []uuid.UUID
}

// HandleUndo reverses every action in a plan, most recent first (§4.8):
// for each action it deletes the current remote event (if any), recreates
// one if the previous snapshot was scheduled, and restores the capture's
// prior placement fields.
func (h *Handler) HandleUndo(ctx context.Context, cmd UndoPlanCommand) (*UndoResult, error) {
	plan, err := h.plans.FindByID(ctx, cmd.PlanID)
	if err != nil {
		return nil, NewEngineError(CodePlanNotFound, "plan not found", err)
	}
	if plan.IsUndone() {
		return nil, NewEngineError(CodeAlreadyUndone, "plan was already undone", nil)
	}
	if plan.OwnerID() != cmd.UserID {
		return nil, NewEngineError(CodeForbidden, "plan belongs to another user", nil)
	}

	handle, err := h.locker.Acquire(ctx, cmd.UserID, cmd.PlanID, h.lockTTL)
	if err != nil {
		return nil, NewEngineError(CodeInternal, "could not acquire undo lock", err)
	}
	defer func() { _ = handle.Release(context.Background()) }()

	gw, err := h.gateways.Resolve(ctx, cmd.UserID)
	if err != nil {
		return nil, mapGatewayError(err)
	}

	now := time.Now().UTC()
	reverted := make([]uuid.UUID, 0, len(plan.Actions()))

	for _, action := range plan.ReverseActions() {
		capture, err := h.captures.FindByID(ctx, action.CaptureID)
		if err != nil {
			if errors.Is(err, capdomain.ErrCaptureNotFound) {
				continue // capture was deleted out of band; nothing left to revert
			}
			return nil, NewEngineError(CodeInternal, "failed to load capture for undo", err)
		}

		if err := h.revertAction(ctx, cmd.UserID, gw, capture, action); err != nil {
			return nil, err
		}
		reverted = append(reverted, action.CaptureID)
	}

	if err := plan.MarkUndone(cmd.UserID, now, reverted); err != nil {
		if errors.Is(err, journaldomain.ErrAlreadyUndone) {
			return nil, NewEngineError(CodeAlreadyUndone, "plan was already undone", err)
		}
		if errors.Is(err, journaldomain.ErrNotOwner) {
			return nil, NewEngineError(CodeForbidden, "plan belongs to another user", err)
		}
		return nil, NewEngineError(CodeInternal, "failed to mark plan undone", err)
	}

	if err := h.commitPlan(ctx, cmd.UserID, plan); err != nil {
		return nil, NewEngineError(CodeInternal, "failed to persist undo", err)
	}

	return &UndoResult{PlanID: plan.ID(), RevertedCaptures: reverted}, nil
}

// revertAction restores one capture to the action's Prev snapshot: delete
// whatever remote event currently exists, and recreate one if the capture
// was scheduled before this action ran.
func (h *Handler) revertAction(ctx context.Context, userID uuid.UUID, gw calendargw.Gateway, capture *capdomain.Capture, action journaldomain.PlanAction) error {
	if err := h.deleteRemoteEvent(ctx, gw, userID, capture.CalendarEventID(), capture.CalendarEventETag()); err != nil {
		return err
	}

	prev := action.Prev
	if prev.Status != string(capdomain.StatusScheduled) || prev.PlannedStart == nil || prev.PlannedEnd == nil {
		capture.MarkUnscheduled(action.PlanID, "")
		return h.commitCapture(ctx, userID, capture)
	}

	event, err := gw.CreateEvent(ctx, userID, calendargw.CreateEventParams{
		CaptureID:     capture.ID(),
		PlanID:        action.PlanID,
		ActionID:      uuid.New(),
		Summary:       capture.Content(),
		Start:         *prev.PlannedStart,
		End:           *prev.PlannedEnd,
		PriorityScore: 0,
	})
	if err != nil {
		return mapGatewayError(err)
	}

	// Undoing a Rescheduled action restores the placement that action's
	// own bump accounted for; the increment stays rather than being
	// subtracted back out, since reschedule_count tracks how many times a
	// capture has ever moved, not its current placement's move count.
	if err := capture.MarkScheduled(*prev.PlannedStart, *prev.PlannedEnd, event.ID, event.ETag, action.PlanID, false); err != nil {
		return NewEngineError(CodeInternal, "failed to restore capture placement", err)
	}
	return h.commitCapture(ctx, userID, capture)
}
