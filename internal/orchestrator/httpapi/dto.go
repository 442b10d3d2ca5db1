package httpapi

import (
	"time"

	capdomain "github.com/diaguru/scheduler/internal/capture/domain"
	"github.com/diaguru/scheduler/internal/orchestrator"
	"github.com/google/uuid"
)

// scheduleCaptureRequest is the wire shape of the schedule-capture input
// (§6). The user id is not accepted here; it comes from Authorization.
type scheduleCaptureRequest struct {
	Action                string     `json:"action"`
	PreferredStart        *time.Time `json:"preferredStart,omitempty"`
	PreferredEnd          *time.Time `json:"preferredEnd,omitempty"`
	AllowOverlap          bool       `json:"allowOverlap,omitempty"`
	Timezone              string     `json:"timezone,omitempty"`
	TimezoneOffsetMinutes int        `json:"timezoneOffsetMinutes,omitempty"`
}

type captureView struct {
	ID                string     `json:"id"`
	Content           string     `json:"content"`
	Status            string     `json:"status"`
	PlannedStart      *time.Time `json:"plannedStart,omitempty"`
	PlannedEnd        *time.Time `json:"plannedEnd,omitempty"`
	CalendarEventID   string     `json:"calendarEventId,omitempty"`
	CalendarEventETag string     `json:"calendarEventEtag,omitempty"`
	RescheduleCount   int        `json:"rescheduleCount"`
	SchedulingNotes   string     `json:"schedulingNotes,omitempty"`
}

type planActionView struct {
	ActionID      uuid.UUID  `json:"actionId"`
	CaptureID     uuid.UUID  `json:"captureId"`
	Content       string     `json:"content"`
	ActionType    string     `json:"actionType"`
	PreviousStart *time.Time `json:"previousStart,omitempty"`
	PreviousEnd   *time.Time `json:"previousEnd,omitempty"`
	NextStart     *time.Time `json:"nextStart,omitempty"`
	NextEnd       *time.Time `json:"nextEnd,omitempty"`
}

type planSummaryResponseView struct {
	ID        uuid.UUID        `json:"id"`
	CreatedAt time.Time        `json:"createdAt"`
	Actions   []planActionView `json:"actions"`
}

type slotView struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type conflictView struct {
	ID        string     `json:"id"`
	Summary   string     `json:"summary"`
	Start     time.Time  `json:"start"`
	End       time.Time  `json:"end"`
	DiaGuru   bool       `json:"diaGuru"`
	CaptureID *uuid.UUID `json:"captureId,omitempty"`
}

type decisionResponseView struct {
	Type       string         `json:"type"`
	Preferred  slotView       `json:"preferred"`
	Conflicts  []conflictView `json:"conflicts"`
	Suggestion *slotView      `json:"suggestion,omitempty"`
}

type scheduleCaptureResponse struct {
	Message     string                    `json:"message"`
	Capture     captureView               `json:"capture"`
	PlanSummary *planSummaryResponseView  `json:"planSummary,omitempty"`
	Decision    *decisionResponseView     `json:"decision,omitempty"`
}

type noSlotResponse struct {
	Error           string     `json:"error"`
	Reason          string     `json:"reason"`
	CaptureID       string     `json:"capture_id"`
	Mode            string     `json:"mode"`
	DurationMinutes int        `json:"duration_minutes"`
	Deadline        *time.Time `json:"deadline,omitempty"`
	ReferenceNow    time.Time  `json:"reference_now"`
}

type undoPlanRequest struct {
	PlanID string `json:"planId"`
}

type undoPlanResponse struct {
	Message          string   `json:"message"`
	PlanID           string   `json:"planId"`
	RevertedCaptures []string `json:"revertedCaptures"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func toCaptureView(c *capdomain.Capture) captureView {
	return captureView{
		ID:                c.ID().String(),
		Content:           c.Content(),
		Status:            string(c.Status()),
		PlannedStart:      c.PlannedStart(),
		PlannedEnd:        c.PlannedEnd(),
		CalendarEventID:   c.CalendarEventID(),
		CalendarEventETag: c.CalendarEventETag(),
		RescheduleCount:   c.RescheduleCount(),
		SchedulingNotes:   c.SchedulingNotes(),
	}
}

func toPlanSummaryView(p *orchestrator.PlanSummaryView) *planSummaryResponseView {
	if p == nil {
		return nil
	}
	actions := make([]planActionView, 0, len(p.Actions))
	for _, a := range p.Actions {
		actions = append(actions, planActionView{
			ActionID:      a.ActionID,
			CaptureID:     a.CaptureID,
			Content:       a.Content,
			ActionType:    a.ActionType,
			PreviousStart: a.PreviousStart,
			PreviousEnd:   a.PreviousEnd,
			NextStart:     a.NextStart,
			NextEnd:       a.NextEnd,
		})
	}
	return &planSummaryResponseView{ID: p.ID, CreatedAt: p.CreatedAt, Actions: actions}
}

func toDecisionView(d *orchestrator.DecisionView) *decisionResponseView {
	if d == nil {
		return nil
	}
	conflicts := make([]conflictView, 0, len(d.Conflicts))
	for _, c := range d.Conflicts {
		conflicts = append(conflicts, conflictView{
			ID:        c.ID,
			Summary:   c.Summary,
			Start:     c.Start,
			End:       c.End,
			DiaGuru:   c.DiaGuru,
			CaptureID: c.CaptureID,
		})
	}
	view := &decisionResponseView{
		Type:      d.Type,
		Preferred: slotView{Start: d.Preferred.Start, End: d.Preferred.End},
		Conflicts: conflicts,
	}
	if d.Suggestion != nil {
		view.Suggestion = &slotView{Start: d.Suggestion.Start, End: d.Suggestion.End}
	}
	return view
}
