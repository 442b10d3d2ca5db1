package planner_test

import (
	"context"
	"testing"
	"time"

	capdomain "github.com/diaguru/scheduler/internal/capture/domain"
	"github.com/diaguru/scheduler/internal/calendargw"
	"github.com/diaguru/scheduler/internal/planner"
	"github.com/diaguru/scheduler/internal/planner/advisor"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func managedEvent(id string, start, end time.Time, captureID uuid.UUID) calendargw.Event {
	return calendargw.Event{
		ID:      id,
		Start:   start,
		End:     end,
		ExtendedProperties: map[string]string{
			"diaGuru":    "true",
			"capture_id": captureID.String(),
		},
	}
}

// newCaptureAt builds a capture via RehydrateCapture so its CreatedAt is
// pinned to referenceNow instead of the real wall clock — Priority's age
// term would otherwise swing on however far referenceNow sits from whenever
// these tests actually run.
func newCaptureAt(id uuid.UUID, content string, kind capdomain.Kind, createdAt time.Time) *capdomain.Capture {
	return capdomain.RehydrateCapture(
		id, uuid.New(), content, kind,
		capdomain.DefaultEstimatedMinutes,
		1, 1, false, 0, 0, 1,
		capdomain.Flexible{},
		false, capdomain.StartFlexSoft, capdomain.DurationFixed,
		capdomain.DefaultEstimatedMinutes, 0,
		capdomain.StatusPending,
		nil, nil, "", "", 0, nil, nil, nil, "",
		createdAt, createdAt,
	)
}

// Scenario 2: deadline with blocking conflict — expect preemption eligible.
func TestResolve_DeadlineModePreemptsLowerPriorityManagedConflict(t *testing.T) {
	aID := uuid.New()
	a := newCaptureAt(aID, "low priority task", capdomain.KindTask, referenceNow)
	a.SetEstimatedMinutes(60)
	a.SetImportanceFacets(0, 0, false, 0, 0, 2)
	start := referenceNow.Add(2 * time.Hour)
	end := start.Add(time.Hour)
	require.NoError(t, a.MarkScheduled(start, end, "evt-a", "etag-a", uuid.New(), false))

	event := managedEvent("evt-a", start, end, aID)
	busy := []planner.BusyInterval{{Start: start.Add(-planner.StandardBuffer), End: end.Add(planner.StandardBuffer), Event: event}}

	b := newCaptureAt(uuid.New(), "urgent deliverable", capdomain.KindTask, referenceNow)
	b.SetImportanceFacets(5, 5, true, 0, 0, 3)
	deadline := referenceNow.Add(3 * time.Hour)
	b.SetConstraint(capdomain.DeadlineTime{At: deadline})
	plan := planner.BuildPlan(b, referenceNow, 0)

	managed := map[string]planner.ManagedConflict{"evt-a": {Event: event, Capture: a}}

	outcome, err := planner.Resolve(context.Background(), b, plan, planner.Slot{Start: start, End: end}, busy, busy, managed, false, referenceNow, 0, advisor.NoOp{})
	require.NoError(t, err)
	assert.Equal(t, planner.OutcomePreempted, outcome.Kind)
	require.Len(t, outcome.Displaced, 1)
	assert.Equal(t, aID, outcome.Displaced[0].ID())
}

// Scenario 3: external conflict forbids overlap even with allowOverlap=true.
func TestResolve_ExternalConflictForbidsOverlap(t *testing.T) {
	start := referenceNow.Add(2 * time.Hour)
	end := start.Add(time.Hour)
	externalEvent := calendargw.Event{ID: "ext-1", Start: start, End: end}
	busy := []planner.BusyInterval{{Start: start.Add(-planner.StandardBuffer), End: end.Add(planner.StandardBuffer), Event: externalEvent}}

	c := capdomain.NewCapture(uuid.New(), "meeting request", capdomain.KindMeeting)
	plan := planner.BuildPlan(c, referenceNow, 0)

	outcome, err := planner.Resolve(context.Background(), c, plan, planner.Slot{Start: start, End: end}, busy, busy, nil, true, referenceNow, 0, advisor.NoOp{})
	require.NoError(t, err)
	assert.Equal(t, planner.OutcomeAdvisory, outcome.Kind)
	require.NotNil(t, outcome.Decision)
	assert.Equal(t, "preferred_conflict", outcome.Decision.Type)
	if outcome.Decision.Suggestion != nil {
		assert.True(t, outcome.Decision.Suggestion.Start.After(end))
	}
}
