package planner_test

import (
	"testing"
	"time"

	capdomain "github.com/diaguru/scheduler/internal/capture/domain"
	"github.com/diaguru/scheduler/internal/planner"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPlanCapture(constraint capdomain.ConstraintSpec, minutes int) *capdomain.Capture {
	c := capdomain.NewCapture(uuid.New(), "test capture", capdomain.KindTask)
	c.SetConstraint(constraint)
	c.SetEstimatedMinutes(minutes)
	return c
}

func TestBuildPlan_DeadlineConstraintResolvesDeadlineMode(t *testing.T) {
	deadline := referenceNow.Add(4 * time.Hour)
	c := newPlanCapture(capdomain.DeadlineTime{At: deadline}, 30)

	plan := planner.BuildPlan(c, referenceNow, 0)

	assert.Equal(t, planner.ModeDeadline, plan.Mode)
	require.NotNil(t, plan.Deadline)
	assert.Equal(t, deadline, *plan.Deadline)
}

func TestBuildPlan_StartConstraintClampsPastTargetToNow(t *testing.T) {
	past := referenceNow.Add(-time.Hour)
	c := newPlanCapture(capdomain.StartTime{Target: past}, 30)

	plan := planner.BuildPlan(c, referenceNow, 0)

	assert.Equal(t, planner.ModeStart, plan.Mode)
	require.NotNil(t, plan.PreferredStart)
	assert.Equal(t, referenceNow, *plan.PreferredStart)
}

func TestBuildPlan_WindowFeasibleForDurationKeepsWindowMode(t *testing.T) {
	wStart := referenceNow.Add(time.Hour)
	wEnd := wStart.Add(2 * time.Hour)
	c := newPlanCapture(capdomain.Window{Start: wStart, End: wEnd}, 30)

	plan := planner.BuildPlan(c, referenceNow, 0)

	assert.Equal(t, planner.ModeWindow, plan.Mode)
	require.NotNil(t, plan.PreferredStart)
	require.NotNil(t, plan.PreferredEnd)
	assert.True(t, !plan.PreferredStart.Before(wStart))
	assert.True(t, !plan.PreferredEnd.After(wEnd))
}

// A window smaller than the capture's own duration can never hold it,
// regardless of when `now` falls — BuildPlan must not degrade this into an
// open-ended deadline search (that previously let slot search place the
// capture anywhere before window_end, contradicting the no_slot outcome
// a too-small window implies). Mirrors the no_slot reference scenario
// where a 90-minute window is asked to hold a 120-minute capture.
func TestBuildPlan_WindowSmallerThanDurationStaysWindowModeWithNoPreferredSlot(t *testing.T) {
	wStart := time.Date(2025, 10, 26, 1, 0, 0, 0, time.UTC)
	wEnd := time.Date(2025, 10, 26, 2, 30, 0, 0, time.UTC)
	c := newPlanCapture(capdomain.Window{Start: wStart, End: wEnd}, 120)

	plan := planner.BuildPlan(c, referenceNow, 0)

	assert.Equal(t, planner.ModeWindow, plan.Mode)
	assert.Nil(t, plan.PreferredStart)
	assert.Nil(t, plan.PreferredEnd)
	require.NotNil(t, plan.WindowStart)
	require.NotNil(t, plan.WindowEnd)
	assert.Equal(t, wEnd, *plan.WindowEnd)

	// And feeding this plan into the slot search must report no_slot
	// rather than silently succeeding outside the requested window.
	_, err := planner.ScheduleWithPlan(plan, c.EstimatedDuration(), 0, referenceNow, nil)
	assert.ErrorIs(t, err, planner.ErrNoSlot)
}

func TestBuildPlan_EmptyOrInvertedWindowFallsBackToFlexible(t *testing.T) {
	wStart := referenceNow.Add(time.Hour)
	c := newPlanCapture(capdomain.Window{Start: wStart, End: wStart}, 30)

	plan := planner.BuildPlan(c, referenceNow, 0)

	assert.Equal(t, planner.ModeFlexible, plan.Mode)
}

func TestBuildPlan_NoConstraintIsFlexible(t *testing.T) {
	c := newPlanCapture(capdomain.Flexible{}, 30)

	plan := planner.BuildPlan(c, referenceNow, 0)

	assert.Equal(t, planner.ModeFlexible, plan.Mode)
}
