package planner_test

import (
	"testing"
	"time"

	"github.com/diaguru/scheduler/internal/planner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var referenceNow = time.Date(2025, 10, 25, 12, 0, 0, 0, time.UTC)

// Scenario 1: flexible, fits immediately.
func TestScheduleWithPlan_FlexibleFitsImmediately(t *testing.T) {
	plan := planner.Plan{Mode: planner.ModeFlexible}
	slot, err := planner.ScheduleWithPlan(plan, 30*time.Minute, 0, referenceNow, nil)
	require.NoError(t, err)
	assert.Equal(t, referenceNow.Add(planner.DefaultLeadTime), slot.Start)
	assert.Equal(t, referenceNow.Add(planner.DefaultLeadTime+30*time.Minute), slot.End)
}

// Scenario 5: no slot within horizon (window entirely outside working hours).
func TestScheduleWithPlan_NoSlotOutsideWorkingWindow(t *testing.T) {
	wStart := time.Date(2025, 10, 26, 1, 0, 0, 0, time.UTC)
	wEnd := time.Date(2025, 10, 26, 2, 30, 0, 0, time.UTC)
	plan := planner.Plan{Mode: planner.ModeWindow, WindowStart: &wStart, WindowEnd: &wEnd}

	_, err := planner.ScheduleWithPlan(plan, 120*time.Minute, 0, referenceNow, nil)
	assert.ErrorIs(t, err, planner.ErrNoSlot)
}

func TestScheduleWithPlan_DeadlineModeFindsEarliestFreeSlotBeforeDeadline(t *testing.T) {
	deadline := referenceNow.Add(3 * time.Hour)
	plan := planner.Plan{Mode: planner.ModeDeadline, Deadline: &deadline}

	slot, err := planner.ScheduleWithPlan(plan, 60*time.Minute, 0, referenceNow, nil)
	require.NoError(t, err)
	assert.True(t, !slot.End.After(deadline))
}

func TestScheduleWithPlan_RejectsBusyPreferredSlot(t *testing.T) {
	busyStart := referenceNow.Add(1 * time.Hour)
	busyEnd := busyStart.Add(30 * time.Minute)
	busy := []planner.BusyInterval{{Start: busyStart.Add(-planner.StandardBuffer), End: busyEnd.Add(planner.StandardBuffer)}}

	preferred := busyStart.Add(15 * time.Minute)
	preferredEnd := preferred.Add(30 * time.Minute)
	plan := planner.Plan{Mode: planner.ModeStart, PreferredStart: &preferred, PreferredEnd: &preferredEnd}

	slot, err := planner.ScheduleWithPlan(plan, 30*time.Minute, 0, referenceNow, busy)
	require.NoError(t, err)
	assert.NotEqual(t, preferred, slot.Start)
}
