package domain_test

import (
	"testing"
	"time"

	"github.com/diaguru/scheduler/internal/journal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan_FinalizeSummarizesActionCounts(t *testing.T) {
	plan := domain.NewPlan(uuid.New())

	plan.AppendAction(uuid.New(), "task a", domain.ActionUnscheduled, domain.CaptureSnapshot{Status: "scheduled"}, domain.CaptureSnapshot{Status: "pending"})
	plan.AppendAction(uuid.New(), "task b", domain.ActionScheduled, domain.CaptureSnapshot{Status: "pending"}, domain.CaptureSnapshot{Status: "scheduled"})
	plan.AppendAction(uuid.New(), "task a", domain.ActionRescheduled, domain.CaptureSnapshot{Status: "pending"}, domain.CaptureSnapshot{Status: "scheduled"})

	plan.Finalize()
	assert.Equal(t, "scheduled:1 moved:1 unscheduled:1", plan.Summary())
}

func TestPlan_ReverseActionsUndoesMostRecentFirst(t *testing.T) {
	plan := domain.NewPlan(uuid.New())
	first := plan.AppendAction(uuid.New(), "first", domain.ActionScheduled, domain.CaptureSnapshot{}, domain.CaptureSnapshot{})
	second := plan.AppendAction(uuid.New(), "second", domain.ActionScheduled, domain.CaptureSnapshot{}, domain.CaptureSnapshot{})

	reversed := plan.ReverseActions()
	require.Len(t, reversed, 2)
	assert.Equal(t, second.ID, reversed[0].ID)
	assert.Equal(t, first.ID, reversed[1].ID)
}

func TestPlan_MarkUndoneRefusesWrongOwner(t *testing.T) {
	owner := uuid.New()
	plan := domain.NewPlan(owner)
	err := plan.MarkUndone(uuid.New(), time.Now().UTC(), nil)
	assert.ErrorIs(t, err, domain.ErrNotOwner)
	assert.False(t, plan.IsUndone())
}

func TestPlan_MarkUndoneRefusesDoubleUndo(t *testing.T) {
	owner := uuid.New()
	plan := domain.NewPlan(owner)
	require.NoError(t, plan.MarkUndone(owner, time.Now().UTC(), nil))

	err := plan.MarkUndone(owner, time.Now().UTC(), nil)
	assert.ErrorIs(t, err, domain.ErrAlreadyUndone)
}
