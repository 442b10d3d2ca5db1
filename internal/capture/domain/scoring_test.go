package domain_test

import (
	"testing"
	"time"

	capdomain "github.com/diaguru/scheduler/internal/capture/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var referenceNow = time.Date(2025, 10, 25, 12, 0, 0, 0, time.UTC)

func TestPriority_IsDeterministic(t *testing.T) {
	c := capdomain.NewCapture(uuid.New(), "write the report", capdomain.KindTask)
	c.SetImportanceFacets(5, 5, false, 0, 0, 3)
	c.SetConstraint(capdomain.DeadlineTime{At: referenceNow.Add(1 * time.Hour)})

	p1 := capdomain.Priority(c, referenceNow, 0)
	p2 := capdomain.Priority(c, referenceNow, 0)
	assert.Equal(t, p1, p2)
}

func TestPriority_CloserDeadlineScoresHigher(t *testing.T) {
	soon := capdomain.NewCapture(uuid.New(), "urgent", capdomain.KindTask)
	soon.SetConstraint(capdomain.DeadlineTime{At: referenceNow.Add(30 * time.Minute)})

	later := capdomain.NewCapture(uuid.New(), "not urgent", capdomain.KindTask)
	later.SetConstraint(capdomain.DeadlineTime{At: referenceNow.Add(20 * time.Hour)})

	require.Greater(t, capdomain.Priority(soon, referenceNow, 0), capdomain.Priority(later, referenceNow, 0))
}

func TestPriority_SoftStartHalvesDeadlineComponent(t *testing.T) {
	hard := capdomain.NewCapture(uuid.New(), "hard start", capdomain.KindTask)
	hard.SetConstraint(capdomain.StartTime{Target: referenceNow.Add(10 * time.Minute), IsSoftStart: false})

	soft := capdomain.NewCapture(uuid.New(), "soft start", capdomain.KindTask)
	soft.SetConstraint(capdomain.StartTime{Target: referenceNow.Add(10 * time.Minute), IsSoftStart: true})

	require.Greater(t, capdomain.Priority(hard, referenceNow, 0), capdomain.Priority(soft, referenceNow, 0))
}

func TestRigidity_CannotOverlapIncreasesRigidity(t *testing.T) {
	base := capdomain.NewCapture(uuid.New(), "movable", capdomain.KindTask)
	locked := capdomain.NewCapture(uuid.New(), "locked", capdomain.KindTask)
	locked.SetFlexibility(true, capdomain.StartFlexSoft, capdomain.DurationFixed, 30, 0)

	require.Greater(t, capdomain.Rigidity(locked, referenceNow, 0), capdomain.Rigidity(base, referenceNow, 0))
}

func TestRescheduleCost_ScalesWithMovedMinutes(t *testing.T) {
	c := capdomain.NewCapture(uuid.New(), "task", capdomain.KindTask)
	small := capdomain.RescheduleCost(c, referenceNow, 0, 10)
	large := capdomain.RescheduleCost(c, referenceNow, 0, 120)
	assert.Greater(t, large, small)
}
