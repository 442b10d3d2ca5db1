package normalize_test

import (
	"testing"
	"time"

	capdomain "github.com/diaguru/scheduler/internal/capture/domain"
	"github.com/diaguru/scheduler/internal/capture/normalize"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 10, 25, 12, 0, 0, 0, time.UTC)

func TestNormalize_Sleep(t *testing.T) {
	c := capdomain.NewCapture(uuid.New(), "sleep", capdomain.KindTask)
	normalize.Normalize(c, now, 0)

	assert.Equal(t, capdomain.KindRoutineSleep, c.Kind())
	assert.True(t, c.CannotOverlap())
	assert.Equal(t, capdomain.StartFlexSoft, c.StartFlexibility())

	win, ok := c.Constraint().(capdomain.Window)
	require.True(t, ok)
	assert.Equal(t, 22, win.Start.Hour())
	assert.Equal(t, 30, win.Start.Minute())
	assert.Equal(t, 7, win.End.Hour())
}

func TestNormalize_Meal(t *testing.T) {
	c := capdomain.NewCapture(uuid.New(), "dinner with family", capdomain.KindTask)
	normalize.Normalize(c, now, 0)

	assert.Equal(t, capdomain.KindRoutineMeal, c.Kind())
	assert.False(t, c.CannotOverlap())

	win, ok := c.Constraint().(capdomain.Window)
	require.True(t, ok)
	assert.Equal(t, 18, win.Start.Hour())
	assert.Equal(t, 20, win.End.Hour())
}

func TestNormalize_BeforeSleepDeadline(t *testing.T) {
	c := capdomain.NewCapture(uuid.New(), "read a chapter before sleep", capdomain.KindTask)
	normalize.Normalize(c, now, 0)

	dl, ok := c.Constraint().(capdomain.DeadlineTime)
	require.True(t, ok)
	assert.Equal(t, 23, dl.At.Hour())
	assert.Equal(t, 30, dl.At.Minute())
}

func TestNormalize_IsIdempotent(t *testing.T) {
	c := capdomain.NewCapture(uuid.New(), "sleep", capdomain.KindTask)
	normalize.Normalize(c, now, 0)
	first := c.Constraint()
	normalize.Normalize(c, now, 0)
	assert.Equal(t, first, c.Constraint())
}

func TestNormalize_Unaffected(t *testing.T) {
	c := capdomain.NewCapture(uuid.New(), "write quarterly report", capdomain.KindTask)
	normalize.Normalize(c, now, 0)
	assert.Equal(t, capdomain.KindTask, c.Kind())
	_, isFlexible := c.Constraint().(capdomain.Flexible)
	assert.True(t, isFlexible)
}
