// Package planner implements the Constraint Planner, Slot Search, and
// Conflict Resolver & Preemption components (§4.4-§4.6), grounded on the
// teacher's internal/scheduling/application/services package
// (SchedulerEngine, ConflictResolver, CandidateCollector).
package planner

import (
	"sort"
	"time"

	"github.com/diaguru/scheduler/internal/calendargw"
)

// StandardBuffer is the default busy-interval inflation (§4.5).
const StandardBuffer = 30 * time.Minute

// CompressedBuffer is used only during preemption search in deadline mode
// (§4.6.c).
const CompressedBuffer = 15 * time.Minute

// BusyInterval is an inflated `[Start, End)` band derived from a remote
// event, used to keep slot search from proposing a slot that abuts another
// event too closely.
type BusyInterval struct {
	Start      time.Time
	End        time.Time
	Event      calendargw.Event
}

// InflateBusy builds the sorted busy-interval list from remote events,
// inflating each by buffer on both sides (§4.5).
func InflateBusy(events []calendargw.Event, buffer time.Duration) []BusyInterval {
	out := make([]BusyInterval, 0, len(events))
	for _, e := range events {
		out = append(out, BusyInterval{
			Start: e.Start.Add(-buffer),
			End:   e.End.Add(buffer),
			Event: e,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// IsFree reports whether [s, e) avoids every busy interval.
func IsFree(s, e time.Time, busy []BusyInterval) bool {
	for _, b := range busy {
		if s.Before(b.End) && b.Start.Before(e) {
			return false
		}
	}
	return true
}

// ExcludeEvent returns busy with any interval originating from the given
// event id removed — used when replanning the capture that currently
// occupies the slot being searched (the teacher's `excludeID` pattern in
// availableSlotsExcluding).
func ExcludeEvent(busy []BusyInterval, eventID string) []BusyInterval {
	if eventID == "" {
		return busy
	}
	out := make([]BusyInterval, 0, len(busy))
	for _, b := range busy {
		if b.Event.ID == eventID {
			continue
		}
		out = append(out, b)
	}
	return out
}
