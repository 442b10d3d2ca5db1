package planner

import (
	"sort"
	"time"

	capdomain "github.com/diaguru/scheduler/internal/capture/domain"
)

// CascadeResult is one displaced capture's outcome after replanning.
type CascadeResult struct {
	Capture *capdomain.Capture
	Slot    Slot
	Placed  bool
	Reason  string
}

// Cascade replans every displaced capture against the busy set that now
// includes the target's newly placed slot (§4.6 "Cascade Reschedule").
// Displaced captures are sorted by priority desc, then importance desc,
// then shorter duration, then earliest creation (§4.6, DESIGN.md tie-break
// decision). Cascade never recursively preempts a third layer — each
// replan is a plain slot search, not another Resolve call.
func Cascade(displaced []*capdomain.Capture, busy []BusyInterval, now time.Time, offset time.Duration) []CascadeResult {
	ordered := make([]*capdomain.Capture, len(displaced))
	copy(ordered, displaced)
	sort.Slice(ordered, func(i, j int) bool {
		pi := capdomain.Priority(ordered[i], now, offset)
		pj := capdomain.Priority(ordered[j], now, offset)
		if pi != pj {
			return pi > pj
		}
		if ordered[i].Importance() != ordered[j].Importance() {
			return ordered[i].Importance() > ordered[j].Importance()
		}
		di := ordered[i].EstimatedDuration()
		dj := ordered[j].EstimatedDuration()
		if di != dj {
			return di < dj
		}
		return ordered[i].CreatedAt().Before(ordered[j].CreatedAt())
	})

	results := make([]CascadeResult, 0, len(ordered))
	working := append([]BusyInterval(nil), busy...)

	for _, c := range ordered {
		plan := BuildPlan(c, now, offset)
		slot, err := ScheduleWithPlan(plan, c.EstimatedDuration(), offset, now, working)
		if err != nil {
			results = append(results, CascadeResult{
				Capture: c,
				Placed:  false,
				Reason:  "cascade reschedule found no feasible slot: " + err.Error(),
			})
			continue
		}
		if verr := ValidateAgainstDeadline(slot, plan); verr != nil {
			results = append(results, CascadeResult{
				Capture: c,
				Placed:  false,
				Reason:  "cascade reschedule candidate violated deadline: " + verr.Error(),
			})
			continue
		}
		results = append(results, CascadeResult{Capture: c, Slot: slot, Placed: true})
		working = append(working, BusyInterval{Start: slot.Start.Add(-StandardBuffer), End: slot.End.Add(StandardBuffer)})
	}
	return results
}
