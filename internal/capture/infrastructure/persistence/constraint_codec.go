// Package persistence stores the Capture aggregate as a flat row, per §9's
// note that "the many optional timestamp fields in the data model persist a
// flat record for storage, but the in-memory representation ... should be
// the variant" — this file is the boundary between the two shapes.
package persistence

import (
	"fmt"
	"time"

	capdomain "github.com/diaguru/scheduler/internal/capture/domain"
)

const (
	constraintFlexible     = "flexible"
	constraintDeadlineTime = "deadline_time"
	constraintDeadlineDate = "deadline_date"
	constraintStartTime    = "start_time"
	constraintWindow       = "window"
)

// encodeConstraint flattens a ConstraintSpec into a type tag plus up to two
// timestamps and a soft-start flag, matching the column set a single table
// row can hold without a nullable column per variant field.
func encodeConstraint(spec capdomain.ConstraintSpec) (kind string, t1, t2 *time.Time, softStart bool) {
	switch s := spec.(type) {
	case capdomain.DeadlineTime:
		return constraintDeadlineTime, &s.At, nil, false
	case capdomain.DeadlineDate:
		return constraintDeadlineDate, &s.Date, nil, false
	case capdomain.StartTime:
		orig := s.OriginalTarget
		return constraintStartTime, &s.Target, &orig, s.IsSoftStart
	case capdomain.Window:
		return constraintWindow, &s.Start, &s.End, false
	default:
		return constraintFlexible, nil, nil, false
	}
}

// decodeConstraint reverses encodeConstraint.
func decodeConstraint(kind string, t1, t2 *time.Time, softStart bool) (capdomain.ConstraintSpec, error) {
	switch kind {
	case constraintFlexible, "":
		return capdomain.Flexible{}, nil
	case constraintDeadlineTime:
		if t1 == nil {
			return nil, fmt.Errorf("persistence: deadline_time constraint missing timestamp")
		}
		return capdomain.DeadlineTime{At: *t1}, nil
	case constraintDeadlineDate:
		if t1 == nil {
			return nil, fmt.Errorf("persistence: deadline_date constraint missing timestamp")
		}
		return capdomain.DeadlineDate{Date: *t1}, nil
	case constraintStartTime:
		if t1 == nil {
			return nil, fmt.Errorf("persistence: start_time constraint missing timestamp")
		}
		original := *t1
		if t2 != nil {
			original = *t2
		}
		return capdomain.StartTime{Target: *t1, OriginalTarget: original, IsSoftStart: softStart}, nil
	case constraintWindow:
		if t1 == nil || t2 == nil {
			return nil, fmt.Errorf("persistence: window constraint missing bounds")
		}
		return capdomain.Window{Start: *t1, End: *t2}, nil
	default:
		return nil, fmt.Errorf("persistence: unknown constraint kind %q", kind)
	}
}
