// Package calendargw defines the Calendar Gateway contract (§4.7): a thin,
// typed interface over an external calendar provider, with Google Calendar
// as the reference implementation and CalDAV as a second provider
// demonstrating the interface is provider-neutral.
package calendargw

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrPreconditionFailed is returned when a delete's If-Match etag no longer
// matches the remote event (HTTP 412); callers must re-fetch and retry once.
var ErrPreconditionFailed = errors.New("calendargw: precondition failed (etag mismatch)")

// ErrNotFound is returned when an event id has no matching remote event.
// A delete against a missing event is treated as success by callers, not
// as this error.
var ErrNotFound = errors.New("calendargw: event not found")

// ErrNotLinked is returned when no usable provider token exists after a
// refresh attempt (§4.7 token lifecycle, §7 "not_linked").
var ErrNotLinked = errors.New("calendargw: account not linked or needs reconnect")

// DiaGuruTag is the extended-property key marking an event as managed by
// this system (§6 "Remote event extended properties").
const DiaGuruTag = "diaGuru"

// Event is a remote calendar event, reduced to the fields this system cares
// about. ExtendedProperties carries diaGuru/capture_id/action_id/plan_id/
// priority_snapshot on managed events; absence of DiaGuruTag marks it external.
type Event struct {
	ID                 string
	Summary            string
	Start              time.Time
	End                time.Time
	ETag               string
	ExtendedProperties map[string]string
}

// IsManaged reports whether the event carries this system's tag.
func (e Event) IsManaged() bool {
	return e.ExtendedProperties[DiaGuruTag] == "true"
}

// CaptureID returns the managed event's originating capture id, if tagged.
func (e Event) CaptureID() (uuid.UUID, bool) {
	raw, ok := e.ExtendedProperties["capture_id"]
	if !ok {
		return uuid.UUID{}, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, false
	}
	return id, true
}

// CreateEventParams describes a new managed event (§4.7).
type CreateEventParams struct {
	CaptureID       uuid.UUID
	PlanID          uuid.UUID
	ActionID        uuid.UUID
	Summary         string
	Start           time.Time
	End             time.Time
	PriorityScore   float64
}

// DeleteEventParams carries the optimistic-concurrency etag, when known.
type DeleteEventParams struct {
	EventID string
	ETag    string // empty means unconditional delete
}

// Gateway is the capability set required of any calendar provider (§4.7).
type Gateway interface {
	// ListEvents returns events (managed and external) overlapping
	// [timeMin, timeMax).
	ListEvents(ctx context.Context, userID uuid.UUID, timeMin, timeMax time.Time) ([]Event, error)

	// CreateEvent creates a new managed event and returns its id/etag.
	CreateEvent(ctx context.Context, userID uuid.UUID, params CreateEventParams) (Event, error)

	// DeleteEvent deletes a managed event. A 412 (etag mismatch) surfaces
	// as ErrPreconditionFailed; callers must GetEvent and retry once. A
	// 404 is treated as success (no error).
	DeleteEvent(ctx context.Context, userID uuid.UUID, params DeleteEventParams) error

	// GetEvent re-fetches a single event, used for conflict repair after a
	// 412 (§4.7).
	GetEvent(ctx context.Context, userID uuid.UUID, eventID string) (Event, error)
}
