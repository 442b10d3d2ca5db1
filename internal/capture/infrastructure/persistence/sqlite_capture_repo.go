package persistence

import (
	"context"
	"database/sql"
	"time"

	capdomain "github.com/diaguru/scheduler/internal/capture/domain"
	"github.com/google/uuid"
)

// SQLiteCaptureRepository persists captures in SQLite.
type SQLiteCaptureRepository struct {
	db *sql.DB
}

func NewSQLiteCaptureRepository(db *sql.DB) *SQLiteCaptureRepository {
	return &SQLiteCaptureRepository{db: db}
}

func (r *SQLiteCaptureRepository) Save(ctx context.Context, c *capdomain.Capture) error {
	kind, t1, t2, softStart := encodeConstraint(c.Constraint())

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO capture_entries (
			id, owner_id, content, kind, estimated_minutes,
			urgency, impact, blocking, reschedule_penalty, externality_score, importance,
			constraint_type, constraint_t1, constraint_t2, constraint_soft_start,
			cannot_overlap, start_flexibility, duration_flexibility, min_chunk_minutes, max_splits,
			status, planned_start, planned_end, calendar_event_id, calendar_event_etag,
			reschedule_count, freeze_until, plan_id, scheduling_notes,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			content = excluded.content, kind = excluded.kind, estimated_minutes = excluded.estimated_minutes,
			urgency = excluded.urgency, impact = excluded.impact, blocking = excluded.blocking,
			reschedule_penalty = excluded.reschedule_penalty, externality_score = excluded.externality_score,
			importance = excluded.importance, constraint_type = excluded.constraint_type,
			constraint_t1 = excluded.constraint_t1, constraint_t2 = excluded.constraint_t2,
			constraint_soft_start = excluded.constraint_soft_start, cannot_overlap = excluded.cannot_overlap,
			start_flexibility = excluded.start_flexibility, duration_flexibility = excluded.duration_flexibility,
			min_chunk_minutes = excluded.min_chunk_minutes, max_splits = excluded.max_splits,
			status = excluded.status, planned_start = excluded.planned_start, planned_end = excluded.planned_end,
			calendar_event_id = excluded.calendar_event_id, calendar_event_etag = excluded.calendar_event_etag,
			reschedule_count = excluded.reschedule_count, freeze_until = excluded.freeze_until,
			plan_id = excluded.plan_id, scheduling_notes = excluded.scheduling_notes, updated_at = excluded.updated_at
	`,
		c.ID().String(), c.OwnerID().String(), c.Content(), string(c.Kind()), c.EstimatedMinutes(),
		c.Urgency(), c.Impact(), boolToInt(c.Blocking()), c.ReschedulePenalty(), c.ExternalityScore(), c.Importance(),
		kind, formatTimePtr(t1), formatTimePtr(t2), boolToInt(softStart),
		boolToInt(c.CannotOverlap()), string(c.StartFlexibility()), string(c.DurationFlexibility()), c.MinChunkMinutes(), c.MaxSplits(),
		string(c.Status()), formatTimePtr(c.PlannedStart()), formatTimePtr(c.PlannedEnd()), c.CalendarEventID(), c.CalendarEventETag(),
		c.RescheduleCount(), formatTimePtr(c.FreezeUntil()), uuidPtrString(c.PlanID()), c.SchedulingNotes(),
		c.CreatedAt().Format(time.RFC3339), c.UpdatedAt().Format(time.RFC3339),
	)
	return err
}

func (r *SQLiteCaptureRepository) FindByID(ctx context.Context, id uuid.UUID) (*capdomain.Capture, error) {
	row := r.db.QueryRowContext(ctx, selectCaptureColumnsSQLite+` FROM capture_entries WHERE id = ?`, id.String())
	c, err := scanSQLiteCapture(row)
	if err == sql.ErrNoRows {
		return nil, capdomain.ErrCaptureNotFound
	}
	return c, err
}

func (r *SQLiteCaptureRepository) FindByOwnerAndStatus(ctx context.Context, ownerID uuid.UUID, status capdomain.Status) ([]*capdomain.Capture, error) {
	rows, err := r.db.QueryContext(ctx, selectCaptureColumnsSQLite+` FROM capture_entries WHERE owner_id = ? AND status = ?`, ownerID.String(), string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*capdomain.Capture
	for rows.Next() {
		c, err := scanSQLiteCapture(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteCaptureRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM capture_entries WHERE id = ?`, id.String())
	return err
}

const selectCaptureColumnsSQLite = `
	SELECT id, owner_id, content, kind, estimated_minutes,
		urgency, impact, blocking, reschedule_penalty, externality_score, importance,
		constraint_type, constraint_t1, constraint_t2, constraint_soft_start,
		cannot_overlap, start_flexibility, duration_flexibility, min_chunk_minutes, max_splits,
		status, planned_start, planned_end, calendar_event_id, calendar_event_etag,
		reschedule_count, freeze_until, plan_id, scheduling_notes,
		created_at, updated_at`

type sqliteRowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteCapture(row sqliteRowScanner) (*capdomain.Capture, error) {
	var (
		idStr, ownerIDStr                       string
		content, kind, status                   string
		estimatedMinutes, urgency, impact       int
		importance, minChunkMinutes, maxSplits  int
		blocking, cannotOverlap, softStart       int
		reschedulePenalty, rescheduleCount      int
		externalityScore                        float64
		constraintType, startFlex, durFlex      string
		constraintT1, constraintT2               sql.NullString
		plannedStart, plannedEnd, freezeUntil    sql.NullString
		calendarEventID, calendarEventETag       string
		planIDStr                                sql.NullString
		schedulingNotes                          string
		createdAtStr, updatedAtStr               string
	)

	if err := row.Scan(
		&idStr, &ownerIDStr, &content, &kind, &estimatedMinutes,
		&urgency, &impact, &blocking, &reschedulePenalty, &externalityScore, &importance,
		&constraintType, &constraintT1, &constraintT2, &softStart,
		&cannotOverlap, &startFlex, &durFlex, &minChunkMinutes, &maxSplits,
		&status, &plannedStart, &plannedEnd, &calendarEventID, &calendarEventETag,
		&rescheduleCount, &freezeUntil, &planIDStr, &schedulingNotes,
		&createdAtStr, &updatedAtStr,
	); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	ownerID, err := uuid.Parse(ownerIDStr)
	if err != nil {
		return nil, err
	}

	constraint, err := decodeConstraint(constraintType, parseTimePtr(constraintT1), parseTimePtr(constraintT2), softStart == 1)
	if err != nil {
		return nil, err
	}

	var planID *uuid.UUID
	if planIDStr.Valid {
		p, err := uuid.Parse(planIDStr.String)
		if err == nil {
			planID = &p
		}
	}

	createdAt, _ := time.Parse(time.RFC3339, createdAtStr)
	updatedAt, _ := time.Parse(time.RFC3339, updatedAtStr)

	return capdomain.RehydrateCapture(
		id, ownerID, content, capdomain.Kind(kind), estimatedMinutes,
		urgency, impact, blocking == 1, reschedulePenalty, externalityScore, importance,
		constraint, cannotOverlap == 1, capdomain.StartFlexibility(startFlex), capdomain.DurationFlexibility(durFlex),
		minChunkMinutes, maxSplits, capdomain.Status(status),
		parseTimePtr(plannedStart), parseTimePtr(plannedEnd), calendarEventID, calendarEventETag,
		rescheduleCount, parseTimePtr(freezeUntil), planID, nil, schedulingNotes,
		createdAt, updatedAt,
	), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func uuidPtrString(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}
