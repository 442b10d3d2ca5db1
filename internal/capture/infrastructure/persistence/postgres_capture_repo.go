package persistence

import (
	"context"
	"time"

	capdomain "github.com/diaguru/scheduler/internal/capture/domain"
	sharedPersistence "github.com/diaguru/scheduler/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCaptureRepository persists captures in PostgreSQL.
type PostgresCaptureRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresCaptureRepository(pool *pgxpool.Pool) *PostgresCaptureRepository {
	return &PostgresCaptureRepository{pool: pool}
}

func (r *PostgresCaptureRepository) Save(ctx context.Context, c *capdomain.Capture) error {
	exec := sharedPersistence.Executor(ctx, r.pool)
	kind, t1, t2, softStart := encodeConstraint(c.Constraint())

	_, err := exec.Exec(ctx, `
		INSERT INTO capture_entries (
			id, owner_id, content, kind, estimated_minutes,
			urgency, impact, blocking, reschedule_penalty, externality_score, importance,
			constraint_type, constraint_t1, constraint_t2, constraint_soft_start,
			cannot_overlap, start_flexibility, duration_flexibility, min_chunk_minutes, max_splits,
			status, planned_start, planned_end, calendar_event_id, calendar_event_etag,
			reschedule_count, freeze_until, plan_id, manual_touch_at, scheduling_notes,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
			$20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32
		)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content, kind = EXCLUDED.kind, estimated_minutes = EXCLUDED.estimated_minutes,
			urgency = EXCLUDED.urgency, impact = EXCLUDED.impact, blocking = EXCLUDED.blocking,
			reschedule_penalty = EXCLUDED.reschedule_penalty, externality_score = EXCLUDED.externality_score,
			importance = EXCLUDED.importance, constraint_type = EXCLUDED.constraint_type,
			constraint_t1 = EXCLUDED.constraint_t1, constraint_t2 = EXCLUDED.constraint_t2,
			constraint_soft_start = EXCLUDED.constraint_soft_start, cannot_overlap = EXCLUDED.cannot_overlap,
			start_flexibility = EXCLUDED.start_flexibility, duration_flexibility = EXCLUDED.duration_flexibility,
			min_chunk_minutes = EXCLUDED.min_chunk_minutes, max_splits = EXCLUDED.max_splits,
			status = EXCLUDED.status, planned_start = EXCLUDED.planned_start, planned_end = EXCLUDED.planned_end,
			calendar_event_id = EXCLUDED.calendar_event_id, calendar_event_etag = EXCLUDED.calendar_event_etag,
			reschedule_count = EXCLUDED.reschedule_count, freeze_until = EXCLUDED.freeze_until,
			plan_id = EXCLUDED.plan_id, manual_touch_at = EXCLUDED.manual_touch_at,
			scheduling_notes = EXCLUDED.scheduling_notes, updated_at = EXCLUDED.updated_at
	`,
		c.ID(), c.OwnerID(), c.Content(), string(c.Kind()), c.EstimatedMinutes(),
		c.Urgency(), c.Impact(), c.Blocking(), c.ReschedulePenalty(), c.ExternalityScore(), c.Importance(),
		kind, t1, t2, softStart,
		c.CannotOverlap(), string(c.StartFlexibility()), string(c.DurationFlexibility()), c.MinChunkMinutes(), c.MaxSplits(),
		string(c.Status()), c.PlannedStart(), c.PlannedEnd(), c.CalendarEventID(), c.CalendarEventETag(),
		c.RescheduleCount(), c.FreezeUntil(), c.PlanID(), nil, c.SchedulingNotes(),
		c.CreatedAt(), c.UpdatedAt(),
	)
	return err
}

func (r *PostgresCaptureRepository) FindByID(ctx context.Context, id uuid.UUID) (*capdomain.Capture, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)
	row := exec.QueryRow(ctx, selectCaptureColumns+` FROM capture_entries WHERE id = $1`, id)
	c, err := scanPostgresCapture(row)
	if err == pgx.ErrNoRows {
		return nil, capdomain.ErrCaptureNotFound
	}
	return c, err
}

func (r *PostgresCaptureRepository) FindByOwnerAndStatus(ctx context.Context, ownerID uuid.UUID, status capdomain.Status) ([]*capdomain.Capture, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)
	rows, err := exec.Query(ctx, selectCaptureColumns+` FROM capture_entries WHERE owner_id = $1 AND status = $2`, ownerID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*capdomain.Capture
	for rows.Next() {
		c, err := scanPostgresCapture(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresCaptureRepository) Delete(ctx context.Context, id uuid.UUID) error {
	exec := sharedPersistence.Executor(ctx, r.pool)
	_, err := exec.Exec(ctx, `DELETE FROM capture_entries WHERE id = $1`, id)
	return err
}

const selectCaptureColumns = `
	SELECT id, owner_id, content, kind, estimated_minutes,
		urgency, impact, blocking, reschedule_penalty, externality_score, importance,
		constraint_type, constraint_t1, constraint_t2, constraint_soft_start,
		cannot_overlap, start_flexibility, duration_flexibility, min_chunk_minutes, max_splits,
		status, planned_start, planned_end, calendar_event_id, calendar_event_etag,
		reschedule_count, freeze_until, plan_id, scheduling_notes,
		created_at, updated_at`

type pgRowScanner interface {
	Scan(dest ...any) error
}

func scanPostgresCapture(row pgRowScanner) (*capdomain.Capture, error) {
	var (
		id, ownerID                             uuid.UUID
		content, kind, status                   string
		estimatedMinutes, urgency, impact       int
		importance, minChunkMinutes, maxSplits  int
		blocking, cannotOverlap                 bool
		reschedulePenalty, rescheduleCount      int
		externalityScore                        float64
		constraintType, startFlex, durFlex      string
		constraintT1, constraintT2              *time.Time
		softStart                               bool
		plannedStart, plannedEnd, freezeUntil   *time.Time
		calendarEventID, calendarEventETag      string
		planID                                  *uuid.UUID
		schedulingNotes                         string
		createdAt, updatedAt                    time.Time
	)

	if err := row.Scan(
		&id, &ownerID, &content, &kind, &estimatedMinutes,
		&urgency, &impact, &blocking, &reschedulePenalty, &externalityScore, &importance,
		&constraintType, &constraintT1, &constraintT2, &softStart,
		&cannotOverlap, &startFlex, &durFlex, &minChunkMinutes, &maxSplits,
		&status, &plannedStart, &plannedEnd, &calendarEventID, &calendarEventETag,
		&rescheduleCount, &freezeUntil, &planID, &schedulingNotes,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	constraint, err := decodeConstraint(constraintType, constraintT1, constraintT2, softStart)
	if err != nil {
		return nil, err
	}

	return capdomain.RehydrateCapture(
		id, ownerID, content, capdomain.Kind(kind), estimatedMinutes,
		urgency, impact, blocking, reschedulePenalty, externalityScore, importance,
		constraint, cannotOverlap, capdomain.StartFlexibility(startFlex), capdomain.DurationFlexibility(durFlex),
		minChunkMinutes, maxSplits, capdomain.Status(status),
		plannedStart, plannedEnd, calendarEventID, calendarEventETag,
		rescheduleCount, freezeUntil, planID, nil, schedulingNotes,
		createdAt, updatedAt,
	), nil
}
