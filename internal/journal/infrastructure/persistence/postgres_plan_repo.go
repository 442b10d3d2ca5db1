// Package persistence stores Plan aggregates using the teacher's generic
// Executor/pgx.Tx pattern (internal/shared/infrastructure/persistence),
// hand-written SQL rather than the sqlc-generated pattern used by
// internal/scheduling's own repositories — see DESIGN.md's persistence
// pattern decision.
package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/diaguru/scheduler/internal/journal/domain"
	sharedPersistence "github.com/diaguru/scheduler/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPlanRepository persists plans and their actions in PostgreSQL.
type PostgresPlanRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresPlanRepository(pool *pgxpool.Pool) *PostgresPlanRepository {
	return &PostgresPlanRepository{pool: pool}
}

// Save upserts the plan row and appends any actions not yet persisted.
// Plan Actions are immutable once written, so this only inserts new rows —
// it never updates an existing action.
func (r *PostgresPlanRepository) Save(ctx context.Context, plan *domain.Plan) error {
	exec := sharedPersistence.Executor(ctx, r.pool)

	_, err := exec.Exec(ctx, `
		INSERT INTO plan_runs (id, owner_id, summary, undone_at, undo_user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			summary = EXCLUDED.summary,
			undone_at = EXCLUDED.undone_at,
			undo_user_id = EXCLUDED.undo_user_id,
			updated_at = EXCLUDED.updated_at
	`, plan.ID(), plan.OwnerID(), plan.Summary(), plan.UndoneAt(), plan.UndoUserID(), plan.CreatedAt(), plan.UpdatedAt())
	if err != nil {
		return err
	}

	for _, action := range plan.Actions() {
		prev, err := json.Marshal(action.Prev)
		if err != nil {
			return err
		}
		next, err := json.Marshal(action.Next)
		if err != nil {
			return err
		}
		if _, err := exec.Exec(ctx, `
			INSERT INTO plan_actions (id, plan_id, capture_id, capture_content, action_type, prev_snapshot, next_snapshot, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING
		`, action.ID, action.PlanID, action.CaptureID, action.CaptureContent, string(action.ActionType), prev, next, action.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

// FindByID loads a plan with its actions ordered by creation (append order).
func (r *PostgresPlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)

	var (
		ownerID                uuid.UUID
		summary                string
		undoneAt               *time.Time
		undoUserID             *uuid.UUID
		createdAt, updatedAt   time.Time
	)
	row := exec.QueryRow(ctx, `
		SELECT owner_id, summary, undone_at, undo_user_id, created_at, updated_at
		FROM plan_runs WHERE id = $1
	`, id)
	if err := row.Scan(&ownerID, &summary, &undoneAt, &undoUserID, &createdAt, &updatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrPlanNotFound
		}
		return nil, err
	}

	actions, err := r.loadActions(ctx, exec, id)
	if err != nil {
		return nil, err
	}

	return domain.RehydratePlan(id, ownerID, summary, undoneAt, undoUserID, actions, createdAt, updatedAt), nil
}

func (r *PostgresPlanRepository) loadActions(ctx context.Context, exec sharedPersistence.DBExecutor, planID uuid.UUID) ([]domain.PlanAction, error) {
	rows, err := exec.Query(ctx, `
		SELECT id, plan_id, capture_id, capture_content, action_type, prev_snapshot, next_snapshot, created_at
		FROM plan_actions WHERE plan_id = $1 ORDER BY created_at ASC
	`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	actions := make([]domain.PlanAction, 0)
	for rows.Next() {
		var (
			a             domain.PlanAction
			actionType    string
			prev, next    []byte
		)
		if err := rows.Scan(&a.ID, &a.PlanID, &a.CaptureID, &a.CaptureContent, &actionType, &prev, &next, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.ActionType = domain.ActionType(actionType)
		if err := json.Unmarshal(prev, &a.Prev); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(next, &a.Next); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}
