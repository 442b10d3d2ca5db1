package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/diaguru/scheduler/internal/journal/domain"
	"github.com/google/uuid"
)

// SQLitePlanRepository persists plans and their actions in SQLite.
type SQLitePlanRepository struct {
	db *sql.DB
}

func NewSQLitePlanRepository(db *sql.DB) *SQLitePlanRepository {
	return &SQLitePlanRepository{db: db}
}

func (r *SQLitePlanRepository) Save(ctx context.Context, plan *domain.Plan) error {
	var undoneAt, undoUserID sql.NullString
	if plan.UndoneAt() != nil {
		undoneAt = sql.NullString{String: plan.UndoneAt().Format(time.RFC3339), Valid: true}
	}
	if plan.UndoUserID() != nil {
		undoUserID = sql.NullString{String: plan.UndoUserID().String(), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO plan_runs (id, owner_id, summary, undone_at, undo_user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			summary = excluded.summary,
			undone_at = excluded.undone_at,
			undo_user_id = excluded.undo_user_id,
			updated_at = excluded.updated_at
	`, plan.ID().String(), plan.OwnerID().String(), plan.Summary(), undoneAt, undoUserID,
		plan.CreatedAt().Format(time.RFC3339), plan.UpdatedAt().Format(time.RFC3339))
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
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO plan_actions (id, plan_id, capture_id, capture_content, action_type, prev_snapshot, next_snapshot, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO NOTHING
		`, action.ID.String(), action.PlanID.String(), action.CaptureID.String(), action.CaptureContent,
			string(action.ActionType), string(prev), string(next), action.CreatedAt.Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLitePlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	var ownerIDStr, summary, createdAtStr, updatedAtStr string
	var undoneAt, undoUserID sql.NullString

	row := r.db.QueryRowContext(ctx, `
		SELECT owner_id, summary, undone_at, undo_user_id, created_at, updated_at
		FROM plan_runs WHERE id = ?
	`, id.String())
	if err := row.Scan(&ownerIDStr, &summary, &undoneAt, &undoUserID, &createdAtStr, &updatedAtStr); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrPlanNotFound
		}
		return nil, err
	}

	ownerID, err := uuid.Parse(ownerIDStr)
	if err != nil {
		return nil, err
	}
	createdAt, _ := time.Parse(time.RFC3339, createdAtStr)
	updatedAt, _ := time.Parse(time.RFC3339, updatedAtStr)

	var undoneAtPtr *time.Time
	if undoneAt.Valid {
		t, _ := time.Parse(time.RFC3339, undoneAt.String)
		undoneAtPtr = &t
	}
	var undoUserIDPtr *uuid.UUID
	if undoUserID.Valid {
		u, err := uuid.Parse(undoUserID.String)
		if err == nil {
			undoUserIDPtr = &u
		}
	}

	actions, err := r.loadActions(ctx, id)
	if err != nil {
		return nil, err
	}

	return domain.RehydratePlan(id, ownerID, summary, undoneAtPtr, undoUserIDPtr, actions, createdAt, updatedAt), nil
}

func (r *SQLitePlanRepository) loadActions(ctx context.Context, planID uuid.UUID) ([]domain.PlanAction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, plan_id, capture_id, capture_content, action_type, prev_snapshot, next_snapshot, created_at
		FROM plan_actions WHERE plan_id = ? ORDER BY created_at ASC
	`, planID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	actions := make([]domain.PlanAction, 0)
	for rows.Next() {
		var idStr, planIDStr, captureIDStr, actionType, createdAtStr string
		var prevJSON, nextJSON string
		var captureContent string
		if err := rows.Scan(&idStr, &planIDStr, &captureIDStr, &captureContent, &actionType, &prevJSON, &nextJSON, &createdAtStr); err != nil {
			return nil, err
		}

		var a domain.PlanAction
		a.ID, _ = uuid.Parse(idStr)
		a.PlanID, _ = uuid.Parse(planIDStr)
		a.CaptureID, _ = uuid.Parse(captureIDStr)
		a.CaptureContent = captureContent
		a.ActionType = domain.ActionType(actionType)
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)
		if err := json.Unmarshal([]byte(prevJSON), &a.Prev); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(nextJSON), &a.Next); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}
