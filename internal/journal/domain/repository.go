package domain

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists Plan aggregates, including their owned Plan Actions.
type Repository interface {
	Save(ctx context.Context, plan *Plan) error
	FindByID(ctx context.Context, id uuid.UUID) (*Plan, error)
}
