package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrCaptureNotFound is returned when a capture id has no matching row.
var ErrCaptureNotFound = errors.New("capture not found")

// Repository persists and retrieves Capture aggregates.
type Repository interface {
	Save(ctx context.Context, capture *Capture) error
	FindByID(ctx context.Context, id uuid.UUID) (*Capture, error)
	// FindByOwnerAndStatus lists captures for a user in a given status,
	// used to collect busy/managed intervals and cascade candidates.
	FindByOwnerAndStatus(ctx context.Context, ownerID uuid.UUID, status Status) ([]*Capture, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
