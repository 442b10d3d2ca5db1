package orchestrator

import (
	"context"

	"github.com/diaguru/scheduler/internal/calendargw"
	"github.com/google/uuid"
)

// GatewayResolver resolves the calendar gateway to use for a given user,
// grounded on the teacher's MultiProviderOAuthService
// (internal/identity/application/oauth/multi_provider_service.go), which
// picks a provider-specific service by name rather than hardcoding one
// provider into the caller. A deployment with a single configured provider
// can implement this as a constant-return function.
type GatewayResolver interface {
	Resolve(ctx context.Context, userID uuid.UUID) (calendargw.Gateway, error)
}

// StaticGatewayResolver always resolves to the same gateway, the common
// case for a single-provider deployment (e.g. Google-only, or CalDAV-only).
type StaticGatewayResolver struct {
	Gateway calendargw.Gateway
}

func (r StaticGatewayResolver) Resolve(ctx context.Context, userID uuid.UUID) (calendargw.Gateway, error) {
	return r.Gateway, nil
}
