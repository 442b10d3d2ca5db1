// Package domain models the per-user calendar account binding and its
// encrypted token pair, grounded on
// internal/identity/application/oauth/service.go's StoredToken shape
// but promoted to its own aggregate since §3's Calendar Account/Token
// entity owns the needs_reconnect flag the teacher's oauth package
// never needed.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrAccountNotFound = errors.New("oauthtoken: calendar account not found")

// RefreshSkew is how long before expiry a token is treated as already
// expired, forcing a refresh ahead of time (§4.7 "within 30s of expiry").
const RefreshSkew = 30 * time.Second

// Account is a user's binding to one calendar provider.
type Account struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Provider       string
	NeedsReconnect bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Token is the encrypted-at-rest OAuth token pair for an Account.
type Token struct {
	AccountID    uuid.UUID
	AccessToken  []byte // ciphertext
	RefreshToken []byte // ciphertext, may be empty if the provider didn't reissue one
	TokenType    string
	Expiry       time.Time
}

// NeedsRefresh reports whether a token must be refreshed before use:
// missing, expired, or within RefreshSkew of expiry (§4.7).
func (t Token) NeedsRefresh(now time.Time) bool {
	if len(t.AccessToken) == 0 {
		return true
	}
	return !now.Before(t.Expiry.Add(-RefreshSkew))
}

// AccountRepository persists calendar account bindings.
type AccountRepository interface {
	Save(ctx context.Context, account Account) error
	FindByUserAndProvider(ctx context.Context, userID uuid.UUID, provider string) (*Account, error)
}

// TokenRepository persists the encrypted token pair for an account.
type TokenRepository interface {
	Save(ctx context.Context, token Token) error
	FindByAccountID(ctx context.Context, accountID uuid.UUID) (*Token, error)
}
