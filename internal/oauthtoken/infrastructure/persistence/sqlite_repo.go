package persistence

import (
	"context"
	"database/sql"
	"time"

	oauthdomain "github.com/diaguru/scheduler/internal/oauthtoken/domain"
	"github.com/google/uuid"
)

// SQLiteAccountRepository persists calendar account bindings in SQLite.
type SQLiteAccountRepository struct {
	db *sql.DB
}

func NewSQLiteAccountRepository(db *sql.DB) *SQLiteAccountRepository {
	return &SQLiteAccountRepository{db: db}
}

func (r *SQLiteAccountRepository) Save(ctx context.Context, account oauthdomain.Account) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO calendar_accounts (id, user_id, provider, needs_reconnect, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET needs_reconnect = excluded.needs_reconnect, updated_at = excluded.updated_at
	`, account.ID.String(), account.UserID.String(), account.Provider, boolToInt(account.NeedsReconnect), now, now)
	return err
}

func (r *SQLiteAccountRepository) FindByUserAndProvider(ctx context.Context, userID uuid.UUID, provider string) (*oauthdomain.Account, error) {
	var (
		idStr, userIDStr                string
		providerOut                     string
		needsReconnect                  int
		createdAtStr, updatedAtStr      string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, provider, needs_reconnect, created_at, updated_at
		FROM calendar_accounts WHERE user_id = ? AND provider = ?
	`, userID.String(), provider).Scan(&idStr, &userIDStr, &providerOut, &needsReconnect, &createdAtStr, &updatedAtStr)
	if err != nil {
		return nil, oauthdomain.ErrAccountNotFound
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	createdAt, _ := time.Parse(time.RFC3339, createdAtStr)
	updatedAt, _ := time.Parse(time.RFC3339, updatedAtStr)

	return &oauthdomain.Account{
		ID:             id,
		UserID:         userID,
		Provider:       providerOut,
		NeedsReconnect: needsReconnect == 1,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}, nil
}

// SQLiteTokenRepository persists encrypted token pairs in SQLite.
type SQLiteTokenRepository struct {
	db *sql.DB
}

func NewSQLiteTokenRepository(db *sql.DB) *SQLiteTokenRepository {
	return &SQLiteTokenRepository{db: db}
}

func (r *SQLiteTokenRepository) Save(ctx context.Context, token oauthdomain.Token) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO calendar_tokens (account_id, access_token, refresh_token, expiry)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (account_id) DO UPDATE SET
			access_token = excluded.access_token, refresh_token = excluded.refresh_token, expiry = excluded.expiry
	`, token.AccountID.String(), token.AccessToken, token.RefreshToken, token.Expiry.UTC().Format(time.RFC3339))
	return err
}

func (r *SQLiteTokenRepository) FindByAccountID(ctx context.Context, accountID uuid.UUID) (*oauthdomain.Token, error) {
	var accountIDStr, expiryStr string
	var access, refresh []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT account_id, access_token, refresh_token, expiry
		FROM calendar_tokens WHERE account_id = ?
	`, accountID.String()).Scan(&accountIDStr, &access, &refresh, &expiryStr)
	if err != nil {
		return nil, err
	}
	expiry, err := time.Parse(time.RFC3339, expiryStr)
	if err != nil {
		return nil, err
	}
	return &oauthdomain.Token{AccountID: accountID, AccessToken: access, RefreshToken: refresh, Expiry: expiry}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
