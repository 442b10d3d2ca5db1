package persistence

import (
	"context"

	oauthdomain "github.com/diaguru/scheduler/internal/oauthtoken/domain"
	sharedPersistence "github.com/diaguru/scheduler/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresAccountRepository persists calendar account bindings in
// PostgreSQL, grounded on the teacher's OAuthTokenRepository shape.
type PostgresAccountRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresAccountRepository(pool *pgxpool.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: pool}
}

func (r *PostgresAccountRepository) Save(ctx context.Context, account oauthdomain.Account) error {
	exec := sharedPersistence.Executor(ctx, r.pool)
	_, err := exec.Exec(ctx, `
		INSERT INTO calendar_accounts (id, user_id, provider, needs_reconnect, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			needs_reconnect = EXCLUDED.needs_reconnect, updated_at = NOW()
	`, account.ID, account.UserID, account.Provider, account.NeedsReconnect)
	return err
}

func (r *PostgresAccountRepository) FindByUserAndProvider(ctx context.Context, userID uuid.UUID, provider string) (*oauthdomain.Account, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)
	var a oauthdomain.Account
	err := exec.QueryRow(ctx, `
		SELECT id, user_id, provider, needs_reconnect, created_at, updated_at
		FROM calendar_accounts WHERE user_id = $1 AND provider = $2
	`, userID, provider).Scan(&a.ID, &a.UserID, &a.Provider, &a.NeedsReconnect, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, oauthdomain.ErrAccountNotFound
	}
	return &a, nil
}

// PostgresTokenRepository persists encrypted token pairs in PostgreSQL.
type PostgresTokenRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresTokenRepository(pool *pgxpool.Pool) *PostgresTokenRepository {
	return &PostgresTokenRepository{pool: pool}
}

func (r *PostgresTokenRepository) Save(ctx context.Context, token oauthdomain.Token) error {
	exec := sharedPersistence.Executor(ctx, r.pool)
	_, err := exec.Exec(ctx, `
		INSERT INTO calendar_tokens (account_id, access_token, refresh_token, expiry)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id) DO UPDATE SET
			access_token = EXCLUDED.access_token, refresh_token = EXCLUDED.refresh_token,
			expiry = EXCLUDED.expiry
	`, token.AccountID, token.AccessToken, token.RefreshToken, token.Expiry)
	return err
}

func (r *PostgresTokenRepository) FindByAccountID(ctx context.Context, accountID uuid.UUID) (*oauthdomain.Token, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)
	var t oauthdomain.Token
	err := exec.QueryRow(ctx, `
		SELECT account_id, access_token, refresh_token, expiry
		FROM calendar_tokens WHERE account_id = $1
	`, accountID).Scan(&t.AccountID, &t.AccessToken, &t.RefreshToken, &t.Expiry)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
