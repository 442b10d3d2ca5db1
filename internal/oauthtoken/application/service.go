// Package application implements the calendar token lifecycle (§4.7),
// grounded on internal/identity/application/oauth/service.go: the same
// oauth2.Config + encrypted-at-rest storage shape, extended with the
// needs_reconnect flag and the single-retry-on-401 rule the teacher's
// single-provider calendar sync never required.
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	oauthdomain "github.com/diaguru/scheduler/internal/oauthtoken/domain"
	sharedCrypto "github.com/diaguru/scheduler/internal/shared/infrastructure/crypto"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// ErrNotLinked mirrors calendargw.ErrNotLinked without importing that
// package, keeping this service reusable by any future gateway provider.
var ErrNotLinked = errors.New("oauthtoken: account not linked or needs reconnect")

// Service manages one OAuth2 provider's token lifecycle for every user.
type Service struct {
	provider    string
	oauthConfig *oauth2.Config
	accounts    oauthdomain.AccountRepository
	tokens      oauthdomain.TokenRepository
	encrypter   sharedCrypto.Encrypter
}

func NewService(
	provider string,
	clientID, clientSecret, authURL, tokenURL, redirectURL string,
	scopes []string,
	accounts oauthdomain.AccountRepository,
	tokens oauthdomain.TokenRepository,
	encrypter sharedCrypto.Encrypter,
) (*Service, error) {
	if provider == "" {
		return nil, errors.New("oauthtoken: provider is required")
	}
	if clientID == "" || clientSecret == "" || authURL == "" || tokenURL == "" || redirectURL == "" {
		return nil, errors.New("oauthtoken: oauth configuration is incomplete")
	}
	if accounts == nil || tokens == nil || encrypter == nil {
		return nil, errors.New("oauthtoken: dependencies are required")
	}

	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL},
		RedirectURL:  redirectURL,
		Scopes:       scopes,
	}

	return &Service{
		provider:    provider,
		oauthConfig: cfg,
		accounts:    accounts,
		tokens:      tokens,
		encrypter:   encrypter,
	}, nil
}

// AuthURL returns the provider authorization URL.
func (s *Service) AuthURL(state string) string {
	return s.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// ExchangeAndStore exchanges a code for a token, stores it encrypted, and
// clears needs_reconnect (the account is freshly (re)linked).
func (s *Service) ExchangeAndStore(ctx context.Context, userID uuid.UUID, code string) (*oauth2.Token, error) {
	token, err := s.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.storeToken(ctx, userID, token, false); err != nil {
		return nil, err
	}
	return token, nil
}

// TokenSource returns a token source for userID, refreshing synchronously
// first if the stored token is missing, expired, within 30s of expiry, or
// the account needs reconnecting (§4.7). Implements
// internal/calendargw/google.TokenSourceProvider.
func (s *Service) TokenSource(ctx context.Context, userID uuid.UUID) (oauth2.TokenSource, error) {
	token, err := s.ensureValid(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.oauthConfig.TokenSource(ctx, token), nil
}

// HandleUnauthorized forces a synchronous refresh after a provider 401 and
// returns the refreshed source for the caller's single retry (§4.7, §9).
// On refresh failure it flips
// needs_reconnect and returns ErrNotLinked. Implements
// internal/calendargw/google.Authenticator.
func (s *Service) HandleUnauthorized(ctx context.Context, userID uuid.UUID) (oauth2.TokenSource, error) {
	account, err := s.accounts.FindByUserAndProvider(ctx, userID, s.provider)
	if err != nil {
		return nil, fmt.Errorf("oauthtoken: %w", ErrNotLinked)
	}

	stored, err := s.tokens.FindByAccountID(ctx, account.ID)
	if err != nil {
		s.markNeedsReconnect(ctx, *account)
		return nil, ErrNotLinked
	}
	token, err := s.decode(*stored)
	if err != nil {
		s.markNeedsReconnect(ctx, *account)
		return nil, ErrNotLinked
	}

	// An empty access token makes the oauth2 token source refresh instead of
	// reusing a token it still considers valid.
	token.AccessToken = ""
	fresh, err := s.oauthConfig.TokenSource(ctx, token).Token()
	if err != nil {
		s.markNeedsReconnect(ctx, *account)
		return nil, ErrNotLinked
	}
	if err := s.storeToken(ctx, userID, fresh, false); err != nil {
		return nil, err
	}
	return s.oauthConfig.TokenSource(ctx, fresh), nil
}

// MarkPersistentFailure flips needs_reconnect after a persistent 401/403
// (§4.7 "a persistent 401/403 flips needs_reconnect"). No gateway provider
// calls it; HandleUnauthorized sets the flag itself when its refresh fails.
func (s *Service) MarkPersistentFailure(ctx context.Context, userID uuid.UUID) error {
	account, err := s.accounts.FindByUserAndProvider(ctx, userID, s.provider)
	if err != nil {
		return err
	}
	return s.markNeedsReconnect(ctx, *account)
}

func (s *Service) ensureValid(ctx context.Context, userID uuid.UUID) (*oauth2.Token, error) {
	account, err := s.accounts.FindByUserAndProvider(ctx, userID, s.provider)
	if err != nil {
		return nil, fmt.Errorf("oauthtoken: %w", ErrNotLinked)
	}

	stored, err := s.tokens.FindByAccountID(ctx, account.ID)
	if err != nil {
		s.markNeedsReconnect(ctx, *account)
		return nil, ErrNotLinked
	}
	token, err := s.decode(*stored)
	if err != nil {
		s.markNeedsReconnect(ctx, *account)
		return nil, ErrNotLinked
	}

	if !account.NeedsReconnect && !stored.NeedsRefresh(time.Now()) {
		return token, nil
	}

	// An empty access token makes the oauth2 token source refresh instead of
	// reusing a token it still considers valid.
	token.AccessToken = ""
	fresh, err := s.oauthConfig.TokenSource(ctx, token).Token()
	if err != nil {
		s.markNeedsReconnect(ctx, *account)
		return nil, ErrNotLinked
	}
	if err := s.storeToken(ctx, userID, fresh, false); err != nil {
		return nil, err
	}
	return fresh, nil
}

// decode reconstructs the live oauth2.Token from its encrypted-at-rest
// representation (mirrors the teacher's Service.loadToken).
func (s *Service) decode(stored oauthdomain.Token) (*oauth2.Token, error) {
	access, err := s.encrypter.Decrypt(stored.AccessToken)
	if err != nil {
		return nil, err
	}
	refresh := ""
	if len(stored.RefreshToken) > 0 {
		refreshBytes, err := s.encrypter.Decrypt(stored.RefreshToken)
		if err != nil {
			return nil, err
		}
		refresh = string(refreshBytes)
	}
	return &oauth2.Token{
		AccessToken:  string(access),
		RefreshToken: refresh,
		TokenType:    stored.TokenType,
		Expiry:       stored.Expiry,
	}, nil
}

// storeToken encrypts and upserts token, creating the account row on first
// link and clearing needs_reconnect on every successful store. A provider
// that doesn't reissue a refresh_token on refresh keeps the one already on
// file (§4.7 "refresh_token (kept if not reissued)").
func (s *Service) storeToken(ctx context.Context, userID uuid.UUID, token *oauth2.Token, needsReconnect bool) error {
	account, err := s.accounts.FindByUserAndProvider(ctx, userID, s.provider)
	if err != nil {
		account = &oauthdomain.Account{ID: uuid.New(), UserID: userID, Provider: s.provider}
	}
	account.NeedsReconnect = needsReconnect
	if err := s.accounts.Save(ctx, *account); err != nil {
		return err
	}

	accessEnc, err := s.encrypter.Encrypt([]byte(token.AccessToken))
	if err != nil {
		return err
	}

	refreshEnc := []byte(nil)
	if token.RefreshToken != "" {
		refreshEnc, err = s.encrypter.Encrypt([]byte(token.RefreshToken))
		if err != nil {
			return err
		}
	} else if existing, err := s.tokens.FindByAccountID(ctx, account.ID); err == nil {
		refreshEnc = existing.RefreshToken
	}

	return s.tokens.Save(ctx, oauthdomain.Token{
		AccountID:    account.ID,
		AccessToken:  accessEnc,
		RefreshToken: refreshEnc,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry,
	})
}

func (s *Service) markNeedsReconnect(ctx context.Context, account oauthdomain.Account) error {
	account.NeedsReconnect = true
	return s.accounts.Save(ctx, account)
}
