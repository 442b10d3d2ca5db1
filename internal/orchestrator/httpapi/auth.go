// Package httpapi exposes the Request Orchestrator over HTTP (§6.1):
// POST /api/v1/captures/{captureID}/schedule-capture and
// POST /api/v1/plans/{planID}/undo, grounded on the teacher's
// adapter/api/server.go (http.ServeMux pattern routing, APIError shape).
package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrNoBearerToken is returned when a request carries no Authorization
// header or an unparsable one.
var ErrNoBearerToken = errors.New("httpapi: missing or malformed bearer token")

// UserResolver extracts the authenticated user id from a request (§4.9
// "Authorization carries the user identity"). A narrow interface so the
// HTTP layer never depends on a specific auth provider.
type UserResolver interface {
	ResolveUser(r *http.Request) (uuid.UUID, error)
}

// userIDClaims is the minimal claim set this engine trusts from a bearer
// token: a subject claim holding the user's id, the same
// jwt.NewWithClaims/SignedString shape the example pack's license tokens
// use, adapted here to carry a user identity instead of a license plan.
type userIDClaims struct {
	jwt.RegisteredClaims
}

// JWTUserResolver verifies an HS256-signed bearer token and resolves its
// subject claim as the user id.
type JWTUserResolver struct {
	secret []byte
}

func NewJWTUserResolver(secret []byte) *JWTUserResolver {
	return &JWTUserResolver{secret: secret}
}

func (r *JWTUserResolver) ResolveUser(req *http.Request) (uuid.UUID, error) {
	raw := req.Header.Get("Authorization")
	token, ok := strings.CutPrefix(raw, "Bearer ")
	if !ok || token == "" {
		return uuid.UUID{}, ErrNoBearerToken
	}

	claims := &userIDClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("httpapi: unexpected signing method")
		}
		return r.secret, nil
	})
	if err != nil || !parsed.Valid {
		return uuid.UUID{}, ErrNoBearerToken
	}

	return uuid.Parse(claims.Subject)
}
