// Package auth verifies the bearer tokens that carry a caller's identity.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dkeye/Hearing/internal/domain"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

type identityClaims struct {
	jwt.RegisteredClaims
	ParticipantID string      `json:"pid,omitempty"`
	ConferenceID  string      `json:"cid,omitempty"`
	Role          domain.Role `json:"role"`
}

// Verifier checks HS256 identity tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("token secret is empty")
	}
	return &Verifier{secret: []byte(secret), now: time.Now}, nil
}

func (v *Verifier) Verify(token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, ErrMissingToken
	}
	var claims identityClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !claims.Role.Valid() {
		return domain.Identity{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	id, err := domain.NewIdentity(claims.Subject, claims.Role)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	id.ParticipantID = claims.ParticipantID
	id.ConferenceID = claims.ConferenceID
	return *id, nil
}

// Issue signs a token for identity valid for ttl.
func (v *Verifier) Issue(identity domain.Identity, ttl time.Duration) (string, error) {
	now := v.now()
	claims := identityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Name,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		ParticipantID: identity.ParticipantID,
		ConferenceID:  identity.ConferenceID,
		Role:          identity.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
