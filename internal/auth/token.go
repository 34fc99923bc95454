package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"taskhub.io/internal/ids"
	"taskhub.io/internal/model"
)

// DefaultTokenTTL is the fixed session lifetime.
const DefaultTokenTTL = 24 * time.Hour

// TokenClaims is the verified content of a session token.
type TokenClaims struct {
	UserID    string
	Role      model.Role
	TenantID  string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Tokens is the token primitive.
type Tokens interface {
	Issue(c TokenClaims, ttl time.Duration) (token string, expiresAt time.Time, err error)
	Verify(token string) (TokenClaims, error)
}

type jwtClaims struct {
	Role     string `json:"role"`
	TenantID string `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTTokens signs HS256 tokens.
type JWTTokens struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWTTokens returns a token service. The secret must not be empty.
func NewJWTTokens(secret, issuer string, now func() time.Time) (*JWTTokens, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth secret is not configured")
	}
	if now == nil {
		now = time.Now
	}
	return &JWTTokens{secret: []byte(secret), issuer: issuer, now: now}, nil
}

func (j *JWTTokens) Issue(c TokenClaims, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(c.UserID) == "" {
		return "", time.Time{}, errors.New("user id is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("ttl must be greater than zero")
	}
	now := j.now().UTC().Truncate(time.Second)
	exp := now.Add(ttl)
	claims := jwtClaims{
		Role:     string(c.Role),
		TenantID: c.TenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   c.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        ids.New(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

func (j *JWTTokens) Verify(token string) (TokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return TokenClaims{}, model.ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &jwtClaims{}, func(t *jwt.Token) (any, error) {
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TokenClaims{}, model.ErrTokenExpired
		}
		return TokenClaims{}, model.ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*jwtClaims)
	if !ok || !parsed.Valid {
		return TokenClaims{}, model.ErrInvalidToken
	}
	role := model.Role(claims.Role)
	if claims.Subject == "" || !role.Valid() {
		return TokenClaims{}, model.ErrInvalidToken
	}
	if role != model.RoleSuperAdmin && claims.TenantID == "" {
		return TokenClaims{}, model.ErrInvalidToken
	}
	return TokenClaims{
		UserID:    claims.Subject,
		Role:      role,
		TenantID:  claims.TenantID,
		ID:        claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
