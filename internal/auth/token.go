// Package auth issues and validates the JWT pairs that identify callers and
// carries the resolved Principal through request contexts.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"libraryms/internal/apperr"
	"libraryms/internal/domain"
)

// Token types carried in the "typ" claim.
const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

var (
	// ErrInvalidToken is returned for malformed, expired or mistyped tokens.
	ErrInvalidToken = apperr.Unauthorized("Given token not valid for any token type")
	// ErrNoPrincipal is returned when a request carries no credentials.
	ErrNoPrincipal = apperr.Unauthorized("Authentication credentials were not provided.")
)

// Config holds the signing secret and token lifetimes.
type Config struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Claims is the JWT body.
type Claims struct {
	Role      domain.Role `json:"role"`
	Username  string      `json:"username"`
	TokenType string      `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair is returned by login.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	cfg Config
	now func() time.Time
}

// NewIssuer returns an Issuer for cfg.
func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("jwt secret must not be empty")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "libraryms"
	}
	return &Issuer{cfg: cfg, now: time.Now}, nil
}

// Issue creates an access and a refresh token for p.
func (i *Issuer) Issue(p domain.Principal) (*TokenPair, error) {
	access, err := i.sign(p, TokenAccess, i.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := i.sign(p, TokenRefresh, i.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh exchanges a valid refresh token for a new access token.
func (i *Issuer) Refresh(refreshToken string) (string, error) {
	p, err := i.Parse(refreshToken, TokenRefresh)
	if err != nil {
		return "", err
	}
	return i.sign(p, TokenAccess, i.cfg.AccessTTL)
}

// Parse validates token and returns its principal. wantType must match the
// token's "typ" claim.
func (i *Issuer) Parse(token, wantType string) (domain.Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return i.cfg.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return domain.Principal{}, &apperr.Error{Kind: apperr.KindUnauthorized, Reason: ErrInvalidToken.Reason, Err: err}
	}
	if claims.TokenType != wantType || !claims.Role.Valid() {
		return domain.Principal{}, ErrInvalidToken
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return domain.Principal{}, ErrInvalidToken
	}
	return domain.Principal{Role: claims.Role, ID: id, Username: claims.Username}, nil
}

func (i *Issuer) sign(p domain.Principal, tokenType string, ttl time.Duration) (string, error) {
	now := i.now()
	claims := Claims{
		Role:      p.Role,
		Username:  p.Username,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.cfg.Issuer,
			Subject:   strconv.FormatInt(p.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, nil
}
