package account

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	"github.com/louisbranch/vvebeheer/internal/platform/id"
	"github.com/louisbranch/vvebeheer/internal/platform/requestctx"
)

// DefaultTokenTTL is the access token lifetime when none is configured.
const DefaultTokenTTL = 12 * time.Hour

const minSecretLength = 32

// TokenConfig configures HS256 access tokens.
type TokenConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// TokenIssuer signs and verifies access tokens.
type TokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	clock    func() time.Time
	newID    func() (string, error)
}

type accessClaims struct {
	jwt.RegisteredClaims
	SuperAdmin bool `json:"sa,omitempty"`
}

// NewTokenIssuer validates cfg and builds a TokenIssuer.
func NewTokenIssuer(cfg TokenConfig, clock func() time.Time) (*TokenIssuer, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes", minSecretLength)
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("token issuer is required")
	}
	if strings.TrimSpace(cfg.Audience) == "" {
		return nil, errors.New("token audience is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		secret:   []byte(secret),
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
		ttl:      ttl,
		clock:    clock,
		newID:    id.NewID,
	}, nil
}

// Issue signs an access token for user.
func (i *TokenIssuer) Issue(user User) (string, time.Time, error) {
	if i == nil {
		return "", time.Time{}, errors.New("token issuer is not configured")
	}
	if strings.TrimSpace(user.ID) == "" {
		return "", time.Time{}, errors.New("user id is required")
	}
	tokenID, err := i.newID()
	if err != nil {
		return "", time.Time{}, err
	}
	now := i.clock().UTC().Truncate(time.Second)
	expires := now.Add(i.ttl)
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        tokenID,
		},
		SuperAdmin: user.SuperAdmin,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expires, nil
}

// Verify parses token and returns the caller it identifies.
func (i *TokenIssuer) Verify(token string) (requestctx.Principal, error) {
	if i == nil {
		return requestctx.Principal{}, errors.New("token issuer is not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return requestctx.Principal{}, apperrors.New(apperrors.CodeUnauthenticated, "access token is required")
	}
	var claims accessClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return requestctx.Principal{}, apperrors.Wrap(apperrors.CodeTokenExpired, "access token is expired", err)
		}
		return requestctx.Principal{}, apperrors.Wrap(apperrors.CodeUnauthenticated, "access token is invalid", err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return requestctx.Principal{}, apperrors.New(apperrors.CodeUnauthenticated, "access token subject is required")
	}
	return requestctx.Principal{UserID: claims.Subject, SuperAdmin: claims.SuperAdmin}, nil
}
