package session

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"basecampy/cmd/internal/dependencies/clock"
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Valid reports whether k is a known token kind.
func (k Kind) Valid() bool {
	return k == KindAccess || k == KindRefresh
}

// maxTokenLen bounds the input accepted by Verify.
const maxTokenLen = 4096

// Profile is the identity data embedded in access tokens.
type Profile struct {
	Username string
	Email    string
}

// Token is a signed token together with its registered metadata.
type Token struct {
	Value     string
	Kind      Kind
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Claims is the decoded payload of a verified token. Username and Email are
// empty for refresh tokens.
type Claims struct {
	IdentityID string
	Username   string
	Email      string
	Kind       Kind
	TokenID    string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

type tokenClaims struct {
	Kind     Kind   `json:"kind"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Minter issues and verifies HS256 access and refresh tokens.
type Minter struct {
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	skew       time.Duration

	accessSecret  []byte
	refreshSecret []byte

	clock clock.Clock
}

// NewMinter validates cfg and builds a Minter. A nil clock falls back to
// the system clock.
func NewMinter(cfg Config, clk clock.Clock) (*Minter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Minter{
		issuer:        cfg.Issuer,
		accessTTL:     cfg.AccessTokenTTL,
		refreshTTL:    cfg.RefreshTokenTTL,
		skew:          cfg.ClockSkew,
		accessSecret:  append([]byte(nil), cfg.AccessTokenSecret...),
		refreshSecret: append([]byte(nil), cfg.RefreshTokenSecret...),
		clock:         clock.OrReal(clk),
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (m *Minter) AccessTTL() time.Duration { return m.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (m *Minter) RefreshTTL() time.Duration { return m.refreshTTL }

// IssueAccessToken signs a short-lived access token for identityID.
func (m *Minter) IssueAccessToken(identityID string, p Profile) (Token, error) {
	return m.issue(identityID, KindAccess, p)
}

// IssueRefreshToken signs a long-lived refresh token carrying only identityID.
func (m *Minter) IssueRefreshToken(identityID string) (Token, error) {
	return m.issue(identityID, KindRefresh, Profile{})
}

func (m *Minter) issue(identityID string, kind Kind, p Profile) (Token, error) {
	if strings.TrimSpace(identityID) == "" {
		return Token{}, errors.New("session: empty identity id")
	}

	now := m.clock.Now().UTC().Truncate(jwt.TimePrecision)
	exp := now.Add(m.ttl(kind))
	jti := uuid.NewString()

	claims := tokenClaims{
		Kind:     kind,
		Username: p.Username,
		Email:    p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    m.issuer,
			Subject:   identityID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret(kind))
	if err != nil {
		return Token{}, err
	}

	return Token{
		Value:     signed,
		Kind:      kind,
		ID:        jti,
		IssuedAt:  now,
		ExpiresAt: exp,
	}, nil
}

// Verify checks raw as a token of the expected kind.
//
// Checks run cheapest first: structure (ErrMalformedToken), then the kind
// claim (ErrKindMismatch), then the signature with that kind's secret
// (ErrInvalidSignature), then expiry against the minter clock
// (ErrExpiredToken).
func (m *Minter) Verify(raw string, expected Kind) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxTokenLen || !expected.Valid() {
		return Claims{}, ErrMalformedToken
	}

	var peek tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &peek); err != nil {
		return Claims{}, ErrMalformedToken
	}
	if !peek.Kind.Valid() {
		return Claims{}, ErrMalformedToken
	}
	if peek.Kind != expected {
		return Claims{}, ErrKindMismatch
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.skew),
		jwt.WithTimeFunc(m.clock.Now),
	)

	var claims tokenClaims
	parsed, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return m.secret(expected), nil
	})
	if err != nil {
		return Claims{}, mapJWTError(err)
	}
	if !parsed.Valid || claims.Kind != expected {
		return Claims{}, ErrInvalidSignature
	}
	if claims.Subject == "" || claims.IssuedAt == nil {
		return Claims{}, ErrMalformedToken
	}

	return Claims{
		IdentityID: claims.Subject,
		Username:   claims.Username,
		Email:      claims.Email,
		Kind:       claims.Kind,
		TokenID:    claims.ID,
		IssuedAt:   claims.IssuedAt.Time,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}

func (m *Minter) ttl(kind Kind) time.Duration {
	if kind == KindRefresh {
		return m.refreshTTL
	}
	return m.accessTTL
}

func (m *Minter) secret(kind Kind) []byte {
	if kind == KindRefresh {
		return m.refreshSecret
	}
	return m.accessSecret
}

// mapJWTError folds jwt validation errors into the package taxonomy. The
// signature is checked before claims, so an expired token with a bad
// signature is reported as ErrInvalidSignature.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformedToken
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpiredToken
	default:
		return ErrInvalidSignature
	}
}
