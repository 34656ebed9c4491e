package identity

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"basecampy/cmd/identity/ids"
	"basecampy/cmd/internal/dependencies/clock"
	"basecampy/cmd/internal/dependencies/random"
	"basecampy/cmd/security/token"
)

// Hasher hashes and verifies passwords (see security/password.Config).
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(encodedHash, plain string) (bool, error)
}

// EphemeralTokens generates and checks single-use tokens (see security/token.Generator).
type EphemeralTokens interface {
	Generate() (token.Ephemeral, error)
	Consume(storedHash string, storedExpiry time.Time, supplied string, now time.Time) error
}

// RegisterInput describes a new identity. Username and Email are normalized.
type RegisterInput struct {
	Username string
	Email    string
	FullName string
	Password string
}

// Service implements the record operations. It never touches a Store.
type Service struct {
	hasher   Hasher
	tokens   EphemeralTokens
	digester token.Digester
	clock    clock.Clock
	rand     random.Random

	decoyOnce sync.Once
	decoyHash string
}

// NewService wires the collaborators. Nil clock or random fall back to the
// system clock and crypto/rand.
func NewService(h Hasher, tokens EphemeralTokens, d token.Digester, clk clock.Clock, rnd random.Random) (*Service, error) {
	if h == nil {
		return nil, errors.New("identity: nil hasher")
	}
	if tokens == nil {
		return nil, errors.New("identity: nil ephemeral token generator")
	}
	return &Service{
		hasher:   h,
		tokens:   tokens,
		digester: d,
		clock:    clock.OrReal(clk),
		rand:     random.OrCrypto(rnd),
	}, nil
}

// Now returns the service clock time.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// NewRecord builds a fresh record with a hashed password and a new ULID.
// The record is not persisted.
func (s *Service) NewRecord(in RegisterInput) (Record, error) {
	const op = "identity.NewRecord"

	username := NormalizeUsername(in.Username)
	email := NormalizeEmail(in.Email)

	if username == "" {
		return Record{}, invalid(op, "username is required")
	}
	// Login treats any identifier containing "@" as an email.
	if strings.Contains(username, "@") {
		return Record{}, invalid(op, "username must not contain @")
	}
	if !LooksLikeEmail(email) {
		return Record{}, invalid(op, "email is invalid")
	}
	if in.Password == "" {
		return Record{}, invalid(op, "password is required")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return Record{}, fmt.Errorf("%s: hash: %w", op, err)
	}

	now := s.clock.Now()
	id, err := ids.NewULID(now, s.rand)
	if err != nil {
		return Record{}, fmt.Errorf("%s: id: %w", op, err)
	}

	return Record{
		ID:           id,
		Username:     username,
		Email:        email,
		FullName:     strings.TrimSpace(in.FullName),
		Avatar:       Avatar{URL: DefaultAvatarURL},
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// VerifyPassword reports whether plain matches the stored hash.
// A malformed stored hash is an error, not a mismatch.
func (s *Service) VerifyPassword(rec Record, plain string) (bool, error) {
	return s.hasher.Verify(rec.PasswordHash, plain)
}

// VerifyDecoy verifies plain against a throwaway hash and discards the
// result, so a login for an unknown identity costs the same as a real one.
func (s *Service) VerifyDecoy(plain string) {
	s.decoyOnce.Do(func() {
		s.decoyHash, _ = s.hasher.Hash("decoy-credential")
	})
	if s.decoyHash == "" {
		return
	}
	_, _ = s.hasher.Verify(s.decoyHash, plain)
}

// ChangePassword replaces the password hash and revokes the refresh token,
// so existing sessions must re-authenticate.
func (s *Service) ChangePassword(rec *Record, newPlain string) error {
	const op = "identity.ChangePassword"

	if rec == nil {
		return invalid(op, "nil record")
	}
	hash, err := s.hasher.Hash(newPlain)
	if err != nil {
		return fmt.Errorf("%s: hash: %w", op, err)
	}
	rec.PasswordHash = hash
	rec.RefreshTokenHash = ""
	rec.UpdatedAt = s.clock.Now()
	return nil
}

// RehashPassword upgrades the stored hash for a verified plaintext without
// revoking the session. Callers must have verified plain first.
func (s *Service) RehashPassword(rec *Record, plain string) error {
	const op = "identity.RehashPassword"

	if rec == nil {
		return invalid(op, "nil record")
	}
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return fmt.Errorf("%s: hash: %w", op, err)
	}
	rec.PasswordHash = hash
	rec.UpdatedAt = s.clock.Now()
	return nil
}

// RequestEphemeralToken stores a fresh pending token for purpose, replacing
// any previous one, and returns it. Only Plaintext leaves the process.
func (s *Service) RequestEphemeralToken(rec *Record, purpose Purpose) (token.Ephemeral, error) {
	const op = "identity.RequestEphemeralToken"

	if rec == nil {
		return token.Ephemeral{}, invalid(op, "nil record")
	}
	if !purpose.Valid() {
		return token.Ephemeral{}, invalid(op, "unknown purpose")
	}

	tok, err := s.tokens.Generate()
	if err != nil {
		return token.Ephemeral{}, fmt.Errorf("%s: %w", op, err)
	}
	rec.setPending(purpose, &PendingToken{Hash: tok.Hash, ExpiresAt: tok.ExpiresAt})
	rec.UpdatedAt = s.clock.Now()
	return tok, nil
}

// ConsumeEphemeralToken checks plaintext against the pending token for
// purpose at time now. On success the pending token is cleared and, for
// email verification, the email is marked verified. On failure rec is left
// unchanged.
func (s *Service) ConsumeEphemeralToken(rec *Record, purpose Purpose, plaintext string, now time.Time) error {
	const op = "identity.ConsumeEphemeralToken"

	if rec == nil {
		return invalid(op, "nil record")
	}
	if !purpose.Valid() {
		return invalid(op, "unknown purpose")
	}

	pending := rec.Pending(purpose)
	if pending == nil || pending.Hash == "" {
		return OpError{Op: op, Kind: ErrNoPendingToken, Msg: string(purpose)}
	}
	if err := s.tokens.Consume(pending.Hash, pending.ExpiresAt, plaintext, now); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	rec.setPending(purpose, nil)
	if purpose == PurposeEmailVerification {
		rec.EmailVerified = true
	}
	rec.UpdatedAt = now
	return nil
}

// SetRefreshToken records refreshToken as the single active refresh token.
func (s *Service) SetRefreshToken(rec *Record, refreshToken string) {
	rec.RefreshTokenHash = s.digester.HashRefreshTokenHex(refreshToken)
	rec.UpdatedAt = s.clock.Now()
}

// ClearRefreshToken revokes the active refresh token, if any.
func (s *Service) ClearRefreshToken(rec *Record) {
	rec.RefreshTokenHash = ""
	rec.UpdatedAt = s.clock.Now()
}

// RefreshTokenMatches compares refreshToken with the stored reference in
// constant time. An empty reference never matches.
func (s *Service) RefreshTokenMatches(rec Record, refreshToken string) bool {
	if rec.RefreshTokenHash == "" {
		return false
	}
	return token.EqualHex64(rec.RefreshTokenHash, s.digester.HashRefreshTokenHex(refreshToken))
}
