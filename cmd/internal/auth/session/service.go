package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"basecampy/cmd/identity"
	"basecampy/cmd/internal/dependencies/clock"
	"basecampy/cmd/security/token"
)

// PasswordRules is the password policy and upgrade check (see
// security/password.Config).
type PasswordRules interface {
	Validate(plain string) error
	NeedsRehash(encodedHash string) bool
}

// Service implements the credential flows: registration, login, refresh
// rotation, logout, password change and the two ephemeral-token flows.
//
// Every mutation of an identity record goes through identity.Modify, so
// concurrent requests against one record are serialized by the store's
// version check.
type Service struct {
	cfg    Config
	store  identity.Store
	ids    *identity.Service
	minter *Minter
	rules  PasswordRules
	clock  clock.Clock
	log    *slog.Logger
}

// Issued is an access and refresh token pair.
type Issued struct {
	AccessToken  Token
	RefreshToken Token
}

// Registration is the result of Register. Verification.Plaintext must be
// delivered out of band and never logged.
type Registration struct {
	Record       identity.Record
	Verification token.Ephemeral
}

// NewService wires the collaborators. A nil clock falls back to the system
// clock and a nil logger to slog.Default.
func NewService(cfg Config, store identity.Store, ids *identity.Service, minter *Minter, rules PasswordRules, clk clock.Clock, log *slog.Logger) (*Service, error) {
	if store == nil || ids == nil || minter == nil || rules == nil {
		return nil, fmt.Errorf("%w: missing session dependency", ErrConfig)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		cfg:    cfg,
		store:  store,
		ids:    ids,
		minter: minter,
		rules:  rules,
		clock:  clock.OrReal(clk),
		log:    log,
	}, nil
}

// Register validates the password policy, creates the identity and stores a
// pending email-verification token.
func (s *Service) Register(ctx context.Context, in identity.RegisterInput) (Registration, error) {
	const op = "session.Register"

	if err := s.checkPolicy(op, in.Password); err != nil {
		return Registration{}, err
	}

	rec, err := s.ids.NewRecord(in)
	if err != nil {
		return Registration{}, err
	}
	verification, err := s.ids.RequestEphemeralToken(&rec, identity.PurposeEmailVerification)
	if err != nil {
		return Registration{}, err
	}

	created, err := s.store.Create(ctx, rec)
	if err != nil {
		return Registration{}, err
	}
	return Registration{Record: created, Verification: verification}, nil
}

// Login checks the credentials and starts a session. identifier is an email
// when it contains "@", otherwise a username. Unknown identifiers and wrong
// passwords both fail with ErrInvalidCredentials after similar work.
func (s *Service) Login(ctx context.Context, identifier, plain string) (Issued, identity.Record, error) {
	const op = "session.Login"

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || plain == "" {
		return Issued{}, identity.Record{}, identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: "identifier and password are required"}
	}

	rec, err := s.lookup(ctx, identifier)
	if err != nil {
		if identity.IsNotFound(err) {
			s.ids.VerifyDecoy(plain)
			return Issued{}, identity.Record{}, ErrInvalidCredentials
		}
		return Issued{}, identity.Record{}, err
	}

	ok, err := s.ids.VerifyPassword(rec, plain)
	if err != nil {
		return Issued{}, identity.Record{}, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return Issued{}, identity.Record{}, ErrInvalidCredentials
	}

	var issued Issued
	verifiedHash := rec.PasswordHash
	saved, err := identity.Modify(ctx, s.store, rec.ID, func(r *identity.Record) error {
		if r.PasswordHash != verifiedHash {
			return ErrInvalidCredentials
		}
		if s.cfg.RehashOnLogin && s.rules.NeedsRehash(r.PasswordHash) {
			if err := s.ids.RehashPassword(r, plain); err != nil {
				return err
			}
		}
		pair, err := s.mint(*r)
		if err != nil {
			return err
		}
		issued = pair
		s.ids.SetRefreshToken(r, pair.RefreshToken.Value)
		return nil
	})
	if err != nil {
		return Issued{}, identity.Record{}, err
	}
	return issued, saved, nil
}

// Refresh exchanges a refresh token for a new pair and rotates the stored
// reference. A token that verifies but no longer matches the reference is
// treated as reuse: the reference is cleared and ErrRefreshReuseDetected is
// returned.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Issued, error) {
	claims, err := s.minter.Verify(refreshToken, KindRefresh)
	if err != nil {
		return Issued{}, err
	}

	var (
		issued Issued
		reused bool
	)
	_, err = identity.Modify(ctx, s.store, claims.IdentityID, func(r *identity.Record) error {
		reused = false
		if !r.HasActiveSession() {
			return ErrSessionNotActive
		}
		if !s.ids.RefreshTokenMatches(*r, refreshToken) {
			reused = true
			s.ids.ClearRefreshToken(r)
			return nil
		}
		pair, err := s.mint(*r)
		if err != nil {
			return err
		}
		issued = pair
		s.ids.SetRefreshToken(r, pair.RefreshToken.Value)
		return nil
	})
	if err != nil {
		if identity.IsNotFound(err) {
			return Issued{}, ErrSessionNotActive
		}
		return Issued{}, err
	}
	if reused {
		s.log.Warn("refresh token reuse detected; session revoked",
			slog.String("identity_id", claims.IdentityID),
			slog.String("token_id", claims.TokenID),
		)
		return Issued{}, ErrRefreshReuseDetected
	}
	return issued, nil
}

// Logout clears the stored refresh reference. Logging out twice is not an
// error.
func (s *Service) Logout(ctx context.Context, identityID string) error {
	_, err := identity.Modify(ctx, s.store, identityID, func(r *identity.Record) error {
		s.ids.ClearRefreshToken(r)
		return nil
	})
	return err
}

// Authenticate verifies an access token. No store lookup is made.
func (s *Service) Authenticate(accessToken string) (Claims, error) {
	return s.minter.Verify(accessToken, KindAccess)
}

// Identity loads the current record for identityID.
func (s *Service) Identity(ctx context.Context, identityID string) (identity.Record, error) {
	return s.store.GetByID(ctx, identityID)
}

// ChangePassword verifies current and replaces it with next. The refresh
// reference is cleared, so every session must log in again.
func (s *Service) ChangePassword(ctx context.Context, identityID, current, next string) (identity.Record, error) {
	const op = "session.ChangePassword"

	if current == "" {
		return identity.Record{}, identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: "current password is required"}
	}
	if err := s.checkPolicy(op, next); err != nil {
		return identity.Record{}, err
	}

	return identity.Modify(ctx, s.store, identityID, func(r *identity.Record) error {
		ok, err := s.ids.VerifyPassword(*r, current)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if !ok {
			return ErrInvalidCredentials
		}
		return s.ids.ChangePassword(r, next)
	})
}

// RequestEmailVerification replaces the pending email-verification token
// and returns the new one.
func (s *Service) RequestEmailVerification(ctx context.Context, identityID string) (identity.Record, token.Ephemeral, error) {
	var tok token.Ephemeral
	rec, err := identity.Modify(ctx, s.store, identityID, func(r *identity.Record) error {
		if r.EmailVerified {
			return ErrAlreadyVerified
		}
		t, err := s.ids.RequestEphemeralToken(r, identity.PurposeEmailVerification)
		if err != nil {
			return err
		}
		tok = t
		return nil
	})
	if err != nil {
		return identity.Record{}, token.Ephemeral{}, err
	}
	return rec, tok, nil
}

// ConfirmEmail consumes the pending email-verification token.
func (s *Service) ConfirmEmail(ctx context.Context, identityID, plaintext string) (identity.Record, error) {
	return identity.Modify(ctx, s.store, identityID, func(r *identity.Record) error {
		return s.ids.ConsumeEphemeralToken(r, identity.PurposeEmailVerification, plaintext, s.clock.Now())
	})
}

// ForgotPassword stores a fresh password-reset token for the identity with
// the given email. Callers must not reveal whether the email exists.
func (s *Service) ForgotPassword(ctx context.Context, email string) (identity.Record, token.Ephemeral, error) {
	const op = "session.ForgotPassword"

	email = identity.NormalizeEmail(email)
	if !identity.LooksLikeEmail(email) {
		return identity.Record{}, token.Ephemeral{}, identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: "email is invalid"}
	}

	rec, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return identity.Record{}, token.Ephemeral{}, err
	}

	var tok token.Ephemeral
	saved, err := identity.Modify(ctx, s.store, rec.ID, func(r *identity.Record) error {
		t, err := s.ids.RequestEphemeralToken(r, identity.PurposePasswordReset)
		if err != nil {
			return err
		}
		tok = t
		return nil
	})
	if err != nil {
		return identity.Record{}, token.Ephemeral{}, err
	}
	return saved, tok, nil
}

// ResetPassword consumes the password-reset token and sets the new password
// in one save. If the token is rejected the password is left unchanged.
func (s *Service) ResetPassword(ctx context.Context, identityID, plaintext, next string) (identity.Record, error) {
	const op = "session.ResetPassword"

	if err := s.checkPolicy(op, next); err != nil {
		return identity.Record{}, err
	}

	return identity.Modify(ctx, s.store, identityID, func(r *identity.Record) error {
		if err := s.ids.ConsumeEphemeralToken(r, identity.PurposePasswordReset, plaintext, s.clock.Now()); err != nil {
			return err
		}
		return s.ids.ChangePassword(r, next)
	})
}

func (s *Service) lookup(ctx context.Context, identifier string) (identity.Record, error) {
	if strings.Contains(identifier, "@") {
		return s.store.GetByEmail(ctx, identity.NormalizeEmail(identifier))
	}
	return s.store.GetByUsername(ctx, identity.NormalizeUsername(identifier))
}

func (s *Service) mint(rec identity.Record) (Issued, error) {
	access, err := s.minter.IssueAccessToken(rec.ID, Profile{Username: rec.Username, Email: rec.Email})
	if err != nil {
		return Issued{}, err
	}
	refresh, err := s.minter.IssueRefreshToken(rec.ID)
	if err != nil {
		return Issued{}, err
	}
	return Issued{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) checkPolicy(op, plain string) error {
	if err := s.rules.Validate(plain); err != nil {
		return fmt.Errorf("%s: %w: %w", op, identity.ErrInvalidInput, err)
	}
	return nil
}

// IsTokenRejection reports whether err is one of the token verification
// failures that should surface as unauthorized.
func IsTokenRejection(err error) bool {
	return errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrExpiredToken) ||
		errors.Is(err, ErrMalformedToken)
}
