package session

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"basecampy/cmd/identity"
	"basecampy/cmd/internal/dependencies/mocks"
	"basecampy/cmd/security/password"
	"basecampy/cmd/security/token"
)

func testPasswords(iterations uint32) password.Config {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = iterations
	cfg.Params.Parallelism = 1
	return cfg
}

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	clock   *mocks.MockClock
	store   *identity.MemoryStore
	ids     *identity.Service
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = mocks.NewMockClock(epoch)
	s.store = identity.NewMemoryStore()
	s.ids, s.service = s.newService(testConfig(), testPasswords(1))
}

func (s *ServiceSuite) newService(cfg Config, pw password.Config) (*identity.Service, *Service) {
	gen, err := token.NewGenerator(token.DefaultEphemeralConfig(), s.clock, nil)
	s.Require().NoError(err)
	ids, err := identity.NewService(pw, gen, token.Digester{}, s.clock, nil)
	s.Require().NoError(err)
	minter, err := NewMinter(cfg, s.clock)
	s.Require().NoError(err)
	svc, err := NewService(cfg, s.store, ids, minter, pw, s.clock, slog.New(slog.DiscardHandler))
	s.Require().NoError(err)
	return ids, svc
}

func (s *ServiceSuite) register(username, email, pw string) Registration {
	reg, err := s.service.Register(s.ctx, identity.RegisterInput{
		Username: username,
		Email:    email,
		FullName: "Test User",
		Password: pw,
	})
	s.Require().NoError(err)
	return reg
}

func (s *ServiceSuite) login(identifier, pw string) (Issued, identity.Record) {
	issued, rec, err := s.service.Login(s.ctx, identifier, pw)
	s.Require().NoError(err)
	return issued, rec
}

// Register tests

func (s *ServiceSuite) TestRegisterStoresHashedRecord() {
	reg := s.register("Alice", "Alice@Example.com", "S3cr3t!")

	s.Equal("alice", reg.Record.Username)
	s.Equal("alice@example.com", reg.Record.Email)
	s.Equal(int64(1), reg.Record.Version)
	s.NotEqual("S3cr3t!", reg.Record.PasswordHash)
	s.False(reg.Record.EmailVerified)
	s.False(reg.Record.HasActiveSession())

	s.NotEmpty(reg.Verification.Plaintext)
	pending := reg.Record.Pending(identity.PurposeEmailVerification)
	s.Require().NotNil(pending)
	s.Equal(reg.Verification.Hash, pending.Hash)
	s.NotEqual(reg.Verification.Plaintext, pending.Hash)
}

func (s *ServiceSuite) TestRegisterRejectsPolicyViolation() {
	_, err := s.service.Register(s.ctx, identity.RegisterInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "abc",
	})
	s.ErrorIs(err, identity.ErrInvalidInput)
	s.ErrorIs(err, password.ErrPasswordTooShort)
}

func (s *ServiceSuite) TestRegisterDuplicateUsername() {
	s.register("alice", "alice@example.com", "S3cr3t!")

	_, err := s.service.Register(s.ctx, identity.RegisterInput{
		Username: "ALICE",
		Email:    "other@example.com",
		Password: "S3cr3t!",
	})
	s.True(identity.IsConflict(err))
	s.Equal("username", identity.ConflictField(err))
}

func (s *ServiceSuite) TestRegisterRejectsAtInUsername() {
	_, err := s.service.Register(s.ctx, identity.RegisterInput{
		Username: "a@b",
		Email:    "alice@example.com",
		Password: "S3cr3t!",
	})
	s.ErrorIs(err, identity.ErrInvalidInput)
}

// Login tests

func (s *ServiceSuite) TestLoginIsCaseSensitiveOnPassword() {
	reg := s.register("alice", "alice@example.com", "S3cr3t!")

	wrong, err := s.ids.VerifyPassword(reg.Record, "wrong")
	s.Require().NoError(err)
	s.False(wrong)

	issued, rec := s.login("alice", "S3cr3t!")
	s.NotEmpty(issued.AccessToken.Value)
	s.NotEmpty(issued.RefreshToken.Value)
	s.True(rec.HasActiveSession())

	_, _, err = s.service.Login(s.ctx, "alice", "s3cr3t!")
	s.ErrorIs(err, ErrInvalidCredentials)
}

func (s *ServiceSuite) TestLoginByEmail() {
	s.register("alice", "alice@example.com", "S3cr3t!")

	_, rec := s.login("  ALICE@example.com ", "S3cr3t!")
	s.Equal("alice", rec.Username)
}

func (s *ServiceSuite) TestLoginUnknownIdentityIsUniform() {
	_, _, err := s.service.Login(s.ctx, "nobody", "S3cr3t!")
	s.ErrorIs(err, ErrInvalidCredentials)

	_, _, err = s.service.Login(s.ctx, "nobody@example.com", "S3cr3t!")
	s.ErrorIs(err, ErrInvalidCredentials)
}

func (s *ServiceSuite) TestLoginRequiresFields() {
	_, _, err := s.service.Login(s.ctx, " ", "S3cr3t!")
	s.ErrorIs(err, identity.ErrInvalidInput)
}

func (s *ServiceSuite) TestLoginCorruptHashSurfaces() {
	reg := s.register("alice", "alice@example.com", "S3cr3t!")

	rec := reg.Record
	rec.PasswordHash = "$argon2id$garbage"
	_, err := s.store.Update(s.ctx, rec)
	s.Require().NoError(err)

	_, _, err = s.service.Login(s.ctx, "alice", "S3cr3t!")
	s.ErrorIs(err, password.ErrCorruptHash)
}

func (s *ServiceSuite) TestLoginAccessTokenAuthenticates() {
	reg := s.register("alice", "alice@example.com", "S3cr3t!")
	issued, _ := s.login("alice", "S3cr3t!")

	claims, err := s.service.Authenticate(issued.AccessToken.Value)
	s.Require().NoError(err)
	s.Equal(reg.Record.ID, claims.IdentityID)
	s.Equal("alice", claims.Username)
	s.Equal("alice@example.com", claims.Email)

	_, err = s.service.Authenticate(issued.RefreshToken.Value)
	s.ErrorIs(err, ErrKindMismatch)

	s.clock.Advance(16 * time.Minute)
	_, err = s.service.Authenticate(issued.AccessToken.Value)
	s.ErrorIs(err, ErrExpiredToken)
}

func (s *ServiceSuite) TestLoginDoesNotRehashByDefault() {
	reg := s.register("alice", "alice@example.com", "S3cr3t!")

	_, stronger := s.newService(testConfig(), testPasswords(2))
	_, rec, err := stronger.Login(s.ctx, "alice", "S3cr3t!")
	s.Require().NoError(err)
	s.Equal(reg.Record.PasswordHash, rec.PasswordHash)
}

func (s *ServiceSuite) TestLoginRehashesWhenEnabled() {
	reg := s.register("alice", "alice@example.com", "S3cr3t!")
	s.Contains(reg.Record.PasswordHash, "t=1")

	cfg := testConfig()
	cfg.RehashOnLogin = true
	_, stronger := s.newService(cfg, testPasswords(2))

	_, rec, err := stronger.Login(s.ctx, "alice", "S3cr3t!")
	s.Require().NoError(err)
	s.Contains(rec.PasswordHash, "t=2")

	_, _, err = stronger.Login(s.ctx, "alice", "S3cr3t!")
	s.NoError(err)
}

func (s *ServiceSuite) TestLoginAfterWorkFactorLowered() {
	_, heavier := s.newService(testConfig(), testPasswords(8))
	reg, err := heavier.Register(s.ctx, identity.RegisterInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "S3cr3t!",
	})
	s.Require().NoError(err)
	s.Contains(reg.Record.PasswordHash, "t=8")

	_, rec, err := s.service.Login(s.ctx, "alice", "S3cr3t!")
	s.Require().NoError(err)
	s.Equal(reg.Record.PasswordHash, rec.PasswordHash)
}

// Refresh tests

func (s *ServiceSuite) TestRefreshRotates() {
	s.register("alice", "alice@example.com", "S3cr3t!")
	first, _ := s.login("alice", "S3cr3t!")

	second, err := s.service.Refresh(s.ctx, first.RefreshToken.Value)
	s.Require().NoError(err)
	s.NotEqual(first.RefreshToken.Value, second.RefreshToken.Value)

	third, err := s.service.Refresh(s.ctx, second.RefreshToken.Value)
	s.Require().NoError(err)
	s.NotEqual(second.RefreshToken.Value, third.RefreshToken.Value)
}

func (s *ServiceSuite) TestRefreshReuseRevokesSession() {
	reg := s.register("alice", "alice@example.com", "S3cr3t!")
	first, _ := s.login("alice", "S3cr3t!")

	second, err := s.service.Refresh(s.ctx, first.RefreshToken.Value)
	s.Require().NoError(err)

	_, err = s.service.Refresh(s.ctx, first.RefreshToken.Value)
	s.ErrorIs(err, ErrRefreshReuseDetected)

	rec, err := s.store.GetByID(s.ctx, reg.Record.ID)
	s.Require().NoError(err)
	s.False(rec.HasActiveSession())

	_, err = s.service.Refresh(s.ctx, second.RefreshToken.Value)
	s.ErrorIs(err, ErrSessionNotActive)
}

func (s *ServiceSuite) TestRefreshRejectsAccessToken() {
	s.register("alice", "alice@example.com", "S3cr3t!")
	issued, _ := s.login("alice", "S3cr3t!")

	_, err := s.service.Refresh(s.ctx, issued.AccessToken.Value)
	s.ErrorIs(err, ErrKindMismatch)
}

func (s *ServiceSuite) TestRefreshExpired() {
	s.register("alice", "alice@example.com", "S3cr3t!")
	issued, _ := s.login("alice", "S3cr3t!")

	s.clock.Advance(240*time.Hour + time.Second)
	_, err := s.service.Refresh(s.ctx, issued.RefreshToken.Value)
	s.ErrorIs(err, ErrExpiredToken)
}

func (s *ServiceSuite) TestRefreshUnknownIdentity() {
	minter, err := NewMinter(testConfig(), s.clock)
	s.Require().NoError(err)
	tok, err := minter.IssueRefreshToken("01JNPZ8Q3V6W4XGM9B2C7DKA5E")
	s.Require().NoError(err)

	_, err = s.service.Refresh(s.ctx, tok.Value)
	s.ErrorIs(err, ErrSessionNotActive)
}

// Logout tests

func (s *ServiceSuite) TestLogoutEndsSession() {
	reg := s.register("alice", "alice@example.com", "S3cr3t!")
	issued, _ := s.login("alice", "S3cr3t!")

	s.Require().NoError(s.service.Logout(s.ctx, reg.Record.ID))
	s.Require().NoError(s.service.Logout(s.ctx, reg.Record.ID))

	_, err := s.service.Refresh(s.ctx, issued.RefreshToken.Value)
	s.ErrorIs(err, ErrSessionNotActive)

	// Access tokens are stateless and live until they expire.
	_, err = s.service.Authenticate(issued.AccessToken.Value)
	s.NoError(err)
}

// ChangePassword tests

func (s *ServiceSuite) TestChangePasswordRequiresCurrent() {
	reg := s.register("alice", "alice@example.com", "S3cr3t!")

	_, err := s.service.ChangePassword(s.ctx, reg.Record.ID, "wrong", "N3w-Passw0rd!")
	s.ErrorIs(err, ErrInvalidCredentials)

	rec, err := s.store.GetByID(s.ctx, reg.Record.ID)
	s.Require().NoError(err)
	s.Equal(reg.Record.PasswordHash, rec.PasswordHash)
}

func (s *ServiceSuite) TestChangePasswordRevokesSessions() {
	reg := s.register("alice", "alice@example.com", "S3cr3t!")
	issued, _ := s.login("alice", "S3cr3t!")

	rec, err := s.service.ChangePassword(s.ctx, reg.Record.ID, "S3cr3t!", "N3w-Passw0rd!")
	s.Require().NoError(err)
	s.False(rec.HasActiveSession())

	_, err = s.service.Refresh(s.ctx, issued.RefreshToken.Value)
	s.ErrorIs(err, ErrSessionNotActive)

	_, _, err = s.service.Login(s.ctx, "alice", "S3cr3t!")
	s.ErrorIs(err, ErrInvalidCredentials)
	s.login("alice", "N3w-Passw0rd!")
}

func (s *ServiceSuite) TestChangePasswordPolicy() {
	reg := s.register("alice", "alice@example.com", "S3cr3t!")

	_, err := s.service.ChangePassword(s.ctx, reg.Record.ID, "S3cr3t!", "abc")
	s.ErrorIs(err, password.ErrPasswordTooShort)
}

// Email verification tests

func (s *ServiceSuite) TestConfirmEmail() {
	reg := s.register("alice", "alice@example.com", "S3cr3t!")

	rec, err := s.service.ConfirmEmail(s.ctx, reg.Record.ID, reg.Verification.Plaintext)
	s.Require().NoError(err)
	s.True(rec.EmailVerified)
	s.Nil(rec.Pending(identity.PurposeEmailVerification))

	_, err = s.service.ConfirmEmail(s.ctx, reg.Record.ID, reg.Verification.Plaintext)
	s.ErrorIs(err, identity.ErrNoPendingToken)

	_, _, err = s.service.RequestEmailVerification(s.ctx, reg.Record.ID)
	s.ErrorIs(err, ErrAlreadyVerified)
	s.True(identity.IsInvalidInput(err))
}

func (s *ServiceSuite) TestConfirmEmailExpired() {
	reg := s.register("alice", "alice@example.com", "S3cr3t!")

	s.clock.Advance(20*time.Minute + time.Second)
	_, err := s.service.ConfirmEmail(s.ctx, reg.Record.ID, reg.Verification.Plaintext)
	s.ErrorIs(err, token.ErrTokenExpired)

	rec, err := s.store.GetByID(s.ctx, reg.Record.ID)
	s.Require().NoError(err)
	s.False(rec.EmailVerified)
}

func (s *ServiceSuite) TestRequestEmailVerificationSupersedes() {
	reg := s.register("alice", "alice@example.com", "S3cr3t!")

	_, fresh, err := s.service.RequestEmailVerification(s.ctx, reg.Record.ID)
	s.Require().NoError(err)

	_, err = s.service.ConfirmEmail(s.ctx, reg.Record.ID, reg.Verification.Plaintext)
	s.ErrorIs(err, token.ErrTokenMismatch)

	rec, err := s.service.ConfirmEmail(s.ctx, reg.Record.ID, fresh.Plaintext)
	s.Require().NoError(err)
	s.True(rec.EmailVerified)
}

// Password reset tests

func (s *ServiceSuite) TestForgotPasswordUnknownEmail() {
	_, _, err := s.service.ForgotPassword(s.ctx, "nobody@example.com")
	s.True(identity.IsNotFound(err))

	_, _, err = s.service.ForgotPassword(s.ctx, "not-an-email")
	s.True(identity.IsInvalidInput(err))
}

func (s *ServiceSuite) TestResetPassword() {
	reg := s.register("alice", "alice@example.com", "S3cr3t!")
	issued, _ := s.login("alice", "S3cr3t!")

	rec, reset, err := s.service.ForgotPassword(s.ctx, "ALICE@example.com")
	s.Require().NoError(err)
	s.Equal(reg.Record.ID, rec.ID)
	s.NotNil(rec.Pending(identity.PurposePasswordReset))

	_, err = s.service.ResetPassword(s.ctx, rec.ID, strings.Repeat("0", 40), "N3w-Passw0rd!")
	s.ErrorIs(err, token.ErrTokenMismatch)
	s.login("alice", "S3cr3t!")

	rec, err = s.service.ResetPassword(s.ctx, rec.ID, reset.Plaintext, "N3w-Passw0rd!")
	s.Require().NoError(err)
	s.Nil(rec.Pending(identity.PurposePasswordReset))
	s.False(rec.HasActiveSession())

	_, err = s.service.Refresh(s.ctx, issued.RefreshToken.Value)
	s.ErrorIs(err, ErrSessionNotActive)

	_, err = s.service.ResetPassword(s.ctx, rec.ID, reset.Plaintext, "An0ther-Passw0rd!")
	s.ErrorIs(err, identity.ErrNoPendingToken)

	s.login("alice", "N3w-Passw0rd!")
}

func (s *ServiceSuite) TestResetPasswordExpired() {
	s.register("alice", "alice@example.com", "S3cr3t!")
	rec, reset, err := s.service.ForgotPassword(s.ctx, "alice@example.com")
	s.Require().NoError(err)

	s.clock.Advance(21 * time.Minute)
	_, err = s.service.ResetPassword(s.ctx, rec.ID, reset.Plaintext, "N3w-Passw0rd!")
	s.ErrorIs(err, token.ErrTokenExpired)
	s.login("alice", "S3cr3t!")
}

func TestNewService_RequiresDependencies(t *testing.T) {
	if _, err := NewService(testConfig(), nil, nil, nil, nil, nil, nil); err == nil {
		t.Fatalf("expected error for missing dependencies")
	}
}
