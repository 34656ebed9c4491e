package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"basecampy/cmd/identity"
	"basecampy/cmd/internal/auth/session"
)

// Prefix is the mount point of every auth route.
const Prefix = "/api/v1/auth"

// Handler wires HTTP auth endpoints to the session service.
type Handler struct {
	log *slog.Logger
	cfg Config

	sessions *session.Service

	emailSender EmailSender
	registerer  prometheus.Registerer
	audit       *auditor
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithEmailSender overrides the default no-op email sender.
func WithEmailSender(sender EmailSender) HandlerOption {
	return func(h *Handler) {
		if h == nil || sender == nil {
			return
		}
		h.emailSender = sender
	}
}

// WithRegisterer sets the Prometheus registerer for the audit counter.
// The default is prometheus.DefaultRegisterer.
func WithRegisterer(reg prometheus.Registerer) HandlerOption {
	return func(h *Handler) {
		if h == nil || reg == nil {
			return
		}
		h.registerer = reg
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, sessions *session.Service, cfg Config, opts ...HandlerOption) (*Handler, error) {
	if sessions == nil {
		return nil, errors.New("auth: nil session service")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}

	h := &Handler{
		log:         log,
		cfg:         cfg,
		sessions:    sessions,
		emailSender: NoopEmailSender{},
		registerer:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	h.audit = newAuditor(log, h.registerer)
	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc(Prefix+"/register", h.handleRegister)
	mux.HandleFunc(Prefix+"/login", h.handleLogin)
	mux.HandleFunc(Prefix+"/refresh", h.handleRefresh)
	mux.HandleFunc(Prefix+"/logout", h.handleLogout)
	mux.HandleFunc(Prefix+"/me", h.handleMe)
	mux.HandleFunc(Prefix+"/change-password", h.handleChangePassword)
	mux.HandleFunc(Prefix+"/verify-email/request", h.handleVerifyEmailRequest)
	mux.HandleFunc(Prefix+"/verify-email/confirm", h.handleVerifyEmailConfirm)
	mux.HandleFunc(Prefix+"/forgot-password", h.handleForgotPassword)
	mux.HandleFunc(Prefix+"/reset-password", h.handleResetPassword)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	ctx := r.Context()
	reg, err := h.sessions.Register(ctx, identity.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
	})
	if err != nil {
		f := h.writeServiceError(w, "auth.register", err)
		h.audit.record(ctx, h.event(r, "auth.register", outcomeFailure, "", f.Code))
		return
	}

	link := actionLink(h.cfg.AppBaseURL, "/verify-email", reg.Record.ID, reg.Verification.Plaintext)
	h.sendMail(ctx, verificationMail(reg.Record.Email, reg.Record.Username, link))
	h.audit.record(ctx, h.event(r, "auth.register", outcomeSuccess, reg.Record.ID, ""))

	writeData(w, http.StatusCreated,
		"User registered successfully and verification email has been sent on your email",
		userEnvelope{User: toUserResponse(reg.Record)})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	identifier := loginIdentifier(req)
	if identifier == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username or email and password are required")
		return
	}

	ctx := r.Context()
	issued, rec, err := h.sessions.Login(ctx, identifier, req.Password)
	if err != nil {
		f := h.writeServiceError(w, "auth.login", err)
		h.audit.record(ctx, h.event(r, "auth.login", outcomeFailure, "", f.Code))
		return
	}

	h.audit.record(ctx, h.event(r, "auth.login", outcomeSuccess, rec.ID, ""))
	h.setSessionCookies(w, issued)
	writeData(w, http.StatusOK, "User logged in successfully", loginResponse{
		User:   toUserResponse(rec),
		Tokens: toTokensResponse(issued),
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req refreshRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			writeDecodeError(w, err)
			return
		}
	}
	refreshToken := strings.TrimSpace(req.RefreshToken)
	if refreshToken == "" {
		if v, ok := h.tokenFromCookie(r, refreshCookieName); ok {
			refreshToken = v
		}
	}
	if refreshToken == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "refresh token is required")
		return
	}

	ctx := r.Context()
	issued, err := h.sessions.Refresh(ctx, refreshToken)
	if err != nil {
		f := h.writeServiceError(w, "auth.refresh", err)
		if errors.Is(err, session.ErrRefreshReuseDetected) {
			h.clearSessionCookies(w)
		}
		h.audit.record(ctx, h.event(r, "auth.refresh", outcomeFailure, "", f.Code))
		return
	}

	h.audit.record(ctx, h.event(r, "auth.refresh", outcomeSuccess, "", ""))
	h.setSessionCookies(w, issued)
	writeData(w, http.StatusOK, "Access token refreshed", refreshResponse{Tokens: toTokensResponse(issued)})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if err := h.sessions.Logout(ctx, claims.IdentityID); err != nil {
		h.writeServiceError(w, "auth.logout", err)
		return
	}

	h.audit.record(ctx, h.event(r, "auth.logout", outcomeSuccess, claims.IdentityID, ""))
	h.clearSessionCookies(w)
	writeData(w, http.StatusOK, "User logged out", empty{})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	rec, err := h.sessions.Identity(r.Context(), claims.IdentityID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "not_found", "user not found")
			return
		}
		h.writeServiceError(w, "auth.me", err)
		return
	}
	writeData(w, http.StatusOK, "Current user fetched successfully", userEnvelope{User: toUserResponse(rec)})
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	ctx := r.Context()
	if _, err := h.sessions.ChangePassword(ctx, claims.IdentityID, req.CurrentPassword, req.NewPassword); err != nil {
		f := h.writeServiceError(w, "auth.change_password", err)
		h.audit.record(ctx, h.event(r, "auth.change_password", outcomeFailure, claims.IdentityID, f.Code))
		return
	}

	h.audit.record(ctx, h.event(r, "auth.change_password", outcomeSuccess, claims.IdentityID, ""))
	h.clearSessionCookies(w)
	writeData(w, http.StatusOK, "Password changed successfully", empty{})
}

func (h *Handler) handleVerifyEmailRequest(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	rec, tok, err := h.sessions.RequestEmailVerification(ctx, claims.IdentityID)
	if err != nil {
		h.writeServiceError(w, "auth.verify_email.request", err)
		return
	}

	link := actionLink(h.cfg.AppBaseURL, "/verify-email", rec.ID, tok.Plaintext)
	h.sendMail(ctx, verificationMail(rec.Email, rec.Username, link))
	h.audit.record(ctx, h.event(r, "auth.verify_email.request", outcomeSuccess, rec.ID, ""))
	writeData(w, http.StatusOK, "Mail has been sent to your email ID", empty{})
}

func (h *Handler) handleVerifyEmailConfirm(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req confirmEmailRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	id, tok := strings.TrimSpace(req.ID), strings.TrimSpace(req.Token)
	if id == "" || tok == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "id and token are required")
		return
	}

	ctx := r.Context()
	rec, err := h.sessions.ConfirmEmail(ctx, id, tok)
	if err != nil {
		f := h.writeServiceError(w, "auth.verify_email.confirm", err)
		h.audit.record(ctx, h.event(r, "auth.verify_email.confirm", outcomeFailure, id, f.Code))
		return
	}

	h.audit.record(ctx, h.event(r, "auth.verify_email.confirm", outcomeSuccess, rec.ID, ""))
	writeData(w, http.StatusOK, "Email is verified", userEnvelope{User: toUserResponse(rec)})
}

// handleForgotPassword answers identically whether or not the email is
// registered.
func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req forgotPasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	ctx := r.Context()
	rec, tok, err := h.sessions.ForgotPassword(ctx, req.Email)
	switch {
	case err == nil:
		link := actionLink(h.cfg.AppBaseURL, "/reset-password", rec.ID, tok.Plaintext)
		h.sendMail(ctx, passwordResetMail(rec.Email, rec.Username, link))
		h.audit.record(ctx, h.event(r, "auth.forgot_password", outcomeSuccess, rec.ID, ""))
	case identity.IsNotFound(err), identity.IsInvalidInput(err):
		h.audit.record(ctx, h.event(r, "auth.forgot_password", outcomeFailure, "", "unknown_email"))
	default:
		h.log.Error("auth.forgot_password.fail", "err", err)
		h.audit.record(ctx, h.event(r, "auth.forgot_password", outcomeFailure, "", "server_error"))
	}

	writeData(w, http.StatusOK, "If the email is registered, a password reset link has been sent", empty{})
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req resetPasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	id, tok := strings.TrimSpace(req.ID), strings.TrimSpace(req.Token)
	if id == "" || tok == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "id and token are required")
		return
	}

	ctx := r.Context()
	if _, err := h.sessions.ResetPassword(ctx, id, tok, req.NewPassword); err != nil {
		f := h.writeServiceError(w, "auth.reset_password", err)
		h.audit.record(ctx, h.event(r, "auth.reset_password", outcomeFailure, id, f.Code))
		return
	}

	h.audit.record(ctx, h.event(r, "auth.reset_password", outcomeSuccess, id, ""))
	writeData(w, http.StatusOK, "Password reset successfully", empty{})
}

// ---- helpers ----

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	return false
}

// requireAuth reads the access token from the Authorization header, falling
// back to the access cookie.
func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (session.Claims, bool) {
	raw := bearerToken(r)
	if raw == "" {
		if v, ok := h.tokenFromCookie(r, accessCookieName); ok {
			raw = v
		}
	}
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return session.Claims{}, false
	}
	claims, err := h.sessions.Authenticate(raw)
	if err != nil {
		f := h.writeServiceError(w, "auth.authenticate", err)
		if session.IsTokenRejection(err) {
			h.audit.record(r.Context(), h.event(r, "auth.authenticate", outcomeFailure, "", f.Code))
		}
		return session.Claims{}, false
	}
	return claims, true
}

func (h *Handler) sendMail(ctx context.Context, m Mail) {
	if err := h.emailSender.Send(ctx, m); err != nil {
		h.log.Error("auth.mail.send.fail", "kind", string(m.Kind), "err", err)
	}
}

func (h *Handler) event(r *http.Request, name, outcome, identityID, reason string) auditEvent {
	return auditEvent{
		Name:       name,
		Outcome:    outcome,
		IdentityID: identityID,
		Reason:     reason,
		IP:         clientIP(r, h.cfg.TrustProxy),
		UserAgent:  r.UserAgent(),
	}
}
