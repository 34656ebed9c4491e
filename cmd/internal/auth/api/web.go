package authapi

import (
	"net/http"
	"strings"
	"time"

	"basecampy/cmd/internal/auth/session"
)

const (
	accessCookieName  = "accessToken"
	refreshCookieName = "refreshToken"
)

func (h *Handler) setSessionCookies(w http.ResponseWriter, issued session.Issued) {
	if h == nil || w == nil || !h.cfg.CookieTransport {
		return
	}
	h.setCookie(w, accessCookieName, issued.AccessToken.Value, issued.AccessToken.ExpiresAt)
	h.setCookie(w, refreshCookieName, issued.RefreshToken.Value, issued.RefreshToken.ExpiresAt)
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	if h == nil || w == nil || !h.cfg.CookieTransport {
		return
	}
	h.expireCookie(w, accessCookieName)
	h.expireCookie(w, refreshCookieName)
}

func (h *Handler) tokenFromCookie(r *http.Request, name string) (string, bool) {
	if h == nil || r == nil || !h.cfg.CookieTransport {
		return "", false
	}
	c, err := r.Cookie(name)
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(c.Value)
	if v == "" {
		return "", false
	}
	return v, true
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, exp time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  exp,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
}

func (h *Handler) expireCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
}
