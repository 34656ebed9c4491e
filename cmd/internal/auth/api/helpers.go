package authapi

import (
	"net"
	"net/http"
	"strings"

	"basecampy/cmd/identity"
	"basecampy/cmd/internal/auth/session"
)

func toUserResponse(rec identity.Record) userResponse {
	return userResponse{
		ID:            rec.ID,
		Username:      rec.Username,
		Email:         rec.Email,
		FullName:      rec.FullName,
		Avatar:        avatarResponse{URL: rec.Avatar.URL, LocalPath: rec.Avatar.LocalPath},
		EmailVerified: rec.EmailVerified,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}

func toTokensResponse(issued session.Issued) tokensResponse {
	return tokensResponse{
		AccessToken:           issued.AccessToken.Value,
		AccessTokenExpiresAt:  issued.AccessToken.ExpiresAt,
		RefreshToken:          issued.RefreshToken.Value,
		RefreshTokenExpiresAt: issued.RefreshToken.ExpiresAt,
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}

// loginIdentifier prefers the email when both are given.
func loginIdentifier(req loginRequest) string {
	if v := strings.TrimSpace(req.Email); v != "" {
		return v
	}
	return strings.TrimSpace(req.Username)
}
