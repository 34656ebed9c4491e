package app

import (
	"errors"
	"fmt"

	"basecampy/cmd/security/token"
)

// minHMACKeyBytes is the floor for the refresh digest key (HMAC-SHA256).
// Bytes, not runes: the key is used raw.
const minHMACKeyBytes = 32

// RefreshDigester builds the digester used for stored refresh references and
// enforces the startup security policy:
//   - a configured key shorter than the floor is always fatal;
//   - with RequireTokenHMAC set, a missing key is fatal too.
//
// Without a key and without the requirement, references are plain SHA-256.
func RefreshDigester(cfg Config) (token.Digester, error) {
	key, err := token.HMACKeyFromEnv(minHMACKeyBytes)
	switch {
	case errors.Is(err, token.ErrHMACKeyMissing):
		if cfg.RequireTokenHMAC {
			return token.Digester{}, fmt.Errorf("security policy: BASECAMPY_REQUIRE_TOKEN_HMAC=true but %s is missing", token.HMACEnvKey)
		}
		return token.Digester{}, nil
	case errors.Is(err, token.ErrHMACKeyTooShort):
		return token.Digester{}, fmt.Errorf("security policy: %s is too short (min %d bytes)", token.HMACEnvKey, minHMACKeyBytes)
	case err != nil:
		return token.Digester{}, err
	}

	d, err := token.NewDigester(key, cfg.RequireTokenHMAC, minHMACKeyBytes)
	if err != nil {
		return token.Digester{}, err
	}
	if cfg.RequireTokenHMAC && !d.HMACEnabled() {
		return token.Digester{}, errors.New("security policy: BASECAMPY_REQUIRE_TOKEN_HMAC=true but refresh digests are not HMAC")
	}
	return d, nil
}
