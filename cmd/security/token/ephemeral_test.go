package token

import (
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"basecampy/cmd/internal/dependencies/mocks"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestGenerator(t *testing.T) (*Generator, *mocks.MockClock) {
	t.Helper()
	clk := mocks.NewMockClock(epoch)
	g, err := NewGenerator(DefaultEphemeralConfig(), clk, nil)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return g, clk
}

func TestGenerate_Shape(t *testing.T) {
	g, _ := newTestGenerator(t)

	tok, err := g.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	raw, err := hex.DecodeString(tok.Plaintext)
	if err != nil {
		t.Fatalf("plaintext must be hex: %v", err)
	}
	if len(raw)*8 < 160 {
		t.Fatalf("expected >= 160 bits, got %d", len(raw)*8)
	}
	if tok.Hash != HashSHA256Hex(tok.Plaintext) {
		t.Fatalf("hash must be SHA-256 of plaintext")
	}
	if !tok.ExpiresAt.Equal(epoch.Add(20 * time.Minute)) {
		t.Fatalf("ExpiresAt = %v, want now+20m", tok.ExpiresAt)
	}
}

func TestGenerate_Unique(t *testing.T) {
	g, _ := newTestGenerator(t)

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		tok, err := g.Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if _, dup := seen[tok.Plaintext]; dup {
			t.Fatalf("duplicate plaintext after %d tokens", i)
		}
		seen[tok.Plaintext] = struct{}{}
	}
}

func TestGenerate_RandomFailure(t *testing.T) {
	r := mocks.NewMockRandom()
	r.Err = errors.New("no entropy")
	g, err := NewGenerator(DefaultEphemeralConfig(), mocks.NewMockClock(epoch), r)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	if _, err := g.Generate(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestConsume_ExpiryBoundary(t *testing.T) {
	g, _ := newTestGenerator(t)
	tok, err := g.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	cases := []struct {
		name string
		at   time.Duration
		want error
	}{
		{"before expiry", 19*time.Minute + 59*time.Second, nil},
		{"at expiry", 20 * time.Minute, nil},
		{"after expiry", 20*time.Minute + time.Second, ErrTokenExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Consume(tok.Hash, tok.ExpiresAt, tok.Plaintext, epoch.Add(tc.at))
			if !errors.Is(err, tc.want) {
				t.Fatalf("Consume at +%v = %v, want %v", tc.at, err, tc.want)
			}
		})
	}
}

func TestConsume_ExpiredBeatsMismatch(t *testing.T) {
	g, _ := newTestGenerator(t)
	tok, err := g.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	late := tok.ExpiresAt.Add(time.Second)
	if err := Consume(tok.Hash, tok.ExpiresAt, "wrong", late); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired for wrong+expired, got %v", err)
	}
	if err := Consume(tok.Hash, tok.ExpiresAt, tok.Plaintext, late); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired for right+expired, got %v", err)
	}
}

func TestConsume_Mismatch(t *testing.T) {
	g, _ := newTestGenerator(t)
	tok, err := g.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if err := g.Consume(tok.Hash, tok.ExpiresAt, tok.Plaintext+"0", epoch); !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("expected ErrTokenMismatch, got %v", err)
	}
	if err := g.Consume("", tok.ExpiresAt, tok.Plaintext, epoch); !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("empty stored hash must not match, got %v", err)
	}
}

func TestEphemeralConfig(t *testing.T) {
	if err := (EphemeralConfig{TTL: time.Minute, Bytes: 16}).Validate(); err == nil {
		t.Fatalf("expected error for < 160 bits")
	}
	if err := (EphemeralConfig{TTL: 0, Bytes: 20}).Validate(); err == nil {
		t.Fatalf("expected error for zero ttl")
	}

	t.Setenv("BASECAMPY_EPHEMERAL_TOKEN_TTL", "")
	t.Setenv("BASECAMPY_EPHEMERAL_TOKEN_BYTES", "")
	cfg, err := EphemeralConfigFromEnv()
	if err != nil {
		t.Fatalf("EphemeralConfigFromEnv: %v", err)
	}
	if cfg != DefaultEphemeralConfig() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}

	t.Setenv("BASECAMPY_EPHEMERAL_TOKEN_TTL", "45m")
	t.Setenv("BASECAMPY_EPHEMERAL_TOKEN_BYTES", "32")
	cfg, err = EphemeralConfigFromEnv()
	if err != nil {
		t.Fatalf("EphemeralConfigFromEnv: %v", err)
	}
	if cfg.TTL != 45*time.Minute || cfg.Bytes != 32 {
		t.Fatalf("unexpected config %+v", cfg)
	}

	t.Setenv("BASECAMPY_EPHEMERAL_TOKEN_BYTES", "8")
	if _, err := EphemeralConfigFromEnv(); err == nil {
		t.Fatalf("expected error for 8 bytes")
	}

	t.Setenv("BASECAMPY_EPHEMERAL_TOKEN_BYTES", "32")
	t.Setenv("BASECAMPY_EPHEMERAL_TOKEN_TTL", "soon")
	if _, err := EphemeralConfigFromEnv(); err == nil {
		t.Fatalf("expected error for unparseable ttl")
	}
}
