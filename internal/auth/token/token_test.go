package token

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/floodwatch/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var issuedAt = time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

func newTestIssuer(t *testing.T, clk clock.Clock) *Issuer {
	t.Helper()
	issuer, err := NewIssuer("test-secret", DefaultTTL, clk)
	require.NoError(t, err)
	return issuer
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	_, err := NewIssuer("  ", DefaultTTL, nil)
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestIssueAndVerify(t *testing.T) {
	clk := clock.NewFakeClock(issuedAt)
	issuer := newTestIssuer(t, clk)

	tok, err := issuer.Issue("1001", "ana@x.com")
	require.NoError(t, err)
	assert.Equal(t, issuedAt.Add(7*24*time.Hour), tok.ExpiresAt)

	claims, err := issuer.Verify(tok.Value)
	require.NoError(t, err)
	assert.Equal(t, "1001", claims.AccountID)
	assert.Equal(t, "ana@x.com", claims.Email)
	assert.Equal(t, tok.ID, claims.ID)
}

func TestVerifyIsIdempotent(t *testing.T) {
	clk := clock.NewFakeClock(issuedAt)
	issuer := newTestIssuer(t, clk)

	tok, err := issuer.Issue("1001", "ana@x.com")
	require.NoError(t, err)

	first, err := issuer.Verify(tok.Value)
	require.NoError(t, err)
	clk.Advance(time.Hour)
	second, err := issuer.Verify(tok.Value)
	require.NoError(t, err)

	assert.Equal(t, *first, *second)
}

func TestVerifyAfterExpiry(t *testing.T) {
	clk := clock.NewFakeClock(issuedAt)
	issuer := newTestIssuer(t, clk)

	tok, err := issuer.Issue("1001", "ana@x.com")
	require.NoError(t, err)

	clk.Advance(7*24*time.Hour - time.Second)
	_, err = issuer.Verify(tok.Value)
	require.NoError(t, err)

	clk.Advance(2 * time.Second)
	_, err = issuer.Verify(tok.Value)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	clk := clock.NewFakeClock(issuedAt)
	tok, err := newTestIssuer(t, clk).Issue("1001", "ana@x.com")
	require.NoError(t, err)

	other, err := NewIssuer("other-secret", DefaultTTL, clk)
	require.NoError(t, err)

	_, err = other.Verify(tok.Value)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsMalformed(t *testing.T) {
	issuer := newTestIssuer(t, clock.NewFakeClock(issuedAt))

	for _, raw := range []string{"", "not.a.jwt", "abc"} {
		_, err := issuer.Verify(raw)
		if !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken for %q, got %v", raw, err)
		}
	}
}

func TestVerifyRejectsUnsignedAlgorithm(t *testing.T) {
	clk := clock.NewFakeClock(issuedAt)
	issuer := newTestIssuer(t, clk)

	claims := Claims{
		AccountID: "1001",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = issuer.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
