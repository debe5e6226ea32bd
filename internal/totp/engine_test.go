package totp

import (
	"bytes"
	"encoding/base32"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecret(t *testing.T) {
	engine := Engine{Issuer: "authd"}

	t.Run("should produce a base32 secret with 160 bits of entropy", func(t *testing.T) {
		secret, err := engine.GenerateSecret()

		require.NoError(t, err)
		raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
		require.NoError(t, err)
		assert.Len(t, raw, 20)
	})

	t.Run("should be deterministic given the random source", func(t *testing.T) {
		fixed := Engine{Issuer: "authd", Rand: bytes.NewReader(make([]byte, 20))}

		secret, err := fixed.GenerateSecret()

		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("A", 32), secret)
	})

	t.Run("should produce distinct secrets across calls", func(t *testing.T) {
		first, err := engine.GenerateSecret()
		require.NoError(t, err)
		second, err := engine.GenerateSecret()
		require.NoError(t, err)

		assert.NotEqual(t, first, second)
	})
}

func TestVerify(t *testing.T) {
	engine := Engine{Issuer: "authd"}
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

	secret, err := engine.GenerateSecret()
	require.NoError(t, err)

	t.Run("should accept the code for the current step", func(t *testing.T) {
		code, err := CurrentCode(secret, now)
		require.NoError(t, err)

		ok, err := Verify(secret, code, now)

		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("should accept the code for the immediately preceding step", func(t *testing.T) {
		code, err := CurrentCode(secret, now.Add(-30*time.Second))
		require.NoError(t, err)

		ok, err := Verify(secret, code, now)

		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("should reject a code from 90 seconds in the past", func(t *testing.T) {
		code, err := CurrentCode(secret, now.Add(-90*time.Second))
		require.NoError(t, err)

		ok, err := Verify(secret, code, now)

		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("should reject a code from a future step", func(t *testing.T) {
		code, err := CurrentCode(secret, now.Add(30*time.Second))
		require.NoError(t, err)

		ok, err := Verify(secret, code, now)

		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("should reject an unrelated random code", func(t *testing.T) {
		other, err := engine.GenerateSecret()
		require.NoError(t, err)
		code, err := CurrentCode(other, now)
		require.NoError(t, err)

		ok, verifyErr := Verify(secret, code, now)

		require.NoError(t, verifyErr)
		// A 1-in-10^6 collision per window is possible; two windows double it.
		// Treated as overwhelming-probability rejection, not certainty.
		if code != mustCurrentCode(t, secret, now) && code != mustCurrentCode(t, secret, now.Add(-30*time.Second)) {
			assert.False(t, ok)
		}
	})

	t.Run("should reject malformed codes as InvalidFormat", func(t *testing.T) {
		for _, submitted := range []string{"", "12345", "1234567", "12345a", "abcdef", "123 45"} {
			ok, err := Verify(secret, submitted, now)

			assert.ErrorIs(t, err, ErrInvalidFormat, submitted)
			assert.False(t, ok, submitted)
		}
	})

	t.Run("should reject malformed secrets as InvalidSecret", func(t *testing.T) {
		for _, bad := range []string{"", "notbase32!!", "JBSWY3DP"} {
			ok, err := Verify(bad, "123456", now)

			assert.ErrorIs(t, err, ErrInvalidSecret, bad)
			assert.False(t, ok, bad)
		}
	})
}

func mustCurrentCode(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := CurrentCode(secret, at)
	require.NoError(t, err)
	return code
}

func TestCurrentCode(t *testing.T) {
	engine := Engine{Issuer: "authd"}

	t.Run("should be stable within a 30-second step", func(t *testing.T) {
		secret, err := engine.GenerateSecret()
		require.NoError(t, err)

		stepStart := time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC)
		first, err := CurrentCode(secret, stepStart)
		require.NoError(t, err)
		second, err := CurrentCode(secret, stepStart.Add(29*time.Second))
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Len(t, first, 6)
	})

	t.Run("should reject a malformed secret", func(t *testing.T) {
		_, err := CurrentCode("short", time.Now())

		assert.ErrorIs(t, err, ErrInvalidSecret)
	})
}

func TestProvisioningURI(t *testing.T) {
	engine := Engine{Issuer: "authd"}

	secret, err := engine.GenerateSecret()
	require.NoError(t, err)

	uri := engine.ProvisioningURI(secret, "alice")

	assert.True(t, strings.HasPrefix(uri, "otpauth://totp/authd:alice?"))
	assert.Contains(t, uri, "secret="+secret)
	assert.Contains(t, uri, "issuer=authd")
	assert.Contains(t, uri, "period=30")
	assert.Contains(t, uri, "digits=6")
}

func TestQRCodePNG(t *testing.T) {
	engine := Engine{Issuer: "authd"}

	png, err := engine.QRCodePNG("otpauth://totp/authd:alice?secret=ABC")

	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}
