// Package totp implements the time-based one-time password computations used
// as the second authentication factor. All functions are deterministic given
// their inputs; the package holds no state beyond the injected random source.
package totp

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base32"
	"errors"
	"io"
	"net/url"
	"regexp"
	"time"

	"authd/internal/configuration"

	otplib "github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/skip2/go-qrcode"
)

var (
	// ErrInvalidSecret signals a malformed or wrong-length shared secret.
	// Non-retryable caller error.
	ErrInvalidSecret = errors.New("invalid totp secret")

	// ErrInvalidFormat signals a non-numeric or wrong-length submitted code.
	// Treated as a verification failure, never a crash.
	ErrInvalidFormat = errors.New("invalid totp code format")
)

var codeFormat = regexp.MustCompile(`^[0-9]{6}$`)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// Engine generates secrets and provisioning material. Rand defaults to
// crypto/rand when nil so zero-value engines stay safe.
type Engine struct {
	Issuer string
	Rand   io.Reader
}

func (e Engine) random() io.Reader {
	if e.Rand == nil {
		return rand.Reader
	}
	return e.Rand
}

// GenerateSecret returns a Base32-encoded secret with 160 bits of entropy.
func (e Engine) GenerateSecret() (string, error) {
	raw := make([]byte, configuration.TOTPSecretSize)
	if _, err := io.ReadFull(e.random(), raw); err != nil {
		return "", err
	}
	return b32.EncodeToString(raw), nil
}

// ProvisioningURI builds the otpauth:// URI encoding the secret and account
// label, suitable for QR rendering by authenticator apps.
func (e Engine) ProvisioningURI(secret string, account string) string {
	label := url.PathEscape(e.Issuer) + ":" + url.PathEscape(account)

	query := url.Values{}
	query.Set("secret", secret)
	query.Set("issuer", e.Issuer)
	query.Set("algorithm", "SHA1")
	query.Set("digits", "6")
	query.Set("period", "30")

	return "otpauth://totp/" + label + "?" + query.Encode()
}

// QRCodePNG renders a provisioning URI as a PNG image.
func (e Engine) QRCodePNG(uri string) ([]byte, error) {
	return qrcode.Encode(uri, qrcode.Medium, 256)
}

func validateSecret(secret string) error {
	raw, err := b32.DecodeString(secret)
	if err != nil {
		return ErrInvalidSecret
	}
	if len(raw) != configuration.TOTPSecretSize {
		return ErrInvalidSecret
	}
	return nil
}

// CurrentCode derives the 6-digit code for the 30-second step containing t.
func CurrentCode(secret string, t time.Time) (string, error) {
	if err := validateSecret(secret); err != nil {
		return "", err
	}

	return totp.GenerateCodeCustom(secret, t, totp.ValidateOpts{
		Period:    configuration.TOTPPeriodSeconds,
		Digits:    otplib.DigitsSix,
		Algorithm: otplib.AlgorithmSHA1,
	})
}

// Verify accepts a code matching the current step or the immediately
// preceding one, tolerating up to one step of backward clock skew. Comparison
// is constant time with respect to code content.
func Verify(secret string, submitted string, t time.Time) (bool, error) {
	if err := validateSecret(secret); err != nil {
		return false, err
	}
	if !codeFormat.MatchString(submitted) {
		return false, ErrInvalidFormat
	}

	match := 0
	for _, offset := range []time.Duration{0, -configuration.TOTPPeriodSeconds * time.Second} {
		expected, err := CurrentCode(secret, t.Add(offset))
		if err != nil {
			return false, err
		}
		// No early exit: both windows are always compared.
		match |= subtle.ConstantTimeCompare([]byte(expected), []byte(submitted))
	}

	return match == 1, nil
}
