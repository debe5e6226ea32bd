// Package recovery generates and consumes single-use backup codes. Plaintext
// codes are returned to the caller exactly once; only SHA-256 hashes are ever
// persisted.
package recovery

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"authd/internal/configuration"
	apierrors "authd/internal/errors"
	"authd/internal/store"

	"github.com/google/uuid"
)

// ErrInvalidCount rejects non-positive batch sizes.
var ErrInvalidCount = errors.New("invalid recovery code count")

const groupSize = 5

// Vault issues and consumes recovery codes for principals. Rand defaults to
// crypto/rand when nil.
type Vault struct {
	Rand  io.Reader
	Store store.Store
}

func (v Vault) random() io.Reader {
	if v.Rand == nil {
		return rand.Reader
	}
	return v.Rand
}

// GenerateBatch produces count human-transcribable codes, each carrying 80
// bits of entropy, formatted as XXXXX-XXXXX-XXXXX-XXXXX.
func (v Vault) GenerateBatch(count int) ([]string, error) {
	if count < 1 {
		return nil, ErrInvalidCount
	}

	codes := make([]string, count)
	for i := range codes {
		raw := make([]byte, configuration.RecoveryCodeBytes)
		if _, err := io.ReadFull(v.random(), raw); err != nil {
			return nil, err
		}
		codes[i] = format(strings.ToUpper(hex.EncodeToString(raw)))
	}
	return codes, nil
}

// StoreBatch hashes the plaintext codes and atomically replaces any existing
// unconsumed codes for the principal.
func (v Vault) StoreBatch(ctx context.Context, principalID uuid.UUID, codes []string) error {
	return v.Store.PutRecoveryCodeBatch(ctx, principalID, HashBatch(codes))
}

// Consume marks a single matching unconsumed code as consumed. Returns false
// when the submission is malformed, unknown, or already consumed; storage
// serializes racing attempts so at most one succeeds.
func (v Vault) Consume(ctx context.Context, principalID uuid.UUID, submitted string) (bool, error) {
	normalized, ok := Normalize(submitted)
	if !ok {
		return false, nil
	}

	err := v.Store.MarkRecoveryCodeConsumed(ctx, principalID, Hash(normalized))
	if err != nil {
		if errors.Is(err, apierrors.ErrNotFound) || errors.Is(err, apierrors.ErrStoreConflict) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Normalize strips separators and upcases a submitted code. Returns false when
// the result is not a plausible code, so lookups never hash arbitrary input.
func Normalize(submitted string) (string, bool) {
	cleaned := strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(submitted)))
	if len(cleaned) != configuration.RecoveryCodeBytes*2 {
		return "", false
	}
	for _, c := range cleaned {
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return "", false
		}
	}
	return cleaned, true
}

// Hash returns the hex SHA-256 of a normalized code.
func Hash(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// HashBatch hashes each plaintext code for storage.
func HashBatch(codes []string) []string {
	hashes := make([]string, len(codes))
	for i, code := range codes {
		normalized, _ := Normalize(code)
		hashes[i] = Hash(normalized)
	}
	return hashes
}

// VerifyHash compares a submitted code against a stored hash in constant time.
func VerifyHash(submitted string, storedHash string) bool {
	normalized, ok := Normalize(submitted)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(Hash(normalized)), []byte(storedHash)) == 1
}

func format(raw string) string {
	groups := make([]string, 0, len(raw)/groupSize)
	for i := 0; i < len(raw); i += groupSize {
		groups = append(groups, raw[i:i+groupSize])
	}
	return strings.Join(groups, "-")
}
