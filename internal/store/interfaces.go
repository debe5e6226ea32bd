// Package store owns durable state: credentials, MFA secrets, recovery code
// hashes and auth sessions. All mutating multi-record operations are atomic;
// racing writers on the same principal are serialized by uniqueness
// constraints and conditional updates so that at most one succeeds.
package store

import (
	"context"

	"authd/internal/models"

	"github.com/google/uuid"
)

type Store interface {
	// GetCredential looks a principal up by username. Misses return
	// apierrors.ErrNotFound; callers collapse that into an opaque failure.
	GetCredential(ctx context.Context, username string) (models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	CountUsers(ctx context.Context) (int64, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, hashedPassword string) error

	// GetMfaState derives the principal's MFA lifecycle state. A missing
	// secret row is MfaStateNone, not an error.
	GetMfaState(ctx context.Context, principalID uuid.UUID) (models.MfaState, error)
	GetMfaSecret(ctx context.Context, principalID uuid.UUID) (models.MfaSecret, error)
	// PutMfaSecret creates the secret row in the given state. A secret already
	// existing for the principal surfaces as apierrors.ErrAlreadyEnrolled.
	PutMfaSecret(ctx context.Context, principalID uuid.UUID, encryptedSecret string, state models.MfaState) error
	// ActivateMfa flips the secret from pending to active and replaces the
	// recovery code batch in one transaction. A lost activation race surfaces
	// as apierrors.ErrStoreConflict.
	ActivateMfa(ctx context.Context, principalID uuid.UUID, codeHashes []string) error
	// DeleteMfa hard-deletes the secret and every recovery code. Deleting when
	// no secret exists returns apierrors.ErrMfaNotEnrolled.
	DeleteMfa(ctx context.Context, principalID uuid.UUID) error

	// PutRecoveryCodeBatch atomically replaces the principal's codes.
	PutRecoveryCodeBatch(ctx context.Context, principalID uuid.UUID, codeHashes []string) error
	// MarkRecoveryCodeConsumed flips a single unconsumed matching code to
	// consumed. No unconsumed match returns apierrors.ErrNotFound.
	MarkRecoveryCodeConsumed(ctx context.Context, principalID uuid.UUID, codeHash string) error
	CountUnconsumedRecoveryCodes(ctx context.Context, principalID uuid.UUID) (int64, error)

	CreateSession(ctx context.Context, session *models.AuthSession) error
	GetSessionByToken(ctx context.Context, token string) (models.AuthSession, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteSessionsForPrincipal(ctx context.Context, principalID uuid.UUID) error
}
