package store

import (
	"context"
	"errors"

	apierrors "authd/internal/errors"
	"authd/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormStore implements Store on a relational database. It relies on the
// unique index on mfa_secrets.principal_id and on conditional updates for the
// serialization guarantees the interface promises.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

// translate maps driver errors onto the service error taxonomy. Context
// expiry surfaces as a distinct transient failure so callers can retry.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apierrors.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apierrors.ErrStoreConflict
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apierrors.ErrTransientStorage
	default:
		return err
	}
}

func (s *GormStore) GetCredential(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("username = ?", username).First(&user).Error
	return user, translate(err)
}

func (s *GormStore) GetUser(ctx context.Context, id uuid.UUID) (models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error
	return user, translate(err)
}

func (s *GormStore) CreateUser(ctx context.Context, user *models.User) error {
	return translate(s.DB.WithContext(ctx).Create(user).Error)
}

func (s *GormStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.User{}).Count(&count).Error
	return count, translate(err)
}

func (s *GormStore) UpdatePassword(ctx context.Context, id uuid.UUID, hashedPassword string) error {
	result := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("hashed_password", hashedPassword)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return apierrors.ErrNotFound
	}
	return nil
}

func (s *GormStore) GetMfaState(ctx context.Context, principalID uuid.UUID) (models.MfaState, error) {
	secret, err := s.GetMfaSecret(ctx, principalID)
	if errors.Is(err, apierrors.ErrNotFound) {
		return models.MfaStateNone, nil
	}
	if err != nil {
		return models.MfaStateNone, err
	}
	return secret.State, nil
}

func (s *GormStore) GetMfaSecret(ctx context.Context, principalID uuid.UUID) (models.MfaSecret, error) {
	var secret models.MfaSecret
	err := s.DB.WithContext(ctx).Where("principal_id = ?", principalID).First(&secret).Error
	return secret, translate(err)
}

func (s *GormStore) PutMfaSecret(
	ctx context.Context,
	principalID uuid.UUID,
	encryptedSecret string,
	state models.MfaState,
) error {
	secret := models.MfaSecret{
		PrincipalID:     principalID,
		EncryptedSecret: encryptedSecret,
		State:           state,
	}
	err := translate(s.DB.WithContext(ctx).Create(&secret).Error)
	if errors.Is(err, apierrors.ErrStoreConflict) {
		// The unique index on principal_id holds the single-secret invariant,
		// also when two enrollments race.
		return apierrors.ErrAlreadyEnrolled
	}
	return err
}

func (s *GormStore) ActivateMfa(ctx context.Context, principalID uuid.UUID, codeHashes []string) error {
	return translate(s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.MfaSecret{}).
			Where("principal_id = ? AND state = ?", principalID, models.MfaStatePending).
			Update("state", models.MfaStateActive)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Either no pending secret exists or a concurrent confirmation
			// already won. One winner at most; the loser fails cleanly.
			return apierrors.ErrStoreConflict
		}

		return replaceRecoveryCodes(tx, principalID, codeHashes)
	}))
}

func (s *GormStore) DeleteMfa(ctx context.Context, principalID uuid.UUID) error {
	return translate(s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("principal_id = ?", principalID).Delete(&models.MfaSecret{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apierrors.ErrMfaNotEnrolled
		}

		return tx.Where("principal_id = ?", principalID).Delete(&models.RecoveryCode{}).Error
	}))
}

func (s *GormStore) PutRecoveryCodeBatch(ctx context.Context, principalID uuid.UUID, codeHashes []string) error {
	return translate(s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return replaceRecoveryCodes(tx, principalID, codeHashes)
	}))
}

// replaceRecoveryCodes swaps the full batch inside the caller's transaction so
// a mix of old and new codes is never observable.
func replaceRecoveryCodes(tx *gorm.DB, principalID uuid.UUID, codeHashes []string) error {
	if err := tx.Where("principal_id = ?", principalID).Delete(&models.RecoveryCode{}).Error; err != nil {
		return err
	}

	codes := make([]models.RecoveryCode, len(codeHashes))
	for i, hash := range codeHashes {
		codes[i] = models.RecoveryCode{
			PrincipalID: principalID,
			CodeHash:    hash,
		}
	}
	return tx.Create(&codes).Error
}

func (s *GormStore) MarkRecoveryCodeConsumed(ctx context.Context, principalID uuid.UUID, codeHash string) error {
	result := s.DB.WithContext(ctx).Model(&models.RecoveryCode{}).
		Where("principal_id = ? AND code_hash = ? AND consumed = ?", principalID, codeHash, false).
		Update("consumed", true)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		// Unknown code, or a racing attempt consumed it first. The conditional
		// update guarantees at-most-once use.
		return apierrors.ErrNotFound
	}
	return nil
}

func (s *GormStore) CountUnconsumedRecoveryCodes(ctx context.Context, principalID uuid.UUID) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.RecoveryCode{}).
		Where("principal_id = ? AND consumed = ?", principalID, false).
		Count(&count).Error
	return count, translate(err)
}

func (s *GormStore) CreateSession(ctx context.Context, session *models.AuthSession) error {
	return translate(s.DB.WithContext(ctx).Create(session).Error)
}

func (s *GormStore) GetSessionByToken(ctx context.Context, token string) (models.AuthSession, error) {
	var session models.AuthSession
	err := s.DB.WithContext(ctx).Where("token = ?", token).First(&session).Error
	return session, translate(err)
}

func (s *GormStore) DeleteSession(ctx context.Context, token string) error {
	return translate(s.DB.WithContext(ctx).Where("token = ?", token).Delete(&models.AuthSession{}).Error)
}

func (s *GormStore) DeleteSessionsForPrincipal(ctx context.Context, principalID uuid.UUID) error {
	return translate(
		s.DB.WithContext(ctx).Where("principal_id = ?", principalID).Delete(&models.AuthSession{}).Error,
	)
}
