package services

import (
	"context"
	"errors"
	"time"

	"authd/internal/cache"
	"authd/internal/configuration"
	apierrors "authd/internal/errors"
	"authd/internal/events"
	"authd/internal/handlers"
	h "authd/internal/helpers"
	"authd/internal/messaging"
	m "authd/internal/middlewares"
	"authd/internal/models"
	"authd/internal/recovery"
	"authd/internal/store"
	"authd/internal/totp"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MFAService orchestrates the enrollment state machine: no MFA, pending
// confirmation, active, and back to no MFA on deletion. A principal holds at
// most one secret at any time; the storage layer enforces that also under
// concurrent enrollment attempts.
type MFAService struct {
	Store     store.Store
	Cache     cache.ICache
	AppConfig models.AppConfiguration
	Publisher messaging.IPublisher
	Engine    totp.Engine
	Vault     recovery.Vault
	Now       func() time.Time
}

func (s MFAService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s MFAService) Routes() chi.Router {
	r := chi.NewRouter()

	// Enrollment begins with a password re-authentication carried in the
	// body, and confirmation is keyed by the pending session token, so both
	// stay reachable for principals who cannot present a full access token.
	r.With(m.Validate[models.EnrollBeginBody]).Post("/enroll", handlers.CreateHandler(s.BeginEnrollment))
	r.With(m.Validate[models.EnrollConfirmBody]).
		Post("/enroll/confirm", handlers.CreateHandler(s.ConfirmEnrollment))

	r.With(m.OptionalAuthenticate(s.AppConfig.JWTSecret), m.Validate[models.MfaDeleteBody]).
		Delete("/", handlers.BodyHandler(s.DeleteMfa))

	r.Group(func(r chi.Router) {
		r.Use(m.Authenticate(s.AppConfig.JWTSecret))
		r.Get("/", handlers.GetOneHandler(s.Status))
	})
	return r
}

// BeginEnrollment re-authenticates the principal, persists a fresh secret in
// pending state and returns provisioning material. Recovery codes are NOT
// part of this response; they are issued on confirmation only.
func (s MFAService) BeginEnrollment(
	ctx context.Context,
	logger *zap.Logger,
	_ models.UserClaims,
	_ uuid.UUIDs,
	body models.EnrollBeginBody,
) (models.EnrollBeginResponse, error) {
	user, err := verifyCredential(ctx, s.Store, body.Username, body.Password)
	if err != nil {
		return models.EnrollBeginResponse{}, err
	}

	state, err := s.Store.GetMfaState(ctx, user.ID)
	if err != nil {
		return models.EnrollBeginResponse{}, err
	}
	if state != models.MfaStateNone {
		return models.EnrollBeginResponse{}, apierrors.ErrAlreadyEnrolled
	}

	secret, err := s.Engine.GenerateSecret()
	if err != nil {
		logger.Error("Failed to generate TOTP secret", zap.Error(err))
		return models.EnrollBeginResponse{}, apierrors.NewAPIError(500, "MFA_SETUP_FAILED")
	}

	encryptedSecret, err := h.EncryptSecret(secret, []byte(s.AppConfig.MFAEncryptionKey))
	if err != nil {
		logger.Error("Failed to encrypt TOTP secret", zap.Error(err))
		return models.EnrollBeginResponse{}, apierrors.NewAPIError(500, "MFA_SETUP_FAILED")
	}

	// The unique index on principal_id turns a lost begin-enrollment race
	// into ErrAlreadyEnrolled here.
	if err = s.Store.PutMfaSecret(ctx, user.ID, encryptedSecret, models.MfaStatePending); err != nil {
		return models.EnrollBeginResponse{}, err
	}

	token, err := h.NewSessionToken()
	if err != nil {
		return models.EnrollBeginResponse{}, err
	}
	session := models.AuthSession{
		PrincipalID: user.ID,
		Token:       token,
		Stage:       models.StageMfaPendingConfirmation,
		ExpiresAt:   s.now().Add(configuration.PendingSessionExpiryMinutes * time.Minute),
	}
	if err = s.Store.CreateSession(ctx, &session); err != nil {
		return models.EnrollBeginResponse{}, err
	}

	uri := s.Engine.ProvisioningURI(secret, user.Username)
	qr, err := s.Engine.QRCodePNG(uri)
	if err != nil {
		logger.Error("Failed to render QR code", zap.Error(err))
		return models.EnrollBeginResponse{}, apierrors.NewAPIError(500, "MFA_SETUP_FAILED")
	}

	logger.Info("MFA enrollment started", zap.String("user_id", user.ID.String()))

	return models.EnrollBeginResponse{
		Secret:          secret,
		ProvisioningURI: uri,
		QRCodePNG:       qr,
		SessionToken:    token,
	}, nil
}

// loadPendingSession resolves a pending-confirmation session token. Unknown,
// expired and wrong-stage tokens are indistinguishable to the caller.
func (s MFAService) loadPendingSession(ctx context.Context, token string) (models.AuthSession, error) {
	session, err := s.Store.GetSessionByToken(ctx, token)
	if err != nil {
		if errors.Is(err, apierrors.ErrNotFound) {
			return models.AuthSession{}, apierrors.ErrSessionInvalid
		}
		return models.AuthSession{}, err
	}

	if session.Stage != models.StageMfaPendingConfirmation || session.Expired(s.now()) {
		return models.AuthSession{}, apierrors.ErrSessionInvalid
	}
	return session, nil
}

// ConfirmEnrollment verifies the submitted code against the pending secret.
// On success the secret activation and the recovery-code batch land in one
// transaction, and the plaintext codes are returned exactly once.
func (s MFAService) ConfirmEnrollment(
	ctx context.Context,
	logger *zap.Logger,
	_ models.UserClaims,
	_ uuid.UUIDs,
	body models.EnrollConfirmBody,
) (models.EnrollConfirmResponse, error) {
	session, err := s.loadPendingSession(ctx, body.SessionToken)
	if err != nil {
		return models.EnrollConfirmResponse{}, err
	}
	principalID := session.PrincipalID

	record, err := s.Store.GetMfaSecret(ctx, principalID)
	if err != nil {
		if errors.Is(err, apierrors.ErrNotFound) {
			return models.EnrollConfirmResponse{}, apierrors.ErrMfaNotEnrolled
		}
		return models.EnrollConfirmResponse{}, err
	}
	if record.State != models.MfaStatePending {
		// A concurrent confirmation already activated the secret.
		return models.EnrollConfirmResponse{}, apierrors.ErrStoreConflict
	}

	attempts, err := s.Cache.GetMFAAttempts(principalID.String())
	if err != nil {
		logger.Error("Rate limit check failed - denying request", zap.Error(err))
		return models.EnrollConfirmResponse{}, apierrors.NewAPIError(503, "SERVICE_UNAVAILABLE")
	}
	if attempts >= configuration.MFAMaxAttempts {
		logger.Warn("Enrollment confirmation rate limited",
			zap.String("user_id", principalID.String()))
		return models.EnrollConfirmResponse{}, apierrors.ErrRateLimited
	}

	secret, err := h.DecryptSecret(record.EncryptedSecret, []byte(s.AppConfig.MFAEncryptionKey))
	if err != nil {
		logger.Error("Failed to decrypt TOTP secret", zap.Error(err))
		return models.EnrollConfirmResponse{}, apierrors.NewAPIError(500, "MFA_VERIFICATION_FAILED")
	}

	ok, err := totp.Verify(secret, body.Code, s.now())
	if err != nil && !errors.Is(err, totp.ErrInvalidFormat) {
		logger.Error("TOTP verification errored", zap.Error(err))
		return models.EnrollConfirmResponse{}, apierrors.NewAPIError(500, "MFA_VERIFICATION_FAILED")
	}
	if !ok {
		if incErr := s.Cache.IncrementMFAAttempts(principalID.String()); incErr != nil {
			logger.Error("Failed to increment MFA attempts", zap.Error(incErr))
		}
		logger.Warn("Enrollment confirmation failed - invalid code",
			zap.String("user_id", principalID.String()))
		// The secret stays pending; the principal may retry.
		return models.EnrollConfirmResponse{}, apierrors.ErrInvalidCode
	}

	user, err := s.Store.GetUser(ctx, principalID)
	if err != nil {
		return models.EnrollConfirmResponse{}, err
	}

	codes, err := s.Vault.GenerateBatch(configuration.RecoveryCodeCount)
	if err != nil {
		logger.Error("Failed to generate recovery codes", zap.Error(err))
		return models.EnrollConfirmResponse{}, apierrors.NewAPIError(500, "MFA_SETUP_FAILED")
	}

	// CAS activation plus batch insert in one transaction; a racing confirm
	// observes ErrStoreConflict and fails cleanly.
	if err = s.Store.ActivateMfa(ctx, principalID, recovery.HashBatch(codes)); err != nil {
		return models.EnrollConfirmResponse{}, err
	}

	// Activation committed: from here the plaintext codes must reach the
	// caller, this is their only chance to see them. Everything below
	// degrades to a logged warning instead of an error.
	response := models.EnrollConfirmResponse{RecoveryCodes: codes}

	if resetErr := s.Cache.ResetMFAAttempts(principalID.String()); resetErr != nil {
		logger.Warn("Failed to reset MFA attempts", zap.Error(resetErr))
	}

	// The soft-lock session is destroyed on confirmation success.
	if delErr := s.Store.DeleteSession(ctx, body.SessionToken); delErr != nil {
		logger.Error("Failed to delete pending session", zap.Error(delErr))
	}

	login, err := issueAuthenticated(ctx, logger, s.Store, s.AppConfig, s.Publisher, s.now(), &user, true)
	if err != nil {
		logger.Error("Failed to issue tokens after MFA activation; returning codes only",
			zap.String("user_id", principalID.String()), zap.Error(err))
	} else {
		response.AccessToken = login.AccessToken
		response.RefreshToken = login.RefreshToken
		response.SessionToken = login.SessionToken
	}

	events.NewMfaEnrolled(s.Publisher, user.Email, user.Username, s.AppConfig.WebURL).Trigger()

	logger.Info("MFA enrollment confirmed",
		zap.String("user_id", principalID.String()),
		zap.Int("recovery_codes", len(codes)))

	return response, nil
}

// DeleteMfa removes the secret and every recovery code, returning the
// principal to the unenrolled state. Two authorization paths exist: an
// MFA-verified access token, or the pending-session escape hatch for secrets
// that were never confirmed. A confirmed secret can never be removed with a
// password alone.
func (s MFAService) DeleteMfa(
	ctx context.Context,
	logger *zap.Logger,
	claims models.UserClaims,
	_ uuid.UUIDs,
	body models.MfaDeleteBody,
) error {
	var principalID uuid.UUID

	switch {
	case body.SessionToken != "":
		session, err := s.loadPendingSession(ctx, body.SessionToken)
		if err != nil {
			return err
		}
		principalID = session.PrincipalID

		record, err := s.Store.GetMfaSecret(ctx, principalID)
		if err != nil {
			if errors.Is(err, apierrors.ErrNotFound) {
				return apierrors.ErrMfaNotEnrolled
			}
			return err
		}
		if record.State != models.MfaStatePending {
			// Confirmed MFA cannot be deleted through the escape hatch.
			return apierrors.NewAPIError(403, "MFA_VERIFICATION_REQUIRED")
		}

	case claims.UserID != uuid.Nil:
		if !claims.MFA {
			return apierrors.NewAPIError(403, "MFA_VERIFICATION_REQUIRED")
		}
		principalID = claims.UserID

	default:
		return apierrors.NewAPIError(401, "UNAUTHORIZED")
	}

	if err := s.Store.DeleteMfa(ctx, principalID); err != nil {
		return err
	}

	// Pending sessions bound to the deleted secret lose their purpose.
	if err := s.Store.DeleteSessionsForPrincipal(ctx, principalID); err != nil {
		logger.Error("Failed to delete sessions after MFA removal", zap.Error(err))
	}

	if user, err := s.Store.GetUser(ctx, principalID); err == nil {
		events.NewMfaRemoved(s.Publisher, user.Email, user.Username, s.AppConfig.WebURL).Trigger()
	}

	logger.Info("MFA removed", zap.String("user_id", principalID.String()))
	return nil
}

// Status reports the MFA lifecycle state and remaining recovery codes for the
// authenticated principal.
func (s MFAService) Status(
	ctx context.Context,
	_ *zap.Logger,
	claims models.UserClaims,
	_ uuid.UUIDs,
) (models.MfaStatusResponse, error) {
	state, err := s.Store.GetMfaState(ctx, claims.UserID)
	if err != nil {
		return models.MfaStatusResponse{}, err
	}

	var remaining int64
	if state == models.MfaStateActive {
		remaining, err = s.Store.CountUnconsumedRecoveryCodes(ctx, claims.UserID)
		if err != nil {
			return models.MfaStatusResponse{}, err
		}
	}

	return models.MfaStatusResponse{
		State:                  state,
		RecoveryCodesRemaining: remaining,
	}, nil
}
