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
	"authd/internal/hibp"
	"authd/internal/messaging"
	m "authd/internal/middlewares"
	"authd/internal/models"
	"authd/internal/recovery"
	"authd/internal/store"
	"authd/internal/totp"

	"github.com/alexedwards/argon2id"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuthService owns the state machine a credential walks through:
// unauthenticated, password-verified, MFA-required or pending, authenticated.
// Failures never leave a partial session behind.
type AuthService struct {
	Store     store.Store
	Cache     cache.ICache
	AppConfig models.AppConfiguration
	Publisher messaging.IPublisher
	Engine    totp.Engine
	Vault     recovery.Vault
	// Pwned screens passwords against breach corpora; nil disables the check.
	Pwned hibp.IPasswordChecker
	// Now is injectable for TOTP step tests; nil means time.Now.
	Now func() time.Time
}

func (s AuthService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s AuthService) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(m.Validate[models.AuthLoginBody]).Post("/login", handlers.CreateHandler(s.Login))
	r.With(m.Validate[models.AuthRefreshBody]).Post("/refresh", handlers.CreateHandler(s.Refresh))
	r.With(m.Validate[models.SignUpBody]).Post("/signup", handlers.CreateHandler(s.SignUp))

	r.Group(func(r chi.Router) {
		r.Use(m.Authenticate(s.AppConfig.JWTSecret))
		r.With(m.Validate[models.SignOutBody]).Post("/signout", handlers.BodyHandler(s.SignOut))
		r.With(m.Validate[models.PasswordChangeBody]).Post("/password", handlers.BodyHandler(s.ChangePassword))
	})
	return r
}

func (s AuthService) Login(
	ctx context.Context,
	logger *zap.Logger,
	_ models.UserClaims,
	_ uuid.UUIDs,
	body models.AuthLoginBody,
) (models.AuthLoginResponse, error) {
	user, err := verifyCredential(ctx, s.Store, body.Username, body.Password)
	if err != nil {
		return models.AuthLoginResponse{}, err
	}

	// Sign-in only warns about breached passwords; registration and password
	// change reject them outright.
	if pwned, pwnedErr := s.passwordPwned(ctx, logger, body.Password); pwnedErr == nil && pwned {
		logger.Warn("Password appears in breach databases",
			zap.String("user_id", user.ID.String()))
	}

	state, err := s.Store.GetMfaState(ctx, user.ID)
	if err != nil {
		return models.AuthLoginResponse{}, err
	}

	switch state {
	case models.MfaStateNone:
		if s.AppConfig.MFARequired {
			logger.Info("Login requires MFA enrollment", zap.String("user_id", user.ID.String()))
			return models.AuthLoginResponse{}, apierrors.ErrMfaEnrollmentRequired
		}
		return s.issueAuthenticated(ctx, logger, &user, false)

	case models.MfaStatePending:
		// Soft-lock branch: the only permitted next actions are confirming or
		// deleting the pending secret, both keyed by this session token.
		return s.issuePendingSession(ctx, logger, user.ID)

	case models.MfaStateActive:
		if body.MfaCode == "" {
			return models.AuthLoginResponse{}, apierrors.ErrMfaCodeRequired
		}
		if err = s.verifySecondFactor(ctx, logger, &user, body.MfaCode); err != nil {
			return models.AuthLoginResponse{}, err
		}
		return s.issueAuthenticated(ctx, logger, &user, true)

	default:
		return models.AuthLoginResponse{}, apierrors.NewAPIError(500, "INTERNAL_SERVER_ERROR")
	}
}

// passwordPwned consults the breach checker when the toggle and a client are
// both present. Lookup failures are logged and never block the caller; breach
// screening must not depend on a third-party API being reachable.
func (s AuthService) passwordPwned(
	ctx context.Context, logger *zap.Logger, password string,
) (bool, error) {
	if !s.AppConfig.HIBPCheckEnabled || s.Pwned == nil {
		return false, nil
	}
	pwned, err := s.Pwned.PasswordPwned(ctx, password)
	if err != nil {
		logger.Warn("Breached-password lookup failed", zap.Error(err))
		return false, err
	}
	return pwned, nil
}

// verifySecondFactor checks the submitted code, TOTP first, then a single
// recovery-code consumption. Only one recovery code can be consumed per
// authentication attempt.
func (s AuthService) verifySecondFactor(
	ctx context.Context, logger *zap.Logger, user *models.User, code string,
) error {
	attempts, err := s.Cache.GetMFAAttempts(user.ID.String())
	if err != nil {
		logger.Error("Rate limit check failed - denying request", zap.Error(err))
		return apierrors.NewAPIError(503, "SERVICE_UNAVAILABLE")
	}
	if attempts >= configuration.MFAMaxAttempts {
		logger.Warn("MFA rate limit exceeded",
			zap.String("user_id", user.ID.String()),
			zap.Int("attempts", attempts))
		return apierrors.ErrRateLimited
	}

	verified, err := s.verifyTOTP(ctx, logger, user.ID, code)
	if err != nil {
		return err
	}

	if !verified {
		consumed, consumeErr := s.Vault.Consume(ctx, user.ID, code)
		if consumeErr != nil {
			return consumeErr
		}
		if !consumed {
			if incErr := s.Cache.IncrementMFAAttempts(user.ID.String()); incErr != nil {
				logger.Error("Failed to increment MFA attempts", zap.Error(incErr))
			}
			logger.Warn("MFA verification failed",
				zap.String("user_id", user.ID.String()),
				zap.String("username", user.Username))
			return apierrors.ErrInvalidMfaCode
		}
		logger.Info("Recovery code consumed", zap.String("user_id", user.ID.String()))
	}

	if resetErr := s.Cache.ResetMFAAttempts(user.ID.String()); resetErr != nil {
		logger.Warn("Failed to reset MFA attempts", zap.Error(resetErr))
	}
	return nil
}

// verifyTOTP returns true when the submitted code matches the active secret
// for the current or immediately preceding step and has not been used before
// inside its validity window.
func (s AuthService) verifyTOTP(
	ctx context.Context, logger *zap.Logger, principalID uuid.UUID, code string,
) (bool, error) {
	record, err := s.Store.GetMfaSecret(ctx, principalID)
	if err != nil {
		return false, err
	}

	secret, err := h.DecryptSecret(record.EncryptedSecret, []byte(s.AppConfig.MFAEncryptionKey))
	if err != nil {
		logger.Error("Failed to decrypt TOTP secret", zap.Error(err))
		return false, apierrors.NewAPIError(500, "MFA_VERIFICATION_FAILED")
	}

	ok, err := totp.Verify(secret, code, s.now())
	if err != nil {
		// Malformed submissions are verification failures, not crashes. The
		// caller falls through to recovery-code consumption.
		if errors.Is(err, totp.ErrInvalidFormat) {
			return false, nil
		}
		logger.Error("TOTP verification errored", zap.Error(err))
		return false, apierrors.NewAPIError(500, "MFA_VERIFICATION_FAILED")
	}
	if !ok {
		return false, nil
	}

	unused, err := s.Cache.MarkTOTPCodeUsed(principalID.String(), code)
	if err != nil {
		logger.Error("Failed to mark TOTP code as used", zap.Error(err))
		return false, apierrors.NewAPIError(500, "MFA_VERIFICATION_FAILED")
	}
	if !unused {
		logger.Warn("TOTP code replay attempt detected",
			zap.String("user_id", principalID.String()))
		return false, nil
	}

	return true, nil
}

func (s AuthService) issueAuthenticated(
	ctx context.Context, logger *zap.Logger, user *models.User, mfaVerified bool,
) (models.AuthLoginResponse, error) {
	return issueAuthenticated(ctx, logger, s.Store, s.AppConfig, s.Publisher, s.now(), user, mfaVerified)
}

func (s AuthService) issuePendingSession(
	ctx context.Context, logger *zap.Logger, principalID uuid.UUID,
) (models.AuthLoginResponse, error) {
	token, err := h.NewSessionToken()
	if err != nil {
		return models.AuthLoginResponse{}, err
	}

	session := models.AuthSession{
		PrincipalID: principalID,
		Token:       token,
		Stage:       models.StageMfaPendingConfirmation,
		ExpiresAt:   s.now().Add(configuration.PendingSessionExpiryMinutes * time.Minute),
	}
	if err = s.Store.CreateSession(ctx, &session); err != nil {
		return models.AuthLoginResponse{}, err
	}

	logger.Info("Login entered pending-confirmation stage",
		zap.String("user_id", principalID.String()))

	return models.AuthLoginResponse{
		Stage:        models.AuthStageMfaPendingConfirmation,
		SessionToken: token,
	}, nil
}

func (s AuthService) Refresh(
	ctx context.Context,
	logger *zap.Logger,
	_ models.UserClaims,
	_ uuid.UUIDs,
	body models.AuthRefreshBody,
) (models.AuthRefreshResponse, error) {
	refreshClaims, err := h.ParseRefreshToken(s.AppConfig.JWTSecret, body.RefreshToken)
	if err != nil {
		return models.AuthRefreshResponse{}, apierrors.NewAPIError(401, "INVALID_REFRESH_TOKEN")
	}

	user, err := s.Store.GetUser(ctx, refreshClaims.UserID)
	if err != nil {
		if errors.Is(err, apierrors.ErrNotFound) {
			logger.Warn("User not found during token refresh",
				zap.String("user_id", refreshClaims.UserID.String()))
			return models.AuthRefreshResponse{}, apierrors.NewAPIError(401, "USER_NOT_FOUND")
		}
		return models.AuthRefreshResponse{}, err
	}

	accessToken, err := h.NewAccessToken(s.AppConfig.JWTSecret, &user, refreshClaims.MFA)
	if err != nil {
		logger.Error("Failed to generate access token", zap.Error(err))
		return models.AuthRefreshResponse{}, apierrors.NewAPIError(500, "GENERATE_ACCESS_TOKEN_FAILED")
	}

	return models.AuthRefreshResponse{AccessToken: accessToken}, nil
}

func (s AuthService) SignUp(
	ctx context.Context,
	logger *zap.Logger,
	_ models.UserClaims,
	_ uuid.UUIDs,
	body models.SignUpBody,
) (models.SignUpResponse, error) {
	if !s.AppConfig.AllowRegistration {
		return models.SignUpResponse{}, apierrors.NewAPIError(403, "REGISTRATION_DISABLED")
	}

	if pwned, pwnedErr := s.passwordPwned(ctx, logger, body.Password); pwnedErr == nil && pwned {
		return models.SignUpResponse{}, apierrors.NewAPIError(400, "PASSWORD_PWNED")
	}

	hash, err := h.CreateHash(body.Password)
	if err != nil {
		logger.Error("Failed to hash password", zap.Error(err))
		return models.SignUpResponse{}, apierrors.NewAPIError(500, "INTERNAL_SERVER_ERROR")
	}

	role := models.RoleUser
	if s.AppConfig.MakeFirstUserAdmin {
		count, countErr := s.Store.CountUsers(ctx)
		if countErr != nil {
			return models.SignUpResponse{}, countErr
		}
		if count == 0 {
			role = models.RoleAdmin
		}
	}

	user := models.User{
		Username:       body.Username,
		Email:          body.Email,
		HashedPassword: hash,
		Role:           role,
		Active:         true,
	}
	if err = s.Store.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, apierrors.ErrStoreConflict) {
			return models.SignUpResponse{}, apierrors.NewAPIError(409, "USERNAME_TAKEN")
		}
		return models.SignUpResponse{}, err
	}

	logger.Info("User registered",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(user.Role)))

	return models.SignUpResponse{
		ID:       user.ID,
		Username: user.Username,
		Role:     user.Role,
	}, nil
}

func (s AuthService) SignOut(
	ctx context.Context,
	logger *zap.Logger,
	claims models.UserClaims,
	_ uuid.UUIDs,
	body models.SignOutBody,
) error {
	session, err := s.Store.GetSessionByToken(ctx, body.SessionToken)
	if err != nil {
		if errors.Is(err, apierrors.ErrNotFound) {
			return apierrors.ErrSessionInvalid
		}
		return err
	}

	if session.PrincipalID != claims.UserID {
		return apierrors.ErrSessionInvalid
	}

	if err = s.Store.DeleteSession(ctx, body.SessionToken); err != nil {
		return err
	}

	logger.Info("Session destroyed", zap.String("user_id", claims.UserID.String()))
	return nil
}

// ChangePassword requires the current password and revokes every session for
// the principal afterwards.
func (s AuthService) ChangePassword(
	ctx context.Context,
	logger *zap.Logger,
	claims models.UserClaims,
	_ uuid.UUIDs,
	body models.PasswordChangeBody,
) error {
	user, err := s.Store.GetUser(ctx, claims.UserID)
	if err != nil {
		return err
	}

	match, err := argon2id.ComparePasswordAndHash(body.CurrentPassword, user.HashedPassword)
	if err != nil || !match {
		logger.Warn("Password change rejected - wrong current password",
			zap.String("user_id", user.ID.String()))
		return apierrors.NewAPIError(401, "INVALID_PASSWORD")
	}

	if pwned, pwnedErr := s.passwordPwned(ctx, logger, body.NewPassword); pwnedErr == nil && pwned {
		return apierrors.NewAPIError(400, "PASSWORD_PWNED")
	}

	hash, err := h.CreateHash(body.NewPassword)
	if err != nil {
		logger.Error("Failed to hash new password", zap.Error(err))
		return apierrors.NewAPIError(500, "PASSWORD_UPDATE_FAILED")
	}

	if err = s.Store.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}

	if err = s.Store.DeleteSessionsForPrincipal(ctx, user.ID); err != nil {
		logger.Error("Failed to revoke sessions after password change", zap.Error(err))
		return err
	}

	events.NewPasswordChanged(s.Publisher, user.Email, user.Username, s.AppConfig.WebURL).Trigger()

	logger.Info("Password changed, all sessions revoked",
		zap.String("user_id", user.ID.String()))
	return nil
}
