package services

import (
	"context"
	"errors"
	"time"

	"authd/internal/configuration"
	apierrors "authd/internal/errors"
	"authd/internal/events"
	h "authd/internal/helpers"
	"authd/internal/messaging"
	"authd/internal/models"
	"authd/internal/store"

	"github.com/alexedwards/argon2id"
	"go.uber.org/zap"
)

// verifyCredential collapses unknown-username, wrong-password and disabled
// accounts into one opaque failure so callers cannot enumerate users.
func verifyCredential(
	ctx context.Context, st store.Store, username string, password string,
) (models.User, error) {
	user, err := st.GetCredential(ctx, username)
	if err != nil {
		if errors.Is(err, apierrors.ErrNotFound) {
			return models.User{}, apierrors.ErrAuthenticationFailed
		}
		return models.User{}, err
	}

	match, err := argon2id.ComparePasswordAndHash(password, user.HashedPassword)
	if err != nil || !match {
		return models.User{}, apierrors.ErrAuthenticationFailed
	}

	if !user.Active {
		return models.User{}, apierrors.ErrAuthenticationFailed
	}

	return user, nil
}

// issueAuthenticated creates the fully-authenticated server-side session and
// the JWT pair, and publishes the sign-in event. Shared by the login flow and
// by enrollment confirmation, which completes an in-flight login.
func issueAuthenticated(
	ctx context.Context,
	logger *zap.Logger,
	st store.Store,
	appConfig models.AppConfiguration,
	publisher messaging.IPublisher,
	now time.Time,
	user *models.User,
	mfaVerified bool,
) (models.AuthLoginResponse, error) {
	token, err := h.NewSessionToken()
	if err != nil {
		return models.AuthLoginResponse{}, err
	}

	session := models.AuthSession{
		PrincipalID: user.ID,
		Token:       token,
		Stage:       models.StageFullyAuthenticated,
		ExpiresAt:   now.Add(configuration.SessionExpiryHours * time.Hour),
	}
	if err = st.CreateSession(ctx, &session); err != nil {
		return models.AuthLoginResponse{}, err
	}

	accessToken, err := h.NewAccessToken(appConfig.JWTSecret, user, mfaVerified)
	if err != nil {
		logger.Error("Failed to generate access token", zap.Error(err))
		return models.AuthLoginResponse{}, apierrors.NewAPIError(500, "GENERATE_ACCESS_TOKEN_FAILED")
	}

	refreshToken, err := h.NewRefreshToken(appConfig.JWTSecret, user, mfaVerified)
	if err != nil {
		logger.Error("Failed to generate refresh token", zap.Error(err))
		return models.AuthLoginResponse{}, apierrors.NewAPIError(500, "GENERATE_REFRESH_TOKEN_FAILED")
	}

	events.NewUserSignedIn(publisher, user.Email, user.Username).Trigger()

	logger.Info("Login successful",
		zap.String("user_id", user.ID.String()),
		zap.Bool("mfa_verified", mfaVerified))

	return models.AuthLoginResponse{
		Stage:        models.AuthStageAuthenticated,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		SessionToken: token,
	}, nil
}
