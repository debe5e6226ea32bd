package helpers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"authd/internal/configuration"
	"authd/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// tokenConfig holds configuration for creating a specific token type.
type tokenConfig struct {
	audience      string
	mfaVerified   bool
	expiryMinutes int
}

// createToken consolidates the common token creation logic used by the public
// token creation functions.
func createToken(jwtSecret string, user *models.User, config tokenConfig) (string, error) {
	claims := models.UserClaims{
		Username: user.Username,
		UserID:   user.ID,
		Role:     user.Role,
		Aud:      config.audience,
		Issuer:   configuration.AppName,
		MFA:      config.mfaVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  &jwt.NumericDate{Time: time.Now()},
			ExpiresAt: &jwt.NumericDate{Time: time.Now().Add(time.Minute * time.Duration(config.expiryMinutes))},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtSecret))
}

// NewAccessToken issues a full access token. mfaVerified must be true only
// when the current flow passed a TOTP or recovery-code check.
func NewAccessToken(jwtSecret string, user *models.User, mfaVerified bool) (string, error) {
	return createToken(jwtSecret, user, tokenConfig{
		audience:      configuration.AudienceAccessToken,
		mfaVerified:   mfaVerified,
		expiryMinutes: configuration.AccessTokenExpiry,
	})
}

func NewRefreshToken(jwtSecret string, user *models.User, mfaVerified bool) (string, error) {
	return createToken(jwtSecret, user, tokenConfig{
		audience:      configuration.AudienceRefreshToken,
		mfaVerified:   mfaVerified,
		expiryMinutes: configuration.RefreshTokenExpiry,
	})
}

// ParseToken parses and validates a JWT token. It validates signature, expiry
// and issuer; audience checks belong to the caller since they are
// route-specific. The requireBearer parameter controls whether the
// "Bearer " prefix is required.
func ParseToken(jwtSecret string, tokenString string, requireBearer bool) (models.UserClaims, error) {
	if requireBearer {
		if !strings.HasPrefix(tokenString, "Bearer ") {
			return models.UserClaims{}, errors.New("invalid token")
		}
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	}

	claims := &models.UserClaims{}

	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(jwtSecret), nil
		},
	)
	if err != nil {
		return models.UserClaims{}, errors.New("invalid token")
	}

	return *claims, nil
}

// ParseAccessToken validates a full access token from an Authorization header.
func ParseAccessToken(jwtSecret string, header string) (models.UserClaims, error) {
	claims, err := ParseToken(jwtSecret, header, true)
	if err != nil {
		return models.UserClaims{}, err
	}

	if claims.Aud != configuration.AudienceAccessToken {
		return models.UserClaims{}, errors.New("invalid access token audience")
	}

	return claims, nil
}

// ParseRefreshToken validates and parses a refresh token.
func ParseRefreshToken(jwtSecret string, refreshToken string) (models.UserClaims, error) {
	claims, err := ParseToken(jwtSecret, refreshToken, false)
	if err != nil {
		return models.UserClaims{}, errors.New("invalid refresh token")
	}

	if claims.Aud != configuration.AudienceRefreshToken {
		return models.UserClaims{}, errors.New("invalid refresh token audience")
	}

	return claims, nil
}

func GetUserClaims(c context.Context) (models.UserClaims, error) {
	value, ok := c.Value(models.UserClaimKey{}).(models.UserClaims)
	if !ok {
		return models.UserClaims{}, errors.New("invalid user claims")
	}
	return value, nil
}

// NewSessionToken generates an opaque random token for server-side sessions.
func NewSessionToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
