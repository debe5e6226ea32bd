package models

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// UserClaimKey is the context key under which authenticated claims are stored.
type UserClaimKey struct{}

// BodyKey is the context key under which the validated request body is stored.
type BodyKey struct{}

type UserClaims struct {
	Username string    `json:"username"`
	UserID   uuid.UUID `json:"user_id"`
	Role     Role      `json:"role"`
	Aud      string    `json:"aud"`
	Issuer   string    `json:"iss"`
	// MFA is true only when the token was issued after a successful TOTP or
	// recovery-code verification in the current authentication flow.
	MFA bool `json:"mfa"`
	jwt.RegisteredClaims
}

func (c UserClaims) GetAudience() (jwt.ClaimStrings, error) {
	return jwt.ClaimStrings{c.Aud}, nil
}

// AuthStage is the caller-facing outcome of a successful authentication
// attempt. Missing-code and enrollment-required outcomes are part of the
// error taxonomy instead, so no partial capability ever rides on them.
type AuthStage string

const (
	AuthStageAuthenticated          AuthStage = "authenticated"
	AuthStageMfaPendingConfirmation AuthStage = "mfa_pending_confirmation"
)

type AuthLoginBody struct {
	Username string `json:"username" validate:"required,max=150"`
	Password string `json:"password" validate:"required,max=72"`
	// MfaCode is a 6-digit TOTP code or a recovery code. Required once the
	// principal has active MFA.
	MfaCode string `json:"mfa_code" validate:"omitempty,max=32"`
}

type AuthLoginResponse struct {
	Stage        AuthStage `json:"stage"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	// SessionToken identifies the server-side session. For the
	// mfa_pending_confirmation stage it is the only capability returned.
	SessionToken string `json:"session_token,omitempty"`
}

type AuthRefreshBody struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type AuthRefreshResponse struct {
	AccessToken string `json:"access_token"`
}

type SignUpBody struct {
	Username string `json:"username" validate:"required,min=3,max=150"`
	Email    string `json:"email"    validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=10,max=72"`
}

type SignUpResponse struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Role     Role      `json:"role"`
}

type SignOutBody struct {
	SessionToken string `json:"session_token" validate:"required,max=128"`
}

type PasswordChangeBody struct {
	CurrentPassword string `json:"current_password" validate:"required,max=72"`
	NewPassword     string `json:"new_password"     validate:"required,min=10,max=72"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}
