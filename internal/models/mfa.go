package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MfaState is the lifecycle state of a principal's MFA secret.
type MfaState string

const (
	// MfaStateNone is not stored; it is the derived state when no MfaSecret
	// row exists for the principal.
	MfaStateNone    MfaState = "none"
	MfaStatePending MfaState = "pending"
	MfaStateActive  MfaState = "active"
)

// MfaSecret holds the shared TOTP secret for a principal. The unique index on
// PrincipalID enforces at most one secret (pending or active) per principal,
// even under concurrent enrollment attempts.
type MfaSecret struct {
	ID              uuid.UUID `gorm:"type:uuid;primarykey"             json:"id"`
	PrincipalID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"   json:"principal_id"`
	EncryptedSecret string    `gorm:"not null"                         json:"-"`
	State           MfaState  `gorm:"type:varchar(16);not null"        json:"state"`
	CreatedAt       time.Time `json:"created_at"`
}

func (s *MfaSecret) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// EnrollBeginBody re-authenticates the principal before a secret is generated.
type EnrollBeginBody struct {
	Username string `json:"username" validate:"required,max=150"`
	Password string `json:"password" validate:"required,max=72"`
}

// EnrollBeginResponse carries the provisioning material. Recovery codes are
// NOT part of this response; they are issued on confirmation only.
type EnrollBeginResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
	QRCodePNG       []byte `json:"qr_code_png"`
	SessionToken    string `json:"session_token"`
}

type EnrollConfirmBody struct {
	SessionToken string `json:"session_token" validate:"required,max=128"`
	Code         string `json:"code"          validate:"required,len=6,numeric"`
}

// EnrollConfirmResponse returns the recovery code plaintexts exactly once.
type EnrollConfirmResponse struct {
	RecoveryCodes []string `json:"recovery_codes"`
	AccessToken   string   `json:"access_token"`
	RefreshToken  string   `json:"refresh_token"`
	SessionToken  string   `json:"session_token"`
}

// MfaStatusResponse reports the lifecycle state and how many recovery codes
// remain unconsumed.
type MfaStatusResponse struct {
	State                  MfaState `json:"state"`
	RecoveryCodesRemaining int64    `json:"recovery_codes_remaining"`
}

// MfaDeleteBody removes MFA. SessionToken is the pending-confirmation escape
// hatch; when absent the caller must present an MFA-verified access token.
type MfaDeleteBody struct {
	SessionToken string `json:"session_token" validate:"omitempty,max=128"`
}
