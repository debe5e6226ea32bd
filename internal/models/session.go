package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionStage tags what a session is allowed to do. The tag is an explicit
// enum so the surrounding application can never treat a pending-confirmation
// session as fully authenticated.
type SessionStage string

const (
	StagePasswordVerified       SessionStage = "password_verified"
	StageMfaPendingConfirmation SessionStage = "mfa_pending_confirmation"
	StageFullyAuthenticated     SessionStage = "fully_authenticated"
)

// AuthSession is the server-side session record. A session in
// StageMfaPendingConfirmation grants exactly two capabilities: confirming the
// pending MFA secret, or deleting it.
type AuthSession struct {
	ID          uuid.UUID    `gorm:"type:uuid;primarykey"           json:"id"`
	PrincipalID uuid.UUID    `gorm:"type:uuid;not null;index"       json:"principal_id"`
	Token       string       `gorm:"type:varchar(128);not null;uniqueIndex" json:"-"`
	Stage       SessionStage `gorm:"type:varchar(32);not null"      json:"stage"`
	CreatedAt   time.Time    `json:"created_at"`
	ExpiresAt   time.Time    `gorm:"not null"                       json:"expires_at"`
}

func (s *AuthSession) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (s *AuthSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
