package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RecoveryCode stores the one-way hash of a single-use backup code. The
// composite unique index makes duplicate hashes per principal impossible, and
// consumption flips Consumed exactly once via a conditional update.
type RecoveryCode struct {
	ID          uuid.UUID `gorm:"type:uuid;primarykey"                                  json:"id"`
	PrincipalID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_recovery_principal_hash" json:"principal_id"`
	CodeHash    string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_recovery_principal_hash" json:"-"`
	Consumed    bool      `gorm:"not null;default:false"                                json:"consumed"`
	CreatedAt   time.Time `json:"created_at"`
}

func (c *RecoveryCode) BeforeCreate(_ *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
