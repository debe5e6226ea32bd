package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User is the principal that credentials and MFA state belong to.
type User struct {
	ID             uuid.UUID `gorm:"type:uuid;primarykey"            json:"id"`
	Username       string    `gorm:"type:varchar(150);not null;uniqueIndex" json:"username"`
	Email          string    `gorm:"type:varchar(254);not null"      json:"email"`
	HashedPassword string    `gorm:"not null"                        json:"-"`
	Role           Role      `gorm:"type:varchar(16);not null;default:'user'" json:"role"`
	Active         bool      `gorm:"not null;default:true"           json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
