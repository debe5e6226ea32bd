package database

import (
	"fmt"

	"authd/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func InitDB(config models.DatabaseConfiguration) *gorm.DB {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		config.Host, config.User, config.Password, config.Name, config.Port, config.SSLMode,
	)

	// TranslateError lets the store layer match gorm.ErrDuplicatedKey instead
	// of driver-specific error codes.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		zap.L().Fatal("Failed to connect to database", zap.Error(err))
	}

	if err = db.AutoMigrate(
		&models.User{},
		&models.MfaSecret{},
		&models.RecoveryCode{},
		&models.AuthSession{},
	); err != nil {
		zap.L().Fatal("Failed to run database migrations", zap.Error(err))
	}

	return db
}
