package db

import (
	"bell24h/internal/domain" // Importing domain models

	"github.com/sirupsen/logrus" // Logging

	"gorm.io/driver/mysql" // MySQL driver for GORM
	"gorm.io/gorm"         // GORM ORM library
	"gorm.io/gorm/logger"  // GORM logger levels
)

// Open connects to MySQL through GORM
func Open(dsn string, debug bool) (*gorm.DB, error) {
	level := logger.Warn // Only slow queries and errors by default
	if debug {
		level = logger.Info // Log every statement in development
	}
	return gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(level)})
}

// Migrate performs automatic migration for the database schema
func Migrate(db *gorm.DB) error {
	// AutoMigrate will create tables, missing foreign keys, constraints, columns and indexes
	if err := db.AutoMigrate(domain.Models()...); err != nil {
		return err
	}
	logrus.WithField("models", len(domain.Models())).Info("Migration completed.") // Log successful migration
	return nil
}
