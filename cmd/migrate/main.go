package main

import (
	"bell24h/internal/config" // Configuration
	"bell24h/internal/db"     // Database connection and migration

	"github.com/sirupsen/logrus" // Logging
)

// Main entry point for migration
func main() {
	cfg, err := config.LoadConfig() // Load configuration
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	config.SetupLogger(cfg)

	gdb, err := db.Open(cfg.MySQLDSN(), false)
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		logrus.Fatalf("migration failed: %v", err)
	}
}
