// Package testutil builds throwaway SQLite and Redis backends for package tests.
package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"bell24h/internal/db"
	"bell24h/internal/domain"
)

// NewDB opens a private in-memory SQLite database with every model migrated
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

// NewRedis starts a miniredis server and returns a client connected to it
func NewRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

// CreateUser inserts a user with the given role
func CreateUser(t *testing.T, gdb *gorm.DB, name, role string) *domain.User {
	t.Helper()
	email := name + "@example.com"
	user := &domain.User{Name: name, Email: &email, Role: role, KYCStatus: domain.KYCNone}
	if err := gdb.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// CreateWallet inserts a wallet for userID holding balance
func CreateWallet(t *testing.T, gdb *gorm.DB, userID uint, balance string) *domain.Wallet {
	t.Helper()
	wallet := &domain.Wallet{UserID: userID, Balance: decimal.RequireFromString(balance), Currency: "INR"}
	if err := gdb.Create(wallet).Error; err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	return wallet
}

// ReloadWallet reads a wallet back from the database
func ReloadWallet(t *testing.T, gdb *gorm.DB, id uint) domain.Wallet {
	t.Helper()
	var wallet domain.Wallet
	if err := gdb.First(&wallet, id).Error; err != nil {
		t.Fatalf("reload wallet: %v", err)
	}
	return wallet
}
