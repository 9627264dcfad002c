// Package testutil backs the repo integration tests. Tests are skipped
// unless TEST_POSTGRES_DSN points at a disposable database; each test runs
// inside a transaction that is rolled back on cleanup.
package testutil

import (
	"os"
	"sync"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mnemos-app/mnemos-backend/internal/domain"
	"github.com/mnemos-app/mnemos-backend/internal/platform/logger"
)

var (
	openOnce sync.Once
	shared   *gorm.DB
	openErr  error
)

func DB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping repo integration test")
	}

	openOnce.Do(func() {
		gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			openErr = err
			return
		}
		if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
			openErr = err
			return
		}
		if err := gdb.AutoMigrate(&domain.User{}, &domain.Entry{}); err != nil {
			openErr = err
			return
		}
		shared = gdb
	})
	if openErr != nil {
		t.Fatalf("open test database: %v", openErr)
	}
	return shared
}

// Tx begins a transaction that rolls back when the test finishes.
func Tx(t *testing.T) *gorm.DB {
	t.Helper()
	tx := DB(t).Begin()
	if tx.Error != nil {
		t.Fatalf("begin tx: %v", tx.Error)
	}
	t.Cleanup(func() { tx.Rollback() })
	return tx
}

func Logger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}
