// Package db owns the gorm connection. The handle is initialized lazily so
// handlers that never touch the database (healthcheck, SSE) can serve before
// postgres is reachable; concurrent first uses collapse into one dial.
package db

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mnemos-app/mnemos-backend/internal/domain"
	"github.com/mnemos-app/mnemos-backend/internal/platform/envutil"
	"github.com/mnemos-app/mnemos-backend/internal/platform/logger"
)

type Database struct {
	log *logger.Logger

	mu    sync.RWMutex
	gdb   *gorm.DB
	group singleflight.Group
}

func New(log *logger.Logger) *Database {
	return &Database{log: log.With("service", "Database")}
}

// Get returns the shared gorm handle, dialing and migrating on first use.
func (d *Database) Get() (*gorm.DB, error) {
	d.mu.RLock()
	if d.gdb != nil {
		defer d.mu.RUnlock()
		return d.gdb, nil
	}
	d.mu.RUnlock()

	v, err, _ := d.group.Do("open", func() (any, error) {
		d.mu.RLock()
		if d.gdb != nil {
			defer d.mu.RUnlock()
			return d.gdb, nil
		}
		d.mu.RUnlock()

		gdb, openErr := open(d.log)
		if openErr != nil {
			return nil, openErr
		}

		d.mu.Lock()
		d.gdb = gdb
		d.mu.Unlock()
		return gdb, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*gorm.DB), nil
}

// Reset closes and forgets the handle. Used by tests and shutdown.
func (d *Database) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gdb == nil {
		return nil
	}
	sqlDB, err := d.gdb.DB()
	d.gdb = nil
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func open(log *logger.Logger) (*gorm.DB, error) {
	driver := envutil.String("DB_DRIVER", "postgres")

	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	}

	var gdb *gorm.DB
	var err error
	switch driver {
	case "postgres":
		dsn := envutil.String("DATABASE_URL", "")
		if dsn == "" {
			return nil, fmt.Errorf("missing DATABASE_URL")
		}
		gdb, err = gorm.Open(postgres.Open(dsn), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if execErr := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; execErr != nil {
			log.Warn("Could not ensure uuid-ossp extension", "error", execErr.Error())
		}
	case "sqlite":
		path := envutil.String("SQLITE_PATH", "mnemos.db")
		gdb, err = gorm.Open(sqlite.Open(path), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(envutil.Int("DB_MAX_OPEN_CONNS", 20))
	sqlDB.SetMaxIdleConns(envutil.Int("DB_MAX_IDLE_CONNS", 5))
	sqlDB.SetConnMaxLifetime(time.Duration(envutil.Int("DB_CONN_MAX_LIFETIME_MINUTES", 30)) * time.Minute)

	if err := gdb.AutoMigrate(&domain.User{}, &domain.Entry{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	log.Info("Database ready", "driver", driver)
	return gdb, nil
}
