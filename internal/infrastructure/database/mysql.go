package database

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/wholesale-market/walletd/internal/config"
	"github.com/wholesale-market/walletd/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to MySQL with the pool settings from cfg.
func Open(cfg *config.MySQLConfig) (*gorm.DB, error) {
	return OpenDSN(cfg.DSN(), cfg.MaxOpenConns, cfg.MaxIdleConns)
}

func OpenDSN(dsn string, maxOpen, maxIdle int) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:  NewGormLogger(slog.Default().Handler()),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// NewGormLogger sends gorm's slow-query and error lines through h, so they
// share the service's log format.
func NewGormLogger(h slog.Handler) logger.Interface {
	return logger.New(slog.NewLogLogger(h, slog.LevelWarn), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// Migrate creates or updates the tables the wallet owns. profiles and
// products belong to other layers and are migrated only when withCatalog
// is set (local development and tests).
func Migrate(db *gorm.DB, withCatalog bool) error {
	tables := []interface{}{
		&model.Account{},
		&model.WalletTransaction{},
		&model.SubscriptionPlan{},
		&model.UserSubscription{},
		&model.ProductBoost{},
		&model.OutboxMessage{},
	}
	if withCatalog {
		tables = append(tables, &model.Profile{}, &model.Product{})
	}
	if err := db.AutoMigrate(tables...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
