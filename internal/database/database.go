// Package database is the trade ledger. It is the single writer for window,
// signal, trade, cap-check and stats rows; every status change goes through
// the Transition transaction which enforces lifecycle legality.
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/web3guy0/martin/internal/domain"
)

type Database struct {
	db *gorm.DB
}

// Open connects to the ledger. A postgres:// DSN selects PostgreSQL,
// anything else is treated as a SQLite file path.
func Open(dsn string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Ledger connected (PostgreSQL)")
	} else {
		if dir := filepath.Dir(dsn); dir != "." && dir != "" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dsn).Msg("Ledger initialized (SQLite)")
	}

	d := &Database{db: db}
	if err := d.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// migrate applies the schema and records the migration id idempotently.
func (d *Database) migrate() error {
	if err := d.db.AutoMigrate(
		&domain.MarketWindow{},
		&domain.Signal{},
		&domain.Trade{},
		&domain.CapCheck{},
		&domain.Stats{},
		&domain.Setting{},
		&domain.Migration{},
	); err != nil {
		return err
	}

	m := domain.Migration{ID: "0001_initial", AppliedAt: time.Now()}
	if err := d.db.Where(domain.Migration{ID: m.ID}).FirstOrCreate(&m).Error; err != nil {
		return err
	}

	// Seed the singleton stats row.
	stats := domain.Stats{ID: 1, PolicyMode: domain.PolicyBase}
	return d.db.Where(domain.Stats{ID: 1}).FirstOrCreate(&stats).Error
}

// Close releases the underlying connection pool.
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
