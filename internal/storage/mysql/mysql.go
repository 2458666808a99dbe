// Package mysql stores the trade ledger in MySQL through gorm.
package mysql

import (
	"fmt"

	mysqldriver "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB wraps gorm.DB for dependency injection.
type DB struct {
	*gorm.DB
}

// Open connects to MySQL and migrates the trades table.
// The DSN must set parseTime=true.
func Open(dsn string, debug bool) (*DB, error) {
	level := logger.Silent
	if debug {
		level = logger.Info
	}

	db, err := gorm.Open(mysqldriver.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	if err := db.AutoMigrate(&tradeRow{}); err != nil {
		return nil, fmt.Errorf("migrate mysql: %w", err)
	}

	return &DB{DB: db}, nil
}

// Close closes the underlying connection pool.
func (d *DB) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
