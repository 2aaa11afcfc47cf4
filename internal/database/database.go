// Package database opens the shared connection pool and smooths over
// placeholder and dialect differences between the supported drivers.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Options describe how to reach the database.
type Options struct {
	Driver          string // mysql, postgres, sqlite3
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects and verifies the pool. The returned handle wraps *sql.DB via
// sqlx so repositories that prefer struct scanning can share the same pool.
func Open(ctx context.Context, opts Options) (*sqlx.DB, error) {
	driver := opts.Driver
	if driver == "" {
		driver = "mysql"
	}
	setActiveDriver(driver)

	db, err := sqlx.Open(driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}
	return db, nil
}
