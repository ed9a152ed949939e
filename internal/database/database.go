// Package database runs SQL hooks against the nursery application's
// backing store.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// DB executes SQL hooks.
type DB struct {
	db *sql.DB
}

// Open connects with the named database/sql driver. The postgres driver is
// always registered.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s database: %w", driver, err)
	}
	log.Debug().Str("driver", driver).Msg("database connected")
	return &DB{db: db}, nil
}

// ExecSQL runs query and returns the number of affected rows.
func (d *DB) ExecSQL(ctx context.Context, query string) (int64, error) {
	result, err := d.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("executing SQL: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	log.Debug().Int64("rows", n).Str("query", abbreviate(query)).Msg("sql hook executed")
	return n, nil
}

// ExecSQLFile runs the statements in the file at path as one batch.
func (d *DB) ExecSQLFile(ctx context.Context, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading SQL file: %w", err)
	}
	if _, err := d.db.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("executing %s: %w", path, err)
	}
	log.Debug().Str("file", path).Msg("sql file executed")
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func abbreviate(query string) string {
	query = strings.Join(strings.Fields(query), " ")
	if len(query) > 80 {
		return query[:77] + "..."
	}
	return query
}
