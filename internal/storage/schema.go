package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Dialect selects driver-specific DDL and connection settings.
type Dialect string

const (
	DialectMySQL  Dialect = "mysql"
	DialectSQLite Dialect = "sqlite"
)

// Open connects to the database named by driver and dsn.
func Open(driver, dsn string) (*sql.DB, Dialect, error) {
	switch Dialect(driver) {
	case DialectMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		// compare-and-set updates rely on matched, not changed, row counts
		cfg.ClientFoundRows = true
		connector, err := mysql.NewConnector(cfg)
		if err != nil {
			return nil, "", fmt.Errorf("mysql connector: %w", err)
		}
		db := sql.OpenDB(connector)
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		return db, DialectMySQL, nil
	case DialectSQLite:
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, "", fmt.Errorf("open sqlite: %w", err)
		}
		// a single writer avoids SQLITE_BUSY and keeps :memory: databases shared
		db.SetMaxOpenConns(1)
		return db, DialectSQLite, nil
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

const createSchedules = `CREATE TABLE IF NOT EXISTS schedules (
	id VARCHAR(36) NOT NULL PRIMARY KEY,
	cron VARCHAR(255) NOT NULL,
	timezone VARCHAR(64) NOT NULL DEFAULT '',
	start_at BIGINT NOT NULL,
	end_at BIGINT NULL,
	duration_sec BIGINT NULL,
	user_id VARCHAR(255) NULL,
	object_id VARCHAR(255) NULL,
	meta TEXT NULL,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL%s
)`

const createEvents = `CREATE TABLE IF NOT EXISTS events (
	id VARCHAR(36) NOT NULL PRIMARY KEY,
	schedule_id VARCHAR(36) NULL,
	plan_start BIGINT NOT NULL,
	plan_end BIGINT NULL,
	actual_start BIGINT NULL,
	actual_end BIGINT NULL,
	status VARCHAR(16) NOT NULL,
	one_off_id VARCHAR(255) NULL,
	user_id VARCHAR(255) NULL,
	object_id VARCHAR(255) NULL,
	meta TEXT NULL,
	failure_reason TEXT NULL,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL%s
)`

func schemaStatements(d Dialect) []string {
	if d == DialectMySQL {
		return []string{
			fmt.Sprintf(createSchedules, ",\n\tINDEX idx_schedules_user (user_id)"),
			fmt.Sprintf(createEvents, ",\n\tINDEX idx_events_schedule (schedule_id, status, plan_start),\n\tINDEX idx_events_status (status, plan_start)"),
		}
	}
	return []string{
		fmt.Sprintf(createSchedules, ""),
		fmt.Sprintf(createEvents, ""),
		`CREATE INDEX IF NOT EXISTS idx_schedules_user ON schedules (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_schedule ON events (schedule_id, status, plan_start)`,
		`CREATE INDEX IF NOT EXISTS idx_events_status ON events (status, plan_start)`,
	}
}

// EnsureSchema creates the tables and indexes when missing.
func (c *SQLStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements(c.dialect) {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
