// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"loan-funnel-workers/internal/common/config"

	_ "github.com/lib/pq"
)

// schema holds the audit tables written by the sanction and disbursal
// workers. Statements are idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS loan_applications (
		id UUID PRIMARY KEY,
		application_id TEXT NOT NULL UNIQUE,
		loan_id TEXT NOT NULL UNIQUE,
		mobile TEXT NOT NULL,
		full_name TEXT NOT NULL,
		email TEXT,
		principal NUMERIC(12,2) NOT NULL,
		annual_rate NUMERIC(5,2) NOT NULL,
		tenure_months INTEGER NOT NULL,
		emi NUMERIC(12,2) NOT NULL,
		processing_fee NUMERIC(12,2) NOT NULL,
		net_disbursal NUMERIC(12,2) NOT NULL,
		bank_ifsc TEXT NOT NULL,
		bank_account_last4 TEXT NOT NULL,
		status TEXT NOT NULL,
		sanctioned_at TIMESTAMPTZ NOT NULL,
		disbursed_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id UUID PRIMARY KEY,
		application_id TEXT NOT NULL,
		event TEXT NOT NULL,
		payload JSONB,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS audit_log_application_idx ON audit_log (application_id)`,
}

// PostgresClient wraps the SQL database connection
type PostgresClient struct {
	DB *sql.DB
}

// NewPostgres creates a new PostgreSQL client
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

// NewPostgresFromDB wraps an existing handle, e.g. one opened by sqlmock.
func NewPostgresFromDB(db *sql.DB) *PostgresClient {
	return &PostgresClient{DB: db}
}

// Ping tests the database connection
func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Migrate creates the audit tables when they are missing.
func (c *PostgresClient) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the database connection
func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// QueryRow executes a query that returns at most one row
func (c *PostgresClient) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return c.DB.QueryRowContext(ctx, query, args...)
}

// Exec executes a query that doesn't return rows
func (c *PostgresClient) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return c.DB.ExecContext(ctx, query, args...)
}

// BeginTx starts a transaction.
func (c *PostgresClient) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return c.DB.BeginTx(ctx, nil)
}
