package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/upb/permission-engine/config"
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return Wrap(db, logger), nil
}

// Wrap adopts an existing pool
func Wrap(db *sql.DB, logger *zap.Logger) *DB {
	return &DB{DB: db, logger: logger}
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

const profileSchema = `
	CREATE TABLE IF NOT EXISTS user_permissions (
		user_id VARCHAR(100) PRIMARY KEY,
		permission_level VARCHAR(20) NOT NULL,
		permissions TEXT[] NOT NULL DEFAULT '{}',
		display_name VARCHAR(255) NOT NULL DEFAULT '',
		department VARCHAR(255) NOT NULL DEFAULT '',
		role VARCHAR(100) NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT true,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
`

// The audit table has no foreign keys so it can live in a separate database.
// Rows past ttl_expiry are removed by PurgeExpiredAudits.
const auditSchema = `
	CREATE TABLE IF NOT EXISTS permission_audit_logs (
		id UUID NOT NULL UNIQUE,
		user_id VARCHAR(100) NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		action VARCHAR(50) NOT NULL,
		resource TEXT NOT NULL,
		result VARCHAR(10) NOT NULL,
		details JSONB NOT NULL DEFAULT '{}',
		risk_score SMALLINT NOT NULL CHECK (risk_score BETWEEN 0 AND 10),
		ttl_expiry TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, timestamp, id)
	);
	CREATE INDEX IF NOT EXISTS idx_permission_audit_logs_ttl_expiry ON permission_audit_logs(ttl_expiry);
	CREATE INDEX IF NOT EXISTS idx_permission_audit_logs_result ON permission_audit_logs(result);
`

// InitSchema initializes the profile and audit tables
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, profileSchema+auditSchema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}

// InitAuditSchema initializes the audit table only.
// Use for the separate audit database when DATABASE_URL_AUDIT is set.
func (db *DB) InitAuditSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, auditSchema); err != nil {
		return fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	db.logger.Info("audit schema initialized successfully")
	return nil
}
