package postgres

import (
	"context"

	"github.com/upb/permission-engine/config"
	"go.uber.org/zap"
)

// RepositoryFactory owns the PostgreSQL pools used by the profile and audit stores
type RepositoryFactory struct {
	db      *DB
	auditDB *DB // Optional: separate DB for audit logs
	logger  *zap.Logger
}

// NewRepositoryFactory opens the main pool and, when configured, the audit pool
func NewRepositoryFactory(cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	f := &RepositoryFactory{db: db, logger: logger}

	if cfg.AuditDatabase != nil {
		auditDB, err := NewDB(*cfg.AuditDatabase, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		f.auditDB = auditDB
	}

	return f, nil
}

// NewFactoryFromDB builds a factory over existing pools. auditDB may be nil.
func NewFactoryFromDB(db, auditDB *DB, logger *zap.Logger) *RepositoryFactory {
	return &RepositoryFactory{db: db, auditDB: auditDB, logger: logger}
}

// InitSchema creates the tables on the main database and, if separate, the audit database
func (f *RepositoryFactory) InitSchema(ctx context.Context) error {
	if err := f.db.InitSchema(ctx); err != nil {
		return err
	}
	if f.auditDB != nil {
		return f.auditDB.InitAuditSchema(ctx)
	}
	return nil
}

// Profiles returns the profile repository
func (f *RepositoryFactory) Profiles() *ProfileRepository {
	return NewProfileRepository(f.db, f.logger)
}

// AuditLogs returns the audit repository, on the audit database when one is configured
func (f *RepositoryFactory) AuditLogs() *AuditRepository {
	if f.auditDB != nil {
		return NewAuditRepository(f.auditDB, f.logger)
	}
	return NewAuditRepository(f.db, f.logger)
}

// HealthCheck pings every pool
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if err := f.db.HealthCheck(ctx); err != nil {
		return err
	}
	if f.auditDB != nil {
		return f.auditDB.HealthCheck(ctx)
	}
	return nil
}

// Close closes the database connection(s)
func (f *RepositoryFactory) Close() error {
	if f.auditDB != nil {
		_ = f.auditDB.Close()
	}
	return f.db.Close()
}
