package repositories

import (
	"context"
	"errors"

	"github.com/upb/permission-engine/models"
)

// ErrNotFound is returned by stores when no record exists for a key
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when a different record already occupies the key
var ErrConflict = errors.New("record already exists")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	Commit() error
	Rollback() error
	Context() context.Context
}

// ProfileRepository reads provisioned user permission profiles
type ProfileRepository interface {
	// GetProfile returns the profile for userID or ErrNotFound.
	// Inactive profiles are returned as stored; callers decide how to treat them.
	GetProfile(ctx context.Context, userID string) (*models.UserPermissionProfile, error)

	// ImportProfiles creates or replaces profiles atomically. It backs the
	// provisioning CLI; the engine itself never writes profiles.
	ImportProfiles(ctx context.Context, profiles []*models.UserPermissionProfile) error
}

// AuditRepository persists audit entries. Entries are append-only; expiry is
// delegated to the store through AuditLogEntry.TTLExpiry. Put is idempotent per
// entry ID: writing an entry that is already stored succeeds.
type AuditRepository interface {
	Put(ctx context.Context, entry *models.AuditLogEntry) error
}

// HealthChecker is implemented by stores that can report readiness
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Repositories aggregates the stores selected for this process
type Repositories struct {
	Profiles  ProfileRepository
	AuditLogs AuditRepository
	// Health lists every distinct backend in use, keyed by backend name
	Health map[string]HealthChecker
	// Closers release backend connections on shutdown
	Closers []func() error
}

// Close releases every backend connection, returning the first error
func (r *Repositories) Close() error {
	var first error
	for _, closeFn := range r.Closers {
		if err := closeFn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
