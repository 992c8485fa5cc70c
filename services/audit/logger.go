// Package audit scores, masks and persists one audit entry per access evaluation.
package audit

import (
	"context"
	"time"

	"github.com/upb/permission-engine/config"
	"github.com/upb/permission-engine/models"
	"github.com/upb/permission-engine/repositories"
	"github.com/upb/permission-engine/services"
	"go.uber.org/zap"
)

// Risk score components
const (
	riskAllowed          = 1
	riskDenied           = 5
	riskSensitiveAction  = 2
	riskSuspiciousFields = 3
)

// Record is everything known about one finished evaluation
type Record struct {
	Request     models.AccessRequest
	Decision    models.Decision
	Profile     *models.UserPermissionProfile // nil when no active profile was found
	Permissions []string                      // effective permissions, for detailed logging
	Suspicious  bool
	EvaluatedAt time.Time
}

// Submitter accepts finished evaluations for auditing
type Submitter interface {
	Submit(ctx context.Context, rec Record) error
}

// RiskScore rates an evaluation from 0 to 10: 1 when allowed, 5 when denied,
// +2 for management actions, +3 when the request carried sensitive fields.
func RiskScore(d models.Decision, action models.Action, suspicious bool) int {
	score := riskAllowed
	if !d.Allowed {
		score = riskDenied
	}
	if action.IsSensitive() {
		score += riskSensitiveAction
	}
	if suspicious {
		score += riskSuspiciousFields
	}
	if score > models.MaxRiskScore {
		score = models.MaxRiskScore
	}
	return score
}

// Logger builds and persists audit entries
type Logger struct {
	repo         repositories.AuditRepository
	policy       *config.PolicyConfig
	masker       *Masker
	logger       *zap.Logger
	retryDelay   time.Duration
	writeTimeout time.Duration
}

// NewLogger creates an audit logger writing to repo
func NewLogger(repo repositories.AuditRepository, policy *config.PolicyConfig, cfg config.AuditConfig, logger *zap.Logger) *Logger {
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Logger{
		repo:         repo,
		policy:       policy,
		masker:       NewMasker(),
		logger:       logger,
		retryDelay:   cfg.RetryDelay,
		writeTimeout: writeTimeout,
	}
}

// BuildEntry converts a record into its masked, scored audit entry
func (l *Logger) BuildEntry(rec Record) *models.AuditLogEntry {
	req := rec.Request

	details := map[string]any{}
	if rec.Decision.Reason != "" {
		details["reason"] = rec.Decision.Reason
	}
	if len(rec.Decision.TriggeredRestrictions) > 0 {
		restrictions := make([]string, len(rec.Decision.TriggeredRestrictions))
		for i, r := range rec.Decision.TriggeredRestrictions {
			restrictions[i] = string(r)
		}
		details["triggeredRestrictions"] = restrictions
	}
	if req.ClientIP != "" {
		details["clientIp"] = req.ClientIP
	}
	if req.ResourceType != "" {
		details["resourceType"] = req.ResourceType
	}
	if req.ResourceID != "" {
		details["resourceId"] = req.ResourceID
	}
	details["requestTimestamp"] = req.RequestTimestamp.UTC().Format(time.RFC3339Nano)
	if rec.Suspicious {
		details["suspicious"] = true
	}
	if len(req.Metadata) > 0 {
		metadata := make(map[string]any, len(req.Metadata))
		for k, v := range req.Metadata {
			metadata[k] = v
		}
		details["metadata"] = metadata
	}

	if l.policy.AuditLog.DetailedLogging && rec.Profile != nil {
		details["permissionLevel"] = string(rec.Profile.PermissionLevel)
		details["department"] = rec.Profile.Department
		details["role"] = rec.Profile.Role
		if len(rec.Permissions) > 0 {
			details["effectivePermissions"] = append([]string(nil), rec.Permissions...)
		}
	}

	return models.NewAuditLogEntry(req.UserID, req.Action, req.Resource(), rec.Decision.Result(), rec.EvaluatedAt).
		WithDetails(l.masker.Mask(details)).
		WithRiskScore(RiskScore(rec.Decision, req.Action, rec.Suspicious)).
		WithRetention(l.policy.Retention())
}

// Record persists the entry for rec, retrying once after the configured delay.
// A second failure returns an audit_write error; the decision in rec stands
// regardless. Record is a no-op when audit logging is disabled by policy.
func (l *Logger) Record(ctx context.Context, rec Record) error {
	if !l.policy.AuditLog.Enabled {
		return nil
	}

	entry := l.BuildEntry(rec)

	err := l.put(ctx, entry)
	if err == nil {
		return nil
	}

	l.logger.Debug("audit write failed, retrying",
		zap.String("user_id", entry.UserID),
		zap.Duration("delay", l.retryDelay),
		zap.Error(err))

	if l.retryDelay > 0 {
		timer := time.NewTimer(l.retryDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return services.WrapAuditWrite("audit write abandoned", ctx.Err())
		}
	}

	if err := l.put(ctx, entry); err != nil {
		return services.NewDomainError(services.ErrorTypeAuditWrite, "audit write failed after retry", err).
			WithDetail("user_id", entry.UserID).
			WithDetail("result", string(entry.Result))
	}
	return nil
}

// Submit records synchronously
func (l *Logger) Submit(ctx context.Context, rec Record) error {
	return l.Record(ctx, rec)
}

func (l *Logger) put(ctx context.Context, entry *models.AuditLogEntry) error {
	ctx, cancel := context.WithTimeout(ctx, l.writeTimeout)
	defer cancel()
	return l.repo.Put(ctx, entry)
}
