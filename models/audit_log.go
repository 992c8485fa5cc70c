package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditResult is the outcome recorded for an evaluation
type AuditResult string

const (
	AuditResultAllowed AuditResult = "ALLOWED"
	AuditResultDenied  AuditResult = "DENIED"
)

// Risk score bounds
const (
	MinRiskScore = 0
	MaxRiskScore = 10
)

// AuditLogEntry is the append-only record written once per evaluation.
// Expiry is delegated to the storage layer through TTLExpiry.
type AuditLogEntry struct {
	ID        uuid.UUID      `json:"id" yaml:"id" db:"id"`
	UserID    string         `json:"userId" yaml:"userId" db:"user_id"`
	Timestamp time.Time      `json:"timestamp" yaml:"timestamp" db:"timestamp"`
	Action    Action         `json:"action" yaml:"action" db:"action"`
	Resource  string         `json:"resource" yaml:"resource" db:"resource"`
	Result    AuditResult    `json:"result" yaml:"result" db:"result"`
	Details   map[string]any `json:"details" yaml:"details" db:"details"`
	RiskScore int            `json:"riskScore" yaml:"riskScore" db:"risk_score"`
	TTLExpiry time.Time      `json:"ttlExpiry" yaml:"ttlExpiry" db:"ttl_expiry"`
}

// TableName returns the table name for the AuditLogEntry model
func (AuditLogEntry) TableName() string {
	return "permission_audit_logs"
}

// NewAuditLogEntry creates an entry for one evaluation
func NewAuditLogEntry(userID string, action Action, resource string, result AuditResult, timestamp time.Time) *AuditLogEntry {
	return &AuditLogEntry{
		ID:        uuid.New(),
		UserID:    userID,
		Timestamp: timestamp,
		Action:    action,
		Resource:  resource,
		Result:    result,
		Details:   make(map[string]any),
	}
}

// WithDetails replaces the details
func (a *AuditLogEntry) WithDetails(details map[string]any) *AuditLogEntry {
	if details == nil {
		details = make(map[string]any)
	}
	a.Details = details
	return a
}

// WithRiskScore sets the risk score, clamped to [MinRiskScore, MaxRiskScore]
func (a *AuditLogEntry) WithRiskScore(score int) *AuditLogEntry {
	switch {
	case score < MinRiskScore:
		score = MinRiskScore
	case score > MaxRiskScore:
		score = MaxRiskScore
	}
	a.RiskScore = score
	return a
}

// WithRetention sets TTLExpiry relative to the entry timestamp
func (a *AuditLogEntry) WithRetention(retention time.Duration) *AuditLogEntry {
	a.TTLExpiry = a.Timestamp.Add(retention)
	return a
}

// SortKey is the RFC 3339 timestamp used as the range key next to UserID
func (a *AuditLogEntry) SortKey() string {
	return a.Timestamp.UTC().Format(time.RFC3339Nano)
}
