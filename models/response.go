package models

// PermissionResponse is the external response contract for one evaluation.
type PermissionResponse struct {
	Allowed         bool             `json:"allowed" yaml:"allowed"`
	Reason          string           `json:"reason,omitempty" yaml:"reason,omitempty"`
	UserPermissions *UserPermissions `json:"userPermissions,omitempty" yaml:"userPermissions,omitempty"`
	AuditLog        AuditLogRef      `json:"auditLog" yaml:"auditLog"`
}

// UserPermissions is the profile subset returned to callers on success
type UserPermissions struct {
	UserID          string          `json:"userId" yaml:"userId"`
	PermissionLevel PermissionLevel `json:"permissionLevel" yaml:"permissionLevel"`
	DisplayName     string          `json:"displayName" yaml:"displayName"`
	Department      string          `json:"department" yaml:"department"`
	Role            string          `json:"role" yaml:"role"`
}

// AuditLogRef identifies the audit record written for the response
type AuditLogRef struct {
	Result    AuditResult `json:"result" yaml:"result"`
	Timestamp string      `json:"timestamp" yaml:"timestamp"`
}
