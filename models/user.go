package models

import (
	"fmt"
	"sort"
	"strings"
)

// PermissionLevel is the coarse privilege class assigned to a user by provisioning.
type PermissionLevel string

const (
	PermissionLevelAdmin     PermissionLevel = "admin"
	PermissionLevelEmergency PermissionLevel = "emergency"
	PermissionLevelSecurity  PermissionLevel = "security"
	PermissionLevelSystem    PermissionLevel = "system"
	PermissionLevelProject   PermissionLevel = "project"
	PermissionLevelBasic     PermissionLevel = "basic"
	PermissionLevelNone      PermissionLevel = "none"
)

// AllPermissionLevels returns every permission level, most privileged first
func AllPermissionLevels() []PermissionLevel {
	return []PermissionLevel{
		PermissionLevelAdmin,
		PermissionLevelEmergency,
		PermissionLevelSecurity,
		PermissionLevelSystem,
		PermissionLevelProject,
		PermissionLevelBasic,
		PermissionLevelNone,
	}
}

// ParsePermissionLevel converts a stored value into a PermissionLevel
func ParsePermissionLevel(s string) (PermissionLevel, error) {
	for _, l := range AllPermissionLevels() {
		if string(l) == s {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown permission level: %q", s)
}

// ProjectPermissionPrefix marks capability strings naming a project membership.
const ProjectPermissionPrefix = "project:"

// UserPermissionProfile is the provisioned permission record for one user.
// The engine only reads it.
type UserPermissionProfile struct {
	UserID          string          `json:"userId" db:"user_id"`
	PermissionLevel PermissionLevel `json:"permissionLevel" db:"permission_level"`
	Permissions     []string        `json:"permissions" db:"permissions"`
	DisplayName     string          `json:"displayName" db:"display_name"`
	Department      string          `json:"department" db:"department"`
	Role            string          `json:"role" db:"role"`
	IsActive        bool            `json:"isActive" db:"is_active"`
}

// TableName returns the table name for the UserPermissionProfile model
func (UserPermissionProfile) TableName() string {
	return "user_permissions"
}

// HasPermission checks for a capability string, ignoring case
func (p *UserPermissionProfile) HasPermission(permission string) bool {
	for _, perm := range p.Permissions {
		if strings.EqualFold(perm, permission) {
			return true
		}
	}
	return false
}

// Projects returns the lower-cased project tags the user belongs to: every
// "project:<tag>" permission plus the department.
func (p *UserPermissionProfile) Projects() []string {
	seen := make(map[string]struct{})
	for _, perm := range p.Permissions {
		if len(perm) > len(ProjectPermissionPrefix) && strings.EqualFold(perm[:len(ProjectPermissionPrefix)], ProjectPermissionPrefix) {
			seen[strings.ToLower(perm[len(ProjectPermissionPrefix):])] = struct{}{}
		}
	}
	if p.Department != "" {
		seen[strings.ToLower(p.Department)] = struct{}{}
	}

	projects := make([]string, 0, len(seen))
	for tag := range seen {
		projects = append(projects, tag)
	}
	sort.Strings(projects)
	return projects
}

// Clone returns a deep copy so cached profiles cannot be mutated by callers
func (p *UserPermissionProfile) Clone() *UserPermissionProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.Permissions = append([]string(nil), p.Permissions...)
	return &c
}
