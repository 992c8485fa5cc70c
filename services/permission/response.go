package permission

import (
	"time"

	"github.com/upb/permission-engine/models"
)

// BuildResponse converts a final decision into the external response.
// The reason is only set when denied and the profile subset only when allowed.
func BuildResponse(decision models.Decision, profile *models.UserPermissionProfile, req models.AccessRequest, auditedAt time.Time) models.PermissionResponse {
	resp := models.PermissionResponse{
		Allowed: decision.Allowed,
		AuditLog: models.AuditLogRef{
			Result:    decision.Result(),
			Timestamp: auditedAt.UTC().Format(time.RFC3339),
		},
	}

	if !decision.Allowed {
		resp.Reason = decision.Reason
		return resp
	}

	if profile != nil {
		resp.UserPermissions = &models.UserPermissions{
			UserID:          profile.UserID,
			PermissionLevel: profile.PermissionLevel,
			DisplayName:     profile.DisplayName,
			Department:      profile.Department,
			Role:            profile.Role,
		}
	} else {
		resp.UserPermissions = &models.UserPermissions{UserID: req.UserID}
	}
	return resp
}
