package models

import (
	"fmt"
	"time"
)

// Action identifies the capability a request asks for.
type Action string

const (
	ActionTest             Action = "test"
	ActionBedrockChat      Action = "bedrock-chat"
	ActionDocumentAccess   Action = "document-access"
	ActionSystemManagement Action = "system-management"
	ActionUserManagement   Action = "user-management"
)

// AllActions returns every known action in declaration order
func AllActions() []Action {
	return []Action{
		ActionTest,
		ActionBedrockChat,
		ActionDocumentAccess,
		ActionSystemManagement,
		ActionUserManagement,
	}
}

// ParseAction converts a wire value into an Action
func ParseAction(s string) (Action, error) {
	for _, a := range AllActions() {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action: %q", s)
}

// IsSensitive reports whether the action manages the system or its users.
func (a Action) IsSensitive() bool {
	return a == ActionSystemManagement || a == ActionUserManagement
}

// AccessRequest is one normalized evaluation unit. It is built by the
// normalizer and passed by value afterwards.
type AccessRequest struct {
	UserID           string         `json:"userId"`
	Action           Action         `json:"action"`
	ResourceType     string         `json:"resourceType,omitempty"`
	ResourceID       string         `json:"resourceId,omitempty"`
	ClientIP         string         `json:"clientIp,omitempty"`
	RequestTimestamp time.Time      `json:"timestamp"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Resource returns the audit representation of the requested resource
func (r AccessRequest) Resource() string {
	switch {
	case r.ResourceType != "" && r.ResourceID != "":
		return r.ResourceType + ":" + r.ResourceID
	case r.ResourceID != "":
		return r.ResourceID
	case r.ResourceType != "":
		return r.ResourceType
	default:
		return string(r.Action)
	}
}
