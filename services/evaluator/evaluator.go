// Package evaluator applies the access rules of a PolicyConfig to a single
// request and produces a Decision.
package evaluator

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/upb/permission-engine/config"
	"github.com/upb/permission-engine/models"
)

// actionRule checks the action specific capability. ok=false denies with decision.
type actionRule func(e *Evaluator, req models.AccessRequest, profile *models.UserPermissionProfile) (models.Decision, bool)

func allowAlways(*Evaluator, models.AccessRequest, *models.UserPermissionProfile) (models.Decision, bool) {
	return models.Allow(), true
}

func requireLevels(levels ...models.PermissionLevel) actionRule {
	allowed := make(map[models.PermissionLevel]struct{}, len(levels))
	for _, l := range levels {
		allowed[l] = struct{}{}
	}
	return func(_ *Evaluator, req models.AccessRequest, profile *models.UserPermissionProfile) (models.Decision, bool) {
		if _, ok := allowed[profile.PermissionLevel]; ok {
			return models.Allow(), true
		}
		return denyAction(req.Action), false
	}
}

func requireAnyLevel(_ *Evaluator, req models.AccessRequest, profile *models.UserPermissionProfile) (models.Decision, bool) {
	if profile.PermissionLevel == models.PermissionLevelNone {
		return denyAction(req.Action), false
	}
	if _, known := levelCeilings[profile.PermissionLevel]; !known {
		return denyAction(req.Action), false
	}
	return models.Allow(), true
}

// requireDocumentTier applies the tier check, treating unlabelled documents as internal
func requireDocumentTier(e *Evaluator, req models.AccessRequest, profile *models.UserPermissionProfile) (models.Decision, bool) {
	required, ok := ResolveTier(req.ResourceID, req.ResourceType)
	if !ok {
		required = models.TierInternal
	}
	if canAccessTier(e.policy, profile, required) {
		return models.Allow(), true
	}
	return models.Deny(models.ReasonInsufficientTier, models.RestrictionDynamic), false
}

// requireBasicCapability is the rule for actions without a table row
func requireBasicCapability(e *Evaluator, req models.AccessRequest, profile *models.UserPermissionProfile) (models.Decision, bool) {
	if e.hasCapability(profile, string(models.PermissionLevelBasic)) {
		return models.Allow(), true
	}
	return denyAction(req.Action), false
}

func denyAction(a models.Action) models.Decision {
	return models.Deny(fmt.Sprintf(models.ReasonInsufficientActionF, a))
}

// actionRules must have a row for every models.Action
var actionRules = map[models.Action]actionRule{
	models.ActionTest:             allowAlways,
	models.ActionBedrockChat:      requireAnyLevel,
	models.ActionDocumentAccess:   requireDocumentTier,
	models.ActionSystemManagement: requireLevels(models.PermissionLevelAdmin, models.PermissionLevelSystem),
	models.ActionUserManagement:   requireLevels(models.PermissionLevelAdmin, models.PermissionLevelSecurity, models.PermissionLevelSystem),
}

// Evaluator decides access requests against one immutable policy.
// It holds no mutable state and is safe for concurrent use.
type Evaluator struct {
	policy *config.PolicyConfig
}

// New creates an Evaluator for a built policy
func New(policy *config.PolicyConfig) (*Evaluator, error) {
	if !policy.IsBuilt() {
		return nil, config.ErrPolicyNotBuilt
	}
	return &Evaluator{policy: policy}, nil
}

// Location returns the timezone business hours are evaluated in
func (e *Evaluator) Location() *time.Location {
	return e.policy.Location()
}

// Evaluate applies the rules in order and returns the first denial, or an
// allowing decision when every rule passes. A nil profile is denied.
func (e *Evaluator) Evaluate(req models.AccessRequest, profile *models.UserPermissionProfile) models.Decision {
	if profile == nil {
		return models.Deny(models.ReasonProfileNotFound)
	}

	emergency := e.policy.IsEmergencyUser(req.UserID)

	if e.policy.TimeBasedRestriction.Enabled && !emergency && !e.withinBusinessHours(req) {
		return models.Deny(models.ReasonOutsideHours, models.RestrictionTime)
	}

	if e.policy.GeographicRestriction.Enabled && !emergency && !e.allowedRegion(req.ClientIP) {
		return models.Deny(models.ReasonRegionNotPermitted, models.RestrictionGeo)
	}

	if e.policy.DynamicPermission.Enabled {
		if required, ok := ResolveTier(req.ResourceID, req.ResourceType); ok && !canAccessTier(e.policy, profile, required) {
			return models.Deny(models.ReasonInsufficientTier, models.RestrictionDynamic)
		}
	}

	rule, ok := actionRules[req.Action]
	if !ok {
		rule = requireBasicCapability
	}
	if decision, passed := rule(e, req, profile); !passed {
		return decision
	}

	return models.Allow()
}

func (e *Evaluator) withinBusinessHours(req models.AccessRequest) bool {
	local := req.RequestTimestamp.In(e.policy.Location())
	hours := e.policy.TimeBasedRestriction.BusinessHours
	return e.policy.IsBusinessDay(local.Weekday()) &&
		local.Hour() >= hours.Start &&
		local.Hour() < hours.End
}

// allowedRegion fails for missing or unparseable addresses
func (e *Evaluator) allowedRegion(clientIP string) bool {
	addr, err := netip.ParseAddr(clientIP)
	if err != nil {
		return false
	}
	return e.policy.AllowsIP(addr)
}

// EffectivePermissions returns the profile permissions plus the policy defaults
func (e *Evaluator) EffectivePermissions(profile *models.UserPermissionProfile) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	if profile != nil {
		for _, p := range profile.Permissions {
			add(p)
		}
	}
	for _, p := range e.policy.DynamicPermission.DefaultPermissions {
		add(p)
	}
	return out
}

func (e *Evaluator) hasCapability(profile *models.UserPermissionProfile, capability string) bool {
	if profile.HasPermission(capability) {
		return true
	}
	for _, p := range e.policy.DynamicPermission.DefaultPermissions {
		if p == capability {
			return true
		}
	}
	return false
}
