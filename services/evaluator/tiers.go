package evaluator

import (
	"strings"
	"unicode"

	"github.com/upb/permission-engine/config"
	"github.com/upb/permission-engine/models"
)

// ResolveTier infers the tier a resource requires from tier names appearing as
// whole tokens in its identifier or type, e.g. "docs/confidential/q3.pdf".
// When several tier names appear the most sensitive wins.
func ResolveTier(resourceID, resourceType string) (models.ResourceTier, bool) {
	var found []models.ResourceTier
	for _, s := range []string{resourceID, resourceType} {
		for _, token := range strings.FieldsFunc(strings.ToLower(s), isSeparator) {
			if tier, err := models.ParseResourceTier(token); err == nil {
				found = append(found, tier)
			}
		}
	}
	return models.MaxTier(found)
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// ceilingFunc returns the most sensitive tier a profile may reach, or false
// when the profile reaches no tier at all.
type ceilingFunc func(policy *config.PolicyConfig, profile *models.UserPermissionProfile) (models.ResourceTier, bool)

func fixedCeiling(t models.ResourceTier) ceilingFunc {
	return func(*config.PolicyConfig, *models.UserPermissionProfile) (models.ResourceTier, bool) {
		return t, true
	}
}

func noCeiling(*config.PolicyConfig, *models.UserPermissionProfile) (models.ResourceTier, bool) {
	return "", false
}

// projectCeiling grants the highest tier configured for any of the user's projects
func projectCeiling(policy *config.PolicyConfig, profile *models.UserPermissionProfile) (models.ResourceTier, bool) {
	var tiers []models.ResourceTier
	for _, project := range profile.Projects() {
		if t, ok := policy.ProjectCeiling(project); ok {
			tiers = append(tiers, t)
		}
	}
	return models.MaxTier(tiers)
}

// levelCeilings must have a row for every models.PermissionLevel
var levelCeilings = map[models.PermissionLevel]ceilingFunc{
	models.PermissionLevelAdmin:     fixedCeiling(models.TierRestricted),
	models.PermissionLevelEmergency: fixedCeiling(models.TierRestricted),
	models.PermissionLevelSecurity:  fixedCeiling(models.TierRestricted),
	models.PermissionLevelSystem:    fixedCeiling(models.TierRestricted),
	models.PermissionLevelProject:   projectCeiling,
	models.PermissionLevelBasic:     fixedCeiling(models.TierInternal),
	models.PermissionLevelNone:      noCeiling,
}

// TierCeiling returns the most sensitive tier the profile may access under policy.
// Unknown permission levels reach nothing.
func TierCeiling(policy *config.PolicyConfig, profile *models.UserPermissionProfile) (models.ResourceTier, bool) {
	fn, ok := levelCeilings[profile.PermissionLevel]
	if !ok {
		return "", false
	}
	return fn(policy, profile)
}

// canAccessTier reports whether profile may access a resource of tier required
func canAccessTier(policy *config.PolicyConfig, profile *models.UserPermissionProfile, required models.ResourceTier) bool {
	ceiling, ok := TierCeiling(policy, profile)
	return ok && ceiling.AtLeast(required)
}
