package models

import (
	"fmt"
	"sort"
)

// ResourceTier is an ordered confidentiality class. Higher values are more sensitive.
type ResourceTier string

const (
	TierPublic       ResourceTier = "public"
	TierInternal     ResourceTier = "internal"
	TierConfidential ResourceTier = "confidential"
	TierRestricted   ResourceTier = "restricted"
)

var tierRank = map[ResourceTier]int{
	TierPublic:       0,
	TierInternal:     1,
	TierConfidential: 2,
	TierRestricted:   3,
}

// AllResourceTiers returns the tiers from least to most sensitive
func AllResourceTiers() []ResourceTier {
	return []ResourceTier{TierPublic, TierInternal, TierConfidential, TierRestricted}
}

// ParseResourceTier converts a configured value into a ResourceTier
func ParseResourceTier(s string) (ResourceTier, error) {
	t := ResourceTier(s)
	if _, ok := tierRank[t]; !ok {
		return "", fmt.Errorf("unknown resource tier: %q", s)
	}
	return t, nil
}

// Rank returns the position of the tier in the ordering, or -1 when unknown
func (t ResourceTier) Rank() int {
	if r, ok := tierRank[t]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether t is as sensitive as other or more
func (t ResourceTier) AtLeast(other ResourceTier) bool {
	return t.Rank() >= other.Rank() && t.Rank() >= 0
}

// MaxTier returns the most sensitive tier in tiers
func MaxTier(tiers []ResourceTier) (ResourceTier, bool) {
	best, found := ResourceTier(""), false
	for _, t := range tiers {
		if t.Rank() < 0 {
			continue
		}
		if !found || t.Rank() > best.Rank() {
			best, found = t, true
		}
	}
	return best, found
}

// Restriction tags the rule family that denied a request.
type Restriction string

const (
	RestrictionTime    Restriction = "TIME"
	RestrictionGeo     Restriction = "GEO"
	RestrictionDynamic Restriction = "DYNAMIC"
)

// Decision is the outcome of rule evaluation
type Decision struct {
	Allowed               bool          `json:"allowed"`
	Reason                string        `json:"reason,omitempty"`
	TriggeredRestrictions []Restriction `json:"triggeredRestrictions,omitempty"`
}

// Allow returns a granting decision
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a denying decision tagged with the given restrictions
func Deny(reason string, restrictions ...Restriction) Decision {
	d := Decision{Allowed: false, Reason: reason}
	if len(restrictions) > 0 {
		seen := make(map[Restriction]struct{}, len(restrictions))
		for _, r := range restrictions {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			d.TriggeredRestrictions = append(d.TriggeredRestrictions, r)
		}
		sort.Slice(d.TriggeredRestrictions, func(i, j int) bool {
			return d.TriggeredRestrictions[i] < d.TriggeredRestrictions[j]
		})
	}
	return d
}


// Result returns the audit result label for the decision
func (d Decision) Result() AuditResult {
	if d.Allowed {
		return AuditResultAllowed
	}
	return AuditResultDenied
}

// Well-known deny reasons
const (
	ReasonProfileNotFound     = "profile not found"
	ReasonOutsideHours        = "outside business hours"
	ReasonRegionNotPermitted  = "region not permitted"
	ReasonInsufficientTier    = "insufficient access level for resource"
	ReasonSystemError         = "system error: permission check failed"
	ReasonInsufficientActionF = "insufficient permissions for action %s"
)
