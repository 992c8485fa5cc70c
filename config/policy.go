package config

import (
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"strings"
	"time"
	_ "time/tzdata" // policy timezones must resolve in minimal containers

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/upb/permission-engine/models"
	"github.com/upb/permission-engine/utils"
)

// Environment names a deployment environment with its own policy block.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// AllEnvironments returns every supported environment
func AllEnvironments() []Environment {
	return []Environment{EnvDevelopment, EnvStaging, EnvProduction}
}

// ParseEnvironment accepts the canonical names and the dev/stage/prod aliases
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "development", "dev":
		return EnvDevelopment, nil
	case "staging", "stage":
		return EnvStaging, nil
	case "production", "prod":
		return EnvProduction, nil
	default:
		return "", fmt.Errorf("unknown environment %q: use development, staging or production", s)
	}
}

// BusinessHours is the weekly window in which time-restricted access is allowed.
// Weekdays use time.Weekday numbering (0 = Sunday).
type BusinessHours struct {
	Start    int   `mapstructure:"start" yaml:"start" json:"start" validate:"min=0,max=23"`
	End      int   `mapstructure:"end" yaml:"end" json:"end" validate:"min=1,max=24,gtfield=Start"`
	Weekdays []int `mapstructure:"weekdays" yaml:"weekdays" json:"weekdays" validate:"min=1,unique,dive,min=0,max=6"`
}

// TimeBasedRestriction configures the business hours rule
type TimeBasedRestriction struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	BusinessHours BusinessHours `mapstructure:"businessHours" yaml:"businessHours" json:"businessHours"`
	Timezone      string        `mapstructure:"timezone" yaml:"timezone" json:"timezone" validate:"required,timezone"`
}

// GeographicRestriction configures the client network rule
type GeographicRestriction struct {
	Enabled         bool     `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	AllowedIPRanges []string `mapstructure:"allowedIpRanges" yaml:"allowedIpRanges" json:"allowedIpRanges" validate:"dive,cidr"`
	// VPNDetection is accepted for parity with the deployment configuration; no
	// detection backend is wired, so it is reported but never evaluated.
	VPNDetection bool `mapstructure:"vpnDetection" yaml:"vpnDetection" json:"vpnDetection"`
}

// DynamicPermission configures resource-tier evaluation
type DynamicPermission struct {
	Enabled                 bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	DefaultPermissions      []string      `mapstructure:"defaultPermissions" yaml:"defaultPermissions" json:"defaultPermissions" validate:"dive,required"`
	TemporaryAccessDuration time.Duration `mapstructure:"temporaryAccessDuration" yaml:"temporaryAccessDuration" json:"temporaryAccessDuration" validate:"gt=0"`
	MaxTemporaryAccess      int           `mapstructure:"maxTemporaryAccess" yaml:"maxTemporaryAccess" json:"maxTemporaryAccess" validate:"min=0"`
}

// AuditLogPolicy configures audit persistence
type AuditLogPolicy struct {
	Enabled         bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RetentionDays   int  `mapstructure:"retentionDays" yaml:"retentionDays" json:"retentionDays" validate:"min=1,max=3650"`
	DetailedLogging bool `mapstructure:"detailedLogging" yaml:"detailedLogging" json:"detailedLogging"`
}

// PolicyConfig is the complete, environment-scoped rule configuration.
// Obtain usable values through Build, BuiltinPolicy(...).Build or LoadPolicy;
// a built PolicyConfig is never mutated.
type PolicyConfig struct {
	Environment           Environment                      `mapstructure:"-" yaml:"-" json:"environment"`
	TimeBasedRestriction  TimeBasedRestriction             `mapstructure:"timeBasedRestriction" yaml:"timeBasedRestriction" json:"timeBasedRestriction"`
	GeographicRestriction GeographicRestriction            `mapstructure:"geographicRestriction" yaml:"geographicRestriction" json:"geographicRestriction"`
	DynamicPermission     DynamicPermission                `mapstructure:"dynamicPermission" yaml:"dynamicPermission" json:"dynamicPermission"`
	AuditLog              AuditLogPolicy                   `mapstructure:"auditLog" yaml:"auditLog" json:"auditLog"`
	EmergencyAccessUsers  []string                         `mapstructure:"emergencyAccessUsers" yaml:"emergencyAccessUsers" json:"emergencyAccessUsers" validate:"dive,required,max=100,userid"`
	ProjectPermissions    map[string][]models.ResourceTier `mapstructure:"projectPermissions" yaml:"projectPermissions" json:"projectPermissions" validate:"dive,keys,required,endkeys,min=1,dive,tier"`

	built           bool
	location        *time.Location
	weekdays        map[time.Weekday]struct{}
	ipRanges        []netip.Prefix
	emergencyUsers  map[string]struct{}
	projectCeilings map[string]models.ResourceTier
}

// requiredPolicyKeys lists every key a policy file block must set explicitly.
var requiredPolicyKeys = []string{
	"timeBasedRestriction.enabled",
	"timeBasedRestriction.businessHours.start",
	"timeBasedRestriction.businessHours.end",
	"timeBasedRestriction.businessHours.weekdays",
	"timeBasedRestriction.timezone",
	"geographicRestriction.enabled",
	"geographicRestriction.allowedIpRanges",
	"geographicRestriction.vpnDetection",
	"dynamicPermission.enabled",
	"dynamicPermission.defaultPermissions",
	"dynamicPermission.temporaryAccessDuration",
	"dynamicPermission.maxTemporaryAccess",
	"auditLog.enabled",
	"auditLog.retentionDays",
	"auditLog.detailedLogging",
	"emergencyAccessUsers",
	"projectPermissions",
}

var weekdaysMonToFri = []int{1, 2, 3, 4, 5}

// BuiltinPolicy returns a fresh copy of the built-in policy for env.
// The result must be built before use.
func BuiltinPolicy(env Environment) PolicyConfig {
	base := PolicyConfig{
		Environment: env,
		TimeBasedRestriction: TimeBasedRestriction{
			Enabled: true,
			BusinessHours: BusinessHours{
				Start:    9,
				End:      18,
				Weekdays: append([]int(nil), weekdaysMonToFri...),
			},
			Timezone: "Asia/Tokyo",
		},
		GeographicRestriction: GeographicRestriction{
			Enabled:         true,
			AllowedIPRanges: []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
			VPNDetection:    false,
		},
		DynamicPermission: DynamicPermission{
			Enabled:                 true,
			DefaultPermissions:      []string{"basic"},
			TemporaryAccessDuration: 24 * time.Hour,
			MaxTemporaryAccess:      3,
		},
		AuditLog: AuditLogPolicy{
			Enabled:         true,
			RetentionDays:   90,
			DetailedLogging: false,
		},
		EmergencyAccessUsers: []string{"admin001"},
		ProjectPermissions: map[string][]models.ResourceTier{
			"project-alpha": {models.TierPublic, models.TierInternal, models.TierConfidential},
			"project-beta":  {models.TierPublic, models.TierInternal},
			"security":      {models.TierPublic, models.TierInternal, models.TierConfidential, models.TierRestricted},
		},
	}

	switch env {
	case EnvDevelopment:
		base.TimeBasedRestriction.Enabled = false
		base.GeographicRestriction.AllowedIPRanges = append(base.GeographicRestriction.AllowedIPRanges, "127.0.0.0/8", "::1/128")
		base.GeographicRestriction.Enabled = false
		base.AuditLog.RetentionDays = 30
		base.AuditLog.DetailedLogging = true
		base.EmergencyAccessUsers = append(base.EmergencyAccessUsers, "dev-admin")
	case EnvStaging:
		base.AuditLog.DetailedLogging = true
	case EnvProduction:
		base.GeographicRestriction.VPNDetection = true
		base.DynamicPermission.MaxTemporaryAccess = 1
		base.DynamicPermission.TemporaryAccessDuration = 8 * time.Hour
	}
	return base
}

// LoadPolicy returns the validated policy for env. When file is empty the
// built-in policy is used; otherwise the env block of file replaces it entirely
// and must set every key.
func LoadPolicy(envName, file string) (*PolicyConfig, error) {
	env, err := ParseEnvironment(envName)
	if err != nil {
		return nil, err
	}
	if file == "" {
		return BuiltinPolicy(env).Build()
	}

	v := viper.New()
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", file, err)
	}

	block := v.Sub(string(env))
	if block == nil {
		return nil, fmt.Errorf("policy file %s has no %q block", file, env)
	}

	var missing []string
	for _, key := range requiredPolicyKeys {
		if !block.IsSet(key) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("policy file %s, %s block: missing keys: %s", file, env, strings.Join(missing, ", "))
	}

	var pc PolicyConfig
	if err := block.Unmarshal(&pc, func(dc *mapstructure.DecoderConfig) {
		dc.ErrorUnused = true
	}); err != nil {
		return nil, fmt.Errorf("policy file %s, %s block: %w", file, env, err)
	}
	pc.Environment = env

	return pc.Build()
}

// Build validates the policy and returns an immutable copy with its lookup
// tables computed.
func (c PolicyConfig) Build() (*PolicyConfig, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	built := c
	built.TimeBasedRestriction.BusinessHours.Weekdays = append([]int(nil), c.TimeBasedRestriction.BusinessHours.Weekdays...)
	built.GeographicRestriction.AllowedIPRanges = append([]string(nil), c.GeographicRestriction.AllowedIPRanges...)
	built.DynamicPermission.DefaultPermissions = append([]string(nil), c.DynamicPermission.DefaultPermissions...)
	built.EmergencyAccessUsers = append([]string(nil), c.EmergencyAccessUsers...)

	loc, err := time.LoadLocation(c.TimeBasedRestriction.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.TimeBasedRestriction.Timezone, err)
	}
	built.location = loc

	built.weekdays = make(map[time.Weekday]struct{}, len(c.TimeBasedRestriction.BusinessHours.Weekdays))
	for _, d := range c.TimeBasedRestriction.BusinessHours.Weekdays {
		built.weekdays[time.Weekday(d)] = struct{}{}
	}

	built.ipRanges = make([]netip.Prefix, 0, len(c.GeographicRestriction.AllowedIPRanges))
	for _, cidr := range c.GeographicRestriction.AllowedIPRanges {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
		if err != nil {
			return nil, fmt.Errorf("invalid allowed IP range %q: %w", cidr, err)
		}
		built.ipRanges = append(built.ipRanges, prefix.Masked())
	}

	built.emergencyUsers = make(map[string]struct{}, len(c.EmergencyAccessUsers))
	for _, u := range c.EmergencyAccessUsers {
		built.emergencyUsers[u] = struct{}{}
	}

	built.ProjectPermissions = make(map[string][]models.ResourceTier, len(c.ProjectPermissions))
	built.projectCeilings = make(map[string]models.ResourceTier, len(c.ProjectPermissions))
	for project, tiers := range c.ProjectPermissions {
		key := strings.ToLower(project)
		built.ProjectPermissions[key] = append([]models.ResourceTier(nil), tiers...)
		if ceiling, ok := models.MaxTier(tiers); ok {
			built.projectCeilings[key] = ceiling
		}
	}

	built.built = true
	return &built, nil
}

// Validate checks the policy for completeness and consistency
func (c PolicyConfig) Validate() error {
	if _, err := ParseEnvironment(string(c.Environment)); err != nil {
		return err
	}

	if err := utils.ValidateStruct(utils.NewValidator(), c); err != nil {
		return fmt.Errorf("invalid %s policy: %w", c.Environment, err)
	}

	if c.GeographicRestriction.Enabled && len(c.GeographicRestriction.AllowedIPRanges) == 0 {
		return fmt.Errorf("invalid %s policy: geographicRestriction.allowedIpRanges must not be empty when enabled", c.Environment)
	}
	if c.ProjectPermissions == nil {
		return fmt.Errorf("invalid %s policy: projectPermissions is required", c.Environment)
	}

	seen := make(map[string]string, len(c.ProjectPermissions))
	for project := range c.ProjectPermissions {
		key := strings.ToLower(project)
		if other, dup := seen[key]; dup {
			return fmt.Errorf("invalid %s policy: project tags %q and %q collide", c.Environment, other, project)
		}
		seen[key] = project
	}

	return nil
}

// IsBuilt reports whether the lookup tables are populated
func (c *PolicyConfig) IsBuilt() bool {
	return c != nil && c.built
}

// Location returns the timezone used by the business hours rule
func (c *PolicyConfig) Location() *time.Location {
	return c.location
}

// IsBusinessDay reports whether d is one of the configured weekdays
func (c *PolicyConfig) IsBusinessDay(d time.Weekday) bool {
	_, ok := c.weekdays[d]
	return ok
}

// AllowsIP reports whether addr falls inside any allowed range
func (c *PolicyConfig) AllowsIP(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, prefix := range c.ipRanges {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// IsEmergencyUser reports whether userID bypasses the time and geo rules
func (c *PolicyConfig) IsEmergencyUser(userID string) bool {
	_, ok := c.emergencyUsers[userID]
	return ok
}

// ProjectCeiling returns the most sensitive tier granted to project
func (c *PolicyConfig) ProjectCeiling(project string) (models.ResourceTier, bool) {
	t, ok := c.projectCeilings[strings.ToLower(project)]
	return t, ok
}

// Retention returns the audit retention as a duration
func (c *PolicyConfig) Retention() time.Duration {
	return time.Duration(c.AuditLog.RetentionDays) * 24 * time.Hour
}

// Projects returns the configured project tags in sorted order
func (c *PolicyConfig) Projects() []string {
	out := make([]string, 0, len(c.ProjectPermissions))
	for p := range c.ProjectPermissions {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ErrPolicyNotBuilt is returned by consumers handed a PolicyConfig that skipped Build.
var ErrPolicyNotBuilt = errors.New("policy config has not been built")
