package config

import (
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/permission-engine/models"
)

func TestParseEnvironment(t *testing.T) {
	tests := []struct {
		in      string
		want    Environment
		wantErr bool
	}{
		{"development", EnvDevelopment, false},
		{"dev", EnvDevelopment, false},
		{" Staging ", EnvStaging, false},
		{"PROD", EnvProduction, false},
		{"qa", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEnvironment(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuiltinPolicy_AllEnvironmentsBuild(t *testing.T) {
	for _, env := range AllEnvironments() {
		t.Run(string(env), func(t *testing.T) {
			p, err := BuiltinPolicy(env).Build()
			require.NoError(t, err)
			assert.True(t, p.IsBuilt())
			assert.Equal(t, env, p.Environment)
			assert.Equal(t, "Asia/Tokyo", p.Location().String())
			assert.True(t, p.IsEmergencyUser("admin001"))
			assert.False(t, p.IsEmergencyUser("user001"))
		})
	}
}

func TestBuiltinPolicy_EnvironmentDifferences(t *testing.T) {
	dev := BuiltinPolicy(EnvDevelopment)
	prod := BuiltinPolicy(EnvProduction)

	assert.False(t, dev.TimeBasedRestriction.Enabled)
	assert.False(t, dev.GeographicRestriction.Enabled)
	assert.Equal(t, 30, dev.AuditLog.RetentionDays)
	assert.True(t, dev.AuditLog.DetailedLogging)

	assert.True(t, prod.TimeBasedRestriction.Enabled)
	assert.True(t, prod.GeographicRestriction.Enabled)
	assert.Equal(t, 90, prod.AuditLog.RetentionDays)
	assert.False(t, prod.AuditLog.DetailedLogging)

	// Each call returns an independent copy
	dev.EmergencyAccessUsers[0] = "changed"
	assert.Equal(t, "admin001", BuiltinPolicy(EnvDevelopment).EmergencyAccessUsers[0])
}

func TestPolicyConfig_Lookups(t *testing.T) {
	p, err := BuiltinPolicy(EnvProduction).Build()
	require.NoError(t, err)

	assert.True(t, p.AllowsIP(netip.MustParseAddr("10.20.30.40")))
	assert.True(t, p.AllowsIP(netip.MustParseAddr("172.31.255.255")))
	assert.True(t, p.AllowsIP(netip.MustParseAddr("::ffff:192.168.1.1")))
	assert.False(t, p.AllowsIP(netip.MustParseAddr("8.8.8.8")))
	assert.False(t, p.AllowsIP(netip.MustParseAddr("127.0.0.1")))

	assert.True(t, p.IsBusinessDay(time.Monday))
	assert.True(t, p.IsBusinessDay(time.Friday))
	assert.False(t, p.IsBusinessDay(time.Saturday))
	assert.False(t, p.IsBusinessDay(time.Sunday))

	ceiling, ok := p.ProjectCeiling("Project-Alpha")
	require.True(t, ok)
	assert.Equal(t, models.TierConfidential, ceiling)

	_, ok = p.ProjectCeiling("project-unknown")
	assert.False(t, ok)

	assert.Equal(t, 90*24*time.Hour, p.Retention())
	assert.Equal(t, []string{"project-alpha", "project-beta", "security"}, p.Projects())
}

func TestPolicyConfig_DevelopmentAllowsLoopback(t *testing.T) {
	p, err := BuiltinPolicy(EnvDevelopment).Build()
	require.NoError(t, err)

	assert.True(t, p.AllowsIP(netip.MustParseAddr("127.0.0.1")))
	assert.True(t, p.AllowsIP(netip.MustParseAddr("::1")))
}

func TestPolicyConfig_BuildRejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PolicyConfig)
		errMsg string
	}{
		{
			name:   "unknown timezone",
			mutate: func(p *PolicyConfig) { p.TimeBasedRestriction.Timezone = "Mars/Olympus" },
			errMsg: "timezone",
		},
		{
			name:   "end before start",
			mutate: func(p *PolicyConfig) { p.TimeBasedRestriction.BusinessHours.End = 8 },
			errMsg: "greater than",
		},
		{
			name:   "weekday out of range",
			mutate: func(p *PolicyConfig) { p.TimeBasedRestriction.BusinessHours.Weekdays = []int{1, 7} },
			errMsg: "at most 6",
		},
		{
			name:   "no weekdays",
			mutate: func(p *PolicyConfig) { p.TimeBasedRestriction.BusinessHours.Weekdays = nil },
			errMsg: "weekdays",
		},
		{
			name:   "bad cidr",
			mutate: func(p *PolicyConfig) { p.GeographicRestriction.AllowedIPRanges = []string{"10.0.0.0/33"} },
			errMsg: "CIDR",
		},
		{
			name:   "enabled geo without ranges",
			mutate: func(p *PolicyConfig) { p.GeographicRestriction.AllowedIPRanges = nil },
			errMsg: "allowedIpRanges",
		},
		{
			name:   "zero retention",
			mutate: func(p *PolicyConfig) { p.AuditLog.RetentionDays = 0 },
			errMsg: "retentionDays",
		},
		{
			name: "unknown tier",
			mutate: func(p *PolicyConfig) {
				p.ProjectPermissions["project-alpha"] = []models.ResourceTier{"secret"}
			},
			errMsg: "resource tier",
		},
		{
			name: "project without tiers",
			mutate: func(p *PolicyConfig) {
				p.ProjectPermissions["project-gamma"] = nil
			},
			errMsg: "at least 1",
		},
		{
			name:   "emergency user with denied characters",
			mutate: func(p *PolicyConfig) { p.EmergencyAccessUsers = []string{"root;"} },
			errMsg: "invalid characters",
		},
		{
			name:   "missing environment",
			mutate: func(p *PolicyConfig) { p.Environment = "" },
			errMsg: "unknown environment",
		},
		{
			name: "colliding project tags",
			mutate: func(p *PolicyConfig) {
				p.ProjectPermissions["PROJECT-ALPHA"] = []models.ResourceTier{models.TierPublic}
			},
			errMsg: "collide",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := BuiltinPolicy(EnvProduction)
			tt.mutate(&p)

			built, err := p.Build()
			require.Error(t, err)
			assert.Nil(t, built)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

const stagingPolicyYAML = `
staging:
  timeBasedRestriction:
    enabled: true
    businessHours:
      start: 8
      end: 20
      weekdays: [1, 2, 3, 4, 5, 6]
    timezone: Europe/Berlin
  geographicRestriction:
    enabled: true
    allowedIpRanges: ["10.0.0.0/8", "2001:db8::/32"]
    vpnDetection: false
  dynamicPermission:
    enabled: true
    defaultPermissions: [basic]
    temporaryAccessDuration: 12h
    maxTemporaryAccess: 2
  auditLog:
    enabled: true
    retentionDays: 60
    detailedLogging: true
  emergencyAccessUsers: [oncall01]
  projectPermissions:
    Project-Gamma: [public, internal, confidential, restricted]
`

func writePolicyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadPolicy_FromFile(t *testing.T) {
	path := writePolicyFile(t, stagingPolicyYAML)

	p, err := LoadPolicy("staging", path)
	require.NoError(t, err)

	assert.Equal(t, EnvStaging, p.Environment)
	assert.Equal(t, "Europe/Berlin", p.Location().String())
	assert.Equal(t, 8, p.TimeBasedRestriction.BusinessHours.Start)
	assert.True(t, p.IsBusinessDay(time.Saturday))
	assert.Equal(t, 12*time.Hour, p.DynamicPermission.TemporaryAccessDuration)
	assert.Equal(t, 60*24*time.Hour, p.Retention())
	assert.True(t, p.IsEmergencyUser("oncall01"))
	assert.False(t, p.IsEmergencyUser("admin001"))
	assert.True(t, p.AllowsIP(netip.MustParseAddr("2001:db8::42")))

	ceiling, ok := p.ProjectCeiling("project-gamma")
	require.True(t, ok)
	assert.Equal(t, models.TierRestricted, ceiling)
}

func TestLoadPolicy_Builtin(t *testing.T) {
	p, err := LoadPolicy("prod", "")
	require.NoError(t, err)
	assert.Equal(t, EnvProduction, p.Environment)
}

func TestLoadPolicy_Errors(t *testing.T) {
	t.Run("unknown environment", func(t *testing.T) {
		_, err := LoadPolicy("qa", "")
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadPolicy("staging", filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read policy file")
	})

	t.Run("missing environment block", func(t *testing.T) {
		path := writePolicyFile(t, stagingPolicyYAML)
		_, err := LoadPolicy("production", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `no "production" block`)
	})

	t.Run("missing keys", func(t *testing.T) {
		path := writePolicyFile(t, `
staging:
  timeBasedRestriction:
    enabled: true
  auditLog:
    enabled: true
`)
		_, err := LoadPolicy("staging", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing keys")
		assert.Contains(t, err.Error(), "timeBasedRestriction.timezone")
		assert.Contains(t, err.Error(), "projectPermissions")
	})

	t.Run("unknown key", func(t *testing.T) {
		path := writePolicyFile(t, stagingPolicyYAML+"  surpriseSetting: true\n")
		_, err := LoadPolicy("staging", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "surprisesetting")
	})

	t.Run("invalid values", func(t *testing.T) {
		bad := writePolicyFile(t, strings.Replace(stagingPolicyYAML, "retentionDays: 60", "retentionDays: 0", 1))
		_, err := LoadPolicy("staging", bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "retentionDays")
	})
}

