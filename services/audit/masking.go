package audit

import (
	"regexp"
	"strings"
)

// MaskedValue replaces sensitive values in audit details
const MaskedValue = "***MASKED***"

// DefaultSensitiveKeys are matched case-insensitively as substrings of field names
var DefaultSensitiveKeys = []string{"password", "token", "key", "secret", "credential"}

// secretValuePatterns catch secrets stored under innocuous field names
var secretValuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]+\.eyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\b`), // JWT
	regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9_\-\.=]{20,}`),
	regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`),
	regexp.MustCompile(`-----BEGIN\s+(?:RSA\s+|OPENSSH\s+|EC\s+|DSA\s+)?PRIVATE\s+KEY-----`),
	regexp.MustCompile(`\bAIza[0-9A-Za-z\-_]{35}\b`),              // GCP API key
	regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`),           // GitHub tokens
	regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`),         // Slack tokens
	regexp.MustCompile(`\b(?:sk|rk)_(?:live|test)_[0-9a-zA-Z]{24,}\b`), // Stripe keys
	regexp.MustCompile(`(?i)\b(?:postgres|postgresql|mysql|mongodb|redis)://[^\s'"]+:[^\s'"]+@[^\s'"]+`),
}

// Masker redacts sensitive fields from audit details
type Masker struct {
	keys []string
}

// NewMasker creates a masker for the given key fragments, or the defaults when none are given
func NewMasker(keys ...string) *Masker {
	if len(keys) == 0 {
		keys = DefaultSensitiveKeys
	}
	lowered := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}
	return &Masker{keys: lowered}
}

// IsSensitiveKey reports whether a field name matches the denylist
func (m *Masker) IsSensitiveKey(name string) bool {
	lower := strings.ToLower(name)
	for _, k := range m.keys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// LooksLikeSecret reports whether a string value matches a known secret format
func LooksLikeSecret(s string) bool {
	for _, p := range secretValuePatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// Mask returns a deep copy of details with sensitive keys and secret-looking
// values replaced. The input is not modified.
func (m *Masker) Mask(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		if m.IsSensitiveKey(k) {
			out[k] = MaskedValue
			continue
		}
		out[k] = m.maskValue(v)
	}
	return out
}

func (m *Masker) maskValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return m.Mask(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = m.maskValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			if LooksLikeSecret(item) {
				out[i] = MaskedValue
			} else {
				out[i] = item
			}
		}
		return out
	case string:
		if LooksLikeSecret(val) {
			return MaskedValue
		}
		return val
	default:
		return v
	}
}

// HasSensitiveFields reports whether details carry any field the masker would
// redact, at any depth. Requests carrying such fields are flagged suspicious.
func (m *Masker) HasSensitiveFields(details map[string]any) bool {
	for k, v := range details {
		if m.IsSensitiveKey(k) || m.hasSensitiveValue(v) {
			return true
		}
	}
	return false
}

func (m *Masker) hasSensitiveValue(v any) bool {
	switch val := v.(type) {
	case map[string]any:
		return m.HasSensitiveFields(val)
	case []any:
		for _, item := range val {
			if m.hasSensitiveValue(item) {
				return true
			}
		}
	case string:
		return LooksLikeSecret(val)
	}
	return false
}
