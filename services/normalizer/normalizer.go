// Package normalizer turns raw permission-check payloads into typed access requests.
package normalizer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/upb/permission-engine/models"
	"github.com/upb/permission-engine/services"
	"github.com/upb/permission-engine/utils"
)

// Wire field names of the request object
const (
	fieldUserID       = "userId"
	fieldAction       = "action"
	fieldResourceType = "resourceType"
	fieldResourceID   = "resourceId"
	fieldClientIP     = "clientIp"
	fieldTimestamp    = "timestamp"
)

var knownFields = []string{fieldUserID, fieldAction, fieldResourceType, fieldResourceID, fieldClientIP, fieldTimestamp}

// input holds the string form of every known field before typing
type input struct {
	UserID       string `json:"userId" validate:"required,max=100,userid"`
	Action       string `json:"action" validate:"omitempty,action"`
	ResourceType string `json:"resourceType" validate:"max=100"`
	ResourceID   string `json:"resourceId" validate:"max=1024"`
	ClientIP     string `json:"clientIp" validate:"omitempty,ip"`
	Timestamp    string `json:"timestamp"`
}

// localTimestamp is an ISO-8601 date-time without a UTC offset
const localTimestamp = "2006-01-02T15:04:05.999999999"

// Normalizer parses and validates permission-check requests
type Normalizer struct {
	validate *validator.Validate
	now      func() time.Time
	location *time.Location
}

// New creates a Normalizer. A nil clock uses time.Now. Timestamps without a
// UTC offset are interpreted in loc, or UTC when loc is nil.
func New(now func() time.Time, loc *time.Location) *Normalizer {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{
		validate: utils.NewValidator(),
		now:      now,
		location: loc,
	}
}

// Option adjusts a single Normalize call
type Option func(*options)

type options struct {
	fallbackClientIP string
}

// WithFallbackClientIP supplies the address used when the payload has no clientIp,
// typically the transport peer address.
func WithFallbackClientIP(ip string) Option {
	return func(o *options) {
		o.fallbackClientIP = ip
	}
}

// Normalize converts raw JSON into an AccessRequest.
// Payloads that are not a JSON object yield a malformed_input error; field level
// problems yield a validation error carrying per-field messages.
func (n *Normalizer) Normalize(raw []byte, opts ...Option) (models.AccessRequest, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	fields, err := decodeObject(raw)
	if err != nil {
		return models.AccessRequest{}, err
	}

	in, metadata, typeErrs := splitFields(fields)
	if len(typeErrs) > 0 {
		return models.AccessRequest{}, validationError(typeErrs)
	}

	if in.ClientIP == "" {
		in.ClientIP = o.fallbackClientIP
	}

	if err := utils.ValidateStruct(n.validate, &in); err != nil {
		if fieldErrs := utils.GetValidationFields(err); fieldErrs != nil {
			return models.AccessRequest{}, validationError(fieldErrs)
		}
		return models.AccessRequest{}, services.WrapInternal("request validation failed", err)
	}

	req := models.AccessRequest{
		UserID:       in.UserID,
		Action:       models.ActionTest,
		ResourceType: in.ResourceType,
		ResourceID:   in.ResourceID,
		Metadata:     metadata,
	}

	if in.Action != "" {
		// validated above
		req.Action, _ = models.ParseAction(in.Action)
	}

	if in.ClientIP != "" {
		addr, _ := netip.ParseAddr(in.ClientIP)
		req.ClientIP = addr.Unmap().String()
	}

	if in.Timestamp == "" {
		req.RequestTimestamp = n.now()
	} else {
		ts, err := n.parseTimestamp(in.Timestamp)
		if err != nil {
			return models.AccessRequest{}, validationError(map[string]string{
				fieldTimestamp: fieldTimestamp + " must be an ISO-8601 date-time",
			})
		}
		req.RequestTimestamp = ts
	}

	return req, nil
}

func (n *Normalizer) parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	return time.ParseInLocation(localTimestamp, s, n.location)
}

func decodeObject(raw []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, services.WrapMalformed("request body is empty", nil)
	}
	if trimmed[0] != '{' {
		return nil, services.WrapMalformed("request body is not a JSON object", nil)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, services.WrapMalformed(fmt.Sprintf("invalid JSON at offset %d", syntaxErr.Offset), err)
		}
		return nil, services.WrapMalformed("request body is not a JSON object", err)
	}
	return fields, nil
}

// splitFields types the known fields as strings and collects the rest as metadata.
// A JSON null is treated as an absent field.
func splitFields(fields map[string]json.RawMessage) (input, map[string]any, map[string]string) {
	var in input
	typeErrs := make(map[string]string)

	targets := map[string]*string{
		fieldUserID:       &in.UserID,
		fieldAction:       &in.Action,
		fieldResourceType: &in.ResourceType,
		fieldResourceID:   &in.ResourceID,
		fieldClientIP:     &in.ClientIP,
		fieldTimestamp:    &in.Timestamp,
	}

	for _, name := range knownFields {
		value, ok := fields[name]
		if !ok || isNull(value) {
			continue
		}
		if err := json.Unmarshal(value, targets[name]); err != nil {
			typeErrs[name] = name + " must be a string"
		}
	}
	if _, present := typeErrs[fieldAction]; !present && in.Action == "" && hasValue(fields, fieldAction) {
		typeErrs[fieldAction] = fieldAction + " is not a supported action"
	}

	var metadata map[string]any
	for name, value := range fields {
		if _, known := targets[name]; known {
			continue
		}
		var v any
		if err := json.Unmarshal(value, &v); err != nil {
			continue
		}
		if metadata == nil {
			metadata = make(map[string]any)
		}
		metadata[name] = v
	}

	return in, metadata, typeErrs
}

func hasValue(fields map[string]json.RawMessage, name string) bool {
	v, ok := fields[name]
	return ok && !isNull(v)
}

func isNull(v json.RawMessage) bool {
	return string(bytes.TrimSpace(v)) == "null"
}

func validationError(fields map[string]string) error {
	ve := &utils.ValidationError{Message: "Validation failed", Fields: fields}
	return services.NewValidationError(strings.TrimPrefix(ve.Error(), "Validation failed: "), fields)
}
