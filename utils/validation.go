package utils

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/upb/permission-engine/models"
)

var (
	// userIDPattern is the allowlist for user identifiers
	userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

	// userIDDenylist matches characters that are rejected outright
	userIDDenylist = regexp.MustCompile("[<>'\";&|`$(){}\\[\\]\\\\]")
)

// NewValidator returns a validator that reports JSON field names and knows the
// permission-engine specific tags: userid, action and tier.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "mapstructure"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})

	_ = v.RegisterValidation("userid", func(fl validator.FieldLevel) bool {
		return IsValidUserID(fl.Field().String())
	})
	_ = v.RegisterValidation("action", func(fl validator.FieldLevel) bool {
		_, err := models.ParseAction(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("tier", func(fl validator.FieldLevel) bool {
		_, err := models.ParseResourceTier(fl.Field().String())
		return err == nil
	})

	return v
}

// IsValidUserID checks the user identifier allowlist and denylist
func IsValidUserID(s string) bool {
	return !userIDDenylist.MatchString(s) && userIDPattern.MatchString(s)
}

// ValidateStruct validates a struct using the given validator
func ValidateStruct(v *validator.Validate, s interface{}) error {
	if err := v.Struct(s); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewValidationError(validationErrors)
		}
		return err
	}
	return nil
}

// ValidationError wraps validation errors with structured details
type ValidationError struct {
	Message string
	Fields  map[string]string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return e.Message + ": " + e.Summary()
}

// Summary joins the field messages in a stable order
func (e *ValidationError) Summary() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, e.Fields[k])
	}
	return strings.Join(msgs, "; ")
}

// NewValidationError creates a ValidationError from validator.ValidationErrors
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	fields := make(map[string]string)
	for _, err := range errs {
		field := err.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		if field == "" {
			field = err.Field()
		}
		tag := err.Tag()

		switch tag {
		case "required", "required_if":
			fields[field] = fmt.Sprintf("%s is required", field)
		case "min":
			fields[field] = fmt.Sprintf("%s must be at least %s", field, err.Param())
		case "max":
			fields[field] = fmt.Sprintf("%s must be at most %s", field, err.Param())
		case "gt":
			fields[field] = fmt.Sprintf("%s must be greater than %s", field, err.Param())
		case "gtfield":
			fields[field] = fmt.Sprintf("%s must be greater than %s", field, err.Param())
		case "gte":
			fields[field] = fmt.Sprintf("%s must be greater than or equal to %s", field, err.Param())
		case "lte":
			fields[field] = fmt.Sprintf("%s must be less than or equal to %s", field, err.Param())
		case "oneof":
			fields[field] = fmt.Sprintf("%s must be one of: %s", field, err.Param())
		case "unique":
			fields[field] = fmt.Sprintf("%s must not contain duplicates", field)
		case "userid":
			fields[field] = fmt.Sprintf("%s contains invalid characters", field)
		case "action":
			fields[field] = fmt.Sprintf("%s is not a supported action", field)
		case "tier":
			fields[field] = fmt.Sprintf("%s is not a known resource tier", field)
		case "ip":
			fields[field] = fmt.Sprintf("%s must be a valid IPv4 or IPv6 address", field)
		case "cidr":
			fields[field] = fmt.Sprintf("%s must be a valid CIDR range", field)
		case "timezone":
			fields[field] = fmt.Sprintf("%s must be a valid IANA timezone", field)
		default:
			fields[field] = fmt.Sprintf("%s validation failed on '%s' tag", field, tag)
		}
	}

	return &ValidationError{
		Message: "Validation failed",
		Fields:  fields,
	}
}

// IsValidationError checks if an error is a ValidationError
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// GetValidationFields extracts field errors from a ValidationError
func GetValidationFields(err error) map[string]string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Fields
	}
	return nil
}
