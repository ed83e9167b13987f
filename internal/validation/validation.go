// Package validation checks oracle request input before it reaches the registry.
package validation

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxValidatorIDLength bounds validator ids accepted over the API.
const MaxValidatorIDLength = 128

// MaxScore is the largest score an 8-bit entry can hold.
const MaxScore = 255

// validatorIDRegex allows the characters seen in validator ids and public
// key hashes: letters, digits and _ - . :
var validatorIDRegex = regexp.MustCompile(`^[A-Za-z0-9_.:\-]+$`)

// IsValidValidatorID checks if a string is an acceptable validator id.
func IsValidValidatorID(id string) bool {
	return id != "" && len(id) <= MaxValidatorIDLength && validatorIDRegex.MatchString(id)
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs validators and collects their errors.
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidValidatorID checks a validator id field.
func ValidValidatorID(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if len(value) > MaxValidatorIDLength {
			return &ValidationError{Field: field, Message: "exceeds maximum length of " + strconv.Itoa(MaxValidatorIDLength)}
		}
		if !validatorIDRegex.MatchString(value) {
			return &ValidationError{Field: field, Message: "may only contain letters, digits, '_', '-', '.' and ':'"}
		}
		return nil
	}
}

// ValidScore checks that a score is present and fits in 0..255.
func ValidScore(field string, value *int) func() *ValidationError {
	return func() *ValidationError {
		if value == nil {
			return &ValidationError{Field: field, Message: "is required"}
		}
		if *value < 0 || *value > MaxScore {
			return &ValidationError{Field: field, Message: "must be between 0 and 255"}
		}
		return nil
	}
}

// ParseScore parses a decimal score in 0..255.
func ParseScore(s string) (uint8, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 8)
	if err != nil {
		return 0, ValidationErrors{{Field: "score", Message: "must be an integer between 0 and 255"}}
	}
	return uint8(v), nil
}

// ValidatorParamMiddleware validates the :validator URL parameter on routes
// that use it.
func ValidatorParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if errs := Validate(ValidValidatorID("validator", c.Param("validator"))); len(errs) > 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": errs.Error(),
				"details": errs,
			})
			return
		}
		c.Next()
	}
}
