package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator validates configuration values using go-playground/validator
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	v := validator.New()

	v.RegisterValidation("provider", validateProvider)
	v.RegisterValidation("notify_driver", validateNotifyDriver)
	v.RegisterValidation("log_format", validateLogFormat)
	v.RegisterValidation("glob_pattern", validateGlobPattern)

	return &Validator{
		validate: v,
	}
}

// Validate validates a complete configuration
func (v *Validator) Validate(config *Config) error {
	if config.Version == "" {
		config.Version = "1.0"
	}

	if err := v.validate.Struct(config); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			e := validationErrors[0]
			return ValidationError{
				Field:   e.Namespace(),
				Message: fmt.Sprintf("validation failed on tag '%s' with value '%v'", e.Tag(), e.Value()),
				Value:   e.Value(),
			}
		}
		return err
	}

	return nil
}

func validateProvider(fl validator.FieldLevel) bool {
	return slices.Contains([]string{ProviderAnthropic, ProviderOpenRouter}, fl.Field().String())
}

func validateNotifyDriver(fl validator.FieldLevel) bool {
	return slices.Contains([]string{NotifyMemory, NotifyPostgres}, fl.Field().String())
}

func validateLogFormat(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return slices.Contains([]string{"json", "text"}, value)
}

// validateGlobPattern accepts filepath.Match globs and /regex/ patterns
func validateGlobPattern(fl validator.FieldLevel) bool {
	pattern := fl.Field().String()
	if pattern == "" {
		return false
	}
	if isRegexPattern(pattern) {
		_, err := regexp.Compile(pattern[1 : len(pattern)-1])
		return err == nil
	}
	_, err := filepath.Match(pattern, "")
	return err == nil
}

func isRegexPattern(pattern string) bool {
	return len(pattern) > 1 && strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/")
}
