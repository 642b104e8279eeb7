package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults; validation accepts
// both cases.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs validation that struct tags cannot express.
func validateCustomRules(cfg *Config) error {
	if cfg.Throttle.OpsPerSecond == 0 && cfg.Throttle.Burst > 0 {
		return fmt.Errorf("throttle: burst is set but ops_per_second is 0")
	}

	if cfg.Probe.Enabled && cfg.Probe.Timeout <= 0 {
		return fmt.Errorf("probe: timeout must be positive when the probe is enabled")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == 0 {
		return fmt.Errorf("metrics: port is required when metrics are enabled")
	}

	// The selected driver's options are decoded here so a bad section fails
	// at load time rather than at connect time.
	switch cfg.Driver.Type {
	case "sim":
		if _, err := decodeSimOptions(cfg.Driver.Sim); err != nil {
			return fmt.Errorf("driver.sim: %w", err)
		}
	case "local":
		if _, err := decodeLocalOptions(cfg.Driver.Local); err != nil {
			return fmt.Errorf("driver.local: %w", err)
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
