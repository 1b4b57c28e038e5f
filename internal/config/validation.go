package config

import (
	"fmt"

	foundationerrors "git.home.luguber.info/inful/arsession/internal/foundation/errors"
)

// Validate checks the configuration after defaults have been applied.
// Every failure is a ClassifiedError in the validation category.
func (c *Config) Validate() error {
	if !c.Environment.IsValid() {
		return foundationerrors.ValidationError(fmt.Sprintf("unknown environment %q", c.Environment)).
			WithContext("field", "environment").
			Build()
	}
	if c.Session.MaxRetries < 0 {
		return foundationerrors.ValidationError("max_restart_attempts cannot be negative").
			WithContext("field", "session.max_restart_attempts").
			Build()
	}
	if c.Session.RetryDelay.Duration() > c.Session.RetryMaxDelay.Duration() {
		return foundationerrors.ValidationError("retry_delay exceeds max_retry_delay").
			WithContext("field", "session.retry_delay").
			Build()
	}
	if c.Session.Options.MaxTrackedImages < 0 {
		return foundationerrors.ValidationError("max_tracked_images cannot be negative").
			WithContext("field", "session.options.max_tracked_images").
			Build()
	}
	for env := range c.Performance.Thresholds {
		if !env.IsValid() {
			return foundationerrors.ValidationError(fmt.Sprintf("thresholds declared for unknown environment %q", env)).
				WithContext("field", "performance.thresholds").
				Build()
		}
	}
	for _, env := range Environments {
		if err := c.ThresholdsFor(env).Validate(); err != nil {
			return foundationerrors.WrapError(err, foundationerrors.CategoryValidation, "invalid performance thresholds").
				WithContext("environment", string(env)).
				Build()
		}
	}
	if c.Analytics.NATS.URL != "" && c.Analytics.NATS.Subject == "" {
		return foundationerrors.ValidationError("analytics.nats.subject is required when a NATS url is set").
			WithContext("field", "analytics.nats.subject").
			Build()
	}
	return nil
}
