package config

import (
	"git.home.luguber.info/inful/arsession/internal/foundation/normalization"
)

// Environment names a deployment environment; thresholds are scoped by it.
type Environment string

const (
	EnvDevelopment Environment = "dev"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "prod"
)

// Environments lists every known environment in display order.
var Environments = []Environment{EnvDevelopment, EnvStaging, EnvProduction}

var environmentNormalizer = normalization.NewNormalizer(map[string]Environment{
	"dev":         EnvDevelopment,
	"development": EnvDevelopment,
	"staging":     EnvStaging,
	"stage":       EnvStaging,
	"prod":        EnvProduction,
	"production":  EnvProduction,
}, "")

// NormalizeEnvironment maps user input to a known environment, returning "" for unknown values.
func NormalizeEnvironment(raw string) Environment {
	return environmentNormalizer.Normalize(raw)
}

// IsValid reports whether e is one of the known environments.
func (e Environment) IsValid() bool {
	switch e {
	case EnvDevelopment, EnvStaging, EnvProduction:
		return true
	default:
		return false
	}
}
