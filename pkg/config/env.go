package config

// Environment constants
const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// IsProductionLike reports whether env is staging or production.
func IsProductionLike(env string) bool {
	return env == EnvStaging || env == EnvProduction
}
