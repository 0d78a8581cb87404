package core

type Environment string

const (
	DevelopmentEnv Environment = "development"
	ProductionEnv  Environment = "production"
)

func (e Environment) IsProduction() bool {
	return e == ProductionEnv
}

func (e Environment) IsDevelopment() bool {
	return e == DevelopmentEnv
}

// ParseEnvironment maps a flag value to an Environment, defaulting to
// production for unknown values.
func ParseEnvironment(s string) Environment {
	if Environment(s) == DevelopmentEnv {
		return DevelopmentEnv
	}
	return ProductionEnv
}
