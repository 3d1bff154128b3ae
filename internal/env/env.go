// Package env resolves the deployment environment.
package env

import (
	"os"
	"strings"

	"github.com/ekisa-team/rkbackend/internal/envvar"
)

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
	Test        Environment = "test"
)

// FromEnv reads the environment from RKBACKEND_ENV. Unknown or empty
// values mean development.
func FromEnv() Environment {
	return Parse(os.Getenv(envvar.RKBackendEnv))
}

// Parse maps a string to an Environment.
func Parse(s string) Environment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prod", "production":
		return Production
	case "test", "testing":
		return Test
	default:
		return Development
	}
}

// IsProduction reports whether e is Production.
func (e Environment) IsProduction() bool {
	return e == Production
}

func (e Environment) String() string {
	return string(e)
}
