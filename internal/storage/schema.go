package storage

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultAllowedSchemas are the schema names accepted without extra configuration.
var DefaultAllowedSchemas = []string{"raw", "analytics", "staging", "public"}

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Schemas names the source and destination schemas.
// Table names are fixed; only schemas are configurable.
type Schemas struct {
	Raw       string
	Analytics string
}

// Validate checks both schema names against the allow-list.
// extra extends DefaultAllowedSchemas.
func (s Schemas) Validate(extra ...string) error {
	for _, name := range []string{s.Raw, s.Analytics} {
		if err := ValidateSchema(name, extra...); err != nil {
			return err
		}
	}
	return nil
}

// ValidateSchema checks a schema name against the allow-list and identifier rules.
func ValidateSchema(name string, extra ...string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q is not a valid identifier", ErrInvalidSchema, name)
	}
	for _, allowed := range DefaultAllowedSchemas {
		if name == allowed {
			return nil
		}
	}
	for _, allowed := range extra {
		if strings.TrimSpace(allowed) == name {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidSchema, name)
}
