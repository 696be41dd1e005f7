package metadata

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	numberDefault = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)
	// single quoted, quotes doubled, no backslashes or NUL
	stringDefault = regexp.MustCompile(`^'([^'\\\x00]|'')*'$`)
)

var functionDefaults = map[string]bool{
	"now()":              true,
	"current_timestamp":  true,
	"current_date":       true,
	"localtimestamp":     true,
	"gen_random_uuid()":  true,
	"uuid_generate_v4()": true,
	"uuid()":             true,
}

// ValidateDefault accepts the default expressions a field may declare: NULL,
// a number, a boolean, a single quoted string or one of a few generator
// functions. Anything else is rejected.
func ValidateDefault(expr string) error {
	s := strings.TrimSpace(expr)
	lower := strings.ToLower(s)

	switch {
	case lower == "null", lower == "true", lower == "false":
	case numberDefault.MatchString(s):
	case stringDefault.MatchString(s):
	case functionDefaults[lower]:
	default:
		return fmt.Errorf("unsupported default expression %q", expr)
	}
	return nil
}

// validateFields checks the declared defaults of an object.
func validateFields(o ObjectMetadata) error {
	for _, f := range o.Fields {
		if f.DefaultValue == nil {
			continue
		}
		if err := ValidateDefault(*f.DefaultValue); err != nil {
			return fmt.Errorf("object %s field %s: %w", o.NameSingular, f.Name, err)
		}
	}
	return nil
}
