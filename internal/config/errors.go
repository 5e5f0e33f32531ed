package config

import (
	"fmt"
	"strings"
)

// InvalidValueError indicates a setting with an unusable value.
type InvalidValueError struct {
	Key     string
	Value   string
	Allowed []string
}

func (e *InvalidValueError) Error() string {
	if len(e.Allowed) > 0 {
		return fmt.Sprintf("invalid %s %q: must be one of %s", e.Key, e.Value, strings.Join(e.Allowed, ", "))
	}
	return fmt.Sprintf("invalid %s %q", e.Key, e.Value)
}
