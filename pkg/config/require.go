package config

import "fmt"

// NonEmpty reports a missing required variable.
func NonEmpty(value, envName string) error {
	if value == "" {
		return fmt.Errorf("missing required env %s", envName)
	}
	return nil
}
