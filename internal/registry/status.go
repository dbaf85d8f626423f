package registry

import "fmt"

// AllowedStatuses are the values UpdateStatus accepts. Imports store status
// text as given.
var AllowedStatuses = []string{"Regular", "Irregular", "Cancelado", "Cancelado (i)"}

// ValidateStatus returns ErrInvalidStatus unless s is exactly one of AllowedStatuses.
func ValidateStatus(s string) error {
	for _, allowed := range AllowedStatuses {
		if s == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}
