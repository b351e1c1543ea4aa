package models

import "fmt"

// ValidationError reports a malformed or incomplete draft field. It is
// surfaced per item and is never fatal to a batch.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
