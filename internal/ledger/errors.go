package ledger

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no record exists for the requested ID.
var ErrNotFound = errors.New("record not found")

// RejectionReason classifies why a candidate was rejected by validation.
type RejectionReason string

const (
	// ReasonMissingRequiredField means date or total could not be determined
	// by any extractor.
	ReasonMissingRequiredField RejectionReason = "missing_required_field"
	// ReasonOutOfRange means the total failed a sanity check.
	ReasonOutOfRange RejectionReason = "out_of_range"
)

// ValidationError rejects a submission. Field names the attribute that could
// not be recovered so the user can retry with a clearer image or enter it
// manually.
type ValidationError struct {
	Reason RejectionReason
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("validation failed (%s): %s: %s", e.Reason, e.Field, e.Detail)
	}
	return fmt.Sprintf("validation failed (%s): %s", e.Reason, e.Field)
}

// AsValidationError unwraps err into a *ValidationError if it is one.
func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
