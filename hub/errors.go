package hub

import (
	"errors"
	"fmt"

	"github.com/gogpu/wgcore/id"
)

// ErrInvalidResource is matched by every error returned for an identifier
// that names no usable resource.
var ErrInvalidResource = errors.New("hub: invalid resource")

// InvalidResourceError reports a lookup of an identifier whose slot is
// vacant or holds an error record. For error records Cause is the failure
// that produced the record, so every later use of the identifier surfaces
// the original reason.
type InvalidResourceError struct {
	Kind  id.Kind
	ID    id.RawID
	Label string
	Cause error
}

func (e *InvalidResourceError) Error() string {
	msg := fmt.Sprintf("%s %v", e.Kind, e.ID)
	if e.Label != "" {
		msg += fmt.Sprintf(" with label %q", e.Label)
	}
	if e.Cause != nil {
		return msg + " is invalid: " + e.Cause.Error()
	}
	return msg + " is invalid"
}

// Unwrap exposes both ErrInvalidResource and the original cause.
func (e *InvalidResourceError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrInvalidResource}
	}
	return []error{ErrInvalidResource, e.Cause}
}
