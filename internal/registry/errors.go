package registry

import (
	"errors"
	"fmt"
)

// Error kinds. Callers branch on these with errors.Is and nothing else.
var (
	ErrCreationFailed = errors.New("registry entry creation failed")
	ErrFetchFailed    = errors.New("registry entry fetch failed")
	ErrRemoveFailed   = errors.New("registry entry removal failed")
)

// Error is returned by Service for every store failure.
//
// Unwrap yields the kind only. The store diagnostic stays in Cause so it can be
// logged without becoming part of the error chain.
type Error struct {
	Kind  error
	Op    string
	Entry Entry
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Kind }

// Cause returns the store diagnostic behind err, or err itself when it is not
// a registry error.
func Cause(err error) error {
	var re *Error
	if errors.As(err, &re) && re.Cause != nil {
		return re.Cause
	}
	return err
}
