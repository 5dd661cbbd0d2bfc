package blocklist

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAddress   = errors.New("blocklist: invalid address")
	ErrUnknownPortGroup = errors.New("blocklist: unknown port group")
	ErrUnknownReason    = errors.New("blocklist: unknown reason")
)

// PersistenceError reports a failed load or save. The in-memory list is left
// as it was before the failing call.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("blocklist: %s records: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
