package inspector

import (
	"errors"
	"fmt"
)

// ErrInvalidName is matched by InvalidNameError with errors.Is.
var ErrInvalidName = errors.New("invalid database name")

// ErrMultipleStatements is reported for query text holding more than one statement.
var ErrMultipleStatements = errors.New("you can only execute one statement at a time")

// InvalidNameError is returned when a requested database name has no usable characters.
type InvalidNameError struct {
	Name string // name as requested, before sanitizing
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid database name %q, use letters, digits, '_' or '-'", e.Name)
}

// Is reports ErrInvalidName as the error kind.
func (e *InvalidNameError) Is(target error) bool {
	return target == ErrInvalidName
}

// StatementError wraps an error reported by the engine for a submitted statement.
type StatementError struct {
	Statement string // statement text as submitted
	Err       error  // engine error
}

func (e *StatementError) Error() string {
	return e.Err.Error()
}

func (e *StatementError) Unwrap() error {
	return e.Err
}
