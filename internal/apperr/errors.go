// Package apperr defines the error kinds shared by the metadata store,
// the date resolver and the record layer.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrReadOnly = errors.New("handle opened read-only")
	ErrInvalid  = errors.New("invalid input")

	// ErrNoMetadata is the cause of an OpenError for a container that
	// carries no metadata section.
	ErrNoMetadata = errors.New("no metadata section")
)

// OpenError reports that a metadata container could not be opened or carries
// no metadata section. It is fatal to a single-file operation only.
type OpenError struct {
	Path   string
	Reason string
	Err    error
}

func (e *OpenError) Error() string {
	msg := fmt.Sprintf("open %s: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OpenError) Unwrap() error { return e.Err }

// FormatFailure is one attempted date layout and why it did not match.
type FormatFailure struct {
	Format string
	Err    error
}

// ParseError reports a date string that matched none of the recognised
// formats. Attempts lists every format tried, in order.
type ParseError struct {
	Input    string
	Attempts []FormatFailure
}

func (e *ParseError) Error() string {
	names := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		names[i] = a.Format
	}
	return fmt.Sprintf("unrecognised date %q (tried %s)", e.Input, strings.Join(names, ", "))
}

// Unwrap exposes the individual format failures to errors.Is/As.
func (e *ParseError) Unwrap() []error {
	out := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			out = append(out, a.Err)
		}
	}
	return out
}

// SerializeError reports that a property could not be written to the store.
type SerializeError struct {
	Path     string
	Property string
	Err      error
}

func (e *SerializeError) Error() string {
	return fmt.Sprintf("write %s to %s: %v", e.Property, e.Path, e.Err)
}

func (e *SerializeError) Unwrap() error { return e.Err }

// CloseError reports that flushing or releasing a store handle failed.
type CloseError struct {
	Path string
	Err  error
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("close %s: %v", e.Path, e.Err)
}

func (e *CloseError) Unwrap() error { return e.Err }
