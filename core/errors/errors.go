// Package errors holds the error kinds shared by the encoder, the converter
// and the chord tools. Each typed error unwraps to one of the sentinels below
// so callers can branch with errors.Is and map kinds to exit codes.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: a source file, system directory, bundle entry or table.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput: bad dots, bad flags, undecodable YAML or key scripts.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEmpty: a conversion found no source files.
	ErrEmpty = errors.New("empty")
	// ErrUnsupported: a bundle that is not tar+xz.
	ErrUnsupported = errors.New("unsupported")
)

// Wrap prefixes err with message. A nil err stays nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is is errors.Is.
func Is(err, target error) bool { return errors.Is(err, target) }

// As is errors.As.
func As(err error, target any) bool { return errors.As(err, target) }

// NotFoundError names the missing thing, e.g. Resource "source file" with
// ID "ueb/letters.yaml".
type NotFoundError struct {
	Resource string
	ID       string
	Err      error
}

// NewNotFound returns a NotFoundError with no cause.
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return e.Resource + " not found: " + e.ID
}

// Unwrap returns the cause, or ErrNotFound when there is none.
func (e *NotFoundError) Unwrap() error {
	if e.Err == nil {
		return ErrNotFound
	}
	return e.Err
}

// Is reports ErrNotFound even when Err holds an fs error.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError rejects one input value. Field is the flag, option or
// document key; Value is what was given.
type ValidationError struct {
	Field   string
	Value   string
	Message string
	Err     error
}

// NewValidation returns a ValidationError with no cause.
func NewValidation(field, value, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return "validation failed for " + e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	if e.Err == nil {
		return ErrInvalidInput
	}
	return e.Err
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// ParseError reports a document that could not be decoded. Format is
// "YAML", "JSON" or "key script".
type ParseError struct {
	Format  string
	Path    string
	Message string
	Err     error
}

// NewParse returns a ParseError with a message and no cause.
func NewParse(format, path, message string) *ParseError {
	return &ParseError{Format: format, Path: path, Message: message}
}

// WrapParse keeps the decoder's error as the cause.
func WrapParse(format, path string, err error) *ParseError {
	return &ParseError{Format: format, Path: path, Message: err.Error(), Err: err}
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
	}
	return fmt.Sprintf("failed to parse %s at %s: %s", e.Format, e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	if e.Err == nil {
		return ErrInvalidInput
	}
	return e.Err
}

// Is matches ErrInvalidInput so a bad source counts as bad input.
func (e *ParseError) Is(target error) bool { return target == ErrInvalidInput }

// IOError is a failed filesystem operation such as "read", "walk" or "rename".
type IOError struct {
	Operation string
	Path      string
	Err       error
}

// NewIO returns an IOError around err.
func NewIO(operation, path string, err error) *IOError {
	return &IOError{Operation: operation, Path: path, Err: err}
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
