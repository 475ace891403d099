package config

import (
	"errors"
	"fmt"

	"github.com/dshills/cpptasks/internal/config/loader"
)

// Errors returned by configuration operations.
var (
	// ErrInvalidValue indicates a setting holds a value outside its domain.
	ErrInvalidValue = errors.New("invalid setting value")

	// ErrTypeMismatch indicates the value type doesn't match the expected type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrClosed indicates the Config was closed.
	ErrClosed = errors.New("config closed")
)

// ParseError represents an error while parsing a settings file.
type ParseError = loader.ParseError

// ValidationError describes a setting that could not be decoded.
type ValidationError struct {
	// Path is the dot-separated setting path.
	Path string
	// Value is the offending value.
	Value any
	// Err is ErrInvalidValue or ErrTypeMismatch.
	Err error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("setting %s: %v (got %v)", e.Path, e.Err, e.Value)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}
