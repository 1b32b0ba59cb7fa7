package parser

import (
	"errors"
	"fmt"
)

// FormatError indicates a file that is not a catalog file.
type FormatError struct {
	Path string
}

func (e FormatError) Error() string {
	return fmt.Sprintf("format: %q is not a catalog file", e.Path)
}

// ParseError indicates markup that could not be parsed at all.
type ParseError struct {
	Path string
	Err  error
}

func (e ParseError) Error() string {
	if e.Path == "" {
		return fmt.Errorf("parse: %w", e.Err).Error()
	}
	return fmt.Errorf("parse %s: %w", e.Path, e.Err).Error()
}

func (e ParseError) Unwrap() error {
	return e.Err
}

// ConversionError indicates a numeric field that could not be coerced.
type ConversionError struct {
	Value any
	Err   error
}

func (e ConversionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("conversion: unsupported value %v (%T)", e.Value, e.Value)
	}
	return fmt.Errorf("conversion of %q: %w", fmt.Sprint(e.Value), e.Err).Error()
}

func (e ConversionError) Unwrap() error {
	return e.Err
}

// BuildError indicates a product whose record could not be built.
type BuildError struct {
	StockCode string
	Err       error
}

func (e BuildError) Error() string {
	return fmt.Errorf("build product %s: %w", e.StockCode, e.Err).Error()
}

func (e BuildError) Unwrap() error {
	return e.Err
}

// ErrorKind returns a short label for the first catalog error kind found in err's chain.
// A BuildError wrapping a ConversionError reports "conversion".
func ErrorKind(err error) string {
	if err == nil {
		return "unknown"
	}
	var format FormatError
	if errors.As(err, &format) {
		return "format"
	}
	var conversion ConversionError
	if errors.As(err, &conversion) {
		return "conversion"
	}
	var parse ParseError
	if errors.As(err, &parse) {
		return "parse"
	}
	var build BuildError
	if errors.As(err, &build) {
		return "build"
	}
	return "other"
}
