package model

import (
	"errors"
	"fmt"
)

const (
	FlagNotFoundErrorCode       = "FLAG_NOT_FOUND"
	InvalidFlagErrorCode        = "INVALID_FLAG"
	InsufficientVariantsErrCode = "INSUFFICIENT_VARIANTS"
)

var (
	ErrFlagNotFound         = errors.New(FlagNotFoundErrorCode)
	ErrInvalidFlag          = errors.New(InvalidFlagErrorCode)
	ErrInsufficientVariants = errors.New(InsufficientVariantsErrCode)
)

// ConfigurationError is returned by mutations that reference a flag which does not exist
// or that carry an unusable definition.
type ConfigurationError struct {
	FlagID string
	Err    error
}

func NewFlagNotFound(flagID string) *ConfigurationError {
	return &ConfigurationError{FlagID: flagID, Err: ErrFlagNotFound}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for flag %q: %s", e.FlagID, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ValidationError is returned when an experiment cannot be analysed.
type ValidationError struct {
	FlagID string
	Err    error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("validation error for flag %q: %s", e.FlagID, e.Err)
	}
	return fmt.Sprintf("validation error for flag %q: %s: %s", e.FlagID, e.Err, e.Detail)
}

func (e *ValidationError) Unwrap() error { return e.Err }
