package service

import (
	"errors"
	"fmt"
)

// InsufficientDataError halts a batch that cannot be scored at all.
type InsufficientDataError struct {
	Reason string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %s", e.Reason)
}

// ConfigurationError is returned at engine construction when a setting is invalid.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// ErrModelBudgetExceeded is returned by outlier detectors that stop fitting
// because their time or iteration budget ran out.
var ErrModelBudgetExceeded = errors.New("model fit exceeded budget")

// IsHalting reports whether err stops a batch, as opposed to degrading one signal source.
func IsHalting(err error) bool {
	var insufficient *InsufficientDataError
	var cfgErr *ConfigurationError
	return errors.As(err, &insufficient) || errors.As(err, &cfgErr)
}
