package models

import "errors"

// Sentinel errors shared by every layer. Wrap them with fmt.Errorf("...: %w", err)
// and test with errors.Is.
var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidState       = errors.New("invalid state")
	ErrMarketNotFound     = errors.New("market not found")
	ErrForecasterNotFound = errors.New("forecaster not found")
	ErrOutOfOrder         = errors.New("timestamp precedes last recorded event")
)
