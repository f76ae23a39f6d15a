package models

import (
	"errors"
	"time"
)

// Forecaster is an expert that submits predictions under their own identity.
type Forecaster struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks that all forecaster fields are valid.
func (f *Forecaster) Validate() error {
	if f.ID == "" {
		return errors.New("forecaster ID must not be empty")
	}
	if f.DisplayName == "" {
		return errors.New("display name must not be empty")
	}
	if f.CreatedAt.IsZero() {
		return errors.New("created at must be set")
	}
	return nil
}
