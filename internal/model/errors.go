package model

import "errors"

var (
	// ErrInputMissing reports that a required upstream artifact is absent
	ErrInputMissing = errors.New("input missing")

	// ErrIntegrity reports mismatched or malformed persisted artifacts
	ErrIntegrity = errors.New("integrity error")

	// ErrValidation reports a record missing required fields
	ErrValidation = errors.New("validation error")
)
