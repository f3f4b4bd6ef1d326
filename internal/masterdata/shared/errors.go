package shared

import "errors"

// Sentinels shared by the company, component and location services.
var (
	ErrNotFound      = errors.New("masterdata: not found")
	ErrDuplicate     = errors.New("masterdata: duplicate code")
	ErrValidation    = errors.New("masterdata: validation failed")
	ErrInvalidID     = errors.New("masterdata: invalid id")
	ErrRequiredField = errors.New("masterdata: required field missing")
	ErrInactive      = errors.New("masterdata: entity inactive")
)
