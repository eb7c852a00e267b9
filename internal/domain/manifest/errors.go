package manifest

import (
	"errors"
	"fmt"
)

// Validation errors.
var (
	ErrNotObject            = errors.New("manifest must be an object")
	ErrMissingField         = errors.New("field must be a non-empty string")
	ErrInvalidTier          = errors.New("tier must be an integer between 1 and 3")
	ErrPermissionsRequired  = errors.New("tier 2 and 3 plugins must declare permissions")
	ErrPermissionsForbidden = errors.New("tier 1 plugins must not declare permissions")
	ErrInvalidID            = errors.New("id must be a lowercase slug")
	ErrInvalidVersion       = errors.New("version must be valid semver")
	ErrIncompatibleRuntime  = errors.New("plugin requires a newer runtime")
	ErrUnsupportedFormat    = errors.New("unsupported manifest format")
)

// ValidationError reports the first manifest invariant that failed.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid manifest: %v", e.Err)
	}
	return fmt.Sprintf("invalid manifest: %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}
