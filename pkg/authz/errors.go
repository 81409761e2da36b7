package authz

import (
	"errors"
	"fmt"
)

const ErrorCodeForbidden = "AUTHZ_FORBIDDEN"

// ForbiddenError is returned for requests denied in enforce mode.
type ForbiddenError struct {
	Code    string
	Subject string
	Domain  string
	Object  string
	Action  string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("permission denied: %s may not %s %s", e.Subject, e.Action, e.Object)
}

// IsForbidden reports whether err is, or wraps, a ForbiddenError.
func IsForbidden(err error) bool {
	var fe *ForbiddenError
	return errors.As(err, &fe)
}

// forbiddenError builds a standardized error for denied policies.
func forbiddenError(req Request) *ForbiddenError {
	return &ForbiddenError{
		Code:    ErrorCodeForbidden,
		Subject: req.Subject,
		Domain:  req.Domain,
		Object:  req.Object,
		Action:  req.Action,
	}
}

// configError standardizes configuration validation errors.
func configError(msg string, args ...any) error {
	return fmt.Errorf("authz: "+msg, args...)
}
