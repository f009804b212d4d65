/*
errors.go - Sentinel errors for the delegation authority

Three caller-facing categories, none retried internally because none is
transient: not-found (missing org-scoped row), validation (malformed
input relationship), and authorization (insufficient role tier for the
requested scope). Storage failures propagate unchanged.
*/
package delegation

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrDelegateNotFound is returned when the delegate record does not
	// exist within the caller's organization.
	ErrDelegateNotFound = errors.New("delegate not found in organization")

	// ErrValidation is returned for malformed input relationships:
	// principal equal to delegate, or a window that does not start before
	// it ends.
	ErrValidation = errors.New("delegation validation failed")

	// ErrScopeForbidden is returned when the actor's role tier is
	// insufficient for the requested scope (org-wide grants require the
	// top tier).
	ErrScopeForbidden = errors.New("insufficient role for delegation scope")
)

// FieldError names one failed cross-field rule.
type FieldError struct {
	Field string
	Rule  string
}

// ValidationError aggregates failed rules and unwraps to ErrValidation so
// callers can branch with errors.Is.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	return fmt.Sprintf("%s: field %s failed rule %q",
		ErrValidation, e.Fields[0].Field, e.Fields[0].Rule)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// wrapValidator converts validator.ValidationErrors into the package's
// structured form; other errors pass through untouched.
func wrapValidator(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	ve := &ValidationError{}
	for _, fe := range verrs {
		ve.Fields = append(ve.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
	}
	return ve
}
