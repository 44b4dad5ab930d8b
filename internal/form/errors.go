package form

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingBackend is returned by New without a reactivity backend.
	ErrMissingBackend = errors.New("form: reactivity backend is required")

	// ErrMissingValidator is returned by New without a validator.
	ErrMissingValidator = errors.New("form: validator is required")

	// ErrInvalidPath is returned when props resolve to an empty path.
	ErrInvalidPath = errors.New("form: invalid field path")

	// ErrKindMismatch is returned when a path is already registered with
	// another node kind.
	ErrKindMismatch = errors.New("form: path registered with another kind")

	// ErrDisposed is returned by operations on a disposed form.
	ErrDisposed = errors.New("form: disposed")
)

// Feedback is the validation feedback of one field.
type Feedback struct {
	Path     string   `json:"path"`
	Messages []string `json:"messages"`
}

// FeedbackError aggregates validation errors and warnings of a form. It is
// returned by Validate and Submit when at least one field has errors.
type FeedbackError struct {
	Errors   []Feedback
	Warnings []Feedback
}

func (e *FeedbackError) Error() string {
	paths := make([]string, len(e.Errors))
	for i, fb := range e.Errors {
		paths[i] = fb.Path
	}
	return fmt.Sprintf("form: validation failed for %s", strings.Join(paths, ", "))
}

// Paths returns the paths that have errors, in form order.
func (e *FeedbackError) Paths() []string {
	paths := make([]string, len(e.Errors))
	for i, fb := range e.Errors {
		paths[i] = fb.Path
	}
	return paths
}

// IsFeedbackError reports whether err wraps a FeedbackError.
func IsFeedbackError(err error) bool {
	var fe *FeedbackError
	return errors.As(err, &fe)
}

// AsFeedbackError extracts the FeedbackError wrapped by err.
func AsFeedbackError(err error) (*FeedbackError, bool) {
	var fe *FeedbackError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
