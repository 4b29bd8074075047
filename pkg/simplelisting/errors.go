package simplelisting

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by a Service matches exactly one of
// them through errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInternal     = errors.New("internal error")
)

// Blob store errors
var (
	ErrBlobNotFound = errors.New("blob not found")
)

// ResourceError describes a failed operation on a resource kind.
type ResourceError struct {
	Kind    string
	ID      string
	Op      string
	Field   string
	Message string
	// Err is the error category (ErrValidation, ErrConflict, ...).
	Err error
	// Cause is the underlying failure, if any. Diagnostic only.
	Cause error
}

func (e *ResourceError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Err.Error()
	}
	if e.Cause != nil && e.Message == "" {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %s", e.Op, e.Kind, e.ID, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Kind, msg)
}

func (e *ResourceError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// StorageError represents an error from a blob store backend
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed (backend: %s, key: %s): %v", e.Op, e.Backend, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ErrorCategory returns the category sentinel matched by err, or ErrInternal
// when err matches none of them.
func ErrorCategory(err error) error {
	var re *ResourceError
	if errors.As(err, &re) && re.Err != nil {
		return re.Err
	}
	for _, category := range []error{ErrValidation, ErrConflict, ErrNotFound, ErrUnauthorized, ErrForbidden} {
		if errors.Is(err, category) {
			return category
		}
	}
	return ErrInternal
}

// FieldOf returns the field named by a ResourceError in err's chain.
func FieldOf(err error) string {
	var re *ResourceError
	if errors.As(err, &re) {
		return re.Field
	}
	return ""
}

func validationError(kind, op, field, msg string) error {
	return &ResourceError{Kind: kind, Op: op, Field: field, Message: msg, Err: ErrValidation}
}

func conflictError(kind, op, field, msg string) error {
	return &ResourceError{Kind: kind, Op: op, Field: field, Message: msg, Err: ErrConflict}
}

func notFoundError(kind, op, id string) error {
	return &ResourceError{Kind: kind, Op: op, ID: id, Message: fmt.Sprintf("%s not found", kind), Err: ErrNotFound}
}

func unauthorizedError(kind, op string) error {
	return &ResourceError{Kind: kind, Op: op, Message: "authentication required", Err: ErrUnauthorized}
}

func forbiddenError(kind, op, id string) error {
	return &ResourceError{Kind: kind, Op: op, ID: id, Message: "not allowed to modify this resource", Err: ErrForbidden}
}

func internalError(kind, op, id string, cause error) error {
	return &ResourceError{Kind: kind, Op: op, ID: id, Err: ErrInternal, Cause: cause}
}
