package tabula

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a keyed lookup matches no row.
	ErrNotFound = errors.New("tabula: entity not found")

	// ErrMultipleMatch is returned when a lookup that expects at most one row
	// matches several.
	ErrMultipleMatch = errors.New("tabula: more than one entity matched")

	// ErrTxStarted is returned when attempting to start a new transaction
	// within an existing transaction.
	ErrTxStarted = errors.New("tabula: cannot start a transaction within a transaction")

	// ErrTxNotStarted is returned by Commit and Rollback outside of a transaction.
	ErrTxNotStarted = errors.New("tabula: no transaction in progress")
)

// NotFoundError represents an error when an entity is not found.
type NotFoundError struct {
	label string
	id    any
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("tabula: %s not found (id=%v)", e.label, e.id)
	}
	return fmt.Sprintf("tabula: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the entity label.
func (e *NotFoundError) Label() string {
	return e.label
}

// ID returns the ID that was searched for, if available.
func (e *NotFoundError) ID() any {
	return e.id
}

// NewNotFoundError returns a new NotFoundError for the given entity type.
func NewNotFoundError(label string) *NotFoundError {
	return &NotFoundError{label: label}
}

// NewNotFoundErrorWithID returns a new NotFoundError with the ID that was searched for.
func NewNotFoundErrorWithID(label string, id any) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// MultipleMatchError is returned by single-row lookups whose filter matched
// more than one row. It signals a caller bug, not a recoverable condition.
type MultipleMatchError struct {
	label string
	count int
}

// Error returns the error string.
func (e *MultipleMatchError) Error() string {
	return fmt.Sprintf("tabula: %s lookup matched %d rows, expected at most 1", e.label, e.count)
}

// Is reports whether the target error matches ErrMultipleMatch.
func (e *MultipleMatchError) Is(err error) bool {
	return err == ErrMultipleMatch
}

// Label returns the entity label.
func (e *MultipleMatchError) Label() string {
	return e.label
}

// Count returns the number of matched rows.
func (e *MultipleMatchError) Count() int {
	return e.count
}

// NewMultipleMatchError returns a new MultipleMatchError.
func NewMultipleMatchError(label string, count int) *MultipleMatchError {
	return &MultipleMatchError{label: label, count: count}
}

// IsMultipleMatch returns true if the error is a MultipleMatchError.
func IsMultipleMatch(err error) bool {
	if err == nil {
		return false
	}
	var e *MultipleMatchError
	return errors.As(err, &e) || errors.Is(err, ErrMultipleMatch)
}

// ConstraintError represents a database constraint violation error.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e ConstraintError) Error() string {
	return fmt.Sprintf("tabula: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError returns a new ConstraintError with the given message.
func NewConstraintError(msg string, wrap error) error {
	return ConstraintError{msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e ConstraintError
	return errors.As(err, &e)
}

// ValidationError reports an input value rejected by a field validator.
// The wrapped error carries the human readable reason.
type ValidationError struct {
	Name string // Field name
	Err  error  // Underlying validation error
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("tabula: invalid value for field %q: %s", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError returns a new ValidationError for the given field.
func NewValidationError(name string, err error) *ValidationError {
	return &ValidationError{Name: name, Err: err}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e)
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error // Original error that triggered rollback
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("tabula: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "tabula: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("tabula: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the collected errors, so errors.Is and errors.As see each of them.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}

// QueryError is a driver level failure. It carries the statement that was
// being executed when the driver failed.
type QueryError struct {
	Op    string // "select" or "execute"
	Query string // Last query sent to the server
	Err   error  // Driver error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	return fmt.Sprintf("tabula: %s failed: %v\nquery: %s", e.Op, e.Err, e.Query)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError returns a new QueryError.
func NewQueryError(op, query string, err error) *QueryError {
	return &QueryError{Op: op, Query: query, Err: err}
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryError
	return errors.As(err, &e)
}

// MetadataError reports an invalid or ambiguous entity declaration.
// It is raised the first time the entity metadata is built.
type MetadataError struct {
	Entity string
	Msg    string
}

// Error returns the error string.
func (e *MetadataError) Error() string {
	return fmt.Sprintf("tabula: invalid metadata for %s: %s", e.Entity, e.Msg)
}

// NewMetadataError returns a new MetadataError with a formatted message.
func NewMetadataError(entity, format string, args ...any) *MetadataError {
	return &MetadataError{Entity: entity, Msg: fmt.Sprintf(format, args...)}
}

// IsMetadataError returns true if the error is a MetadataError.
func IsMetadataError(err error) bool {
	if err == nil {
		return false
	}
	var e *MetadataError
	return errors.As(err, &e)
}

// AssociationError is returned by many-to-many operations between two entity
// types that declare no many-to-many relation.
type AssociationError struct {
	Entity string
	Target string
}

// Error returns the error string.
func (e *AssociationError) Error() string {
	return fmt.Sprintf("tabula: no many-to-many relation between %s and %s", e.Entity, e.Target)
}

// NewAssociationError returns a new AssociationError.
func NewAssociationError(entity, target string) *AssociationError {
	return &AssociationError{Entity: entity, Target: target}
}

// IsAssociationError returns true if the error is an AssociationError.
func IsAssociationError(err error) bool {
	if err == nil {
		return false
	}
	var e *AssociationError
	return errors.As(err, &e)
}

// MethodNotAvailableError is returned when calling an accessor that the
// entity type does not define.
type MethodNotAvailableError struct {
	Entity string
	Method string
}

// Error returns the error string.
func (e *MethodNotAvailableError) Error() string {
	return fmt.Sprintf("tabula: method %q not available on %s", e.Method, e.Entity)
}

// NewMethodNotAvailableError returns a new MethodNotAvailableError.
func NewMethodNotAvailableError(entity, method string) *MethodNotAvailableError {
	return &MethodNotAvailableError{Entity: entity, Method: method}
}

// IsMethodNotAvailable returns true if the error is a MethodNotAvailableError.
func IsMethodNotAvailable(err error) bool {
	if err == nil {
		return false
	}
	var e *MethodNotAvailableError
	return errors.As(err, &e)
}

// PrivacyError represents a privacy policy violation.
type PrivacyError struct {
	Entity string // Entity type
	Op     string // Operation (query, create, update, delete)
	Err    error  // Decision returned by the policy
}

// Error returns the error string.
func (e *PrivacyError) Error() string {
	return fmt.Sprintf("tabula: privacy denied %s on %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the policy decision.
func (e *PrivacyError) Unwrap() error {
	return e.Err
}

// NewPrivacyError returns a new PrivacyError.
func NewPrivacyError(entity, op string, err error) *PrivacyError {
	return &PrivacyError{Entity: entity, Op: op, Err: err}
}

// IsPrivacyError returns true if the error is a PrivacyError.
func IsPrivacyError(err error) bool {
	if err == nil {
		return false
	}
	var e *PrivacyError
	return errors.As(err, &e)
}
