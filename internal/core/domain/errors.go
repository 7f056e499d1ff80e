package domain

import (
	"errors"
	"regexp"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrIndexNotFound indicates the named index has no tables.
	ErrIndexNotFound = errors.New("index not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidIdentifier indicates a name that cannot be used as a SQL identifier.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrInvalidGeo indicates a malformed coordinate, radius or bounds.
	ErrInvalidGeo = errors.New("invalid geo input")

	// ErrMissingID indicates an operation that needs a document id got none.
	ErrMissingID = errors.New("document id is required")
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// IsValidIdentifier reports whether name is safe to interpolate as a table
// or column name.
func IsValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// ValidateIdentifier returns a ValidationError when name is not a safe identifier.
func ValidateIdentifier(op, name string) error {
	if !IsValidIdentifier(name) {
		return NewValidationError(op, "unsafe identifier "+quote(name), ErrInvalidIdentifier)
	}
	return nil
}

// ValidationError is raised for bad input before storage is touched.
type ValidationError struct {
	Op  string
	Msg string
	Err error
}

// NewValidationError builds a ValidationError.
func NewValidationError(op, msg string, err error) *ValidationError {
	return &ValidationError{Op: op, Msg: msg, Err: err}
}

func (e *ValidationError) Error() string { return format("validation", e.Op, e.Msg, e.Err) }

// Unwrap returns the underlying cause.
func (e *ValidationError) Unwrap() error { return e.Err }

// SchemaError is raised when creating, dropping or migrating index tables fails.
type SchemaError struct {
	Op    string
	Index string
	Err   error
}

// NewSchemaError builds a SchemaError.
func NewSchemaError(op, index string, err error) *SchemaError {
	return &SchemaError{Op: op, Index: index, Err: err}
}

func (e *SchemaError) Error() string { return format("schema", e.Op, "index "+quote(e.Index), e.Err) }

// Unwrap returns the underlying cause.
func (e *SchemaError) Unwrap() error { return e.Err }

// StorageError is raised when a query or mutation against the backing
// engine fails. A missing index unwraps to ErrIndexNotFound.
type StorageError struct {
	Op    string
	Index string
	Err   error
}

// NewStorageError builds a StorageError.
func NewStorageError(op, index string, err error) *StorageError {
	return &StorageError{Op: op, Index: index, Err: err}
}

func (e *StorageError) Error() string { return format("storage", e.Op, "index "+quote(e.Index), e.Err) }

// Unwrap returns the underlying cause.
func (e *StorageError) Unwrap() error { return e.Err }

// IndexError is raised when processing a single document fails.
type IndexError struct {
	DocumentID string
	Err        error
}

// NewIndexError builds an IndexError.
func NewIndexError(docID string, err error) *IndexError {
	return &IndexError{DocumentID: docID, Err: err}
}

func (e *IndexError) Error() string { return format("index", "document", quote(e.DocumentID), e.Err) }

// Unwrap returns the underlying cause.
func (e *IndexError) Unwrap() error { return e.Err }

// CacheError wraps a query cache persistence failure. It never crosses the
// cache boundary; the cache logs it and degrades to a miss.
type CacheError struct {
	Op  string
	Err error
}

// NewCacheError builds a CacheError.
func NewCacheError(op string, err error) *CacheError {
	return &CacheError{Op: op, Err: err}
}

func (e *CacheError) Error() string { return format("cache", e.Op, "", e.Err) }

// Unwrap returns the underlying cause.
func (e *CacheError) Unwrap() error { return e.Err }

func format(kind, op, msg string, err error) string {
	s := kind + " error"
	if op != "" {
		s += " (" + op + ")"
	}
	if msg != "" {
		s += ": " + msg
	}
	if err != nil {
		s += ": " + err.Error()
	}
	return s
}

func quote(s string) string { return `"` + s + `"` }
