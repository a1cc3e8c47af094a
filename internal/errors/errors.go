// Package errors provides the engine's error taxonomy: typed sentinel
// errors that handlers and callers match with errors.Is / errors.As.
package errors

import "fmt"

// ErrNotFound represents a "not found" error.
// Use when a requested record or collection doesn't exist.
var ErrNotFound = &NotFoundError{}

// NotFoundError is a sentinel error for records that are not found.
type NotFoundError struct {
	Collection string
	ID         string
	Message    string
}

// NewNotFoundError creates a NotFoundError for a record in a collection.
func NewNotFoundError(collection, id string) *NotFoundError {
	return &NotFoundError{Collection: collection, ID: id}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Collection != "" || e.ID != "" {
		return fmt.Sprintf("record %q not found in collection %q", e.ID, e.Collection)
	}

	return "record not found"
}

// Is implements the error interface for error comparison.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// ErrDuplicateID represents an insert with an id that already exists.
// Callers must delete first to replace; there is no implicit upsert.
var ErrDuplicateID = &DuplicateIDError{}

// DuplicateIDError is a sentinel error for duplicate record ids.
type DuplicateIDError struct {
	Collection string
	ID         string
}

// NewDuplicateIDError creates a DuplicateIDError.
func NewDuplicateIDError(collection, id string) *DuplicateIDError {
	return &DuplicateIDError{Collection: collection, ID: id}
}

// Error implements the error interface.
func (e *DuplicateIDError) Error() string {
	if e.Collection != "" || e.ID != "" {
		return fmt.Sprintf("record %q already exists in collection %q", e.ID, e.Collection)
	}

	return "record already exists"
}

// Is implements the error interface for error comparison.
func (e *DuplicateIDError) Is(target error) bool {
	_, ok := target.(*DuplicateIDError)
	return ok
}

// ErrDimensionMismatch represents a vector whose length disagrees with the
// collection's configured embedding dimension.
var ErrDimensionMismatch = &DimensionMismatchError{}

// DimensionMismatchError is a sentinel error for dimension mismatches.
type DimensionMismatchError struct {
	Collection string
	Want       int
	Got        int
}

// NewDimensionMismatchError creates a DimensionMismatchError.
func NewDimensionMismatchError(collection string, want, got int) *DimensionMismatchError {
	return &DimensionMismatchError{Collection: collection, Want: want, Got: got}
}

// Error implements the error interface.
func (e *DimensionMismatchError) Error() string {
	if e.Want != 0 || e.Got != 0 {
		return fmt.Sprintf("collection %q expects dimension %d, got %d", e.Collection, e.Want, e.Got)
	}

	return "embedding dimension mismatch"
}

// Is implements the error interface for error comparison.
func (e *DimensionMismatchError) Is(target error) bool {
	_, ok := target.(*DimensionMismatchError)
	return ok
}

// ErrEmptyMatrix represents a token matrix with zero rows passed to the
// scorer. Returned instead of a zero score, which would be ambiguous with a
// legitimate low score.
var ErrEmptyMatrix = &EmptyMatrixError{}

// EmptyMatrixError is a sentinel error for empty token matrices.
type EmptyMatrixError struct {
	Side string // "query" or "candidate"
}

// NewEmptyMatrixError creates an EmptyMatrixError for the given side.
func NewEmptyMatrixError(side string) *EmptyMatrixError {
	return &EmptyMatrixError{Side: side}
}

// Error implements the error interface.
func (e *EmptyMatrixError) Error() string {
	if e.Side != "" {
		return fmt.Sprintf("%s token matrix has zero rows", e.Side)
	}

	return "token matrix has zero rows"
}

// Is implements the error interface for error comparison.
func (e *EmptyMatrixError) Is(target error) bool {
	_, ok := target.(*EmptyMatrixError)
	return ok
}

// ErrEncode represents a codec encode failure (non-finite values under a
// policy that disallows them, or a malformed matrix).
var ErrEncode = &EncodeError{}

// EncodeError is a sentinel error for codec encode failures.
type EncodeError struct {
	Message string
}

// NewEncodeError creates an EncodeError with a message.
func NewEncodeError(message string) *EncodeError {
	return &EncodeError{Message: message}
}

// Error implements the error interface.
func (e *EncodeError) Error() string {
	if e.Message != "" {
		return "encode: " + e.Message
	}

	return "encode error"
}

// Is implements the error interface for error comparison.
func (e *EncodeError) Is(target error) bool {
	_, ok := target.(*EncodeError)
	return ok
}

// ErrDecode represents blob corruption: a malformed header or a declared
// shape that disagrees with the decompressed payload.
var ErrDecode = &DecodeError{}

// DecodeError is a sentinel error for codec decode failures.
type DecodeError struct {
	Message string
}

// NewDecodeError creates a DecodeError with a message.
func NewDecodeError(message string) *DecodeError {
	return &DecodeError{Message: message}
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Message != "" {
		return "decode: " + e.Message
	}

	return "decode error"
}

// Is implements the error interface for error comparison.
func (e *DecodeError) Is(target error) bool {
	_, ok := target.(*DecodeError)
	return ok
}

// ErrDeadlineExceeded represents a query that ran out of time budget.
// Partial results, when any are safely final, travel alongside this error
// and are explicitly marked partial, never silently truncated.
var ErrDeadlineExceeded = &DeadlineExceededError{}

// DeadlineExceededError is a sentinel error for exhausted query deadlines.
type DeadlineExceededError struct {
	Stage string // "stage1" or "stage2"
}

// NewDeadlineExceededError creates a DeadlineExceededError for a stage.
func NewDeadlineExceededError(stage string) *DeadlineExceededError {
	return &DeadlineExceededError{Stage: stage}
}

// Error implements the error interface.
func (e *DeadlineExceededError) Error() string {
	if e.Stage != "" {
		return "query deadline exceeded during " + e.Stage
	}

	return "query deadline exceeded"
}

// Is implements the error interface for error comparison.
func (e *DeadlineExceededError) Is(target error) bool {
	_, ok := target.(*DeadlineExceededError)
	return ok
}
