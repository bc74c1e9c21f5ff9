// Package domain defines core types, interfaces, and errors for the metadata store.
package domain

import (
	"fmt"
	"strings"
)

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input or configuration.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// DuplicateIdentifierError indicates that an identifier is already held by a
// live object. Allocation paths retry on it; everything else surfaces it.
type DuplicateIdentifierError struct {
	ID ID
}

func (e *DuplicateIdentifierError) Error() string {
	return fmt.Sprintf("identifier %d is already in use", e.ID)
}

// IDSpaceExhaustedError indicates that every number of an identifier level is
// in use. The bit widths must be reconfigured.
type IDSpaceExhaustedError struct {
	Level  TargetKind
	Parent ID
}

func (e *IDSpaceExhaustedError) Error() string {
	if e.Level == KindSchema {
		return "no free schema identifier left"
	}
	return fmt.Sprintf("no free %s identifier left below %d", e.Level, e.Parent)
}

// AmbiguousNameError indicates that a by-name lookup matched more than one entity.
type AmbiguousNameError struct {
	Kind  TargetKind
	Name  string
	Count int
}

func (e *AmbiguousNameError) Error() string {
	return fmt.Sprintf("%s name %q is ambiguous (%d matches)", e.Kind, e.Name, e.Count)
}

// ScopeTargetNotInStoreError indicates that a constraint collection scope
// names targets the store does not know.
type ScopeTargetNotInStoreError struct {
	IDs []ID
}

func (e *ScopeTargetNotInStoreError) Error() string {
	return fmt.Sprintf("scope targets not in store: %s", joinIDs(e.IDs))
}

// ConstraintTargetsNotInStoreError indicates that a constraint references
// targets the store does not know.
type ConstraintTargetsNotInStoreError struct {
	IDs []ID
}

func (e *ConstraintTargetsNotInStoreError) Error() string {
	return fmt.Sprintf("constraint targets not in store: %s", joinIDs(e.IDs))
}

// NoStoreLocationError indicates a flush without a configured destination.
type NoStoreLocationError struct{}

func (e *NoStoreLocationError) Error() string {
	return "metadata store has no store location configured"
}

// PartialFailureError reports a multi-step removal or write that was only
// partially applied. Removed lists the identifiers that are gone.
type PartialFailureError struct {
	Op      string
	Removed []ID
	Err     error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s partially applied (removed %s): %v", e.Op, joinIDs(e.Removed), e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

// NoSerializerRegisteredError indicates that no serializer handles a constraint kind.
type NoSerializerRegisteredError struct {
	Kind string
}

func (e *NoSerializerRegisteredError) Error() string {
	return fmt.Sprintf("no serializer registered for constraint kind %q", e.Kind)
}

// KeyNotFoundError indicates a missing location property.
type KeyNotFoundError struct {
	Key string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("location has no property %q", e.Key)
}

func joinIDs(ids []ID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = FormatID(id)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
