package domain

import (
	"strconv"

	"github.com/google/uuid"
)

// ID is a packed, non-negative target or constraint collection identifier.
type ID int32

// MaxID is the largest identifier representable below the sign bit.
const MaxID ID = 1<<31 - 1

// NewID generates a UUIDv7 string for constraint records.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FormatID converts an identifier to its decimal string representation.
func FormatID(id ID) string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseID converts a decimal string back to an identifier.
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, ErrValidation("identifier %d is negative", n)
	}
	return ID(n), nil
}
