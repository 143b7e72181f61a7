// Package domain contains the core business entities and interfaces.
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidUserID indicates that a user identifier is not a version-4 UUID.
var ErrInvalidUserID = errors.New("user id must be a valid UUID4 string")

// User represents a tracked browser profile. Anonymous users only carry an ID.
type User struct {
	ID        uuid.UUID
	Email     *string
	CreatedAt time.Time
	DeletedAt *time.Time
}

// ParseUserID parses s and accepts only version-4 UUIDs.
func ParseUserID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, ErrInvalidUserID
	}
	if id.Version() != 4 {
		return uuid.Nil, ErrInvalidUserID
	}
	return id, nil
}
