package utils

import "github.com/google/uuid"

// NewID returns a random client identity.
func NewID() string {
	return uuid.NewString()
}
