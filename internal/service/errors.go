package service

import (
	"errors"

	"github.com/google/uuid"
)

// Errors shared by both lifecycle managers.
var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrUnauthorized           = errors.New("actor lacks privilege for this transition")
)

// Actor identifies who is driving a transition. Staff comes from the
// identity provider's claim; the services never look at credentials.
type Actor struct {
	UserID uuid.UUID
	Staff  bool
}
