package membership

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("member not found")
	ErrUnauthorized = errors.New("invalid credentials")
	ErrRateLimited  = errors.New("rate limit exceeded")
)

// Member is one person in a household group.
type Member struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	GroupID   uuid.UUID `json:"group_id"`
	Status    string    `json:"status"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Credential holds a member's login secret. Never serialized.
type Credential struct {
	MemberID     uuid.UUID `json:"member_id"`
	PasswordHash string    `json:"-"`
	Salt         string    `json:"-"`
}

// MemberRegisteredEvent is journaled when a new member joins a group.
type MemberRegisteredEvent struct {
	ID      uuid.UUID `json:"id"`
	Email   string    `json:"email"`
	Name    string    `json:"name"`
	GroupID uuid.UUID `json:"group_id"`
}

// MemberDeactivatedEvent is journaled when a member leaves the group.
type MemberDeactivatedEvent struct {
	ID uuid.UUID `json:"id"`
}
