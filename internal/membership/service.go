package membership

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the membership service.
type Service interface {
	RegisterMember(ctx context.Context, email, name, password string, groupID uuid.UUID) (*Member, error)
	Authenticate(ctx context.Context, email, password string) (*Member, string, error)
	GetMember(ctx context.Context, id uuid.UUID) (*Member, error)
	DeactivateMember(ctx context.Context, id uuid.UUID) error
}
