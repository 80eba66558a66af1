package ports

import (
	"context"

	"github.com/eventdesk/registration-system/internal/core/domain"
)

// AuthRepository defines the persistence of users and roles.
type AuthRepository interface {
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	SetDisabled(ctx context.Context, username string, disabled bool) error
	Delete(ctx context.Context, username string) error

	FindRole(ctx context.Context, name string) (*domain.Role, error)
	UpsertRole(ctx context.Context, role domain.Role) error
}
