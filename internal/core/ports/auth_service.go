package ports

import (
	"context"

	"github.com/eventdesk/registration-system/internal/core/domain"
)

// CreateUserInput carries the data for an admin-created user account.
type CreateUserInput struct {
	Username string
	Password string
	Email    string
	Role     string
}

// AuthService manages users, login and role permissions.
type AuthService interface {
	CreateUser(ctx context.Context, input CreateUserInput) (*domain.User, error)
	Login(ctx context.Context, username, password string) (string, *domain.User, error)
	DisableUser(ctx context.Context, username string) error
	DeleteUser(ctx context.Context, username string) error
	Permissions(ctx context.Context, role string) (domain.PermissionSet, error)
	// Authorize fails with ErrUnauthorized for deleted users, ErrUserDisabled for
	// disabled ones and ErrForbidden when the user's role lacks perm.
	Authorize(ctx context.Context, username string, perm domain.Permission) error
}
