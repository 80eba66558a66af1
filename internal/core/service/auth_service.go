package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/eventdesk/registration-system/internal/core/domain"
	"github.com/eventdesk/registration-system/internal/core/ports"
)

const minPasswordLen = 8

// AuthService implements user management, login and role permissions.
type AuthService struct {
	repo      ports.AuthRepository
	jwtSecret string
	tokenTTL  time.Duration
	logger    zerolog.Logger
	now       ports.Clock
}

func NewAuthService(repo ports.AuthRepository, jwtSecret string, tokenTTL time.Duration, logger zerolog.Logger) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	return &AuthService{repo: repo, jwtSecret: jwtSecret, tokenTTL: tokenTTL, logger: logger, now: time.Now}
}

func (s *AuthService) CreateUser(ctx context.Context, in ports.CreateUserInput) (*domain.User, error) {
	verr := domain.NewValidationError()
	username := strings.TrimSpace(in.Username)
	if username == "" {
		verr.Add("username", "is required")
	}
	if len(in.Password) < minPasswordLen {
		verr.Add("password", fmt.Sprintf("must be at least %d characters", minPasswordLen))
	}
	if in.Role == "" {
		verr.Add("role", "is required")
	}
	if !verr.Empty() {
		return nil, verr
	}

	if _, err := s.repo.FindRole(ctx, in.Role); err != nil {
		if errors.Is(err, domain.ErrRoleNotFound) {
			verr.Add("role", "unknown role")
			return nil, verr
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("create user: hash password: %w", err)
	}

	now := s.now().UTC()
	user := &domain.User{
		Username:     username,
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: string(hash),
		Role:         in.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info().Str("username", created.Username).Str("role", created.Role).Msg("user created")
	return created, nil
}

// Login checks the password and issues an HS256 token carrying username and role.
// Unknown users and wrong passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *domain.User, error) {
	if username == "" || password == "" {
		return "", nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return "", nil, domain.ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("login: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, domain.ErrInvalidCredentials
	}
	if user.Disabled {
		return "", nil, domain.ErrUserDisabled
	}

	token, err := s.generateToken(user)
	if err != nil {
		return "", nil, fmt.Errorf("login: sign token: %w", err)
	}
	return token, user, nil
}

func (s *AuthService) DisableUser(ctx context.Context, username string) error {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("disable user: %w", err)
	}
	if user.Role == domain.RoleSuperadmin {
		return domain.ErrProtectedUser
	}
	if err := s.repo.SetDisabled(ctx, username, true); err != nil {
		return fmt.Errorf("disable user: %w", err)
	}
	s.logger.Info().Str("username", username).Msg("user disabled")
	return nil
}

func (s *AuthService) DeleteUser(ctx context.Context, username string) error {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if user.Role == domain.RoleSuperadmin {
		return domain.ErrProtectedUser
	}
	if err := s.repo.Delete(ctx, username); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	s.logger.Info().Str("username", username).Msg("user deleted")
	return nil
}

// Permissions returns the capability set of a role.
func (s *AuthService) Permissions(ctx context.Context, role string) (domain.PermissionSet, error) {
	r, err := s.repo.FindRole(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("permissions: %w", err)
	}
	return r.Permissions, nil
}

// Authorize re-reads the user on every guarded request, so disabling or deleting
// an account takes effect before its tokens expire. The stored role is used,
// not the one in the token.
func (s *AuthService) Authorize(ctx context.Context, username string, perm domain.Permission) error {
	user, err := s.repo.FindByUsername(ctx, username)
	if errors.Is(err, domain.ErrUserNotFound) {
		return fmt.Errorf("%w: user %s no longer exists", domain.ErrUnauthorized, username)
	}
	if err != nil {
		return fmt.Errorf("authorize: %w: %v", domain.ErrUnavailable, err)
	}
	if user.Disabled {
		return domain.ErrUserDisabled
	}

	set, err := s.Permissions(ctx, user.Role)
	if errors.Is(err, domain.ErrRoleNotFound) {
		return fmt.Errorf("%w: unknown role %s", domain.ErrForbidden, user.Role)
	}
	if err != nil {
		return err
	}
	if !set.Has(perm) {
		return fmt.Errorf("%w: missing permission %s", domain.ErrForbidden, perm)
	}
	return nil
}

func (s *AuthService) generateToken(user *domain.User) (string, error) {
	claims := jwt.MapClaims{
		"username": user.Username,
		"role":     user.Role,
		"exp":      s.now().Add(s.tokenTTL).Unix(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(s.jwtSecret))
}
