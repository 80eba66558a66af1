package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eventdesk/registration-system/internal/core/domain"
)

type AuthRepository struct {
	db *sql.DB
}

func NewAuthRepository(db *sql.DB) *AuthRepository {
	return &AuthRepository{db: db}
}

func (r *AuthRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	id := uuid.New()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, role, disabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, user.Username, user.Email, user.PasswordHash, user.Role, user.Disabled, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if uniqueViolation(err) != "" {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	created := *user
	created.ID = id.String()
	return &created, nil
}

func (r *AuthRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var u domain.User
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, role, disabled, created_at, updated_at
		FROM users WHERE username = $1`, username,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Disabled, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

func (r *AuthRepository) SetDisabled(ctx context.Context, username string, disabled bool) error {
	return r.execOne(ctx, "disable user",
		`UPDATE users SET disabled = $1, updated_at = $2 WHERE username = $3`,
		disabled, time.Now().UTC(), username)
}

func (r *AuthRepository) Delete(ctx context.Context, username string) error {
	return r.execOne(ctx, "delete user", `DELETE FROM users WHERE username = $1`, username)
}

func (r *AuthRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *AuthRepository) FindRole(ctx context.Context, name string) (*domain.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var raw []byte
	err := r.db.QueryRowContext(ctx, `SELECT permissions FROM roles WHERE name = $1`, name).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRoleNotFound
		}
		return nil, fmt.Errorf("find role: %w", err)
	}

	var stored []string
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("role %s: decode permissions: %w", name, err)
	}
	perms, err := domain.ParsePermissionSet(stored)
	if err != nil {
		return nil, fmt.Errorf("role %s: %w", name, err)
	}
	return &domain.Role{Name: name, Permissions: perms}, nil
}

func (r *AuthRepository) UpsertRole(ctx context.Context, role domain.Role) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	raw, err := json.Marshal(role.Permissions.Strings())
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO roles (name, permissions) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET permissions = EXCLUDED.permissions`,
		role.Name, raw,
	)
	if err != nil {
		return fmt.Errorf("upsert role: %w", err)
	}
	return nil
}
