package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/eventdesk/registration-system/internal/core/domain"
	"github.com/eventdesk/registration-system/internal/core/ports"
)

func TestAuthHandler_Login_Success(t *testing.T) {
	stub := &stubAuthService{
		loginFn: func(ctx context.Context, username, password string) (string, *domain.User, error) {
			if username != "desk-1" || password != "s3cret-pass" {
				t.Fatalf("unexpected credentials: %s/%s", username, password)
			}
			return "jwt-token", &domain.User{Username: "desk-1", Role: domain.RoleStaff, PasswordHash: "hash"}, nil
		},
	}
	h := NewAuthHandler(stub)

	c, rec := newJSONContext(http.MethodPost, "/auth/login", `{"username":"desk-1","password":"s3cret-pass"}`)
	if err := h.Login(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["token"] != "jwt-token" {
		t.Errorf("unexpected token: %v", resp["token"])
	}
	user, _ := resp["user"].(map[string]any)
	if _, leaked := user["password_hash"]; leaked {
		t.Errorf("password hash must not be serialized")
	}
}

func TestAuthHandler_Login_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		svcErr  error
		wantErr error
	}{
		{"missing password", `{"username":"desk-1"}`, nil, domain.ErrValidation},
		{"wrong password", `{"username":"desk-1","password":"nope-nope"}`, domain.ErrInvalidCredentials, domain.ErrUnauthorized},
		{"disabled", `{"username":"desk-1","password":"s3cret-pass"}`, domain.ErrUserDisabled, domain.ErrUserDisabled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubAuthService{
				loginFn: func(ctx context.Context, username, password string) (string, *domain.User, error) {
					return "", nil, tt.svcErr
				},
			}
			h := NewAuthHandler(stub)

			c, _ := newJSONContext(http.MethodPost, "/auth/login", tt.body)
			if err := h.Login(c); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestAuthHandler_Login_InvalidPayload(t *testing.T) {
	h := NewAuthHandler(&stubAuthService{})

	c, _ := newJSONContext(http.MethodPost, "/auth/login", "{")
	err := h.Login(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got: %v", err)
	}
}

func TestAuthHandler_CreateUser(t *testing.T) {
	stub := &stubAuthService{
		createFn: func(ctx context.Context, in ports.CreateUserInput) (*domain.User, error) {
			if in.Role != domain.RoleStaff || in.Email != "desk@example.com" {
				t.Fatalf("unexpected input: %+v", in)
			}
			return &domain.User{Username: in.Username, Role: in.Role}, nil
		},
	}
	h := NewAuthHandler(stub)

	c, rec := newJSONContext(http.MethodPost, "/v1/users",
		`{"username":"desk-2","password":"long-enough","email":"desk@example.com","role":"staff"}`)
	if err := h.CreateUser(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
}

func TestAuthHandler_CreateUser_ValidationFields(t *testing.T) {
	h := NewAuthHandler(&stubAuthService{})

	c, _ := newJSONContext(http.MethodPost, "/v1/users", `{"username":"","password":"short","email":"nope"}`)
	err := h.CreateUser(c)

	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got: %v", err)
	}
	for _, field := range []string{"username", "password", "email", "role"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Errorf("expected error for %s, got %v", field, verr.Fields)
		}
	}
}

func TestAuthHandler_DisableAndDelete(t *testing.T) {
	var disabled, deleted string
	stub := &stubAuthService{
		disableFn: func(ctx context.Context, username string) error {
			disabled = username
			return nil
		},
		deleteFn: func(ctx context.Context, username string) error {
			if username == "root" {
				return domain.ErrProtectedUser
			}
			deleted = username
			return nil
		},
	}
	h := NewAuthHandler(stub)

	c, rec := newJSONContext(http.MethodPost, "/", "")
	c.SetParamNames("username")
	c.SetParamValues("desk-2")
	if err := h.DisableUser(c); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("disable: err=%v code=%d", err, rec.Code)
	}
	if disabled != "desk-2" {
		t.Errorf("expected desk-2 disabled, got %q", disabled)
	}

	c, rec = newJSONContext(http.MethodDelete, "/", "")
	c.SetParamNames("username")
	c.SetParamValues("desk-2")
	if err := h.DeleteUser(c); err != nil || rec.Code != http.StatusNoContent {
		t.Fatalf("delete: err=%v code=%d", err, rec.Code)
	}
	if deleted != "desk-2" {
		t.Errorf("expected desk-2 deleted, got %q", deleted)
	}

	c, _ = newJSONContext(http.MethodDelete, "/", "")
	c.SetParamNames("username")
	c.SetParamValues("root")
	if err := h.DeleteUser(c); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for protected user, got: %v", err)
	}
}
