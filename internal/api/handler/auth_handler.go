package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eventdesk/registration-system/internal/core/domain"
	"github.com/eventdesk/registration-system/internal/core/ports"
)

type AuthHandler struct {
	authService ports.AuthService
}

func NewAuthHandler(authService ports.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type createUserRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Role     string `json:"role" validate:"required"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Token string       `json:"token,omitempty"`
	User  *domain.User `json:"user,omitempty"`
}

// CreateUser handles POST /v1/users.
//
// @Summary      Create a staff account
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createUserRequest  true  "Account details"
// @Success      201   {object}  authResponse
// @Failure      409   {object}  map[string]any
// @Failure      422   {object}  map[string]any
// @Router       /v1/users [post]
func (h *AuthHandler) CreateUser(c echo.Context) error {
	var req createUserRequest
	if err := c.Bind(&req); err != nil {
		return bindError()
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	user, err := h.authService.CreateUser(c.Request().Context(), ports.CreateUserInput{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
		Role:     req.Role,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, authResponse{User: user})
}

// Login authenticates a user and returns a JWT token.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  authResponse
// @Failure      400   {object}  map[string]any
// @Failure      401   {object}  map[string]any
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return bindError()
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	token, user, err := h.authService.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, authResponse{Token: token, User: user})
}

// DisableUser handles POST /v1/users/:username/disable.
//
// @Summary      Disable an account
// @Tags         users
// @Security     BearerAuth
// @Param        username  path  string  true  "Username"
// @Success      200  {object}  map[string]string
// @Failure      403  {object}  map[string]any
// @Failure      404  {object}  map[string]any
// @Router       /v1/users/{username}/disable [post]
func (h *AuthHandler) DisableUser(c echo.Context) error {
	username := c.Param("username")
	if err := h.authService.DisableUser(c.Request().Context(), username); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"username": username, "status": "disabled"})
}

// DeleteUser handles DELETE /v1/users/:username.
//
// @Summary      Delete an account
// @Tags         users
// @Security     BearerAuth
// @Param        username  path  string  true  "Username"
// @Success      204
// @Failure      403  {object}  map[string]any  "Superadmin is protected"
// @Failure      404  {object}  map[string]any
// @Router       /v1/users/{username} [delete]
func (h *AuthHandler) DeleteUser(c echo.Context) error {
	if err := h.authService.DeleteUser(c.Request().Context(), c.Param("username")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
