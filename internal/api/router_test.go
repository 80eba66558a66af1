package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/eventdesk/registration-system/internal/core/domain"
	"github.com/eventdesk/registration-system/internal/core/ports"
	"github.com/eventdesk/registration-system/internal/infrastructure/http/handlers"
)

const testSecret = "router-test-secret"

// fakeCore answers every use case with err when set, otherwise with a fixed
// registration. Its user directory starts from fixtureUsers and follows
// DisableUser and DeleteUser.
type fakeCore struct {
	err error

	mu    sync.Mutex
	users map[string]*domain.User
}

var fixtureUsers = []domain.User{
	{Username: "desk-1", Role: domain.RoleStaff},
	{Username: "desk-2", Role: domain.RoleStaff},
	{Username: "lead", Role: domain.RoleAdmin},
	{Username: "root", Role: domain.RoleSuperadmin},
	{Username: "ghost", Role: "guest"},
}

// directory must be called with mu held.
func (f *fakeCore) directory() map[string]*domain.User {
	if f.users == nil {
		f.users = make(map[string]*domain.User, len(fixtureUsers))
		for _, u := range fixtureUsers {
			f.users[u.Username] = &u
		}
	}
	return f.users
}

func (f *fakeCore) reg(ticket string) *domain.Registration {
	return &domain.Registration{TicketNumber: ticket, RegistrationType: domain.TypeOnsite}
}

func (f *fakeCore) Register(_ context.Context, in ports.RegisterInput) (*ports.RegisterResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ports.RegisterResult{Registration: f.reg("T-1")}, nil
}

func (f *fakeCore) Get(_ context.Context, ticket string) (*domain.Registration, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.reg(ticket), nil
}

func (f *fakeCore) List(context.Context, ports.ListRegistrationsInput) (*ports.ListRegistrationsResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ports.ListRegistrationsResult{Page: 1, Limit: 20}, nil
}

func (f *fakeCore) Count(context.Context) (int64, error) { return 0, f.err }

func (f *fakeCore) Scan(_ context.Context, ticket, actor string) (*ports.ScanResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ports.ScanResult{Registration: f.reg(ticket), Scan: &domain.Scan{TicketNumber: ticket, Actor: actor}}, nil
}

func (f *fakeCore) PrintBadge(_ context.Context, ticket, _ string) (*domain.Registration, error) {
	return f.Get(context.Background(), ticket)
}

func (f *fakeCore) PrintTicket(_ context.Context, ticket, _ string) (*domain.Registration, error) {
	return f.Get(context.Background(), ticket)
}

func (f *fakeCore) Scans(context.Context, string) ([]*domain.Scan, error) { return nil, f.err }

func (f *fakeCore) Generate(context.Context, string) (string, error) { return "", f.err }
func (f *fakeCore) Enqueue(context.Context, string) error            { return f.err }
func (f *fakeCore) Regenerate(context.Context, string) error         { return f.err }

func (f *fakeCore) Open(context.Context, string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader("png")), nil
}

func (f *fakeCore) Current(context.Context) (*domain.ServerModeRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ServerModeRecord{Mode: domain.ModeBoth}, nil
}

func (f *fakeCore) Set(_ context.Context, mode, actor string) (*domain.ServerModeRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ServerModeRecord{Mode: domain.ServerMode(mode), ActivatedBy: actor}, nil
}

func (f *fakeCore) History(context.Context, int, int) (*ports.ServerModeHistory, error) {
	return &ports.ServerModeHistory{}, f.err
}

func (f *fakeCore) AllowIntake(context.Context, domain.RegistrationType) error { return f.err }
func (f *fakeCore) AllowScan(context.Context) error                          { return f.err }

func (f *fakeCore) CreateUser(_ context.Context, in ports.CreateUserInput) (*domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.User{Username: in.Username, Role: in.Role}, nil
}

func (f *fakeCore) Login(context.Context, string, string) (string, *domain.User, error) {
	if f.err != nil {
		return "", nil, f.err
	}
	return "token", &domain.User{Username: "desk-1", Role: domain.RoleStaff}, nil
}

func (f *fakeCore) DisableUser(_ context.Context, username string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.directory()[username]; ok {
		u.Disabled = true
	}
	return nil
}

func (f *fakeCore) DeleteUser(_ context.Context, username string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.directory(), username)
	return nil
}

func (f *fakeCore) Authorize(ctx context.Context, username string, perm domain.Permission) error {
	f.mu.Lock()
	u, ok := f.directory()[username]
	var user domain.User
	if ok {
		user = *u
	}
	f.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: user %s no longer exists", domain.ErrUnauthorized, username)
	}
	if user.Disabled {
		return domain.ErrUserDisabled
	}
	set, err := f.Permissions(ctx, user.Role)
	if err != nil {
		return fmt.Errorf("%w: unknown role %s", domain.ErrForbidden, user.Role)
	}
	if !set.Has(perm) {
		return fmt.Errorf("%w: missing permission %s", domain.ErrForbidden, perm)
	}
	return nil
}

func (f *fakeCore) Permissions(_ context.Context, role string) (domain.PermissionSet, error) {
	for _, r := range domain.DefaultRoles() {
		if r.Name == role {
			return r.Permissions, nil
		}
	}
	return nil, domain.ErrRoleNotFound
}

func newTestRouter(core *fakeCore, checks map[string]handlers.Check) *echo.Echo {
	return NewRouter(Services{
		Registrations: core,
		Checkin:       core,
		Badges:        core,
		ServerMode:    core,
		Auth:          core,
	}, Options{JWTSecret: testSecret, Logger: zerolog.Nop(), Checks: checks})
}

func bearer(t *testing.T, username, role string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": username,
		"role":     role,
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + signed
}

func do(e *echo.Echo, method, target, body, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid error body %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestRouter_ErrorMapping(t *testing.T) {
	verr := domain.NewValidationError()
	verr.Add("first_name", "is required")

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKind string
		wantMsg  string
	}{
		{"validation", verr, http.StatusUnprocessableEntity, "validation", "validation failed"},
		{"duplicate", fmt.Errorf("register: %w", domain.ErrDuplicatePerson), http.StatusConflict, "conflict", domain.ErrDuplicatePerson.Error()},
		{"not found", domain.ErrRegistrationNotFound, http.StatusNotFound, "not_found", domain.ErrRegistrationNotFound.Error()},
		{"gate closed", domain.ErrIntakeClosed, http.StatusForbidden, "forbidden", domain.ErrIntakeClosed.Error()},
		{"mode missing", domain.ErrServerModeMissing, http.StatusBadRequest, "configuration_missing", domain.ErrServerModeMissing.Error()},
		{"unavailable", fmt.Errorf("%w: dial tcp 10.0.0.5:27017", domain.ErrUnavailable), http.StatusServiceUnavailable, "unavailable", domain.ErrUnavailable.Error()},
		{"disabled", domain.ErrUserDisabled, http.StatusUnauthorized, "unauthorized", domain.ErrUserDisabled.Error()},
		{"unexpected", errors.New("boom: secret detail"), http.StatusInternalServerError, "internal", "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestRouter(&fakeCore{err: tt.err}, nil)

			rec := do(e, http.MethodPost, "/v1/registrations", `{"first_name":"Ana","registration_type":"onsite"}`, "")
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			resp := decodeError(t, rec)
			if resp.Kind != tt.wantKind || resp.Error != tt.wantMsg {
				t.Errorf("unexpected envelope: %+v", resp)
			}
			if tt.wantKind == "validation" && len(resp.Fields["first_name"]) != 1 {
				t.Errorf("expected first_name field error, got %v", resp.Fields)
			}
		})
	}
}

func TestRouter_RouteProtection(t *testing.T) {
	e := newTestRouter(&fakeCore{}, nil)

	tests := []struct {
		name     string
		method   string
		target   string
		body     string
		auth     string
		wantCode int
	}{
		{"list without token", http.MethodGet, "/v1/registrations", "", "", http.StatusUnauthorized},
		{"list as staff", http.MethodGet, "/v1/registrations", "", bearer(t, "desk-1", domain.RoleStaff), http.StatusOK},
		{"scan as staff", http.MethodPost, "/v1/registrations/T-1/scan", "", bearer(t, "desk-1", domain.RoleStaff), http.StatusOK},
		{"mode as staff", http.MethodPost, "/v1/server-mode", `{"mode":"online"}`, bearer(t, "desk-1", domain.RoleStaff), http.StatusForbidden},
		{"mode as admin", http.MethodPost, "/v1/server-mode", `{"mode":"online"}`, bearer(t, "lead", domain.RoleAdmin), http.StatusCreated},
		{"users as admin", http.MethodPost, "/v1/users/desk-1/disable", "", bearer(t, "lead", domain.RoleAdmin), http.StatusForbidden},
		{"users as superadmin", http.MethodDelete, "/v1/users/desk-3", "", bearer(t, "root", domain.RoleSuperadmin), http.StatusNoContent},
		{"unknown role", http.MethodGet, "/v1/registrations", "", bearer(t, "ghost", "guest"), http.StatusForbidden},
		{"public mode", http.MethodGet, "/v1/server-mode", "", "", http.StatusOK},
		{"public asset", http.MethodGet, "/v1/assets/T-1.png", "", "", http.StatusOK},
		{"login", http.MethodPost, "/auth/login", `{"username":"desk-1","password":"s3cret-pass"}`, "", http.StatusOK},
		{"anonymous kiosk", http.MethodPost, "/v1/registrations", `{"registration_type":"onsite"}`, "", http.StatusCreated},
		{"anonymous staff channel", http.MethodPost, "/v1/registrations", `{"registration_type":"complimentary"}`, "", http.StatusUnauthorized},
		{"staff channel as staff", http.MethodPost, "/v1/registrations", `{"registration_type":"complimentary"}`, bearer(t, "desk-1", domain.RoleStaff), http.StatusCreated},
		{"bad token on optional route", http.MethodPost, "/v1/registrations", `{"registration_type":"onsite"}`, "Bearer garbage", http.StatusUnauthorized},
		{"unknown route", http.MethodGet, "/v1/nope", "", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, tt.method, tt.target, tt.body, tt.auth)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRouter_RevokedUsersLoseAccess(t *testing.T) {
	e := newTestRouter(&fakeCore{}, nil)
	root := bearer(t, "root", domain.RoleSuperadmin)
	desk1 := bearer(t, "desk-1", domain.RoleStaff)
	desk2 := bearer(t, "desk-2", domain.RoleStaff)

	for _, tok := range []string{desk1, desk2} {
		if rec := do(e, http.MethodPost, "/v1/registrations/T-1/scan", "", tok); rec.Code != http.StatusOK {
			t.Fatalf("scan before revocation: expected 200, got %d", rec.Code)
		}
	}

	if rec := do(e, http.MethodPost, "/v1/users/desk-1/disable", "", root); rec.Code != http.StatusOK {
		t.Fatalf("disable: expected 200, got %d", rec.Code)
	}
	rec := do(e, http.MethodPost, "/v1/registrations/T-1/scan", "", desk1)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("scan after disable: expected 401, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != domain.ErrUserDisabled.Error() {
		t.Errorf("unexpected error after disable: %+v", resp)
	}
	if rec := do(e, http.MethodPost, "/v1/registrations", `{"registration_type":"complimentary"}`, desk1); rec.Code != http.StatusUnauthorized {
		t.Fatalf("staff channel after disable: expected 401, got %d", rec.Code)
	}

	if rec := do(e, http.MethodDelete, "/v1/users/desk-1", "", root); rec.Code != http.StatusNoContent {
		t.Fatalf("delete disabled user: expected 204, got %d", rec.Code)
	}
	if rec := do(e, http.MethodPost, "/v1/registrations/T-1/scan", "", desk1); rec.Code != http.StatusUnauthorized {
		t.Fatalf("scan after delete: expected 401, got %d", rec.Code)
	}

	if rec := do(e, http.MethodDelete, "/v1/users/desk-2", "", root); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	for _, target := range []string{"/v1/registrations/T-1/scan", "/v1/registrations/T-1/print/badge"} {
		if rec := do(e, http.MethodPost, target, "", desk2); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s after delete: expected 401, got %d", target, rec.Code)
		}
	}
	if rec := do(e, http.MethodGet, "/v1/registrations", "", desk2); rec.Code != http.StatusUnauthorized {
		t.Fatalf("list after delete: expected 401, got %d", rec.Code)
	}
}

func TestRouter_Health(t *testing.T) {
	e := newTestRouter(&fakeCore{}, map[string]handlers.Check{
		"store": func(context.Context) error { return nil },
		"queue": func(context.Context) error { return errors.New("connection refused") },
	})

	if rec := do(e, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("liveness: expected 200, got %d", rec.Code)
	}
	rec := do(e, http.MethodGet, "/health/ready", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readiness: expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "degraded") {
		t.Errorf("expected degraded status, got %s", rec.Body.String())
	}
}

func TestRouter_HeadErrorHasNoBody(t *testing.T) {
	e := newTestRouter(&fakeCore{err: domain.ErrAssetPending}, nil)

	rec := do(e, http.MethodHead, "/v1/assets/T-9.png", "", "")
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("HEAD responses must not carry a body, got %q", rec.Body.String())
	}
}
