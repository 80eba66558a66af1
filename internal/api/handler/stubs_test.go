package handler

import (
	"context"
	"io"
	"strings"

	"github.com/eventdesk/registration-system/internal/core/domain"
	"github.com/eventdesk/registration-system/internal/core/ports"
)

type stubRegistrationService struct {
	registerFn func(ctx context.Context, in ports.RegisterInput) (*ports.RegisterResult, error)
	getFn      func(ctx context.Context, ticket string) (*domain.Registration, error)
	listFn     func(ctx context.Context, in ports.ListRegistrationsInput) (*ports.ListRegistrationsResult, error)
}

func (s *stubRegistrationService) Register(ctx context.Context, in ports.RegisterInput) (*ports.RegisterResult, error) {
	return s.registerFn(ctx, in)
}

func (s *stubRegistrationService) Get(ctx context.Context, ticket string) (*domain.Registration, error) {
	return s.getFn(ctx, ticket)
}

func (s *stubRegistrationService) List(ctx context.Context, in ports.ListRegistrationsInput) (*ports.ListRegistrationsResult, error) {
	return s.listFn(ctx, in)
}

func (s *stubRegistrationService) Count(context.Context) (int64, error) { return 0, nil }

type stubCheckinService struct {
	scanFn  func(ctx context.Context, ticket, actor string) (*ports.ScanResult, error)
	printFn func(ctx context.Context, ticket, actor string) (*domain.Registration, error)
	scansFn func(ctx context.Context, ticket string) ([]*domain.Scan, error)
}

func (s *stubCheckinService) Scan(ctx context.Context, ticket, actor string) (*ports.ScanResult, error) {
	return s.scanFn(ctx, ticket, actor)
}

func (s *stubCheckinService) PrintBadge(ctx context.Context, ticket, actor string) (*domain.Registration, error) {
	return s.printFn(ctx, ticket, actor)
}

func (s *stubCheckinService) PrintTicket(ctx context.Context, ticket, actor string) (*domain.Registration, error) {
	return s.printFn(ctx, ticket, actor)
}

func (s *stubCheckinService) Scans(ctx context.Context, ticket string) ([]*domain.Scan, error) {
	return s.scansFn(ctx, ticket)
}

type stubBadgeService struct {
	openFn       func(ctx context.Context, ticket string) (io.ReadCloser, error)
	regenerateFn func(ctx context.Context, ticket string) error
}

func (s *stubBadgeService) Generate(context.Context, string) (string, error) { return "", nil }
func (s *stubBadgeService) Enqueue(context.Context, string) error            { return nil }

func (s *stubBadgeService) Regenerate(ctx context.Context, ticket string) error {
	return s.regenerateFn(ctx, ticket)
}

func (s *stubBadgeService) Open(ctx context.Context, ticket string) (io.ReadCloser, error) {
	return s.openFn(ctx, ticket)
}

type stubServerModeService struct {
	currentFn func(ctx context.Context) (*domain.ServerModeRecord, error)
	setFn     func(ctx context.Context, mode, actor string) (*domain.ServerModeRecord, error)
	historyFn func(ctx context.Context, page, limit int) (*ports.ServerModeHistory, error)
}

func (s *stubServerModeService) Current(ctx context.Context) (*domain.ServerModeRecord, error) {
	return s.currentFn(ctx)
}

func (s *stubServerModeService) Set(ctx context.Context, mode, actor string) (*domain.ServerModeRecord, error) {
	return s.setFn(ctx, mode, actor)
}

func (s *stubServerModeService) History(ctx context.Context, page, limit int) (*ports.ServerModeHistory, error) {
	return s.historyFn(ctx, page, limit)
}

func (s *stubServerModeService) AllowIntake(context.Context, domain.RegistrationType) error {
	return nil
}

func (s *stubServerModeService) AllowScan(context.Context) error { return nil }

type stubAuthService struct {
	createFn  func(ctx context.Context, in ports.CreateUserInput) (*domain.User, error)
	loginFn   func(ctx context.Context, username, password string) (string, *domain.User, error)
	disableFn func(ctx context.Context, username string) error
	deleteFn  func(ctx context.Context, username string) error
	authzFn   func(ctx context.Context, username string, perm domain.Permission) error
}

func (s *stubAuthService) CreateUser(ctx context.Context, in ports.CreateUserInput) (*domain.User, error) {
	return s.createFn(ctx, in)
}

func (s *stubAuthService) Login(ctx context.Context, username, password string) (string, *domain.User, error) {
	return s.loginFn(ctx, username, password)
}

func (s *stubAuthService) DisableUser(ctx context.Context, username string) error {
	return s.disableFn(ctx, username)
}

func (s *stubAuthService) DeleteUser(ctx context.Context, username string) error {
	return s.deleteFn(ctx, username)
}

func (s *stubAuthService) Permissions(_ context.Context, role string) (domain.PermissionSet, error) {
	for _, r := range domain.DefaultRoles() {
		if r.Name == role {
			return r.Permissions, nil
		}
	}
	return nil, domain.ErrRoleNotFound
}

func (s *stubAuthService) Authorize(ctx context.Context, username string, perm domain.Permission) error {
	if s.authzFn == nil {
		return domain.ErrForbidden
	}
	return s.authzFn(ctx, username, perm)
}

func readCloser(s string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(s))
}
