package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventdesk/registration-system/internal/core/domain"
	"github.com/eventdesk/registration-system/internal/core/ports"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// ServerModeService implements the intake gate on top of the append-only mode log.
type ServerModeService struct {
	repo   ports.ServerModeRepository
	logger zerolog.Logger
	now    ports.Clock
}

func NewServerModeService(repo ports.ServerModeRepository, logger zerolog.Logger) *ServerModeService {
	return &ServerModeService{repo: repo, logger: logger, now: time.Now}
}

// Current returns the latest mode row.
func (s *ServerModeService) Current(ctx context.Context) (*domain.ServerModeRecord, error) {
	rec, err := s.repo.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("current server mode: %w", err)
	}
	return rec, nil
}

// Set appends a new mode row. History is never rewritten.
func (s *ServerModeService) Set(ctx context.Context, mode, actor string) (*domain.ServerModeRecord, error) {
	m := domain.ServerMode(mode)
	if !m.Valid() {
		verr := domain.NewValidationError()
		verr.Add("mode", "mode must be one of: onsite online both deactivate")
		return nil, verr
	}

	rec := &domain.ServerModeRecord{
		Mode:        m,
		ActivatedBy: actor,
		ActivatedAt: s.now().UTC(),
	}
	if err := s.repo.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("set server mode: %w: %v", domain.ErrUnavailable, err)
	}

	s.logger.Info().Str("mode", mode).Str("actor", actor).Msg("server mode changed")
	return rec, nil
}

// History returns a page of the mode log, newest first.
func (s *ServerModeService) History(ctx context.Context, page, limit int) (*ports.ServerModeHistory, error) {
	page, limit = normalizePage(page, limit)

	items, total, err := s.repo.History(ctx, page, limit)
	if err != nil {
		return nil, fmt.Errorf("server mode history: %w", err)
	}
	return &ports.ServerModeHistory{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages(total, limit),
	}, nil
}

// AllowIntake rejects channels the current mode does not accept.
func (s *ServerModeService) AllowIntake(ctx context.Context, channel domain.RegistrationType) error {
	rec, err := s.Current(ctx)
	if err != nil {
		return err
	}
	if !rec.Mode.AllowsIntake(channel) {
		return fmt.Errorf("%w (mode %s, channel %s)", domain.ErrIntakeClosed, rec.Mode, channel)
	}
	return nil
}

// AllowScan rejects scans while the server is deactivated.
func (s *ServerModeService) AllowScan(ctx context.Context) error {
	rec, err := s.Current(ctx)
	if err != nil {
		return err
	}
	if !rec.Mode.AllowsScan() {
		return fmt.Errorf("%w (mode %s)", domain.ErrScanForbidden, rec.Mode)
	}
	return nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

func totalPages(total int64, limit int) int {
	if limit <= 0 || total == 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
