package ports

import (
	"context"

	"github.com/eventdesk/registration-system/internal/core/domain"
)

// ServerModeRepository persists the append-only server mode log.
type ServerModeRepository interface {
	// Latest returns the newest row or domain.ErrServerModeMissing.
	Latest(ctx context.Context) (*domain.ServerModeRecord, error)
	Append(ctx context.Context, rec *domain.ServerModeRecord) error
	// History returns a page of rows newest first and the total row count.
	History(ctx context.Context, page, limit int) ([]*domain.ServerModeRecord, int64, error)
}

// ServerModeHistory is a page of the mode log.
type ServerModeHistory struct {
	Items      []*domain.ServerModeRecord
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// ServerModeService is the intake gate.
type ServerModeService interface {
	Current(ctx context.Context) (*domain.ServerModeRecord, error)
	Set(ctx context.Context, mode, actor string) (*domain.ServerModeRecord, error)
	History(ctx context.Context, page, limit int) (*ServerModeHistory, error)
	AllowIntake(ctx context.Context, channel domain.RegistrationType) error
	AllowScan(ctx context.Context) error
}

// PrintStatusRepository reads and seeds the print status lookup.
type PrintStatusRepository interface {
	// Find returns the row for (type, name) or domain.ErrPrintStatusMissing.
	Find(ctx context.Context, t domain.PrintStatusType, name domain.PrintStatusName) (*domain.PrintStatus, error)
	Upsert(ctx context.Context, status domain.PrintStatus) error
}
