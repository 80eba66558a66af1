package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eventdesk/registration-system/internal/core/domain"
)

type PrintStatusRepository struct {
	db *sql.DB
}

func NewPrintStatusRepository(db *sql.DB) *PrintStatusRepository {
	return &PrintStatusRepository{db: db}
}

func (r *PrintStatusRepository) Find(ctx context.Context, t domain.PrintStatusType, name domain.PrintStatusName) (*domain.PrintStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	st := domain.PrintStatus{Type: t, Name: name}
	err := r.db.QueryRowContext(ctx,
		`SELECT active FROM print_statuses WHERE type = $1 AND name = $2`, string(t), string(name),
	).Scan(&st.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s/%s: %w", t, name, domain.ErrPrintStatusMissing)
		}
		return nil, fmt.Errorf("find print status: %w: %v", domain.ErrUnavailable, err)
	}
	return &st, nil
}

func (r *PrintStatusRepository) Upsert(ctx context.Context, st domain.PrintStatus) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO print_statuses (type, name, active) VALUES ($1, $2, $3)
		ON CONFLICT (type, name) DO UPDATE SET active = EXCLUDED.active`,
		string(st.Type), string(st.Name), st.Active,
	)
	if err != nil {
		return fmt.Errorf("upsert print status: %w", err)
	}
	return nil
}
