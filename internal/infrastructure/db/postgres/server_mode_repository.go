package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/eventdesk/registration-system/internal/core/domain"
)

// ServerModeRepository keeps the append-only mode log. Rows are never updated.
type ServerModeRepository struct {
	db *sql.DB
}

func NewServerModeRepository(db *sql.DB) *ServerModeRepository {
	return &ServerModeRepository{db: db}
}

func (r *ServerModeRepository) Latest(ctx context.Context) (*domain.ServerModeRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT id, mode, activated_by, activated_at FROM server_modes
		ORDER BY activated_at DESC, id DESC LIMIT 1`)
	rec, err := scanServerMode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrServerModeMissing
		}
		return nil, fmt.Errorf("latest server mode: %w: %v", domain.ErrUnavailable, err)
	}
	return rec, nil
}

func (r *ServerModeRepository) Append(ctx context.Context, rec *domain.ServerModeRecord) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO server_modes (mode, activated_by, activated_at) VALUES ($1, $2, $3) RETURNING id`,
		string(rec.Mode), rec.ActivatedBy, rec.ActivatedAt,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("append server mode: %w", err)
	}
	rec.ID = strconv.FormatInt(id, 10)
	return nil
}

func (r *ServerModeRepository) History(ctx context.Context, page, limit int) ([]*domain.ServerModeRecord, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM server_modes`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count server modes: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, mode, activated_by, activated_at FROM server_modes
		ORDER BY activated_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("server mode history: %w", err)
	}
	defer rows.Close()

	var out []*domain.ServerModeRecord
	for rows.Next() {
		rec, err := scanServerMode(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan server mode: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate server modes: %w", err)
	}
	return out, total, nil
}

func scanServerMode(row rowScanner) (*domain.ServerModeRecord, error) {
	var (
		rec  domain.ServerModeRecord
		id   int64
		mode string
	)
	if err := row.Scan(&id, &mode, &rec.ActivatedBy, &rec.ActivatedAt); err != nil {
		return nil, err
	}
	rec.ID = strconv.FormatInt(id, 10)
	rec.Mode = domain.ServerMode(mode)
	rec.ActivatedAt = rec.ActivatedAt.UTC()
	return &rec, nil
}
