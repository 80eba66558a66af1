package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/eventdesk/registration-system/internal/core/domain"
	"github.com/eventdesk/registration-system/internal/core/ports"
	"github.com/eventdesk/registration-system/internal/infrastructure/pii"
)

const (
	constraintTicket      = "registrations_ticket_number_key"
	constraintEmailHash   = "registrations_email_hash_key"
	constraintIdempotency = "registrations_idempotency_key_key"
)

const registrationColumns = `id, ticket_number, first_name, last_name, email, phone, address, company_name,
	demographics, registration_type, payment_status, badge_status, ticket_status,
	badge_print_count, ticket_print_count, confirmed, confirmed_by, confirmed_at,
	registered_by, qr_asset_path, email_hash, person_hash, idempotency_key, version,
	created_at, updated_at`

// RegistrationRepository persists registrations and their scans in PostgreSQL.
// Transition locks the row with SELECT ... FOR UPDATE so the status change and
// the scan insert commit together.
type RegistrationRepository struct {
	db     *sql.DB
	cipher ports.FieldCipher
}

func NewRegistrationRepository(db *sql.DB, cipher ports.FieldCipher) *RegistrationRepository {
	return &RegistrationRepository{db: db, cipher: cipher}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *RegistrationRepository) Create(ctx context.Context, reg *domain.Registration) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	id, err := pii.Seal(r.cipher, reg)
	if err != nil {
		return err
	}
	demographics, err := json.Marshal(demographicsOrEmpty(reg.Demographics))
	if err != nil {
		return fmt.Errorf("encode demographics: %w", err)
	}

	newID := uuid.New()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO registrations (`+registrationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, 0, $24, $25)`,
		newID, reg.TicketNumber, id.FirstName, id.LastName, id.Email, id.Phone, id.Address, id.CompanyName,
		demographics, string(reg.RegistrationType), string(reg.PaymentStatus),
		string(reg.BadgeStatus), string(reg.TicketStatus),
		reg.BadgePrintCount, reg.TicketPrintCount, reg.Confirmed,
		nullString(reg.ConfirmedBy), nullTime(reg.ConfirmedAt),
		reg.RegisteredBy, nullString(reg.QRAssetPath),
		nullString(reg.EmailHash), reg.PersonHash, nullString(reg.IdempotencyKey),
		reg.CreatedAt, reg.UpdatedAt,
	)
	if err != nil {
		if constraint := uniqueViolation(err); constraint != "" {
			return duplicateError(constraint)
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	reg.ID = newID.String()
	return nil
}

func duplicateError(constraint string) error {
	switch constraint {
	case constraintEmailHash:
		return domain.ErrDuplicateEmail
	case constraintIdempotency:
		return domain.ErrIdempotencyKeyReused
	default:
		return domain.ErrDuplicateTicket
	}
}

func (r *RegistrationRepository) FindByTicketNumber(ctx context.Context, ticketNumber string) (*domain.Registration, error) {
	return r.findOne(ctx, "ticket_number", ticketNumber)
}

func (r *RegistrationRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Registration, error) {
	return r.findOne(ctx, "idempotency_key", key)
}

// findOne is only called with the fixed column names above.
func (r *RegistrationRepository) findOne(ctx context.Context, column, value string) (*domain.Registration, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE `+column+` = $1`, value)
	reg, err := r.scanRegistration(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return reg, nil
}

func (r *RegistrationRepository) ExistsByPersonHash(ctx context.Context, hash string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM registrations WHERE person_hash = $1)`, hash)
}

func (r *RegistrationRepository) ExistsByEmailHash(ctx context.Context, hash string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM registrations WHERE email_hash = $1)`, hash)
}

func (r *RegistrationRepository) exists(ctx context.Context, query, arg string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var found bool
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(&found); err != nil {
		return false, fmt.Errorf("lookup registration: %w", err)
	}
	return found, nil
}

// List returns a page of registrations newest first.
func (r *RegistrationRepository) List(ctx context.Context, f ports.ListRegistrationsFilter) ([]*domain.Registration, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var (
		where []string
		args  []any
	)
	if f.RegistrationType != "" {
		args = append(args, f.RegistrationType)
		where = append(where, "registration_type = $"+strconv.Itoa(len(args)))
	}
	if f.BadgeStatus != "" {
		args = append(args, f.BadgeStatus)
		where = append(where, "badge_status = $"+strconv.Itoa(len(args)))
	}
	if f.Confirmed != nil {
		args = append(args, *f.Confirmed)
		where = append(where, "confirmed = $"+strconv.Itoa(len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM registrations`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}

	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	query := `SELECT ` + registrationColumns + ` FROM registrations` + clause +
		` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var out []*domain.Registration
	for rows.Next() {
		reg, err := r.scanRegistration(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan registration: %w", err)
		}
		out = append(out, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate registrations: %w", err)
	}
	return out, total, nil
}

func (r *RegistrationRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM registrations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return n, nil
}

func (r *RegistrationRepository) SetAssetPath(ctx context.Context, ticketNumber, path string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`UPDATE registrations SET qr_asset_path = $1 WHERE ticket_number = $2`, path, ticketNumber)
	if err != nil {
		return fmt.Errorf("set asset path: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set asset path: %w", err)
	}
	if n == 0 {
		return domain.ErrRegistrationNotFound
	}
	return nil
}

// Transition runs fn against the row locked FOR UPDATE, then writes the new
// state and the scan in the same transaction. Concurrent scans of one ticket
// queue on the row lock.
func (r *RegistrationRepository) Transition(ctx context.Context, ticketNumber string, fn ports.TransitionFunc) (*domain.Registration, *domain.Scan, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE ticket_number = $1 FOR UPDATE`, ticketNumber)
	reg, err := r.scanRegistration(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, domain.ErrRegistrationNotFound
		}
		return nil, nil, fmt.Errorf("lock registration: %w", err)
	}

	scan, err := fn(reg)
	if err != nil {
		return nil, nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE registrations
		SET badge_status = $1, ticket_status = $2, badge_print_count = $3, ticket_print_count = $4,
			confirmed = $5, confirmed_by = $6, confirmed_at = $7, updated_at = $8, version = version + 1
		WHERE id = $9`,
		string(reg.BadgeStatus), string(reg.TicketStatus), reg.BadgePrintCount, reg.TicketPrintCount,
		reg.Confirmed, nullString(reg.ConfirmedBy), nullTime(reg.ConfirmedAt), reg.UpdatedAt, reg.ID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("update registration: %w", err)
	}

	if scan != nil {
		scan.TicketNumber = ticketNumber
		var id int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO scans (registration_id, ticket_number, actor, scanned_at, badge_status, ticket_status, first_scan)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			reg.ID, ticketNumber, scan.Actor, scan.ScannedAt,
			string(scan.BadgeStatus), string(scan.TicketStatus), scan.FirstScan,
		).Scan(&id)
		if err != nil {
			return nil, nil, fmt.Errorf("insert scan: %w", err)
		}
		scan.ID = strconv.FormatInt(id, 10)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit transition: %w", err)
	}
	reg.Version++
	return reg, scan, nil
}

func (r *RegistrationRepository) Scans(ctx context.Context, ticketNumber string) ([]*domain.Scan, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ticket_number, actor, scanned_at, badge_status, ticket_status, first_scan
		FROM scans WHERE ticket_number = $1 ORDER BY id`, ticketNumber)
	if err != nil {
		return nil, fmt.Errorf("find scans: %w", err)
	}
	defer rows.Close()

	var out []*domain.Scan
	for rows.Next() {
		var (
			s             domain.Scan
			id            int64
			badge, ticket string
		)
		if err := rows.Scan(&id, &s.TicketNumber, &s.Actor, &s.ScannedAt, &badge, &ticket, &s.FirstScan); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		s.ID = strconv.FormatInt(id, 10)
		s.ScannedAt = s.ScannedAt.UTC()
		s.BadgeStatus = domain.PrintStatusName(badge)
		s.TicketStatus = domain.PrintStatusName(ticket)
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scans: %w", err)
	}
	return out, nil
}

func (r *RegistrationRepository) scanRegistration(row rowScanner) (*domain.Registration, error) {
	var (
		reg                                    domain.Registration
		id                                     pii.Identity
		demographics                           []byte
		regType, payment, badge, ticket        string
		confirmedBy, assetPath, emailHash, key sql.NullString
		confirmedAt                            sql.NullTime
	)
	err := row.Scan(
		&reg.ID, &reg.TicketNumber, &id.FirstName, &id.LastName, &id.Email, &id.Phone, &id.Address, &id.CompanyName,
		&demographics, &regType, &payment, &badge, &ticket,
		&reg.BadgePrintCount, &reg.TicketPrintCount, &reg.Confirmed, &confirmedBy, &confirmedAt,
		&reg.RegisteredBy, &assetPath, &emailHash, &reg.PersonHash, &key, &reg.Version,
		&reg.CreatedAt, &reg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	reg.RegistrationType = domain.RegistrationType(regType)
	reg.PaymentStatus = domain.PaymentStatus(payment)
	reg.BadgeStatus = domain.PrintStatusName(badge)
	reg.TicketStatus = domain.PrintStatusName(ticket)
	reg.ConfirmedBy = confirmedBy.String
	reg.QRAssetPath = assetPath.String
	reg.EmailHash = emailHash.String
	reg.IdempotencyKey = key.String
	reg.CreatedAt = reg.CreatedAt.UTC()
	reg.UpdatedAt = reg.UpdatedAt.UTC()
	if confirmedAt.Valid {
		at := confirmedAt.Time.UTC()
		reg.ConfirmedAt = &at
	}
	if len(demographics) > 0 {
		if err := json.Unmarshal(demographics, &reg.Demographics); err != nil {
			return nil, fmt.Errorf("decode demographics: %w", err)
		}
		if len(reg.Demographics) == 0 {
			reg.Demographics = nil
		}
	}

	if err := pii.Open(r.cipher, id, &reg); err != nil {
		return nil, fmt.Errorf("registration %s: %w", reg.TicketNumber, err)
	}
	return &reg, nil
}

func demographicsOrEmpty(d map[string]string) map[string]string {
	if d == nil {
		return map[string]string{}
	}
	return d
}
