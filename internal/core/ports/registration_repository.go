package ports

import (
	"context"

	"github.com/eventdesk/registration-system/internal/core/domain"
)

// ListRegistrationsFilter carries the query parameters for listing registrations.
type ListRegistrationsFilter struct {
	RegistrationType string // optional
	BadgeStatus      string // optional
	Confirmed        *bool  // optional
	Page             int    // 1-based
	Limit            int    // capped at 100 by the service
}

// TransitionFunc mutates a locked registration and returns the scan to append,
// or nil when the change records no scan. Returning an error aborts the
// transition without writing anything.
type TransitionFunc func(r *domain.Registration) (*domain.Scan, error)

// RegistrationRepository defines persistence operations for registrations and
// their scan audit trail. Implementations encrypt identity fields on the way in
// and decrypt them on the way out.
type RegistrationRepository interface {
	// Create inserts a registration. Unique violations map to
	// domain.ErrDuplicateEmail, domain.ErrDuplicateTicket or
	// domain.ErrIdempotencyKeyReused.
	Create(ctx context.Context, r *domain.Registration) error
	FindByTicketNumber(ctx context.Context, ticketNumber string) (*domain.Registration, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.Registration, error)
	ExistsByPersonHash(ctx context.Context, hash string) (bool, error)
	ExistsByEmailHash(ctx context.Context, hash string) (bool, error)
	List(ctx context.Context, filter ListRegistrationsFilter) ([]*domain.Registration, int64, error)
	Count(ctx context.Context) (int64, error)
	SetAssetPath(ctx context.Context, ticketNumber, path string) error

	// Transition serializes changes to one registration: fn runs against the
	// current state and the result is persisted together with the returned scan.
	Transition(ctx context.Context, ticketNumber string, fn TransitionFunc) (*domain.Registration, *domain.Scan, error)

	// Scans lists the audit trail for a ticket, oldest first.
	Scans(ctx context.Context, ticketNumber string) ([]*domain.Scan, error)
}
