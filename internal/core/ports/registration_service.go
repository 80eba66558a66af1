package ports

import (
	"context"
	"time"

	"github.com/eventdesk/registration-system/internal/core/domain"
)

// RegisterInput carries the intake data for a new registration.
type RegisterInput struct {
	FirstName        string            `json:"first_name"        validate:"required,max=100"`
	LastName         string            `json:"last_name"         validate:"required,max=100"`
	Email            string            `json:"email"             validate:"omitempty,email,max=254"`
	Phone            string            `json:"phone"             validate:"omitempty,max=40"`
	Address          string            `json:"address"           validate:"omitempty,max=255"`
	CompanyName      string            `json:"company_name"      validate:"omitempty,max=150"`
	Demographics     map[string]string `json:"demographics"      validate:"omitempty,max=50,dive,keys,max=64,endkeys,max=255"`
	RegistrationType string            `json:"registration_type" validate:"required,oneof=onsite online pre-registered complimentary"`
	PaymentStatus    string            `json:"payment_status"    validate:"omitempty,oneof=paid unpaid complimentary"`
	// Actor is the authenticated username; empty for self-service intake.
	Actor          string `json:"-"`
	IdempotencyKey string `json:"-"`
}

// RegisterResult is returned after a registration is issued.
type RegisterResult struct {
	Registration *domain.Registration
	// AssetReady is true when the QR asset was generated synchronously.
	AssetReady bool
	// AlreadyExisted is true when the Idempotency-Key matched an existing registration.
	AlreadyExisted bool
}

// ListRegistrationsInput carries the parameters of the list endpoint.
type ListRegistrationsInput struct {
	RegistrationType string
	BadgeStatus      string
	Confirmed        *bool
	Page             int
	Limit            int
}

// ListRegistrationsResult is a page of registrations.
type ListRegistrationsResult struct {
	Items      []*domain.Registration
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// RegistrationService is the ticket issuance use case.
type RegistrationService interface {
	Register(ctx context.Context, input RegisterInput) (*RegisterResult, error)
	Get(ctx context.Context, ticketNumber string) (*domain.Registration, error)
	List(ctx context.Context, input ListRegistrationsInput) (*ListRegistrationsResult, error)
	Count(ctx context.Context) (int64, error)
}

// ScanResult is returned by a check-in scan.
type ScanResult struct {
	Registration *domain.Registration
	Scan         *domain.Scan
}

// CheckinService is the print/check-in state machine.
type CheckinService interface {
	Scan(ctx context.Context, ticketNumber, actor string) (*ScanResult, error)
	PrintBadge(ctx context.Context, ticketNumber, actor string) (*domain.Registration, error)
	PrintTicket(ctx context.Context, ticketNumber, actor string) (*domain.Registration, error)
	Scans(ctx context.Context, ticketNumber string) ([]*domain.Scan, error)
}

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time
