package domain

import (
	"strings"
	"time"
)

// RegistrationType is the intake channel a registration arrived through.
type RegistrationType string

const (
	TypeOnsite        RegistrationType = "onsite"
	TypeOnline        RegistrationType = "online"
	TypePreRegistered RegistrationType = "pre-registered"
	TypeComplimentary RegistrationType = "complimentary"
)

// Kiosk reports whether the channel is self-service and therefore subject to
// duplicate-person detection.
func (t RegistrationType) Kiosk() bool {
	return t == TypeOnsite || t == TypeOnline
}

// PaymentStatus of a registration.
type PaymentStatus string

const (
	PaymentPaid          PaymentStatus = "paid"
	PaymentUnpaid        PaymentStatus = "unpaid"
	PaymentComplimentary PaymentStatus = "complimentary"
)

// SelfService is the RegisteredBy value for registrations without an authenticated actor.
const SelfService = "self-service"

// Registration is the core aggregate root. Identity fields are written once at
// creation; afterwards only print status, print counts, confirmation and the
// asset path change.
type Registration struct {
	ID               string            `json:"id"`
	TicketNumber     string            `json:"ticket_number"`
	FirstName        string            `json:"first_name"`
	LastName         string            `json:"last_name"`
	Email            string            `json:"email,omitempty"`
	Phone            string            `json:"phone,omitempty"`
	Address          string            `json:"address,omitempty"`
	CompanyName      string            `json:"company_name,omitempty"`
	Demographics     map[string]string `json:"demographics,omitempty"`
	RegistrationType RegistrationType  `json:"registration_type"`
	PaymentStatus    PaymentStatus     `json:"payment_status"`
	BadgeStatus      PrintStatusName   `json:"badge_status"`
	TicketStatus     PrintStatusName   `json:"ticket_status"`
	BadgePrintCount  int               `json:"badge_print_count"`
	TicketPrintCount int               `json:"ticket_print_count"`
	Confirmed        bool              `json:"confirmed"`
	ConfirmedBy      string            `json:"confirmed_by,omitempty"`
	ConfirmedAt      *time.Time        `json:"confirmed_at,omitempty"`
	RegisteredBy     string            `json:"registered_by"`
	QRAssetPath      string            `json:"qr_asset_path,omitempty"`
	EmailHash        string            `json:"-"`
	PersonHash       string            `json:"-"`
	IdempotencyKey   string            `json:"-"`
	Version          int64             `json:"-"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Confirm flips the registration to confirmed. It reports false and changes
// nothing when the registration was already confirmed.
func (r *Registration) Confirm(actor string, at time.Time) bool {
	if r.Confirmed {
		return false
	}
	r.Confirmed = true
	r.ConfirmedBy = actor
	r.ConfirmedAt = &at
	r.UpdatedAt = at
	return true
}

// CanPrint checks the reprint policy for kind. A limit of zero means unlimited
// reprints; otherwise at most limit prints may follow the first one.
func (r *Registration) CanPrint(kind PrintStatusType, reprintLimit int) error {
	if reprintLimit <= 0 {
		return nil
	}
	count := r.BadgePrintCount
	if kind == PrintTicket {
		count = r.TicketPrintCount
	}
	if count-1 >= reprintLimit {
		return ErrReprintLimit
	}
	return nil
}

// AdvancePrint moves the status of kind one step forward and bumps its count.
func (r *Registration) AdvancePrint(kind PrintStatusType, at time.Time) PrintStatusName {
	r.UpdatedAt = at
	if kind == PrintTicket {
		r.TicketStatus = r.TicketStatus.Next()
		r.TicketPrintCount++
		return r.TicketStatus
	}
	r.BadgeStatus = r.BadgeStatus.Next()
	r.BadgePrintCount++
	return r.BadgeStatus
}

// NormalizeName lowercases, trims and collapses inner whitespace.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// PersonKey is the normalized identity used for duplicate-person detection.
func PersonKey(firstName, lastName, company string) string {
	return NormalizeName(firstName) + "|" + NormalizeName(lastName) + "|" + NormalizeName(company)
}
