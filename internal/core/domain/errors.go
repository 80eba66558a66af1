package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error kinds. Every error returned by the core wraps exactly one of these so
// the transport layer can pick a status code with errors.Is.
var (
	ErrValidation           = errors.New("validation failed")
	ErrConflict             = errors.New("conflict")
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("access forbidden")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrConfigurationMissing = errors.New("configuration missing")
	ErrUnavailable          = errors.New("service unavailable")
)

var (
	ErrRegistrationNotFound = fmt.Errorf("%w: registration not found", ErrNotFound)
	ErrDuplicatePerson      = fmt.Errorf("%w: registrant already registered", ErrConflict)
	ErrDuplicateEmail       = fmt.Errorf("%w: email already registered", ErrConflict)
	ErrDuplicateTicket      = fmt.Errorf("%w: ticket number already issued", ErrConflict)
	ErrRegistrationBusy     = fmt.Errorf("%w: registration for this person is in progress", ErrConflict)
	ErrReprintLimit         = fmt.Errorf("%w: reprint limit reached", ErrConflict)
	ErrStaleRegistration    = fmt.Errorf("%w: registration changed concurrently", ErrConflict)
	ErrIdempotencyKeyReused = fmt.Errorf("%w: idempotency key already used", ErrConflict)

	ErrIntakeClosed  = fmt.Errorf("%w: intake channel is closed", ErrForbidden)
	ErrScanForbidden = fmt.Errorf("%w: scanning is disabled", ErrForbidden)
	ErrProtectedUser = fmt.Errorf("%w: superadmin cannot be deleted", ErrForbidden)
	ErrUserDisabled  = fmt.Errorf("%w: user is disabled", ErrUnauthorized)

	ErrServerModeMissing  = fmt.Errorf("%w: server mode not set", ErrConfigurationMissing)
	ErrPrintStatusMissing = fmt.Errorf("%w: print status not configured", ErrConfigurationMissing)

	ErrAssetPending = fmt.Errorf("%w: asset not generated yet", ErrNotFound)

	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	ErrUserNotFound       = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrUserExists         = fmt.Errorf("%w: user already exists", ErrConflict)
	ErrRoleNotFound       = fmt.Errorf("%w: role not found", ErrNotFound)
)

// ValidationError reports every violated field of a request at once.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError returns an empty ValidationError ready for Add.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string][]string)}
}

// Add records a message for field.
func (e *ValidationError) Add(field, msg string) {
	e.Fields[field] = append(e.Fields[field], msg)
}

// Empty reports whether no violation was recorded.
func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
