package domain

import "time"

// ServerMode is the global switch deciding which intake channels are open.
type ServerMode string

const (
	ModeOnsite     ServerMode = "onsite"
	ModeOnline     ServerMode = "online"
	ModeBoth       ServerMode = "both"
	ModeDeactivate ServerMode = "deactivate"
)

// Valid reports whether m is one of the known modes.
func (m ServerMode) Valid() bool {
	switch m {
	case ModeOnsite, ModeOnline, ModeBoth, ModeDeactivate:
		return true
	}
	return false
}

// AllowsIntake reports whether registrations of type t are accepted under m.
// Staff channels (pre-registered, complimentary) are open in every mode but deactivate.
func (m ServerMode) AllowsIntake(t RegistrationType) bool {
	switch t {
	case TypeOnsite:
		return m == ModeOnsite || m == ModeBoth
	case TypeOnline:
		return m == ModeOnline || m == ModeBoth
	case TypePreRegistered, TypeComplimentary:
		return m.Valid() && m != ModeDeactivate
	}
	return false
}

// AllowsScan reports whether check-in scans are accepted under m.
func (m ServerMode) AllowsScan() bool {
	return m.Valid() && m != ModeDeactivate
}

// ServerModeRecord is one row of the append-only mode log. The latest row is
// the current mode.
type ServerModeRecord struct {
	ID          string     `json:"id"`
	Mode        ServerMode `json:"mode"`
	ActivatedBy string     `json:"activated_by"`
	ActivatedAt time.Time  `json:"activated_at"`
}
