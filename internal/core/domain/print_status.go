package domain

// PrintStatusType distinguishes the two independently tracked printables.
type PrintStatusType string

const (
	PrintBadge  PrintStatusType = "badge"
	PrintTicket PrintStatusType = "ticket"
)

// PrintStatusName is a row name in the print status lookup.
type PrintStatusName string

const (
	StatusNotPrinted PrintStatusName = "not_printed"
	StatusPrinted    PrintStatusName = "printed"
	StatusReprinted  PrintStatusName = "reprinted"
	StatusQueued     PrintStatusName = "queued"
	StatusPrinting   PrintStatusName = "printing"
	StatusFailed     PrintStatusName = "failed"
)

// printRank orders the statuses the state machine moves through.
// Statuses without a rank are lookup values only and never reached by a transition.
var printRank = map[PrintStatusName]int{
	StatusNotPrinted: 0,
	StatusPrinted:    1,
	StatusReprinted:  2,
}

// Next returns the status a print moves to: not_printed -> printed -> reprinted,
// with reprinted recurring.
func (s PrintStatusName) Next() PrintStatusName {
	switch s {
	case StatusNotPrinted, "":
		return StatusPrinted
	default:
		return StatusReprinted
	}
}

// CanTransitionTo reports whether next is the single forward step from s.
func (s PrintStatusName) CanTransitionTo(next PrintStatusName) bool {
	if _, ok := printRank[s]; !ok {
		return false
	}
	return next == s.Next()
}

// Rank exposes the forward order of s; ok is false for lookup-only statuses.
func (s PrintStatusName) Rank() (rank int, ok bool) {
	rank, ok = printRank[s]
	return rank, ok
}

// PrintStatus is a lookup row referenced by registrations and scans.
type PrintStatus struct {
	Type   PrintStatusType `json:"type"`
	Name   PrintStatusName `json:"name"`
	Active bool            `json:"active"`
}

// DefaultPrintStatuses is the reference data the seeder installs.
func DefaultPrintStatuses() []PrintStatus {
	names := []PrintStatusName{
		StatusNotPrinted, StatusPrinted, StatusReprinted,
		StatusQueued, StatusPrinting, StatusFailed,
	}
	out := make([]PrintStatus, 0, 2*len(names))
	for _, t := range []PrintStatusType{PrintBadge, PrintTicket} {
		for _, n := range names {
			out = append(out, PrintStatus{Type: t, Name: n, Active: true})
		}
	}
	return out
}
