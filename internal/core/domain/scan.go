package domain

import "time"

// Scan is an append-only audit record of a ticket being presented at check-in.
// BadgeStatus and TicketStatus snapshot the statuses the scan produced.
type Scan struct {
	ID           string          `json:"id"`
	TicketNumber string          `json:"ticket_number"`
	Actor        string          `json:"actor"`
	ScannedAt    time.Time       `json:"scanned_at"`
	BadgeStatus  PrintStatusName `json:"badge_status"`
	TicketStatus PrintStatusName `json:"ticket_status"`
	FirstScan    bool            `json:"first_scan"`
}
