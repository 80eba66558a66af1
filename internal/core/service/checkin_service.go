package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventdesk/registration-system/internal/core/domain"
	"github.com/eventdesk/registration-system/internal/core/ports"
	"github.com/eventdesk/registration-system/internal/metrics"
)

// ScanGate decides whether check-in scans are currently accepted.
type ScanGate interface {
	AllowScan(ctx context.Context) error
}

// CheckinService is the print/check-in state machine. It is the only writer of
// print status fields and the only creator of scan rows.
type CheckinService struct {
	repo         ports.RegistrationRepository
	statuses     ports.PrintStatusRepository
	gate         ScanGate
	reprintLimit int
	logger       zerolog.Logger
	now          ports.Clock
}

// NewCheckinService builds the state machine. A reprintLimit of zero allows
// unlimited reprints.
func NewCheckinService(
	repo ports.RegistrationRepository,
	statuses ports.PrintStatusRepository,
	gate ScanGate,
	reprintLimit int,
	logger zerolog.Logger,
) *CheckinService {
	return &CheckinService{
		repo:         repo,
		statuses:     statuses,
		gate:         gate,
		reprintLimit: reprintLimit,
		logger:       logger,
		now:          time.Now,
	}
}

// Scan checks a ticket in: confirms the registration on first scan, advances
// badge and ticket status one step and appends an audit row.
func (s *CheckinService) Scan(ctx context.Context, ticketNumber, actor string) (*ports.ScanResult, error) {
	if _, err := s.repo.FindByTicketNumber(ctx, ticketNumber); err != nil {
		return nil, s.fail("scan", ticketNumber, err)
	}
	if err := s.gate.AllowScan(ctx); err != nil {
		return nil, s.fail("scan", ticketNumber, err)
	}
	if err := s.requireTargets(ctx, domain.PrintBadge, domain.PrintTicket); err != nil {
		return nil, s.fail("scan", ticketNumber, err)
	}

	reg, scan, err := s.repo.Transition(ctx, ticketNumber, func(r *domain.Registration) (*domain.Scan, error) {
		if err := r.CanPrint(domain.PrintBadge, s.reprintLimit); err != nil {
			return nil, err
		}
		if err := r.CanPrint(domain.PrintTicket, s.reprintLimit); err != nil {
			return nil, err
		}

		at := s.now().UTC()
		first := r.Confirm(actor, at)
		r.AdvancePrint(domain.PrintBadge, at)
		r.AdvancePrint(domain.PrintTicket, at)

		return &domain.Scan{
			TicketNumber: r.TicketNumber,
			Actor:        actor,
			ScannedAt:    at,
			BadgeStatus:  r.BadgeStatus,
			TicketStatus: r.TicketStatus,
			FirstScan:    first,
		}, nil
	})
	if err != nil {
		return nil, s.fail("scan", ticketNumber, err)
	}

	metrics.ScansTotal.WithLabelValues(strconv.FormatBool(scan.FirstScan)).Inc()
	metrics.PrintsTotal.WithLabelValues(string(domain.PrintBadge), string(reg.BadgeStatus)).Inc()
	metrics.PrintsTotal.WithLabelValues(string(domain.PrintTicket), string(reg.TicketStatus)).Inc()
	s.logger.Info().
		Str("ticket_number", ticketNumber).
		Str("actor", actor).
		Bool("first_scan", scan.FirstScan).
		Str("badge_status", string(reg.BadgeStatus)).
		Msg("ticket scanned")

	return &ports.ScanResult{Registration: reg, Scan: scan}, nil
}

// PrintBadge advances only the badge status.
func (s *CheckinService) PrintBadge(ctx context.Context, ticketNumber, actor string) (*domain.Registration, error) {
	return s.print(ctx, ticketNumber, actor, domain.PrintBadge)
}

// PrintTicket advances only the ticket status.
func (s *CheckinService) PrintTicket(ctx context.Context, ticketNumber, actor string) (*domain.Registration, error) {
	return s.print(ctx, ticketNumber, actor, domain.PrintTicket)
}

func (s *CheckinService) print(ctx context.Context, ticketNumber, actor string, kind domain.PrintStatusType) (*domain.Registration, error) {
	op := "print " + string(kind)
	if err := s.requireTargets(ctx, kind); err != nil {
		return nil, s.fail(op, ticketNumber, err)
	}

	var status domain.PrintStatusName
	reg, _, err := s.repo.Transition(ctx, ticketNumber, func(r *domain.Registration) (*domain.Scan, error) {
		if err := r.CanPrint(kind, s.reprintLimit); err != nil {
			return nil, err
		}
		status = r.AdvancePrint(kind, s.now().UTC())
		return nil, nil
	})
	if err != nil {
		return nil, s.fail(op, ticketNumber, err)
	}

	metrics.PrintsTotal.WithLabelValues(string(kind), string(status)).Inc()
	s.logger.Info().
		Str("ticket_number", ticketNumber).
		Str("actor", actor).
		Str("type", string(kind)).
		Str("status", string(status)).
		Msg("printed")
	return reg, nil
}

// Scans returns the audit trail of a ticket.
func (s *CheckinService) Scans(ctx context.Context, ticketNumber string) ([]*domain.Scan, error) {
	if _, err := s.repo.FindByTicketNumber(ctx, ticketNumber); err != nil {
		return nil, fmt.Errorf("scans: %w", err)
	}
	scans, err := s.repo.Scans(ctx, ticketNumber)
	if err != nil {
		return nil, fmt.Errorf("scans: %w", err)
	}
	return scans, nil
}

// requireTargets verifies the statuses a print can move to are configured.
func (s *CheckinService) requireTargets(ctx context.Context, kinds ...domain.PrintStatusType) error {
	for _, kind := range kinds {
		for _, name := range []domain.PrintStatusName{domain.StatusPrinted, domain.StatusReprinted} {
			st, err := s.statuses.Find(ctx, kind, name)
			if err != nil {
				return err
			}
			if !st.Active {
				return fmt.Errorf("%s %s inactive: %w", kind, name, domain.ErrPrintStatusMissing)
			}
		}
	}
	return nil
}

func (s *CheckinService) fail(op, ticketNumber string, err error) error {
	reason := "unavailable"
	switch {
	case errors.Is(err, domain.ErrNotFound):
		reason = "not_found"
	case errors.Is(err, domain.ErrForbidden):
		reason = "forbidden"
	case errors.Is(err, domain.ErrReprintLimit):
		reason = "reprint_limit"
	case errors.Is(err, domain.ErrStaleRegistration):
		reason = "stale"
	case errors.Is(err, domain.ErrConfigurationMissing):
		reason = "configuration_missing"
	}
	metrics.CheckinErrorsTotal.WithLabelValues(reason).Inc()
	s.logger.Debug().Err(err).Str("ticket_number", ticketNumber).Str("op", op).Msg("check-in rejected")

	if reason == "unavailable" {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
