package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eventdesk/registration-system/internal/core/domain"
	"github.com/eventdesk/registration-system/internal/core/ports"
	"github.com/eventdesk/registration-system/internal/metrics"
)

const (
	hashDomainEmail  = "email"
	hashDomainPerson = "person"

	defaultLockTTL   = 10 * time.Second
	ticketAllocTries = 3
)

// IntakeGate decides whether an intake channel is currently open.
type IntakeGate interface {
	AllowIntake(ctx context.Context, channel domain.RegistrationType) error
}

// AssetScheduler is the part of the badge generator intake depends on.
type AssetScheduler interface {
	Generate(ctx context.Context, ticketNumber string) (string, error)
	Enqueue(ctx context.Context, ticketNumber string) error
}

// RegistrationOptions tunes RegistrationService.
type RegistrationOptions struct {
	// LockTTL bounds how long a person key stays locked if the holder dies.
	LockTTL time.Duration
}

// RegistrationService issues tickets for validated, deduplicated intake.
type RegistrationService struct {
	repo      ports.RegistrationRepository
	statuses  ports.PrintStatusRepository
	gate      IntakeGate
	assets    AssetScheduler
	hasher    ports.LookupHasher
	locker    ports.PersonLocker
	validator *intakeValidator
	lockTTL   time.Duration
	logger    zerolog.Logger
	now       ports.Clock
	newTicket func() string
}

func NewRegistrationService(
	repo ports.RegistrationRepository,
	statuses ports.PrintStatusRepository,
	gate IntakeGate,
	assets AssetScheduler,
	hasher ports.LookupHasher,
	locker ports.PersonLocker,
	opts RegistrationOptions,
	logger zerolog.Logger,
) *RegistrationService {
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	return &RegistrationService{
		repo:      repo,
		statuses:  statuses,
		gate:      gate,
		assets:    assets,
		hasher:    hasher,
		locker:    locker,
		validator: newIntakeValidator(),
		lockTTL:   opts.LockTTL,
		logger:    logger,
		now:       time.Now,
		newTicket: uuid.NewString,
	}
}

// Register validates intake data, rejects duplicates, allocates a ticket number
// and persists the registration. QR generation failures never fail the call.
func (s *RegistrationService) Register(ctx context.Context, in ports.RegisterInput) (*ports.RegisterResult, error) {
	channel := domain.RegistrationType(in.RegistrationType)
	if in.IdempotencyKey != "" {
		res, found, err := s.replay(ctx, in.IdempotencyKey, channel)
		if err != nil || found {
			return res, err
		}
	}

	if err := s.validator.Validate(in); err != nil {
		// An unknown channel cannot be gated; report it as a validation failure.
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			if _, bad := verr.Fields["registration_type"]; !bad {
				if gateErr := s.gate.AllowIntake(ctx, channel); gateErr != nil {
					return nil, s.reject(gateErr, "intake_closed")
				}
			}
		}
		return nil, s.reject(err, "validation")
	}
	if err := s.gate.AllowIntake(ctx, channel); err != nil {
		return nil, s.reject(err, "intake_closed")
	}

	if err := s.requireInitialStatuses(ctx); err != nil {
		return nil, s.reject(err, "configuration_missing")
	}

	reg := s.buildRegistration(in, channel)

	if channel.Kiosk() && s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, reg.PersonHash, s.lockTTL)
		switch {
		case err != nil:
			// person_hash carries no unique index, so intake without the lock could
			// admit the same person twice.
			s.logger.Error().Err(err).Msg("person lock unavailable, refusing kiosk intake")
			return nil, s.reject(fmt.Errorf("register: person lock: %w: %v", domain.ErrUnavailable, err), "lock_unavailable")
		case !ok:
			return nil, s.reject(domain.ErrRegistrationBusy, "duplicate_person")
		default:
			defer release()
		}
	}

	if channel.Kiosk() {
		dup, err := s.repo.ExistsByPersonHash(ctx, reg.PersonHash)
		if err != nil {
			return nil, fmt.Errorf("register: person check: %w: %v", domain.ErrUnavailable, err)
		}
		if dup {
			return nil, s.reject(domain.ErrDuplicatePerson, "duplicate_person")
		}
	}

	if reg.EmailHash != "" {
		dup, err := s.repo.ExistsByEmailHash(ctx, reg.EmailHash)
		if err != nil {
			return nil, fmt.Errorf("register: email check: %w: %v", domain.ErrUnavailable, err)
		}
		if dup {
			return nil, s.reject(domain.ErrDuplicateEmail, "duplicate_email")
		}
	}

	if err := s.persist(ctx, reg); err != nil {
		if errors.Is(err, domain.ErrIdempotencyKeyReused) {
			res, found, replayErr := s.replay(ctx, in.IdempotencyKey, channel)
			if replayErr != nil || found {
				return res, replayErr
			}
		}
		if errors.Is(err, domain.ErrConflict) {
			return nil, s.reject(err, "conflict")
		}
		s.logger.Error().Err(err).Msg("failed to persist registration")
		return nil, fmt.Errorf("register: %w: %v", domain.ErrUnavailable, err)
	}

	metrics.RegistrationsCreatedTotal.WithLabelValues(string(channel)).Inc()
	s.logger.Info().
		Str("ticket_number", reg.TicketNumber).
		Str("registration_type", string(channel)).
		Str("registered_by", reg.RegisteredBy).
		Msg("registration created")

	return &ports.RegisterResult{Registration: reg, AssetReady: s.scheduleAsset(ctx, reg)}, nil
}

// replay returns the registration already stored under key. A key first used
// on another channel is refused, so the stored record never reaches a caller
// that did not create it.
func (s *RegistrationService) replay(ctx context.Context, key string, channel domain.RegistrationType) (*ports.RegisterResult, bool, error) {
	existing, err := s.repo.FindByIdempotencyKey(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("register: idempotency lookup: %w: %v", domain.ErrUnavailable, err)
	}
	if existing.RegistrationType != channel {
		s.logger.Warn().
			Str("idempotency_key", key).
			Str("stored_type", string(existing.RegistrationType)).
			Str("registration_type", string(channel)).
			Msg("idempotency key reused across channels")
		return nil, false, s.reject(domain.ErrIdempotencyKeyReused, "conflict")
	}

	s.logger.Info().Str("idempotency_key", key).Str("ticket_number", existing.TicketNumber).Msg("idempotent replay")
	return &ports.RegisterResult{Registration: existing, AssetReady: existing.QRAssetPath != "", AlreadyExisted: true}, true, nil
}

// persist retries ticket allocation on the (practically impossible) UUID collision.
func (s *RegistrationService) persist(ctx context.Context, reg *domain.Registration) error {
	var err error
	for i := 0; i < ticketAllocTries; i++ {
		err = s.repo.Create(ctx, reg)
		if !errors.Is(err, domain.ErrDuplicateTicket) {
			return err
		}
		reg.TicketNumber = s.newTicket()
	}
	return err
}

// scheduleAsset generates the QR code inline for online intake and queues it
// otherwise, or when inline generation fails.
func (s *RegistrationService) scheduleAsset(ctx context.Context, reg *domain.Registration) bool {
	if s.assets == nil {
		return false
	}
	if reg.RegistrationType == domain.TypeOnline {
		path, err := s.assets.Generate(ctx, reg.TicketNumber)
		if err == nil {
			reg.QRAssetPath = path
			return true
		}
		s.logger.Warn().Err(err).Str("ticket_number", reg.TicketNumber).Msg("inline asset generation failed, queueing")
	}
	if err := s.assets.Enqueue(ctx, reg.TicketNumber); err != nil {
		s.logger.Error().Err(err).Str("ticket_number", reg.TicketNumber).Msg("failed to queue asset generation")
	}
	return false
}

func (s *RegistrationService) requireInitialStatuses(ctx context.Context) error {
	for _, t := range []domain.PrintStatusType{domain.PrintBadge, domain.PrintTicket} {
		st, err := s.statuses.Find(ctx, t, domain.StatusNotPrinted)
		if err != nil {
			return fmt.Errorf("register: %s status: %w", t, err)
		}
		if !st.Active {
			return fmt.Errorf("register: %s %s inactive: %w", t, st.Name, domain.ErrPrintStatusMissing)
		}
	}
	return nil
}

func (s *RegistrationService) buildRegistration(in ports.RegisterInput, channel domain.RegistrationType) *domain.Registration {
	now := s.now().UTC()

	payment := domain.PaymentStatus(in.PaymentStatus)
	if channel == domain.TypeComplimentary {
		payment = domain.PaymentComplimentary
	} else if payment == "" {
		payment = domain.PaymentUnpaid
	}

	registeredBy := in.Actor
	if registeredBy == "" {
		registeredBy = domain.SelfService
	}

	reg := &domain.Registration{
		TicketNumber:     s.newTicket(),
		FirstName:        strings.TrimSpace(in.FirstName),
		LastName:         strings.TrimSpace(in.LastName),
		Email:            strings.TrimSpace(in.Email),
		Phone:            strings.TrimSpace(in.Phone),
		Address:          strings.TrimSpace(in.Address),
		CompanyName:      strings.TrimSpace(in.CompanyName),
		Demographics:     in.Demographics,
		RegistrationType: channel,
		PaymentStatus:    payment,
		BadgeStatus:      domain.StatusNotPrinted,
		TicketStatus:     domain.StatusNotPrinted,
		RegisteredBy:     registeredBy,
		IdempotencyKey:   in.IdempotencyKey,
		PersonHash:       s.hasher.Hash(hashDomainPerson, domain.PersonKey(in.FirstName, in.LastName, in.CompanyName)),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if reg.Email != "" {
		reg.EmailHash = s.hasher.Hash(hashDomainEmail, domain.NormalizeEmail(reg.Email))
	}
	return reg
}

func (s *RegistrationService) reject(err error, reason string) error {
	metrics.RegistrationsRejectedTotal.WithLabelValues(reason).Inc()
	s.logger.Debug().Err(err).Str("reason", reason).Msg("registration rejected")
	return err
}

// Get returns the registration for a ticket number.
func (s *RegistrationService) Get(ctx context.Context, ticketNumber string) (*domain.Registration, error) {
	reg, err := s.repo.FindByTicketNumber(ctx, ticketNumber)
	if err != nil {
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

// List returns a page of registrations.
func (s *RegistrationService) List(ctx context.Context, in ports.ListRegistrationsInput) (*ports.ListRegistrationsResult, error) {
	page, limit := normalizePage(in.Page, in.Limit)

	items, total, err := s.repo.List(ctx, ports.ListRegistrationsFilter{
		RegistrationType: in.RegistrationType,
		BadgeStatus:      in.BadgeStatus,
		Confirmed:        in.Confirmed,
		Page:             page,
		Limit:            limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return &ports.ListRegistrationsResult{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages(total, limit),
	}, nil
}

// Count returns the number of registrations.
func (s *RegistrationService) Count(ctx context.Context) (int64, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return n, nil
}
