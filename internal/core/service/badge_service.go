package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventdesk/registration-system/internal/core/domain"
	"github.com/eventdesk/registration-system/internal/core/ports"
	"github.com/eventdesk/registration-system/internal/metrics"
)

// BadgeService generates and serves the QR asset of a ticket.
type BadgeService struct {
	repo          ports.RegistrationRepository
	encoder       ports.AssetEncoder
	store         ports.AssetStore
	queue         ports.AssetQueue
	contentPrefix string
	logger        zerolog.Logger
}

// NewBadgeService wires the generator. contentPrefix is prepended to the ticket
// number before encoding, e.g. a check-in URL; empty encodes the bare ticket.
func NewBadgeService(
	repo ports.RegistrationRepository,
	encoder ports.AssetEncoder,
	store ports.AssetStore,
	contentPrefix string,
	logger zerolog.Logger,
) *BadgeService {
	return &BadgeService{
		repo:          repo,
		encoder:       encoder,
		store:         store,
		contentPrefix: contentPrefix,
		logger:        logger,
	}
}

// UseQueue sets the queue Enqueue hands jobs to. The queue's workers call back
// into Process, so it is attached after construction.
func (s *BadgeService) UseQueue(q ports.AssetQueue) {
	s.queue = q
}

// Generate encodes the ticket, stores the image and records its path. Running it
// twice for the same ticket yields the same path and the same bytes.
func (s *BadgeService) Generate(ctx context.Context, ticketNumber string) (string, error) {
	return s.generate(ctx, ticketNumber, "inline")
}

// Process implements ports.AssetJobHandler for the background runner.
func (s *BadgeService) Process(ctx context.Context, job ports.AssetJob) error {
	_, err := s.generate(ctx, job.TicketNumber, "background")
	return err
}

func (s *BadgeService) generate(ctx context.Context, ticketNumber, mode string) (string, error) {
	start := time.Now()

	path, err := s.render(ctx, ticketNumber)
	if err != nil {
		metrics.AssetsGeneratedTotal.WithLabelValues(mode, "error").Inc()
		return "", err
	}

	metrics.AssetsGeneratedTotal.WithLabelValues(mode, "ok").Inc()
	metrics.AssetGenerationDuration.Observe(time.Since(start).Seconds())
	s.logger.Debug().Str("ticket_number", ticketNumber).Str("path", path).Str("mode", mode).Msg("asset generated")
	return path, nil
}

func (s *BadgeService) render(ctx context.Context, ticketNumber string) (string, error) {
	if _, err := s.repo.FindByTicketNumber(ctx, ticketNumber); err != nil {
		return "", fmt.Errorf("generate asset: %w", err)
	}

	png, err := s.encoder.Encode(s.contentPrefix + ticketNumber)
	if err != nil {
		return "", fmt.Errorf("generate asset: encode: %w", err)
	}

	path, err := s.store.Put(ctx, ticketNumber, png)
	if err != nil {
		return "", fmt.Errorf("generate asset: store: %w: %v", domain.ErrUnavailable, err)
	}

	if err := s.repo.SetAssetPath(ctx, ticketNumber, path); err != nil {
		return "", fmt.Errorf("generate asset: record path: %w", err)
	}
	return path, nil
}

// Enqueue schedules background generation for a ticket.
func (s *BadgeService) Enqueue(ctx context.Context, ticketNumber string) error {
	if s.queue == nil {
		return fmt.Errorf("enqueue asset: %w: no queue configured", domain.ErrUnavailable)
	}
	if err := s.queue.Enqueue(ctx, ports.AssetJob{TicketNumber: ticketNumber, Attempt: 1}); err != nil {
		return fmt.Errorf("enqueue asset: %w", err)
	}
	return nil
}

// Regenerate checks the ticket exists and queues a fresh asset for it.
func (s *BadgeService) Regenerate(ctx context.Context, ticketNumber string) error {
	if _, err := s.repo.FindByTicketNumber(ctx, ticketNumber); err != nil {
		return fmt.Errorf("regenerate asset: %w", err)
	}
	return s.Enqueue(ctx, ticketNumber)
}

// Open streams the stored PNG, or returns domain.ErrAssetPending.
func (s *BadgeService) Open(ctx context.Context, ticketNumber string) (io.ReadCloser, error) {
	return s.store.Open(ctx, ticketNumber)
}
