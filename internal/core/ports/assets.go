package ports

import (
	"context"
	"io"
)

// AssetEncoder renders scannable content into an image.
type AssetEncoder interface {
	Encode(content string) ([]byte, error)
}

// AssetStore keeps generated images under a deterministic path per ticket.
type AssetStore interface {
	// Put writes data for ticketNumber, overwriting any previous asset, and
	// returns the stored path.
	Put(ctx context.Context, ticketNumber string, data []byte) (string, error)
	// Open returns the asset or domain.ErrAssetPending when it does not exist yet.
	Open(ctx context.Context, ticketNumber string) (io.ReadCloser, error)
	Path(ticketNumber string) string
}

// AssetJob asks the background runner to generate a ticket's QR asset.
type AssetJob struct {
	TicketNumber string `json:"ticket_number"`
	Attempt      int    `json:"attempt"`
}

// AssetQueue accepts asset jobs for background generation.
type AssetQueue interface {
	Enqueue(ctx context.Context, job AssetJob) error
}

// AssetJobHandler processes one asset job; a returned error schedules a retry.
type AssetJobHandler interface {
	Process(ctx context.Context, job AssetJob) error
}

// BadgeService is the badge asset generator use case.
type BadgeService interface {
	Generate(ctx context.Context, ticketNumber string) (string, error)
	Enqueue(ctx context.Context, ticketNumber string) error
	Regenerate(ctx context.Context, ticketNumber string) error
	Open(ctx context.Context, ticketNumber string) (io.ReadCloser, error)
}
