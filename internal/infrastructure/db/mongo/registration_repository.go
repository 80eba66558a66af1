package mongo

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/eventdesk/registration-system/internal/core/domain"
	"github.com/eventdesk/registration-system/internal/core/ports"
	"github.com/eventdesk/registration-system/internal/infrastructure/pii"
)

const (
	collectionRegistrations = "registrations"

	indexTicket      = "uniq_ticket_number"
	indexEmailHash   = "uniq_email_hash"
	indexIdempotency = "uniq_idempotency_key"

	// maxTransitionAttempts bounds the optimistic retry loop of Transition.
	maxTransitionAttempts = 10
	transitionBackoff     = 2 * time.Millisecond
)

// RegistrationRepository stores registrations with their scans embedded, so a
// status change and its audit row are written by one atomic update.
type RegistrationRepository struct {
	col    *mongo.Collection
	cipher ports.FieldCipher
}

func NewRegistrationRepository(db *mongo.Database, cipher ports.FieldCipher) *RegistrationRepository {
	return &RegistrationRepository{col: db.Collection(collectionRegistrations), cipher: cipher}
}

type scanDoc struct {
	ID           string    `bson:"id"`
	Actor        string    `bson:"actor"`
	ScannedAt    time.Time `bson:"scanned_at"`
	BadgeStatus  string    `bson:"badge_status"`
	TicketStatus string    `bson:"ticket_status"`
	FirstScan    bool      `bson:"first_scan"`
}

type registrationDoc struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	TicketNumber     string             `bson:"ticket_number"`
	FirstName        string             `bson:"first_name"`
	LastName         string             `bson:"last_name"`
	Email            string             `bson:"email,omitempty"`
	Phone            string             `bson:"phone,omitempty"`
	Address          string             `bson:"address,omitempty"`
	CompanyName      string             `bson:"company_name,omitempty"`
	Demographics     map[string]string  `bson:"demographics,omitempty"`
	RegistrationType string             `bson:"registration_type"`
	PaymentStatus    string             `bson:"payment_status"`
	BadgeStatus      string             `bson:"badge_status"`
	TicketStatus     string             `bson:"ticket_status"`
	BadgePrintCount  int                `bson:"badge_print_count"`
	TicketPrintCount int                `bson:"ticket_print_count"`
	Confirmed        bool               `bson:"confirmed"`
	ConfirmedBy      string             `bson:"confirmed_by,omitempty"`
	ConfirmedAt      *time.Time         `bson:"confirmed_at,omitempty"`
	RegisteredBy     string             `bson:"registered_by"`
	QRAssetPath      string             `bson:"qr_asset_path,omitempty"`
	EmailHash        string             `bson:"email_hash,omitempty"`
	PersonHash       string             `bson:"person_hash"`
	IdempotencyKey   string             `bson:"idempotency_key,omitempty"`
	Version          int64              `bson:"version"`
	Scans            []scanDoc          `bson:"scans,omitempty"`
	CreatedAt        time.Time          `bson:"created_at"`
	UpdatedAt        time.Time          `bson:"updated_at"`
}

// Create inserts a registration and maps unique violations to domain errors.
func (r *RegistrationRepository) Create(ctx context.Context, reg *domain.Registration) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	id, err := pii.Seal(r.cipher, reg)
	if err != nil {
		return err
	}

	doc := registrationDoc{
		TicketNumber:     reg.TicketNumber,
		FirstName:        id.FirstName,
		LastName:         id.LastName,
		Email:            id.Email,
		Phone:            id.Phone,
		Address:          id.Address,
		CompanyName:      id.CompanyName,
		Demographics:     reg.Demographics,
		RegistrationType: string(reg.RegistrationType),
		PaymentStatus:    string(reg.PaymentStatus),
		BadgeStatus:      string(reg.BadgeStatus),
		TicketStatus:     string(reg.TicketStatus),
		Confirmed:        reg.Confirmed,
		RegisteredBy:     reg.RegisteredBy,
		QRAssetPath:      reg.QRAssetPath,
		EmailHash:        reg.EmailHash,
		PersonHash:       reg.PersonHash,
		IdempotencyKey:   reg.IdempotencyKey,
		CreatedAt:        reg.CreatedAt,
		UpdatedAt:        reg.UpdatedAt,
	}

	res, err := r.col.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return duplicateError(err)
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		reg.ID = oid.Hex()
	}
	return nil
}

func duplicateError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, indexEmailHash):
		return domain.ErrDuplicateEmail
	case strings.Contains(msg, indexIdempotency):
		return domain.ErrIdempotencyKeyReused
	default:
		return domain.ErrDuplicateTicket
	}
}

func (r *RegistrationRepository) FindByTicketNumber(ctx context.Context, ticketNumber string) (*domain.Registration, error) {
	return r.findOne(ctx, bson.M{"ticket_number": ticketNumber})
}

func (r *RegistrationRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Registration, error) {
	return r.findOne(ctx, bson.M{"idempotency_key": key})
}

func (r *RegistrationRepository) findOne(ctx context.Context, filter bson.M) (*domain.Registration, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc registrationDoc
	opts := options.FindOne().SetProjection(bson.M{"scans": 0})
	if err := r.col.FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return r.toDomain(&doc)
}

func (r *RegistrationRepository) ExistsByPersonHash(ctx context.Context, hash string) (bool, error) {
	return r.exists(ctx, bson.M{"person_hash": hash})
}

func (r *RegistrationRepository) ExistsByEmailHash(ctx context.Context, hash string) (bool, error) {
	return r.exists(ctx, bson.M{"email_hash": hash})
}

func (r *RegistrationRepository) exists(ctx context.Context, filter bson.M) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	n, err := r.col.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count registrations: %w", err)
	}
	return n > 0, nil
}

// List returns a page of registrations newest first.
func (r *RegistrationRepository) List(ctx context.Context, f ports.ListRegistrationsFilter) ([]*domain.Registration, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{}
	if f.RegistrationType != "" {
		filter["registration_type"] = f.RegistrationType
	}
	if f.BadgeStatus != "" {
		filter["badge_status"] = f.BadgeStatus
	}
	if f.Confirmed != nil {
		filter["confirmed"] = *f.Confirmed
	}

	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64((f.Page - 1) * f.Limit)).
		SetLimit(int64(f.Limit)).
		SetProjection(bson.M{"scans": 0})

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}
	defer cur.Close(ctx)

	var docs []registrationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("decode registrations: %w", err)
	}

	out := make([]*domain.Registration, 0, len(docs))
	for i := range docs {
		reg, err := r.toDomain(&docs[i])
		if err != nil {
			return nil, 0, err
		}
		out = append(out, reg)
	}
	return out, total, nil
}

func (r *RegistrationRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	n, err := r.col.EstimatedDocumentCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return n, nil
}

func (r *RegistrationRepository) SetAssetPath(ctx context.Context, ticketNumber, path string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.M{"ticket_number": ticketNumber},
		bson.M{"$set": bson.M{"qr_asset_path": path}},
	)
	if err != nil {
		return fmt.Errorf("set asset path: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrRegistrationNotFound
	}
	return nil
}

// Transition applies fn with optimistic concurrency on the version field. A
// concurrent writer makes the conditional update miss, and fn is re-run on
// the fresh state.
func (r *RegistrationRepository) Transition(ctx context.Context, ticketNumber string, fn ports.TransitionFunc) (*domain.Registration, *domain.Scan, error) {
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		reg, err := r.FindByTicketNumber(ctx, ticketNumber)
		if err != nil {
			return nil, nil, err
		}
		prev := reg.Version

		scan, err := fn(reg)
		if err != nil {
			return nil, nil, err
		}

		set := bson.M{
			"badge_status":       string(reg.BadgeStatus),
			"ticket_status":      string(reg.TicketStatus),
			"badge_print_count":  reg.BadgePrintCount,
			"ticket_print_count": reg.TicketPrintCount,
			"confirmed":          reg.Confirmed,
			"confirmed_by":       reg.ConfirmedBy,
			"confirmed_at":       reg.ConfirmedAt,
			"updated_at":         reg.UpdatedAt,
			"version":            prev + 1,
		}
		update := bson.M{"$set": set}
		if scan != nil {
			scan.ID = primitive.NewObjectID().Hex()
			scan.TicketNumber = ticketNumber
			update["$push"] = bson.M{"scans": scanDoc{
				ID:           scan.ID,
				Actor:        scan.Actor,
				ScannedAt:    scan.ScannedAt,
				BadgeStatus:  string(scan.BadgeStatus),
				TicketStatus: string(scan.TicketStatus),
				FirstScan:    scan.FirstScan,
			}}
		}

		uctx, cancel := context.WithTimeout(ctx, defaultTimeout)
		res, err := r.col.UpdateOne(uctx, bson.M{"ticket_number": ticketNumber, "version": prev}, update)
		cancel()
		if err != nil {
			return nil, nil, fmt.Errorf("transition registration: %w", err)
		}
		if res.MatchedCount == 1 {
			reg.Version = prev + 1
			return reg, scan, nil
		}
		if attempt < maxTransitionAttempts-1 {
			if err := waitRetry(ctx, attempt); err != nil {
				return nil, nil, err
			}
		}
	}
	return nil, nil, domain.ErrStaleRegistration
}

// waitRetry sleeps a jittered, growing delay so writers that lost the same
// round do not collide again on the next one.
func waitRetry(ctx context.Context, attempt int) error {
	base := transitionBackoff << min(attempt, 5)
	t := time.NewTimer(base/2 + rand.N(base))
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *RegistrationRepository) Scans(ctx context.Context, ticketNumber string) ([]*domain.Scan, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc struct {
		Scans []scanDoc `bson:"scans"`
	}
	opts := options.FindOne().SetProjection(bson.M{"scans": 1})
	if err := r.col.FindOne(ctx, bson.M{"ticket_number": ticketNumber}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("find scans: %w", err)
	}

	out := make([]*domain.Scan, 0, len(doc.Scans))
	for _, s := range doc.Scans {
		out = append(out, &domain.Scan{
			ID:           s.ID,
			TicketNumber: ticketNumber,
			Actor:        s.Actor,
			ScannedAt:    s.ScannedAt.UTC(),
			BadgeStatus:  domain.PrintStatusName(s.BadgeStatus),
			TicketStatus: domain.PrintStatusName(s.TicketStatus),
			FirstScan:    s.FirstScan,
		})
	}
	return out, nil
}

func (r *RegistrationRepository) toDomain(doc *registrationDoc) (*domain.Registration, error) {
	reg := &domain.Registration{
		ID:               doc.ID.Hex(),
		TicketNumber:     doc.TicketNumber,
		Demographics:     doc.Demographics,
		RegistrationType: domain.RegistrationType(doc.RegistrationType),
		PaymentStatus:    domain.PaymentStatus(doc.PaymentStatus),
		BadgeStatus:      domain.PrintStatusName(doc.BadgeStatus),
		TicketStatus:     domain.PrintStatusName(doc.TicketStatus),
		BadgePrintCount:  doc.BadgePrintCount,
		TicketPrintCount: doc.TicketPrintCount,
		Confirmed:        doc.Confirmed,
		ConfirmedBy:      doc.ConfirmedBy,
		RegisteredBy:     doc.RegisteredBy,
		QRAssetPath:      doc.QRAssetPath,
		EmailHash:        doc.EmailHash,
		PersonHash:       doc.PersonHash,
		IdempotencyKey:   doc.IdempotencyKey,
		Version:          doc.Version,
		CreatedAt:        doc.CreatedAt.UTC(),
		UpdatedAt:        doc.UpdatedAt.UTC(),
	}
	if doc.ConfirmedAt != nil {
		at := doc.ConfirmedAt.UTC()
		reg.ConfirmedAt = &at
	}

	id := pii.Identity{
		FirstName:   doc.FirstName,
		LastName:    doc.LastName,
		Email:       doc.Email,
		Phone:       doc.Phone,
		Address:     doc.Address,
		CompanyName: doc.CompanyName,
	}
	if err := pii.Open(r.cipher, id, reg); err != nil {
		return nil, fmt.Errorf("registration %s: %w", doc.TicketNumber, err)
	}
	return reg, nil
}

// EnsureIndexes creates the unique and lookup indexes on registrations.
func (r *RegistrationRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "ticket_number", Value: 1}},
			Options: options.Index().SetName(indexTicket).SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "email_hash", Value: 1}},
			Options: options.Index().SetName(indexEmailHash).SetUnique(true).SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "idempotency_key", Value: 1}},
			Options: options.Index().SetName(indexIdempotency).SetUnique(true).SetSparse(true),
		},
		{Keys: bson.D{{Key: "person_hash", Value: 1}}},
		{Keys: bson.D{{Key: "registration_type", Value: 1}, {Key: "created_at", Value: -1}}},
	}

	if _, err := r.col.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("registration indexes: %w", err)
	}
	return nil
}
