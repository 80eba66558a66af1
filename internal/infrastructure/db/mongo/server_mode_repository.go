package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/eventdesk/registration-system/internal/core/domain"
)

const collectionServerModes = "server_modes"

// ServerModeRepository keeps the append-only mode log. Rows are never updated.
type ServerModeRepository struct {
	col *mongo.Collection
}

func NewServerModeRepository(db *mongo.Database) *ServerModeRepository {
	return &ServerModeRepository{col: db.Collection(collectionServerModes)}
}

type serverModeDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Mode        string             `bson:"mode"`
	ActivatedBy string             `bson:"activated_by"`
	ActivatedAt time.Time          `bson:"activated_at"`
}

// newestFirst breaks activated_at ties by insertion order.
var newestFirst = bson.D{{Key: "activated_at", Value: -1}, {Key: "_id", Value: -1}}

func (r *ServerModeRepository) Latest(ctx context.Context) (*domain.ServerModeRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc serverModeDoc
	err := r.col.FindOne(ctx, bson.M{}, options.FindOne().SetSort(newestFirst)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrServerModeMissing
		}
		return nil, fmt.Errorf("latest server mode: %w: %v", domain.ErrUnavailable, err)
	}
	return doc.toDomain(), nil
}

func (r *ServerModeRepository) Append(ctx context.Context, rec *domain.ServerModeRecord) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.InsertOne(ctx, serverModeDoc{
		Mode:        string(rec.Mode),
		ActivatedBy: rec.ActivatedBy,
		ActivatedAt: rec.ActivatedAt,
	})
	if err != nil {
		return fmt.Errorf("append server mode: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		rec.ID = oid.Hex()
	}
	return nil
}

func (r *ServerModeRepository) History(ctx context.Context, page, limit int) ([]*domain.ServerModeRecord, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	total, err := r.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("count server modes: %w", err)
	}

	opts := options.Find().
		SetSort(newestFirst).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))
	cur, err := r.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("server mode history: %w", err)
	}
	defer cur.Close(ctx)

	var docs []serverModeDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("decode server modes: %w", err)
	}
	out := make([]*domain.ServerModeRecord, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toDomain())
	}
	return out, total, nil
}

func (d *serverModeDoc) toDomain() *domain.ServerModeRecord {
	return &domain.ServerModeRecord{
		ID:          d.ID.Hex(),
		Mode:        domain.ServerMode(d.Mode),
		ActivatedBy: d.ActivatedBy,
		ActivatedAt: d.ActivatedAt.UTC(),
	}
}

func (r *ServerModeRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: newestFirst})
	if err != nil {
		return fmt.Errorf("server mode indexes: %w", err)
	}
	return nil
}
