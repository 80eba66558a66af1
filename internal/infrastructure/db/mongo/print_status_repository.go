package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/eventdesk/registration-system/internal/core/domain"
)

const collectionPrintStatuses = "print_statuses"

type PrintStatusRepository struct {
	col *mongo.Collection
}

func NewPrintStatusRepository(db *mongo.Database) *PrintStatusRepository {
	return &PrintStatusRepository{col: db.Collection(collectionPrintStatuses)}
}

type printStatusDoc struct {
	Type   string `bson:"type"`
	Name   string `bson:"name"`
	Active bool   `bson:"active"`
}

func (r *PrintStatusRepository) Find(ctx context.Context, t domain.PrintStatusType, name domain.PrintStatusName) (*domain.PrintStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc printStatusDoc
	err := r.col.FindOne(ctx, bson.M{"type": string(t), "name": string(name)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s/%s: %w", t, name, domain.ErrPrintStatusMissing)
		}
		return nil, fmt.Errorf("find print status: %w: %v", domain.ErrUnavailable, err)
	}
	return &domain.PrintStatus{
		Type:   domain.PrintStatusType(doc.Type),
		Name:   domain.PrintStatusName(doc.Name),
		Active: doc.Active,
	}, nil
}

func (r *PrintStatusRepository) Upsert(ctx context.Context, st domain.PrintStatus) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.col.ReplaceOne(ctx,
		bson.M{"type": string(st.Type), "name": string(st.Name)},
		printStatusDoc{Type: string(st.Type), Name: string(st.Name), Active: st.Active},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert print status: %w", err)
	}
	return nil
}

func (r *PrintStatusRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "type", Value: 1}, {Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("print status indexes: %w", err)
	}
	return nil
}
