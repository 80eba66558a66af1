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

const (
	authCollection  = "auth_users"
	rolesCollection = "auth_roles"
)

type MongoAuthRepository struct {
	coll  *mongo.Collection
	roles *mongo.Collection
}

func NewAuthRepository(db *mongo.Database) *MongoAuthRepository {
	return &MongoAuthRepository{
		coll:  db.Collection(authCollection),
		roles: db.Collection(rolesCollection),
	}
}

type mongoUser struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Username     string             `bson:"username"`
	Email        string             `bson:"email,omitempty"`
	PasswordHash string             `bson:"password_hash"`
	Role         string             `bson:"role"`
	Disabled     bool               `bson:"disabled"`
	CreatedAt    int64              `bson:"created_at"`
	UpdatedAt    int64              `bson:"updated_at"`
}

type mongoRole struct {
	Name        string   `bson:"name"`
	Permissions []string `bson:"permissions"`
}

func (r *MongoAuthRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	doc := mongoUser{
		Username:     user.Username,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Role:         user.Role,
		CreatedAt:    user.CreatedAt.Unix(),
		UpdatedAt:    user.UpdatedAt.Unix(),
	}

	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	created := *user
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		created.ID = oid.Hex()
	}
	return &created, nil
}

func (r *MongoAuthRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	var mu mongoUser
	if err := r.coll.FindOne(ctx, bson.M{"username": username}).Decode(&mu); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	return &domain.User{
		ID:           mu.ID.Hex(),
		Username:     mu.Username,
		Email:        mu.Email,
		PasswordHash: mu.PasswordHash,
		Role:         mu.Role,
		Disabled:     mu.Disabled,
		CreatedAt:    unixToTime(mu.CreatedAt),
		UpdatedAt:    unixToTime(mu.UpdatedAt),
	}, nil
}

func (r *MongoAuthRepository) SetDisabled(ctx context.Context, username string, disabled bool) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"username": username},
		bson.M{"$set": bson.M{"disabled": disabled, "updated_at": time.Now().Unix()}},
	)
	if err != nil {
		return fmt.Errorf("disable user: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *MongoAuthRepository) Delete(ctx context.Context, username string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"username": username})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// FindRole parses the stored permission strings; an unknown permission is a
// data error, not a silently dropped capability.
func (r *MongoAuthRepository) FindRole(ctx context.Context, name string) (*domain.Role, error) {
	var mr mongoRole
	if err := r.roles.FindOne(ctx, bson.M{"name": name}).Decode(&mr); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRoleNotFound
		}
		return nil, fmt.Errorf("find role: %w", err)
	}
	perms, err := domain.ParsePermissionSet(mr.Permissions)
	if err != nil {
		return nil, fmt.Errorf("role %s: %w", name, err)
	}
	return &domain.Role{Name: mr.Name, Permissions: perms}, nil
}

func (r *MongoAuthRepository) UpsertRole(ctx context.Context, role domain.Role) error {
	_, err := r.roles.ReplaceOne(ctx,
		bson.M{"name": role.Name},
		mongoRole{Name: role.Name, Permissions: role.Permissions.Strings()},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert role: %w", err)
	}
	return nil
}

func (r *MongoAuthRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	unique := options.Index().SetUnique(true)
	if _, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique}); err != nil {
		return fmt.Errorf("user indexes: %w", err)
	}
	if _, err := r.roles.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "name", Value: 1}}, Options: unique}); err != nil {
		return fmt.Errorf("role indexes: %w", err)
	}
	return nil
}

func unixToTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}
