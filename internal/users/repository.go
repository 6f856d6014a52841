package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/webaffe/webaffe/backend/console/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrProfileExists   = errors.New("profile already exists")
	ErrProfileNotFound = errors.New("profile not found")
)

// configDocID is the id of the singleton global config document.
const configDocID = "app"

// ProfileRepository defines persistence operations for profiles
type ProfileRepository interface {
	// Get returns (nil, nil) when no profile exists for uid.
	Get(ctx context.Context, uid string) (*models.Profile, error)
	// Create fails with ErrProfileExists rather than overwrite a record.
	Create(ctx context.Context, p *models.Profile) error
	Update(ctx context.Context, uid string, upd models.ProfileUpdate, at time.Time) error
	TouchLastLogin(ctx context.Context, uid string, at time.Time) error
	// List returns every profile, newest first.
	List(ctx context.Context) ([]*models.Profile, error)
}

// ConfigRepository persists the singleton GlobalConfig.
type ConfigRepository interface {
	// GetConfig returns (nil, nil) when the record is absent.
	GetConfig(ctx context.Context) (*models.GlobalConfig, error)
	SetConfig(ctx context.Context, upd models.ConfigUpdate, at time.Time) error
}

// MongoProfileRepository implements ProfileRepository using MongoDB
type MongoProfileRepository struct {
	col *mongo.Collection
}

// NewMongoProfileRepository creates a new repository for the given collection
func NewMongoProfileRepository(col *mongo.Collection) *MongoProfileRepository {
	return &MongoProfileRepository{col: col}
}

func (r *MongoProfileRepository) Get(ctx context.Context, uid string) (*models.Profile, error) {
	var p models.Profile
	if err := r.col.FindOne(ctx, bson.M{"_id": uid}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile %s: %w", uid, err)
	}
	return &p, nil
}

func (r *MongoProfileRepository) Create(ctx context.Context, p *models.Profile) error {
	if _, err := r.col.InsertOne(ctx, p); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrProfileExists
		}
		return fmt.Errorf("create profile %s: %w", p.UID, err)
	}
	return nil
}

func (r *MongoProfileRepository) Update(ctx context.Context, uid string, upd models.ProfileUpdate, at time.Time) error {
	set := bson.M{"updatedAt": at}
	if upd.Role != nil {
		set["role"] = *upd.Role
	}
	if upd.IsApproved != nil {
		set["isApproved"] = *upd.IsApproved
	}
	if upd.DisplayName != nil {
		set["displayName"] = *upd.DisplayName
	}
	if upd.PhotoURL != nil {
		set["photoURL"] = *upd.PhotoURL
	}
	return r.set(ctx, uid, set)
}

func (r *MongoProfileRepository) TouchLastLogin(ctx context.Context, uid string, at time.Time) error {
	return r.set(ctx, uid, bson.M{"lastLogin": at})
}

func (r *MongoProfileRepository) set(ctx context.Context, uid string, set bson.M) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": uid}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update profile %s: %w", uid, err)
	}
	if res.MatchedCount == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (r *MongoProfileRepository) List(ctx context.Context) ([]*models.Profile, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := r.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer cur.Close(ctx)
	out := []*models.Profile{}
	for cur.Next(ctx) {
		var p models.Profile
		if err := cur.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode profile: %w", err)
		}
		out = append(out, &p)
	}
	return out, cur.Err()
}

// MongoConfigRepository stores GlobalConfig as the "app" document of the
// config collection.
type MongoConfigRepository struct {
	col *mongo.Collection
}

func NewMongoConfigRepository(col *mongo.Collection) *MongoConfigRepository {
	return &MongoConfigRepository{col: col}
}

func (r *MongoConfigRepository) GetConfig(ctx context.Context) (*models.GlobalConfig, error) {
	var c models.GlobalConfig
	if err := r.col.FindOne(ctx, bson.M{"_id": configDocID}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get config: %w", err)
	}
	return &c, nil
}

func (r *MongoConfigRepository) SetConfig(ctx context.Context, upd models.ConfigUpdate, at time.Time) error {
	set := bson.M{"updatedAt": at}
	if upd.DefaultProvider != nil {
		set["defaultProvider"] = *upd.DefaultProvider
	}
	if upd.DefaultModel != nil {
		set["defaultModel"] = *upd.DefaultModel
	}
	opts := options.Update().SetUpsert(true)
	if _, err := r.col.UpdateOne(ctx, bson.M{"_id": configDocID}, bson.M{"$set": set}, opts); err != nil {
		return fmt.Errorf("set config: %w", err)
	}
	return nil
}
