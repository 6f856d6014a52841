package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/webaffe/webaffe/backend/console/internal/board"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo stores each board kind in the collection of the same name.
type MongoRepo struct {
	cols map[board.Kind]*mongo.Collection
}

func NewMongoRepo(db *mongo.Database) *MongoRepo {
	cols := make(map[board.Kind]*mongo.Collection)
	for _, k := range board.Kinds() {
		cols[k] = db.Collection(string(k))
	}
	return &MongoRepo{cols: cols}
}

// EnsureIndexes adds the createdAt index the board listings sort on.
func (m *MongoRepo) EnsureIndexes(ctx context.Context) error {
	for _, col := range m.cols {
		idx := mongo.IndexModel{Keys: bson.D{{Key: "createdAt", Value: -1}}}
		if _, err := col.Indexes().CreateOne(ctx, idx); err != nil {
			return err
		}
	}
	return nil
}

func (m *MongoRepo) col(kind board.Kind) (*mongo.Collection, error) {
	c, ok := m.cols[kind]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *MongoRepo) Create(ctx context.Context, kind board.Kind, it *board.Item) (string, error) {
	col, err := m.col(kind)
	if err != nil {
		return "", err
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if it.CreatedAt.IsZero() {
		it.CreatedAt = now
	}
	it.UpdatedAt = it.CreatedAt
	it.Kind = kind
	if _, err := col.InsertOne(ctx, it); err != nil {
		return "", err
	}
	return it.ID, nil
}

func (m *MongoRepo) Get(ctx context.Context, kind board.Kind, id string) (*board.Item, error) {
	col, err := m.col(kind)
	if err != nil {
		return nil, err
	}
	var it board.Item
	if err := col.FindOne(ctx, bson.M{"_id": id}).Decode(&it); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	it.Kind = kind
	return &it, nil
}

func (m *MongoRepo) List(ctx context.Context, kind board.Kind) ([]*board.Item, error) {
	col, err := m.col(kind)
	if err != nil {
		return nil, err
	}
	cur, err := col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*board.Item{}
	for cur.Next(ctx) {
		var it board.Item
		if err := cur.Decode(&it); err != nil {
			return nil, err
		}
		it.Kind = kind
		out = append(out, &it)
	}
	return out, cur.Err()
}

func (m *MongoRepo) UpdateStatus(ctx context.Context, kind board.Kind, id, status string, at time.Time) error {
	col, err := m.col(kind)
	if err != nil {
		return err
	}
	res, err := col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"status": status, "updatedAt": at}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
