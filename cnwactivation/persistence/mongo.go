package persistence

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const defaultMongoCollection = "cnw_activation_state"

// validCollectionName matches safe MongoDB collection names.
var validCollectionName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// MongoOption configures a MongoProvider.
type MongoOption func(*MongoProvider)

// WithCollectionName sets the MongoDB collection name. Default: "cnw_activation_state".
func WithCollectionName(name string) MongoOption {
	return func(p *MongoProvider) {
		p.collectionName = name
	}
}

// MongoProvider implements Provider using MongoDB. Each key is one document
// whose _id is the key.
type MongoProvider struct {
	collection     *mongo.Collection
	collectionName string
}

type mongoEntry struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoProvider creates a new MongoDB-backed provider.
func NewMongoProvider(_ context.Context, db *mongo.Database, opts ...MongoOption) (*MongoProvider, error) {
	p := &MongoProvider{
		collectionName: defaultMongoCollection,
	}
	for _, opt := range opts {
		opt(p)
	}
	if !validCollectionName.MatchString(p.collectionName) {
		return nil, fmt.Errorf("invalid collection name %q: must match [a-zA-Z_][a-zA-Z0-9_]*", p.collectionName)
	}
	p.collection = db.Collection(p.collectionName)
	return p, nil
}

func (p *MongoProvider) Store(ctx context.Context, key, value string) error {
	filter := bson.M{"_id": key}
	update := bson.M{
		"$set": bson.M{
			"value":      value,
			"updated_at": time.Now(),
		},
	}
	_, err := p.collection.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("store value: %w", err)
	}
	return nil
}

func (p *MongoProvider) Read(ctx context.Context, key string) (string, bool, error) {
	var entry mongoEntry
	err := p.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read value: %w", err)
	}
	return entry.Value, true, nil
}

func (p *MongoProvider) Close(_ context.Context) error {
	return nil // user manages the mongo.Database lifecycle
}
