package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sweetpotato0/travel-router/audit"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig holds MongoDB connection configuration
type MongoConfig struct {
	URI                string `koanf:"uri"`
	Database           string `koanf:"database"`
	QueryCollection    string `koanf:"query_collection"`
	FeedbackCollection string `koanf:"feedback_collection"`
}

// DefaultMongoConfig returns default MongoDB configuration
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:                "mongodb://localhost:27017",
		Database:           "travel_router",
		QueryCollection:    "query_logs",
		FeedbackCollection: "feedback",
	}
}

// MongoSink writes audit records to MongoDB.
type MongoSink struct {
	client   *mongo.Client
	queries  *mongo.Collection
	feedback *mongo.Collection
}

// NewMongoSink connects, pings and ensures indexes. Empty config fields take defaults.
func NewMongoSink(ctx context.Context, cfg MongoConfig) (*MongoSink, error) {
	def := DefaultMongoConfig()
	if cfg.URI == "" {
		cfg.URI = def.URI
	}
	if cfg.Database == "" {
		cfg.Database = def.Database
	}
	if cfg.QueryCollection == "" {
		cfg.QueryCollection = def.QueryCollection
	}
	if cfg.FeedbackCollection == "" {
		cfg.FeedbackCollection = def.FeedbackCollection
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &MongoSink{
		client:   client,
		queries:  db.Collection(cfg.QueryCollection),
		feedback: db.Collection(cfg.FeedbackCollection),
	}
	if err := s.createIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return s, nil
}

func (s *MongoSink) createIndexes(ctx context.Context) error {
	if _, err := s.queries.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "route_taken", Value: 1}}},
	}); err != nil {
		return err
	}
	_, err := s.feedback.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "request_id", Value: 1}},
	})
	return err
}

// LogQuery upserts the entry keyed by request id.
func (s *MongoSink) LogQuery(ctx context.Context, e audit.QueryLogEntry) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := s.queries.ReplaceOne(ctx, bson.M{"_id": e.RequestID}, e, opts); err != nil {
		return fmt.Errorf("failed to write query log to MongoDB: %w", err)
	}
	return nil
}

// SaveFeedback inserts a feedback document.
func (s *MongoSink) SaveFeedback(ctx context.Context, f audit.Feedback) error {
	if _, err := s.feedback.InsertOne(ctx, f); err != nil {
		return fmt.Errorf("failed to write feedback to MongoDB: %w", err)
	}
	return nil
}

// CountQueries returns the number of stored query logs.
func (s *MongoSink) CountQueries(ctx context.Context) (int64, error) {
	return s.queries.CountDocuments(ctx, bson.M{})
}

// Close closes the MongoDB connection
func (s *MongoSink) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.client.Disconnect(ctx)
}
