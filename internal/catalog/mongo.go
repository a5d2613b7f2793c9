package catalog

import (
	"context"
	"fmt"

	"github.com/rebeliceyang/lazyfilter/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSource runs composed queries directly as MongoDB filters
type MongoSource struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoSource connects to cfg.URI and verifies the connection
func NewMongoSource(ctx context.Context, cfg models.ConnectionConfig) (*MongoSource, error) {
	uri := cfg.URI
	if uri == "" {
		uri = mongoURI(cfg)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = "products"
	}

	return &MongoSource{
		client:     client,
		collection: client.Database(cfg.Database).Collection(collection),
	}, nil
}

// Fetch runs query.Filter with the requested window
func (s *MongoSource) Fetch(ctx context.Context, query models.ProductQuery) (*Page, error) {
	filter := query.Filter
	if filter == nil {
		filter = bson.M{}
	}

	cursor, err := s.collection.Find(ctx, filter, findOptions(query.Pagination))
	if err != nil {
		return nil, fmt.Errorf("failed to run find: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var products []models.Product
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}

	return trimPage(products, query.Pagination), nil
}

// Close disconnects the client
func (s *MongoSource) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// findOptions asks for one extra document so HasMore can be reported
func findOptions(p models.Pagination) *options.FindOptions {
	opts := options.Find().SetSort(bson.D{{Key: "id", Value: 1}})
	if p.Offset > 0 {
		opts.SetSkip(int64(p.Offset))
	}
	if p.Limit > 0 {
		opts.SetLimit(int64(p.Limit) + 1)
	}
	return opts
}

func mongoURI(cfg models.ConnectionConfig) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 27017
	}
	if cfg.User != "" {
		return fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.User, cfg.Password, host, port)
	}
	return fmt.Sprintf("mongodb://%s:%d", host, port)
}
