package export

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/canopyscan/canopy/pkg/graph"
)

const (
	runsCollection     = "runs"
	packagesCollection = "packages"
)

// MongoStore persists resolution results to MongoDB so several analysis
// runs (e.g., nightly CI over many repositories) share one queryable
// result store.
type MongoStore struct {
	client *mongo.Client
	db     string
}

// NewMongoStore connects to the MongoDB instance at uri.
func NewMongoStore(ctx context.Context, uri, db string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return &MongoStore{client: client, db: db}, nil
}

// runDocument is the per-run record: project scope roots plus timing.
type runDocument struct {
	RunID      string          `bson:"run_id"`
	ResolvedAt time.Time       `bson:"resolved_at"`
	Projects   []graph.Project `bson:"projects"`
}

// Store writes the run document and upserts every package by identity
// key. Packages are stable across runs, so upserting by key keeps the
// collection de-duplicated the same way the in-run builder does.
func (s *MongoStore) Store(ctx context.Context, runID string, g *graph.Graph) error {
	runs := s.client.Database(s.db).Collection(runsCollection)
	if _, err := runs.InsertOne(ctx, runDocument{
		RunID:      runID,
		ResolvedAt: time.Now().UTC(),
		Projects:   g.Projects,
	}); err != nil {
		return fmt.Errorf("store run: %w", err)
	}

	pkgs := s.client.Database(s.db).Collection(packagesCollection)
	for _, p := range g.Packages {
		filter := bson.M{"key": p.Key}
		update := bson.M{"$set": p}
		if _, err := pkgs.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
			return fmt.Errorf("store package %s: %w", p.Key, err)
		}
	}
	return nil
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
