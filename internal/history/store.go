// Package history archives completed BatchResults to MongoDB so a
// record survives past SESSION_TTL_SECS, once the live registry entry is
// reaped. Write-only from the serving path's perspective: nothing under
// GET /batch/... or GET /batches ever reads from here.
package history

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/PlatformNetwork/term-executor/internal/batch"
)

const collectionName = "batch_history"

// Record is the immutable archival copy of one finished batch.
type Record struct {
	BatchID     string             `bson:"_id"`
	Status      batch.Status       `bson:"status"`
	CreatedAt   time.Time          `bson:"created_at"`
	ArchivedAt  time.Time          `bson:"archived_at"`
	TotalTasks  int                `bson:"total_tasks"`
	PassedTasks int                `bson:"passed_tasks"`
	Aggregate   float64            `bson:"aggregate_reward"`
	Error       string             `bson:"error,omitempty"`
	Result      batch.BatchResult  `bson:"result"`
}

// Store archives finished batches. Implementations must not be consulted
// by the live serving path; Archive is fire-and-forget from the engine's
// point of view.
type Store interface {
	Archive(ctx context.Context, result batch.BatchResult) error
	Close() error
}

// NoopStore is used when HISTORY_MONGO_URI is unset.
type NoopStore struct{}

func (NoopStore) Archive(context.Context, batch.BatchResult) error { return nil }
func (NoopStore) Close() error                                      { return nil }

// MongoStore archives BatchResults into a single collection, one
// document per batch, upserted so a late mark-failed after mark-completed
// (should not happen, but cheap to make idempotent) does not duplicate.
type MongoStore struct {
	client *mongo.Client
	col    *mongo.Collection
}

// NewMongoStore connects to uri and selects database dbName.
func NewMongoStore(uri, dbName string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to history mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping history mongo: %w", err)
	}

	col := client.Database(dbName).Collection(collectionName)
	if _, err := col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	}); err != nil {
		return nil, fmt.Errorf("create history index: %w", err)
	}

	return &MongoStore{client: client, col: col}, nil
}

// Archive upserts result as a Record keyed by batch id.
func (s *MongoStore) Archive(ctx context.Context, result batch.BatchResult) error {
	rec := Record{
		BatchID:     result.BatchID,
		Status:      result.Status,
		CreatedAt:   result.CreatedAt,
		ArchivedAt:  time.Now(),
		TotalTasks:  result.TotalTasks,
		PassedTasks: result.PassedTasks,
		Aggregate:   result.AggregateReward,
		Error:       result.Error,
		Result:      result,
	}

	_, err := s.col.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: rec.BatchID}},
		rec,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("archive batch %s: %w", result.BatchID, err)
	}
	return nil
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
