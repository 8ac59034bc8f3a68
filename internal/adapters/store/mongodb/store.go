package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/suhail953/wattflow/internal/adapters/store"
	"github.com/suhail953/wattflow/internal/domain"
	"github.com/suhail953/wattflow/internal/ports"
)

// recordDoc is the document layout of the existing wattmondatas
// collection: samples live under "data", timestamps are BSON dates.
type recordDoc struct {
	ID         primitive.ObjectID       `bson:"_id,omitempty"`
	Mac        string                   `bson:"mac"`
	ClientID   string                   `bson:"clientId,omitempty"`
	Topic      string                   `bson:"topic,omitempty"`
	Data       []domain.TelemetrySample `bson:"data"`
	ReceivedAt time.Time                `bson:"receivedAt"`
	Source     string                   `bson:"source"`
	CreatedAt  time.Time                `bson:"createdAt"`
	UpdatedAt  time.Time                `bson:"updatedAt"`
}

type Store struct {
	coll   *mongo.Collection
	client *mongo.Client
	state  *store.State
	now    func() time.Time

	indexed atomic.Bool
}

// New wraps an existing collection handle. The caller owns the client.
func New(coll *mongo.Collection) *Store {
	return &Store{
		coll:  coll,
		state: store.NewState(true),
		now:   time.Now,
	}
}

// Connect dials uri, pings the primary and ensures the indexes. On a failed
// ping the store is still returned, marked disconnected; the driver keeps
// reconnecting in the background and the first successful Ping creates the
// indexes.
func Connect(ctx context.Context, uri, database, collection string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	s := New(client.Database(database).Collection(collection))
	s.client = client

	if err := s.Ping(ctx); err != nil {
		return s, fmt.Errorf("mongo ping: %w", err)
	}
	if err := s.ensureIndexesOnce(ctx); err != nil {
		return s, fmt.Errorf("mongo indexes: %w", err)
	}
	return s, nil
}

func (s *Store) Name() string { return "mongodb" }

// EnsureIndexes creates the query indexes; they only affect latency.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "mac", Value: 1}}},
		{Keys: bson.D{{Key: "receivedAt", Value: 1}}},
		{Keys: bson.D{{Key: "mac", Value: 1}, {Key: "receivedAt", Value: -1}}},
		{Keys: bson.D{{Key: "data.ts", Value: -1}}},
	})
	s.state.Observe(err, isConnErr)
	if err == nil {
		s.indexed.Store(true)
	}
	return err
}

func (s *Store) ensureIndexesOnce(ctx context.Context) error {
	if s.indexed.Load() {
		return nil
	}
	return s.EnsureIndexes(ctx)
}

func (s *Store) Save(ctx context.Context, rec *domain.IngestedRecord) (domain.StoredRecord, error) {
	store.Stamp(rec, s.now)
	now := s.now().UTC().Truncate(time.Millisecond)

	doc := recordDoc{
		ID:         primitive.NewObjectID(),
		Mac:        rec.Mac,
		ClientID:   rec.ClientID,
		Topic:      rec.Topic,
		Data:       rec.Samples,
		ReceivedAt: rec.ReceivedAt,
		Source:     string(rec.Source),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := s.coll.InsertOne(ctx, doc)
	s.state.Observe(err, isConnErr)
	if err != nil {
		return domain.StoredRecord{}, fmt.Errorf("mongo insert: %w", err)
	}

	rec.ID = doc.ID.Hex()
	return domain.StoredRecord{ID: rec.ID, ReceivedAt: rec.ReceivedAt}, nil
}

func (s *Store) Count(ctx context.Context) (uint64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.D{})
	s.state.Observe(err, isConnErr)
	if err != nil {
		return 0, fmt.Errorf("mongo count: %w", err)
	}
	return uint64(n), nil
}

func (s *Store) Latest(ctx context.Context) (*domain.IngestedRecord, error) {
	var doc recordDoc
	opts := options.FindOne().SetSort(bson.D{{Key: "receivedAt", Value: -1}})
	err := s.coll.FindOne(ctx, bson.D{}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		s.state.Set(true)
		return nil, nil
	}
	s.state.Observe(err, isConnErr)
	if err != nil {
		return nil, fmt.Errorf("mongo latest: %w", err)
	}

	samples := doc.Data
	if samples == nil {
		samples = []domain.TelemetrySample{}
	}
	return &domain.IngestedRecord{
		ID:         doc.ID.Hex(),
		Mac:        doc.Mac,
		ClientID:   doc.ClientID,
		Topic:      doc.Topic,
		Samples:    samples,
		Source:     domain.Source(doc.Source),
		ReceivedAt: doc.ReceivedAt.UTC(),
	}, nil
}

func (s *Store) IsConnected() bool { return s.state.Connected() }

// Ping refreshes the connectivity flag. Indexes still missing from an
// unreachable start are created on the first successful ping; failures there
// are retried on the next one.
func (s *Store) Ping(ctx context.Context) error {
	err := s.coll.Database().Client().Ping(ctx, readpref.Primary())
	s.state.Set(err == nil)
	if err != nil {
		return err
	}
	_ = s.ensureIndexesOnce(ctx)
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	s.state.Set(false)
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func isConnErr(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, mongo.ErrClientDisconnected)
}

var _ ports.Store = (*Store)(nil)
