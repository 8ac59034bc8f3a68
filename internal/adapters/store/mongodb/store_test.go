package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/suhail953/wattflow/internal/domain"
)

func namespace(mt *mtest.T) string {
	return mt.Coll.Database().Name() + "." + mt.Coll.Name()
}

func TestStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("save assigns id and receivedAt", func(mt *mtest.T) {
		s := New(mt.Coll)
		fixed := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
		s.now = func() time.Time { return fixed }
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		rec := &domain.IngestedRecord{Mac: "AA:BB", Source: domain.SourcePubSub, ClientID: "dev-1", Topic: "t"}
		stored, err := s.Save(context.Background(), rec)
		require.NoError(mt, err)

		_, err = primitive.ObjectIDFromHex(stored.ID)
		assert.NoError(mt, err)
		assert.Equal(mt, fixed, stored.ReceivedAt)
		assert.Equal(mt, stored.ID, rec.ID)
		assert.True(mt, s.IsConnected())
	})

	mt.Run("save surfaces write errors", func(mt *mtest.T) {
		s := New(mt.Coll)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))

		_, err := s.Save(context.Background(), &domain.IngestedRecord{Mac: "AA:BB", Source: domain.SourceRequest})
		require.Error(mt, err)
		assert.True(mt, s.IsConnected(), "a write error is not a connectivity loss")
	})

	mt.Run("count", func(mt *mtest.T) {
		s := New(mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, bson.D{
			{Key: "n", Value: int32(7)},
		}))

		n, err := s.Count(context.Background())
		require.NoError(mt, err)
		assert.Equal(mt, uint64(7), n)
	})

	mt.Run("latest decodes newest document", func(mt *mtest.T) {
		s := New(mt.Coll)
		id := primitive.NewObjectID()
		received := time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, bson.D{
			{Key: "_id", Value: id},
			{Key: "mac", Value: "AA:BB"},
			{Key: "clientId", Value: "dev-1"},
			{Key: "topic", Value: "wattmon/data"},
			{Key: "data", Value: bson.A{bson.D{{Key: "ts", Value: float64(1700000000000)}, {Key: "power", Value: 120.5}}}},
			{Key: "receivedAt", Value: received},
			{Key: "source", Value: "mqtt"},
		}))

		rec, err := s.Latest(context.Background())
		require.NoError(mt, err)
		require.NotNil(mt, rec)
		assert.Equal(mt, id.Hex(), rec.ID)
		assert.Equal(mt, domain.SourcePubSub, rec.Source)
		assert.Equal(mt, received, rec.ReceivedAt)
		require.Len(mt, rec.Samples, 1)
		assert.Equal(mt, int64(1700000000000), rec.Samples[0].Timestamp)
		assert.Equal(mt, 120.5, *rec.Samples[0].Power)
	})

	mt.Run("latest on empty collection", func(mt *mtest.T) {
		s := New(mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch))

		rec, err := s.Latest(context.Background())
		require.NoError(mt, err)
		assert.Nil(mt, rec)
	})

	mt.Run("ensure indexes", func(mt *mtest.T) {
		s := New(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NoError(mt, s.EnsureIndexes(context.Background()))
	})

	mt.Run("first successful ping creates indexes", func(mt *mtest.T) {
		s := New(mt.Coll)
		ctx := context.Background()

		mt.AddMockResponses(mtest.CreateSuccessResponse(), mtest.CreateSuccessResponse())
		require.NoError(mt, s.Ping(ctx))
		assert.Equal(mt, 1, countCommands(mt, "createIndexes"))
		assert.True(mt, s.IsConnected())

		mt.ClearEvents()
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NoError(mt, s.Ping(ctx))
		assert.Equal(mt, 0, countCommands(mt, "createIndexes"))
	})

	mt.Run("index failure on ping is retried", func(mt *mtest.T) {
		s := New(mt.Coll)
		ctx := context.Background()

		mt.AddMockResponses(mtest.CreateSuccessResponse(), mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code: 2, Name: "BadValue", Message: "index build failed",
		}))
		require.NoError(mt, s.Ping(ctx))
		assert.True(mt, s.IsConnected())

		mt.ClearEvents()
		mt.AddMockResponses(mtest.CreateSuccessResponse(), mtest.CreateSuccessResponse())
		require.NoError(mt, s.Ping(ctx))
		assert.Equal(mt, 1, countCommands(mt, "createIndexes"))
	})
}

func countCommands(mt *mtest.T, name string) int {
	n := 0
	for _, ev := range mt.GetAllStartedEvents() {
		if ev.CommandName == name {
			n++
		}
	}
	return n
}

func TestName(t *testing.T) {
	assert.Equal(t, "mongodb", (&Store{}).Name())
}
