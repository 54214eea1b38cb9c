package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/avvvet/rockefeller-services/internal/room"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const DefaultRetention = 7 * 24 * time.Hour

// Inserter is satisfied by *mongo.Collection.
type Inserter interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// MongoArchive writes notifications into a collection with a TTL index on
// expires_at, see db.CreateTTLIndex.
type MongoArchive struct {
	coll      Inserter
	retention time.Duration
}

func NewMongoArchive(coll Inserter, retention time.Duration) *MongoArchive {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MongoArchive{coll: coll, retention: retention}
}

func (a *MongoArchive) document(n room.Notification) Record {
	rec := newRecord(n)
	rec.ExpiresAt = rec.OccurredAt.Add(a.retention)
	return rec
}

func (a *MongoArchive) Notify(ctx context.Context, n room.Notification) error {
	rec := a.document(n)
	if _, err := a.coll.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("archive %s for room %s: %w", rec.Type, rec.RoomID, err)
	}
	return nil
}
