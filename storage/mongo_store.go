package storage

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"ytharvest/internal/logging"
	"ytharvest/internal/retry"
)

// systemDatabases are hidden from ListDatabases.
var systemDatabases = map[string]bool{"admin": true, "config": true, "local": true}

// MongoStore implements DocumentStore on a MongoDB deployment.
type MongoStore struct {
	client *mongo.Client
}

// NewMongoStore wraps an already connected client. The caller owns the
// client's lifecycle unless it calls Close on the store.
func NewMongoStore(client *mongo.Client) *MongoStore {
	return &MongoStore{client: client}
}

// ConnectMongo connects to uri and pings the primary, retrying with backoff
// until the deployment answers or cfg is exhausted.
func ConnectMongo(ctx context.Context, uri string, cfg retry.Config) (*MongoStore, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: mongo uri is empty", ErrInvalidArgument)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, &StorageError{Op: "connect", Entity: "store", Err: err}
	}

	err = retry.Do(ctx, cfg, nil, func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	})
	if err != nil {
		if derr := client.Disconnect(context.Background()); derr != nil {
			logging.FromContext(ctx).WithError(derr).Warn("disconnect after failed ping")
		}
		return nil, &StorageError{Op: "connect", Entity: "store", Err: err}
	}
	return NewMongoStore(client), nil
}

func (m *MongoStore) Upsert(ctx context.Context, aggregate *ChannelAggregate, database string) (*UpsertResult, error) {
	collection, err := CollectionFor(aggregate)
	if err != nil {
		return nil, err
	}
	if err := validateDatabaseName(database); err != nil {
		return nil, err
	}

	coll := m.client.Database(database).Collection(collection)
	doc := Document{ID: aggregate.ChannelID, Payload: aggregate}

	res, err := coll.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: aggregate.ChannelID}},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return nil, &StorageError{Op: "upsert", Entity: "document", ID: aggregate.ChannelID, Err: err}
	}

	action := ActionUpdated
	if res.UpsertedCount > 0 {
		action = ActionInserted
	}
	return &UpsertResult{
		Database:   database,
		Collection: collection,
		DocumentID: aggregate.ChannelID,
		Action:     action,
	}, nil
}

func (m *MongoStore) FetchOne(ctx context.Context, database, collection string) (*ChannelAggregate, error) {
	if database == "" || collection == "" {
		return nil, ErrInvalidArgument
	}

	var doc Document
	err := m.client.Database(database).Collection(collection).FindOne(ctx, bson.D{}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			err = ErrNotFound
		}
		return nil, &StorageError{Op: "find", Entity: "collection", ID: database + "." + collection, Err: err}
	}
	if doc.Payload == nil {
		return nil, &StorageError{Op: "find", Entity: "document", ID: doc.ID, Err: ErrStorageCorrupt}
	}
	return doc.Payload, nil
}

func (m *MongoStore) ListDatabases(ctx context.Context) ([]string, error) {
	names, err := m.client.ListDatabaseNames(ctx, bson.D{})
	if err != nil {
		return nil, &StorageError{Op: "list", Entity: "database", Err: err}
	}

	out := names[:0]
	for _, name := range names {
		if !systemDatabases[name] {
			out = append(out, name)
		}
	}
	return out, nil
}

func (m *MongoStore) ListCollections(ctx context.Context, database string) ([]string, error) {
	if database == "" {
		return nil, ErrInvalidArgument
	}
	names, err := m.client.Database(database).ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, &StorageError{Op: "list", Entity: "collection", ID: database, Err: err}
	}
	return names, nil
}

// Close disconnects the client.
func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
