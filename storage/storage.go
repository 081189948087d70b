// Package storage persists harvested channel aggregates in a document store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for storage conditions.
var (
	// ErrNotFound indicates the collection holds no document.
	ErrNotFound = errors.New("storage: not found")
	// ErrInvalidArgument indicates a nil or malformed aggregate, or an empty selector.
	ErrInvalidArgument = errors.New("storage: invalid argument")
	// ErrValidation indicates no storage key can be derived (e.g., empty channel name).
	ErrValidation = errors.New("storage: validation failed")
	// ErrStorageCorrupt indicates data corruption was detected.
	ErrStorageCorrupt = errors.New("storage: data corruption detected")
	// ErrLockTimeout indicates a timeout acquiring a file lock.
	ErrLockTimeout = errors.New("storage: lock acquisition timeout")
)

// StorageError wraps storage errors with operation and entity context.
//
//	var storErr *storage.StorageError
//	if errors.As(err, &storErr) {
//		fmt.Printf("Failed to %s %s %s: %v\n", storErr.Op, storErr.Entity, storErr.ID, storErr.Err)
//	}
type StorageError struct {
	// Op is the operation that failed ("upsert", "find", "list", ...).
	Op string
	// Entity is the entity type ("document", "collection", "database", "store").
	Entity string
	// ID is the entity ID if applicable.
	ID string
	// Err is the underlying error.
	Err error
}

func (e *StorageError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("storage: %s %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// UpsertAction reports which path an upsert took.
type UpsertAction string

const (
	ActionInserted UpsertAction = "inserted"
	ActionUpdated  UpsertAction = "updated"
)

// UpsertResult describes a completed upsert.
type UpsertResult struct {
	Database   string
	Collection string
	DocumentID string
	Action     UpsertAction
}

// DocumentStore is the document store adapter. Implementations must be safe
// for concurrent use.
type DocumentStore interface {
	// Upsert writes aggregate into the collection named after its channel
	// name in database, replacing any document with the same channel ID.
	Upsert(ctx context.Context, aggregate *ChannelAggregate, database string) (*UpsertResult, error)
	// FetchOne returns the first aggregate in the collection, or ErrNotFound.
	FetchOne(ctx context.Context, database, collection string) (*ChannelAggregate, error)
	// ListDatabases returns the database names.
	ListDatabases(ctx context.Context) ([]string, error)
	// ListCollections returns the collection names in database.
	ListCollections(ctx context.Context, database string) ([]string, error)
	// Close releases any resources held by the store.
	Close(ctx context.Context) error
}

// CollectionFor derives the collection name for an aggregate and validates
// the aggregate's shape.
func CollectionFor(aggregate *ChannelAggregate) (string, error) {
	if aggregate == nil {
		return "", fmt.Errorf("%w: nil aggregate", ErrInvalidArgument)
	}
	if aggregate.ChannelID == "" {
		return "", fmt.Errorf("%w: aggregate has no channel id", ErrInvalidArgument)
	}
	if aggregate.About.ChannelID != "" && aggregate.About.ChannelID != aggregate.ChannelID {
		return "", fmt.Errorf("%w: about.channel_id %q does not match %q",
			ErrInvalidArgument, aggregate.About.ChannelID, aggregate.ChannelID)
	}

	name := strings.TrimSpace(aggregate.About.Name)
	if name == "" {
		return "", fmt.Errorf("%w: channel name is empty", ErrValidation)
	}
	if err := validateCollectionName(name); err != nil {
		return "", err
	}
	return name, nil
}

// validateCollectionName rejects names MongoDB cannot use as a collection.
func validateCollectionName(name string) error {
	switch {
	case strings.ContainsAny(name, "$\x00"):
		return fmt.Errorf("%w: collection name %q contains '$' or NUL", ErrValidation, name)
	case strings.HasPrefix(name, "system."):
		return fmt.Errorf("%w: collection name %q uses the reserved system. prefix", ErrValidation, name)
	}
	return nil
}

func validateDatabaseName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: database name is empty", ErrInvalidArgument)
	}
	if strings.ContainsAny(name, "/\\. \"$\x00") {
		return fmt.Errorf("%w: database name %q contains an illegal character", ErrInvalidArgument, name)
	}
	return nil
}
