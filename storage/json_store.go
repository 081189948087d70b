package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sort"
	"sync"
	"time"
)

const (
	schemaVersion = "2.0"
	lockTimeout   = 5 * time.Second
)

// JSONStore implements DocumentStore on a single JSON file. It mirrors the
// database/collection/document layout of a document server so the same
// pipeline runs without one.
type JSONStore struct {
	path string
	lock *FileLock
	data *storeData
	mu   sync.RWMutex
}

// storeData is the top-level JSON structure.
type storeData struct {
	Version   string                            `json:"version"`
	UpdatedAt time.Time                         `json:"updated_at"`
	Databases map[string]map[string][]*Document `json:"databases"`
}

// NewJSONStore opens or creates the store file at path and holds its lock
// until Close.
func NewJSONStore(path string) (*JSONStore, error) {
	s := &JSONStore{
		path: path,
		lock: NewFileLock(path),
	}

	if err := s.lock.Lock(lockTimeout); err != nil {
		return nil, err
	}

	if err := s.load(); err != nil {
		s.lock.Unlock()
		return nil, err
	}

	return s, nil
}

func (s *JSONStore) load() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.data = newStoreData()
			// surface permission problems at open time
			return s.save()
		}
		return &StorageError{Op: "read", Entity: "store", Err: err}
	}

	s.data = &storeData{}
	if err := json.Unmarshal(raw, s.data); err != nil {
		return &StorageError{Op: "read", Entity: "store", Err: ErrStorageCorrupt}
	}
	if s.data.Databases == nil {
		s.data.Databases = make(map[string]map[string][]*Document)
	}
	return nil
}

func (s *JSONStore) save() error {
	s.data.UpdatedAt = time.Now().UTC()

	writer, err := NewAtomicWriter(s.path)
	if err != nil {
		return &StorageError{Op: "write", Entity: "store", Err: err}
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.data); err != nil {
		writer.Abort()
		return &StorageError{Op: "write", Entity: "store", Err: err}
	}

	if err := writer.Commit(); err != nil {
		return &StorageError{Op: "write", Entity: "store", Err: err}
	}
	return nil
}

// Close releases the file lock.
func (s *JSONStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lock.Unlock()
}

func newStoreData() *storeData {
	return &storeData{
		Version:   schemaVersion,
		UpdatedAt: time.Now().UTC(),
		Databases: make(map[string]map[string][]*Document),
	}
}

func (s *JSONStore) Upsert(ctx context.Context, aggregate *ChannelAggregate, database string) (*UpsertResult, error) {
	collection, err := CollectionFor(aggregate)
	if err != nil {
		return nil, err
	}
	if err := validateDatabaseName(database); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result := &UpsertResult{
		Database:   database,
		Collection: collection,
		DocumentID: aggregate.ChannelID,
		Action:     ActionInserted,
	}

	payload, err := cloneAggregate(aggregate)
	if err != nil {
		return nil, &StorageError{Op: "upsert", Entity: "document", ID: aggregate.ChannelID, Err: err}
	}
	doc := &Document{ID: aggregate.ChannelID, Payload: payload}

	prev := s.data.Databases[database][collection]
	docs := make([]*Document, len(prev), len(prev)+1)
	copy(docs, prev)
	replaced := false
	for i, existing := range docs {
		if existing.ID == doc.ID {
			docs[i] = doc
			replaced = true
			break
		}
	}
	if replaced {
		result.Action = ActionUpdated
	} else {
		docs = append(docs, doc)
	}

	colls, hadDatabase := s.data.Databases[database]
	if !hadDatabase {
		colls = make(map[string][]*Document)
		s.data.Databases[database] = colls
	}
	_, hadCollection := colls[collection]
	colls[collection] = docs

	if err := s.save(); err != nil {
		// memory must match the file
		switch {
		case !hadDatabase:
			delete(s.data.Databases, database)
		case !hadCollection:
			delete(colls, collection)
		default:
			colls[collection] = prev
		}
		return nil, err
	}
	return result, nil
}

func (s *JSONStore) FetchOne(ctx context.Context, database, collection string) (*ChannelAggregate, error) {
	if database == "" || collection == "" {
		return nil, ErrInvalidArgument
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.data.Databases[database][collection]
	if len(docs) == 0 {
		return nil, &StorageError{Op: "find", Entity: "collection", ID: database + "." + collection, Err: ErrNotFound}
	}
	if docs[0].Payload == nil {
		return nil, &StorageError{Op: "find", Entity: "document", ID: docs[0].ID, Err: ErrStorageCorrupt}
	}
	return cloneAggregate(docs[0].Payload)
}

func (s *JSONStore) ListDatabases(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.data.Databases))
	for name := range s.data.Databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *JSONStore) ListCollections(ctx context.Context, database string) ([]string, error) {
	if database == "" {
		return nil, ErrInvalidArgument
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	colls := s.data.Databases[database]
	names := make([]string, 0, len(colls))
	for name := range colls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// cloneAggregate deep-copies through the on-disk encoding so callers never
// alias the store's in-memory state.
func cloneAggregate(a *ChannelAggregate) (*ChannelAggregate, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	var out ChannelAggregate
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
