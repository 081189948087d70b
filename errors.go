package ytharvest

import (
	"errors"

	"ytharvest/harvest"
	"ytharvest/internal/retry"
	"ytharvest/sqlstore"
	"ytharvest/storage"
	"ytharvest/youtube"
)

// Error handling types exported for library users.
//
// From youtube package:
//   - youtube.ErrInvalidArgument: Empty or malformed identifier
//   - youtube.ErrResourceUnavailable: Upstream API or transport failure
//   - youtube.ErrNotFound: Channel or resource does not exist
//   - youtube.ErrCommentsDisabled: Comments are turned off for a video
//   - youtube.FetchError: Failed Data API call
//
// From storage package:
//   - storage.ErrInvalidArgument: Missing aggregate, channel id or database name
//   - storage.ErrValidation: No valid collection name can be derived
//   - storage.ErrNotFound: Collection holds no aggregate
//   - storage.ErrStorageCorrupt: Document file cannot be parsed
//   - storage.ErrLockTimeout: Document file lock timeout
//   - storage.StorageError: General storage operation error
//
// From harvest and sqlstore packages:
//   - harvest.ErrCancelled: Harvest stopped before completion
//   - sqlstore.MigrationError: Migration failed and was rolled back

type (
	// FetchError wraps a failed Data API call.
	FetchError = youtube.FetchError
	// StorageError wraps errors during document store operations.
	StorageError = storage.StorageError
	// MigrationError wraps a failed, rolled back migration.
	MigrationError = sqlstore.MigrationError
	// RetryableError wraps errors that occurred after retries were exhausted.
	RetryableError = retry.RetryableError
	// BranchFailure is a fetch failure isolated to one part of a harvest.
	BranchFailure = harvest.BranchFailure
)

var (
	// ErrInvalidArgument indicates an empty or malformed identifier.
	ErrInvalidArgument = youtube.ErrInvalidArgument
	// ErrResourceUnavailable indicates an upstream API or transport failure.
	ErrResourceUnavailable = youtube.ErrResourceUnavailable
	// ErrCommentsDisabled indicates a video does not accept comments.
	ErrCommentsDisabled = youtube.ErrCommentsDisabled
	// ErrCancelled indicates a harvest was stopped before completion.
	ErrCancelled = harvest.ErrCancelled

	// ErrNotFound indicates a missing collection or aggregate.
	ErrNotFound = storage.ErrNotFound
	// ErrValidation indicates no storage key can be derived from an aggregate.
	ErrValidation = storage.ErrValidation
	// ErrStorageCorrupt indicates data corruption was detected.
	ErrStorageCorrupt = storage.ErrStorageCorrupt
	// ErrLockTimeout indicates a timeout acquiring a file lock.
	ErrLockTimeout = storage.ErrLockTimeout
)

// IsInvalidArgument reports whether err is a caller error from either the
// fetcher or the document store.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, youtube.ErrInvalidArgument) || errors.Is(err, storage.ErrInvalidArgument)
}

// IsNotFound reports whether err means the channel or stored aggregate does
// not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, youtube.ErrNotFound) || errors.Is(err, storage.ErrNotFound)
}
