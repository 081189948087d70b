package ytharvest

import (
	"errors"
	"fmt"
	"testing"

	"ytharvest/sqlstore"
	"ytharvest/storage"
	"ytharvest/youtube"
)

func TestErrorHelpers(t *testing.T) {
	fetchMissing := &youtube.FetchError{Op: "channel", ID: "UCx", Kind: youtube.ErrNotFound, Err: errors.New("404")}
	emptyCollection := &sqlstore.MigrationError{
		Step: sqlstore.StepFetch,
		Err:  &storage.StorageError{Op: "find", Entity: "collection", ID: "youtube.x", Err: storage.ErrNotFound},
	}

	tests := []struct {
		name        string
		err         error
		wantInvalid bool
		wantMissing bool
	}{
		{"nil", nil, false, false},
		{"empty id", fmt.Errorf("harvest: %w", youtube.ErrInvalidArgument), true, false},
		{"bad database", storage.ErrInvalidArgument, true, false},
		{"channel missing", fetchMissing, false, true},
		{"empty collection", emptyCollection, false, true},
		{"unavailable", youtube.ErrResourceUnavailable, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsInvalidArgument(tt.err); got != tt.wantInvalid {
				t.Errorf("IsInvalidArgument() = %v, want %v", got, tt.wantInvalid)
			}
			if got := IsNotFound(tt.err); got != tt.wantMissing {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.wantMissing)
			}
		})
	}
}

func TestMigrationErrorAlias(t *testing.T) {
	var err error = &sqlstore.MigrationError{Step: sqlstore.StepPlaylist, Err: errors.New("constraint")}
	var migErr *MigrationError
	if !errors.As(err, &migErr) {
		t.Fatal("errors.As failed for MigrationError alias")
	}
	if migErr.Step != sqlstore.StepPlaylist {
		t.Errorf("Step = %q, want %q", migErr.Step, sqlstore.StepPlaylist)
	}
}
