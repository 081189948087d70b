// Package youtube fetches channel, playlist, video and comment records from
// the YouTube Data API v3.
package youtube

import (
	"context"
	"errors"

	"ytharvest/storage"
)

// Sentinel errors for fetch operations.
var (
	ErrInvalidArgument     = errors.New("youtube: invalid argument")
	ErrResourceUnavailable = errors.New("youtube: resource unavailable")
	ErrNotFound            = errors.New("youtube: not found")
	// ErrCommentsDisabled is an expected outcome, not a failure.
	ErrCommentsDisabled = errors.New("youtube: comments disabled")
)

// Fetcher is the read-only view of the Data API used by the harvester.
// List operations follow page tokens to exhaustion (bounded by a page cap)
// and never return a partial page. Failures are returned without retry.
type Fetcher interface {
	// FetchChannel returns the channel snapshot, or ErrNotFound.
	FetchChannel(ctx context.Context, channelID string) (*storage.About, error)
	// FetchPlaylists returns every playlist owned by the channel.
	FetchPlaylists(ctx context.Context, channelID string) ([]PlaylistRef, error)
	// FetchPlaylistItems returns the videos referenced by a playlist, in order.
	FetchPlaylistItems(ctx context.Context, playlistID string) ([]PlaylistItem, error)
	// FetchVideo returns the video with statistics, or nil and no error if
	// the API returns no item for the id. Comments are not populated.
	FetchVideo(ctx context.Context, videoID string) (*storage.Video, error)
	// FetchCommentThreads returns top-level comments, or ErrCommentsDisabled.
	FetchCommentThreads(ctx context.Context, videoID string) ([]*storage.Comment, error)
}

// PlaylistRef identifies one playlist of a channel.
type PlaylistRef struct {
	ID    string
	Title string
}

// PlaylistItem is one entry of a playlist.
type PlaylistItem struct {
	VideoID string
	Title   string
}

// FetchError wraps fetch errors with the operation and resource id.
// It matches both its kind (ErrResourceUnavailable, ErrCommentsDisabled, ...)
// and the underlying API error:
//
//	var fetchErr *youtube.FetchError
//	if errors.As(err, &fetchErr) {
//		fmt.Printf("%s %s failed: %v\n", fetchErr.Op, fetchErr.ID, fetchErr.Err)
//	}
type FetchError struct {
	// Op is the fetch operation ("channel", "playlists", "playlist_items", "video", "comment_threads").
	Op string
	// ID is the identifier passed to the operation.
	ID string
	// Kind is the taxonomy sentinel.
	Kind error
	// Err is the underlying error, if any.
	Err error
}

func (e *FetchError) Error() string {
	msg := "youtube: " + e.Op + " " + e.ID + ": " + e.Kind.Error()
	if e.Err != nil && e.Err != e.Kind {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
