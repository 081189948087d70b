package youtube

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytharvest/internal/metrics"
	"ytharvest/youtube/youtubetest"
)

const testChannel = "UC_x5XG1OV2P6uZZ5FSM9Ttw"

func newTestFetcher(t *testing.T, srv *youtubetest.Server, maxPages int) (*APIFetcher, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	client := youtubetest.Client()
	t.Cleanup(func() { client.Close() })

	f, err := NewAPIFetcher(context.Background(), Config{
		APIKey:   "test-key",
		Endpoint: srv.URL,
		MaxPages: maxPages,
		Metrics:  m,
	}, client)
	require.NoError(t, err)
	return f, m
}

func TestNewAPIFetcherRequiresKey(t *testing.T) {
	_, err := NewAPIFetcher(context.Background(), Config{}, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestFetchEmptyIDs(t *testing.T) {
	srv := youtubetest.NewServer()
	defer srv.Close()
	f, _ := newTestFetcher(t, srv, 0)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"channel", func() error { _, err := f.FetchChannel(ctx, ""); return err }},
		{"playlists", func() error { _, err := f.FetchPlaylists(ctx, ""); return err }},
		{"playlist items", func() error { _, err := f.FetchPlaylistItems(ctx, ""); return err }},
		{"video", func() error { _, err := f.FetchVideo(ctx, ""); return err }},
		{"comment threads", func() error { _, err := f.FetchCommentThreads(ctx, ""); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("error = %v, want ErrInvalidArgument", err)
			}
		})
	}
	assert.Zero(t, srv.TotalCalls(), "empty ids must not reach the API")
}

func TestFetchChannel(t *testing.T) {
	srv := youtubetest.NewServer()
	defer srv.Close()
	srv.AddChannel(testChannel, "Google for Developers", 2400000, 250000000)
	f, _ := newTestFetcher(t, srv, 0)

	about, err := f.FetchChannel(context.Background(), testChannel)
	require.NoError(t, err)

	assert.Equal(t, testChannel, about.ChannelID)
	assert.Equal(t, "Google for Developers", about.Name)
	assert.Equal(t, int64(2400000), about.SubscriberCount)
	assert.Equal(t, int64(250000000), about.ViewCount)
	assert.Equal(t, youtubetest.UploadsPlaylistID(testChannel), about.UploadsPlaylistID)
	assert.NotEmpty(t, about.Description)
}

func TestFetchChannelNotFound(t *testing.T) {
	srv := youtubetest.NewServer()
	defer srv.Close()
	f, _ := newTestFetcher(t, srv, 0)

	_, err := f.FetchChannel(context.Background(), "UCmissing")
	assert.ErrorIs(t, err, ErrNotFound)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "channel", fetchErr.Op)
	assert.Equal(t, "UCmissing", fetchErr.ID)
}

func TestFetchPlaylistsPaginates(t *testing.T) {
	srv := youtubetest.NewServer()
	defer srv.Close()
	srv.PageSize = 2
	srv.AddChannel(testChannel, "Google for Developers", 1, 1)
	for _, id := range []string{"PL1", "PL2", "PL3", "PL4", "PL5"} {
		srv.AddPlaylist(testChannel, id, "Playlist "+id)
	}
	f, m := newTestFetcher(t, srv, 0)

	refs, err := f.FetchPlaylists(context.Background(), testChannel)
	require.NoError(t, err)

	require.Len(t, refs, 5)
	assert.Equal(t, PlaylistRef{ID: "PL1", Title: "Playlist PL1"}, refs[0])
	assert.Equal(t, "PL5", refs[4].ID)
	assert.Equal(t, 3, srv.Calls("playlists", testChannel), "5 items at 2 per page is 3 pages")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchCalls.WithLabelValues("playlists", "ok")))
}

func TestFetchPlaylistItemsPageCap(t *testing.T) {
	srv := youtubetest.NewServer()
	defer srv.Close()
	srv.Endless("PLloop")
	f, _ := newTestFetcher(t, srv, 3)

	items, err := f.FetchPlaylistItems(context.Background(), "PLloop")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 3, srv.Calls("playlistItems", "PLloop"))
}

func TestFetchPlaylistItemsFailureIsUnavailable(t *testing.T) {
	srv := youtubetest.NewServer()
	defer srv.Close()
	srv.AddPlaylist(testChannel, "PLbad", "Broken", "v1", "v2", "v3")
	srv.Fail("playlistItems", "PLbad", http.StatusInternalServerError)
	f, m := newTestFetcher(t, srv, 0)

	items, err := f.FetchPlaylistItems(context.Background(), "PLbad")
	assert.Nil(t, items, "no partial page may be exposed")
	assert.ErrorIs(t, err, ErrResourceUnavailable)
	assert.Equal(t, 1, srv.Calls("playlistItems", "PLbad"), "failures are not retried")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchCalls.WithLabelValues("playlist_items", "error")))
}

func TestFetchVideo(t *testing.T) {
	srv := youtubetest.NewServer()
	defer srv.Close()
	published := time.Date(2023, 6, 1, 9, 0, 0, 0, time.UTC)
	srv.AddVideo(youtubetest.Video{
		ID:           "vid1",
		Title:        "Intro to Go",
		Tags:         []string{"go", "tutorial", "go"},
		Views:        1500,
		Likes:        42,
		Favorites:    3,
		CommentCount: 7,
		Published:    published,
	})
	f, _ := newTestFetcher(t, srv, 0)

	v, err := f.FetchVideo(context.Background(), "vid1")
	require.NoError(t, err)
	require.NotNil(t, v)

	assert.Equal(t, "vid1", v.VideoID)
	assert.Equal(t, "Intro to Go", v.Name)
	assert.Equal(t, []string{"go", "tutorial"}, v.Tags)
	assert.True(t, v.PublishedAt.Equal(published))
	assert.Equal(t, int64(1500), v.ViewCount)
	require.NotNil(t, v.LikeCount)
	assert.Equal(t, int64(42), *v.LikeCount)
	require.NotNil(t, v.CommentCount)
	assert.Equal(t, int64(7), *v.CommentCount)
	assert.Equal(t, int64(3), v.FavoriteCount)
	assert.Equal(t, "PT4M13S", v.Duration)
	assert.Equal(t, "false", v.CaptionStatus)
	assert.Equal(t, "https://i.ytimg.com/vi/vid1/default.jpg", v.ThumbnailURL)
	assert.NotNil(t, v.Comments)
	assert.Empty(t, v.Comments)
}

func TestFetchVideoHiddenCounts(t *testing.T) {
	srv := youtubetest.NewServer()
	defer srv.Close()
	srv.AddVideo(youtubetest.Video{ID: "vid2", Title: "Likes hidden", Views: 10})
	f, _ := newTestFetcher(t, srv, 0)

	v, err := f.FetchVideo(context.Background(), "vid2")
	require.NoError(t, err)
	assert.Nil(t, v.LikeCount)
	assert.Nil(t, v.CommentCount)
	assert.Nil(t, v.Tags)
}

func TestFetchVideoNoItems(t *testing.T) {
	srv := youtubetest.NewServer()
	defer srv.Close()
	f, _ := newTestFetcher(t, srv, 0)

	v, err := f.FetchVideo(context.Background(), "gone")
	assert.NoError(t, err)
	assert.Nil(t, v)
}

func TestFetchCommentThreads(t *testing.T) {
	srv := youtubetest.NewServer()
	defer srv.Close()
	srv.AddComment("vid1", "c1", "ann", "first")
	srv.AddComment("vid1", "c2", "bob", "second")
	srv.AddComment("vid1", "c3", "cat", "third")
	f, _ := newTestFetcher(t, srv, 0)

	comments, err := f.FetchCommentThreads(context.Background(), "vid1")
	require.NoError(t, err)
	require.Len(t, comments, 3)
	assert.Equal(t, "c1", comments[0].CommentID)
	assert.Equal(t, "first", comments[0].Text)
	assert.Equal(t, "ann", comments[0].AuthorDisplayName)
	assert.Equal(t, 2024, comments[0].PublishedAt.Year())
	assert.Equal(t, "c3", comments[2].CommentID)
}

func TestFetchCommentThreadsDisabled(t *testing.T) {
	srv := youtubetest.NewServer()
	defer srv.Close()
	srv.DisableComments("quiet")
	f, m := newTestFetcher(t, srv, 0)

	_, err := f.FetchCommentThreads(context.Background(), "quiet")
	assert.ErrorIs(t, err, ErrCommentsDisabled)
	assert.NotErrorIs(t, err, ErrResourceUnavailable)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchCalls.WithLabelValues("comment_threads", "disabled")))
}

func TestFetchCancelled(t *testing.T) {
	srv := youtubetest.NewServer()
	defer srv.Close()
	srv.AddChannel(testChannel, "Google for Developers", 1, 1)
	f, _ := newTestFetcher(t, srv, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.FetchChannel(ctx, testChannel)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrResourceUnavailable)
}

func TestTagSet(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil", nil, nil},
		{"empty", []string{}, nil},
		{"dedupe keeps first order", []string{"b", "a", "b", "c", "a"}, []string{"b", "a", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tagSet(tt.in))
		})
	}
}

func TestFetchErrorMessage(t *testing.T) {
	err := &FetchError{Op: "video", ID: "abc", Kind: ErrResourceUnavailable, Err: errors.New("boom")}
	assert.Equal(t, "youtube: video abc: youtube: resource unavailable: boom", err.Error())
	assert.ErrorIs(t, err, ErrResourceUnavailable)
}
