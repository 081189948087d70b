package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	ythttp "ytharvest/http"
	"ytharvest/internal/logging"
	"ytharvest/internal/metrics"
	"ytharvest/storage"
)

const (
	// DefaultMaxPages bounds pagination of a single list call.
	DefaultMaxPages = 100

	playlistPageSize = 50
	commentPageSize  = 100
)

// Config configures an APIFetcher.
type Config struct {
	// APIKey is the Data API key. Required.
	APIKey string
	// Endpoint overrides the API base URL (tests, proxies). Empty uses the default.
	Endpoint string
	// MaxPages caps the pages fetched per list call. Zero uses DefaultMaxPages.
	MaxPages int
	// Metrics records call outcomes. May be nil.
	Metrics *metrics.Metrics
}

// APIFetcher implements Fetcher using YouTube Data API v3. Every request goes
// through the shared client's rate limiter, so concurrent callers share one
// budget.
type APIFetcher struct {
	service  *youtube.Service
	maxPages int
	metrics  *metrics.Metrics
}

// NewAPIFetcher creates a fetcher whose requests travel over client.
func NewAPIFetcher(ctx context.Context, cfg Config, client *ythttp.Client) (*APIFetcher, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key required", ErrInvalidArgument)
	}
	if client == nil {
		client = ythttp.New(nil)
	}

	// WithHTTPClient bypasses WithAPIKey, so the key rides on the transport.
	httpClient := &http.Client{
		Timeout: client.HTTP.Timeout,
		Transport: &transport.APIKey{
			Key:       cfg.APIKey,
			Transport: client.HTTP.Transport,
		},
	}

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if !strings.HasSuffix(endpoint, "/") {
			endpoint += "/"
		}
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	return &APIFetcher{
		service:  service,
		maxPages: maxPages,
		metrics:  cfg.Metrics,
	}, nil
}

func (a *APIFetcher) FetchChannel(ctx context.Context, channelID string) (*storage.About, error) {
	const op = "channel"
	if channelID == "" {
		return nil, invalidArgument(op)
	}

	resp, err := a.service.Channels.List([]string{"snippet", "statistics", "contentDetails"}).
		Id(channelID).
		Context(ctx).
		Do()
	if err != nil {
		return nil, a.fail(ctx, op, channelID, err)
	}
	if len(resp.Items) == 0 {
		a.metrics.ObserveFetch(op, "not_found")
		return nil, &FetchError{Op: op, ID: channelID, Kind: ErrNotFound}
	}
	a.metrics.ObserveFetch(op, "ok")

	ch := resp.Items[0]
	about := &storage.About{ChannelID: channelID}
	if ch.Snippet != nil {
		about.Name = ch.Snippet.Title
		about.Description = ch.Snippet.Description
	}
	if ch.Statistics != nil {
		about.SubscriberCount = int64(ch.Statistics.SubscriberCount)
		about.ViewCount = int64(ch.Statistics.ViewCount)
	}
	if ch.ContentDetails != nil && ch.ContentDetails.RelatedPlaylists != nil {
		about.UploadsPlaylistID = ch.ContentDetails.RelatedPlaylists.Uploads
	}
	return about, nil
}

func (a *APIFetcher) FetchPlaylists(ctx context.Context, channelID string) ([]PlaylistRef, error) {
	const op = "playlists"
	if channelID == "" {
		return nil, invalidArgument(op)
	}

	return paginate(ctx, a, op, channelID, func(ctx context.Context, token string) ([]PlaylistRef, string, error) {
		resp, err := a.service.Playlists.List([]string{"snippet"}).
			ChannelId(channelID).
			MaxResults(playlistPageSize).
			PageToken(token).
			Context(ctx).
			Do()
		if err != nil {
			return nil, "", err
		}
		refs := make([]PlaylistRef, 0, len(resp.Items))
		for _, p := range resp.Items {
			ref := PlaylistRef{ID: p.Id}
			if p.Snippet != nil {
				ref.Title = p.Snippet.Title
			}
			refs = append(refs, ref)
		}
		return refs, resp.NextPageToken, nil
	})
}

func (a *APIFetcher) FetchPlaylistItems(ctx context.Context, playlistID string) ([]PlaylistItem, error) {
	const op = "playlist_items"
	if playlistID == "" {
		return nil, invalidArgument(op)
	}

	return paginate(ctx, a, op, playlistID, func(ctx context.Context, token string) ([]PlaylistItem, string, error) {
		resp, err := a.service.PlaylistItems.List([]string{"snippet", "contentDetails"}).
			PlaylistId(playlistID).
			MaxResults(playlistPageSize).
			PageToken(token).
			Context(ctx).
			Do()
		if err != nil {
			return nil, "", err
		}
		items := make([]PlaylistItem, 0, len(resp.Items))
		for _, it := range resp.Items {
			var item PlaylistItem
			if it.ContentDetails != nil {
				item.VideoID = it.ContentDetails.VideoId
			}
			if it.Snippet != nil {
				item.Title = it.Snippet.Title
				if item.VideoID == "" && it.Snippet.ResourceId != nil {
					item.VideoID = it.Snippet.ResourceId.VideoId
				}
			}
			if item.VideoID == "" {
				continue
			}
			items = append(items, item)
		}
		return items, resp.NextPageToken, nil
	})
}

func (a *APIFetcher) FetchVideo(ctx context.Context, videoID string) (*storage.Video, error) {
	const op = "video"
	if videoID == "" {
		return nil, invalidArgument(op)
	}

	resp, err := a.service.Videos.List([]string{"snippet", "contentDetails", "statistics"}).
		Id(videoID).
		Context(ctx).
		Do()
	if err != nil {
		return nil, a.fail(ctx, op, videoID, err)
	}
	if len(resp.Items) == 0 {
		a.metrics.ObserveFetch(op, "not_found")
		return nil, nil
	}
	a.metrics.ObserveFetch(op, "ok")

	return videoFromAPI(resp.Items[0]), nil
}

func (a *APIFetcher) FetchCommentThreads(ctx context.Context, videoID string) ([]*storage.Comment, error) {
	const op = "comment_threads"
	if videoID == "" {
		return nil, invalidArgument(op)
	}

	return paginate(ctx, a, op, videoID, func(ctx context.Context, token string) ([]*storage.Comment, string, error) {
		resp, err := a.service.CommentThreads.List([]string{"snippet"}).
			VideoId(videoID).
			MaxResults(commentPageSize).
			TextFormat("plainText").
			PageToken(token).
			Context(ctx).
			Do()
		if err != nil {
			return nil, "", err
		}
		comments := make([]*storage.Comment, 0, len(resp.Items))
		for _, thread := range resp.Items {
			if c := commentFromAPI(thread); c != nil {
				comments = append(comments, c)
			}
		}
		return comments, resp.NextPageToken, nil
	})
}

// paginate follows page tokens until the API stops returning one, a token
// repeats, or maxPages is reached. Items are only returned once every page
// succeeded.
func paginate[T any](ctx context.Context, a *APIFetcher, op, id string,
	page func(ctx context.Context, token string) ([]T, string, error)) ([]T, error) {

	var all []T
	seen := make(map[string]bool)
	token := ""

	for pages := 0; ; pages++ {
		if pages == a.maxPages {
			logging.FromContext(ctx).WithFields(logrus.Fields{
				"fetch.op":  op,
				"fetch.id":  id,
				"max_pages": a.maxPages,
			}).Warn("pagination stopped at page cap")
			break
		}

		items, next, err := page(ctx, token)
		if err != nil {
			return nil, a.fail(ctx, op, id, err)
		}
		all = append(all, items...)

		if next == "" {
			break
		}
		if seen[next] {
			logging.FromContext(ctx).WithFields(logrus.Fields{
				"fetch.op": op,
				"fetch.id": id,
			}).Warn("pagination stopped on repeated page token")
			break
		}
		seen[next] = true
		token = next
	}

	a.metrics.ObserveFetch(op, "ok")
	return all, nil
}

// fail classifies err into the fetch taxonomy and records the outcome.
func (a *APIFetcher) fail(ctx context.Context, op, id string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		a.metrics.ObserveFetch(op, "cancelled")
		return &FetchError{Op: op, ID: id, Kind: ctxErr, Err: err}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if op == "comment_threads" && hasReason(apiErr, "commentsDisabled") {
			a.metrics.ObserveFetch(op, "disabled")
			return &FetchError{Op: op, ID: id, Kind: ErrCommentsDisabled, Err: err}
		}
		if apiErr.Code == http.StatusNotFound {
			a.metrics.ObserveFetch(op, "not_found")
			return &FetchError{Op: op, ID: id, Kind: ErrNotFound, Err: err}
		}
	}

	a.metrics.ObserveFetch(op, "error")
	return &FetchError{Op: op, ID: id, Kind: ErrResourceUnavailable, Err: err}
}

func hasReason(apiErr *googleapi.Error, reason string) bool {
	for _, item := range apiErr.Errors {
		if item.Reason == reason {
			return true
		}
	}
	return false
}

func invalidArgument(op string) error {
	return &FetchError{Op: op, Kind: ErrInvalidArgument, Err: errors.New("empty id")}
}

func videoFromAPI(v *youtube.Video) *storage.Video {
	video := &storage.Video{
		VideoID:  v.Id,
		Comments: make(map[string]*storage.Comment),
	}

	if s := v.Snippet; s != nil {
		video.Name = s.Title
		video.Description = s.Description
		video.Tags = tagSet(s.Tags)
		video.PublishedAt = parseTime(s.PublishedAt)
		if s.Thumbnails != nil && s.Thumbnails.Default != nil {
			video.ThumbnailURL = s.Thumbnails.Default.Url
		}
	}

	if cd := v.ContentDetails; cd != nil {
		video.Duration = cd.Duration
		video.CaptionStatus = cd.Caption
	}

	// The client decodes an omitted count as zero; zero is stored as absent.
	if st := v.Statistics; st != nil {
		video.ViewCount = int64(st.ViewCount)
		video.FavoriteCount = int64(st.FavoriteCount)
		video.LikeCount = optionalCount(st.LikeCount)
		video.CommentCount = optionalCount(st.CommentCount)
	}

	return video
}

func commentFromAPI(thread *youtube.CommentThread) *storage.Comment {
	if thread.Snippet == nil || thread.Snippet.TopLevelComment == nil {
		return nil
	}
	top := thread.Snippet.TopLevelComment
	c := &storage.Comment{CommentID: top.Id}
	if top.Snippet != nil {
		c.Text = top.Snippet.TextDisplay
		c.AuthorDisplayName = top.Snippet.AuthorDisplayName
		c.PublishedAt = parseTime(top.Snippet.PublishedAt)
	}
	if c.CommentID == "" {
		c.CommentID = thread.Id
	}
	return c
}

// tagSet deduplicates tags, keeping first-seen order. Nil when there are none.
func tagSet(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func optionalCount(v uint64) *int64 {
	if v == 0 {
		return nil
	}
	n := int64(v)
	return &n
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
