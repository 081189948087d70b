// Package youtubetest provides an in-process fake of the YouTube Data API v3
// read endpoints used by the harvester.
package youtubetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"google.golang.org/api/youtube/v3"

	ythttp "ytharvest/http"
)

// Server serves channels, playlists, playlist items, videos and comment
// threads from memory. Paths match the real API under /youtube/v3/.
type Server struct {
	*httptest.Server

	// PageSize is the number of items per list page.
	PageSize int

	mu               sync.Mutex
	channels         map[string]*youtube.Channel
	playlists        map[string][]*youtube.Playlist
	items            map[string][]*youtube.PlaylistItem
	videos           map[string]*youtube.Video
	threads          map[string][]*youtube.CommentThread
	commentsDisabled map[string]bool
	endless          map[string]bool
	failures         map[string]int
	calls            map[string]int
}

// NewServer starts a fake API server. Close it when done.
func NewServer() *Server {
	s := &Server{
		PageSize:         2,
		channels:         make(map[string]*youtube.Channel),
		playlists:        make(map[string][]*youtube.Playlist),
		items:            make(map[string][]*youtube.PlaylistItem),
		videos:           make(map[string]*youtube.Video),
		threads:          make(map[string][]*youtube.CommentThread),
		commentsDisabled: make(map[string]bool),
		endless:          make(map[string]bool),
		failures:         make(map[string]int),
		calls:            make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/channels", s.handleChannels)
	mux.HandleFunc("/youtube/v3/playlists", s.handlePlaylists)
	mux.HandleFunc("/youtube/v3/playlistItems", s.handlePlaylistItems)
	mux.HandleFunc("/youtube/v3/videos", s.handleVideos)
	mux.HandleFunc("/youtube/v3/commentThreads", s.handleCommentThreads)
	s.Server = httptest.NewServer(mux)
	return s
}

// Client returns an HTTP client with a budget and breaker loose enough that
// tests never wait on them.
func Client() *ythttp.Client {
	cfg := ythttp.DefaultConfig()
	cfg.Timeout = 10 * time.Second
	cfg.RateLimiter = ythttp.RateLimiterConfig{RPS: 1000, Burst: 100}
	cfg.CircuitBreaker = ythttp.CircuitBreakerConfig{FailureThreshold: 1000, RecoveryTimeout: time.Second}
	return ythttp.New(cfg)
}

// UploadsPlaylistID is the uploads playlist the fake assigns to a channel.
func UploadsPlaylistID(channelID string) string {
	return "UU" + channelID
}

// AddChannel registers a channel and its empty uploads playlist.
func (s *Server) AddChannel(id, title string, subscribers, views uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[id] = &youtube.Channel{
		Id:      id,
		Snippet: &youtube.ChannelSnippet{Title: title, Description: title + " channel"},
		Statistics: &youtube.ChannelStatistics{
			SubscriberCount: subscribers,
			ViewCount:       views,
		},
		ContentDetails: &youtube.ChannelContentDetails{
			RelatedPlaylists: &youtube.ChannelContentDetailsRelatedPlaylists{
				Uploads: UploadsPlaylistID(id),
			},
		},
	}
	s.appendItems(UploadsPlaylistID(id))
}

// AddPlaylist registers a named playlist of channelID containing videoIDs.
func (s *Server) AddPlaylist(channelID, playlistID, title string, videoIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playlists[channelID] = append(s.playlists[channelID], &youtube.Playlist{
		Id:      playlistID,
		Snippet: &youtube.PlaylistSnippet{Title: title, ChannelId: channelID},
	})
	s.appendItems(playlistID, videoIDs...)
}

// AddUploads appends videoIDs to the channel's uploads playlist.
func (s *Server) AddUploads(channelID string, videoIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendItems(UploadsPlaylistID(channelID), videoIDs...)
}

func (s *Server) appendItems(playlistID string, videoIDs ...string) {
	if _, ok := s.items[playlistID]; !ok {
		s.items[playlistID] = []*youtube.PlaylistItem{}
	}
	for _, id := range videoIDs {
		s.items[playlistID] = append(s.items[playlistID], &youtube.PlaylistItem{
			Id:             playlistID + "-" + id,
			ContentDetails: &youtube.PlaylistItemContentDetails{VideoId: id},
			Snippet:        &youtube.PlaylistItemSnippet{Title: "Video " + id},
		})
	}
}

// Video describes a fake video.
type Video struct {
	ID           string
	Title        string
	Tags         []string
	Views        uint64
	Likes        uint64
	Favorites    uint64
	CommentCount uint64
	Published    time.Time
}

// AddVideo registers a video's details and statistics.
func (s *Server) AddVideo(v Video) {
	s.mu.Lock()
	defer s.mu.Unlock()
	published := v.Published
	if published.IsZero() {
		published = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	}
	s.videos[v.ID] = &youtube.Video{
		Id: v.ID,
		Snippet: &youtube.VideoSnippet{
			Title:       v.Title,
			Description: v.Title + " description",
			Tags:        v.Tags,
			PublishedAt: published.Format(time.RFC3339),
			Thumbnails: &youtube.ThumbnailDetails{
				Default: &youtube.Thumbnail{Url: "https://i.ytimg.com/vi/" + v.ID + "/default.jpg"},
			},
		},
		ContentDetails: &youtube.VideoContentDetails{Duration: "PT4M13S", Caption: "false"},
		Statistics: &youtube.VideoStatistics{
			ViewCount:     v.Views,
			LikeCount:     v.Likes,
			FavoriteCount: v.Favorites,
			CommentCount:  v.CommentCount,
		},
	}
}

// AddComment registers a top-level comment on a video.
func (s *Server) AddComment(videoID, commentID, author, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[videoID] = append(s.threads[videoID], &youtube.CommentThread{
		Id: commentID,
		Snippet: &youtube.CommentThreadSnippet{
			VideoId: videoID,
			TopLevelComment: &youtube.Comment{
				Id: commentID,
				Snippet: &youtube.CommentSnippet{
					TextDisplay:       text,
					AuthorDisplayName: author,
					PublishedAt:       "2024-02-01T08:30:00Z",
				},
			},
		},
	})
}

// DisableComments makes comment thread lookups for videoID report commentsDisabled.
func (s *Server) DisableComments(videoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commentsDisabled[videoID] = true
}

// Endless makes the playlist's item listing return a fresh page token forever.
func (s *Server) Endless(playlistID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endless[playlistID] = true
}

// Fail makes every request for the given endpoint and id answer with status.
// Endpoint is the last path element, e.g. "playlistItems" or "videos".
func (s *Server) Fail(endpoint, id string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[endpoint+"/"+id] = status
}

// Calls returns how many requests reached endpoint for id.
func (s *Server) Calls(endpoint, id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint+"/"+id]
}

// TotalCalls returns the number of requests served.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// begin records the call and reports whether a failure was written.
func (s *Server) begin(w http.ResponseWriter, endpoint, id string) bool {
	s.mu.Lock()
	s.calls[endpoint+"/"+id]++
	status, fail := s.failures[endpoint+"/"+id]
	s.mu.Unlock()

	if fail {
		writeError(w, status, "backendError", "injected failure")
		return true
	}
	return false
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if s.begin(w, "channels", id) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := &youtube.ChannelListResponse{Items: []*youtube.Channel{}}
	if ch, ok := s.channels[id]; ok {
		resp.Items = append(resp.Items, ch)
	}
	writeJSON(w, resp)
}

func (s *Server) handlePlaylists(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("channelId")
	if s.begin(w, "playlists", id) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	page, next := pageOf(s.playlists[id], r.URL.Query().Get("pageToken"), s.PageSize)
	writeJSON(w, &youtube.PlaylistListResponse{Items: page, NextPageToken: next})
}

func (s *Server) handlePlaylistItems(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("playlistId")
	if s.begin(w, "playlistItems", id) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	token := r.URL.Query().Get("pageToken")
	if s.endless[id] {
		n, _ := strconv.Atoi(token)
		writeJSON(w, &youtube.PlaylistItemListResponse{
			Items:         []*youtube.PlaylistItem{},
			NextPageToken: strconv.Itoa(n + 1),
		})
		return
	}

	items, ok := s.items[id]
	if !ok {
		writeError(w, http.StatusNotFound, "playlistNotFound", "playlist not found")
		return
	}
	page, next := pageOf(items, token, s.PageSize)
	writeJSON(w, &youtube.PlaylistItemListResponse{Items: page, NextPageToken: next})
}

func (s *Server) handleVideos(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if s.begin(w, "videos", id) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := &youtube.VideoListResponse{Items: []*youtube.Video{}}
	if v, ok := s.videos[id]; ok {
		resp.Items = append(resp.Items, v)
	}
	writeJSON(w, resp)
}

func (s *Server) handleCommentThreads(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("videoId")
	if s.begin(w, "commentThreads", id) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.commentsDisabled[id] {
		writeError(w, http.StatusForbidden, "commentsDisabled",
			fmt.Sprintf("The video identified by the videoId parameter %s has disabled comments.", id))
		return
	}
	page, next := pageOf(s.threads[id], r.URL.Query().Get("pageToken"), s.PageSize)
	writeJSON(w, &youtube.CommentThreadListResponse{Items: page, NextPageToken: next})
}

// pageOf slices items by an integer offset token.
func pageOf[T any](items []T, token string, size int) ([]T, string) {
	start, _ := strconv.Atoi(token)
	if start > len(items) {
		start = len(items)
	}
	end := start + size
	if size <= 0 || end > len(items) {
		end = len(items)
	}
	next := ""
	if end < len(items) {
		next = strconv.Itoa(end)
	}
	page := make([]T, 0, end-start)
	return append(page, items[start:end]...), next
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": message,
			"errors": []map[string]string{
				{"reason": reason, "domain": "youtube", "message": message},
			},
		},
	})
}
