package storage

import "time"

// ChannelAggregate is the full harvested state of one channel. It owns every
// nested playlist, video and comment; nothing is shared between aggregates.
// Re-harvesting a channel produces a new aggregate that replaces the stored one.
type ChannelAggregate struct {
	// ChannelID is the YouTube channel ID (e.g., "UC_x5XG1OV2P6uZZ5FSM9Ttw").
	ChannelID string `json:"channel_id" bson:"channel_id"`
	// About is the scalar channel snapshot taken at harvest time.
	About About `json:"about" bson:"about"`
	// Playlists maps playlist ID to playlist.
	Playlists map[string]*Playlist `json:"playlists" bson:"playlists"`
	// UnassignedVideos maps video ID to videos not found in any playlist.
	UnassignedVideos map[string]*Video `json:"unassigned_videos" bson:"unassigned_videos"`
	// HarvestID identifies the harvest run that produced this aggregate.
	HarvestID string `json:"harvest_id,omitempty" bson:"harvest_id,omitempty"`
	// HarvestedAt is when the harvest completed.
	HarvestedAt time.Time `json:"harvested_at" bson:"harvested_at"`
}

// About is the channel metadata snapshot.
type About struct {
	ChannelID       string `json:"channel_id" bson:"channel_id"`
	Name            string `json:"name" bson:"name"`
	SubscriberCount int64  `json:"subscriber_count" bson:"subscriber_count"`
	ViewCount       int64  `json:"view_count" bson:"view_count"`
	Description     string `json:"description" bson:"description"`
	// UploadsPlaylistID is the channel's implicit uploads playlist.
	UploadsPlaylistID string `json:"uploads_playlist_id,omitempty" bson:"uploads_playlist_id,omitempty"`
}

// Playlist is one channel playlist with its videos keyed by video ID.
// Title is display-only; upstream titles are not unique.
type Playlist struct {
	PlaylistID string            `json:"playlist_id" bson:"playlist_id"`
	Title      string            `json:"title" bson:"title"`
	Videos     map[string]*Video `json:"videos" bson:"videos"`
}

// Video is one video with its statistics and top-level comments.
type Video struct {
	VideoID     string    `json:"video_id" bson:"video_id"`
	Name        string    `json:"name" bson:"name"`
	Description string    `json:"description" bson:"description"`
	Tags        []string  `json:"tags,omitempty" bson:"tags,omitempty"`
	PublishedAt time.Time `json:"published_at" bson:"published_at"`
	ViewCount   int64     `json:"view_count" bson:"view_count"`
	// LikeCount is nil when the owner hides likes.
	LikeCount     *int64 `json:"like_count" bson:"like_count"`
	FavoriteCount int64  `json:"favorite_count" bson:"favorite_count"`
	// CommentCount is nil when the provider does not report it.
	CommentCount  *int64 `json:"comment_count" bson:"comment_count"`
	Duration      string `json:"duration" bson:"duration"`
	ThumbnailURL  string `json:"thumbnail_url" bson:"thumbnail_url"`
	CaptionStatus string `json:"caption_status" bson:"caption_status"`
	// Comments maps comment ID to top-level comment.
	Comments map[string]*Comment `json:"comments" bson:"comments"`
}

// Comment is a top-level comment. Replies are not modeled.
type Comment struct {
	CommentID         string    `json:"comment_id" bson:"comment_id"`
	Text              string    `json:"text" bson:"text"`
	AuthorDisplayName string    `json:"author_display_name" bson:"author_display_name"`
	PublishedAt       time.Time `json:"published_at" bson:"published_at"`
}

// NewChannelAggregate returns an aggregate with empty, non-nil mappings.
func NewChannelAggregate(about About) *ChannelAggregate {
	return &ChannelAggregate{
		ChannelID:        about.ChannelID,
		About:            about,
		Playlists:        make(map[string]*Playlist),
		UnassignedVideos: make(map[string]*Video),
	}
}

// VideoCount returns the number of videos held in playlists, counting a
// video once per playlist it appears in.
func (a *ChannelAggregate) VideoCount() int {
	n := 0
	for _, p := range a.Playlists {
		n += len(p.Videos)
	}
	return n
}

// Document is the stored form of an aggregate: one document per channel,
// keyed by channel ID.
type Document struct {
	ID      string            `json:"_id" bson:"_id"`
	Payload *ChannelAggregate `json:"payload" bson:"payload"`
}
