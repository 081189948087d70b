package sqlstore

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS channel_data (
		channel_name       TEXT NOT NULL,
		channel_id         TEXT NOT NULL,
		subscription_count BIGINT NOT NULL DEFAULT 0,
		channel_views      BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS playlist (
		channel_id        TEXT NOT NULL,
		playlist_id       TEXT NOT NULL,
		playlist_title    TEXT,
		video_title       TEXT,
		video_id          TEXT NOT NULL,
		video_name        TEXT,
		video_description TEXT,
		published_date    TIMESTAMP,
		view_count        BIGINT NOT NULL DEFAULT 0,
		like_count        BIGINT NOT NULL DEFAULT 0,
		favorite_count    BIGINT NOT NULL DEFAULT 0,
		comment_count     BIGINT NOT NULL DEFAULT 0,
		duration          TEXT,
		thumbnail         TEXT,
		caption_status    TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS comments (
		channel_id             TEXT NOT NULL,
		video_id               TEXT NOT NULL,
		comment_id             TEXT NOT NULL,
		comment_text           TEXT,
		comment_author         TEXT,
		comment_published_date TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS channel_data_channel_name_idx ON channel_data (channel_name)`,
	`CREATE INDEX IF NOT EXISTS playlist_channel_id_idx ON playlist (channel_id)`,
	`CREATE INDEX IF NOT EXISTS comments_channel_id_idx ON comments (channel_id)`,
	`CREATE INDEX IF NOT EXISTS comments_video_id_idx ON comments (video_id)`,
}

// EnsureSchema creates the channel_data, playlist and comments tables if
// they do not exist. Playlist and comment rows carry the channel_id of the
// snapshot that wrote them.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlstore: ensure schema: %w", err)
		}
	}
	return nil
}
