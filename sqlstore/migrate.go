package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"ytharvest/internal/logging"
	"ytharvest/storage"
)

// Mode says whether a migration created a new channel snapshot or replaced
// an existing one.
type Mode string

const (
	ModeInsert  Mode = "insert"
	ModeReplace Mode = "replace"
)

// Migration steps reported in MigrationError.
const (
	StepFetch       = "fetch"
	StepTransaction = "transaction"
	StepLookup      = "lookup"
	StepDelete      = "delete"
	StepChannel     = "channel"
	StepPlaylist    = "playlist"
	StepComments    = "comments"
)

// MigrationError is returned when a migration fails. Nothing from the failed
// migration is committed.
type MigrationError struct {
	Step string
	Err  error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("sqlstore: migrate %s: %v", e.Step, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// MigrationResult summarizes a committed migration.
type MigrationResult struct {
	ChannelID    string
	ChannelName  string
	Mode         Mode
	PlaylistRows int
	CommentRows  int
}

// Migrator projects one stored channel aggregate into the relational tables.
type Migrator struct {
	store *Store
	docs  storage.DocumentStore
}

func NewMigrator(store *Store, docs storage.DocumentStore) *Migrator {
	return &Migrator{store: store, docs: docs}
}

// Migrate reads the first aggregate of database.collection and writes it as
// the channel's snapshot in one transaction. An existing snapshot for the same
// channel name or id is deleted first. An empty collection returns an error
// matching storage.ErrNotFound.
func (m *Migrator) Migrate(ctx context.Context, database, collection string) (*MigrationResult, error) {
	ctx, log := logging.WithFields(ctx, logrus.Fields{
		"db.name":       database,
		"db.collection": collection,
		"sql.driver":    m.store.driver,
	})

	agg, err := m.docs.FetchOne(ctx, database, collection)
	if err != nil {
		outcome := "error"
		if errors.Is(err, storage.ErrNotFound) {
			outcome = "not_found"
		}
		m.store.metrics.ObserveMigration("none", outcome)
		log.WithError(err).Warn("nothing to migrate")
		return nil, &MigrationError{Step: StepFetch, Err: err}
	}

	res := &MigrationResult{ChannelID: agg.About.ChannelID, ChannelName: agg.About.Name}
	err = m.store.usingTx(ctx, func(tx *sql.Tx) error {
		existing, err := m.store.existingChannelIDs(ctx, tx, agg.About)
		if err != nil {
			return &MigrationError{Step: StepLookup, Err: err}
		}
		if len(existing) > 0 {
			res.Mode = ModeReplace
			return m.store.replaceChannelSnapshot(ctx, tx, agg, existing, res)
		}
		res.Mode = ModeInsert
		return m.store.insertChannelSnapshot(ctx, tx, agg, res)
	})
	if err != nil {
		var merr *MigrationError
		if !errors.As(err, &merr) {
			merr = &MigrationError{Step: StepTransaction, Err: err}
		}
		mode := string(res.Mode)
		if mode == "" {
			mode = "none"
		}
		m.store.metrics.ObserveMigration(mode, "error")
		log.WithError(merr).Error("migration rolled back")
		return nil, merr
	}

	m.store.metrics.ObserveMigration(string(res.Mode), "ok")
	log.WithFields(logrus.Fields{
		"channel.id":    res.ChannelID,
		"mode":          res.Mode,
		"playlist_rows": res.PlaylistRows,
		"comment_rows":  res.CommentRows,
	}).Info("migration committed")
	return res, nil
}

// existingChannelIDs returns the channel ids of rows already stored under the
// channel's name or id.
func (s *Store) existingChannelIDs(ctx context.Context, tx *sql.Tx, about storage.About) ([]string, error) {
	rows, err := tx.QueryContext(ctx,
		s.rebind(`SELECT DISTINCT channel_id FROM channel_data WHERE channel_name = ? OR channel_id = ?`),
		about.Name, about.ChannelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// replaceChannelSnapshot deletes the comment, playlist and channel rows of
// every previous snapshot, then inserts the new one.
func (s *Store) replaceChannelSnapshot(ctx context.Context, tx *sql.Tx, agg *storage.ChannelAggregate, existing []string, res *MigrationResult) error {
	for _, id := range existing {
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM comments WHERE channel_id = ?`), id); err != nil {
			return &MigrationError{Step: StepDelete, Err: err}
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM playlist WHERE channel_id = ?`), id); err != nil {
			return &MigrationError{Step: StepDelete, Err: err}
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM channel_data WHERE channel_id = ?`), id); err != nil {
			return &MigrationError{Step: StepDelete, Err: err}
		}
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM channel_data WHERE channel_name = ?`), agg.About.Name); err != nil {
		return &MigrationError{Step: StepDelete, Err: err}
	}
	return s.insertChannelSnapshot(ctx, tx, agg, res)
}

// insertChannelSnapshot writes the channel row, one playlist row per
// playlist video, and each playlist video's comments once per channel.
func (s *Store) insertChannelSnapshot(ctx context.Context, tx *sql.Tx, agg *storage.ChannelAggregate, res *MigrationResult) error {
	about := agg.About
	if _, err := tx.ExecContext(ctx, s.rebind(
		`INSERT INTO channel_data (channel_name, channel_id, subscription_count, channel_views) VALUES (?, ?, ?, ?)`),
		about.Name, about.ChannelID, about.SubscriberCount, about.ViewCount); err != nil {
		return &MigrationError{Step: StepChannel, Err: err}
	}

	insertVideo, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO playlist (
		channel_id, playlist_id, playlist_title, video_title, video_id, video_name,
		video_description, published_date, view_count, like_count, favorite_count,
		comment_count, duration, thumbnail, caption_status
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return &MigrationError{Step: StepPlaylist, Err: err}
	}
	defer insertVideo.Close()

	insertComment, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO comments (
		channel_id, video_id, comment_id, comment_text, comment_author, comment_published_date
	) VALUES (?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return &MigrationError{Step: StepComments, Err: err}
	}
	defer insertComment.Close()

	commented := make(map[string]bool)
	for _, plID := range sortedKeys(agg.Playlists) {
		pl := agg.Playlists[plID]
		for _, videoID := range sortedKeys(pl.Videos) {
			v := pl.Videos[videoID]
			if _, err := insertVideo.ExecContext(ctx,
				about.ChannelID, pl.PlaylistID, pl.Title, v.Name, v.VideoID, v.Name,
				v.Description, nullTime(v.PublishedAt), v.ViewCount, countOrZero(v.LikeCount),
				v.FavoriteCount, countOrZero(v.CommentCount), v.Duration, v.ThumbnailURL,
				v.CaptionStatus,
			); err != nil {
				return &MigrationError{Step: StepPlaylist, Err: fmt.Errorf("video %s: %w", v.VideoID, err)}
			}
			res.PlaylistRows++

			if commented[v.VideoID] {
				continue
			}
			commented[v.VideoID] = true
			for _, commentID := range sortedKeys(v.Comments) {
				c := v.Comments[commentID]
				if _, err := insertComment.ExecContext(ctx,
					about.ChannelID, v.VideoID, c.CommentID, c.Text, c.AuthorDisplayName, nullTime(c.PublishedAt),
				); err != nil {
					return &MigrationError{Step: StepComments, Err: fmt.Errorf("comment %s: %w", c.CommentID, err)}
				}
				res.CommentRows++
			}
		}
	}
	return nil
}

func countOrZero(n *int64) int64 {
	if n == nil {
		return 0
	}
	return *n
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
