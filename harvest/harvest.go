// Package harvest assembles a complete channel aggregate from the Data API:
// channel metadata, every playlist with its videos, and the channel's
// remaining uploads, each video enriched with statistics and comments.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"ytharvest/internal/logging"
	"ytharvest/internal/metrics"
	"ytharvest/storage"
	"ytharvest/youtube"
)

// ErrCancelled is returned, joined with the context error, when a harvest
// stops early. The result then holds whatever was assembled so far.
var ErrCancelled = errors.New("harvest: cancelled")

// DefaultWorkers is the expansion pool size when Config.Workers is zero.
const DefaultWorkers = 4

// Phase is a step of the harvest state machine.
type Phase string

const (
	PhaseStart               Phase = "start"
	PhaseChannelFetched      Phase = "channel_fetched"
	PhasePlaylistsEnumerated Phase = "playlists_enumerated"
	PhasePlaylistsExpanded   Phase = "playlists_expanded"
	PhaseUnassignedScanned   Phase = "unassigned_scanned"
	PhaseDone                Phase = "done"
	PhaseFailed              Phase = "failed"
)

// BranchKind names the part of the tree a failure was isolated to.
type BranchKind string

const (
	BranchPlaylists BranchKind = "playlists"
	BranchPlaylist  BranchKind = "playlist"
	BranchUploads   BranchKind = "uploads"
	BranchVideo     BranchKind = "video"
	BranchComments  BranchKind = "comments"
)

// BranchFailure records one branch that was dropped or degraded.
type BranchFailure struct {
	Kind BranchKind
	ID   string
	Err  error
}

func (f BranchFailure) String() string {
	return fmt.Sprintf("%s %s: %v", f.Kind, f.ID, f.Err)
}

// Result is the outcome of a harvest.
type Result struct {
	// Aggregate is nil only when the channel itself could not be fetched.
	Aggregate *storage.ChannelAggregate
	// Failures lists isolated branch failures. Disabled comments are not failures.
	Failures []BranchFailure
	// Phase is the last phase reached.
	Phase    Phase
	Duration time.Duration
}

// Config configures a Harvester.
type Config struct {
	// Workers bounds concurrent playlist and video expansion.
	Workers int
	// Metrics records branch failures and durations. May be nil.
	Metrics *metrics.Metrics
	// Now overrides the clock for HarvestedAt.
	Now func() time.Time
}

// Harvester drives a Fetcher through one channel. It is safe for concurrent
// use, but concurrent harvests of the same channel are not coordinated.
type Harvester struct {
	fetcher youtube.Fetcher
	workers int
	metrics *metrics.Metrics
	now     func() time.Time
}

func New(fetcher youtube.Fetcher, cfg Config) *Harvester {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Harvester{
		fetcher: fetcher,
		workers: workers,
		metrics: cfg.Metrics,
		now:     now,
	}
}

// run holds the mutable state of one harvest.
type run struct {
	h   *Harvester
	ctx context.Context
	log logrus.FieldLogger

	mu       sync.Mutex
	failures []BranchFailure
	videos   map[string]*storage.Video
}

// Harvest fetches channelID and everything under it. A channel lookup failure
// is fatal and returns a nil result; later failures are isolated to their
// branch and reported in Result.Failures. When ctx is cancelled no further
// fetches are issued and the partial result is returned with ErrCancelled.
func (h *Harvester) Harvest(ctx context.Context, channelID string) (*Result, error) {
	start := time.Now()
	harvestID := uuid.NewString()
	ctx, log := logging.WithFields(ctx, logrus.Fields{
		"harvest.id": harvestID,
		"channel.id": channelID,
	})

	about, err := h.fetcher.FetchChannel(ctx, channelID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}
		log.WithError(err).Error("channel lookup failed")
		return nil, fmt.Errorf("harvest %s: %w", channelID, err)
	}
	about.ChannelID = channelID

	agg := storage.NewChannelAggregate(*about)
	agg.HarvestID = harvestID

	r := &run{h: h, ctx: ctx, log: log, videos: make(map[string]*storage.Video)}
	res := &Result{Aggregate: agg, Phase: PhaseChannelFetched}
	finish := func() {
		res.Failures = r.failures
		res.Duration = time.Since(start)
		agg.HarvestedAt = h.now().UTC()
		h.metrics.ObserveHarvest(res.Duration)
	}

	refs, err := h.fetcher.FetchPlaylists(ctx, channelID)
	if err != nil && !r.cancelled() {
		r.fail(BranchPlaylists, channelID, err)
	}
	if r.cancelled() {
		finish()
		return res, cancelled(ctx)
	}
	res.Phase = PhasePlaylistsEnumerated

	items := r.listPlaylists(refs)
	seen := make(map[string]bool)
	var order []string
	for _, ref := range refs {
		for _, it := range items[ref.ID] {
			if !seen[it.VideoID] {
				seen[it.VideoID] = true
				order = append(order, it.VideoID)
			}
		}
	}
	r.resolveVideos(order)

	for _, ref := range refs {
		list, ok := items[ref.ID]
		if !ok {
			continue
		}
		pl := &storage.Playlist{
			PlaylistID: ref.ID,
			Title:      ref.Title,
			Videos:     make(map[string]*storage.Video),
		}
		for _, it := range list {
			if v := r.video(it.VideoID); v != nil {
				pl.Videos[it.VideoID] = cloneVideo(v)
			}
		}
		agg.Playlists[ref.ID] = pl
	}
	if r.cancelled() {
		finish()
		return res, cancelled(ctx)
	}
	res.Phase = PhasePlaylistsExpanded

	r.scanUnassigned(agg, seen)
	if r.cancelled() {
		finish()
		return res, cancelled(ctx)
	}
	res.Phase = PhaseUnassignedScanned

	finish()
	res.Phase = PhaseDone
	log.WithFields(logrus.Fields{
		"playlists":         len(agg.Playlists),
		"playlist_videos":   agg.VideoCount(),
		"unassigned_videos": len(agg.UnassignedVideos),
		"failures":          len(res.Failures),
		"duration":          res.Duration,
	}).Info("harvest complete")
	return res, nil
}

// listPlaylists fetches the items of every playlist. A playlist whose listing
// fails is left out of the returned map.
func (r *run) listPlaylists(refs []youtube.PlaylistRef) map[string][]youtube.PlaylistItem {
	out := make(map[string][]youtube.PlaylistItem, len(refs))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(r.h.workers)
	for _, ref := range refs {
		if r.cancelled() {
			break
		}
		g.Go(func() error {
			if r.cancelled() {
				return nil
			}
			items, err := r.h.fetcher.FetchPlaylistItems(r.ctx, ref.ID)
			if err != nil {
				if !r.cancelled() {
					r.fail(BranchPlaylist, ref.ID, err)
				}
				return nil
			}
			mu.Lock()
			out[ref.ID] = items
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return out
}

// scanUnassigned walks the uploads playlist and adds every video not already
// seen in a named playlist.
func (r *run) scanUnassigned(agg *storage.ChannelAggregate, seen map[string]bool) {
	uploads := agg.About.UploadsPlaylistID
	if uploads == "" || r.cancelled() {
		return
	}

	items, err := r.h.fetcher.FetchPlaylistItems(r.ctx, uploads)
	if err != nil {
		if !r.cancelled() {
			r.fail(BranchUploads, uploads, err)
		}
		return
	}

	var ids []string
	for _, it := range items {
		if !seen[it.VideoID] {
			seen[it.VideoID] = true
			ids = append(ids, it.VideoID)
		}
	}
	r.resolveVideos(ids)

	for _, id := range ids {
		if v := r.video(id); v != nil {
			agg.UnassignedVideos[id] = v
		}
	}
}

// resolveVideos fetches each video and its comments on the worker pool.
func (r *run) resolveVideos(ids []string) {
	var g errgroup.Group
	g.SetLimit(r.h.workers)
	for _, id := range ids {
		if r.cancelled() {
			break
		}
		g.Go(func() error {
			if v := r.resolveVideo(id); v != nil {
				r.mu.Lock()
				r.videos[id] = v
				r.mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
}

// resolveVideo returns nil when the video is missing upstream or its lookup
// failed. A comment failure keeps the video with no comments.
func (r *run) resolveVideo(id string) *storage.Video {
	if r.cancelled() {
		return nil
	}
	v, err := r.h.fetcher.FetchVideo(r.ctx, id)
	if err != nil {
		if !r.cancelled() {
			r.fail(BranchVideo, id, err)
		}
		return nil
	}
	if v == nil {
		return nil
	}
	if v.Comments == nil {
		v.Comments = make(map[string]*storage.Comment)
	}
	if v.CommentCount == nil || *v.CommentCount == 0 || r.cancelled() {
		return v
	}

	comments, err := r.h.fetcher.FetchCommentThreads(r.ctx, id)
	switch {
	case errors.Is(err, youtube.ErrCommentsDisabled):
		r.log.WithField("video.id", id).Debug("comments disabled")
	case err != nil:
		if !r.cancelled() {
			r.fail(BranchComments, id, err)
		}
	default:
		for _, c := range comments {
			v.Comments[c.CommentID] = c
		}
	}
	return v
}

func (r *run) video(id string) *storage.Video {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.videos[id]
}

func (r *run) fail(kind BranchKind, id string, err error) {
	r.log.WithFields(logrus.Fields{
		"branch":    kind,
		"branch.id": id,
	}).WithError(err).Warn("branch failed, continuing")
	r.h.metrics.ObserveBranchFailure(string(kind))

	r.mu.Lock()
	r.failures = append(r.failures, BranchFailure{Kind: kind, ID: id, Err: err})
	r.mu.Unlock()
}

func (r *run) cancelled() bool {
	return r.ctx.Err() != nil
}

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
}

// cloneVideo copies a video so each playlist owns its own entry.
func cloneVideo(v *storage.Video) *storage.Video {
	c := *v
	if v.Tags != nil {
		c.Tags = append([]string(nil), v.Tags...)
	}
	if v.LikeCount != nil {
		n := *v.LikeCount
		c.LikeCount = &n
	}
	if v.CommentCount != nil {
		n := *v.CommentCount
		c.CommentCount = &n
	}
	c.Comments = make(map[string]*storage.Comment, len(v.Comments))
	for id, cm := range v.Comments {
		cc := *cm
		c.Comments[id] = &cc
	}
	return &c
}
