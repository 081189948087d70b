package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"ytharvest/sqlstore"
)

// ErrUnknownReport is returned by Report for a name not in Reports.
var ErrUnknownReport = errors.New("pipeline: unknown report")

// Report is a named analysis query over the relational tables.
type Report struct {
	Name        string
	Description string
	SQL         string
}

// Reports are the fixed analysis queries offered to the UI. They run
// unchanged on postgres and sqlite.
var Reports = map[string]Report{
	"videos_by_channel": {
		Description: "Videos and their channels",
		SQL: `SELECT p.video_name, c.channel_name
FROM playlist p JOIN channel_data c ON p.channel_id = c.channel_id
ORDER BY c.channel_name, p.video_name`,
	},
	"channels_most_videos": {
		Description: "Channels with the most playlist videos",
		SQL: `SELECT c.channel_name, COUNT(DISTINCT p.video_id) AS num_videos
FROM playlist p JOIN channel_data c ON p.channel_id = c.channel_id
GROUP BY c.channel_name ORDER BY num_videos DESC LIMIT 10`,
	},
	"top_viewed_videos": {
		Description: "Ten most viewed videos",
		SQL: `SELECT video_name, MAX(view_count) AS view_count
FROM playlist GROUP BY video_id, video_name ORDER BY view_count DESC LIMIT 10`,
	},
	"comments_per_video": {
		Description: "Number of comments per video",
		SQL: `SELECT v.video_name, COUNT(DISTINCT cm.comment_id) AS num_comments
FROM comments cm JOIN (SELECT DISTINCT video_id, video_name FROM playlist) v ON cm.video_id = v.video_id
GROUP BY v.video_id, v.video_name ORDER BY num_comments DESC`,
	},
	"most_liked_videos": {
		Description: "Ten most liked videos",
		SQL: `SELECT video_name, MAX(like_count) AS like_count
FROM playlist GROUP BY video_id, video_name ORDER BY like_count DESC LIMIT 10`,
	},
	"views_per_channel": {
		Description: "Total playlist video views per channel",
		SQL: `SELECT c.channel_name, SUM(v.view_count) AS total_views
FROM (SELECT DISTINCT channel_id, video_id, view_count FROM playlist) v
JOIN channel_data c ON v.channel_id = c.channel_id
GROUP BY c.channel_name ORDER BY total_views DESC`,
	},
	"channels_published_2023": {
		Description: "Channels with videos published in 2023",
		SQL: `SELECT DISTINCT c.channel_name
FROM playlist p JOIN channel_data c ON p.channel_id = c.channel_id
WHERE p.published_date >= '2023-01-01' AND p.published_date < '2024-01-01'
ORDER BY c.channel_name`,
	},
	"most_commented_videos": {
		Description: "Ten videos with the most stored comments",
		SQL: `SELECT v.video_name, COUNT(DISTINCT cm.comment_id) AS num_comments
FROM comments cm JOIN (SELECT DISTINCT video_id, video_name FROM playlist) v ON cm.video_id = v.video_id
GROUP BY v.video_id, v.video_name ORDER BY num_comments DESC LIMIT 10`,
	},
}

func init() {
	for name, r := range Reports {
		r.Name = name
		Reports[name] = r
	}
}

// ReportNames returns the report names in order.
func ReportNames() []string {
	names := make([]string, 0, len(Reports))
	for name := range Reports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Report runs the named analysis query.
func (p *Pipeline) Report(ctx context.Context, name string) ([]sqlstore.Row, error) {
	r, ok := Reports[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReport, name)
	}
	return p.Analyze(ctx, r.SQL), nil
}
