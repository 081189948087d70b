package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytharvest/harvest"
	"ytharvest/internal/logging"
	"ytharvest/internal/metrics"
	"ytharvest/internal/retry"
	"ytharvest/pipeline"
	"ytharvest/sqlstore"
	"ytharvest/storage"
	"ytharvest/youtube"
	"ytharvest/youtube/youtubetest"
)

const channelID = "UC_x5XG1OV2P6uZZ5FSM9Ttw"

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	ctx := context.Background()

	yt := youtubetest.NewServer()
	t.Cleanup(yt.Close)
	yt.AddChannel(channelID, "Google for Developers", 2400000, 250000000)
	yt.AddPlaylist(channelID, "PLtut", "Tutorials", "v1", "v2", "v3")
	yt.AddPlaylist(channelID, "PLtalk", "Talks", "v4")
	yt.AddUploads(channelID, "v1", "v2", "v3", "v4", "v5")
	for _, id := range []string{"v1", "v2", "v3", "v4", "v5"} {
		yt.AddVideo(youtubetest.Video{ID: id, Title: "Video " + id, Views: 10})
	}
	yt.Fail("videos", "v3", http.StatusInternalServerError)

	client := youtubetest.Client()
	t.Cleanup(func() { client.Close() })
	m := metrics.New()
	fetcher, err := youtube.NewAPIFetcher(ctx, youtube.Config{APIKey: "k", Endpoint: yt.URL, Metrics: m}, client)
	require.NoError(t, err)

	docs, err := storage.NewJSONStore(filepath.Join(t.TempDir(), "documents.json"))
	require.NoError(t, err)
	t.Cleanup(func() { docs.Close(ctx) })

	sql, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, ":memory:", retry.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { sql.Close() })
	require.NoError(t, sql.EnsureSchema(ctx))
	sql.WithMetrics(m)

	p := pipeline.New(pipeline.Config{
		Harvester: harvest.New(fetcher, harvest.Config{Workers: 2, Metrics: m}),
		Documents: docs,
		SQL:       sql,
		Metrics:   m,
	})
	return New(p, m, logging.Discard()).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, r)
	return rw
}

func decodeBody[T any](t *testing.T, rw *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &v), rw.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	rw := do(t, newTestServer(t), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rw.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rw.Body.String())
}

func TestHarvestStoreMigrateAnalyze(t *testing.T) {
	h := newTestServer(t)

	rw := do(t, h, http.MethodPost, "/harvest", `{"channel_id":"`+channelID+`","database":"youtube"}`)
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
	hr := decodeBody[harvestResponse](t, rw)
	assert.Equal(t, harvest.PhaseDone, hr.Phase)
	require.Len(t, hr.Failures, 1)
	assert.Equal(t, harvest.BranchVideo, hr.Failures[0].Kind)
	assert.Equal(t, "v3", hr.Failures[0].ID)
	assert.Len(t, hr.Aggregate.Playlists, 2)
	assert.Len(t, hr.Aggregate.Playlists["PLtut"].Videos, 2)
	require.NotNil(t, hr.Stored)
	assert.Equal(t, storage.ActionInserted, hr.Stored.Action)
	assert.Equal(t, "Google for Developers", hr.Stored.Collection)

	rw = do(t, h, http.MethodGet, "/databases", "")
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, []string{"youtube"}, decodeBody[namesResponse](t, rw).Names)

	rw = do(t, h, http.MethodGet, "/databases/youtube/collections", "")
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, []string{"Google for Developers"}, decodeBody[namesResponse](t, rw).Names)

	rw = do(t, h, http.MethodPost, "/migrate", `{"database":"youtube","collection":"Google for Developers"}`)
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
	mr := decodeBody[migrateResponse](t, rw)
	assert.Equal(t, sqlstore.ModeInsert, mr.Mode)
	assert.Equal(t, 3, mr.PlaylistRows)

	rw = do(t, h, http.MethodPost, "/analyze", `{"sql":"SELECT channel_name FROM channel_data"}`)
	require.Equal(t, http.StatusOK, rw.Code)
	assert.JSONEq(t, `{"rows":[{"channel_name":"Google for Developers"}]}`, rw.Body.String())

	rw = do(t, h, http.MethodGet, "/reports/views_per_channel", "")
	require.Equal(t, http.StatusOK, rw.Code)
	assert.JSONEq(t, `{"rows":[{"channel_name":"Google for Developers","total_views":30}]}`, rw.Body.String())

	rw = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Contains(t, rw.Body.String(), "ytharvest_")
}

func TestHarvestErrors(t *testing.T) {
	h := newTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty channel id", `{"channel_id":""}`, http.StatusBadRequest},
		{"unknown channel", `{"channel_id":"UCmissing"}`, http.StatusNotFound},
		{"malformed body", `{"channel_id":`, http.StatusBadRequest},
		{"unknown field", `{"channel":"x"}`, http.StatusBadRequest},
		{"bad database name", `{"channel_id":"` + channelID + `","database":"a.b"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rw := do(t, h, http.MethodPost, "/harvest", tt.body)
			assert.Equal(t, tt.want, rw.Code, rw.Body.String())
			assert.NotEmpty(t, decodeBody[errorResponse](t, rw).Error)
		})
	}
}

func TestMigrateEmptyCollection(t *testing.T) {
	rw := do(t, newTestServer(t), http.MethodPost, "/migrate", `{"database":"youtube","collection":"Nobody"}`)
	assert.Equal(t, http.StatusNotFound, rw.Code)
}

func TestAnalyzeFailureIsEmpty(t *testing.T) {
	rw := do(t, newTestServer(t), http.MethodPost, "/analyze", `{"sql":"SELECT * FROM nowhere"}`)
	assert.Equal(t, http.StatusOK, rw.Code)
	assert.JSONEq(t, `{"rows":[]}`, rw.Body.String())
}

func TestReports(t *testing.T) {
	h := newTestServer(t)

	rw := do(t, h, http.MethodGet, "/reports", "")
	require.Equal(t, http.StatusOK, rw.Code)
	infos := decodeBody[[]reportInfo](t, rw)
	assert.Len(t, infos, len(pipeline.Reports))

	rw = do(t, h, http.MethodGet, "/reports/nope", "")
	assert.Equal(t, http.StatusNotFound, rw.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	rw := do(t, newTestServer(t), http.MethodGet, "/harvest", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rw.Code)
}

func TestNotConfigured(t *testing.T) {
	h := New(pipeline.New(pipeline.Config{}), nil, nil).Handler()

	rw := do(t, h, http.MethodGet, "/databases", "")
	assert.Equal(t, http.StatusServiceUnavailable, rw.Code)
	assert.True(t, strings.Contains(rw.Body.String(), "not configured"))

	rw = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rw.Code)
}
