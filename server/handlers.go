package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"ytharvest/harvest"
	"ytharvest/internal/logging"
	"ytharvest/pipeline"
	"ytharvest/sqlstore"
	"ytharvest/storage"
	"ytharvest/youtube"
)

type errorResponse struct {
	Error string `json:"error"`
}

type harvestRequest struct {
	ChannelID string `json:"channel_id"`
	// Database, when set, stores the aggregate after harvesting.
	Database string `json:"database,omitempty"`
}

type branchFailure struct {
	Kind  harvest.BranchKind `json:"kind"`
	ID    string             `json:"id"`
	Error string             `json:"error"`
}

type storeResponse struct {
	Database   string               `json:"database"`
	Collection string               `json:"collection"`
	DocumentID string               `json:"document_id"`
	Action     storage.UpsertAction `json:"action"`
	Message    string               `json:"message"`
}

type harvestResponse struct {
	Message   string                    `json:"message"`
	Phase     harvest.Phase             `json:"phase"`
	Duration  string                    `json:"duration"`
	Failures  []branchFailure           `json:"failures"`
	Aggregate *storage.ChannelAggregate `json:"aggregate"`
	Stored    *storeResponse            `json:"stored,omitempty"`
}

type migrateRequest struct {
	Database   string `json:"database"`
	Collection string `json:"collection"`
}

type migrateResponse struct {
	ChannelID    string        `json:"channel_id"`
	ChannelName  string        `json:"channel_name"`
	Mode         sqlstore.Mode `json:"mode"`
	PlaylistRows int           `json:"playlist_rows"`
	CommentRows  int           `json:"comment_rows"`
}

type analyzeRequest struct {
	SQL string `json:"sql"`
}

type rowsResponse struct {
	Rows []sqlstore.Row `json:"rows"`
}

type reportInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type namesResponse struct {
	Names []string `json:"names"`
}

func (s *Server) health(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) harvest(rw http.ResponseWriter, r *http.Request) {
	var req harvestRequest
	if !decode(rw, r, &req) {
		return
	}
	ctx := r.Context()

	report, err := s.pipeline.Harvest(ctx, strings.TrimSpace(req.ChannelID))
	if report == nil {
		writeError(ctx, rw, err)
		return
	}

	resp := harvestResponse{
		Message:   report.Message,
		Phase:     report.Phase,
		Duration:  report.Duration.String(),
		Failures:  make([]branchFailure, 0, len(report.Failures)),
		Aggregate: report.Aggregate,
	}
	for _, f := range report.Failures {
		resp.Failures = append(resp.Failures, branchFailure{Kind: f.Kind, ID: f.ID, Error: f.Err.Error()})
	}
	if err != nil {
		// cancelled: return the partial aggregate unstored
		resp.Message = err.Error()
		writeJSON(rw, statusFor(err), resp)
		return
	}

	if req.Database != "" {
		stored, err := s.pipeline.Store(ctx, report.Aggregate, req.Database)
		if err != nil {
			writeError(ctx, rw, err)
			return
		}
		resp.Stored = &storeResponse{
			Database:   stored.Database,
			Collection: stored.Collection,
			DocumentID: stored.DocumentID,
			Action:     stored.Action,
			Message:    stored.Message,
		}
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (s *Server) migrate(rw http.ResponseWriter, r *http.Request) {
	var req migrateRequest
	if !decode(rw, r, &req) {
		return
	}

	res, err := s.pipeline.Migrate(r.Context(), req.Database, req.Collection)
	if err != nil {
		writeError(r.Context(), rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, migrateResponse{
		ChannelID:    res.ChannelID,
		ChannelName:  res.ChannelName,
		Mode:         res.Mode,
		PlaylistRows: res.PlaylistRows,
		CommentRows:  res.CommentRows,
	})
}

// analyze always answers 200; a failing query yields no rows.
func (s *Server) analyze(rw http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decode(rw, r, &req) {
		return
	}
	writeJSON(rw, http.StatusOK, rowsResponse{Rows: s.pipeline.Analyze(r.Context(), req.SQL)})
}

func (s *Server) reports(rw http.ResponseWriter, r *http.Request) {
	out := make([]reportInfo, 0, len(pipeline.Reports))
	for _, name := range pipeline.ReportNames() {
		out = append(out, reportInfo{Name: name, Description: pipeline.Reports[name].Description})
	}
	writeJSON(rw, http.StatusOK, out)
}

func (s *Server) report(rw http.ResponseWriter, r *http.Request) {
	rows, err := s.pipeline.Report(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		writeError(r.Context(), rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, rowsResponse{Rows: rows})
}

func (s *Server) databases(rw http.ResponseWriter, r *http.Request) {
	names, err := s.pipeline.ListDatabases(r.Context())
	if err != nil {
		writeError(r.Context(), rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, namesResponse{Names: nonNil(names)})
}

func (s *Server) collections(rw http.ResponseWriter, r *http.Request) {
	names, err := s.pipeline.ListCollections(r.Context(), mux.Vars(r)["db"])
	if err != nil {
		writeError(r.Context(), rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, namesResponse{Names: nonNil(names)})
}

func decode(rw http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(rw, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, youtube.ErrInvalidArgument),
		errors.Is(err, storage.ErrInvalidArgument),
		errors.Is(err, storage.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, youtube.ErrNotFound),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, pipeline.ErrUnknownReport):
		return http.StatusNotFound
	case errors.Is(err, youtube.ErrResourceUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, harvest.ErrCancelled),
		errors.Is(err, pipeline.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(ctx context.Context, rw http.ResponseWriter, err error) {
	status := statusFor(err)
	l := logging.FromContext(ctx).WithError(err).WithField("http.status_code", status)
	if status >= http.StatusInternalServerError {
		l.Error("request failed")
	} else {
		l.Info("request rejected")
	}
	writeJSON(rw, status, errorResponse{Error: err.Error()})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}

func nonNil(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}
