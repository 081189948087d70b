// Package server exposes the pipeline over HTTP/JSON.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/urfave/negroni/v2"

	"ytharvest/internal/logging"
	"ytharvest/internal/metrics"
	"ytharvest/pipeline"
)

type Server struct {
	pipeline *pipeline.Pipeline
	metrics  *metrics.Metrics
	log      logrus.FieldLogger
}

func New(p *pipeline.Pipeline, m *metrics.Metrics, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logging.Discard()
	}
	return &Server{pipeline: p, metrics: m, log: log}
}

// Handler returns the routed handler wrapped in recovery and request logging.
func (s *Server) Handler() http.Handler {
	m := mux.NewRouter()

	m.Methods(http.MethodGet).Path("/health").HandlerFunc(s.health)
	m.Methods(http.MethodPost).Path("/harvest").HandlerFunc(s.harvest)
	m.Methods(http.MethodPost).Path("/migrate").HandlerFunc(s.migrate)
	m.Methods(http.MethodPost).Path("/analyze").HandlerFunc(s.analyze)
	m.Methods(http.MethodGet).Path("/reports").HandlerFunc(s.reports)
	m.Methods(http.MethodGet).Path("/reports/{name}").HandlerFunc(s.report)
	m.Methods(http.MethodGet).Path("/databases").HandlerFunc(s.databases)
	m.Methods(http.MethodGet).Path("/databases/{db}/collections").HandlerFunc(s.collections)
	if s.metrics != nil {
		m.Methods(http.MethodGet).Path("/metrics").Handler(s.metrics.Handler())
	}

	n := negroni.New()
	n.Use(negroni.NewRecovery())
	n.UseFunc(s.register)
	n.UseFunc(requestLog)
	n.UseHandler(m)
	return n
}

func (s *Server) register(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	next(rw, r.WithContext(logging.WithLogger(r.Context(), s.log)))
}

func requestLog(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	start := time.Now()
	ctx, l := logging.WithFields(r.Context(), logrus.Fields{
		"http.method": r.Method,
		"http.path":   r.URL.Path,
	})

	defer func() {
		if nrw, ok := rw.(negroni.ResponseWriter); ok {
			l = l.WithFields(logrus.Fields{
				"http.status_code":   nrw.Status(),
				"http.response_size": nrw.Size(),
			})
		}
		l.WithField("http.duration", time.Since(start)).Info("http request finished")
	}()

	l.Debug("http request started")
	next(rw, r.WithContext(ctx))
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errs := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("starting server")
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
