package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"ytharvest/config"
	"ytharvest/harvest"
	ythttp "ytharvest/http"
	"ytharvest/internal/logging"
	"ytharvest/internal/metrics"
	"ytharvest/internal/retry"
	"ytharvest/pipeline"
	"ytharvest/sqlstore"
	"ytharvest/storage"
	"ytharvest/youtube"
)

// needs selects which components a command builds.
type needs struct {
	harvester bool
	documents bool
	sql       bool
}

// app owns every constructed component and tears them down in close.
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	metrics  *metrics.Metrics
	client   *ythttp.Client
	docs     storage.DocumentStore
	sql      *sqlstore.Store
	pipeline *pipeline.Pipeline
}

func newApp(ctx context.Context, cfg *config.Config, n needs) (*app, error) {
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, metrics: metrics.New()}
	ctx = logging.WithLogger(ctx, log)

	pcfg := pipeline.Config{
		Metrics:        a.metrics,
		HarvestTimeout: time.Duration(cfg.HarvestTimeout),
	}

	if n.harvester {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("api_key is required (set YTHARVEST_API_KEY)")
		}
		hcfg := ythttp.DefaultConfig()
		hcfg.RateLimiter.RPS = cfg.RequestsPerSecond
		a.client = ythttp.New(hcfg)
		if t, ok := a.client.HTTP.Transport.(*ythttp.Transport); ok {
			t.OnRateLimit = func(e *ythttp.RateLimitError) {
				log.WithField("retry_after", e.RetryAfter).Warn(e.Error())
			}
		}

		fetcher, err := youtube.NewAPIFetcher(ctx, youtube.Config{
			APIKey:   cfg.APIKey,
			Endpoint: cfg.APIEndpoint,
			MaxPages: cfg.MaxPages,
			Metrics:  a.metrics,
		}, a.client)
		if err != nil {
			a.close()
			return nil, err
		}
		pcfg.Harvester = harvest.New(fetcher, harvest.Config{
			Workers: cfg.Workers,
			Metrics: a.metrics,
		})
	}

	rcfg := retry.DefaultConfig()
	rcfg.MaxRetries = cfg.ConnectRetries
	rcfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"wait":    wait,
		}).Warn("store not reachable, retrying")
	}

	if n.documents {
		docs, err := openDocuments(ctx, cfg, rcfg)
		if err != nil {
			a.close()
			return nil, err
		}
		a.docs = docs
		pcfg.Documents = docs
	}

	if n.sql {
		store, err := sqlstore.Open(ctx, cfg.SQLDriver, cfg.SQLDSN, rcfg)
		if err != nil {
			a.close()
			return nil, err
		}
		store.WithMetrics(a.metrics)
		a.sql = store
		if err := store.EnsureSchema(ctx); err != nil {
			a.close()
			return nil, err
		}
		pcfg.SQL = store
	}

	a.pipeline = pipeline.New(pcfg)
	return a, nil
}

func openDocuments(ctx context.Context, cfg *config.Config, rcfg retry.Config) (storage.DocumentStore, error) {
	switch cfg.DocumentStore {
	case config.DocumentStoreFile:
		return storage.NewJSONStore(cfg.DocumentPath)
	default:
		return storage.ConnectMongo(ctx, cfg.MongoURI, rcfg)
	}
}

// context returns ctx carrying the app logger.
func (a *app) context(ctx context.Context) context.Context {
	return logging.WithLogger(ctx, a.log)
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.docs != nil {
		if err := a.docs.Close(ctx); err != nil {
			a.log.WithError(err).Warn("close document store")
		}
	}
	if a.sql != nil {
		if err := a.sql.Close(); err != nil {
			a.log.WithError(err).Warn("close sql store")
		}
	}
	if a.client != nil {
		a.client.Close()
	}
}
