// Package pipeline exposes the harvest, store, migrate and analyze operations
// over explicitly constructed components. Each component is optional; an
// operation whose component is missing returns ErrNotConfigured.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"ytharvest/harvest"
	"ytharvest/internal/logging"
	"ytharvest/internal/metrics"
	"ytharvest/sqlstore"
	"ytharvest/storage"
)

// ErrNotConfigured is returned when an operation needs a component the
// pipeline was built without.
var ErrNotConfigured = errors.New("pipeline: component not configured")

// Config wires the components.
type Config struct {
	Harvester *harvest.Harvester
	Documents storage.DocumentStore
	SQL       *sqlstore.Store
	// Metrics records stored documents. May be nil.
	Metrics *metrics.Metrics
	// HarvestTimeout bounds a single harvest. Zero means no limit.
	HarvestTimeout time.Duration
}

type Pipeline struct {
	harvester *harvest.Harvester
	docs      storage.DocumentStore
	sql       *sqlstore.Store
	migrator  *sqlstore.Migrator
	metrics   *metrics.Metrics
	timeout   time.Duration
}

func New(cfg Config) *Pipeline {
	p := &Pipeline{
		harvester: cfg.Harvester,
		docs:      cfg.Documents,
		sql:       cfg.SQL,
		metrics:   cfg.Metrics,
		timeout:   cfg.HarvestTimeout,
	}
	if p.docs != nil && p.sql != nil {
		p.migrator = sqlstore.NewMigrator(p.sql, p.docs)
	}
	return p
}

// HarvestReport is the outcome of Harvest.
type HarvestReport struct {
	*harvest.Result
	Message string
}

// Harvest assembles the aggregate for channelID. On cancellation or timeout
// the partial report is returned together with the error.
func (p *Pipeline) Harvest(ctx context.Context, channelID string) (*HarvestReport, error) {
	if p.harvester == nil {
		return nil, fmt.Errorf("%w: harvester", ErrNotConfigured)
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	res, err := p.harvester.Harvest(ctx, channelID)
	if res == nil {
		return nil, err
	}
	agg := res.Aggregate
	msg := fmt.Sprintf("harvested %q: %d playlists, %d playlist videos, %d unassigned videos, %d branch failures",
		agg.About.Name, len(agg.Playlists), agg.VideoCount(), len(agg.UnassignedVideos), len(res.Failures))
	return &HarvestReport{Result: res, Message: msg}, err
}

// StoreReport is the outcome of Store.
type StoreReport struct {
	*storage.UpsertResult
	Message string
}

// Store upserts the aggregate into database under the collection named after
// the channel.
func (p *Pipeline) Store(ctx context.Context, agg *storage.ChannelAggregate, database string) (*StoreReport, error) {
	if p.docs == nil {
		return nil, fmt.Errorf("%w: document store", ErrNotConfigured)
	}
	res, err := p.docs.Upsert(ctx, agg, database)
	if err != nil {
		return nil, err
	}
	p.metrics.ObserveUpsert(string(res.Action))
	logging.FromContext(ctx).WithFields(logrus.Fields{
		"db.name":       res.Database,
		"db.collection": res.Collection,
		"document.id":   res.DocumentID,
		"action":        res.Action,
	}).Info("aggregate stored")

	return &StoreReport{
		UpsertResult: res,
		Message:      fmt.Sprintf("channel %s %s in %s.%s", res.DocumentID, res.Action, res.Database, res.Collection),
	}, nil
}

// Migrate projects the first aggregate of database.collection into the
// relational tables.
func (p *Pipeline) Migrate(ctx context.Context, database, collection string) (*sqlstore.MigrationResult, error) {
	if p.migrator == nil {
		return nil, fmt.Errorf("%w: document store and sql store", ErrNotConfigured)
	}
	return p.migrator.Migrate(ctx, database, collection)
}

// Analyze runs query against the relational store. It returns an empty result
// on any failure, including a missing sql store.
func (p *Pipeline) Analyze(ctx context.Context, query string) []sqlstore.Row {
	if p.sql == nil {
		logging.FromContext(ctx).Error("analyze without sql store")
		return []sqlstore.Row{}
	}
	return p.sql.Execute(ctx, query)
}

// ListDatabases returns the document store's user databases.
func (p *Pipeline) ListDatabases(ctx context.Context) ([]string, error) {
	if p.docs == nil {
		return nil, fmt.Errorf("%w: document store", ErrNotConfigured)
	}
	return p.docs.ListDatabases(ctx)
}

// ListCollections returns the collections of database.
func (p *Pipeline) ListCollections(ctx context.Context, database string) ([]string, error) {
	if p.docs == nil {
		return nil, fmt.Errorf("%w: document store", ErrNotConfigured)
	}
	return p.docs.ListCollections(ctx, database)
}
