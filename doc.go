// Package ytharvest harvests YouTube channels into a document store and
// migrates them into relational tables for analysis.
//
// # Overview
//
// A harvest walks one channel through the YouTube Data API: channel metadata,
// every playlist with its videos, the channel's uploads that belong to no
// playlist, and each video's statistics and top-level comments. The result is
// a single nested storage.ChannelAggregate keyed by ids.
//
// The aggregate is upserted into a document store (MongoDB or a local JSON
// file) under a collection named after the channel, keyed by channel id.
//
// Migration reads one aggregate back and writes it as the channel's snapshot
// into three tables: channel_data, playlist and comments. A migration either
// inserts a new snapshot or replaces the existing one, inside a single
// transaction.
//
// # Quick Start
//
//	client := ythttp.New(nil)
//	defer client.Close()
//
//	fetcher, err := youtube.NewAPIFetcher(ctx, youtube.Config{APIKey: key}, client)
//	if err != nil {
//		log.Fatal(err)
//	}
//	docs, err := storage.NewJSONStore("documents.json")
//	if err != nil {
//		log.Fatal(err)
//	}
//	sql, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, "youtube.db", retry.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := sql.EnsureSchema(ctx); err != nil {
//		log.Fatal(err)
//	}
//
//	p := pipeline.New(pipeline.Config{
//		Harvester: harvest.New(fetcher, harvest.Config{}),
//		Documents: docs,
//		SQL:       sql,
//	})
//
//	report, err := p.Harvest(ctx, "UC_x5XG1OV2P6uZZ5FSM9Ttw")
//	if err != nil {
//		log.Fatal(err)
//	}
//	stored, err := p.Store(ctx, report.Aggregate, "youtube")
//	if err != nil {
//		log.Fatal(err)
//	}
//	if _, err := p.Migrate(ctx, "youtube", stored.Collection); err != nil {
//		log.Fatal(err)
//	}
//	rows, _ := p.Report(ctx, "top_viewed_videos")
//
// # Partial failures
//
// Only a failed channel lookup fails a harvest. A playlist, video or comment
// thread that cannot be fetched is left out and reported in
// harvest.Result.Failures. Videos with comments disabled simply have no
// comments.
//
// # Configuration
//
// The ytharvest command loads settings from multiple sources:
//
//  1. Environment variables (highest priority)
//  2. Config file (ytharvest.yaml, ytharvest.json, or the same under ~/.config/ytharvest/)
//  3. Default values (lowest priority)
//
// See package config for the keys and YTHARVEST_* variables.
//
// # Error Handling
//
// Checking for sentinel errors:
//
//	if errors.Is(err, ytharvest.ErrNotFound) {
//		fmt.Println("nothing stored for that channel")
//	}
//
// Extracting wrapped error details:
//
//	var migErr *ytharvest.MigrationError
//	if errors.As(err, &migErr) {
//		fmt.Printf("migration failed at %s: %v\n", migErr.Step, migErr.Err)
//	}
package ytharvest
