package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"ytharvest/config"
	"ytharvest/harvest"
	"ytharvest/pipeline"
	"ytharvest/server"
	"ytharvest/sqlstore"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "harvest":
		cmdHarvest(args)
	case "migrate":
		cmdMigrate(args)
	case "analyze":
		cmdAnalyze(args)
	case "databases":
		cmdDatabases(args)
	case "collections":
		cmdCollections(args)
	case "serve":
		cmdServe(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `ytharvest - YouTube channel harvester and SQL migrator

Usage:
  ytharvest harvest [flags] <channel-id>          Harvest a channel, optionally storing it
  ytharvest migrate --db name --collection name   Migrate a stored channel into SQL tables
  ytharvest analyze [--report name] [sql]         Run an analysis query
  ytharvest databases                             List document databases
  ytharvest collections <database>                List collections of a database
  ytharvest serve                                 Serve the HTTP API
  ytharvest help                                  Show this help message

Examples:
  ytharvest harvest UC_x5XG1OV2P6uZZ5FSM9Ttw --db youtube
  ytharvest harvest UC_x5XG1OV2P6uZZ5FSM9Ttw --out channel.json
  ytharvest migrate --db youtube --collection "Google for Developers"
  ytharvest analyze --report top_viewed_videos
  ytharvest analyze "SELECT channel_name, channel_views FROM channel_data"

Configuration is read from ytharvest.yaml or ytharvest.json and YTHARVEST_* variables.
For help on specific command: ytharvest <command> -h
`)
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func mustApp(ctx context.Context, n needs) *app {
	a, err := newApp(ctx, loadConfig(), n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return a
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func cmdHarvest(args []string) {
	fs := flag.NewFlagSet("harvest", flag.ExitOnError)
	db := fs.String("db", "", "Store the aggregate in this document database")
	out := fs.String("out", "", "Write the aggregate as JSON to this file (- for stdout)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ytharvest harvest [flags] <channel-id>\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(reorder(args))

	argv := fs.Args()
	if len(argv) == 0 {
		fmt.Fprintf(os.Stderr, "Error: missing channel-id\n")
		fs.Usage()
		os.Exit(1)
	}
	channelID := argv[0]

	ctx, cancel := signalContext()
	defer cancel()

	a := mustApp(ctx, needs{harvester: true, documents: *db != ""})
	defer a.close()
	ctx = a.context(ctx)

	fmt.Fprintf(os.Stderr, "Harvesting %s...\n", channelID)
	report, err := a.pipeline.Harvest(ctx, channelID)
	if report == nil {
		fmt.Fprintf(os.Stderr, "Error harvesting channel: %v\n", err)
		a.close()
		os.Exit(1)
	}

	fmt.Fprintln(os.Stderr, report.Message)
	if len(report.Failures) > 0 {
		w := tabwriter.NewWriter(os.Stderr, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "BRANCH\tID\tERROR")
		for _, f := range report.Failures {
			fmt.Fprintf(w, "%s\t%s\t%s\n", f.Kind, f.ID, truncate(f.Err.Error(), 80))
		}
		w.Flush()
	}
	if err != nil {
		if errors.Is(err, harvest.ErrCancelled) {
			fmt.Fprintf(os.Stderr, "Harvest stopped early at phase %s; nothing stored\n", report.Phase)
		} else {
			fmt.Fprintf(os.Stderr, "Error harvesting channel: %v\n", err)
		}
		a.close()
		os.Exit(1)
	}

	if *out != "" {
		if err := writeAggregate(report, *out); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing aggregate: %v\n", err)
			a.close()
			os.Exit(1)
		}
	}

	if *db != "" {
		stored, err := a.pipeline.Store(ctx, report.Aggregate, *db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error storing aggregate: %v\n", err)
			a.close()
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, stored.Message)
	}
}

func writeAggregate(report *pipeline.HarvestReport, path string) error {
	data, err := json.MarshalIndent(report.Aggregate, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal aggregate: %w", err)
	}
	if path == "-" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write aggregate file: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Aggregate saved to: %s\n", path)
	return nil
}

func cmdMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	db := fs.String("db", "", "Document database to read from")
	collection := fs.String("collection", "", "Collection holding the channel aggregate")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ytharvest migrate --db name --collection name\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if *db == "" || *collection == "" {
		fmt.Fprintf(os.Stderr, "Error: --db and --collection are required\n")
		fs.Usage()
		os.Exit(1)
	}

	ctx, cancel := signalContext()
	defer cancel()

	a := mustApp(ctx, needs{documents: true, sql: true})
	defer a.close()

	res, err := a.pipeline.Migrate(a.context(ctx), *db, *collection)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error migrating channel: %v\n", err)
		a.close()
		os.Exit(1)
	}

	verb := "Inserted"
	if res.Mode == sqlstore.ModeReplace {
		verb = "Replaced"
	}
	fmt.Fprintf(os.Stderr, "%s snapshot of %q (%s): %d playlist rows, %d comment rows\n",
		verb, res.ChannelName, res.ChannelID, res.PlaylistRows, res.CommentRows)
}

func cmdAnalyze(args []string) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	report := fs.String("report", "", "Run a named report instead of a query")
	list := fs.Bool("list", false, "List the named reports")
	asJSON := fs.Bool("json", false, "Print rows as JSON")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ytharvest analyze [flags] [sql]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(reorder(args))

	if *list {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "REPORT\tDESCRIPTION")
		for _, name := range pipeline.ReportNames() {
			fmt.Fprintf(w, "%s\t%s\n", name, pipeline.Reports[name].Description)
		}
		w.Flush()
		return
	}

	argv := fs.Args()
	if *report == "" && len(argv) == 0 {
		fmt.Fprintf(os.Stderr, "Error: missing sql or --report\n")
		fs.Usage()
		os.Exit(1)
	}

	ctx, cancel := signalContext()
	defer cancel()

	a := mustApp(ctx, needs{sql: true})
	defer a.close()
	ctx = a.context(ctx)

	var rows []sqlstore.Row
	if *report != "" {
		var err error
		rows, err = a.pipeline.Report(ctx, *report)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			a.close()
			os.Exit(1)
		}
	} else {
		rows = a.pipeline.Analyze(ctx, argv[0])
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(rows)
		return
	}
	printRows(rows)
}

func printRows(rows []sqlstore.Row) {
	if len(rows) == 0 {
		fmt.Println("No rows.")
		return
	}

	cols := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for i, col := range cols {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, col)
	}
	fmt.Fprintln(w)
	for _, row := range rows {
		for i, col := range cols {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			fmt.Fprint(w, truncate(fmt.Sprint(row[col]), 50))
		}
		fmt.Fprintln(w)
	}
	w.Flush()

	fmt.Fprintf(os.Stderr, "\nTotal: %d rows\n", len(rows))
}

func cmdDatabases(args []string) {
	fs := flag.NewFlagSet("databases", flag.ExitOnError)
	fs.Parse(args)

	ctx, cancel := signalContext()
	defer cancel()

	a := mustApp(ctx, needs{documents: true})
	defer a.close()

	names, err := a.pipeline.ListDatabases(a.context(ctx))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing databases: %v\n", err)
		a.close()
		os.Exit(1)
	}
	printNames(names, "databases")
}

func cmdCollections(args []string) {
	fs := flag.NewFlagSet("collections", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ytharvest collections <database>\n")
	}
	fs.Parse(args)

	argv := fs.Args()
	if len(argv) == 0 {
		fmt.Fprintf(os.Stderr, "Error: missing database\n")
		fs.Usage()
		os.Exit(1)
	}

	ctx, cancel := signalContext()
	defer cancel()

	a := mustApp(ctx, needs{documents: true})
	defer a.close()

	names, err := a.pipeline.ListCollections(a.context(ctx), argv[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing collections: %v\n", err)
		a.close()
		os.Exit(1)
	}
	printNames(names, "collections")
}

func printNames(names []string, what string) {
	if len(names) == 0 {
		fmt.Printf("No %s found.\n", what)
		return
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "", "Listen address (default from config)")
	fs.Parse(args)

	cfg := loadConfig()
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg, needs{harvester: cfg.APIKey != "", documents: true, sql: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.close()
	if cfg.APIKey == "" {
		a.log.Warn("no api_key configured, harvest endpoint disabled")
	}

	srv := server.New(a.pipeline, a.metrics, a.log)
	if err := srv.ListenAndServe(a.context(ctx), cfg.ListenAddr); err != nil {
		fmt.Fprintf(os.Stderr, "Error serving: %v\n", err)
		a.close()
		os.Exit(1)
	}
}

// reorder moves flags ahead of positional arguments so that
// "harvest <id> --db name" parses like "harvest --db name <id>".
func reorder(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if len(arg) > 1 && arg[0] == '-' && arg != "-" {
			flags = append(flags, arg)
			if !strings.Contains(arg, "=") && i+1 < len(args) && !isBoolFlag(arg) {
				i++
				flags = append(flags, args[i])
			}
			continue
		}
		positional = append(positional, arg)
	}
	return append(flags, positional...)
}

func isBoolFlag(arg string) bool {
	switch arg {
	case "-list", "--list", "-json", "--json", "-h", "--help", "-help":
		return true
	}
	return false
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
