package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/jupyter/metrics-builder/internal/app"
	"github.com/jupyter/metrics-builder/internal/config"
	"github.com/jupyter/metrics-builder/internal/logging"
	"github.com/jupyter/metrics-builder/internal/telemetry"
	"github.com/jupyter/metrics-builder/internal/version"
	"github.com/jupyter/metrics-builder/pkg/pipeline/core"
	"github.com/jupyter/metrics-builder/pkg/pipeline/io/local"
	"github.com/jupyter/metrics-builder/pkg/pipeline/metrics"
	"github.com/jupyter/metrics-builder/pkg/pipeline/schema"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	if len(os.Args) < 2 {
		usage(os.Stderr)
		stop()
		os.Exit(2)
	}

	var code int
	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
	case "version", "--version":
		_, _ = fmt.Fprintln(os.Stdout, version.Current)
	case "build":
		code = runBuild(ctx, os.Args[2:])
	case "merge":
		code = runMerge(ctx, os.Args[2:], os.Stdin, os.Stdout)
	case "rank":
		code = runRank(ctx, os.Args[2:], os.Stdin, os.Stdout)
	case "stats":
		code = runStats(ctx, os.Args[2:], os.Stdin, os.Stdout)
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		code = 2
	}
	stop()
	os.Exit(code)
}

func runBuild(ctx context.Context, args []string) int {
	configPath := os.Getenv("METRICS_CONFIG")
	for i, a := range args {
		// --config must be resolved before the other flags get their defaults.
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "-") || name != "config" {
			continue
		}
		if hasValue {
			configPath = value
		} else if i+1 < len(args) {
			configPath = args[i+1]
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", err)
		return 2
	}

	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.String("config", configPath, "YAML config file (env: METRICS_CONFIG)")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory of subproject folders holding exported CSVs (env: DATA_DIR)")
	fs.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "Directory for per-project outputs (env: OUTPUT_DIR)")
	fs.StringVar(&cfg.IndexPath, "index", cfg.IndexPath, "Summary page path (env: INDEX_PATH)")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Log file path, empty disables (env: LOG_FILE)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error (env: LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Console log format: console or json (env: LOG_FORMAT)")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Number of projects processed concurrently (env: WORKERS)")
	fs.Float64Var(&cfg.RateLimitRPS, "rate-limit-rps", cfg.RateLimitRPS, "Project start rate limit (per second), 0 disables (env: RATE_LIMIT_RPS)")
	fs.DurationVar(&cfg.ProjectTimeout, "project-timeout", cfg.ProjectTimeout, "Per-project processing timeout, 0 disables (env: PROJECT_TIMEOUT)")
	fs.BoolVar(&cfg.Strict, "strict", cfg.Strict, "Fail on invalid data instead of skipping it (env: STRICT)")
	fs.IntVar(&cfg.TopN, "top-n", cfg.TopN, "Entries shown in each popularity chart (env: TOP_N)")
	fs.BoolVar(&cfg.Clean, "clean", cfg.Clean, "Remove old outputs before building (env: CLEAN)")
	fs.StringVar(&cfg.SQLitePath, "sqlite", cfg.SQLitePath, "Also export merged tables to this SQLite file (env: SQLITE_PATH)")
	fs.BoolVar(&cfg.Parquet, "parquet", cfg.Parquet, "Also write merged tables as Parquet (env: PARQUET)")
	fs.StringVar(&cfg.MetricsTextfile, "metrics-textfile", cfg.MetricsTextfile, "Write run metrics in Prometheus text format to this file (env: METRICS_TEXTFILE)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", err)
		return 2
	}

	logger, closeLog, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "logging error: %s\n", err)
		return 2
	}
	defer func() {
		_ = closeLog()
	}()

	if _, err := app.RunBuild(ctx, cfg, logger, telemetry.New()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "build failed: %s\n", err)
		return 1
	}
	return 0
}

// inputFlags are shared by the commands that read CSV files directly.
type inputFlags struct {
	schema string
}

func (f *inputFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.schema, "schema", "", "Expected schema: traffic or search (default: detect from the first file)")
}

func (f *inputFlags) build(ctx context.Context, paths []string, stdin io.Reader) (*metrics.Table, error) {
	if len(paths) == 0 {
		return nil, errors.New("at least one CSV path is required (use - for stdin)")
	}
	sources := make([]core.Source, 0, len(paths))
	for _, p := range paths {
		if p == "-" {
			sources = append(sources, local.ReaderSource{Reader: stdin})
			continue
		}
		sources = append(sources, local.FileSource{Path: p})
	}

	var opts []metrics.Option
	if f.schema != "" {
		s, err := schema.Parse(f.schema)
		if err != nil {
			return nil, err
		}
		opts = append(opts, metrics.WithSchema(s))
	}
	return metrics.BuildSources(ctx, sources, opts...)
}

func runMerge(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) int {
	fs := flag.NewFlagSet("merge", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var in inputFlags
	in.register(fs)
	output := fs.String("output", "", "Merged CSV output path (default: stdout)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	tbl, err := in.build(ctx, fs.Args(), stdin)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "merge failed: %s\n", err)
		return 1
	}
	if *output == "" {
		err = local.WriteCSV(stdout, tbl)
	} else {
		err = local.WriteCSVFile(*output, tbl)
	}
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "write merged csv: %s\n", err)
		return 1
	}
	return 0
}

func runRank(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) int {
	fs := flag.NewFlagSet("rank", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var in inputFlags
	in.register(fs)
	by := fs.String("by", "", "Ranking: pages, versions or queries (default: pages for traffic, queries for search)")
	top := fs.Int("top", 25, "Number of entries, negative for all")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	tbl, err := in.build(ctx, fs.Args(), stdin)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "rank failed: %s\n", err)
		return 1
	}

	kind := *by
	if kind == "" {
		kind = "pages"
		if tbl.Schema() == schema.Search {
			kind = "queries"
		}
	}
	var counts []metrics.Count
	switch kind {
	case "pages":
		counts, err = tbl.MostPopularPages(*top)
	case "versions":
		counts, err = tbl.MostPopularVersions(*top)
	case "queries":
		counts, err = tbl.MostPopularQueries(*top)
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown ranking %q\n", kind)
		return 2
	}
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "rank failed: %s\n", err)
		return 1
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	for _, c := range counts {
		_, _ = fmt.Fprintf(tw, "%s\t%d\n", c.Key, c.Total)
	}
	if err := tw.Flush(); err != nil {
		return 1
	}
	return 0
}

func runStats(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var in inputFlags
	in.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	tbl, err := in.build(ctx, fs.Args(), stdin)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "stats failed: %s\n", err)
		return 1
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "schema\t%s\n", tbl.Schema())
	_, _ = fmt.Fprintf(tw, "files\t%d\n", len(fs.Args()))
	_, _ = fmt.Fprintf(tw, "input rows\t%d\n", tbl.InputRows())
	_, _ = fmt.Fprintf(tw, "merged rows\t%d\n", tbl.Len())
	switch tbl.Schema() {
	case schema.Traffic:
		total, err := tbl.TotalViews()
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "stats failed: %s\n", err)
			return 1
		}
		pages, _ := tbl.MostPopularPages(metrics.All)
		versions, _ := tbl.MostPopularVersions(metrics.All)
		_, _ = fmt.Fprintf(tw, "total views\t%d\n", total)
		_, _ = fmt.Fprintf(tw, "distinct pages\t%d\n", len(pages))
		_, _ = fmt.Fprintf(tw, "distinct versions\t%d\n", len(versions))
	case schema.Search:
		queries, _ := tbl.MostPopularQueries(metrics.All)
		_, _ = fmt.Fprintf(tw, "distinct queries\t%d\n", len(queries))
	}
	if err := tw.Flush(); err != nil {
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintf(w, `metrics-builder: merge Read the Docs traffic and search exports into per-project reports

Usage:
  metrics-builder <command> [flags] [csv files...]

Commands:
  build    Process every subproject folder and write CSVs, charts and the summary page
  merge    Merge CSV files of one schema and write the deduplicated CSV
  rank     Print popular pages, versions or queries for CSV files
  stats    Print row counts and totals for CSV files
  version  Print the version

Examples:
  metrics-builder build --data-dir subproject_csvs --output-dir metrics_output
  metrics-builder merge --output hub_traffic.csv jan.csv feb.csv
  metrics-builder rank --by versions --top 10 jan.csv feb.csv

Environment (build):
  METRICS_CONFIG    Optional YAML config file
  DATA_DIR          Input directory (default: subproject_csvs)
  OUTPUT_DIR        Output directory (default: metrics_output)
  INDEX_PATH        Summary page (default: index.html)
  LOG_FILE          Log file (default: metrics_build.log)
  LOG_LEVEL         Log level (default: info)
  LOG_FORMAT        console or json (default: console)
  WORKERS           Concurrent projects (default: 4)
  RATE_LIMIT_RPS    Project start rate limit, 0 disables
  PROJECT_TIMEOUT   Per-project timeout (default: 5m)
  STRICT            Fail on invalid data (true/false)
  TOP_N             Chart entries (default: 25)
  CLEAN             Remove old outputs first (default: true)
  SQLITE_PATH       SQLite export path, empty disables
  PARQUET           Also write Parquet (true/false)
  METRICS_TEXTFILE  Prometheus textfile path, empty disables

`)
}
