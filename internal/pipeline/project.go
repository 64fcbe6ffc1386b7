package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jupyter/metrics-builder/internal/telemetry"
	"github.com/jupyter/metrics-builder/pkg/pipeline/core"
	"github.com/jupyter/metrics-builder/pkg/pipeline/io/local"
	"github.com/jupyter/metrics-builder/pkg/pipeline/metrics"
	"github.com/jupyter/metrics-builder/pkg/pipeline/schema"
	"github.com/jupyter/metrics-builder/pkg/pipeline/worker"
)

// Project is one subproject folder under the data directory.
type Project struct {
	Name string
	Dir  string
}

// Reasons a file under a project is left out of the merge.
const (
	SkipNotCSV       = "not a csv file"
	SkipUnrecognized = "unrecognized csv format"
	SkipEmpty        = "no data rows"
	SkipReadError    = "read error"
)

// SkippedFile is a file that did not contribute to any merged table.
type SkippedFile struct {
	Path   string
	Reason string
	Err    error
}

// ProjectResult is everything known about a project after processing. Traffic
// and Search are independent: either may be nil without affecting the other.
type ProjectResult struct {
	Name string
	Dir  string

	TrafficInputs []string
	SearchInputs  []string
	Skipped       []SkippedFile

	Traffic *metrics.Table
	Search  *metrics.Table

	// TrafficErr and SearchErr are merge failures for the respective schema.
	TrafficErr error
	SearchErr  error
	// Err is a failure of the whole project (walk error, strict mode, timeout).
	Err error
}

// HasData reports whether at least one merged table was built.
func (r *ProjectResult) HasData() bool {
	return r.Traffic != nil || r.Search != nil
}

// Status summarizes the outcome for metrics and the summary page.
func (r *ProjectResult) Status() string {
	switch {
	case r.Err != nil:
		return telemetry.ProjectFailed
	case r.TrafficErr != nil || r.SearchErr != nil:
		if r.HasData() {
			return telemetry.ProjectPartial
		}
		return telemetry.ProjectFailed
	case !r.HasData():
		return telemetry.ProjectNoData
	default:
		return telemetry.ProjectOK
	}
}

type Options struct {
	Workers        int
	RateLimitRPS   float64
	ProjectTimeout time.Duration
	// Strict turns any skipped CSV into a project failure, and any project
	// failure into a run failure.
	Strict bool

	Logger  *zap.Logger
	Metrics *telemetry.Recorder
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// DiscoverProjects lists the subproject folders of dataDir in name order.
// Plain files directly under dataDir are returned as orphans.
func DiscoverProjects(dataDir string) ([]Project, []string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("read data dir: %w", err)
	}
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, nil, err
	}

	var projects []Project
	var orphans []string
	for _, e := range entries {
		p := filepath.Join(abs, e.Name())
		if !e.IsDir() {
			orphans = append(orphans, p)
			continue
		}
		projects = append(projects, Project{Name: e.Name(), Dir: p})
	}
	return projects, orphans, nil
}

// ProcessProjects processes every project on a bounded pool and returns the
// results sorted by project name. Each project's tables are owned by its result
// alone. In strict mode the first failing project aborts the run.
func ProcessProjects(ctx context.Context, projects []Project, opts Options) ([]*ProjectResult, error) {
	policy := worker.FailurePolicyContinue
	if opts.Strict {
		policy = worker.FailurePolicyFailFast
	}

	log := opts.logger()
	resultOf := func(item worker.Result[Project, *ProjectResult]) *ProjectResult {
		if item.Output != nil {
			return item.Output
		}
		return &ProjectResult{Name: item.Input.Name, Dir: item.Input.Dir, Err: item.Err}
	}
	finished := func(item worker.Result[Project, *ProjectResult]) error {
		res := resultOf(item)
		opts.Metrics.Project(res.Status())
		log.Info("project finished",
			zap.String("project", res.Name),
			zap.String("status", res.Status()),
			zap.Int("traffic_files", len(res.TrafficInputs)),
			zap.Int("search_files", len(res.SearchInputs)),
		)
		return nil
	}

	out, err := worker.ProcessAllWithCallback(ctx, projects, func(ctx context.Context, p Project) (*ProjectResult, error) {
		res := ProcessProject(ctx, p, opts)
		return res, res.Err
	}, finished, worker.Options{
		Workers:       opts.Workers,
		ItemTimeout:   opts.ProjectTimeout,
		RateLimitRPS:  opts.RateLimitRPS,
		FailurePolicy: policy,
	})
	if err != nil {
		return nil, err
	}

	results := make([]*ProjectResult, 0, len(out))
	for _, item := range out {
		results = append(results, resultOf(item))
	}
	slices.SortFunc(results, func(a, b *ProjectResult) int { return strings.Compare(a.Name, b.Name) })
	return results, nil
}

// ProcessProject classifies every CSV under the project and merges the
// Traffic and Search files into one table each.
func ProcessProject(ctx context.Context, p Project, opts Options) *ProjectResult {
	log := opts.logger().With(zap.String("project", p.Name))
	res := &ProjectResult{Name: p.Name, Dir: p.Dir}

	log.Info("searching project")
	err := filepath.WalkDir(p.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel := relPath(p.Dir, path)
		if !strings.EqualFold(filepath.Ext(path), ".csv") {
			log.Warn("skip file", zap.String("file", rel), zap.String("reason", SkipNotCSV))
			opts.Metrics.CSVFile(telemetry.FileIgnored)
			res.Skipped = append(res.Skipped, SkippedFile{Path: path, Reason: SkipNotCSV})
			return nil
		}

		log.Info("load csv", zap.String("file", rel))
		kind, reason, cerr := classify(ctx, path)
		switch kind {
		case schema.Traffic:
			res.TrafficInputs = append(res.TrafficInputs, path)
			opts.Metrics.CSVFile(telemetry.FileTraffic)
			log.Info("traffic data found", zap.String("file", rel))
			return nil
		case schema.Search:
			res.SearchInputs = append(res.SearchInputs, path)
			opts.Metrics.CSVFile(telemetry.FileSearch)
			log.Info("search data found", zap.String("file", rel))
			return nil
		}

		if errors.Is(cerr, context.Canceled) || errors.Is(cerr, context.DeadlineExceeded) {
			return cerr
		}
		opts.Metrics.CSVFile(metricKind(reason))
		log.Error("bad csv", zap.String("file", rel), zap.String("reason", reason), zap.Error(cerr))
		res.Skipped = append(res.Skipped, SkippedFile{Path: path, Reason: reason, Err: cerr})
		if opts.Strict {
			if cerr == nil {
				cerr = errors.New(reason)
			}
			return fmt.Errorf("%s: %w", rel, cerr)
		}
		return nil
	})
	if err != nil {
		res.Err = fmt.Errorf("project %s: %w", p.Name, err)
		return res
	}

	if len(res.TrafficInputs) == 0 && len(res.SearchInputs) == 0 {
		log.Warn("no valid metrics were found for this project")
		return res
	}

	log.Info("begin metrics merge")
	res.Traffic, res.TrafficErr = merge(ctx, log, schema.Traffic, res.TrafficInputs, opts.Metrics)
	res.Search, res.SearchErr = merge(ctx, log, schema.Search, res.SearchInputs, opts.Metrics)
	if opts.Strict {
		res.Err = errors.Join(res.TrafficErr, res.SearchErr)
	}
	return res
}

func classify(ctx context.Context, path string) (schema.Schema, string, error) {
	tbl, err := metrics.BuildSources(ctx, []core.Source{local.FileSource{Path: path}})
	switch {
	case errors.Is(err, core.ErrUnrecognizedSchema):
		return 0, SkipUnrecognized, err
	case errors.Is(err, core.ErrEmptyInput):
		return 0, SkipEmpty, err
	case err != nil:
		return 0, SkipReadError, err
	case tbl.IsEmpty():
		return 0, SkipEmpty, nil
	default:
		return tbl.Schema(), "", nil
	}
}

func merge(ctx context.Context, log *zap.Logger, s schema.Schema, inputs []string, rec *telemetry.Recorder) (*metrics.Table, error) {
	if len(inputs) == 0 {
		log.Warn("no metrics of this type", zap.Stringer("schema", s))
		return nil, nil
	}
	tbl, err := metrics.BuildSources(ctx, local.FileSources(inputs...), metrics.WithSchema(s))
	if err != nil {
		log.Error("merge failed", zap.Stringer("schema", s), zap.Error(err))
		return nil, fmt.Errorf("merge %s csvs: %w", s, err)
	}
	rec.Rows(s.String(), tbl.InputRows(), tbl.Len())
	log.Info("merged csvs",
		zap.Stringer("schema", s),
		zap.Int("files", len(inputs)),
		zap.Int("input_rows", tbl.InputRows()),
		zap.Int("rows", tbl.Len()),
	)
	return tbl, nil
}

func metricKind(reason string) string {
	switch reason {
	case SkipUnrecognized:
		return telemetry.FileInvalid
	case SkipEmpty:
		return telemetry.FileEmpty
	default:
		return telemetry.FileError
	}
}

func relPath(base, path string) string {
	if rel, err := filepath.Rel(base, path); err == nil {
		return rel
	}
	return path
}
