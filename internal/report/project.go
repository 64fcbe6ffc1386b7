// Package report writes the build artifacts: merged CSVs and charts per
// project, optional Parquet copies, a SQLite export and the summary page.
package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jupyter/metrics-builder/internal/pipeline"
	"github.com/jupyter/metrics-builder/internal/util"
	"github.com/jupyter/metrics-builder/pkg/pipeline/io/local"
	"github.com/jupyter/metrics-builder/pkg/pipeline/metrics"
)

const (
	PagesChartFile   = "popular_pages.html"
	QueriesChartFile = "popular_queries.html"
)

type Options struct {
	// TopN bounds the chart rankings.
	TopN int
	// Parquet also writes each merged table as a Parquet file.
	Parquet bool
}

// Artifacts are the paths of the files written for one project. Empty fields
// were not written.
type Artifacts struct {
	Dir            string
	TrafficCSV     string
	SearchCSV      string
	PagesChart     string
	QueriesChart   string
	TrafficParquet string
	SearchParquet  string
}

// WriteProject writes the outputs of one project into outDir/<project>.
// Traffic and Search outputs are independent: a failure writing one is
// returned alongside whatever the other produced.
func WriteProject(outDir string, res *pipeline.ProjectResult, opts Options) (Artifacts, error) {
	var art Artifacts
	if !res.HasData() {
		return art, nil
	}
	if opts.TopN <= 0 {
		opts.TopN = 25
	}

	dir := filepath.Join(outDir, filepath.Base(res.Name))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return art, fmt.Errorf("create output dir: %w", err)
	}
	art.Dir = dir
	stem := filepath.Join(dir, util.SafeName(res.Name))

	var errs []error
	if res.Traffic != nil {
		if err := writeTraffic(&art, stem, res, opts); err != nil {
			errs = append(errs, fmt.Errorf("traffic outputs: %w", err))
		}
	}
	if res.Search != nil {
		if err := writeSearch(&art, stem, res, opts); err != nil {
			errs = append(errs, fmt.Errorf("search outputs: %w", err))
		}
	}
	return art, errors.Join(errs...)
}

func writeTraffic(art *Artifacts, stem string, res *pipeline.ProjectResult, opts Options) error {
	csvPath := stem + "_traffic.csv"
	if err := local.WriteCSVFile(csvPath, res.Traffic); err != nil {
		return err
	}
	art.TrafficCSV = csvPath

	pages, err := res.Traffic.MostPopularPages(opts.TopN)
	if err != nil {
		return err
	}
	chartPath := filepath.Join(art.Dir, PagesChartFile)
	if err := writeChart(chartPath, newChart("Popular Pages", "Views", "Page", pages)); err != nil {
		return err
	}
	art.PagesChart = chartPath

	if !opts.Parquet {
		return nil
	}
	recs, err := trafficRecords(res.Name, res.Traffic)
	if err != nil {
		return err
	}
	pqPath := stem + "_traffic.parquet"
	if err := writeParquet(pqPath, recs); err != nil {
		return err
	}
	art.TrafficParquet = pqPath
	return nil
}

func writeSearch(art *Artifacts, stem string, res *pipeline.ProjectResult, opts Options) error {
	csvPath := stem + "_search.csv"
	if err := local.WriteCSVFile(csvPath, res.Search); err != nil {
		return err
	}
	art.SearchCSV = csvPath

	queries, err := res.Search.MostPopularQueries(opts.TopN)
	if err != nil {
		return err
	}
	chartPath := filepath.Join(art.Dir, QueriesChartFile)
	if err := writeChart(chartPath, newChart("Popular Queries", "Searches", "Query", queries)); err != nil {
		return err
	}
	art.QueriesChart = chartPath

	if !opts.Parquet {
		return nil
	}
	recs, err := searchRecords(res.Name, res.Search)
	if err != nil {
		return err
	}
	pqPath := stem + "_search.parquet"
	if err := writeParquet(pqPath, recs); err != nil {
		return err
	}
	art.SearchParquet = pqPath
	return nil
}

func writeChart(path string, c chart) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	if err := renderChart(f, c); err != nil {
		return err
	}
	return f.Close()
}

// Summary is what the summary page shows for one project.
type Summary struct {
	Name      string
	Status    string
	Artifacts Artifacts

	HasTraffic  bool
	TotalViews  int
	Pages       int
	TopVersions []metrics.Count

	HasSearch bool
	Searches  int
	Queries   int

	Skipped int
	Errors  []string
}

// Summarize computes the summary page figures for a project.
func Summarize(res *pipeline.ProjectResult, art Artifacts) Summary {
	s := Summary{
		Name:      res.Name,
		Status:    res.Status(),
		Artifacts: art,
		Skipped:   len(res.Skipped),
	}
	for _, err := range []error{res.Err, res.TrafficErr, res.SearchErr} {
		if err != nil {
			s.Errors = append(s.Errors, err.Error())
		}
	}

	if t := res.Traffic; t != nil {
		s.HasTraffic = true
		if total, err := t.TotalViews(); err == nil {
			s.TotalViews = total
		} else {
			s.Errors = append(s.Errors, err.Error())
		}
		if pages, err := t.MostPopularPages(metrics.All); err == nil {
			s.Pages = len(pages)
		}
		if versions, err := t.MostPopularVersions(3); err == nil {
			s.TopVersions = versions
		}
	}
	if q := res.Search; q != nil {
		s.HasSearch = true
		s.Searches = q.Len()
		if queries, err := q.MostPopularQueries(metrics.All); err == nil {
			s.Queries = len(queries)
		}
	}
	return s
}
