package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jupyter/metrics-builder/internal/config"
	"github.com/jupyter/metrics-builder/internal/pipeline"
	"github.com/jupyter/metrics-builder/internal/report"
	"github.com/jupyter/metrics-builder/internal/telemetry"
)

// BuildResult summarizes a finished build.
type BuildResult struct {
	RunID     string
	Projects  []*pipeline.ProjectResult
	Summaries []report.Summary
	Orphans   []string
}

// RunBuild processes every project under cfg.DataDir and writes all outputs.
//
// A project whose outputs fail to write is logged and left out of the links on
// the summary page; the other projects are unaffected. The run fails on setup
// errors, on a strict-mode project failure, or when the summary page cannot be
// written. A failed SQLite export is reported after the summary page is
// written.
func RunBuild(ctx context.Context, cfg config.Config, logger *zap.Logger, rec *telemetry.Recorder) (BuildResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))
	start := time.Now()
	result := BuildResult{RunID: runID}

	err := runBuild(ctx, cfg, logger, rec, &result)
	rec.Finish(time.Since(start), err == nil)
	if werr := rec.WriteTextfile(cfg.MetricsTextfile); werr != nil {
		logger.Error("write metrics textfile", zap.String("path", cfg.MetricsTextfile), zap.Error(werr))
		err = errors.Join(err, fmt.Errorf("write metrics textfile: %w", werr))
	}
	if err != nil {
		logger.Error("metrics build failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return result, err
	}
	logger.Info("metrics build finished",
		zap.Int("projects", len(result.Projects)),
		zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)),
	)
	return result, nil
}

func runBuild(ctx context.Context, cfg config.Config, logger *zap.Logger, rec *telemetry.Recorder, result *BuildResult) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger.Info("begin metrics build",
		zap.String("data_dir", cfg.DataDir),
		zap.String("output_dir", cfg.OutputDir),
		zap.Int("workers", cfg.Workers),
		zap.Bool("strict", cfg.Strict),
	)

	if cfg.Clean {
		if err := cleanOutputDir(cfg.OutputDir); err != nil {
			return err
		}
		logger.Info("old outputs removed", zap.String("output_dir", cfg.OutputDir))
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	projects, orphans, err := pipeline.DiscoverProjects(cfg.DataDir)
	if err != nil {
		return err
	}
	result.Orphans = orphans
	for _, o := range orphans {
		logger.Warn("skipped orphan file in data dir", zap.String("file", o))
	}
	logger.Info("projects discovered", zap.Int("count", len(projects)))

	results, err := pipeline.ProcessProjects(ctx, projects, pipeline.Options{
		Workers:        cfg.Workers,
		RateLimitRPS:   cfg.RateLimitRPS,
		ProjectTimeout: cfg.ProjectTimeout,
		Strict:         cfg.Strict,
		Logger:         logger,
		Metrics:        rec,
	})
	if err != nil {
		return err
	}
	result.Projects = results

	logger.Info("begin output generation")
	opts := report.Options{TopN: cfg.TopN, Parquet: cfg.Parquet}
	for _, res := range results {
		log := logger.With(zap.String("project", res.Name))
		if !res.HasData() {
			log.Warn("skipping outputs for project without valid data")
			result.Summaries = append(result.Summaries, report.Summarize(res, report.Artifacts{}))
			continue
		}
		art, err := report.WriteProject(cfg.OutputDir, res, opts)
		if err != nil {
			log.Error("error writing project outputs", zap.Error(err))
		} else {
			log.Info("wrote project outputs", zap.String("dir", art.Dir))
		}
		s := report.Summarize(res, art)
		if err != nil {
			s.Errors = append(s.Errors, err.Error())
		}
		result.Summaries = append(result.Summaries, s)
	}

	var exportErr error
	if cfg.SQLitePath != "" {
		if err := report.ExportSQLite(ctx, cfg.SQLitePath, results); err != nil {
			logger.Error("sqlite export incomplete", zap.String("path", cfg.SQLitePath), zap.Error(err))
			exportErr = fmt.Errorf("sqlite export: %w", err)
		} else {
			logger.Info("wrote sqlite export", zap.String("path", cfg.SQLitePath))
		}
	}

	if err := report.WriteIndex(cfg.IndexPath, report.Page{
		RunID:     result.RunID,
		Generated: time.Now(),
		Projects:  result.Summaries,
	}); err != nil {
		return errors.Join(exportErr, fmt.Errorf("summary page: %w", err))
	}
	logger.Info("wrote summary page", zap.String("path", cfg.IndexPath))
	return exportErr
}

// cleanOutputDir removes everything under dir but keeps dir itself.
func cleanOutputDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("remove old outputs: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("remove old outputs: %w", err)
		}
	}
	return nil
}
