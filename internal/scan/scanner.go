// Package scan drives one sweep: scroll the index, extract findings, stream
// them to the report and, when enabled, to the update batcher.
package scan

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pii-sweep/piisweep/internal/extract"
	"github.com/pii-sweep/piisweep/internal/report"
	"github.com/pii-sweep/piisweep/internal/store"
	"github.com/pii-sweep/piisweep/internal/update"
)

// Config contains the scan loop settings.
type Config struct {
	Index     string
	PageSize  int
	ScrollTTL string
	Query     map[string]any
	OutPath   string
}

// Summary holds the end-of-run counts.
type Summary struct {
	DocsScanned     int64
	ValuesExtracted int64
	UpdatesSent     int64
	OutPath         string
	Duration        time.Duration
}

// Scanner processes documents strictly sequentially: each document is fully
// extracted, reported and queued for update before the next one is pulled.
type Scanner struct {
	client   *store.Client
	pipeline *extract.Pipeline
	writer   report.Writer
	batcher  *update.Batcher // nil when updates are disabled
	cfg      Config
	logger   *zap.Logger
}

// New creates a scanner. batcher may be nil to disable document updates.
func New(client *store.Client, pipeline *extract.Pipeline, writer report.Writer, batcher *update.Batcher, cfg Config, logger *zap.Logger) *Scanner {
	return &Scanner{
		client:   client,
		pipeline: pipeline,
		writer:   writer,
		batcher:  batcher,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run executes one complete sweep. The first store or file failure aborts the
// run; the report file is closed in whatever state it reached. The summary is
// returned even on error, reflecting the progress made.
func (s *Scanner) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{OutPath: s.cfg.OutPath}

	s.logger.Info("Starting sweep",
		zap.String("index", s.cfg.Index),
		zap.Int("page_size", s.cfg.PageSize),
		zap.Bool("updates_enabled", s.batcher != nil),
	)

	runErr := s.sweep(ctx, summary)

	if runErr == nil && s.batcher != nil {
		runErr = s.batcher.Flush(ctx)
	}

	if err := s.writer.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to close report: %w", err)
	}

	summary.ValuesExtracted = s.writer.Rows()
	if s.batcher != nil {
		summary.UpdatesSent = s.batcher.Sent()
	}
	summary.Duration = time.Since(start)

	if runErr != nil {
		return summary, runErr
	}

	s.logger.Info("Sweep completed",
		zap.Int64("docs_scanned", summary.DocsScanned),
		zap.Int64("values_extracted", summary.ValuesExtracted),
		zap.Int64("updates_sent", summary.UpdatesSent),
		zap.Duration("duration", summary.Duration),
	)

	return summary, nil
}

func (s *Scanner) sweep(ctx context.Context, summary *Summary) error {
	sc := s.client.Scroll(s.cfg.Index, s.cfg.Query, s.cfg.PageSize, s.cfg.ScrollTTL)

	for sc.Next(ctx) {
		hit := sc.Hit()
		summary.DocsScanned++

		result := s.pipeline.Extract(hit)
		if result.Skipped {
			continue
		}

		for _, f := range result.Findings {
			row := report.Row{
				Detector: f.Detector,
				Value:    f.Value,
				Path:     result.Path,
				DocID:    result.DocID,
			}
			if err := s.writer.Write(ctx, row); err != nil {
				return err
			}
		}

		if s.batcher != nil && len(result.Findings) > 0 {
			if err := s.batcher.Add(ctx, result.DocID, result.Findings); err != nil {
				return err
			}
		}
	}

	if err := sc.Err(); err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	return nil
}
