// Package audit writes a monthly spreadsheet snapshot of every engine table
// and trims override rows that no longer matter.
package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"innkeeper/internal/calendar"
	"innkeeper/internal/config"
)

const defaultRetentionDays = 365

type Service struct {
	config   config.AuditConfig
	exporter TableExporter
	writer   func() ExcelWriter
	cleaner  OverrideCleaner
	clock    calendar.Clock
	logger   *zerolog.Logger
}

func NewService(
	cfg config.AuditConfig,
	exporter TableExporter,
	writerFactory func() ExcelWriter,
	cleaner OverrideCleaner,
	clock calendar.Clock,
	logger *zerolog.Logger,
) *Service {
	if cfg.OverrideRetentionDays <= 0 {
		cfg.OverrideRetentionDays = defaultRetentionDays
	}
	if writerFactory == nil {
		writerFactory = NewExcelizeWriter
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		config:   cfg,
		exporter: exporter,
		writer:   writerFactory,
		cleaner:  cleaner,
		clock:    clock,
		logger:   logger,
	}
}

// Register adds the audit job to c using the configured cron schedule.
func (s *Service) Register(c *cron.Cron) error {
	if !s.config.Enabled {
		s.logger.Info().Msg("Audit service is disabled")
		return nil
	}
	_, err := c.AddFunc(s.config.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		s.RunExportAndCleanup(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid audit schedule %q: %w", s.config.Schedule, err)
	}
	s.logger.Info().
		Str("schedule", s.config.Schedule).
		Int("override_retention_days", s.config.OverrideRetentionDays).
		Msg("Audit service scheduled")
	return nil
}

// RunExportAndCleanup exports first, then cleans. A failed export does not
// stop the cleanup.
func (s *Service) RunExportAndCleanup(ctx context.Context) {
	if path, err := s.Export(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Failed to export audit data")
	} else {
		s.logger.Info().Str("path", path).Msg("Audit report written")
	}
	if _, err := s.Cleanup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Failed to clean up stale overrides")
	}
}

// Export writes one sheet per table into ExportPath, named after the
// previous month, and returns the file path.
func (s *Service) Export(ctx context.Context) (string, error) {
	if s.exporter == nil {
		return "", fmt.Errorf("exporter not configured")
	}
	tables, err := s.exporter.GetTableNames(ctx)
	if err != nil {
		return "", fmt.Errorf("get table names: %w", err)
	}
	if len(tables) == 0 {
		return "", fmt.Errorf("no tables to export")
	}

	excel := s.writer()
	defer excel.Close()

	for _, table := range tables {
		data, columns, err := s.exporter.GetTableData(ctx, table)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", table, err)
		}
		if err := excel.AddSheet(table); err != nil {
			return "", err
		}
		if err := excel.WriteHeader(columns); err != nil {
			return "", fmt.Errorf("write %s header: %w", table, err)
		}
		for _, row := range data {
			values := make([]interface{}, len(columns))
			for i, col := range columns {
				values[i] = row[col]
			}
			if err := excel.WriteRow(values); err != nil {
				return "", fmt.Errorf("write %s row: %w", table, err)
			}
		}
		s.logger.Debug().Str("table", table).Int("rows", len(data)).Msg("Exported table")
	}

	if err := os.MkdirAll(s.config.ExportPath, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}
	path := filepath.Join(s.config.ExportPath, GenerateFilename(previousMonth(s.clock.Now())))
	if err := excel.SaveToFile(path); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	return path, nil
}

// Cleanup deletes code-less override rows dated before today minus the
// retention window.
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	if s.cleaner == nil {
		return 0, nil
	}
	cutoff := calendar.Today(s.clock).AddDays(-s.config.OverrideRetentionDays)
	deleted, err := s.cleaner.DeleteStaleOverrides(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.logger.Info().
		Int64("deleted", deleted).
		Str("cutoff", cutoff.String()).
		Msg("Cleaned up stale overrides")
	return deleted, nil
}
