package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gridshift-energy/solar-profiler/pkg/apperrors"
	"github.com/gridshift-energy/solar-profiler/pkg/config"
	"github.com/gridshift-energy/solar-profiler/pkg/models"
	"github.com/gridshift-energy/solar-profiler/pkg/repositories"
)

const (
	timeColumn       = "Time"
	productionColumn = "System Production (W)"
	exportTimeLayout = "01/02/2006 15:04"
)

// UploadSummary reports the outcome of one production ingest run.
type UploadSummary struct {
	Uploaded int
	Skipped  int
	Failed   int
	Rows     int
}

// ProductionUploader ingests downloaded chart-export CSVs into the
// production telemetry table.
type ProductionUploader interface {
	UploadAll(ctx context.Context) (UploadSummary, error)
}

type productionUploader struct {
	cfg        config.DownloadConfig
	sites      repositories.SiteRepository
	production repositories.ProductionRepository
	logger     *zap.Logger
}

// NewProductionUploader creates a new ProductionUploader.
func NewProductionUploader(
	cfg config.DownloadConfig,
	sites repositories.SiteRepository,
	production repositories.ProductionRepository,
	logger *zap.Logger,
) ProductionUploader {
	return &productionUploader{
		cfg:        cfg,
		sites:      sites,
		production: production,
		logger:     logger.Named("production-uploader"),
	}
}

var _ ProductionUploader = (*productionUploader)(nil)

func (s *productionUploader) UploadAll(ctx context.Context) (UploadSummary, error) {
	var summary UploadSummary

	candidates, err := s.sites.ListUploadCandidates(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list upload candidates: %w", err)
	}

	s.logger.Info("Starting production CSV ingest", zap.Int("candidates", len(candidates)))

	for _, site := range candidates {
		siteLogger := s.logger.With(zap.Int64("site_id", site.SiteID))

		rows, err := s.uploadSite(ctx, site)
		switch {
		case errors.Is(err, apperrors.ErrNoCSVForSite):
			siteLogger.Warn("No CSV file found, skipping")
			summary.Skipped++
		case err != nil:
			siteLogger.Error("Production ingest failed", zap.Error(err))
			summary.Failed++
		default:
			siteLogger.Info("Ingested production CSV", zap.Int("rows", rows))
			summary.Uploaded++
			summary.Rows += rows
		}
	}

	s.logger.Info("Finished production CSV ingest",
		zap.Int("uploaded", summary.Uploaded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("rows", summary.Rows))

	return summary, nil
}

func (s *productionUploader) uploadSite(ctx context.Context, site *models.Site) (int, error) {
	path, err := s.findCSV(site.SiteID)
	if err != nil {
		return 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := s.ingestFile(ctx, site.SiteID, f)
	if err != nil {
		return 0, fmt.Errorf("failed to ingest %s: %w", path, err)
	}

	if err := s.sites.MarkUploaded(ctx, site.SiteID, time.Now().UTC()); err != nil {
		return 0, err
	}

	return rows, nil
}

// findCSV locates the downloaded export for a site anywhere under the CSV
// directory tree (files are nested by country/state/city).
func (s *productionUploader) findCSV(siteID int64) (string, error) {
	prefix := fmt.Sprintf("%d_", siteID)
	var found string

	err := filepath.WalkDir(s.cfg.CSVDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".csv") {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to scan csv directory: %w", err)
	}
	if found == "" {
		return "", apperrors.ErrNoCSVForSite
	}
	return found, nil
}

func (s *productionUploader) ingestFile(ctx context.Context, siteID int64, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("failed to read header: %w", err)
	}

	timeIdx, prodIdx := -1, -1
	for i, col := range header {
		switch strings.TrimSpace(col) {
		case timeColumn:
			timeIdx = i
		case productionColumn:
			prodIdx = i
		}
	}
	if timeIdx < 0 || prodIdx < 0 {
		return 0, fmt.Errorf("header is missing %q or %q columns", timeColumn, productionColumn)
	}

	batchSize := s.cfg.UploadBatchSize
	if batchSize <= 0 {
		batchSize = 5000
	}

	total := 0
	batch := make([]models.ProductionSample, 0, batchSize)
	for rowNum := 1; ; rowNum++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.logger.Warn("Skipping malformed csv row",
				zap.Int64("site_id", siteID), zap.Int("row", rowNum), zap.Error(err))
			continue
		}
		if len(row) <= timeIdx || len(row) <= prodIdx {
			s.logger.Warn("Skipping short csv row",
				zap.Int64("site_id", siteID), zap.Int("row", rowNum))
			continue
		}

		ts, err := time.Parse(exportTimeLayout, strings.TrimSpace(row[timeIdx]))
		if err != nil {
			s.logger.Warn("Skipping row with unparseable timestamp",
				zap.Int64("site_id", siteID), zap.Int("row", rowNum),
				zap.String("value", row[timeIdx]))
			continue
		}

		batch = append(batch, models.ProductionSample{
			SiteID:     siteID,
			Timestamp:  ts.UTC(),
			Production: cleanProductionValue(row[prodIdx]),
		})

		if len(batch) >= batchSize {
			if err := s.production.InsertBatch(ctx, batch); err != nil {
				return total, err
			}
			total += len(batch)
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		if err := s.production.InsertBatch(ctx, batch); err != nil {
			return total, err
		}
		total += len(batch)
	}

	return total, nil
}

// cleanProductionValue strips the quoting the export wraps around numbers
// and maps empty cells to zero. Values that still are not numeric are kept
// verbatim; the profile pipeline drops them during coercion.
func cleanProductionValue(value string) string {
	cleaned := strings.TrimSpace(strings.ReplaceAll(value, `"`, ""))
	if cleaned == "" {
		return "0"
	}
	return cleaned
}
