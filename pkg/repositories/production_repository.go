package repositories

import (
	"context"
	"fmt"

	"github.com/gridshift-energy/solar-profiler/pkg/database"
	"github.com/gridshift-energy/solar-profiler/pkg/models"
)

// ProductionRepository provides data access for raw production telemetry.
type ProductionRepository interface {
	// ListBySite returns all samples for a site ordered by timestamp.
	ListBySite(ctx context.Context, siteID int64) ([]models.ProductionSample, error)
	// InsertBatch inserts samples, silently skipping timestamps the site
	// already has rows for. Re-ingesting an overlapping export is a no-op
	// for the overlap.
	InsertBatch(ctx context.Context, samples []models.ProductionSample) error
	// CountBySite returns the number of stored samples for a site.
	CountBySite(ctx context.Context, siteID int64) (int64, error)
}

type productionRepository struct {
	db *database.DB
}

// NewProductionRepository creates a new ProductionRepository.
func NewProductionRepository(db *database.DB) ProductionRepository {
	return &productionRepository{db: db}
}

var _ ProductionRepository = (*productionRepository)(nil)

func (r *productionRepository) ListBySite(ctx context.Context, siteID int64) ([]models.ProductionSample, error) {
	query := `
		SELECT site_id, timestamp, production
		FROM site_production_data
		WHERE site_id = $1
		ORDER BY timestamp`

	rows, err := r.db.Query(ctx, query, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list production data for site %d: %w", siteID, err)
	}
	defer rows.Close()

	var samples []models.ProductionSample
	for rows.Next() {
		var s models.ProductionSample
		if err := rows.Scan(&s.SiteID, &s.Timestamp, &s.Production); err != nil {
			return nil, fmt.Errorf("failed to scan production sample: %w", err)
		}
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating production rows: %w", err)
	}

	return samples, nil
}

func (r *productionRepository) InsertBatch(ctx context.Context, samples []models.ProductionSample) error {
	if len(samples) == 0 {
		return nil
	}

	// COPY cannot skip conflicting rows, so batch through an insert with
	// ON CONFLICT DO NOTHING instead; overlapping exports are common when a
	// site's window is re-downloaded.
	query := `
		INSERT INTO site_production_data (site_id, timestamp, production)
		VALUES ($1, $2, $3)
		ON CONFLICT (site_id, timestamp) DO NOTHING`

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	for _, s := range samples {
		if _, err := tx.Exec(ctx, query, s.SiteID, s.Timestamp, s.Production); err != nil {
			return fmt.Errorf("failed to insert production sample for site %d at %s: %w",
				s.SiteID, s.Timestamp.Format("2006-01-02 15:04"), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit production batch: %w", err)
	}

	return nil
}

func (r *productionRepository) CountBySite(ctx context.Context, siteID int64) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM site_production_data WHERE site_id = $1`, siteID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count production data for site %d: %w", siteID, err)
	}
	return count, nil
}
