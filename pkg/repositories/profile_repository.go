package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gridshift-energy/solar-profiler/pkg/apperrors"
	"github.com/gridshift-energy/solar-profiler/pkg/database"
	"github.com/gridshift-energy/solar-profiler/pkg/models"
)

// ProfileRepository provides data access for computed reference-year profiles.
type ProfileRepository interface {
	// Replace atomically swaps a site's stored profile for the given
	// intervals and stamps profile_updated_on, all in one transaction. A
	// reader never observes a half-replaced profile, and a failure leaves
	// the prior profile intact with the marker unset.
	//
	// Calling Replace with zero intervals is an error; the writer decides
	// whether an empty result means "keep the old profile" (it does).
	Replace(ctx context.Context, siteID int64, intervals []models.ProfileInterval, computedAt time.Time) error

	// ListBySite returns a site's profile ordered by reference timestamp.
	ListBySite(ctx context.Context, siteID int64) ([]models.ProfileInterval, error)
}

type profileRepository struct {
	db *database.DB
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(db *database.DB) ProfileRepository {
	return &profileRepository{db: db}
}

var _ ProfileRepository = (*profileRepository)(nil)

func (r *profileRepository) Replace(ctx context.Context, siteID int64, intervals []models.ProfileInterval, computedAt time.Time) error {
	if len(intervals) == 0 {
		return fmt.Errorf("refusing to replace profile for site %d with zero intervals", siteID)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	if _, err := tx.Exec(ctx,
		`DELETE FROM site_reference_year_production WHERE site_id = $1`, siteID); err != nil {
		return fmt.Errorf("failed to delete prior profile for site %d: %w", siteID, err)
	}

	rows := make([][]any, len(intervals))
	for i, iv := range intervals {
		rows[i] = []any{siteID, iv.ReferenceTimestamp, iv.PerKWGeneration}
	}

	if _, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"site_reference_year_production"},
		[]string{"site_id", "reference_timestamp", "per_kw_generation"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("failed to insert profile for site %d: %w", siteID, err)
	}

	result, err := tx.Exec(ctx,
		`UPDATE solar_sites SET profile_updated_on = $2 WHERE site_id = $1`,
		siteID, computedAt)
	if err != nil {
		return fmt.Errorf("failed to mark profile computed for site %d: %w", siteID, err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit profile replace for site %d: %w", siteID, err)
	}

	return nil
}

func (r *profileRepository) ListBySite(ctx context.Context, siteID int64) ([]models.ProfileInterval, error) {
	query := `
		SELECT site_id, reference_timestamp, per_kw_generation
		FROM site_reference_year_production
		WHERE site_id = $1
		ORDER BY reference_timestamp`

	rows, err := r.db.Query(ctx, query, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list profile for site %d: %w", siteID, err)
	}
	defer rows.Close()

	var intervals []models.ProfileInterval
	for rows.Next() {
		var iv models.ProfileInterval
		if err := rows.Scan(&iv.SiteID, &iv.ReferenceTimestamp, &iv.PerKWGeneration); err != nil {
			return nil, fmt.Errorf("failed to scan profile interval: %w", err)
		}
		intervals = append(intervals, iv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profile rows: %w", err)
	}

	return intervals, nil
}
