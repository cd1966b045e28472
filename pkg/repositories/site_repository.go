package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gridshift-energy/solar-profiler/pkg/apperrors"
	"github.com/gridshift-energy/solar-profiler/pkg/database"
	"github.com/gridshift-energy/solar-profiler/pkg/models"
)

// SiteRepository provides data access for the solar site registry.
type SiteRepository interface {
	// Upsert inserts a site or refreshes its metadata on conflict.
	// Pipeline markers (has_csv, uploaded_on, profile_updated_on) are never
	// touched by an upsert, so re-importing metadata cannot reset progress.
	Upsert(ctx context.Context, site *models.Site) error
	GetByID(ctx context.Context, siteID int64) (*models.Site, error)

	// ListDownloadCandidates returns sites with no CSV downloaded yet.
	ListDownloadCandidates(ctx context.Context) ([]*models.Site, error)
	// ListUploadCandidates returns sites with a CSV on disk whose rows have
	// not been ingested yet.
	ListUploadCandidates(ctx context.Context) ([]*models.Site, error)
	// ListProfileCandidates returns sites with ingested production data and
	// no computed reference-year profile.
	ListProfileCandidates(ctx context.Context) ([]*models.Site, error)

	MarkCSVDownloaded(ctx context.Context, siteID int64, at time.Time) error
	MarkUploaded(ctx context.Context, siteID int64, at time.Time) error
}

type siteRepository struct {
	db *database.DB
}

// NewSiteRepository creates a new SiteRepository.
func NewSiteRepository(db *database.DB) SiteRepository {
	return &siteRepository{db: db}
}

var _ SiteRepository = (*siteRepository)(nil)

const siteColumns = `site_id, name, status, peak_power, type, zip_code, address,
       secondary_address, country, state, city, location,
       installation_date, last_reporting_time,
       updated_on, has_csv, uploaded_on, profile_updated_on`

func (r *siteRepository) Upsert(ctx context.Context, site *models.Site) error {
	query := `
		INSERT INTO solar_sites (
			site_id, name, status, peak_power, type, zip_code, address,
			secondary_address, country, state, city, location,
			installation_date, last_reporting_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (site_id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			peak_power = EXCLUDED.peak_power,
			type = EXCLUDED.type,
			zip_code = EXCLUDED.zip_code,
			address = EXCLUDED.address,
			secondary_address = EXCLUDED.secondary_address,
			country = EXCLUDED.country,
			state = EXCLUDED.state,
			city = EXCLUDED.city,
			location = EXCLUDED.location,
			installation_date = EXCLUDED.installation_date,
			last_reporting_time = EXCLUDED.last_reporting_time`

	_, err := r.db.Exec(ctx, query,
		site.SiteID, site.Name, site.Status, site.PeakPower, site.Type,
		site.ZipCode, site.Address, site.SecondaryAddress, site.Country,
		site.State, site.City, site.Location,
		site.InstallationDate, site.LastReportingTime,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert site %d: %w", site.SiteID, err)
	}

	return nil
}

func (r *siteRepository) GetByID(ctx context.Context, siteID int64) (*models.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM solar_sites WHERE site_id = $1`

	site, err := scanSiteRow(r.db.QueryRow(ctx, query, siteID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return site, nil
}

func (r *siteRepository) ListDownloadCandidates(ctx context.Context) ([]*models.Site, error) {
	query := `
		SELECT ` + siteColumns + `
		FROM solar_sites
		WHERE has_csv = false
		ORDER BY site_id`

	return r.listSites(ctx, query)
}

func (r *siteRepository) ListUploadCandidates(ctx context.Context) ([]*models.Site, error) {
	query := `
		SELECT ` + siteColumns + `
		FROM solar_sites
		WHERE has_csv = true AND uploaded_on IS NULL
		ORDER BY site_id`

	return r.listSites(ctx, query)
}

func (r *siteRepository) ListProfileCandidates(ctx context.Context) ([]*models.Site, error) {
	query := `
		SELECT ` + siteColumns + `
		FROM solar_sites
		WHERE uploaded_on IS NOT NULL AND profile_updated_on IS NULL
		ORDER BY site_id`

	return r.listSites(ctx, query)
}

func (r *siteRepository) MarkCSVDownloaded(ctx context.Context, siteID int64, at time.Time) error {
	query := `UPDATE solar_sites SET has_csv = true, updated_on = $2 WHERE site_id = $1`

	result, err := r.db.Exec(ctx, query, siteID, at)
	if err != nil {
		return fmt.Errorf("failed to mark site %d as downloaded: %w", siteID, err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *siteRepository) MarkUploaded(ctx context.Context, siteID int64, at time.Time) error {
	query := `UPDATE solar_sites SET uploaded_on = $2 WHERE site_id = $1`

	result, err := r.db.Exec(ctx, query, siteID, at)
	if err != nil {
		return fmt.Errorf("failed to mark site %d as uploaded: %w", siteID, err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *siteRepository) listSites(ctx context.Context, query string) ([]*models.Site, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	var sites []*models.Site
	for rows.Next() {
		site, err := scanSiteRow(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating site rows: %w", err)
	}

	return sites, nil
}

func scanSiteRow(row pgx.Row) (*models.Site, error) {
	var s models.Site
	var name, status, peakPower, typ, zipCode, address, secondaryAddress *string
	var country, state, city, location, installationDate, lastReportingTime *string

	err := row.Scan(
		&s.SiteID, &name, &status, &peakPower, &typ, &zipCode, &address,
		&secondaryAddress, &country, &state, &city, &location,
		&installationDate, &lastReportingTime,
		&s.UpdatedOn, &s.HasCSV, &s.UploadedOn, &s.ProfileUpdatedOn,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan site: %w", err)
	}

	s.Name = deref(name)
	s.Status = deref(status)
	s.PeakPower = deref(peakPower)
	s.Type = deref(typ)
	s.ZipCode = deref(zipCode)
	s.Address = deref(address)
	s.SecondaryAddress = deref(secondaryAddress)
	s.Country = deref(country)
	s.State = deref(state)
	s.City = deref(city)
	s.Location = deref(location)
	s.InstallationDate = deref(installationDate)
	s.LastReportingTime = deref(lastReportingTime)

	return &s, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
