package services

import (
	"context"
	"time"

	"github.com/gridshift-energy/solar-profiler/pkg/apperrors"
	"github.com/gridshift-energy/solar-profiler/pkg/models"
	"github.com/gridshift-energy/solar-profiler/pkg/repositories"
)

// mockSiteRepo is an in-memory SiteRepository for service tests.
type mockSiteRepo struct {
	sites map[int64]*models.Site

	upserted  []*models.Site
	upsertErr error
	markErr   error
}

func newMockSiteRepo() *mockSiteRepo {
	return &mockSiteRepo{sites: make(map[int64]*models.Site)}
}

var _ repositories.SiteRepository = (*mockSiteRepo)(nil)

func (m *mockSiteRepo) Upsert(_ context.Context, site *models.Site) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserted = append(m.upserted, site)
	m.sites[site.SiteID] = site
	return nil
}

func (m *mockSiteRepo) GetByID(_ context.Context, siteID int64) (*models.Site, error) {
	site, ok := m.sites[siteID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return site, nil
}

func (m *mockSiteRepo) ListDownloadCandidates(_ context.Context) ([]*models.Site, error) {
	var out []*models.Site
	for _, s := range m.sites {
		if !s.HasCSV {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockSiteRepo) ListUploadCandidates(_ context.Context) ([]*models.Site, error) {
	var out []*models.Site
	for _, s := range m.sites {
		if s.HasCSV && s.UploadedOn == nil {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockSiteRepo) ListProfileCandidates(_ context.Context) ([]*models.Site, error) {
	var out []*models.Site
	for _, s := range m.sites {
		if s.UploadedOn != nil && s.ProfileUpdatedOn == nil {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockSiteRepo) MarkCSVDownloaded(_ context.Context, siteID int64, at time.Time) error {
	if m.markErr != nil {
		return m.markErr
	}
	site, ok := m.sites[siteID]
	if !ok {
		return apperrors.ErrNotFound
	}
	site.HasCSV = true
	site.UpdatedOn = &at
	return nil
}

func (m *mockSiteRepo) MarkUploaded(_ context.Context, siteID int64, at time.Time) error {
	if m.markErr != nil {
		return m.markErr
	}
	site, ok := m.sites[siteID]
	if !ok {
		return apperrors.ErrNotFound
	}
	site.UploadedOn = &at
	return nil
}

// mockProductionRepo is an in-memory ProductionRepository.
type mockProductionRepo struct {
	samples map[int64][]models.ProductionSample

	inserted    []models.ProductionSample
	batches     int
	listErr     error
	listErrSite int64 // when non-zero, listErr only applies to this site
	insertErr   error
}

func newMockProductionRepo() *mockProductionRepo {
	return &mockProductionRepo{samples: make(map[int64][]models.ProductionSample)}
}

var _ repositories.ProductionRepository = (*mockProductionRepo)(nil)

func (m *mockProductionRepo) ListBySite(_ context.Context, siteID int64) ([]models.ProductionSample, error) {
	if m.listErr != nil && (m.listErrSite == 0 || m.listErrSite == siteID) {
		return nil, m.listErr
	}
	return m.samples[siteID], nil
}

func (m *mockProductionRepo) InsertBatch(_ context.Context, batch []models.ProductionSample) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.batches++
	m.inserted = append(m.inserted, batch...)
	for _, s := range batch {
		m.samples[s.SiteID] = append(m.samples[s.SiteID], s)
	}
	return nil
}

func (m *mockProductionRepo) CountBySite(_ context.Context, siteID int64) (int64, error) {
	return int64(len(m.samples[siteID])), nil
}

// mockProfileRepo is an in-memory ProfileRepository.
type mockProfileRepo struct {
	profiles   map[int64][]models.ProfileInterval
	computedAt map[int64]time.Time
	replaceErr error
}

func newMockProfileRepo() *mockProfileRepo {
	return &mockProfileRepo{
		profiles:   make(map[int64][]models.ProfileInterval),
		computedAt: make(map[int64]time.Time),
	}
}

var _ repositories.ProfileRepository = (*mockProfileRepo)(nil)

func (m *mockProfileRepo) Replace(_ context.Context, siteID int64, intervals []models.ProfileInterval, computedAt time.Time) error {
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.profiles[siteID] = intervals
	m.computedAt[siteID] = computedAt
	return nil
}

func (m *mockProfileRepo) ListBySite(_ context.Context, siteID int64) ([]models.ProfileInterval, error) {
	return m.profiles[siteID], nil
}
