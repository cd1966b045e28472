//go:build integration

package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridshift-energy/solar-profiler/pkg/apperrors"
	"github.com/gridshift-energy/solar-profiler/pkg/models"
	"github.com/gridshift-energy/solar-profiler/pkg/repositories"
	"github.com/gridshift-energy/solar-profiler/pkg/testhelpers"
)

func testSite(siteID int64) *models.Site {
	return &models.Site{
		SiteID:            siteID,
		Name:              "test-roof",
		Status:            "Active",
		PeakPower:         "9.87",
		Country:           "Canada",
		State:             "Ontario",
		City:              "Toronto",
		InstallationDate:  "2021-03-01",
		LastReportingTime: "2023-05-01 00:00:00",
	}
}

func TestSiteRepository_UpsertAndGet(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	testhelpers.ResetTables(t, db.DB)
	ctx := context.Background()

	repo := repositories.NewSiteRepository(db.DB)
	require.NoError(t, repo.Upsert(ctx, testSite(1)))

	got, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "test-roof", got.Name)
	assert.Equal(t, "9.87", got.PeakPower)
	assert.False(t, got.HasCSV)
	assert.Nil(t, got.UploadedOn)

	_, err = repo.GetByID(ctx, 999)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSiteRepository_UpsertPreservesPipelineMarkers(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	testhelpers.ResetTables(t, db.DB)
	ctx := context.Background()

	repo := repositories.NewSiteRepository(db.DB)
	require.NoError(t, repo.Upsert(ctx, testSite(1)))
	require.NoError(t, repo.MarkCSVDownloaded(ctx, 1, time.Now().UTC()))
	require.NoError(t, repo.MarkUploaded(ctx, 1, time.Now().UTC()))

	// A metadata refresh must not reset pipeline progress.
	updated := testSite(1)
	updated.Name = "renamed-roof"
	require.NoError(t, repo.Upsert(ctx, updated))

	got, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "renamed-roof", got.Name)
	assert.True(t, got.HasCSV)
	assert.NotNil(t, got.UploadedOn)
}

func TestSiteRepository_CandidateTransitions(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	testhelpers.ResetTables(t, db.DB)
	ctx := context.Background()

	sites := repositories.NewSiteRepository(db.DB)
	profiles := repositories.NewProfileRepository(db.DB)
	require.NoError(t, sites.Upsert(ctx, testSite(1)))

	download, err := sites.ListDownloadCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, download, 1)

	require.NoError(t, sites.MarkCSVDownloaded(ctx, 1, time.Now().UTC()))

	download, err = sites.ListDownloadCandidates(ctx)
	require.NoError(t, err)
	assert.Empty(t, download)
	upload, err := sites.ListUploadCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, upload, 1)

	require.NoError(t, sites.MarkUploaded(ctx, 1, time.Now().UTC()))

	upload, err = sites.ListUploadCandidates(ctx)
	require.NoError(t, err)
	assert.Empty(t, upload)
	profile, err := sites.ListProfileCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, profile, 1)

	intervals := []models.ProfileInterval{{
		SiteID:             1,
		ReferenceTimestamp: time.Date(2000, 6, 15, 12, 0, 0, 0, time.UTC),
		PerKWGeneration:    0.5,
	}}
	require.NoError(t, profiles.Replace(ctx, 1, intervals, time.Now().UTC()))

	profile, err = sites.ListProfileCandidates(ctx)
	require.NoError(t, err)
	assert.Empty(t, profile)
}

func TestSiteRepository_MarkUnknownSite(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	testhelpers.ResetTables(t, db.DB)
	ctx := context.Background()

	repo := repositories.NewSiteRepository(db.DB)
	assert.ErrorIs(t, repo.MarkCSVDownloaded(ctx, 999, time.Now().UTC()), apperrors.ErrNotFound)
	assert.ErrorIs(t, repo.MarkUploaded(ctx, 999, time.Now().UTC()), apperrors.ErrNotFound)
}

func TestProductionRepository_InsertAndList(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	testhelpers.ResetTables(t, db.DB)
	ctx := context.Background()

	sites := repositories.NewSiteRepository(db.DB)
	require.NoError(t, sites.Upsert(ctx, testSite(1)))

	repo := repositories.NewProductionRepository(db.DB)
	base := time.Date(2022, 6, 15, 12, 0, 0, 0, time.UTC)
	samples := []models.ProductionSample{
		{SiteID: 1, Timestamp: base.Add(15 * time.Minute), Production: "5100"},
		{SiteID: 1, Timestamp: base, Production: "5000"},
		{SiteID: 1, Timestamp: base.Add(30 * time.Minute), Production: "not-a-number"},
	}
	require.NoError(t, repo.InsertBatch(ctx, samples))

	got, err := repo.ListBySite(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "5000", got[0].Production, "rows come back ordered by timestamp")
	assert.True(t, got[0].Timestamp.Equal(base))
	assert.Equal(t, "not-a-number", got[2].Production, "raw values are stored verbatim")

	count, err := repo.CountBySite(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestProductionRepository_OverlappingInsertIsNoOp(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	testhelpers.ResetTables(t, db.DB)
	ctx := context.Background()

	sites := repositories.NewSiteRepository(db.DB)
	require.NoError(t, sites.Upsert(ctx, testSite(1)))

	repo := repositories.NewProductionRepository(db.DB)
	base := time.Date(2022, 6, 15, 12, 0, 0, 0, time.UTC)
	first := []models.ProductionSample{
		{SiteID: 1, Timestamp: base, Production: "5000"},
	}
	require.NoError(t, repo.InsertBatch(ctx, first))

	// Re-downloaded window overlaps the first one.
	second := []models.ProductionSample{
		{SiteID: 1, Timestamp: base, Production: "9999"},
		{SiteID: 1, Timestamp: base.Add(15 * time.Minute), Production: "5100"},
	}
	require.NoError(t, repo.InsertBatch(ctx, second))

	got, err := repo.ListBySite(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "5000", got[0].Production, "existing rows win over the re-download")
}

func TestProfileRepository_ReplaceRoundTrip(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	testhelpers.ResetTables(t, db.DB)
	ctx := context.Background()

	sites := repositories.NewSiteRepository(db.DB)
	require.NoError(t, sites.Upsert(ctx, testSite(1)))

	repo := repositories.NewProfileRepository(db.DB)
	first := []models.ProfileInterval{
		{SiteID: 1, ReferenceTimestamp: time.Date(2000, 6, 15, 12, 0, 0, 0, time.UTC), PerKWGeneration: 0.5},
		{SiteID: 1, ReferenceTimestamp: time.Date(2000, 6, 15, 12, 15, 0, 0, time.UTC), PerKWGeneration: 0.6},
	}
	require.NoError(t, repo.Replace(ctx, 1, first, time.Now().UTC()))

	got, err := repo.ListBySite(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0.5, got[0].PerKWGeneration)

	// A recompute fully replaces the stored profile, not appends to it.
	second := []models.ProfileInterval{
		{SiteID: 1, ReferenceTimestamp: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), PerKWGeneration: 0.1},
	}
	require.NoError(t, repo.Replace(ctx, 1, second, time.Now().UTC()))

	got, err = repo.ListBySite(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.1, got[0].PerKWGeneration)
}

func TestProfileRepository_ReplaceUnknownSiteRollsBack(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	testhelpers.ResetTables(t, db.DB)
	ctx := context.Background()

	repo := repositories.NewProfileRepository(db.DB)
	intervals := []models.ProfileInterval{
		{SiteID: 999, ReferenceTimestamp: time.Date(2000, 6, 15, 12, 0, 0, 0, time.UTC), PerKWGeneration: 0.5},
	}

	// The foreign key rejects the copy; nothing may survive the rollback.
	require.Error(t, repo.Replace(ctx, 999, intervals, time.Now().UTC()))

	got, err := repo.ListBySite(ctx, 999)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestProfileRepository_ReplaceRejectsEmptyProfile(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	testhelpers.ResetTables(t, db.DB)
	ctx := context.Background()

	sites := repositories.NewSiteRepository(db.DB)
	require.NoError(t, sites.Upsert(ctx, testSite(1)))

	repo := repositories.NewProfileRepository(db.DB)
	intervals := []models.ProfileInterval{
		{SiteID: 1, ReferenceTimestamp: time.Date(2000, 6, 15, 12, 0, 0, 0, time.UTC), PerKWGeneration: 0.5},
	}
	require.NoError(t, repo.Replace(ctx, 1, intervals, time.Now().UTC()))

	// An empty recompute keeps the previously stored profile.
	require.Error(t, repo.Replace(ctx, 1, nil, time.Now().UTC()))

	got, err := repo.ListBySite(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
}
