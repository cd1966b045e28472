package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gridshift-energy/solar-profiler/pkg/config"
	"github.com/gridshift-energy/solar-profiler/pkg/models"
	"github.com/gridshift-energy/solar-profiler/pkg/repositories"
)

// ProfileSummary reports the outcome of one profile calculation run.
type ProfileSummary struct {
	Processed int
	Skipped   int
	Failed    int
}

// ProfileService computes capacity-normalized reference-year generation
// profiles for sites whose production history has been fully ingested.
type ProfileService interface {
	// CalculateAll runs the profile pipeline for every candidate site
	// (uploaded, not yet profiled). Per-site failures are logged and do not
	// abort the run.
	CalculateAll(ctx context.Context) (ProfileSummary, error)
}

type profileService struct {
	sites      repositories.SiteRepository
	production repositories.ProductionRepository
	profiles   repositories.ProfileRepository
	cfg        config.ProfileConfig
	logger     *zap.Logger
}

// NewProfileService creates a new ProfileService.
func NewProfileService(
	sites repositories.SiteRepository,
	production repositories.ProductionRepository,
	profiles repositories.ProfileRepository,
	cfg config.ProfileConfig,
	logger *zap.Logger,
) ProfileService {
	return &profileService{
		sites:      sites,
		production: production,
		profiles:   profiles,
		cfg:        cfg,
		logger:     logger.Named("profile-service"),
	}
}

var _ ProfileService = (*profileService)(nil)

func (s *profileService) CalculateAll(ctx context.Context) (ProfileSummary, error) {
	logger := s.logger.With(zap.String("run_id", uuid.NewString()))
	logger.Info("Starting reference-year profile calculation",
		zap.Int("reference_year", s.cfg.ReferenceYear))

	candidates, err := s.sites.ListProfileCandidates(ctx)
	if err != nil {
		return ProfileSummary{}, fmt.Errorf("failed to list profile candidates: %w", err)
	}

	var summary ProfileSummary
	for _, site := range candidates {
		siteLogger := logger.With(zap.Int64("site_id", site.SiteID))
		siteLogger.Info("Processing site", zap.String("name", site.Name))

		skipReason, err := s.calculateSite(ctx, site)
		switch {
		case err != nil:
			// One broken site must not take down the batch; the marker stays
			// unset so the site is retried on the next run.
			siteLogger.Error("Profile calculation failed", zap.Error(err))
			summary.Failed++
		case skipReason != "":
			siteLogger.Info("Skipping site", zap.String("reason", skipReason))
			summary.Skipped++
		default:
			summary.Processed++
		}
	}

	logger.Info("Finished reference-year profile calculation",
		zap.Int("processed", summary.Processed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))

	return summary, nil
}

// calculateSite runs the full pipeline for one site. A non-empty skip reason
// is a normal "not yet eligible" outcome, not an error; errors are reserved
// for storage failures.
func (s *profileService) calculateSite(ctx context.Context, site *models.Site) (string, error) {
	capacityWatts, err := ParsePeakPower(site.PeakPower)
	if err != nil || capacityWatts == 0 {
		return fmt.Sprintf("invalid or zero peak power %q", site.PeakPower), nil
	}

	samples, err := s.production.ListBySite(ctx, site.SiteID)
	if err != nil {
		return "", fmt.Errorf("failed to load production data: %w", err)
	}
	if len(samples) == 0 {
		return "no production data", nil
	}

	readings := coerceReadings(samples)
	if len(readings) == 0 {
		return "no valid production data after cleaning", nil
	}

	readings = dropUnproductiveDays(readings)
	if len(readings) == 0 {
		return "no days with production above zero", nil
	}

	if months := countDistinctMonths(readings); months < s.cfg.MinCoverageMonths {
		return fmt.Sprintf("incomplete yearly coverage (%d/%d months)", months, s.cfg.MinCoverageMonths), nil
	}

	normalized := normalizeToReferenceYear(readings, s.cfg.ReferenceYear)
	intervals := averageIntervals(site.SiteID, normalized, capacityWatts)
	if len(intervals) == 0 {
		return "no intervals after averaging", nil
	}

	if err := s.profiles.Replace(ctx, site.SiteID, intervals, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("failed to store profile: %w", err)
	}

	s.logger.Info("Stored reference-year profile",
		zap.Int64("site_id", site.SiteID),
		zap.Int("intervals", len(intervals)),
		zap.Float64("capacity_watts", capacityWatts))

	return "", nil
}

// reading is one coerced production sample.
type reading struct {
	ts    time.Time
	watts float64
}

// coerceReadings converts raw production strings to numbers, dropping rows
// that fail coercion. Timestamps are normalized to UTC so calendar grouping
// is stable regardless of the driver's session time zone.
func coerceReadings(samples []models.ProductionSample) []reading {
	readings := make([]reading, 0, len(samples))
	for _, s := range samples {
		w, err := strconv.ParseFloat(strings.TrimSpace(s.Production), 64)
		if err != nil {
			continue
		}
		readings = append(readings, reading{ts: s.Timestamp.UTC(), watts: w})
	}
	return readings
}

// dropUnproductiveDays removes every reading belonging to a calendar day
// whose total production is not strictly positive. Fully offline days carry
// no signal about typical generation and would drag the average down.
func dropUnproductiveDays(readings []reading) []reading {
	dailyTotal := make(map[string]float64)
	for _, r := range readings {
		dailyTotal[r.ts.Format("2006-01-02")] += r.watts
	}

	kept := make([]reading, 0, len(readings))
	for _, r := range readings {
		if dailyTotal[r.ts.Format("2006-01-02")] > 0 {
			kept = append(kept, r)
		}
	}
	return kept
}

// countDistinctMonths counts calendar months (1-12, year-independent) that
// have at least one retained reading. Any sample in a month counts; this is
// deliberately a coarse coverage check.
func countDistinctMonths(readings []reading) int {
	var seen [13]bool
	count := 0
	for _, r := range readings {
		m := int(r.ts.Month())
		if !seen[m] {
			seen[m] = true
			count++
		}
	}
	return count
}

// normalizeToReferenceYear rewrites each reading's year to the reference
// year, preserving month, day and time of day. The reference year is a leap
// year, so Feb 29 samples map cleanly instead of sliding into March.
func normalizeToReferenceYear(readings []reading, year int) []reading {
	normalized := make([]reading, len(readings))
	for i, r := range readings {
		normalized[i] = reading{
			ts: time.Date(year, r.ts.Month(), r.ts.Day(),
				r.ts.Hour(), r.ts.Minute(), r.ts.Second(), 0, time.UTC),
			watts: r.watts,
		}
	}
	return normalized
}

// averageIntervals groups readings by normalized timestamp, averages each
// slot across contributing years and converts to a per-kW ratio. Slots with
// no contributing samples simply do not appear.
func averageIntervals(siteID int64, readings []reading, capacityWatts float64) []models.ProfileInterval {
	type acc struct {
		sum   float64
		count int
	}
	slots := make(map[time.Time]*acc, len(readings))
	for _, r := range readings {
		a := slots[r.ts]
		if a == nil {
			a = &acc{}
			slots[r.ts] = a
		}
		a.sum += r.watts
		a.count++
	}

	intervals := make([]models.ProfileInterval, 0, len(slots))
	for ts, a := range slots {
		intervals = append(intervals, models.ProfileInterval{
			SiteID:             siteID,
			ReferenceTimestamp: ts,
			PerKWGeneration:    (a.sum / float64(a.count)) / capacityWatts,
		})
	}

	sort.Slice(intervals, func(i, j int) bool {
		return intervals[i].ReferenceTimestamp.Before(intervals[j].ReferenceTimestamp)
	})

	return intervals
}
