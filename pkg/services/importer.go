package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/gridshift-energy/solar-profiler/pkg/config"
	"github.com/gridshift-energy/solar-profiler/pkg/jsonutil"
	"github.com/gridshift-energy/solar-profiler/pkg/models"
	"github.com/gridshift-energy/solar-profiler/pkg/repositories"
	"github.com/gridshift-energy/solar-profiler/pkg/retry"
)

// ImportSummary reports the outcome of one site metadata import run.
type ImportSummary struct {
	Stored int
	Failed int
}

// SiteImporter pulls site metadata from the monitoring portal's paged API
// and upserts it into the site registry.
type SiteImporter interface {
	ImportAll(ctx context.Context) (ImportSummary, error)
}

type siteImporter struct {
	client *http.Client
	cfg    config.APIConfig
	sites  repositories.SiteRepository
	logger *zap.Logger
}

// NewSiteImporter creates a new SiteImporter.
func NewSiteImporter(cfg config.APIConfig, sites repositories.SiteRepository, logger *zap.Logger) SiteImporter {
	return &siteImporter{
		client: &http.Client{Timeout: cfg.RequestTimeout},
		cfg:    cfg,
		sites:  sites,
		logger: logger.Named("site-importer"),
	}
}

var _ SiteImporter = (*siteImporter)(nil)

// sitePage is one page of the portal's site listing. The payload is only
// JSON-shaped, so records stay raw until field-level tolerant decoding.
type sitePage struct {
	TotalCount int64             `json:"totalCount"`
	Records    []json.RawMessage `json:"records"`
}

func (s *siteImporter) ImportAll(ctx context.Context) (ImportSummary, error) {
	var summary ImportSummary
	if s.cfg.BaseURL == "" {
		return summary, fmt.Errorf("sites API base URL is not configured")
	}

	s.logger.Info("Starting site metadata import",
		zap.String("base_url", s.cfg.BaseURL),
		zap.Int("page_size", s.cfg.PageSize))

	start := 0
	emptyBatches := 0
	for {
		if s.cfg.MaxRecords > 0 && summary.Stored >= s.cfg.MaxRecords {
			s.logger.Info("Reached configured record cap, stopping",
				zap.Int("max_records", s.cfg.MaxRecords))
			break
		}

		page, err := s.fetchPage(ctx, start)
		if err != nil {
			// The retry budget is already spent; a page that still fails
			// ends the run rather than leaving a gap in the paging window.
			return summary, fmt.Errorf("failed to fetch page at offset %d: %w", start, err)
		}

		s.logger.Debug("Fetched page",
			zap.Int("offset", start),
			zap.Int("records", len(page.Records)),
			zap.Int64("total_count", page.TotalCount))

		if len(page.Records) == 0 {
			emptyBatches++
			if emptyBatches >= s.cfg.MaxEmptyBatches {
				s.logger.Warn("Stopping after consecutive empty batches",
					zap.Int("empty_batches", emptyBatches))
				break
			}
		} else {
			emptyBatches = 0
			stored, failed := s.storeRecords(ctx, page.Records)
			summary.Stored += stored
			summary.Failed += failed
		}

		start += s.cfg.PageSize
		if page.TotalCount > 0 && int64(start) >= page.TotalCount {
			s.logger.Info("Fetched all records reported by the API",
				zap.Int64("total_count", page.TotalCount))
			break
		}

		select {
		case <-time.After(s.cfg.RequestDelay):
		case <-ctx.Done():
			return summary, ctx.Err()
		}
	}

	s.logger.Info("Finished site metadata import",
		zap.Int("stored", summary.Stored),
		zap.Int("failed", summary.Failed))

	return summary, nil
}

func (s *siteImporter) fetchPage(ctx context.Context, start int) (*sitePage, error) {
	params := url.Values{
		"start":    {strconv.Itoa(start)},
		"limit":    {strconv.Itoa(s.cfg.PageSize)},
		"sort":     {"maxImpact"},
		"dir":      {"ASC"},
		"status":   {"0"},
		"category": {"0"},
		"filter":   {""},
		"showMap":  {"false"},
	}

	retryCfg := &retry.Config{
		MaxRetries:   s.cfg.MaxRetries,
		InitialDelay: s.cfg.RetryDelay,
		MaxDelay:     s.cfg.RetryDelay,
		Multiplier:   1.0,
	}

	return retry.DoWithResult(ctx, retryCfg, func() (*sitePage, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			s.cfg.BaseURL+"?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		var page sitePage
		if err := jsonutil.Decode(string(body), &page); err != nil {
			return nil, err
		}
		return &page, nil
	})
}

func (s *siteImporter) storeRecords(ctx context.Context, records []json.RawMessage) (stored, failed int) {
	for _, raw := range records {
		site, err := decodeSiteRecord(raw)
		if err != nil {
			s.logger.Warn("Skipping malformed site record", zap.Error(err))
			failed++
			continue
		}

		if err := s.sites.Upsert(ctx, site); err != nil {
			s.logger.Error("Failed to store site record",
				zap.Int64("site_id", site.SiteID), zap.Error(err))
			failed++
			continue
		}
		stored++
	}
	return stored, failed
}

// decodeSiteRecord maps one raw API record onto a Site. Field values may be
// strings, numbers or booleans depending on the portal's mood, so every
// field goes through flexible decoding.
func decodeSiteRecord(raw json.RawMessage) (*models.Site, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("record is not an object: %w", err)
	}

	siteID, ok := jsonutil.FlexibleInt64(fields["id"])
	if !ok {
		return nil, fmt.Errorf("record has no usable id: %s", truncate(string(raw), 120))
	}

	return &models.Site{
		SiteID:            siteID,
		Name:              jsonutil.FlexibleString(fields["urlName"]),
		Type:              jsonutil.FlexibleString(fields["type"]),
		Status:            jsonutil.FlexibleString(fields["status"]),
		LastReportingTime: jsonutil.FlexibleString(fields["lastReportingTime"]),
		InstallationDate:  jsonutil.FlexibleString(fields["installationDate"]),
		Country:           jsonutil.FlexibleString(fields["country"]),
		State:             jsonutil.FlexibleString(fields["state"]),
		Location:          jsonutil.FlexibleString(fields["location"]),
		PeakPower:         jsonutil.FlexibleString(fields["peakPower"]),
		Address:           jsonutil.FlexibleString(fields["address"]),
		SecondaryAddress:  jsonutil.FlexibleString(fields["secondaryAddress"]),
		City:              jsonutil.FlexibleString(fields["city"]),
		ZipCode:           jsonutil.FlexibleString(fields["zip"]),
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
