package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gridshift-energy/solar-profiler/pkg/config"
	"github.com/gridshift-energy/solar-profiler/pkg/models"
	"github.com/gridshift-energy/solar-profiler/pkg/repositories"
)

// DownloadSummary reports the outcome of one CSV download run.
type DownloadSummary struct {
	Downloaded int
	Skipped    int
	Failed     int
}

// CSVDownloader fetches each candidate site's chart-export CSV and stores it
// under the configured data directory.
type CSVDownloader interface {
	DownloadAll(ctx context.Context) (DownloadSummary, error)
}

type csvDownloader struct {
	client *http.Client
	cfg    config.DownloadConfig
	sites  repositories.SiteRepository
	logger *zap.Logger
}

// NewCSVDownloader creates a new CSVDownloader.
func NewCSVDownloader(cfg config.DownloadConfig, sites repositories.SiteRepository, logger *zap.Logger) CSVDownloader {
	return &csvDownloader{
		client: &http.Client{Timeout: cfg.RequestTimeout},
		cfg:    cfg,
		sites:  sites,
		logger: logger.Named("csv-downloader"),
	}
}

var _ CSVDownloader = (*csvDownloader)(nil)

func (s *csvDownloader) DownloadAll(ctx context.Context) (DownloadSummary, error) {
	var summary DownloadSummary
	if s.cfg.BaseURL == "" {
		return summary, fmt.Errorf("chart export base URL is not configured")
	}

	candidates, err := s.sites.ListDownloadCandidates(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list download candidates: %w", err)
	}

	s.logger.Info("Starting CSV download run", zap.Int("candidates", len(candidates)))

	for _, site := range candidates {
		siteLogger := s.logger.With(zap.Int64("site_id", site.SiteID))

		skipReason, err := s.downloadSite(ctx, site)
		switch {
		case err != nil:
			siteLogger.Error("CSV download failed", zap.Error(err))
			summary.Failed++
		case skipReason != "":
			siteLogger.Info("Skipping site", zap.String("reason", skipReason))
			summary.Skipped++
		default:
			summary.Downloaded++
		}
	}

	s.logger.Info("Finished CSV download run",
		zap.Int("downloaded", summary.Downloaded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))

	return summary, nil
}

func (s *csvDownloader) downloadSite(ctx context.Context, site *models.Site) (string, error) {
	window, skipReason := s.exportWindow(site)
	if skipReason != "" {
		return skipReason, nil
	}

	params := url.Values{
		"st":        {strconv.FormatInt(window.start.UnixMilli(), 10)},
		"et":        {strconv.FormatInt(window.end.UnixMilli(), 10)},
		"fid":       {strconv.FormatInt(site.SiteID, 10)},
		"timeUnit":  {"2"},
		"pn0":       {"Power"},
		"id0":       {"0"},
		"t0":        {"0"},
		"hasMeters": {"false"},
	}
	exportURL := fmt.Sprintf(s.cfg.BaseURL, site.SiteID) + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, exportURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("export request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	path := s.csvPath(site)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create csv directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create csv file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write csv file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close csv file: %w", err)
	}

	now := time.Now().UTC()
	if err := s.sites.MarkCSVDownloaded(ctx, site.SiteID, now); err != nil {
		return "", err
	}

	s.logger.Info("Downloaded CSV",
		zap.Int64("site_id", site.SiteID),
		zap.String("path", path),
		zap.Time("window_start", window.start),
		zap.Time("window_end", window.end))

	return "", nil
}

type exportWindow struct {
	start time.Time
	end   time.Time
}

// exportWindow derives the st/et request window for a site. Start prefers
// the last refresh time, then the recorded installation date, clamped to the
// configured minimum. End prefers the site's last reporting time, else now.
func (s *csvDownloader) exportWindow(site *models.Site) (exportWindow, string) {
	var start time.Time
	switch {
	case site.UpdatedOn != nil:
		start = site.UpdatedOn.UTC()
	case site.InstallationDate != "":
		parsed, ok := parseLooseTimestamp(site.InstallationDate)
		if !ok {
			return exportWindow{}, fmt.Sprintf("unparseable installation date %q", site.InstallationDate)
		}
		start = parsed
	default:
		return exportWindow{}, "no usable start date (updated_on and installation_date missing)"
	}

	if minStart := s.cfg.MinStartTime(); start.Before(minStart) {
		start = minStart
	}

	end, ok := parseLooseTimestamp(site.LastReportingTime)
	if !ok {
		end = time.Now().UTC()
	}

	if end.Before(start) {
		return exportWindow{}, "last reporting time is earlier than start date, no new data"
	}

	return exportWindow{start: start, end: end}, ""
}

// csvPath is <csv_dir>/<country>/<state>/<city>/<siteID>_<name>.csv with
// every free-text part sanitized for the filesystem.
func (s *csvDownloader) csvPath(site *models.Site) string {
	return filepath.Join(
		s.cfg.CSVDir,
		sanitizePathPart(site.Country),
		sanitizePathPart(site.State),
		sanitizePathPart(site.City),
		fmt.Sprintf("%d_%s.csv", site.SiteID, sanitizePathPart(site.Name)),
	)
}

var (
	unsafePathChars = regexp.MustCompile(`[^\w\s-]`)
	pathSeparators  = regexp.MustCompile(`[-\s]+`)
)

func sanitizePathPart(part string) string {
	part = unsafePathChars.ReplaceAllString(part, "")
	part = strings.TrimSpace(part)
	part = pathSeparators.ReplaceAllString(part, "-")
	if part == "" {
		return "unknown"
	}
	return part
}

// looseTimestampLayouts are the formats the portal has been seen using for
// installation dates and last reporting times.
var looseTimestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006",
	"01/02/2006 15:04",
}

func parseLooseTimestamp(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range looseTimestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
