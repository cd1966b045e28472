package models

import "time"

// Site is one registered solar installation. Free-text fields arrive verbatim
// from the upstream monitoring portal and are never normalized in storage;
// PeakPower in particular may be a bare kW number ("9.87") or carry a unit
// suffix ("4.5kWp", "5000 W").
type Site struct {
	SiteID            int64
	Name              string
	Status            string
	PeakPower         string
	Type              string
	ZipCode           string
	Address           string
	SecondaryAddress  string
	Country           string
	State             string
	City              string
	Location          string
	InstallationDate  string
	LastReportingTime string

	// UpdatedOn is when site metadata or its CSV export was last refreshed.
	UpdatedOn *time.Time
	// HasCSV marks that a chart-export CSV has been downloaded for this site.
	HasCSV bool
	// UploadedOn marks that the downloaded CSV has been ingested into
	// site_production_data. Nil means ingestion is still pending.
	UploadedOn *time.Time
	// ProfileUpdatedOn marks that a reference-year profile has been computed.
	// Nil means the site is still a candidate for profile calculation.
	ProfileUpdatedOn *time.Time
}
