package models

import "time"

// ProfileInterval is one slot of a site's typical-year generation profile:
// the mean observed power for that time-of-year divided by nameplate capacity.
// ReferenceTimestamp always carries the configured reference year regardless
// of which real years contributed samples, and is unique per site.
type ProfileInterval struct {
	SiteID             int64
	ReferenceTimestamp time.Time
	PerKWGeneration    float64
}
