package models

import "time"

// ProductionSample is one observed instantaneous power reading for a site.
// Production is kept as the raw text the export feed delivered (quoted
// numbers, empty cells and garbage included); numeric coercion happens in
// the profile pipeline, which drops rows that fail to parse.
type ProductionSample struct {
	SiteID     int64
	Timestamp  time.Time
	Production string
}
