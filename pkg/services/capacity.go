package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gridshift-energy/solar-profiler/pkg/apperrors"
)

var (
	kilowattRe = regexp.MustCompile(`([\d.]+)\s*k`)
	wattRe     = regexp.MustCompile(`([\d.]+)\s*w`)
)

// ParsePeakPower parses a site's free-text nameplate capacity and returns
// power in watts. A bare number is read as kilowatts ("9.87" -> 9870). When
// that fails it falls back to unit-suffix extraction: a number followed by a
// k-token is kilowatts ("4.5kWp" -> 4500), a number followed by a w-token is
// watts ("5000 W" -> 5000). Anything else is apperrors.ErrCapacityUnparseable.
func ParsePeakPower(peakPower string) (float64, error) {
	if peakPower == "" {
		return 0, apperrors.ErrCapacityUnparseable
	}

	if kw, err := strconv.ParseFloat(strings.TrimSpace(peakPower), 64); err == nil {
		return kw * 1000, nil
	}

	cleaned := strings.ToLower(peakPower)

	if m := kilowattRe.FindStringSubmatch(cleaned); m != nil {
		if kw, err := strconv.ParseFloat(m[1], 64); err == nil {
			return kw * 1000, nil
		}
	}

	if m := wattRe.FindStringSubmatch(cleaned); m != nil {
		if w, err := strconv.ParseFloat(m[1], 64); err == nil {
			return w, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", apperrors.ErrCapacityUnparseable, peakPower)
}
