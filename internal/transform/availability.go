// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package transform

import (
	"math"
	"strconv"
)

// UnlimitedAvailability is reported for options without a capacity limit.
const UnlimitedAvailability = 100

// Availability returns the bookable spots for an option. TractionRec lets
// classes be overbooked, so negative values are clamped to zero.
func Availability(unlimited bool, available *float64) int {
	if unlimited {
		return UnlimitedAvailability
	}
	if available == nil {
		return 0
	}
	return max(int(*available), 0)
}

// YearsToMonths multiplies a numeric age in years by 12. Non-numeric input
// yields nil.
func YearsToMonths(v any) *float64 {
	var years float64
	switch x := v.(type) {
	case float64:
		years = x
	case *float64:
		if x == nil {
			return nil
		}
		years = *x
	case int:
		years = float64(x)
	case int64:
		years = float64(x)
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return nil
		}
		years = f
	default:
		return nil
	}
	if math.IsNaN(years) || math.IsInf(years, 0) {
		return nil
	}
	months := years * 12
	return &months
}
