// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package transform

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// RegistrationLink points at the community registration page of a course
// option.
func RegistrationLink(communityURL, courseSessionID, courseOptionID string) string {
	q := url.Values{}
	q.Set("courseSessionId", courseSessionID)
	q.Set("courseOptionId", courseOptionID)
	return strings.TrimRight(communityURL, "/") + "/s/registration?" + q.Encode()
}

// MembershipLink points at the community membership page for a membership
// type at a location.
func MembershipLink(communityURL, membershipID, locationID string) string {
	q := url.Values{}
	q.Set("t", membershipID)
	q.Set("l", locationID)
	return strings.TrimRight(communityURL, "/") + "/s/memberships?" + q.Encode()
}

// MembershipType returns the configured default membership type.
func MembershipType(defaultType string) string {
	return defaultType
}

// Rates are the fees parsed from a price description.
type Rates struct {
	Join    int `json:"join"`
	Monthly int `json:"monthly"`
}

var ratePattern = regexp.MustCompile(`(?i)(join fee|monthly fee):\s*\$(\d+)`)

// ExtractRates finds "Join Fee: $N" and "Monthly Fee: $N" in free text.
// Missing fees are zero; a repeated label keeps the last amount.
func ExtractRates(description string) Rates {
	var r Rates
	for _, m := range ratePattern.FindAllStringSubmatch(description, -1) {
		amount, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		switch strings.ToLower(m[1]) {
		case "join fee":
			r.Join = amount
		case "monthly fee":
			r.Monthly = amount
		}
	}
	return r
}
