// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package migrate

import (
	"context"
	"errors"

	"github.com/tomtom215/tractionsync/internal/locations"
	"github.com/tomtom215/tractionsync/internal/store"
	"github.com/tomtom215/tractionsync/internal/tractionrec"
	"github.com/tomtom215/tractionsync/internal/transform"
)

// Memberships imports memberships.json: one node per membership category
// holding its membership types.
func (d *Deps) Memberships() *RowMigration {
	return NewRowMigration(Spec{
		ID:     IDMemberships,
		Source: FileMemberships,
		Rows:   d.membershipRow,
	}, d.Store)
}

func (d *Deps) membershipRow(ctx context.Context, rec tractionrec.Record) (transform.Result[Row], error) {
	group, err := tractionrec.DecodeMembershipGroup(rec)
	if err != nil {
		return transform.SkipRow[Row](err.Error()), nil
	}
	if len(group.Memberships) == 0 {
		return transform.SkipRow[Row]("Membership category has no membership types"), nil
	}

	items := make([]map[string]any, 0, len(group.Memberships))
	for _, m := range group.Memberships {
		item, err := d.membershipItem(ctx, m)
		if err != nil {
			return transform.Result[Row]{}, err
		}
		items = append(items, item)
	}

	return transform.Ok(Row{
		SourceID: group.Category.ID,
		Node: store.Node{
			Type:   NodeMembership,
			Title:  group.Category.Name,
			Status: true,
			Fields: map[string]any{
				"tr_id":       group.Category.ID,
				"description": str(group.Category.Description),
				"url":         str(group.Category.URL),
				"type":        transform.MembershipType(d.MembershipType),
				"memberships": items,
			},
		},
	}), nil
}

func (d *Deps) membershipItem(ctx context.Context, m tractionrec.MembershipType) (map[string]any, error) {
	rates := transform.ExtractRates(str(m.PriceDescription))
	item := map[string]any{
		"id":                  m.ID,
		"name":                m.Name,
		"description":         str(m.Description),
		"link":                transform.MembershipLink(d.CommunityURL, m.ID, m.LocationID),
		"join_fee":            rates.Join,
		"monthly_fee":         rates.Monthly,
		"cancellation_policy": str(m.CancellationPolicy),
		"location_id":         m.LocationID,
		"location_name":       m.LocationName,
	}

	if m.LocationID != "" || m.LocationName != "" {
		branch, err := d.Resolver.Resolve(ctx, m.LocationID, m.LocationName)
		switch {
		case err == nil:
			item["branch"] = branch
		case !errors.Is(err, locations.ErrNodeNotFound):
			return nil, err
		}
	}

	groups := make([]map[string]any, 0, len(m.AgeGroups))
	for _, g := range m.AgeGroups {
		groups = append(groups, map[string]any{
			"name":        g.Name,
			"min_months":  transform.YearsToMonths(g.MinAge),
			"max_months":  transform.YearsToMonths(g.MaxAge),
			"max_allowed": g.MaxAllowed,
		})
	}
	item["age_groups"] = groups
	return item, nil
}
