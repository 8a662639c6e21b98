// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package migrate

import (
	"context"

	"github.com/tomtom215/tractionsync/internal/locations"
	"github.com/tomtom215/tractionsync/internal/transform"
)

// Migration ids.
const (
	IDPrograms    = "tr_programs"
	IDCategories  = "tr_categories"
	IDClasses     = "tr_classes"
	IDSessions    = "tr_sessions"
	IDMemberships = "tr_memberships_import"
)

// Group names.
const (
	GroupSessions    = "tr_import"
	GroupMemberships = "tr_membership_import"
)

// Staged file names, as written by the fetcher.
const (
	FilePrograms          = "programs.json"
	FileProgramCategories = "program_categories.json"
	FileClasses           = "classes.json"
	FileSessions          = "sessions.json"
	FileLocations         = "locations.json"
	FileMemberships       = "memberships.json"
)

// Node types written by the migrations.
const (
	NodeProgram     = "program"
	NodeCategory    = "program_subcategory"
	NodeClass       = "class"
	NodeSession     = "session"
	NodeMembership  = "membership"
	ParagraphWindow = "session_time"
)

// Deps are the collaborators the TractionRec migrations share.
type Deps struct {
	Store          Store
	Resolver       *locations.Resolver
	Clock          *transform.Clock
	CommunityURL   string
	MembershipType string
}

// RegisterDefaults registers the session migrations under sessionsGroup in
// dependency order, and the membership migration under membershipsGroup.
func RegisterDefaults(e *Engine, d *Deps, sessionsGroup, membershipsGroup string) {
	if sessionsGroup == "" {
		sessionsGroup = GroupSessions
	}
	if membershipsGroup == "" {
		membershipsGroup = GroupMemberships
	}
	e.Register(sessionsGroup, d.Programs())
	e.Register(sessionsGroup, d.Categories())
	e.Register(sessionsGroup, d.Classes())
	e.Register(sessionsGroup, d.Sessions())
	e.Register(membershipsGroup, d.Memberships())
}

// dest resolves a source id through another migration's map. A mapping
// whose node is gone counts as not found.
func (d *Deps) dest(ctx context.Context, migration, sourceID string) (int64, bool, error) {
	if sourceID == "" {
		return 0, false, nil
	}
	e, ok, err := d.Store.LookupDest(ctx, migration, sourceID)
	if err != nil || !ok {
		return 0, false, err
	}
	exists, err := d.Store.NodeExists(ctx, e.DestID)
	if err != nil {
		return 0, false, err
	}
	return e.DestID, exists, nil
}

func (d *Deps) lookupIn(migration string) transform.DestLookup {
	return func(ctx context.Context, sourceID string) (int64, bool, error) {
		return d.dest(ctx, migration, sourceID)
	}
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
