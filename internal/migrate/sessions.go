// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package migrate

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/tomtom215/tractionsync/internal/jsonstream"
	"github.com/tomtom215/tractionsync/internal/logging"
	"github.com/tomtom215/tractionsync/internal/store"
	"github.com/tomtom215/tractionsync/internal/tractionrec"
	"github.com/tomtom215/tractionsync/internal/transform"
)

// Programs imports programs.json. Each entry is a remote Program Category,
// which is a local program.
func (d *Deps) Programs() *RowMigration {
	return NewRowMigration(Spec{
		ID:     IDPrograms,
		Source: FilePrograms,
		Rows: func(_ context.Context, rec tractionrec.Record) (transform.Result[Row], error) {
			side, err := tractionrec.DecodeTagSide(rec)
			if err != nil {
				return transform.SkipRow[Row](err.Error()), nil
			}
			return transform.Ok(Row{
				SourceID: side.ID,
				Node: store.Node{
					Type:   NodeProgram,
					Title:  side.Name,
					Status: true,
					Fields: map[string]any{"tr_id": side.ID, "available": side.Available},
				},
			}), nil
		},
	}, d.Store)
}

// Categories imports program_categories.json. Each entry is a remote
// Program carrying its remote Program Category under "Program".
func (d *Deps) Categories() *RowMigration {
	return NewRowMigration(Spec{
		ID:     IDCategories,
		Source: FileProgramCategories,
		Rows: func(ctx context.Context, rec tractionrec.Record) (transform.Result[Row], error) {
			side, err := tractionrec.DecodeTagSide(rec)
			if err != nil {
				return transform.SkipRow[Row](err.Error()), nil
			}
			parentID := programOf(rec)
			program, found, err := d.dest(ctx, IDPrograms, parentID)
			if err != nil {
				return transform.Result[Row]{}, err
			}
			if !found {
				return transform.SkipRow[Row]("Program not found: " + parentID), nil
			}
			return transform.Ok(Row{
				SourceID: side.ID,
				Node: store.Node{
					Type:   NodeCategory,
					Title:  side.Name,
					Status: true,
					Fields: map[string]any{"tr_id": side.ID, "available": side.Available, "program": program},
				},
			}), nil
		},
	}, d.Store)
}

// Classes imports classes.json. A class needs its category; the program
// above the category is attached when it can be resolved.
func (d *Deps) Classes() *RowMigration {
	var programs map[string]string
	return NewRowMigration(Spec{
		ID:     IDClasses,
		Source: FileClasses,
		Prepare: func(ctx context.Context, dir string) error {
			idx, err := programIndex(dir)
			if err != nil {
				return err
			}
			if len(idx) == 0 {
				logging.Ctx(ctx).Debug().Msg("No program categories staged, classes get no program")
			}
			programs = idx
			return nil
		},
		Rows: func(ctx context.Context, rec tractionrec.Record) (transform.Result[Row], error) {
			course, err := tractionrec.DecodeCourse(rec)
			if err != nil {
				return transform.SkipRow[Row](err.Error()), nil
			}
			var remoteProgram string
			if course.Program != nil {
				remoteProgram = course.Program.ID
			}
			category, found, err := d.dest(ctx, IDCategories, remoteProgram)
			if err != nil {
				return transform.Result[Row]{}, err
			}
			if !found {
				return transform.SkipRow[Row]("Category not found: " + remoteProgram), nil
			}

			fields := map[string]any{
				"tr_id":            course.ID,
				"description":      str(course.Description),
				"rich_description": str(course.RichDescription),
				"category":         category,
			}
			program, err := transform.SubcategoryByProgram(ctx, programs, remoteProgram, d.lookupIn(IDPrograms))
			if err != nil {
				return transform.Result[Row]{}, err
			}
			if !program.Skipped() {
				fields["program"] = program.Value
			}
			return transform.Ok(Row{
				SourceID: course.ID,
				Node:     store.Node{Type: NodeClass, Title: course.Name, Status: true, Fields: fields},
			}), nil
		},
	}, d.Store)
}

// Sessions imports sessions.json, one row per course option.
func (d *Deps) Sessions() *RowMigration {
	return NewRowMigration(Spec{
		ID:     IDSessions,
		Source: FileSessions,
		Key:    optionID,
		Rows:   d.sessionRow,
	}, d.Store)
}

func (d *Deps) sessionRow(ctx context.Context, rec tractionrec.Record) (transform.Result[Row], error) {
	s, err := tractionrec.DecodeSession(rec)
	if err != nil {
		return transform.SkipRow[Row](err.Error()), nil
	}

	var locID, locName string
	if s.Location != nil {
		locID, locName = s.Location.ID, s.Location.Name
	}
	location, err := transform.LocationByTitle(ctx, d.Resolver, locID, locName)
	if err != nil {
		return transform.Result[Row]{}, err
	}
	if location.Skipped() {
		return transform.SkipRow[Row](location.Skip), nil
	}

	window := d.Clock.SessionTime(transform.SessionTimeInput{
		StartDate: str(s.StartDate),
		StartTime: str(s.StartTime),
		EndDate:   str(s.EndDate),
		EndTime:   str(s.EndTime),
		Days:      str(s.DayOfWeek),
	})
	if window.Skipped() {
		return transform.SkipRow[Row](window.Skip), nil
	}
	registration := d.Clock.OnlineRegistrationTime(
		str(s.RegisterFromDate), str(s.RegisterFromTime), str(s.RegisterToDate), str(s.RegisterToTime))
	if registration.Skipped() {
		return transform.SkipRow[Row](registration.Skip), nil
	}

	fields := map[string]any{
		"tr_id":               s.ID,
		"course_session_id":   s.CourseSessionID,
		"location":            location.Value,
		"availability":        transform.Availability(s.UnlimitedCapacity, s.TotalCapacityAvailable),
		"capacity":            s.Capacity,
		"registration_link":   transform.RegistrationLink(d.CommunityURL, s.CourseSessionID, s.ID),
		"online_registration": registration.Value.Value(),
		"min_age":             transform.YearsToMonths(s.AgeMin),
		"max_age":             transform.YearsToMonths(s.AgeMax),
		"instructor":          str(s.Instructor),
		"price_description":   str(s.PriceDescription),
		"waitlist_unlimited":  s.UnlimitedWaitlist,
		"waitlist_capacity":   s.WaitlistTotal,
		"description":         str(s.CourseSessionRichDescription),
	}
	if s.Course != nil {
		class, found, err := d.dest(ctx, IDClasses, s.Course.ID)
		if err != nil {
			return transform.Result[Row]{}, err
		}
		if found {
			fields["class"] = class
		}
	}

	title := s.Name
	if title == "" && s.Course != nil {
		title = s.Course.Name
	}
	status := true
	if s.AvailableOnline != nil {
		status = *s.AvailableOnline
	}
	return transform.Ok(Row{
		SourceID:   s.ID,
		Node:       store.Node{Type: NodeSession, Title: title, Status: status, Fields: fields},
		Paragraphs: []Paragraph{{Type: ParagraphWindow, Data: window.Value.Paragraph()}},
	}), nil
}

// optionID keys session rows by their course option id.
func optionID(rec tractionrec.Record) string {
	opt, _ := rec["Course_Option"].(map[string]any)
	id, _ := opt["Id"].(string)
	return id
}

func programOf(rec tractionrec.Record) string {
	p, _ := rec["Program"].(map[string]any)
	id, _ := p["Id"].(string)
	return id
}

// programIndex maps remote Program ids to their remote Program Category id
// from the staged program_categories.json.
func programIndex(dir string) (map[string]string, error) {
	recs, err := jsonstream.ReadFile[tractionrec.Record](filepath.Join(dir, FileProgramCategories))
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	idx := make(map[string]string, len(recs))
	for _, rec := range recs {
		if id := TopLevelID(rec); id != "" {
			idx[id] = programOf(rec)
		}
	}
	return idx, nil
}
