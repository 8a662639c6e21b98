// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package fetch

import (
	"context"
	"maps"
	"slices"

	"github.com/tomtom215/tractionsync/internal/jsonstream"
	"github.com/tomtom215/tractionsync/internal/logging"
	"github.com/tomtom215/tractionsync/internal/tractionrec"
)

// Working directory file names.
const (
	FilePrograms          = "programs.json"
	FileProgramCategories = "program_categories.json"
	FileClasses           = "classes.json"
	FileSessions          = "sessions.json"
	FileLocations         = "locations.json"
	FileMemberships       = "memberships.json"
)

// FetchSessions streams the bookable course options of the mapped
// locations to sessions.json. No file is written when there are none.
func (f *Fetcher) FetchSessions(ctx context.Context) (*tractionrec.PageResult, error) {
	page, err := f.gw.LoadCourseOptions(ctx, f.mapping.MappedIDs())
	if err != nil {
		return nil, err
	}
	return page, f.stream(ctx, FileSessions, page)
}

// FetchClasses streams the courses to classes.json.
func (f *Fetcher) FetchClasses(ctx context.Context) (*tractionrec.PageResult, error) {
	page, err := f.gw.LoadCourses(ctx)
	if err != nil {
		return nil, err
	}
	return page, f.stream(ctx, FileClasses, page)
}

// stream writes the first page and every following page to name.
func (f *Fetcher) stream(ctx context.Context, name string, first *tractionrec.PageResult) (err error) {
	if first == nil || len(first.Records) == 0 {
		return nil
	}
	d, err := jsonstream.Create(f.path(name))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := d.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := jsonstream.PushAll(d, first.Records); err != nil {
		return err
	}
	if first.NextRecordsURL == "" {
		return nil
	}
	_, err = f.PaginationFetch(ctx, first.NextRecordsURL, d)
	return err
}

// PaginationFetch follows nextURL until a page has no next link or no
// records. With a dumper every page is pushed to it as it arrives and
// nothing is kept in memory; without one the records of all pages are
// returned in order.
func (f *Fetcher) PaginationFetch(ctx context.Context, nextURL string, d *jsonstream.Dumper) ([]tractionrec.Record, error) {
	var all []tractionrec.Record
	for nextURL != "" {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		page, err := f.gw.LoadNextPage(ctx, nextURL)
		if err != nil {
			return all, err
		}
		if len(page.Records) == 0 {
			break
		}
		if d != nil {
			if err := jsonstream.PushAll(d, page.Records); err != nil {
				return all, err
			}
		} else {
			all = append(all, page.Records...)
		}
		nextURL = page.NextRecordsURL
	}
	return all, nil
}

// FetchLocations writes locations.json. Locations without a city cannot be
// placed and are left out.
func (f *Fetcher) FetchLocations(ctx context.Context) (*tractionrec.PageResult, error) {
	page, err := f.gw.LoadLocations(ctx)
	if err != nil {
		return nil, err
	}
	if page == nil || len(page.Records) == 0 {
		return page, nil
	}

	kept := make([]tractionrec.Record, 0, len(page.Records))
	for _, rec := range page.Records {
		if city, _ := rec["Address_City"].(string); city != "" {
			kept = append(kept, rec)
		}
	}
	return page, jsonstream.WriteFile(f.path(FileLocations), kept)
}

// FetchProgramAndCategories splits the program category tags into
// programs.json and program_categories.json. Locally the naming is the
// other way round: a remote Program Category is a program and a remote
// Program is a category, stored with its program under "Program".
//
// A remote Program can sit under several Program Categories. Only the first
// pairing is kept.
func (f *Fetcher) FetchProgramAndCategories(ctx context.Context) (*tractionrec.PageResult, error) {
	page, err := f.gw.LoadProgramCategoryTags(ctx)
	if err != nil {
		return nil, err
	}
	if page == nil || len(page.Records) == 0 {
		return page, nil
	}

	var (
		programs      []tractionrec.Record
		programIndex  = make(map[string]int)
		categories    []tractionrec.Record
		seenCategory  = make(map[string]bool)
		skippedRecord int
	)
	for _, rec := range page.Records {
		if _, err := tractionrec.DecodeProgramCategoryTag(rec); err != nil {
			skippedRecord++
			continue
		}
		program, _ := rec["Program_Category"].(map[string]any)
		remote, _ := rec["Program"].(map[string]any)

		pid, _ := program["Id"].(string)
		if i, ok := programIndex[pid]; ok {
			programs[i] = program
		} else {
			programIndex[pid] = len(programs)
			programs = append(programs, program)
		}

		cid, _ := remote["Id"].(string)
		if seenCategory[cid] {
			continue
		}
		seenCategory[cid] = true
		category := maps.Clone(remote)
		category["Program"] = program
		categories = append(categories, category)
	}
	if skippedRecord > 0 {
		logging.Ctx(ctx).Warn().Int("skipped", skippedRecord).Msg("Program category tags without both sides were skipped")
	}

	if err := jsonstream.WriteFile(f.path(FilePrograms), programs); err != nil {
		return page, err
	}
	return page, jsonstream.WriteFile(f.path(FileProgramCategories), categories)
}

// FetchMemberships writes memberships.json: the purchasable membership
// types, minus excluded ids, grouped under their category. Types without a
// category are dropped. It returns the excluded ids.
func (f *Fetcher) FetchMemberships(ctx context.Context) (*tractionrec.PageResult, []string, error) {
	page, err := f.gw.LoadMemberships(ctx, f.cfg.MembershipLocationID)
	if err != nil {
		return nil, nil, err
	}
	if page == nil || len(page.Records) == 0 {
		return page, nil, nil
	}
	records := page.Records
	if page.NextRecordsURL != "" {
		rest, err := f.PaginationFetch(ctx, page.NextRecordsURL, nil)
		if err != nil {
			return page, nil, err
		}
		records = append(slices.Clip(records), rest...)
	}

	records, excluded := stripExcluded(records, f.cfg.MembershipExclude)
	page.TotalSize -= len(excluded)
	page.Records = records

	return page, excluded, jsonstream.WriteFile(f.path(FileMemberships), groupByCategory(records))
}

func (f *Fetcher) membershipStep(ctx context.Context) (StepResult, int, error) {
	page, excluded, err := f.FetchMemberships(ctx)
	if err != nil {
		return StepResult{}, 0, err
	}
	if page == nil {
		return StepResult{}, 0, nil
	}
	return StepResult{TotalSize: page.TotalSize, Done: page.Done, Excluded: excluded}, len(page.Records), nil
}

func stripExcluded(records []tractionrec.Record, exclude []string) ([]tractionrec.Record, []string) {
	if len(exclude) == 0 {
		return records, nil
	}
	var (
		kept     = make([]tractionrec.Record, 0, len(records))
		excluded []string
	)
	for _, rec := range records {
		id, _ := rec["Id"].(string)
		if slices.Contains(exclude, id) {
			excluded = append(excluded, id)
			continue
		}
		kept = append(kept, rec)
	}
	return kept, excluded
}

// groupByCategory nests each record under a copy of its Category, in the
// order categories first appear.
func groupByCategory(records []tractionrec.Record) []tractionrec.Record {
	var (
		groups []tractionrec.Record
		index  = make(map[string]int)
	)
	for _, rec := range records {
		category, _ := rec["Category"].(map[string]any)
		id, _ := category["Id"].(string)
		if id == "" {
			continue
		}
		i, ok := index[id]
		if !ok {
			group := maps.Clone(category)
			group["memberships"] = []any{}
			i = len(groups)
			index[id] = i
			groups = append(groups, group)
		}
		item := maps.Clone(rec)
		delete(item, "Category")
		groups[i]["memberships"] = append(groups[i]["memberships"].([]any), item)
	}
	return groups
}

// FetchTotalAvailable returns the capacity snapshot of the mapped
// locations' options, keyed by option id. Nothing is written to disk.
func (f *Fetcher) FetchTotalAvailable(ctx context.Context) (map[string]tractionrec.Capacity, error) {
	out := make(map[string]tractionrec.Capacity)
	page, err := f.gw.LoadTotalAvailable(ctx, f.mapping.MappedIDs())
	if err != nil {
		return out, err
	}
	if page == nil || len(page.Records) == 0 {
		return out, nil
	}
	records := page.Records
	if page.NextRecordsURL != "" {
		rest, err := f.PaginationFetch(ctx, page.NextRecordsURL, nil)
		if err != nil {
			return out, err
		}
		records = append(slices.Clip(records), rest...)
	}

	var bad int
	for _, rec := range records {
		c, err := tractionrec.DecodeCapacity(rec)
		if err != nil {
			bad++
			continue
		}
		out[c.OptionID] = c
	}
	if bad > 0 {
		logging.Ctx(ctx).Warn().Int("records", bad).Msg("Capacity rows without an option id were ignored")
	}
	return out, nil
}
