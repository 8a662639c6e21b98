// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package tractionrec

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tomtom215/tractionsync/internal/soql"
)

// recordingAPI captures built queries and answers with a fixed page or error.
type recordingAPI struct {
	queries  []string
	contexts []string
	next     []string
	page     *PageResult
	err      error
}

func (a *recordingAPI) ExecuteQuery(_ context.Context, q *soql.Query, alterContext string) (*PageResult, error) {
	built, err := q.Build()
	if err != nil {
		return nil, err
	}
	a.queries = append(a.queries, built)
	a.contexts = append(a.contexts, alterContext)
	if a.err != nil {
		return nil, a.err
	}
	if a.page != nil {
		return a.page, nil
	}
	return &PageResult{Done: true}, nil
}

func (a *recordingAPI) NextPage(_ context.Context, nextURL string) (*PageResult, error) {
	a.next = append(a.next, nextURL)
	if a.err != nil {
		return nil, a.err
	}
	return &PageResult{Done: true}, nil
}

func TestGatewayQueries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		call     func(g *Gateway) error
		op       string
		contains []string
		excludes []string
	}{
		{
			name: "locations",
			call: func(g *Gateway) error { _, err := g.LoadLocations(context.Background()); return err },
			op:   OpLocations,
			contains: []string{
				"FROM TREX1__Location__c",
				"TREX1__Location__c.TREX1__Address_City__c",
			},
			excludes: []string{"WHERE"},
		},
		{
			name: "courses",
			call: func(g *Gateway) error { _, err := g.LoadCourses(context.Background()); return err },
			op:   OpCourses,
			contains: []string{
				"FROM TREX1__Course__c WHERE TREX1__Course__c.TREX1__Available_Online__c = true",
			},
		},
		{
			name: "course options for mapped locations",
			call: func(g *Gateway) error {
				_, err := g.LoadCourseOptions(context.Background(), []string{"a01", "a02"})
				return err
			},
			op: OpCourseOptions,
			contains: []string{
				"FROM TREX1__Course_Session_Option__c WHERE",
				"TREX1__Course_Option__r.TREX1__Register_Online_To_Date__c > YESTERDAY",
				"TREX1__Course_Option__r.TREX1__End_Date__c >= TODAY",
				"TREX1__Course_Session__r.TREX1__Num_Option_Entitlements__c <= 1",
				"TREX1__Course_Option__r.TREX1__Location__c IN ('a01', 'a02')",
			},
		},
		{
			name:     "course options unfiltered",
			call:     func(g *Gateway) error { _, err := g.LoadCourseOptions(context.Background(), nil); return err },
			op:       OpCourseOptions,
			excludes: []string{" IN "},
		},
		{
			name: "memberships for one location",
			call: func(g *Gateway) error { _, err := g.LoadMemberships(context.Background(), "loc'1"); return err },
			op:   OpMemberships,
			contains: []string{
				"TREX1__Membership_Type__c.TREX1__Available_For_Purchase__c = true",
				`TREX1__Membership_Type__c.TREX1__Location__r.id = 'loc\'1'`,
			},
		},
		{
			name: "program category tags",
			call: func(g *Gateway) error { _, err := g.LoadProgramCategoryTags(context.Background()); return err },
			op:   OpProgramCategoryTag,
			contains: []string{
				"TREX1__Program__r.TREX1__Available_Online__c = true AND TREX1__Program_Category__r.TREX1__Available_Online__c = true",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := &recordingAPI{}
			if err := tt.call(NewGateway(api)); err != nil {
				t.Fatalf("call error = %v", err)
			}
			if len(api.queries) != 1 {
				t.Fatalf("queries = %d, want 1", len(api.queries))
			}
			if api.contexts[0] != tt.op {
				t.Errorf("alter context = %q, want %q", api.contexts[0], tt.op)
			}
			for _, s := range tt.contains {
				if !strings.Contains(api.queries[0], s) {
					t.Errorf("query missing %q:\n%s", s, api.queries[0])
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(api.queries[0], s) {
					t.Errorf("query should not contain %q:\n%s", s, api.queries[0])
				}
			}
		})
	}
}

func TestGatewayWrapsErrors(t *testing.T) {
	t.Parallel()

	api := &recordingAPI{err: ErrInvalidToken}
	g := NewGateway(api)

	_, err := g.LoadLocations(context.Background())
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("LoadLocations() error = %v, want ErrInvalidToken", err)
	}
	if !strings.HasPrefix(err.Error(), "can't load the list of locations") {
		t.Errorf("error = %q", err)
	}

	_, err = g.LoadNextPage(context.Background(), "/next")
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("LoadNextPage() error = %v, want ErrInvalidToken", err)
	}
}

func TestLoadTotalAvailableSwallowsErrors(t *testing.T) {
	t.Parallel()

	api := &recordingAPI{err: newInvalidResponseError(500, nil)}
	page, err := NewGateway(api).LoadTotalAvailable(context.Background(), []string{"a01"})
	if err != nil {
		t.Fatalf("LoadTotalAvailable() error = %v, want nil", err)
	}
	if page == nil || len(page.Records) != 0 || page.NextRecordsURL != "" {
		t.Errorf("page = %+v, want empty", page)
	}
}
