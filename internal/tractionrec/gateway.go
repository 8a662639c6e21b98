// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package tractionrec

import (
	"context"
	"fmt"

	"github.com/tomtom215/tractionsync/internal/logging"
	"github.com/tomtom215/tractionsync/internal/soql"
)

// Alter contexts passed to the query hook, one per gateway operation.
const (
	OpLocations          = "locations"
	OpCourses            = "courses"
	OpCourseSessions     = "course_sessions"
	OpProgramCategoryTag = "program_category_tags"
	OpCourseOptions      = "course_options"
	OpMemberships        = "memberships"
	OpTotalAvailable     = "total_available"
)

// Gateway runs one query per domain concept and returns simplified results.
// Failures are logged and returned wrapped with the operation, keeping
// ErrInvalidToken and *InvalidResponseError reachable through errors.Is/As.
type Gateway struct {
	api API
}

// NewGateway creates a gateway over api.
func NewGateway(api API) *Gateway {
	return &Gateway{api: api}
}

// LoadLocations loads all locations.
func (g *Gateway) LoadLocations(ctx context.Context) (*PageResult, error) {
	q := soql.New("TREX1__Location__c").AddField(
		"TREX1__Location__c.id",
		"TREX1__Location__c.name",
		"TREX1__Location__c.TREX1__Address_City__c",
		"TREX1__Location__c.TREX1__Address_Country__c",
		"TREX1__Location__c.TREX1__Address_State__c",
		"TREX1__Location__c.TREX1__Address_Street__c",
		"TREX1__Location__c.TREX1__Address_Postal_Code__c",
	)
	return g.run(ctx, q, OpLocations, "can't load the list of locations")
}

// LoadCourses loads courses available online.
func (g *Gateway) LoadCourses(ctx context.Context) (*PageResult, error) {
	q := soql.New("TREX1__Course__c").AddField(
		"TREX1__Course__c.id",
		"TREX1__Course__c.name",
		"TREX1__Course__c.TREX1__Description__c",
		"TREX1__Course__c.TREX1__Rich_Description__c",
		"TREX1__Course__c.TREX1__Program__r.id",
		"TREX1__Course__c.TREX1__Program__r.name",
		"TREX1__Course__c.TREX1__Available__c",
	).AddCondition("TREX1__Course__c.TREX1__Available_Online__c", "true", "")
	return g.run(ctx, q, OpCourses, "can't load the list of courses")
}

// LoadCourseSessions loads course sessions available online.
func (g *Gateway) LoadCourseSessions(ctx context.Context) (*PageResult, error) {
	q := soql.New("TREX1__Course_Session__c").AddField(
		"TREX1__Course_Session__c.id",
		"TREX1__Course_Session__c.name",
		"TREX1__Course_Session__c.TREX1__Description__c",
		"TREX1__Course_Session__c.TREX1__Rich_Description__c",
		"TREX1__Course_Session__c.TREX1__Available__c",
		"TREX1__Course_Session__c.TREX1__Course__r.id",
		"TREX1__Course_Session__c.TREX1__Course__r.name",
	).AddCondition("TREX1__Course_Session__c.TREX1__Available_Online__c", "true", "")
	return g.run(ctx, q, OpCourseSessions, "can't load the list of course sessions")
}

// LoadProgramCategoryTags loads the program to program category join records.
func (g *Gateway) LoadProgramCategoryTags(ctx context.Context) (*PageResult, error) {
	q := soql.New("TREX1__Program_Category_Tag__c").AddField(
		"TREX1__Program_Category_Tag__c.id",
		"TREX1__Program_Category_Tag__c.name",
		"TREX1__Program_Category_Tag__c.TREX1__Program__r.id",
		"TREX1__Program_Category_Tag__c.TREX1__Program__r.name",
		"TREX1__Program_Category_Tag__c.TREX1__Program__r.TREX1__Available__c",
		"TREX1__Program_Category_Tag__c.TREX1__Program_Category__r.id",
		"TREX1__Program_Category_Tag__c.TREX1__Program_Category__r.name",
		"TREX1__Program_Category_Tag__c.TREX1__Program_Category__r.TREX1__Available__c",
	).
		AddCondition("TREX1__Program__r.TREX1__Available_Online__c", "true", "").
		AddCondition("TREX1__Program_Category__r.TREX1__Available_Online__c", "true", "")
	return g.run(ctx, q, OpProgramCategoryTag, "can't load the list of program category tags")
}

// LoadCourseOptions loads bookable course options whose online registration
// window has not closed and which have not ended. A non-empty locationIDs
// restricts the result to those locations.
func (g *Gateway) LoadCourseOptions(ctx context.Context, locationIDs []string) (*PageResult, error) {
	q := soql.New("TREX1__Course_Session_Option__c").AddField(
		"TREX1__Course_Option__r.id",
		"TREX1__Course_Option__r.name",
		"TREX1__Course_Option__r.TREX1__Available_Online__c",
		"TREX1__Course_Option__r.TREX1__Available__c",
		"TREX1__Course_Option__r.TREX1__capacity__c",
		"TREX1__Course_Option__r.TREX1__Start_Date__c",
		"TREX1__Course_Option__r.TREX1__Start_Time__c",
		"TREX1__Course_Option__r.TREX1__End_Date__c",
		"TREX1__Course_Option__r.TREX1__End_Time__c",
		"TREX1__Course_Option__r.TREX1__Day_of_Week__c",
		"TREX1__Course_Option__r.TREX1__Instructor__c",
		"TREX1__Course_Option__r.TREX1__Location__c",
		"TREX1__Course_Option__r.TREX1__Location__r.id",
		"TREX1__Course_Option__r.TREX1__Location__r.name",
		"TREX1__Course_Option__r.TREX1__Age_Max__c",
		"TREX1__Course_Option__r.TREX1__Age_Min__c",
		"TREX1__Course_Option__r.TREX1__Register_Online_From_Date__c",
		"TREX1__Course_Option__r.TREX1__Register_Online_From_Time__c",
		"TREX1__Course_Option__r.TREX1__Register_Online_To_Date__c",
		"TREX1__Course_Option__r.TREX1__Register_Online_To_Time__c",
		"TREX1__Course_Option__r.TREX1__Registration_Total__c",
		"TREX1__Course_Option__r.TREX1__Total_Capacity_Available__c",
		"TREX1__Course_Option__r.TREX1__Type__c",
		"TREX1__Course_Option__r.TREX1__Unlimited_Capacity__c",
		"TREX1__Course_Session__r.id",
		"TREX1__Course_Session__r.TREX1__Description__c",
		"TREX1__Course_Session__r.TREX1__Rich_Description__c",
		"TREX1__Course_Session__r.TREX1__Course__r.name",
		"TREX1__Course_Session__r.TREX1__Course__r.id",
		"TREX1__Course_Session__r.TREX1__Course__r.TREX1__Description__c",
		"TREX1__Course_Session__r.TREX1__Course__r.TREX1__Rich_Description__c",
		"TREX1__Course_Option__r.TREX1__Product__c",
		"TREX1__Course_Option__r.TREX1__Product__r.id",
		"TREX1__Course_Option__r.TREX1__Product__r.name",
		"TREX1__Course_Option__r.TREX1__Product__r.TREX1__Price_Description__c",
		"TREX1__Course_Option__r.TREX1__Unlimited_Waitlist_Capacity__c",
		"TREX1__Course_Option__r.TREX1__Waitlist_Total__c",
	)
	addOptionWindow(q)
	q.AddCondition("TREX1__Course_Session__r.TREX1__Num_Option_Entitlements__c", "1", "<=")
	q.AddCondition("TREX1__Course_Session__r.TREX1__Available_Online__c", "true", "")
	addLocationFilter(q, locationIDs)
	return g.run(ctx, q, OpCourseOptions, "can't load the list of course options")
}

// LoadMemberships loads membership types available for purchase, optionally
// for a single location.
func (g *Gateway) LoadMemberships(ctx context.Context, locationID string) (*PageResult, error) {
	q := soql.New("TREX1__Membership_Type__c").AddField(
		"TREX1__Membership_Type__c.id",
		"TREX1__Membership_Type__c.name",
		"TREX1__Membership_Type__c.TREX1__Description__c",
		"TREX1__Membership_Type__c.TREX1__Available_For_Purchase__c",
		"TREX1__Membership_Type__c.TREX1__Available_Online__c",
		"TREX1__Membership_Type__c.TREX1__Cancellation_Fee__c",
		"TREX1__Membership_Type__c.TREX1__Cancellation_Policy__c",
		"TREX1__Membership_Type__c.TREX1__Freeze_Monthly_Fee__c",
		"TREX1__Membership_Type__c.TREX1__Category__r.id",
		"TREX1__Membership_Type__c.TREX1__Category__r.name",
		"TREX1__Membership_Type__c.TREX1__Category__r.TREX1__Category_Description__c",
		"TREX1__Membership_Type__c.TREX1__Category__r.Membership_Category_URL__c",
		"TREX1__Membership_Type__c.TREX1__Location__r.id",
		"TREX1__Membership_Type__c.TREX1__Location__r.name",
		"TREX1__Membership_Type__c.TREX1__Location__r.Location_URL_Parameter__c",
		"TREX1__Membership_Type__c.TREX1__Product__r.id",
		"TREX1__Membership_Type__c.TREX1__Product__r.name",
		"TREX1__Membership_Type__c.TREX1__Product__r.TREX1__Price_Description__c",
		"TREX1__Membership_Type__c.TREX1__Group_1_Min_Age__c",
		"TREX1__Membership_Type__c.TREX1__Group_1_Max_Age__c",
		"TREX1__Membership_Type__c.TREX1__Group_1_Max_Allowed__c",
		"TREX1__Membership_Type__c.TREX1__Group_1_Name__c",
		"TREX1__Membership_Type__c.TREX1__Group_2_Min_Age__c",
		"TREX1__Membership_Type__c.TREX1__Group_2_Max_Age__c",
		"TREX1__Membership_Type__c.TREX1__Group_2_Max_Allowed__c",
		"TREX1__Membership_Type__c.TREX1__Group_2_Name__c",
		"TREX1__Membership_Type__c.TREX1__Group_3_Min_Age__c",
		"TREX1__Membership_Type__c.TREX1__Group_3_Max_Age__c",
		"TREX1__Membership_Type__c.TREX1__Group_3_Name__c",
		"TREX1__Membership_Type__c.TREX1__Group_3_Max_Allowed__c",
	).
		AddCondition("TREX1__Membership_Type__c.TREX1__Available_For_Purchase__c", "true", "").
		AddCondition("TREX1__Membership_Type__c.TREX1__Category__r.TREX1__Available_Online__c", "true", "")
	if locationID != "" {
		q.AddCondition("TREX1__Membership_Type__c.TREX1__Location__r.id", soql.Quote(locationID), "")
	}
	return g.run(ctx, q, OpMemberships, "can't load the list of memberships")
}

// LoadTotalAvailable loads the capacity snapshot for bookable options.
// Unlike the other operations a failure is logged and an empty result is
// returned, so a periodic capacity refresh never aborts on a remote error.
func (g *Gateway) LoadTotalAvailable(ctx context.Context, locationIDs []string) (*PageResult, error) {
	q := soql.New("TREX1__Course_Session_Option__c").AddField(
		"TREX1__Course_Option__r.id",
		"TREX1__Course_Option__r.TREX1__Total_Capacity_Available__c",
		"TREX1__Course_Option__r.TREX1__Unlimited_Waitlist_Capacity__c",
		"TREX1__Course_Option__r.TREX1__Waitlist_Total__c",
		"TREX1__Course_Option__r.TREX1__Unlimited_Capacity__c",
	)
	addOptionWindow(q)
	q.AddCondition("TREX1__Course_Session__r.TREX1__Available_Online__c", "true", "")
	addLocationFilter(q, locationIDs)

	page, err := g.run(ctx, q, OpTotalAvailable, "can't load total available")
	if err != nil {
		return &PageResult{Done: true}, nil
	}
	return page, nil
}

// LoadNextPage follows a pagination cursor.
func (g *Gateway) LoadNextPage(ctx context.Context, nextURL string) (*PageResult, error) {
	page, err := g.api.NextPage(ctx, nextURL)
	if err != nil {
		logging.Error().Err(err).Str("next_url", nextURL).Msg("Can't load results for the next page")
		return nil, fmt.Errorf("can't load results for the next page: %w", err)
	}
	return page, nil
}

func (g *Gateway) run(ctx context.Context, q *soql.Query, op, failure string) (*PageResult, error) {
	page, err := g.api.ExecuteQuery(ctx, q, op)
	if err != nil {
		logging.Error().Err(err).Str("operation", op).Msg(failure)
		return nil, fmt.Errorf("%s: %w", failure, err)
	}
	return page, nil
}

func addOptionWindow(q *soql.Query) {
	q.AddCondition("TREX1__Course_Option__r.TREX1__Available_Online__c", "true", "")
	q.AddCondition("TREX1__Course_Option__r.TREX1__Day_of_Week__c", "null", "!=")
	q.AddCondition("TREX1__Course_Option__r.TREX1__Register_Online_To_Date__c", "YESTERDAY", ">")
	q.AddCondition("TREX1__Course_Option__r.TREX1__End_Date__c", "TODAY", ">=")
	q.AddCondition("TREX1__Course_Option__r.TREX1__Start_Date__c", "null", "!=")
}

func addLocationFilter(q *soql.Query, locationIDs []string) {
	if len(locationIDs) == 0 {
		return
	}
	q.AddCondition("TREX1__Course_Option__r.TREX1__Location__c", soql.InList(locationIDs), "IN")
}
