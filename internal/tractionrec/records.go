// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package tractionrec

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrMissingID is returned by decoders when a record has no Id.
var ErrMissingID = errors.New("record has no Id")

// Ref is an {Id, Name} reference to a related record.
type Ref struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

// Location is a TractionRec location.
type Location struct {
	ID         string
	Name       string
	City       *string
	Country    *string
	State      *string
	Street     *string
	PostalCode *string
}

// Course is a program offering.
type Course struct {
	ID              string
	Name            string
	Description     *string
	RichDescription *string
	Available       *float64
	Program         *Ref
}

// TagSide is one side of a program category tag.
type TagSide struct {
	ID        string
	Name      string
	Available *float64
}

// ProgramCategoryTag joins a remote Program with a remote Program Category.
type ProgramCategoryTag struct {
	ID              string
	Name            string
	Program         *TagSide
	ProgramCategory *TagSide
}

// Session is one bookable course option row, as returned by the course
// session option query. Locally it becomes a session.
type Session struct {
	ID                     string
	Name                   string
	AvailableOnline        *bool
	Available              *float64
	Capacity               *float64
	StartDate              *string
	StartTime              *string
	EndDate                *string
	EndTime                *string
	DayOfWeek              *string
	Instructor             *string
	Location               *Ref
	AgeMin                 *float64
	AgeMax                 *float64
	RegisterFromDate       *string
	RegisterFromTime       *string
	RegisterToDate         *string
	RegisterToTime         *string
	RegistrationTotal      *float64
	TotalCapacityAvailable *float64
	Type                   *string
	UnlimitedCapacity      bool
	UnlimitedWaitlist      bool
	WaitlistTotal          *float64
	Product                *Ref
	PriceDescription       *string

	CourseSessionID              string
	CourseSessionDescription     *string
	CourseSessionRichDescription *string
	Course                       *Ref
	CourseDescription            *string
	CourseRichDescription        *string
}

// Capacity is the availability snapshot for one course option.
type Capacity struct {
	OptionID               string
	TotalCapacityAvailable *float64
	UnlimitedCapacity      bool
	UnlimitedWaitlist      bool
	WaitlistTotal          *float64
}

// AgeGroup is one of up to three named age bands on a membership type.
type AgeGroup struct {
	Name       string
	MinAge     *float64
	MaxAge     *float64
	MaxAllowed *float64
}

// MembershipCategory groups membership types.
type MembershipCategory struct {
	ID          string
	Name        string
	Description *string
	URL         *string
}

// MembershipType is a purchasable membership product.
type MembershipType struct {
	ID                   string
	Name                 string
	Description          *string
	AvailableForPurchase *bool
	AvailableOnline      *bool
	CancellationFee      *float64
	CancellationPolicy   *string
	FreezeMonthlyFee     *float64
	Category             *MembershipCategory
	LocationID           string
	LocationName         string
	LocationURLParameter *string
	ProductID            string
	ProductName          string
	PriceDescription     *string
	AgeGroups            []AgeGroup
}

// MembershipGroup is a category with its membership types, the shape of
// memberships.json.
type MembershipGroup struct {
	Category    MembershipCategory
	Memberships []MembershipType
}

// DecodeLocation decodes a simplified location record.
func DecodeLocation(r Record) (Location, error) {
	id := stringField(r, "Id")
	if id == "" {
		return Location{}, ErrMissingID
	}
	return Location{
		ID:         id,
		Name:       stringField(r, "Name"),
		City:       optString(r, "Address_City"),
		Country:    optString(r, "Address_Country"),
		State:      optString(r, "Address_State"),
		Street:     optString(r, "Address_Street"),
		PostalCode: optString(r, "Address_Postal_Code"),
	}, nil
}

// DecodeCourse decodes a simplified course record (classes.json).
func DecodeCourse(r Record) (Course, error) {
	id := stringField(r, "Id")
	if id == "" {
		return Course{}, ErrMissingID
	}
	return Course{
		ID:              id,
		Name:            stringField(r, "Name"),
		Description:     optString(r, "Description"),
		RichDescription: optString(r, "Rich_Description"),
		Available:       optFloat(r, "Available"),
		Program:         optRef(r, "Program"),
	}, nil
}

// DecodeProgramCategoryTag decodes a program category tag record.
func DecodeProgramCategoryTag(r Record) (ProgramCategoryTag, error) {
	tag := ProgramCategoryTag{
		ID:              stringField(r, "Id"),
		Name:            stringField(r, "Name"),
		Program:         optTagSide(r, "Program"),
		ProgramCategory: optTagSide(r, "Program_Category"),
	}
	if tag.Program == nil || tag.ProgramCategory == nil {
		return tag, fmt.Errorf("tag %q: program or program category missing", tag.ID)
	}
	return tag, nil
}

// DecodeTagSide decodes a bare {Id, Name, Available} record, the shape of
// programs.json entries.
func DecodeTagSide(r Record) (TagSide, error) {
	side := TagSide{ID: stringField(r, "Id"), Name: stringField(r, "Name"), Available: optFloat(r, "Available")}
	if side.ID == "" {
		return side, ErrMissingID
	}
	return side, nil
}

// DecodeSession decodes a course session option row (sessions.json).
func DecodeSession(r Record) (Session, error) {
	opt := subRecord(r, "Course_Option")
	if opt == nil || stringField(opt, "Id") == "" {
		return Session{}, ErrMissingID
	}
	cs := subRecord(r, "Course_Session")
	course := subRecord(cs, "Course")

	s := Session{
		ID:                     stringField(opt, "Id"),
		Name:                   stringField(opt, "Name"),
		AvailableOnline:        optBool(opt, "Available_Online"),
		Available:              optFloat(opt, "Available"),
		Capacity:               optFloat(opt, "capacity"),
		StartDate:              optString(opt, "Start_Date"),
		StartTime:              optString(opt, "Start_Time"),
		EndDate:                optString(opt, "End_Date"),
		EndTime:                optString(opt, "End_Time"),
		DayOfWeek:              optString(opt, "Day_of_Week"),
		Instructor:             optString(opt, "Instructor"),
		Location:               optRef(opt, "Location"),
		AgeMin:                 optFloat(opt, "Age_Min"),
		AgeMax:                 optFloat(opt, "Age_Max"),
		RegisterFromDate:       optString(opt, "Register_Online_From_Date"),
		RegisterFromTime:       optString(opt, "Register_Online_From_Time"),
		RegisterToDate:         optString(opt, "Register_Online_To_Date"),
		RegisterToTime:         optString(opt, "Register_Online_To_Time"),
		RegistrationTotal:      optFloat(opt, "Registration_Total"),
		TotalCapacityAvailable: optFloat(opt, "Total_Capacity_Available"),
		Type:                   optString(opt, "Type"),
		UnlimitedCapacity:      boolField(opt, "Unlimited_Capacity"),
		UnlimitedWaitlist:      boolField(opt, "Unlimited_Waitlist_Capacity"),
		WaitlistTotal:          optFloat(opt, "Waitlist_Total"),
		Product:                optRef(opt, "Product"),
	}
	if product := subRecord(opt, "Product"); product != nil {
		s.PriceDescription = optString(product, "Price_Description")
	}
	if cs != nil {
		s.CourseSessionID = stringField(cs, "Id")
		s.CourseSessionDescription = optString(cs, "Description")
		s.CourseSessionRichDescription = optString(cs, "Rich_Description")
	}
	if course != nil {
		s.Course = &Ref{ID: stringField(course, "Id"), Name: stringField(course, "Name")}
		s.CourseDescription = optString(course, "Description")
		s.CourseRichDescription = optString(course, "Rich_Description")
	}
	return s, nil
}

// DecodeCapacity decodes a total available snapshot row.
func DecodeCapacity(r Record) (Capacity, error) {
	opt := subRecord(r, "Course_Option")
	if opt == nil {
		opt = r
	}
	id := stringField(opt, "Id")
	if id == "" {
		return Capacity{}, ErrMissingID
	}
	return Capacity{
		OptionID:               id,
		TotalCapacityAvailable: optFloat(opt, "Total_Capacity_Available"),
		UnlimitedCapacity:      boolField(opt, "Unlimited_Capacity"),
		UnlimitedWaitlist:      boolField(opt, "Unlimited_Waitlist_Capacity"),
		WaitlistTotal:          optFloat(opt, "Waitlist_Total"),
	}, nil
}

// DecodeMembershipType decodes a membership type record.
func DecodeMembershipType(r Record) (MembershipType, error) {
	id := stringField(r, "Id")
	if id == "" {
		return MembershipType{}, ErrMissingID
	}
	m := MembershipType{
		ID:                   id,
		Name:                 stringField(r, "Name"),
		Description:          optString(r, "Description"),
		AvailableForPurchase: optBool(r, "Available_For_Purchase"),
		AvailableOnline:      optBool(r, "Available_Online"),
		CancellationFee:      optFloat(r, "Cancellation_Fee"),
		CancellationPolicy:   optString(r, "Cancellation_Policy"),
		FreezeMonthlyFee:     optFloat(r, "Freeze_Monthly_Fee"),
	}
	if cat := subRecord(r, "Category"); cat != nil {
		c := decodeMembershipCategory(cat)
		m.Category = &c
	}
	if loc := subRecord(r, "Location"); loc != nil {
		m.LocationID = stringField(loc, "Id")
		m.LocationName = stringField(loc, "Name")
		m.LocationURLParameter = optString(loc, "Location_URL_Parameter")
	}
	if product := subRecord(r, "Product"); product != nil {
		m.ProductID = stringField(product, "Id")
		m.ProductName = stringField(product, "Name")
		m.PriceDescription = optString(product, "Price_Description")
	}
	for i := 1; i <= 3; i++ {
		prefix := "Group_" + strconv.Itoa(i) + "_"
		g := AgeGroup{
			Name:       stringField(r, prefix+"Name"),
			MinAge:     optFloat(r, prefix+"Min_Age"),
			MaxAge:     optFloat(r, prefix+"Max_Age"),
			MaxAllowed: optFloat(r, prefix+"Max_Allowed"),
		}
		if g.Name != "" || g.MinAge != nil || g.MaxAge != nil {
			m.AgeGroups = append(m.AgeGroups, g)
		}
	}
	return m, nil
}

// DecodeMembershipGroup decodes one entry of memberships.json.
func DecodeMembershipGroup(r Record) (MembershipGroup, error) {
	g := MembershipGroup{Category: decodeMembershipCategory(r)}
	if g.Category.ID == "" {
		return g, ErrMissingID
	}
	items, _ := r["memberships"].([]any)
	for _, item := range items {
		rec, ok := item.(map[string]any)
		if !ok {
			continue
		}
		m, err := DecodeMembershipType(rec)
		if err != nil {
			continue
		}
		m.Category = &g.Category
		g.Memberships = append(g.Memberships, m)
	}
	return g, nil
}

func decodeMembershipCategory(r Record) MembershipCategory {
	return MembershipCategory{
		ID:          stringField(r, "Id"),
		Name:        stringField(r, "Name"),
		Description: optString(r, "Category_Description"),
		URL:         optString(r, "Membership_Category_URL"),
	}
}

func subRecord(r Record, key string) Record {
	if r == nil {
		return nil
	}
	sub, _ := r[key].(map[string]any)
	return sub
}

func stringField(r Record, key string) string {
	if p := optString(r, key); p != nil {
		return *p
	}
	return ""
}

func optString(r Record, key string) *string {
	switch v := r[key].(type) {
	case string:
		return &v
	case float64:
		s := strconv.FormatFloat(v, 'f', -1, 64)
		return &s
	default:
		return nil
	}
}

func optFloat(r Record, key string) *float64 {
	switch v := r[key].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case int64:
		f := float64(v)
		return &f
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return &f
		}
	}
	return nil
}

func optBool(r Record, key string) *bool {
	if v, ok := r[key].(bool); ok {
		return &v
	}
	return nil
}

func boolField(r Record, key string) bool {
	v, _ := r[key].(bool)
	return v
}

// optRef accepts either a relationship object or a bare lookup id.
func optRef(r Record, key string) *Ref {
	switch v := r[key].(type) {
	case map[string]any:
		return &Ref{ID: stringField(v, "Id"), Name: stringField(v, "Name")}
	case string:
		if v == "" {
			return nil
		}
		return &Ref{ID: v}
	default:
		return nil
	}
}

func optTagSide(r Record, key string) *TagSide {
	sub := subRecord(r, key)
	if sub == nil {
		return nil
	}
	return &TagSide{ID: stringField(sub, "Id"), Name: stringField(sub, "Name"), Available: optFloat(sub, "Available")}
}
