// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package transform

import (
	"fmt"
	"strings"
	"time"
)

// Default times applied when the remote record leaves one out.
const (
	DefaultStartTime = "07:00 AM"
	DefaultEndTime   = "11:59 PM"
)

// OutputLayout is how window boundaries are stored, always in UTC.
const OutputLayout = "2006-01-02T15:04:05"

var inputLayouts = []string{
	"2006-01-02 3:04 PM",
	"2006-01-02 3:04PM",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000Z",
}

// Window is a start/end pair in UTC.
type Window struct {
	Start time.Time
	End   time.Time
}

// Value renders the window the way it is stored on nodes.
func (w Window) Value() map[string]any {
	return map[string]any{
		"value":     w.Start.Format(OutputLayout),
		"end_value": w.End.Format(OutputLayout),
	}
}

// SessionTimeInput carries the source fields of a session time window.
type SessionTimeInput struct {
	StartDate string
	StartTime string
	EndDate   string
	EndTime   string
	Days      string
}

// SessionTimeValue is the session time sub-record. It is only data; the
// migration persists it after the owning row is committed.
type SessionTimeValue struct {
	Days   []string
	Window Window
}

// Paragraph renders the value as paragraph data.
func (v SessionTimeValue) Paragraph() map[string]any {
	return map[string]any{
		"actual": true,
		"days":   v.Days,
		"date":   v.Window.Value(),
	}
}

// Clock parses remote dates in the site timezone.
type Clock struct {
	Location *time.Location
}

// NewClock loads the named IANA timezone; an empty name means UTC.
func NewClock(name string) (*Clock, error) {
	if name == "" {
		return &Clock{Location: time.UTC}, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return &Clock{Location: loc}, nil
}

// SessionTime builds the session window. The row is skipped when the start
// date or days are missing or a boundary cannot be parsed.
func (c *Clock) SessionTime(in SessionTimeInput) Result[SessionTimeValue] {
	if strings.TrimSpace(in.StartDate) == "" || strings.TrimSpace(in.Days) == "" {
		return SkipRow[SessionTimeValue]("Datetime or day cannot be empty for session")
	}
	w, err := c.window(in.StartDate, in.StartTime, in.EndDate, in.EndTime)
	if err != nil {
		return SkipRow[SessionTimeValue](err.Error())
	}
	return Ok(SessionTimeValue{Days: splitDays(in.Days), Window: w})
}

// OnlineRegistrationTime builds the online registration window from the
// register from/to fields. Both dates are required.
func (c *Clock) OnlineRegistrationTime(fromDate, fromTime, toDate, toTime string) Result[Window] {
	if strings.TrimSpace(fromDate) == "" || strings.TrimSpace(toDate) == "" {
		return SkipRow[Window]("Online registration dates cannot be empty for session")
	}
	w, err := c.window(fromDate, fromTime, toDate, toTime)
	if err != nil {
		return SkipRow[Window](err.Error())
	}
	return Ok(w)
}

func (c *Clock) window(startDate, startTime, endDate, endTime string) (Window, error) {
	if strings.TrimSpace(startTime) == "" {
		startTime = DefaultStartTime
	}
	if strings.TrimSpace(endTime) == "" {
		endTime = DefaultEndTime
	}
	start, err := c.parse(startDate, startTime)
	if err != nil {
		return Window{}, err
	}
	end, err := c.parse(endDate, endTime)
	if err != nil {
		return Window{}, err
	}
	return Window{Start: start, End: end}, nil
}

// parse reads "date time" in the site timezone and returns it in UTC.
func (c *Clock) parse(date, clock string) (time.Time, error) {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	value := strings.TrimSpace(date) + " " + strings.ToUpper(strings.TrimSpace(clock))
	for _, layout := range inputLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("can't parse date %q", value)
}

func splitDays(days string) []string {
	parts := strings.Split(days, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
