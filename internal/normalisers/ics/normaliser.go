// Package ics provides a Normaliser for iCalendar files.
package ics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
	"github.com/custodia-labs/keepsake/internal/normalisers"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles iCalendar (.ics) files.
type Normaliser struct{}

// New creates a new iCalendar normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/calendar"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Kinds returns the kinds this normaliser produces.
func (n *Normaliser) Kinds() []domain.Kind {
	return []domain.Kind{domain.KindEvent}
}

// event is one VEVENT block.
type event struct {
	summary     string
	description string
	location    string
	organizer   string
	attendees   []string
	uid         string
	start       time.Time
	end         time.Time
	allDay      bool
}

// Normalise converts a calendar file to an event record. The first VEVENT
// supplies the event details; every event is listed in the body.
func (n *Normaliser) Normalise(_ context.Context, in driven.NormaliseInput) (domain.RawRecord, error) {
	calName, events := parse(unfold(string(in.Content)))
	if len(events) == 0 {
		return domain.RawRecord{}, domain.NewValidationError("no events in %s", in.Path)
	}

	first := events[0]
	title := first.summary
	switch {
	case len(events) > 1 && calName != "":
		title = calName
	case len(events) > 1 && title != "":
		title += " (and more)"
	case title == "":
		title = normalisers.TitleFromPath(in.Path)
	}

	var body strings.Builder
	for i, ev := range events {
		if i > 0 {
			body.WriteString("\n\n")
		}
		writeEvent(&body, ev)
	}
	text := strings.TrimSpace(body.String())

	attrs := domain.Attributes{
		"mime_type": in.MIMEType,
		"format":    "ics",
	}
	if len(events) > 1 {
		attrs["event_count"] = len(events)
	}
	if calName != "" {
		attrs["calendar"] = calName
	}
	if first.uid != "" {
		attrs["uid"] = first.uid
	}
	if first.organizer != "" {
		attrs["organizer"] = first.organizer
	}
	if len(first.attendees) > 0 {
		attrs["attendees"] = first.attendees
	}

	return domain.RawRecord{
		Kind:       domain.KindEvent,
		Title:      title,
		Body:       &text,
		Attributes: attrs,
		Extension: domain.EventDetails{
			StartsAt: first.start,
			EndsAt:   first.end,
			Location: first.location,
			AllDay:   first.allDay,
		},
	}, nil
}

// unfold joins continuation lines (RFC 5545 section 3.1).
func unfold(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) && len(lines) > 0 {
			lines[len(lines)-1] += line[1:]
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func parse(lines []string) (string, []event) {
	var (
		calName string
		events  []event
		current *event
	)
	for _, line := range lines {
		name, params, value, ok := splitLine(line)
		if !ok {
			continue
		}
		switch {
		case name == "BEGIN" && value == "VEVENT":
			current = &event{}
			continue
		case name == "END" && value == "VEVENT":
			if current != nil {
				if current.end.IsZero() {
					current.end = defaultEnd(current.start, current.allDay)
				}
				events = append(events, *current)
			}
			current = nil
			continue
		case name == "X-WR-CALNAME" && current == nil:
			calName = decodeValue(value)
			continue
		}
		if current == nil {
			continue
		}

		switch name {
		case "SUMMARY":
			current.summary = decodeValue(value)
		case "DESCRIPTION":
			current.description = decodeValue(value)
		case "LOCATION":
			current.location = decodeValue(value)
		case "UID":
			current.uid = value
		case "ORGANIZER":
			current.organizer = extractEmail(value)
		case "ATTENDEE":
			if addr := extractEmail(value); addr != "" {
				current.attendees = append(current.attendees, addr)
			}
		case "DTSTART":
			current.start, current.allDay = parseDateTime(value, params)
		case "DTEND":
			current.end, _ = parseDateTime(value, params)
		}
	}
	return calName, events
}

// splitLine splits "NAME;PARAM=X:VALUE" into its parts.
func splitLine(line string) (string, map[string]string, string, bool) {
	colon := strings.Index(line, ":")
	if colon < 0 {
		return "", nil, "", false
	}
	head, value := line[:colon], strings.TrimSpace(line[colon+1:])

	parts := strings.Split(head, ";")
	params := make(map[string]string, len(parts)-1)
	for _, p := range parts[1:] {
		if k, v, ok := strings.Cut(p, "="); ok {
			params[strings.ToUpper(k)] = strings.Trim(v, `"`)
		}
	}
	return strings.ToUpper(strings.TrimSpace(parts[0])), params, value, true
}

// decodeValue unescapes TEXT values.
func decodeValue(value string) string {
	r := strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)
	return r.Replace(value)
}

func parseDateTime(value string, params map[string]string) (time.Time, bool) {
	if params["VALUE"] == "DATE" || len(value) == len("20060102") {
		t, err := time.ParseInLocation("20060102", value, time.UTC)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	if strings.HasSuffix(value, "Z") {
		t, err := time.Parse("20060102T150405Z", value)
		if err != nil {
			return time.Time{}, false
		}
		return t, false
	}

	loc := time.UTC
	if tzid := params["TZID"]; tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		}
	}
	t, err := time.ParseInLocation("20060102T150405", value, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), false
}

func defaultEnd(start time.Time, allDay bool) time.Time {
	if start.IsZero() {
		return start
	}
	if allDay {
		return start.AddDate(0, 0, 1)
	}
	return start
}

// formatDateTime renders a start time for the body text.
func formatDateTime(t time.Time, allDay bool) string {
	if t.IsZero() {
		return ""
	}
	if allDay {
		return t.Format("January 2, 2006")
	}
	return t.Format("January 2, 2006 15:04 MST")
}

// extractEmail pulls the address out of a "mailto:" calendar user value.
func extractEmail(value string) string {
	value = strings.TrimSpace(value)
	if i := strings.Index(strings.ToLower(value), "mailto:"); i >= 0 {
		value = value[i+len("mailto:"):]
	}
	return strings.ToLower(value)
}

func writeEvent(b *strings.Builder, ev event) {
	if ev.summary != "" {
		b.WriteString(ev.summary)
		b.WriteString("\n")
	}
	if when := formatDateTime(ev.start, ev.allDay); when != "" {
		fmt.Fprintf(b, "When: %s\n", when)
	}
	if ev.location != "" {
		fmt.Fprintf(b, "Where: %s\n", ev.location)
	}
	if ev.organizer != "" {
		fmt.Fprintf(b, "Organizer: %s\n", ev.organizer)
	}
	if len(ev.attendees) > 0 {
		fmt.Fprintf(b, "Attendees: %s\n", strings.Join(ev.attendees, ", "))
	}
	if ev.description != "" {
		b.WriteString(ev.description)
		b.WriteString("\n")
	}
}
