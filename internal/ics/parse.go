package ics

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "daybrief/internal/log"
	"daybrief/internal/model"
)

// ParsedEvent is the normalized representation of a VEVENT as produced by
// the parser. Recurrence expansion operates on this type.
type ParsedEvent struct {
	Source model.CalendarSource

	UID string
	Seq int

	Title       string
	Description string
	Location    string

	Start   time.Time
	End     time.Time
	AllDay  bool
	StartTZ string

	Cancelled bool
	Attendees []model.Attendee

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID (if present) in event's own timezone
	IsOverride bool       // true if this VEVENT overrides a recurring instance
}

// Parse parses a single ICS payload into a list of ParsedEvent.
//
//   - It relies on the underlying library's VTIMEZONE/TZID handling to
//     construct proper time.Time values (with Location set).
//   - It detects all-day events by inspecting the DTSTART value format.
//   - It records RRULE/EXDATE/RECURRENCE-ID but does not expand
//     recurrences; expansion is done in expand.go.
//   - It captures ATTENDEE participation status for declined-event
//     filtering downstream.
func Parse(src model.CalendarSource, body []byte) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "label", src.Label, "url", redactURL(src.URL))
		return nil, err
	}

	events := make([]ParsedEvent, 0)

	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(src, comp)
		if perr != nil {
			// Log and skip this event, but keep parsing others.
			appLog.Warn("ics vevent parse failed", "label", src.Label, "err", perr)
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "label", src.Label, "event_count", len(events))
	return events, nil
}

func parseVEvent(src model.CalendarSource, ve *ical.VEvent) (ParsedEvent, error) {
	var out ParsedEvent
	out.Source = src

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	// SEQUENCE (optional, used for overrides/versioning)
	if seqProp := ve.GetProperty(ical.ComponentPropertySequence); seqProp != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(seqProp.Value)); err == nil {
			out.Seq = n
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		out.Cancelled = strings.EqualFold(strings.TrimSpace(p.Value), "CANCELLED")
	}

	// DTSTART / DTEND via the library's timezone-aware helpers.
	start, _ := ve.GetStartAt()
	end, _ := ve.GetEndAt()
	out.Start = start
	out.End = end

	// Detect all-day: VALUE=DATE or a value without a time component.
	allDay := false
	if dtStartProp := ve.GetProperty(ical.ComponentPropertyDtStart); dtStartProp != nil {
		val := dtStartProp.Value
		if params := dtStartProp.ICalParameters; params != nil {
			if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
				allDay = true
			}
			if tzs, ok := params["TZID"]; ok && len(tzs) > 0 {
				out.StartTZ = tzs[0]
			}
		}
		if !strings.Contains(val, "T") {
			allDay = true
		}
		// The library's GetStartAt can come back zero for DATE values;
		// fall back to parsing the raw property.
		if out.Start.IsZero() {
			if t, err := parseICSTimeIn(val, out.StartTZ); err == nil {
				out.Start = t
			}
		}
	}
	out.AllDay = allDay
	if allDay && out.End.IsZero() && !out.Start.IsZero() {
		out.End = out.Start.Add(24 * time.Hour)
	}

	// ATTENDEE records, reduced to email + PARTSTAT.
	for _, p := range ve.GetProperties(ical.ComponentPropertyAttendee) {
		att := parseAttendee(p)
		if att.Email == "" {
			continue
		}
		out.Attendees = append(out.Attendees, att)
	}

	// RRULE (raw string only; expansion happens in expand.go).
	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil {
		out.RawRRule = rruleProp.Value
	}

	// EXDATE (can appear multiple times, each possibly comma-separated).
	// The TZID parameter decides the instant; ignoring it shifts the
	// exception by the zone offset and the excluded instance reappears.
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		tzid := tzidParam(p.ICalParameters)
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTimeIn(part, tzid); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	// RECURRENCE-ID (overridden instance)
	if ridProp := ve.GetProperty("RECURRENCE-ID"); ridProp != nil {
		if t, err := parseICSTimeIn(ridProp.Value, tzidParam(ridProp.ICalParameters)); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

// parseAttendee maps an ATTENDEE property onto the closed participation
// set. Anything unrecognized becomes a no-record status, which downstream
// filtering treats as attending.
func parseAttendee(p *ical.IANAProperty) model.Attendee {
	email := strings.TrimSpace(p.Value)
	email = strings.TrimPrefix(strings.ToLower(email), "mailto:")

	status := model.ParticipationNoRecord
	if params := p.ICalParameters; params != nil {
		if ps, ok := params["PARTSTAT"]; ok && len(ps) > 0 {
			switch strings.ToUpper(strings.TrimSpace(ps[0])) {
			case "ACCEPTED":
				status = model.ParticipationAccepted
			case "DECLINED":
				status = model.ParticipationDeclined
			case "TENTATIVE":
				status = model.ParticipationTentative
			}
		}
	}

	return model.Attendee{Email: email, Status: status}
}

// tzidParam extracts the TZID parameter from a property's parameter map.
func tzidParam(params map[string][]string) string {
	if params == nil {
		return ""
	}
	if tzs, ok := params["TZID"]; ok && len(tzs) > 0 {
		return tzs[0]
	}
	return ""
}

// parseICSTimeIn parses an ICS date/date-time string. A trailing Z wins
// over any TZID; otherwise tzid names the zone of a floating value, and an
// empty or unresolvable tzid falls back to the process zone.
func parseICSTimeIn(v, tzid string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	// UTC form, e.g., 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		const layout = "20060102T150405Z"
		return time.Parse(layout, v)
	}

	loc := time.Local
	if tzid != "" {
		l, err := time.LoadLocation(tzid)
		if err != nil {
			appLog.Warn("unresolvable TZID, using process zone", "tzid", tzid, "err", err)
		} else {
			loc = l
		}
	}

	// Zoned or floating date-time, e.g., 20250101T090000
	if strings.Contains(v, "T") {
		const layout = "20060102T150405"
		return time.ParseInLocation(layout, v, loc)
	}

	// Date-only (all-day), e.g., 20250101
	const layoutDate = "20060102"
	return time.ParseInLocation(layoutDate, v, loc)
}
