package adapter

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/ckubal/mc-adventure-finder/app/event"
	"github.com/ckubal/mc-adventure-finder/app/timezone"
)

const maxOccurrencesPerEvent = 500

const (
	icsDateTimeUTC = "20060102T150405Z"
	icsDateTime    = "20060102T150405"
	icsDate        = "20060102"
	civilLayout    = "2006-01-02T15:04:05"
	civilDate      = "2006-01-02"
)

// ICSParser reads iCalendar feeds. Recurring events are expanded into one
// record per occurrence inside [now-1d, now+windowDays].
type ICSParser struct {
	resolver   *timezone.Resolver
	now        func() time.Time
	windowDays int
}

func NewICSParser(resolver *timezone.Resolver, now func() time.Time, windowDays int) *ICSParser {
	if now == nil {
		now = time.Now
	}
	if windowDays <= 0 {
		windowDays = event.DefaultWindowDays
	}
	return &ICSParser{resolver: resolver, now: now, windowDays: windowDays}
}

// icsTime is a DTSTART-like value. t carries the wall clock in its zone;
// floating says the calendar gave no zone at all.
type icsTime struct {
	t        time.Time
	allDay   bool
	floating bool
}

func (v icsTime) when() event.When {
	switch {
	case v.allDay:
		return event.Text(v.t.Format(civilDate))
	case v.floating:
		return event.Text(v.t.Format(civilLayout))
	default:
		return event.At(v.t)
	}
}

func (p *ICSParser) Parse(ctx context.Context, payload Payload) ([]event.RawRecord, error) {
	cal, err := ics.ParseCalendar(bytes.NewReader(payload.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse calendar: %w", err)
	}

	events := cal.Events()

	overridden := make(map[string]bool)
	for _, ve := range events {
		if rid := ve.GetProperty(ics.ComponentPropertyRecurrenceId); rid != nil {
			if v, err := p.parseTime(rid); err == nil {
				overridden[occurrenceKey(propertyValue(ve, ics.ComponentPropertyUniqueId), v.t)] = true
			}
		}
	}

	now := p.now()
	rangeStart := now.Add(-24 * time.Hour)
	rangeEnd := event.NewWindow(now, p.windowDays).Cutoff()

	records := make([]event.RawRecord, 0, len(events))
	for _, ve := range events {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if strings.EqualFold(propertyValue(ve, ics.ComponentPropertyStatus), "CANCELLED") {
			continue
		}

		base, start, end, err := p.baseRecord(ve, payload.URL)
		if err != nil {
			// Emit the record anyway; normalization reports the bad start.
			records = append(records, base)
			continue
		}

		uid := propertyValue(ve, ics.ComponentPropertyUniqueId)

		if rid := ve.GetProperty(ics.ComponentPropertyRecurrenceId); rid != nil {
			if v, err := p.parseTime(rid); err == nil {
				base.NaturalKey = occurrenceKey(uid, v.t)
			}
			records = append(records, base)
			continue
		}

		rule := ve.GetProperty(ics.ComponentPropertyRrule)
		if rule == nil {
			records = append(records, base)
			continue
		}

		occurrences, err := p.expand(ve, rule.Value, start, rangeStart, rangeEnd)
		if err != nil {
			slog.Debug("Failed to expand recurrence, keeping first occurrence", "uid", uid, "rrule", rule.Value, "error", err)
			records = append(records, base)
			continue
		}

		for _, occ := range occurrences {
			key := occurrenceKey(uid, occ)
			if overridden[key] {
				continue
			}

			record := base
			record.NaturalKey = key
			record.StartAt = icsTime{t: occ, allDay: start.allDay, floating: start.floating}.when()
			record.EndAt = event.When{}
			if end != nil {
				record.EndAt = icsTime{t: occ.Add(end.t.Sub(start.t)), allDay: end.allDay, floating: end.floating}.when()
			}
			records = append(records, record)
		}
	}

	return records, nil
}

func (p *ICSParser) baseRecord(ve *ics.VEvent, calendarURL string) (event.RawRecord, icsTime, *icsTime, error) {
	uid := propertyValue(ve, ics.ComponentPropertyUniqueId)

	record := event.RawRecord{
		Title:        propertyValue(ve, ics.ComponentPropertySummary),
		SourceURL:    propertyValue(ve, ics.ComponentPropertyUrl),
		NaturalKey:   uid,
		Description:  propertyValue(ve, ics.ComponentPropertyDescription),
		LocationName: propertyValue(ve, ics.ComponentPropertyLocation),
	}
	if record.SourceURL == "" {
		record.SourceURL = calendarURL
	}

	for _, prop := range ve.GetProperties(ics.ComponentPropertyCategories) {
		for _, tag := range strings.Split(prop.Value, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				record.Tags = append(record.Tags, tag)
			}
		}
	}

	startProp := ve.GetProperty(ics.ComponentPropertyDtStart)
	if startProp == nil {
		return record, icsTime{}, nil, fmt.Errorf("event %s has no DTSTART", uid)
	}

	start, err := p.parseTime(startProp)
	if err != nil {
		record.StartAt = event.Text(startProp.Value)
		return record, icsTime{}, nil, err
	}
	record.StartAt = start.when()

	var end *icsTime
	if endProp := ve.GetProperty(ics.ComponentPropertyDtEnd); endProp != nil {
		if v, err := p.parseTime(endProp); err == nil {
			end = &v
			record.EndAt = v.when()
		}
	}

	return record, start, end, nil
}

func (p *ICSParser) expand(ve *ics.VEvent, ruleText string, start icsTime, rangeStart, rangeEnd time.Time) ([]time.Time, error) {
	opts, err := rrule.StrToROption(ruleText)
	if err != nil {
		return nil, err
	}
	opts.Dtstart = start.t

	rule, err := rrule.NewRRule(*opts)
	if err != nil {
		return nil, err
	}

	var set rrule.Set
	set.RRule(rule)

	for _, prop := range ve.GetProperties(ics.ComponentPropertyExdate) {
		for _, value := range strings.Split(prop.Value, ",") {
			single := *prop
			single.Value = strings.TrimSpace(value)
			if ex, err := p.parseTime(&single); err == nil {
				set.ExDate(ex.t.In(start.t.Location()))
			}
		}
	}

	loc := start.t.Location()
	occurrences := set.Between(rangeStart.In(loc), rangeEnd.In(loc), true)
	if len(occurrences) > maxOccurrencesPerEvent {
		occurrences = occurrences[:maxOccurrencesPerEvent]
	}

	return occurrences, nil
}

// parseTime reads a DATE or DATE-TIME property. TZID zones that cannot be
// loaded are treated as floating time in the deployment zone.
func (p *ICSParser) parseTime(prop *ics.IANAProperty) (icsTime, error) {
	value := strings.TrimSpace(prop.Value)

	isDate := len(value) == len(icsDate)
	if v := prop.ICalParameters["VALUE"]; len(v) > 0 && strings.EqualFold(v[0], "DATE") {
		isDate = true
	}

	defaultLoc, err := p.resolver.Location("")
	if err != nil {
		return icsTime{}, err
	}

	if isDate {
		t, err := time.ParseInLocation(icsDate, value, defaultLoc)
		if err != nil {
			return icsTime{}, fmt.Errorf("%w: %q", timezone.ErrMalformedDateTime, value)
		}
		return icsTime{t: t, allDay: true}, nil
	}

	if strings.HasSuffix(value, "Z") {
		t, err := time.Parse(icsDateTimeUTC, value)
		if err != nil {
			return icsTime{}, fmt.Errorf("%w: %q", timezone.ErrMalformedDateTime, value)
		}
		return icsTime{t: t}, nil
	}

	loc := defaultLoc
	floating := true
	if tzid := prop.ICalParameters["TZID"]; len(tzid) > 0 {
		if zoneLoc, err := p.resolver.Location(strings.Trim(tzid[0], `"`)); err == nil {
			loc = zoneLoc
			floating = false
		} else {
			slog.Debug("Unknown TZID, using deployment zone", "tzid", tzid[0])
		}
	}

	t, err := time.ParseInLocation(icsDateTime, value, loc)
	if err != nil {
		return icsTime{}, fmt.Errorf("%w: %q", timezone.ErrMalformedDateTime, value)
	}

	return icsTime{t: t, floating: floating}, nil
}

func propertyValue(ve *ics.VEvent, property ics.ComponentProperty) string {
	if prop := ve.GetProperty(property); prop != nil {
		return strings.TrimSpace(prop.Value)
	}
	return ""
}

func occurrenceKey(uid string, t time.Time) string {
	return uid + "@" + t.UTC().Format(icsDateTimeUTC)
}
