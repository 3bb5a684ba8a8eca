package timezone

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const DefaultZone = "America/Los_Angeles"

var (
	ErrMalformedDateTime = errors.New("malformed date/time")
	ErrUnknownZone       = errors.New("unknown time zone")
)

// maxPasses bounds the fixed-point correction. Real zones converge in two.
const maxPasses = 3

// Parts holds civil date/time fields. Hour, Minute and Second default to zero.
type Parts struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Second int
}

// Resolver turns civil time into instants for IANA zones. Loaded locations
// are cached for the lifetime of the resolver; zone rules do not change
// within a running binary so entries are never invalidated.
type Resolver struct {
	defaultZone string
	zones       map[string]*time.Location
	mu          sync.RWMutex
}

func NewResolver(defaultZone string) (*Resolver, error) {
	if defaultZone == "" {
		defaultZone = DefaultZone
	}

	r := &Resolver{
		defaultZone: defaultZone,
		zones:       make(map[string]*time.Location),
	}

	if _, err := r.Location(defaultZone); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Resolver) Zone() string {
	return r.defaultZone
}

// Location returns the cached location for zone, loading it on first use.
// An empty zone means the resolver's default zone.
func (r *Resolver) Location(zone string) (*time.Location, error) {
	if zone == "" {
		zone = r.defaultZone
	}

	r.mu.RLock()
	loc, ok := r.zones[zone]
	r.mu.RUnlock()
	if ok {
		return loc, nil
	}

	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnknownZone, zone, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.zones[zone]; ok {
		return existing, nil
	}
	r.zones[zone] = loc

	return loc, nil
}

// Resolve converts civil fields in zone to a UTC instant.
//
// The civil fields are first read as if they were UTC. The guess is then
// rendered in the target zone and shifted by the difference between the
// wanted and rendered civil fields, repeating until the difference is zero.
func (r *Resolver) Resolve(p Parts, zone string) (time.Time, error) {
	if err := p.validate(); err != nil {
		return time.Time{}, err
	}

	loc, err := r.Location(zone)
	if err != nil {
		return time.Time{}, err
	}

	desired := time.Date(p.Year, time.Month(p.Month), p.Day, p.Hour, p.Minute, p.Second, 0, time.UTC)
	guess := desired

	for i := 0; i < maxPasses; i++ {
		got := guess.In(loc)
		rendered := time.Date(got.Year(), got.Month(), got.Day(), got.Hour(), got.Minute(), got.Second(), 0, time.UTC)
		delta := desired.Sub(rendered)
		if delta == 0 {
			break
		}
		guess = guess.Add(delta)
	}

	return guess.UTC(), nil
}

func (p Parts) validate() error {
	if p.Year < 1 || p.Year > 9999 {
		return fmt.Errorf("%w: year %d out of range", ErrMalformedDateTime, p.Year)
	}
	if p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("%w: month %d out of range", ErrMalformedDateTime, p.Month)
	}
	if p.Day < 1 || p.Day > daysIn(p.Year, p.Month) {
		return fmt.Errorf("%w: day %d out of range for %04d-%02d", ErrMalformedDateTime, p.Day, p.Year, p.Month)
	}
	if p.Hour < 0 || p.Hour > 23 {
		return fmt.Errorf("%w: hour %d out of range", ErrMalformedDateTime, p.Hour)
	}
	if p.Minute < 0 || p.Minute > 59 {
		return fmt.Errorf("%w: minute %d out of range", ErrMalformedDateTime, p.Minute)
	}
	if p.Second < 0 || p.Second > 59 {
		return fmt.Errorf("%w: second %d out of range", ErrMalformedDateTime, p.Second)
	}
	return nil
}

func daysIn(year, month int) int {
	// Day zero of the following month is the last day of this one.
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
