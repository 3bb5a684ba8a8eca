package timezone

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var (
	// An offset only counts when it directly follows a clock time.
	explicitOffsetPattern = regexp.MustCompile(`\d{2}:\d{2}(?::\d{2}(?:\.\d+)?)?\s*(?:[zZ]|[+-](\d{2}):?(\d{2}))$`)
	civilDateTimePattern  = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})[T\s](\d{2}):(\d{2})(?::(\d{2}))?`)
	civilDatePattern      = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	monthFirstDatePattern = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})$`)
)

// Real UTC offsets stay within -12:00 and +14:00.
const maxOffsetHours = 14

var offsetLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04Z0700",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04Z07:00",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02 15:04Z0700",
}

// HasExplicitOffset reports whether s ends in a time followed by "Z" or a
// numeric UTC offset. A trailing "-22:00" is a time range, not an offset.
func HasExplicitOffset(s string) bool {
	m := explicitOffsetPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return false
	}
	if m[1] == "" {
		return true
	}
	return atoi(m[1]) <= maxOffsetHours && atoi(m[2]) < 60
}

// Parse reads an ISO-8601-like string. Strings with an explicit offset are
// taken as-is. Strings without one are civil time in zone, never UTC and
// never the process's local zone.
func (r *Resolver) Parse(s, zone string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrMalformedDateTime)
	}

	offset := HasExplicitOffset(s)
	if offset {
		if strings.HasSuffix(s, "z") {
			s = s[:len(s)-1] + "Z"
		}
		for _, layout := range offsetLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		// RFC 1123 and friends also end in a numeric offset.
		if t, err := dateparse.ParseAny(s); err == nil {
			return t.UTC(), nil
		}
	}

	// The civil paths would drop an offset the layouts above could not read.
	if m := civilDateTimePattern.FindStringSubmatch(s); m != nil && !offset {
		p := Parts{
			Year:   atoi(m[1]),
			Month:  atoi(m[2]),
			Day:    atoi(m[3]),
			Hour:   atoi(m[4]),
			Minute: atoi(m[5]),
		}
		if m[6] != "" {
			p.Second = atoi(m[6])
		}
		return r.Resolve(p, zone)
	}

	if m := civilDatePattern.FindStringSubmatch(s); m != nil && !offset {
		return r.Resolve(Parts{Year: atoi(m[1]), Month: atoi(m[2]), Day: atoi(m[3])}, zone)
	}

	if m := monthFirstDatePattern.FindStringSubmatch(s); m != nil && !offset {
		return r.Resolve(Parts{Year: atoi(m[3]), Month: atoi(m[1]), Day: atoi(m[2])}, zone)
	}

	loc, err := r.Location(zone)
	if err != nil {
		return time.Time{}, err
	}

	t, err := dateparse.ParseIn(s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedDateTime, s)
	}

	return t.UTC(), nil
}

// ParseDefault parses s in the resolver's default zone.
func (r *Resolver) ParseDefault(s string) (time.Time, error) {
	return r.Parse(s, r.defaultZone)
}

// StartOfDay returns midnight of t's calendar day in zone.
func (r *Resolver) StartOfDay(t time.Time, zone string) (time.Time, error) {
	loc, err := r.Location(zone)
	if err != nil {
		return time.Time{}, err
	}
	local := t.In(loc)
	return r.Resolve(Parts{Year: local.Year(), Month: int(local.Month()), Day: local.Day()}, zone)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
