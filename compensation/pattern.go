package compensation

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// DAY PATTERN - Which weekdays a student is taught on
// =============================================================================

// PatternKind tags the DayPattern variant.
type PatternKind int

const (
	// PatternNone means no pattern was supplied.
	PatternNone PatternKind = iota
	// PatternAllDays is every day, subject to the rest-day policy.
	PatternAllDays
	// PatternFixed is Monday, Wednesday, Friday.
	PatternFixed
	// PatternFixedAlt is Tuesday, Thursday, Saturday.
	PatternFixedAlt
	// PatternExplicit is an explicit weekday set.
	PatternExplicit
	// PatternUnknown is a supplied pattern that could not be parsed.
	PatternUnknown
)

func (k PatternKind) String() string {
	switch k {
	case PatternNone:
		return "none"
	case PatternAllDays:
		return "all_days"
	case PatternFixed:
		return "mwf"
	case PatternFixedAlt:
		return "tts"
	case PatternExplicit:
		return "explicit"
	case PatternUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("PatternKind(%d)", int(k))
	}
}

// weekdaySet is a bitmask over time.Weekday.
type weekdaySet uint8

func setOf(days ...time.Weekday) weekdaySet {
	var s weekdaySet
	for _, d := range days {
		s |= 1 << uint(d)
	}
	return s
}

func (s weekdaySet) has(d time.Weekday) bool { return s&(1<<uint(d)) != 0 }

var (
	fixedDays    = setOf(time.Monday, time.Wednesday, time.Friday)
	fixedAltDays = setOf(time.Tuesday, time.Thursday, time.Saturday)
	workweekDays = setOf(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday)
	allDays      = setOf(time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday)
)

// DayPattern is a parsed weekly schedule. The zero value is PatternNone.
// Raw keeps the source text for display and audit only.
type DayPattern struct {
	Kind PatternKind
	Raw  string
	days weekdaySet
}

// NoPattern is the empty pattern.
var NoPattern = DayPattern{Kind: PatternNone}

// AllDaysPattern returns the "every day" pattern.
func AllDaysPattern() DayPattern { return DayPattern{Kind: PatternAllDays, days: allDays} }

// WeekdaysPattern returns an explicit pattern over days.
func WeekdaysPattern(days ...time.Weekday) DayPattern {
	if len(days) == 0 {
		return NoPattern
	}
	return DayPattern{Kind: PatternExplicit, days: setOf(days...)}
}

var weekdayTokens = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseDayPattern classifies free text once, at load time.
//
//	""                           -> PatternNone
//	"all days", "daily", "all"   -> PatternAllDays
//	"mwf"                        -> PatternFixed
//	"tts", "tths"                -> PatternFixedAlt
//	"mon wed", "Tue, Thu/Sat"    -> PatternExplicit
//	anything else                -> PatternUnknown
func ParseDayPattern(raw string) DayPattern {
	norm := strings.ToLower(strings.TrimSpace(raw))
	if norm == "" {
		return NoPattern
	}

	switch strings.Join(strings.Fields(norm), " ") {
	case "all days", "all", "daily", "everyday", "every day":
		return DayPattern{Kind: PatternAllDays, Raw: raw, days: allDays}
	case "mwf":
		return DayPattern{Kind: PatternFixed, Raw: raw, days: fixedDays}
	case "tts", "tths":
		return DayPattern{Kind: PatternFixedAlt, Raw: raw, days: fixedAltDays}
	}

	tokens := strings.FieldsFunc(norm, func(r rune) bool {
		return r == ' ' || r == ',' || r == '/' || r == '\t'
	})
	var set weekdaySet
	for _, tok := range tokens {
		wd, ok := weekdayTokens[tok]
		if !ok {
			return DayPattern{Kind: PatternUnknown, Raw: raw}
		}
		set |= setOf(wd)
	}
	if set == 0 {
		return DayPattern{Kind: PatternUnknown, Raw: raw}
	}
	return DayPattern{Kind: PatternExplicit, Raw: raw, days: set}
}

// IsZero reports whether no pattern was supplied.
func (p DayPattern) IsZero() bool { return p.Kind == PatternNone }

// Resolved reports whether the pattern names concrete weekdays.
func (p DayPattern) Resolved() bool {
	return p.Kind != PatternNone && p.Kind != PatternUnknown
}

// Includes reports whether the pattern names wd. Unresolved patterns include nothing.
func (p DayPattern) Includes(wd time.Weekday) bool {
	return p.Resolved() && p.days.has(wd)
}

// Weekdays lists the pattern's days in Sunday-first order.
func (p DayPattern) Weekdays() []time.Weekday {
	if !p.Resolved() {
		return nil
	}
	var out []time.Weekday
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if p.days.has(wd) {
			out = append(out, wd)
		}
	}
	return out
}

// String renders the pattern in the canonical form ParseDayPattern accepts.
func (p DayPattern) String() string {
	switch p.Kind {
	case PatternNone:
		return ""
	case PatternAllDays:
		return "all days"
	case PatternFixed:
		return "mwf"
	case PatternFixedAlt:
		return "tts"
	case PatternUnknown:
		return p.Raw
	}
	days := p.Weekdays()
	sort.Slice(days, func(i, j int) bool { return isoOrder(days[i]) < isoOrder(days[j]) })
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = strings.ToLower(d.String()[:3])
	}
	return strings.Join(names, " ")
}

// Equal compares kind and weekday set; Raw is ignored.
func (p DayPattern) Equal(other DayPattern) bool {
	if p.Kind == PatternUnknown || other.Kind == PatternUnknown {
		return p.Kind == other.Kind && p.Raw == other.Raw
	}
	return p.Kind == other.Kind && p.days == other.days
}

// MarshalText stores the canonical form.
func (p DayPattern) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText parses with ParseDayPattern.
func (p *DayPattern) UnmarshalText(b []byte) error {
	*p = ParseDayPattern(string(b))
	return nil
}

// isoOrder puts Monday first.
func isoOrder(d time.Weekday) int { return (int(d) + 6) % 7 }
