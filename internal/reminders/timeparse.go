package reminders

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const displayLayout = "02 Jan 2006 15:04 MST"

var (
	// ErrInvalidDate indicates the date text could not be understood.
	ErrInvalidDate = errors.New("reminders: invalid date format")
	// ErrInvalidTime indicates the time text is not a valid HH:MM value.
	ErrInvalidTime = errors.New("reminders: invalid time format, expected HH:MM")
	// ErrUnknownZone indicates the configured zone name could not be loaded.
	ErrUnknownZone = errors.New("reminders: unknown time zone")
)

var monthsByName = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

// Normalizer converts between loosely formatted local date/time input and
// the UTC instants the store persists. All reminders are entered and
// displayed in one fixed configured zone.
type Normalizer struct {
	loc *time.Location
}

// NewNormalizer loads the named IANA zone and returns a Normalizer bound to it.
func NewNormalizer(zoneName string) (*Normalizer, error) {
	name := strings.TrimSpace(zoneName)
	if name == "" {
		return nil, fmt.Errorf("%w: empty zone name", ErrUnknownZone)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownZone, name)
	}
	return &Normalizer{loc: loc}, nil
}

// Location exposes the configured zone.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Now returns the current instant in the configured zone.
func (n *Normalizer) Now(clock func() time.Time) time.Time {
	return clock().In(n.loc)
}

// ToUTC converts a local instant to its storage representation.
func (n *Normalizer) ToUTC(local time.Time) time.Time {
	return local.UTC()
}

// ToLocal converts a stored UTC instant back to the configured zone.
func (n *Normalizer) ToLocal(utc time.Time) time.Time {
	return utc.In(n.loc)
}

// FormatLocal renders a stored UTC instant for chat display.
func (n *Normalizer) FormatLocal(utc time.Time) string {
	return utc.In(n.loc).Format(displayLayout)
}

// ParseLocal resolves loosely formatted date text plus a strict HH:MM time
// against the reference instant and returns the resulting local instant.
//
// Date text accepts day-first forms: "15", "15 Mar", "15 Mar 2024", "15/3",
// "15-03-2024", "Mar 15". Fields the input does not carry fall back to the
// reference instant: a missing year takes the reference year and an empty
// date takes the reference month and day. The fallback is driven by which
// fields were actually seen, never by sentinel values a parser happened to
// fill in.
func (n *Normalizer) ParseLocal(dateText, timeText string, referenceNow time.Time) (time.Time, error) {
	hour, minute, err := parseClock(timeText)
	if err != nil {
		return time.Time{}, err
	}

	reference := referenceNow.In(n.loc)
	fields, err := parseDateFields(dateText)
	if err != nil {
		return time.Time{}, err
	}

	year := reference.Year()
	month := reference.Month()
	day := reference.Day()
	if fields.hasDay {
		day = fields.day
	}
	if fields.hasMonth {
		month = fields.month
	}
	if fields.hasYear {
		year = fields.year
	}

	resolved := time.Date(year, month, day, hour, minute, 0, 0, n.loc)
	if resolved.Year() != year || resolved.Month() != month || resolved.Day() != day {
		return time.Time{}, fmt.Errorf("%w: %q is not a calendar date", ErrInvalidDate, strings.TrimSpace(dateText))
	}
	return resolved, nil
}

func parseClock(timeText string) (int, int, error) {
	trimmed := strings.TrimSpace(timeText)
	parsed, err := time.Parse("15:04", trimmed)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, trimmed)
	}
	return parsed.Hour(), parsed.Minute(), nil
}

type dateFields struct {
	day      int
	month    time.Month
	year     int
	hasDay   bool
	hasMonth bool
	hasYear  bool
}

// parseDateFields tokenizes the date text and classifies every token as a
// day, month, or year. Ambiguous numeric pairs resolve day-before-month.
func parseDateFields(dateText string) (dateFields, error) {
	fields := dateFields{}
	tokens := strings.FieldsFunc(dateText, func(r rune) bool {
		return r == ' ' || r == '/' || r == '-' || r == '.' || r == ','
	})
	if len(tokens) == 0 {
		return fields, nil
	}
	if len(tokens) > 3 {
		return fields, fmt.Errorf("%w: %q", ErrInvalidDate, strings.TrimSpace(dateText))
	}

	numbers := make([]int, 0, 3)
	for _, token := range tokens {
		lowered := strings.ToLower(token)
		if month, ok := monthsByName[lowered]; ok {
			if fields.hasMonth {
				return dateFields{}, fmt.Errorf("%w: %q", ErrInvalidDate, strings.TrimSpace(dateText))
			}
			fields.month = month
			fields.hasMonth = true
			continue
		}
		value, err := strconv.Atoi(token)
		if err != nil || value < 0 {
			return dateFields{}, fmt.Errorf("%w: %q", ErrInvalidDate, strings.TrimSpace(dateText))
		}
		numbers = append(numbers, value)
	}

	for _, value := range numbers {
		switch {
		case value >= 1000:
			if fields.hasYear {
				return dateFields{}, fmt.Errorf("%w: %q", ErrInvalidDate, strings.TrimSpace(dateText))
			}
			fields.year = value
			fields.hasYear = true
		case !fields.hasDay:
			fields.day = value
			fields.hasDay = true
		case !fields.hasMonth && value >= 1 && value <= 12:
			fields.month = time.Month(value)
			fields.hasMonth = true
		default:
			return dateFields{}, fmt.Errorf("%w: %q", ErrInvalidDate, strings.TrimSpace(dateText))
		}
	}

	if fields.hasDay && (fields.day < 1 || fields.day > 31) {
		return dateFields{}, fmt.Errorf("%w: %q", ErrInvalidDate, strings.TrimSpace(dateText))
	}
	return fields, nil
}
