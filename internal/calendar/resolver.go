// Package calendar resolves GTFS service calendars into per-date active
// service sets and classifies dates into day types.
package calendar

import (
	"sort"
	"time"

	"github.com/transitoffer/offer_core/internal/models"
)

// DayInfo is the resolution for a single date. ActiveServiceIDs is sorted
// and may be empty: a date with no service is still a valid, retained date.
type DayInfo struct {
	Date             time.Time `json:"date"`
	DayType          string    `json:"day_type"`
	ActiveServiceIDs []string  `json:"active_service_ids"`
}

// Resolution maps every date of the requested range to exactly one day type
// and one active service set.
type Resolution struct {
	Days []DayInfo
}

// Resolve computes the active service set and day type for every date from
// `from` to `to` inclusive. The rule is pure: the weekly mask applies when the
// calendar validity range covers the date, then calendar_dates exceptions
// override it (added forces active, removed forces inactive). A date whose
// effective set was changed by an exception is labelled custom:<YYYYMMDD>;
// otherwise it carries its weekday class.
func Resolve(feed *models.Feed, from, to time.Time) Resolution {
	from = truncate(from)
	to = truncate(to)

	exceptions := make(map[string]map[string]int) // date -> service_id -> exception_type
	for _, cd := range feed.CalendarDates {
		key := cd.Date.Format("20060102")
		if exceptions[key] == nil {
			exceptions[key] = make(map[string]int)
		}
		exceptions[key][cd.ServiceID] = cd.ExceptionType
	}

	var resolution Resolution
	for date := from; !date.After(to); date = date.AddDate(0, 0, 1) {
		base := make(map[string]bool)
		for _, cal := range feed.Calendars {
			if cal.ActiveOn(date) {
				base[cal.ServiceID] = true
			}
		}

		final := make(map[string]bool, len(base))
		for id := range base {
			final[id] = true
		}
		for serviceID, exceptionType := range exceptions[date.Format("20060102")] {
			switch exceptionType {
			case models.ExceptionAdded:
				final[serviceID] = true
			case models.ExceptionRemoved:
				delete(final, serviceID)
			}
		}

		dayType := classify(date)
		if !sameSet(base, final) {
			dayType = models.CustomDayType(date)
		}

		resolution.Days = append(resolution.Days, DayInfo{
			Date:             date,
			DayType:          dayType,
			ActiveServiceIDs: sortedKeys(final),
		})
	}

	return resolution
}

// DefaultRange returns the feed's validity span: the earliest calendar start
// or added exception date through the latest calendar end or added exception
// date. ok is false when the feed defines no dates at all.
func DefaultRange(feed *models.Feed) (from, to time.Time, ok bool) {
	for _, cal := range feed.Calendars {
		if !ok || cal.StartDate.Before(from) {
			from = cal.StartDate
		}
		if to.Before(cal.EndDate) {
			to = cal.EndDate
		}
		ok = true
	}
	for _, cd := range feed.CalendarDates {
		if cd.ExceptionType != models.ExceptionAdded {
			continue
		}
		if !ok || cd.Date.Before(from) {
			from = cd.Date
		}
		if to.Before(cd.Date) {
			to = cd.Date
		}
		ok = true
	}
	return from, to, ok
}

// ServiceIDsFor returns the representative service set for a day type: the
// union of every matching date's active set for the generic classes, or
// exactly one date's set for a custom label. ok is false when the label was
// never produced for this resolution.
func (r Resolution) ServiceIDsFor(dayType string) ([]string, bool) {
	union := make(map[string]bool)
	found := false
	for _, day := range r.Days {
		if day.DayType != dayType {
			continue
		}
		found = true
		for _, id := range day.ActiveServiceIDs {
			union[id] = true
		}
	}
	if !found {
		return nil, false
	}
	return sortedKeys(union), true
}

// DayTypes lists every label the resolution produced, sorted.
func (r Resolution) DayTypes() []string {
	seen := make(map[string]bool)
	for _, day := range r.Days {
		seen[day.DayType] = true
	}
	return sortedKeys(seen)
}

func classify(date time.Time) string {
	switch date.Weekday() {
	case time.Saturday:
		return models.DayTypeSaturday
	case time.Sunday:
		return models.DayTypeSunday
	default:
		return models.DayTypeWeekday
	}
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if !b[id] {
			return false
		}
	}
	return true
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ValiditySpan reports the feed validity window as GTFS date strings for the
// dataset registry. Empty strings when the feed defines no dates.
func ValiditySpan(feed *models.Feed) (start, end string) {
	from, to, ok := DefaultRange(feed)
	if !ok {
		return "", ""
	}
	return from.Format("20060102"), to.Format("20060102")
}
