package models

import (
	"strings"
	"time"
)

// TransitMode represents the type of transit service
type TransitMode string

const (
	ModeBus   TransitMode = "BUS"
	ModeTram  TransitMode = "TRAM"
	ModeMetro TransitMode = "METRO"
	ModeRail  TransitMode = "RAIL"
	ModeFerry TransitMode = "FERRY"
	ModeCable TransitMode = "CABLE"
)

// Day-type labels produced by the calendar resolver.
// Exceptional dates are labelled "custom:<YYYYMMDD>" so they never pollute
// the generic aggregates.
const (
	DayTypeWeekday  = "weekday"
	DayTypeSaturday = "saturday"
	DayTypeSunday   = "sunday"

	CustomDayTypePrefix = "custom:"
)

// CustomDayType builds the day-type label for an exceptional service date.
func CustomDayType(date time.Time) string {
	return CustomDayTypePrefix + date.Format("20060102")
}

// Feed is one fully validated GTFS archive held in memory.
// ID is a content hash over the normalized tables, so re-ingesting the same
// archive always yields the same identity. A Feed is never mutated after Load.
type Feed struct {
	ID            string         `json:"feed_id"`
	IngestedAt    time.Time      `json:"ingested_at"`
	Agencies      []Agency       `json:"agencies"`
	Routes        []Route        `json:"routes"`
	Trips         []Trip         `json:"trips"`
	Stops         []Stop         `json:"stops"`
	StopTimes     []StopTime     `json:"stop_times"`
	Calendars     []Calendar     `json:"calendars"`
	CalendarDates []CalendarDate `json:"calendar_dates"`
}

// Agency represents an agency from agency.txt
type Agency struct {
	AgencyID   string `json:"agency_id"`
	AgencyName string `json:"agency_name"`
	AgencyURL  string `json:"agency_url"`
	Timezone   string `json:"agency_timezone"`
}

// Route represents a route from routes.txt
type Route struct {
	RouteID   string      `json:"route_id"`
	AgencyID  string      `json:"agency_id"`
	ShortName string      `json:"short_name"`
	LongName  string      `json:"long_name"`
	RouteType int         `json:"route_type"`
	Mode      TransitMode `json:"mode"`
}

// Label returns the display name of the route, preferring the short name.
func (r Route) Label() string {
	if r.ShortName != "" {
		return r.ShortName
	}
	return r.LongName
}

// Trip represents a trip from trips.txt
type Trip struct {
	TripID      string `json:"trip_id"`
	RouteID     string `json:"route_id"`
	ServiceID   string `json:"service_id"`
	Headsign    string `json:"headsign"`
	DirectionID int    `json:"direction_id"`
}

// Stop represents a stop from stops.txt
type Stop struct {
	StopID   string  `json:"stop_id"`
	StopName string  `json:"stop_name"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
}

// StopTime represents a stop time from stop_times.txt.
// DepartureSecs is seconds since the start of the service day; values above
// 24h are kept as-is so after-midnight trips stay on their service day.
type StopTime struct {
	TripID        string `json:"trip_id"`
	StopID        string `json:"stop_id"`
	StopSequence  int    `json:"stop_sequence"`
	DepartureSecs int    `json:"departure_seconds"`
}

// Calendar represents a weekly service pattern from calendar.txt
type Calendar struct {
	ServiceID string    `json:"service_id"`
	Monday    bool      `json:"monday"`
	Tuesday   bool      `json:"tuesday"`
	Wednesday bool      `json:"wednesday"`
	Thursday  bool      `json:"thursday"`
	Friday    bool      `json:"friday"`
	Saturday  bool      `json:"saturday"`
	Sunday    bool      `json:"sunday"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// ActiveOn reports whether the weekly mask covers the given date.
// Exceptions from calendar_dates are applied by the calendar resolver, not here.
func (c Calendar) ActiveOn(date time.Time) bool {
	if date.Before(c.StartDate) || date.After(c.EndDate) {
		return false
	}
	switch date.Weekday() {
	case time.Monday:
		return c.Monday
	case time.Tuesday:
		return c.Tuesday
	case time.Wednesday:
		return c.Wednesday
	case time.Thursday:
		return c.Thursday
	case time.Friday:
		return c.Friday
	case time.Saturday:
		return c.Saturday
	default:
		return c.Sunday
	}
}

// Calendar date exception types per the GTFS reference
const (
	ExceptionAdded   = 1
	ExceptionRemoved = 2
)

// CalendarDate represents a service exception from calendar_dates.txt
type CalendarDate struct {
	ServiceID     string    `json:"service_id"`
	Date          time.Time `json:"date"`
	ExceptionType int       `json:"exception_type"`
}

// HeadwayRecord is one (route, direction, day type, time bin) aggregate.
// The percentile fields are nil when the bin holds fewer than two departures:
// a single departure has no defined headway.
type HeadwayRecord struct {
	FeedID        string      `json:"feed_id"`
	DayType       string      `json:"day_type"`
	RouteID       string      `json:"route_id"`
	RouteName     string      `json:"route_name,omitempty"`
	Mode          TransitMode `json:"mode,omitempty"`
	DirectionID   int         `json:"direction_id"`
	BinStartSecs  int         `json:"bin_start_seconds"`
	BinLabel      string      `json:"bin_label"`
	Departures    int         `json:"departures"`
	HeadwayP50Min *float64    `json:"headway_p50_min,omitempty"`
	HeadwayP90Min *float64    `json:"headway_p90_min,omitempty"`
}

// ServiceKPI summarises the span of service for one route and direction
// under a day type.
type ServiceKPI struct {
	FeedID         string `json:"feed_id"`
	DayType        string `json:"day_type"`
	RouteID        string `json:"route_id"`
	DirectionID    int    `json:"direction_id"`
	FirstDeparture string `json:"first_departure"`
	LastDeparture  string `json:"last_departure"`
	Departures     int    `json:"departures"`
}

// AccessibilityMetric is one (zone, day type) coverage aggregate.
// Zones with no member stops still get an explicit zero-valued metric so
// callers can tell "no service" from "not computed".
type AccessibilityMetric struct {
	FeedID         string  `json:"feed_id"`
	DayType        string  `json:"day_type"`
	ZoneID         string  `json:"zone_id"`
	StopCount      int     `json:"stop_count"`
	FrequencyScore float64 `json:"frequency_score"`
}

// InferMode determines the transit mode from a GTFS route
// Priority: keyword matching, then route_type field, default to BUS
func InferMode(route Route) TransitMode {
	routeName := strings.ToUpper(route.ShortName + " " + route.LongName)

	if strings.Contains(routeName, "TRAIN") || strings.Contains(routeName, "RAIL") {
		return ModeRail
	}
	if strings.Contains(routeName, "FERRY") || strings.Contains(routeName, "BOAT") {
		return ModeFerry
	}
	if strings.Contains(routeName, "TRAM") {
		return ModeTram
	}
	if strings.Contains(routeName, "METRO") || strings.Contains(routeName, "SUBWAY") {
		return ModeMetro
	}

	// GTFS route_type mapping
	// https://developers.google.com/transit/gtfs/reference#routestxt
	switch route.RouteType {
	case 0: // Tram, Streetcar, Light rail
		return ModeTram
	case 1: // Subway, Metro
		return ModeMetro
	case 2: // Rail
		return ModeRail
	case 3: // Bus
		return ModeBus
	case 4: // Ferry
		return ModeFerry
	case 5: // Cable tram
		return ModeCable
	case 6: // Aerial lift, suspended cable car
		return ModeCable
	case 7: // Funicular
		return ModeCable
	}

	return ModeBus
}
