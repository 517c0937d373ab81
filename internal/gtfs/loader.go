package gtfs

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/transitoffer/offer_core/internal/models"
)

// Tables a feed must carry. calendar.txt and calendar_dates.txt are
// individually optional, but every service_id referenced by a trip has to be
// defined in at least one of them.
var requiredFiles = []string{
	"agency.txt",
	"routes.txt",
	"trips.txt",
	"stops.txt",
	"stop_times.txt",
}

var requiredColumns = map[string][]string{
	"agency":         {"agency_name"},
	"routes":         {"route_id", "route_type"},
	"trips":          {"trip_id", "route_id", "service_id"},
	"stops":          {"stop_id", "stop_lat", "stop_lon"},
	"stop_times":     {"trip_id", "stop_id", "stop_sequence", "departure_time"},
	"calendar":       {"service_id", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday", "start_date", "end_date"},
	"calendar_dates": {"service_id", "date", "exception_type"},
}

// table holds one parsed CSV file: a column index plus raw records.
type table struct {
	name string
	cols map[string]int
	rows [][]string
}

func (t *table) field(row []string, col string) string {
	if idx, ok := t.cols[col]; ok && idx < len(row) {
		return strings.TrimSpace(row[idx])
	}
	return ""
}

// LoadFile reads and ingests a GTFS zip archive from disk.
func LoadFile(path string) (*models.Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	return Load(data)
}

// Load parses a GTFS zip archive into a fully validated in-memory Feed.
// Every defect is collected before failing: the returned error is a
// *ValidationError listing all offending rows, never just the first one.
// A Feed is either fully valid or not produced at all.
func Load(archive []byte) (*models.Feed, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("failed to open zip archive: %w", err)
	}

	verr := &ValidationError{}

	tables := make(map[string]*table)
	for _, file := range zr.File {
		name := file.Name
		if !strings.HasSuffix(name, ".txt") {
			continue
		}
		base := strings.TrimSuffix(name[strings.LastIndex(name, "/")+1:], ".txt")
		tbl, err := readTable(file, base)
		if err != nil {
			verr.add(base, 0, "", "unreadable table: %v", err)
			continue
		}
		tables[base] = tbl
	}

	for _, name := range requiredFiles {
		base := strings.TrimSuffix(name, ".txt")
		if _, ok := tables[base]; !ok {
			verr.add(base, 0, "", "required file %s is missing", name)
		}
	}
	if _, hasCal := tables["calendar"]; !hasCal {
		if _, hasDates := tables["calendar_dates"]; !hasDates {
			verr.add("calendar", 0, "", "feed carries neither calendar.txt nor calendar_dates.txt")
		}
	}

	// Column presence first; a table missing required columns is not parsed.
	for name, cols := range requiredColumns {
		tbl, ok := tables[name]
		if !ok {
			continue
		}
		for _, col := range cols {
			if _, ok := tbl.cols[col]; !ok {
				verr.add(name, 0, "", "missing required column %q", col)
				delete(tables, name)
				break
			}
		}
	}

	feed := &models.Feed{IngestedAt: time.Now().UTC()}
	if tbl, ok := tables["agency"]; ok {
		feed.Agencies = parseAgencies(tbl)
	}
	if tbl, ok := tables["routes"]; ok {
		feed.Routes = parseRoutes(tbl, verr)
	}
	if tbl, ok := tables["trips"]; ok {
		feed.Trips = parseTrips(tbl, verr)
	}
	if tbl, ok := tables["stops"]; ok {
		feed.Stops = parseStops(tbl, verr)
	}
	if tbl, ok := tables["stop_times"]; ok {
		feed.StopTimes = parseStopTimes(tbl, verr)
	}
	if tbl, ok := tables["calendar"]; ok {
		feed.Calendars = parseCalendars(tbl, verr)
	}
	if tbl, ok := tables["calendar_dates"]; ok {
		feed.CalendarDates = parseCalendarDates(tbl, verr)
	}

	checkReferences(feed, verr)
	checkStopTimeOrdering(feed, verr)

	if verr.hasIssues() {
		return nil, verr
	}

	feed.ID = feedIdentity(feed)
	return feed, nil
}

func readTable(file *zip.File, name string) (*table, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) > 0 {
		// Strip UTF-8 BOM some feeds prepend to the first header cell
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}

	cols := make(map[string]int)
	for i, col := range header {
		cols[strings.TrimSpace(col)] = i
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed CSV near row %d: %w", len(rows)+2, err)
		}
		rows = append(rows, record)
	}

	return &table{name: name, cols: cols, rows: rows}, nil
}

func parseAgencies(tbl *table) []models.Agency {
	agencies := make([]models.Agency, 0, len(tbl.rows))
	for _, row := range tbl.rows {
		agencies = append(agencies, models.Agency{
			AgencyID:   tbl.field(row, "agency_id"),
			AgencyName: tbl.field(row, "agency_name"),
			AgencyURL:  tbl.field(row, "agency_url"),
			Timezone:   tbl.field(row, "agency_timezone"),
		})
	}
	return agencies
}

func parseRoutes(tbl *table, verr *ValidationError) []models.Route {
	routes := make([]models.Route, 0, len(tbl.rows))
	seen := make(map[string]bool)
	for i, row := range tbl.rows {
		line := i + 2
		routeID := tbl.field(row, "route_id")
		if routeID == "" {
			verr.add("routes", line, "", "empty route_id")
			continue
		}
		if seen[routeID] {
			verr.add("routes", line, routeID, "duplicate route_id")
			continue
		}
		seen[routeID] = true

		routeType, err := strconv.Atoi(tbl.field(row, "route_type"))
		if err != nil {
			verr.add("routes", line, routeID, "unparsable route_type %q", tbl.field(row, "route_type"))
			continue
		}

		route := models.Route{
			RouteID:   routeID,
			AgencyID:  tbl.field(row, "agency_id"),
			ShortName: tbl.field(row, "route_short_name"),
			LongName:  tbl.field(row, "route_long_name"),
			RouteType: routeType,
		}
		route.Mode = models.InferMode(route)
		routes = append(routes, route)
	}
	return routes
}

func parseTrips(tbl *table, verr *ValidationError) []models.Trip {
	trips := make([]models.Trip, 0, len(tbl.rows))
	seen := make(map[string]bool)
	for i, row := range tbl.rows {
		line := i + 2
		tripID := tbl.field(row, "trip_id")
		if tripID == "" {
			verr.add("trips", line, "", "empty trip_id")
			continue
		}
		if seen[tripID] {
			verr.add("trips", line, tripID, "duplicate trip_id")
			continue
		}
		seen[tripID] = true

		direction := 0
		if dirStr := tbl.field(row, "direction_id"); dirStr != "" {
			d, err := strconv.Atoi(dirStr)
			if err != nil || (d != 0 && d != 1) {
				verr.add("trips", line, tripID, "unparsable direction_id %q", dirStr)
				continue
			}
			direction = d
		}

		trips = append(trips, models.Trip{
			TripID:      tripID,
			RouteID:     tbl.field(row, "route_id"),
			ServiceID:   tbl.field(row, "service_id"),
			Headsign:    tbl.field(row, "trip_headsign"),
			DirectionID: direction,
		})
	}
	return trips
}

func parseStops(tbl *table, verr *ValidationError) []models.Stop {
	stops := make([]models.Stop, 0, len(tbl.rows))
	seen := make(map[string]bool)
	for i, row := range tbl.rows {
		line := i + 2
		stopID := tbl.field(row, "stop_id")
		if stopID == "" {
			verr.add("stops", line, "", "empty stop_id")
			continue
		}
		if seen[stopID] {
			verr.add("stops", line, stopID, "duplicate stop_id")
			continue
		}
		seen[stopID] = true

		lat, latErr := strconv.ParseFloat(tbl.field(row, "stop_lat"), 64)
		lon, lonErr := strconv.ParseFloat(tbl.field(row, "stop_lon"), 64)
		if latErr != nil || lonErr != nil {
			verr.add("stops", line, stopID, "unparsable coordinates (%q, %q)", tbl.field(row, "stop_lat"), tbl.field(row, "stop_lon"))
			continue
		}
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			verr.add("stops", line, stopID, "coordinates out of range (%f, %f)", lat, lon)
			continue
		}

		stops = append(stops, models.Stop{
			StopID:   stopID,
			StopName: tbl.field(row, "stop_name"),
			Lat:      lat,
			Lon:      lon,
		})
	}
	return stops
}

func parseStopTimes(tbl *table, verr *ValidationError) []models.StopTime {
	stopTimes := make([]models.StopTime, 0, len(tbl.rows))
	for i, row := range tbl.rows {
		line := i + 2
		tripID := tbl.field(row, "trip_id")
		stopID := tbl.field(row, "stop_id")
		if tripID == "" || stopID == "" {
			verr.add("stop_times", line, tripID, "empty trip_id or stop_id")
			continue
		}

		sequence, err := strconv.Atoi(tbl.field(row, "stop_sequence"))
		if err != nil {
			verr.add("stop_times", line, tripID, "unparsable stop_sequence %q", tbl.field(row, "stop_sequence"))
			continue
		}

		depSecs, err := ParseTimeToSeconds(tbl.field(row, "departure_time"))
		if err != nil {
			verr.add("stop_times", line, tripID, "unparsable departure_time: %v", err)
			continue
		}

		stopTimes = append(stopTimes, models.StopTime{
			TripID:        tripID,
			StopID:        stopID,
			StopSequence:  sequence,
			DepartureSecs: depSecs,
		})
	}
	return stopTimes
}

func parseCalendars(tbl *table, verr *ValidationError) []models.Calendar {
	calendars := make([]models.Calendar, 0, len(tbl.rows))
	seen := make(map[string]bool)
	for i, row := range tbl.rows {
		line := i + 2
		serviceID := tbl.field(row, "service_id")
		if serviceID == "" {
			verr.add("calendar", line, "", "empty service_id")
			continue
		}
		if seen[serviceID] {
			verr.add("calendar", line, serviceID, "duplicate service_id")
			continue
		}
		seen[serviceID] = true

		days := make([]bool, 7)
		ok := true
		for j, col := range []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"} {
			flag := tbl.field(row, col)
			if flag != "0" && flag != "1" {
				verr.add("calendar", line, serviceID, "invalid %s flag %q", col, flag)
				ok = false
				break
			}
			days[j] = flag == "1"
		}
		if !ok {
			continue
		}

		startDate, startErr := ParseDate(tbl.field(row, "start_date"))
		endDate, endErr := ParseDate(tbl.field(row, "end_date"))
		if startErr != nil || endErr != nil {
			verr.add("calendar", line, serviceID, "unparsable validity range (%q, %q)", tbl.field(row, "start_date"), tbl.field(row, "end_date"))
			continue
		}

		calendars = append(calendars, models.Calendar{
			ServiceID: serviceID,
			Monday:    days[0],
			Tuesday:   days[1],
			Wednesday: days[2],
			Thursday:  days[3],
			Friday:    days[4],
			Saturday:  days[5],
			Sunday:    days[6],
			StartDate: startDate,
			EndDate:   endDate,
		})
	}
	return calendars
}

func parseCalendarDates(tbl *table, verr *ValidationError) []models.CalendarDate {
	dates := make([]models.CalendarDate, 0, len(tbl.rows))
	for i, row := range tbl.rows {
		line := i + 2
		serviceID := tbl.field(row, "service_id")
		if serviceID == "" {
			verr.add("calendar_dates", line, "", "empty service_id")
			continue
		}

		date, err := ParseDate(tbl.field(row, "date"))
		if err != nil {
			verr.add("calendar_dates", line, serviceID, "unparsable date %q", tbl.field(row, "date"))
			continue
		}

		exceptionType, err := strconv.Atoi(tbl.field(row, "exception_type"))
		if err != nil || (exceptionType != models.ExceptionAdded && exceptionType != models.ExceptionRemoved) {
			verr.add("calendar_dates", line, serviceID, "invalid exception_type %q", tbl.field(row, "exception_type"))
			continue
		}

		dates = append(dates, models.CalendarDate{
			ServiceID:     serviceID,
			Date:          date,
			ExceptionType: exceptionType,
		})
	}
	return dates
}

// checkReferences detects every dangling foreign key: trip->route,
// trip->service, stop_time->trip and stop_time->stop.
func checkReferences(feed *models.Feed, verr *ValidationError) {
	routeIDs := make(map[string]bool, len(feed.Routes))
	for _, route := range feed.Routes {
		routeIDs[route.RouteID] = true
	}
	tripIDs := make(map[string]bool, len(feed.Trips))
	for _, trip := range feed.Trips {
		tripIDs[trip.TripID] = true
	}
	stopIDs := make(map[string]bool, len(feed.Stops))
	for _, stop := range feed.Stops {
		stopIDs[stop.StopID] = true
	}
	serviceIDs := make(map[string]bool, len(feed.Calendars))
	for _, cal := range feed.Calendars {
		serviceIDs[cal.ServiceID] = true
	}
	for _, cd := range feed.CalendarDates {
		serviceIDs[cd.ServiceID] = true
	}

	for i, trip := range feed.Trips {
		line := i + 2
		if !routeIDs[trip.RouteID] {
			verr.add("trips", line, trip.TripID, "references unknown route %q", trip.RouteID)
		}
		if !serviceIDs[trip.ServiceID] {
			verr.add("trips", line, trip.TripID, "references unknown service %q", trip.ServiceID)
		}
	}

	for i, st := range feed.StopTimes {
		line := i + 2
		if !tripIDs[st.TripID] {
			verr.add("stop_times", line, st.TripID, "references unknown trip %q", st.TripID)
		}
		if !stopIDs[st.StopID] {
			verr.add("stop_times", line, st.TripID, "references unknown stop %q", st.StopID)
		}
	}
}

// checkStopTimeOrdering enforces strictly increasing stop_sequence and
// non-decreasing departure offsets within every trip.
func checkStopTimeOrdering(feed *models.Feed, verr *ValidationError) {
	byTrip := make(map[string][]models.StopTime)
	for _, st := range feed.StopTimes {
		byTrip[st.TripID] = append(byTrip[st.TripID], st)
	}

	tripIDs := make([]string, 0, len(byTrip))
	for tripID := range byTrip {
		tripIDs = append(tripIDs, tripID)
	}
	sort.Strings(tripIDs)

	for _, tripID := range tripIDs {
		times := byTrip[tripID]
		sort.Slice(times, func(i, j int) bool { return times[i].StopSequence < times[j].StopSequence })
		for i := 1; i < len(times); i++ {
			if times[i].StopSequence == times[i-1].StopSequence {
				verr.add("stop_times", 0, tripID, "duplicate stop_sequence %d", times[i].StopSequence)
			}
			if times[i].DepartureSecs < times[i-1].DepartureSecs {
				verr.add("stop_times", 0, tripID, "departure offsets decrease at stop_sequence %d", times[i].StopSequence)
			}
		}
	}
}

// feedIdentity derives the content hash naming the feed. Rows are rendered
// canonically and sorted per table, so row order in the source files does not
// change the identity, while any content change does.
func feedIdentity(feed *models.Feed) string {
	hasher := sha256.New()

	writeSection := func(name string, lines []string) {
		sort.Strings(lines)
		fmt.Fprintf(hasher, "#%s\n", name)
		for _, line := range lines {
			hasher.Write([]byte(line))
			hasher.Write([]byte{'\n'})
		}
	}

	lines := make([]string, 0, len(feed.Agencies))
	for _, a := range feed.Agencies {
		lines = append(lines, strings.Join([]string{a.AgencyID, a.AgencyName, a.AgencyURL, a.Timezone}, "\x1f"))
	}
	writeSection("agency", lines)

	lines = lines[:0]
	for _, r := range feed.Routes {
		lines = append(lines, strings.Join([]string{r.RouteID, r.AgencyID, r.ShortName, r.LongName, strconv.Itoa(r.RouteType)}, "\x1f"))
	}
	writeSection("routes", lines)

	lines = lines[:0]
	for _, t := range feed.Trips {
		lines = append(lines, strings.Join([]string{t.TripID, t.RouteID, t.ServiceID, t.Headsign, strconv.Itoa(t.DirectionID)}, "\x1f"))
	}
	writeSection("trips", lines)

	lines = lines[:0]
	for _, s := range feed.Stops {
		lines = append(lines, strings.Join([]string{
			s.StopID, s.StopName,
			strconv.FormatFloat(s.Lat, 'f', -1, 64),
			strconv.FormatFloat(s.Lon, 'f', -1, 64),
		}, "\x1f"))
	}
	writeSection("stops", lines)

	lines = lines[:0]
	for _, st := range feed.StopTimes {
		lines = append(lines, strings.Join([]string{st.TripID, st.StopID, strconv.Itoa(st.StopSequence), strconv.Itoa(st.DepartureSecs)}, "\x1f"))
	}
	writeSection("stop_times", lines)

	lines = lines[:0]
	for _, c := range feed.Calendars {
		mask := make([]byte, 7)
		for i, active := range []bool{c.Monday, c.Tuesday, c.Wednesday, c.Thursday, c.Friday, c.Saturday, c.Sunday} {
			if active {
				mask[i] = '1'
			} else {
				mask[i] = '0'
			}
		}
		lines = append(lines, strings.Join([]string{c.ServiceID, string(mask), c.StartDate.Format("20060102"), c.EndDate.Format("20060102")}, "\x1f"))
	}
	writeSection("calendar", lines)

	lines = lines[:0]
	for _, cd := range feed.CalendarDates {
		lines = append(lines, strings.Join([]string{cd.ServiceID, cd.Date.Format("20060102"), strconv.Itoa(cd.ExceptionType)}, "\x1f"))
	}
	writeSection("calendar_dates", lines)

	return hex.EncodeToString(hasher.Sum(nil))
}
