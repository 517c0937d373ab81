package gtfs

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildArchive zips the given file contents in memory.
func buildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func validFeedFiles() map[string]string {
	return map[string]string{
		"agency.txt": "agency_id,agency_name,agency_url,agency_timezone\n" +
			"1,Metro Transit,https://example.com,UTC\n",
		"routes.txt": "route_id,agency_id,route_short_name,route_long_name,route_type\n" +
			"R1,1,10,Main Street,3\n",
		"trips.txt": "trip_id,route_id,service_id,direction_id\n" +
			"T1,R1,WK,0\n" +
			"T2,R1,WK,0\n",
		"stops.txt": "stop_id,stop_name,stop_lat,stop_lon\n" +
			"S1,Central,14.70,-17.45\n" +
			"S2,North,14.80,-17.40\n",
		"stop_times.txt": "trip_id,stop_id,stop_sequence,departure_time\n" +
			"T1,S1,1,08:00:00\n" +
			"T1,S2,2,08:10:00\n" +
			"T2,S1,1,08:15:00\n" +
			"T2,S2,2,08:25:00\n",
		"calendar.txt": "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
			"WK,1,1,1,1,1,0,0,20250901,20250930\n",
	}
}

func TestLoadValidFeed(t *testing.T) {
	feed, err := Load(buildArchive(t, validFeedFiles()))
	require.NoError(t, err)

	assert.NotEmpty(t, feed.ID)
	assert.Len(t, feed.Agencies, 1)
	assert.Len(t, feed.Routes, 1)
	assert.Len(t, feed.Trips, 2)
	assert.Len(t, feed.Stops, 2)
	assert.Len(t, feed.StopTimes, 4)
	assert.Len(t, feed.Calendars, 1)

	assert.Equal(t, "Metro Transit", feed.Agencies[0].AgencyName)
	assert.Equal(t, 8*3600, feed.StopTimes[0].DepartureSecs)
	assert.True(t, feed.Calendars[0].Monday)
	assert.False(t, feed.Calendars[0].Saturday)
}

func TestLoadIdentityIgnoresRowOrder(t *testing.T) {
	first, err := Load(buildArchive(t, validFeedFiles()))
	require.NoError(t, err)

	// Same content, rows permuted within their files.
	shuffled := validFeedFiles()
	shuffled["trips.txt"] = "trip_id,route_id,service_id,direction_id\n" +
		"T2,R1,WK,0\n" +
		"T1,R1,WK,0\n"
	shuffled["stop_times.txt"] = "trip_id,stop_id,stop_sequence,departure_time\n" +
		"T2,S2,2,08:25:00\n" +
		"T2,S1,1,08:15:00\n" +
		"T1,S2,2,08:10:00\n" +
		"T1,S1,1,08:00:00\n"
	second, err := Load(buildArchive(t, shuffled))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestLoadIdentityChangesWithContent(t *testing.T) {
	first, err := Load(buildArchive(t, validFeedFiles()))
	require.NoError(t, err)

	changed := validFeedFiles()
	changed["stop_times.txt"] = strings.Replace(changed["stop_times.txt"], "08:15:00", "08:20:00", 1)
	second, err := Load(buildArchive(t, changed))
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
}

func TestLoadAggregatesAllDefects(t *testing.T) {
	files := validFeedFiles()
	// Three independent defects in one archive.
	files["stops.txt"] = "stop_id,stop_name,stop_lat,stop_lon\n" +
		"S1,Central,14.70,-17.45\n" +
		"S2,North,95.0,-17.40\n" // latitude out of range
	files["trips.txt"] = "trip_id,route_id,service_id,direction_id\n" +
		"T1,R1,WK,0\n" +
		"T2,R9,WK,0\n" // unknown route
	files["stop_times.txt"] = "trip_id,stop_id,stop_sequence,departure_time\n" +
		"T1,S1,1,08:00:00\n" +
		"T1,S2,2,bogus\n" + // unparsable time, S2 also dropped above
		"T2,S1,1,08:15:00\n"

	_, err := Load(buildArchive(t, files))
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.GreaterOrEqual(t, len(verr.Issues), 3)
	assert.Contains(t, err.Error(), "coordinates out of range")
	assert.Contains(t, err.Error(), `references unknown route "R9"`)
	assert.Contains(t, err.Error(), "unparsable departure_time")
}

func TestLoadMissingRequiredFile(t *testing.T) {
	files := validFeedFiles()
	delete(files, "stops.txt")

	_, err := Load(buildArchive(t, files))
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, err.Error(), "required file stops.txt is missing")
}

func TestLoadMissingRequiredColumn(t *testing.T) {
	files := validFeedFiles()
	files["routes.txt"] = "route_id,route_short_name\nR1,10\n"

	_, err := Load(buildArchive(t, files))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing required column "route_type"`)
}

func TestLoadRequiresSomeCalendar(t *testing.T) {
	files := validFeedFiles()
	delete(files, "calendar.txt")

	_, err := Load(buildArchive(t, files))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither calendar.txt nor calendar_dates.txt")
}

func TestLoadCalendarDatesOnlyFeed(t *testing.T) {
	files := validFeedFiles()
	delete(files, "calendar.txt")
	files["calendar_dates.txt"] = "service_id,date,exception_type\n" +
		"WK,20250901,1\n"

	feed, err := Load(buildArchive(t, files))
	require.NoError(t, err)
	assert.Empty(t, feed.Calendars)
	assert.Len(t, feed.CalendarDates, 1)
}

func TestLoadRejectsDecreasingDepartures(t *testing.T) {
	files := validFeedFiles()
	files["stop_times.txt"] = "trip_id,stop_id,stop_sequence,departure_time\n" +
		"T1,S1,1,08:00:00\n" +
		"T1,S2,2,07:50:00\n" +
		"T2,S1,1,08:15:00\n" +
		"T2,S2,2,08:25:00\n"

	_, err := Load(buildArchive(t, files))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "departure offsets decrease")
}

func TestLoadRejectsDuplicateStopSequence(t *testing.T) {
	files := validFeedFiles()
	files["stop_times.txt"] = "trip_id,stop_id,stop_sequence,departure_time\n" +
		"T1,S1,1,08:00:00\n" +
		"T1,S2,1,08:10:00\n" +
		"T2,S1,1,08:15:00\n" +
		"T2,S2,2,08:25:00\n"

	_, err := Load(buildArchive(t, files))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate stop_sequence 1")
}

func TestLoadKeepsAfterMidnightTimes(t *testing.T) {
	files := validFeedFiles()
	files["stop_times.txt"] = "trip_id,stop_id,stop_sequence,departure_time\n" +
		"T1,S1,1,23:55:00\n" +
		"T1,S2,2,25:10:00\n" +
		"T2,S1,1,08:15:00\n" +
		"T2,S2,2,08:25:00\n"

	feed, err := Load(buildArchive(t, files))
	require.NoError(t, err)
	assert.Equal(t, 25*3600+10*60, feed.StopTimes[1].DepartureSecs)
}

func TestLoadStripsHeaderBOM(t *testing.T) {
	files := validFeedFiles()
	files["agency.txt"] = "\uFEFF" + files["agency.txt"]

	feed, err := Load(buildArchive(t, files))
	require.NoError(t, err)
	assert.Equal(t, "1", feed.Agencies[0].AgencyID)
}

func TestLoadNotAZip(t *testing.T) {
	_, err := Load([]byte("definitely not a zip archive"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open zip archive")
}
