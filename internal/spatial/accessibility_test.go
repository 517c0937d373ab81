package spatial

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitoffer/offer_core/internal/models"
)

func squareZone(id string, minX, minY, maxX, maxY float64) Zone {
	return Zone{
		ZoneID: id,
		Geometry: orb.Polygon{
			{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY}},
		},
	}
}

func TestComputeAccessibilitySingleZone(t *testing.T) {
	// One stop inside the zone, served by a route with 4 departures.
	feed := &models.Feed{
		ID:    "feed-test",
		Stops: []models.Stop{{StopID: "S1", Lat: 0.5, Lon: 0.5}},
		Trips: []models.Trip{{TripID: "T1", RouteID: "R1", ServiceID: "WK"}},
		StopTimes: []models.StopTime{
			{TripID: "T1", StopID: "S1", StopSequence: 1, DepartureSecs: 8 * 3600},
		},
	}
	zones := []Zone{squareZone("downtown", 0, 0, 1, 1)}

	metrics := ComputeAccessibility(feed, zones, models.DayTypeWeekday, map[string]int{"R1": 4}, 2)
	require.Len(t, metrics, 1)

	metric := metrics[0]
	assert.Equal(t, "feed-test", metric.FeedID)
	assert.Equal(t, models.DayTypeWeekday, metric.DayType)
	assert.Equal(t, "downtown", metric.ZoneID)
	assert.Equal(t, 1, metric.StopCount)
	assert.Equal(t, 4.0, metric.FrequencyScore)
}

func TestComputeAccessibilityZeroStopZone(t *testing.T) {
	feed := &models.Feed{
		ID:    "feed-test",
		Stops: []models.Stop{{StopID: "S1", Lat: 5, Lon: 5}},
	}
	zones := []Zone{squareZone("empty", 0, 0, 1, 1)}

	metrics := ComputeAccessibility(feed, zones, models.DayTypeWeekday, nil, 2)
	require.Len(t, metrics, 1)
	assert.Equal(t, 0, metrics[0].StopCount)
	assert.Equal(t, 0.0, metrics[0].FrequencyScore)
}

func TestComputeAccessibilityOverlapSplit(t *testing.T) {
	// S1 sits in both overlapping zones, S2 only in B. Route R1 serves both
	// stops, so its 6 departures split across the two zones it reaches.
	feed := &models.Feed{
		ID: "feed-test",
		Stops: []models.Stop{
			{StopID: "S1", Lat: 0.5, Lon: 0.5},
			{StopID: "S2", Lat: 0.5, Lon: 1.5},
		},
		Trips: []models.Trip{{TripID: "T1", RouteID: "R1", ServiceID: "WK"}},
		StopTimes: []models.StopTime{
			{TripID: "T1", StopID: "S1", StopSequence: 1, DepartureSecs: 8 * 3600},
			{TripID: "T1", StopID: "S2", StopSequence: 2, DepartureSecs: 8*3600 + 600},
		},
	}
	zones := []Zone{
		squareZone("a", 0, 0, 1, 1),
		squareZone("b", 0, 0, 2, 1),
	}

	metrics := ComputeAccessibility(feed, zones, models.DayTypeWeekday, map[string]int{"R1": 6}, 2)
	require.Len(t, metrics, 2)

	assert.Equal(t, "a", metrics[0].ZoneID)
	assert.Equal(t, 1, metrics[0].StopCount)
	assert.Equal(t, 3.0, metrics[0].FrequencyScore)

	assert.Equal(t, "b", metrics[1].ZoneID)
	assert.Equal(t, 2, metrics[1].StopCount)
	assert.Equal(t, 3.0, metrics[1].FrequencyScore)
}

func TestComputeAccessibilityInactiveRoute(t *testing.T) {
	// A route with zero departures under the day type contributes nothing.
	feed := &models.Feed{
		ID:    "feed-test",
		Stops: []models.Stop{{StopID: "S1", Lat: 0.5, Lon: 0.5}},
		Trips: []models.Trip{{TripID: "T1", RouteID: "R1", ServiceID: "SUN"}},
		StopTimes: []models.StopTime{
			{TripID: "T1", StopID: "S1", StopSequence: 1, DepartureSecs: 8 * 3600},
		},
	}
	zones := []Zone{squareZone("downtown", 0, 0, 1, 1)}

	metrics := ComputeAccessibility(feed, zones, models.DayTypeWeekday, map[string]int{}, 2)
	require.Len(t, metrics, 1)
	assert.Equal(t, 1, metrics[0].StopCount)
	assert.Equal(t, 0.0, metrics[0].FrequencyScore)
}

func TestComputeAccessibilitySortedByZone(t *testing.T) {
	feed := &models.Feed{ID: "feed-test"}
	zones := []Zone{
		squareZone("zebra", 0, 0, 1, 1),
		squareZone("alpha", 2, 2, 3, 3),
		squareZone("mike", 4, 4, 5, 5),
	}

	metrics := ComputeAccessibility(feed, zones, models.DayTypeWeekday, nil, 2)
	require.Len(t, metrics, 3)
	assert.Equal(t, "alpha", metrics[0].ZoneID)
	assert.Equal(t, "mike", metrics[1].ZoneID)
	assert.Equal(t, "zebra", metrics[2].ZoneID)
}
