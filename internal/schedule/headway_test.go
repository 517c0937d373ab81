package schedule

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitoffer/offer_core/internal/models"
)

func TestComputeHeadwaysTwoDepartures(t *testing.T) {
	// Two trips 15 minutes apart in the same hourly bin.
	feed := fixtureFeed([]int{8 * 3600, 8*3600 + 900})
	idx, err := BuildIndex(feed)
	require.NoError(t, err)
	res := fixtureResolution(feed)

	records, err := ComputeHeadways(idx, res, feed.ID, models.DayTypeWeekday, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, records, 1)

	record := records[0]
	assert.Equal(t, "R1", record.RouteID)
	assert.Equal(t, "10", record.RouteName)
	assert.Equal(t, models.ModeBus, record.Mode)
	assert.Equal(t, 8*3600, record.BinStartSecs)
	assert.Equal(t, "08:00-09:00", record.BinLabel)
	assert.Equal(t, 2, record.Departures)
	require.NotNil(t, record.HeadwayP50Min)
	require.NotNil(t, record.HeadwayP90Min)
	assert.Equal(t, 15.0, *record.HeadwayP50Min)
	assert.Equal(t, 15.0, *record.HeadwayP90Min)
}

func TestComputeHeadwaysSingleDepartureBin(t *testing.T) {
	feed := fixtureFeed([]int{10*3600 + 1800})
	idx, err := BuildIndex(feed)
	require.NoError(t, err)
	res := fixtureResolution(feed)

	records, err := ComputeHeadways(idx, res, feed.ID, models.DayTypeWeekday, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, records, 1)

	record := records[0]
	assert.Equal(t, 1, record.Departures)
	assert.Nil(t, record.HeadwayP50Min)
	assert.Nil(t, record.HeadwayP90Min)
}

func TestComputeHeadwaysBinBoundary(t *testing.T) {
	// A departure exactly on the boundary opens the next bin, so no gap
	// spans 08:xx to 09:00.
	feed := fixtureFeed([]int{8*3600 + 1800, 9 * 3600})
	idx, err := BuildIndex(feed)
	require.NoError(t, err)
	res := fixtureResolution(feed)

	records, err := ComputeHeadways(idx, res, feed.ID, models.DayTypeWeekday, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, 8*3600, records[0].BinStartSecs)
	assert.Equal(t, 1, records[0].Departures)
	assert.Nil(t, records[0].HeadwayP50Min)

	assert.Equal(t, 9*3600, records[1].BinStartSecs)
	assert.Equal(t, 1, records[1].Departures)
}

func TestComputeHeadwaysInterpolatedPercentiles(t *testing.T) {
	// Departures on the hour at gaps 5, 10 and 20 minutes.
	base := 6 * 3600
	feed := fixtureFeed([]int{base, base + 300, base + 900, base + 2100})
	idx, err := BuildIndex(feed)
	require.NoError(t, err)
	res := fixtureResolution(feed)

	records, err := ComputeHeadways(idx, res, feed.ID, models.DayTypeWeekday, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, records, 1)

	record := records[0]
	assert.Equal(t, 4, record.Departures)
	// gaps sorted: [300, 600, 1200]; p50 rank 1.0 -> 600s, p90 rank 1.8 -> 1080s
	require.NotNil(t, record.HeadwayP50Min)
	require.NotNil(t, record.HeadwayP90Min)
	assert.Equal(t, 10.0, *record.HeadwayP50Min)
	assert.Equal(t, 18.0, *record.HeadwayP90Min)
	assert.LessOrEqual(t, *record.HeadwayP50Min, *record.HeadwayP90Min)
}

func TestComputeHeadwaysCustomBinWidth(t *testing.T) {
	feed := fixtureFeed([]int{8 * 3600, 8*3600 + 900, 8*3600 + 2100})
	idx, err := BuildIndex(feed)
	require.NoError(t, err)
	res := fixtureResolution(feed)

	opts := DefaultOptions()
	opts.BinWidthMinutes = 30

	records, err := ComputeHeadways(idx, res, feed.ID, models.DayTypeWeekday, opts)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "08:00-08:30", records[0].BinLabel)
	assert.Equal(t, 2, records[0].Departures)
	assert.Equal(t, "08:30-09:00", records[1].BinLabel)
	assert.Equal(t, 1, records[1].Departures)
}

func TestComputeHeadwaysUnknownDayType(t *testing.T) {
	feed := fixtureFeed([]int{8 * 3600})
	idx, err := BuildIndex(feed)
	require.NoError(t, err)
	res := fixtureResolution(feed)

	_, err = ComputeHeadways(idx, res, feed.ID, "holiday", DefaultOptions())
	require.Error(t, err)

	var unknownErr *UnknownDayTypeError
	require.True(t, errors.As(err, &unknownErr))
	assert.Equal(t, "holiday", unknownErr.DayType)
	assert.Contains(t, unknownErr.Known, models.DayTypeWeekday)
	assert.Contains(t, err.Error(), "unknown day type")
}

func TestComputeHeadwaysNoServiceDayType(t *testing.T) {
	// Saturday resolves with an empty active set: valid label, no records.
	feed := fixtureFeed([]int{8 * 3600})
	idx, err := BuildIndex(feed)
	require.NoError(t, err)
	res := fixtureResolution(feed)

	records, err := ComputeHeadways(idx, res, feed.ID, models.DayTypeSaturday, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestComputeHeadwaysDeterministicOrder(t *testing.T) {
	feed := fixtureFeed([]int{8 * 3600, 8*3600 + 600})
	feed.Routes = append(feed.Routes, models.Route{RouteID: "R0", ShortName: "5", RouteType: 3, Mode: models.ModeBus})
	feed.Trips = append(feed.Trips,
		models.Trip{TripID: "X1", RouteID: "R0", ServiceID: "WK", DirectionID: 1},
		models.Trip{TripID: "X2", RouteID: "R0", ServiceID: "WK", DirectionID: 0},
	)
	feed.StopTimes = append(feed.StopTimes,
		models.StopTime{TripID: "X1", StopID: "S1", StopSequence: 1, DepartureSecs: 9 * 3600},
		models.StopTime{TripID: "X2", StopID: "S1", StopSequence: 1, DepartureSecs: 7 * 3600},
	)

	idx, err := BuildIndex(feed)
	require.NoError(t, err)
	res := fixtureResolution(feed)

	opts := DefaultOptions()
	opts.Workers = 4

	first, err := ComputeHeadways(idx, res, feed.ID, models.DayTypeWeekday, opts)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := ComputeHeadways(idx, res, feed.ID, models.DayTypeWeekday, opts)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	// Sorted by route, then direction, then bin start.
	require.Len(t, first, 3)
	assert.Equal(t, "R0", first[0].RouteID)
	assert.Equal(t, 0, first[0].DirectionID)
	assert.Equal(t, "R0", first[1].RouteID)
	assert.Equal(t, 1, first[1].DirectionID)
	assert.Equal(t, "R1", first[2].RouteID)
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		name     string
		gaps     []int
		p        float64
		expected float64
	}{
		{
			name:     "Single sample",
			gaps:     []int{600},
			p:        0.9,
			expected: 600,
		},
		{
			name:     "Median of odd count",
			gaps:     []int{300, 600, 900},
			p:        0.5,
			expected: 600,
		},
		{
			name:     "Median interpolates between neighbours",
			gaps:     []int{300, 900},
			p:        0.5,
			expected: 600,
		},
		{
			name:     "P90 interpolation",
			gaps:     []int{300, 600, 1200},
			p:        0.9,
			expected: 1080,
		},
		{
			name:     "Unsorted input",
			gaps:     []int{900, 300, 600},
			p:        0.5,
			expected: 600,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, percentile(tt.gaps, tt.p), 1e-9)
		})
	}
}

func TestRoundMinutes(t *testing.T) {
	assert.Equal(t, 15.0, roundMinutes(900))
	assert.Equal(t, 14.0, roundMinutes(840))
	assert.Equal(t, 10.3, roundMinutes(616))
	assert.Equal(t, 0.0, roundMinutes(0))
}
