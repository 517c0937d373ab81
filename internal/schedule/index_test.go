package schedule

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitoffer/offer_core/internal/models"
)

func TestBuildIndex(t *testing.T) {
	feed := &models.Feed{
		Routes: []models.Route{
			{RouteID: "R1", ShortName: "10", Mode: models.ModeBus},
		},
		Trips: []models.Trip{
			{TripID: "T1", RouteID: "R1", ServiceID: "WK", DirectionID: 0},
			{TripID: "T2", RouteID: "R1", ServiceID: "WK", DirectionID: 0},
			{TripID: "T3", RouteID: "R1", ServiceID: "WK", DirectionID: 1},
		},
		StopTimes: []models.StopTime{
			// T1 stop times out of order: sequence 1 is the first stop.
			{TripID: "T1", StopID: "S2", StopSequence: 2, DepartureSecs: 8*3600 + 600},
			{TripID: "T1", StopID: "S1", StopSequence: 1, DepartureSecs: 8 * 3600},
			{TripID: "T2", StopID: "S1", StopSequence: 1, DepartureSecs: 7 * 3600},
			{TripID: "T3", StopID: "S2", StopSequence: 1, DepartureSecs: 9 * 3600},
		},
	}

	idx, err := BuildIndex(feed)
	require.NoError(t, err)

	outbound := idx.Departures[Key{RouteID: "R1", DirectionID: 0, ServiceID: "WK"}]
	assert.Equal(t, []int{7 * 3600, 8 * 3600}, outbound)

	inbound := idx.Departures[Key{RouteID: "R1", DirectionID: 1, ServiceID: "WK"}]
	assert.Equal(t, []int{9 * 3600}, inbound)

	route, ok := idx.Route("R1")
	require.True(t, ok)
	assert.Equal(t, "10", route.Label())
}

func TestBuildIndexRejectsEmptyTrips(t *testing.T) {
	feed := &models.Feed{
		Trips: []models.Trip{
			{TripID: "T1", RouteID: "R1", ServiceID: "WK"},
			{TripID: "T2", RouteID: "R1", ServiceID: "WK"},
			{TripID: "T3", RouteID: "R1", ServiceID: "WK"},
		},
		StopTimes: []models.StopTime{
			{TripID: "T2", StopID: "S1", StopSequence: 1, DepartureSecs: 8 * 3600},
		},
	}

	_, err := BuildIndex(feed)
	require.Error(t, err)

	var ierr *IntegrityError
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, []string{"T1", "T3"}, ierr.TripIDs)
}
