// Package schedule builds per-route departure indices and derives headway
// statistics and service KPIs from them.
package schedule

import (
	"fmt"
	"sort"
	"strings"

	"github.com/transitoffer/offer_core/internal/models"
)

// Key identifies one departure sequence in the index.
type Key struct {
	RouteID     string
	DirectionID int
	ServiceID   string
}

// Index groups first-stop departure offsets by (route, direction, service),
// each sequence sorted ascending. Offsets past 24h are kept on their service
// day so after-midnight trips preserve ordering.
//
// Headways are computed from first-stop departures only, not from per-segment
// running times. This is a deliberate approximation.
type Index struct {
	Departures map[Key][]int
	routes     map[string]models.Route
}

// IntegrityError reports referential violations found after parsing, such as
// trips that serve no stop at all.
type IntegrityError struct {
	TripIDs []string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("trips with no stop times: %s", strings.Join(e.TripIDs, ", "))
}

// BuildIndex derives the departure index from a validated feed. Every trip
// must serve at least one stop; violating trips are collected into a single
// *IntegrityError.
func BuildIndex(feed *models.Feed) (*Index, error) {
	// First stop per trip: the stop time with the minimum stop_sequence.
	type firstStop struct {
		sequence int
		depSecs  int
		found    bool
	}
	firsts := make(map[string]firstStop, len(feed.Trips))
	for _, st := range feed.StopTimes {
		cur, ok := firsts[st.TripID]
		if !ok || st.StopSequence < cur.sequence {
			firsts[st.TripID] = firstStop{sequence: st.StopSequence, depSecs: st.DepartureSecs, found: true}
		}
	}

	var emptyTrips []string
	index := &Index{
		Departures: make(map[Key][]int),
		routes:     make(map[string]models.Route, len(feed.Routes)),
	}
	for _, route := range feed.Routes {
		index.routes[route.RouteID] = route
	}

	for _, trip := range feed.Trips {
		first, ok := firsts[trip.TripID]
		if !ok || !first.found {
			emptyTrips = append(emptyTrips, trip.TripID)
			continue
		}
		key := Key{RouteID: trip.RouteID, DirectionID: trip.DirectionID, ServiceID: trip.ServiceID}
		index.Departures[key] = append(index.Departures[key], first.depSecs)
	}

	if len(emptyTrips) > 0 {
		sort.Strings(emptyTrips)
		return nil, &IntegrityError{TripIDs: emptyTrips}
	}

	for key := range index.Departures {
		sort.Ints(index.Departures[key])
	}

	return index, nil
}

// Route returns the route metadata for a route ID, when known.
func (idx *Index) Route(routeID string) (models.Route, bool) {
	route, ok := idx.routes[routeID]
	return route, ok
}
