package schedule

import (
	"sort"

	"github.com/transitoffer/offer_core/internal/calendar"
	"github.com/transitoffer/offer_core/internal/gtfs"
	"github.com/transitoffer/offer_core/internal/models"
)

// ComputeServiceKPIs summarises first departure, last departure and total
// departures per (route, direction) under the requested day type.
func ComputeServiceKPIs(idx *Index, res calendar.Resolution, feedID, dayType string) ([]models.ServiceKPI, error) {
	serviceIDs, ok := res.ServiceIDsFor(dayType)
	if !ok {
		return nil, &UnknownDayTypeError{DayType: dayType, Known: res.DayTypes()}
	}

	groups := mergeDepartures(idx, serviceIDs)
	kpis := make([]models.ServiceKPI, 0, len(groups))
	for key, departures := range groups {
		kpis = append(kpis, models.ServiceKPI{
			FeedID:         feedID,
			DayType:        dayType,
			RouteID:        key.routeID,
			DirectionID:    key.directionID,
			FirstDeparture: gtfs.FormatTime(departures[0]),
			LastDeparture:  gtfs.FormatTime(departures[len(departures)-1]),
			Departures:     len(departures),
		})
	}

	sort.Slice(kpis, func(i, j int) bool {
		if kpis[i].RouteID != kpis[j].RouteID {
			return kpis[i].RouteID < kpis[j].RouteID
		}
		return kpis[i].DirectionID < kpis[j].DirectionID
	})

	return kpis, nil
}

// RouteDepartures totals departures per route (both directions merged) for a
// day type. The accessibility engine consumes this as its frequency input.
func RouteDepartures(idx *Index, res calendar.Resolution, dayType string) (map[string]int, error) {
	serviceIDs, ok := res.ServiceIDsFor(dayType)
	if !ok {
		return nil, &UnknownDayTypeError{DayType: dayType, Known: res.DayTypes()}
	}

	totals := make(map[string]int)
	for key, departures := range mergeDepartures(idx, serviceIDs) {
		totals[key.routeID] += len(departures)
	}
	return totals, nil
}
