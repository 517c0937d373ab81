package spatial

import (
	"runtime"
	"sort"
	"sync"

	"github.com/paulmach/orb"

	"github.com/transitoffer/offer_core/internal/models"
)

// ComputeAccessibility derives one coverage metric per zone for a day type.
// routeDepartures is the per-route departure total under that day type (see
// schedule.RouteDepartures); routes absent from it contribute nothing.
//
// A stop inside several overlapping zones counts in each; a route shared by
// several zones has its departures split by the number of zones its stops
// fall into, so overlapping zones never double-count the same service.
// Every supplied zone yields a metric, explicitly zero-valued when no stop
// falls inside it.
func ComputeAccessibility(feed *models.Feed, zones []Zone, dayType string, routeDepartures map[string]int, workers int) []models.AccessibilityMetric {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	// stop -> routes serving it, via stop_time -> trip -> route
	tripRoute := make(map[string]string, len(feed.Trips))
	for _, trip := range feed.Trips {
		tripRoute[trip.TripID] = trip.RouteID
	}
	stopRoutes := make(map[string]map[string]bool, len(feed.Stops))
	for _, st := range feed.StopTimes {
		routeID, ok := tripRoute[st.TripID]
		if !ok {
			continue
		}
		if stopRoutes[st.StopID] == nil {
			stopRoutes[st.StopID] = make(map[string]bool)
		}
		stopRoutes[st.StopID][routeID] = true
	}

	// Zone membership is independent per zone: fan the point-in-polygon
	// sweep out over a worker pool reading the shared immutable stop table.
	type membership struct {
		zoneIdx   int
		stopCount int
		routes    map[string]bool
	}

	jobs := make(chan int, len(zones))
	results := make(chan membership, len(zones))
	var wg sync.WaitGroup

	if workers > len(zones) {
		workers = len(zones)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for zi := range jobs {
				member := membership{zoneIdx: zi, routes: make(map[string]bool)}
				for _, stop := range feed.Stops {
					if !contains(zones[zi], orb.Point{stop.Lon, stop.Lat}) {
						continue
					}
					member.stopCount++
					for routeID := range stopRoutes[stop.StopID] {
						member.routes[routeID] = true
					}
				}
				results <- member
			}
		}()
	}
	for zi := range zones {
		jobs <- zi
	}
	close(jobs)
	wg.Wait()
	close(results)

	memberships := make([]membership, len(zones))
	for member := range results {
		memberships[member.zoneIdx] = member
	}

	// How many zones each route's stops fall into, for the overlap split.
	routeZoneCount := make(map[string]int)
	for _, member := range memberships {
		for routeID := range member.routes {
			routeZoneCount[routeID]++
		}
	}

	metrics := make([]models.AccessibilityMetric, 0, len(zones))
	for zi, zone := range zones {
		member := memberships[zi]
		score := 0.0
		for routeID := range member.routes {
			departures := routeDepartures[routeID]
			if departures == 0 {
				continue
			}
			score += float64(departures) / float64(routeZoneCount[routeID])
		}
		metrics = append(metrics, models.AccessibilityMetric{
			FeedID:         feed.ID,
			DayType:        dayType,
			ZoneID:         zone.ZoneID,
			StopCount:      member.stopCount,
			FrequencyScore: score,
		})
	}

	sort.Slice(metrics, func(i, j int) bool { return metrics[i].ZoneID < metrics[j].ZoneID })
	return metrics
}
