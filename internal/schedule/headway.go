package schedule

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/transitoffer/offer_core/internal/calendar"
	"github.com/transitoffer/offer_core/internal/gtfs"
	"github.com/transitoffer/offer_core/internal/models"
)

// UnknownDayTypeError signals a caller asking for a day type the resolver
// never produced for this feed. It lists the known labels so the caller can
// fix the request without re-running with tracing.
type UnknownDayTypeError struct {
	DayType string
	Known   []string
}

func (e *UnknownDayTypeError) Error() string {
	return fmt.Sprintf("unknown day type %q (known: %s)", e.DayType, strings.Join(e.Known, ", "))
}

// Options controls headway aggregation.
type Options struct {
	BinWidthMinutes int
	Percentiles     []int // exactly two values, mapped to the p50/p90 record fields
	Workers         int
}

// DefaultOptions returns the standard configuration: hourly bins, p50/p90.
func DefaultOptions() Options {
	return Options{
		BinWidthMinutes: 60,
		Percentiles:     []int{50, 90},
		Workers:         runtime.NumCPU(),
	}
}

func (o Options) normalized() Options {
	if o.BinWidthMinutes <= 0 {
		o.BinWidthMinutes = 60
	}
	if len(o.Percentiles) != 2 {
		o.Percentiles = []int{50, 90}
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	return o
}

type groupKey struct {
	routeID     string
	directionID int
}

// ComputeHeadways merges the departures of every service active under the
// requested day type per (route, direction), partitions them into fixed-width
// time bins and derives departure counts and headway percentiles per bin.
//
// Each (route, direction) group is independent, so groups fan out over a
// worker pool reading the shared immutable index; results are concatenated
// and sorted, so output order never depends on scheduling.
func ComputeHeadways(idx *Index, res calendar.Resolution, feedID, dayType string, opts Options) ([]models.HeadwayRecord, error) {
	opts = opts.normalized()

	serviceIDs, ok := res.ServiceIDsFor(dayType)
	if !ok {
		return nil, &UnknownDayTypeError{DayType: dayType, Known: res.DayTypes()}
	}

	groups := mergeDepartures(idx, serviceIDs)
	keys := make([]groupKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}

	binWidthSecs := opts.BinWidthMinutes * 60

	jobs := make(chan groupKey, len(keys))
	results := make(chan []models.HeadwayRecord, len(keys))
	var wg sync.WaitGroup

	workers := opts.Workers
	if workers > len(keys) {
		workers = len(keys)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range jobs {
				results <- binRecords(idx, key, groups[key], feedID, dayType, binWidthSecs, opts.Percentiles)
			}
		}()
	}
	for _, key := range keys {
		jobs <- key
	}
	close(jobs)
	wg.Wait()
	close(results)

	records := make([]models.HeadwayRecord, 0, len(keys))
	for batch := range results {
		records = append(records, batch...)
	}

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.RouteID != b.RouteID {
			return a.RouteID < b.RouteID
		}
		if a.DirectionID != b.DirectionID {
			return a.DirectionID < b.DirectionID
		}
		return a.BinStartSecs < b.BinStartSecs
	})

	return records, nil
}

// mergeDepartures collects the sorted departure offsets of every matching
// service per (route, direction).
func mergeDepartures(idx *Index, serviceIDs []string) map[groupKey][]int {
	serviceSet := make(map[string]bool, len(serviceIDs))
	for _, id := range serviceIDs {
		serviceSet[id] = true
	}

	groups := make(map[groupKey][]int)
	for key, departures := range idx.Departures {
		if !serviceSet[key.ServiceID] {
			continue
		}
		gk := groupKey{routeID: key.RouteID, directionID: key.DirectionID}
		groups[gk] = append(groups[gk], departures...)
	}
	for gk := range groups {
		sort.Ints(groups[gk])
	}
	return groups
}

// binRecords partitions one group's sorted departures into bins and builds
// its records. A departure exactly on a bin boundary opens the bin; gaps are
// never computed across bin boundaries (documented approximation).
func binRecords(idx *Index, key groupKey, departures []int, feedID, dayType string, binWidthSecs int, percentiles []int) []models.HeadwayRecord {
	bins := make(map[int][]int)
	for _, dep := range departures {
		binStart := (dep / binWidthSecs) * binWidthSecs
		bins[binStart] = append(bins[binStart], dep)
	}

	routeName := ""
	var mode models.TransitMode
	if route, ok := idx.Route(key.routeID); ok {
		routeName = route.Label()
		mode = route.Mode
	}

	records := make([]models.HeadwayRecord, 0, len(bins))
	for binStart, deps := range bins {
		record := models.HeadwayRecord{
			FeedID:       feedID,
			DayType:      dayType,
			RouteID:      key.routeID,
			RouteName:    routeName,
			Mode:         mode,
			DirectionID:  key.directionID,
			BinStartSecs: binStart,
			BinLabel:     fmt.Sprintf("%s-%s", gtfs.FormatClock(binStart), gtfs.FormatClock(binStart+binWidthSecs)),
			Departures:   len(deps),
		}

		// Deps arrive sorted; gaps exist only with two or more departures.
		if len(deps) >= 2 {
			gaps := make([]int, 0, len(deps)-1)
			for i := 1; i < len(deps); i++ {
				gaps = append(gaps, deps[i]-deps[i-1])
			}
			p50 := roundMinutes(percentile(gaps, float64(percentiles[0])/100))
			p90 := roundMinutes(percentile(gaps, float64(percentiles[1])/100))
			record.HeadwayP50Min = &p50
			record.HeadwayP90Min = &p90
		}

		records = append(records, record)
	}
	return records
}

// percentile applies linear-interpolation rank selection over sorted gap
// samples, in seconds. rank = p * (n-1), interpolated between neighbours.
func percentile(gaps []int, p float64) float64 {
	sorted := make([]int, len(gaps))
	copy(sorted, gaps)
	sort.Ints(sorted)

	if len(sorted) == 1 {
		return float64(sorted[0])
	}

	position := p * float64(len(sorted)-1)
	lower := int(math.Floor(position))
	upper := int(math.Ceil(position))
	if lower == upper {
		return float64(sorted[lower])
	}
	weight := position - float64(lower)
	return float64(sorted[lower]) + weight*float64(sorted[upper]-sorted[lower])
}

// roundMinutes converts seconds to minutes rounded to the nearest tenth.
func roundMinutes(secs float64) float64 {
	return math.Round(secs/60*10) / 10
}
