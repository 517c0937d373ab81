package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/transitoffer/offer_core/internal/calendar"
	"github.com/transitoffer/offer_core/internal/gtfs"
	"github.com/transitoffer/offer_core/internal/schedule"
	"github.com/transitoffer/offer_core/internal/snapshot"
	"github.com/transitoffer/offer_core/internal/spatial"
)

func main() {
	// Command-line flags
	gtfsPath := flag.String("gtfs", "", "Path to GTFS ZIP file (required)")
	zonesPath := flag.String("zones", "", "Path to GeoJSON zone file (optional)")
	dayTypes := flag.String("day-types", "", "Comma-separated day-type labels (default: all resolved labels)")
	binMinutes := flag.Int("bin-minutes", 0, "Time bin width in minutes (default: OFFER_BIN_MINUTES or 60)")

	flag.Parse()

	if *gtfsPath == "" {
		fmt.Println("Usage: offer-analyze --gtfs=<path.zip> [--zones=<path.geojson>] [--day-types=weekday,saturday] [--bin-minutes=60]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if _, err := os.Stat(*gtfsPath); os.IsNotExist(err) {
		log.Fatalf("GTFS file not found: %s", *gtfsPath)
	}

	log.Println("Starting service-offer analysis...")
	log.Printf("GTFS file: %s", *gtfsPath)

	opts := schedule.LoadOptionsFromEnv()
	if *binMinutes > 0 {
		opts.BinWidthMinutes = *binMinutes
	}

	storeConfig := snapshot.LoadConfigFromEnv()
	store, err := snapshot.NewStore(storeConfig.DataDir)
	if err != nil {
		log.Fatalf("Failed to open snapshot store: %v", err)
	}

	if err := runAnalysis(store, *gtfsPath, *zonesPath, *dayTypes, opts); err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}

	log.Println("Analysis completed successfully!")
}

func runAnalysis(store *snapshot.Store, gtfsPath, zonesPath, dayTypeList string, opts schedule.Options) error {
	// Load and validate the feed
	log.Println("Step 1/5: Loading GTFS feed...")
	feed, err := gtfs.LoadFile(gtfsPath)
	if err != nil {
		return fmt.Errorf("failed to load GTFS: %w", err)
	}
	log.Printf("Feed %s: %d routes, %d trips, %d stops, %d stop times",
		feed.ID, len(feed.Routes), len(feed.Trips), len(feed.Stops), len(feed.StopTimes))

	log.Println("Step 2/5: Building departure index...")
	idx, err := schedule.BuildIndex(feed)
	if err != nil {
		return fmt.Errorf("failed to index feed: %w", err)
	}

	log.Println("Step 3/5: Resolving service calendar...")
	from, to, ok := calendar.DefaultRange(feed)
	if !ok {
		return fmt.Errorf("feed defines no service dates")
	}
	res := calendar.Resolve(feed, from, to)
	log.Printf("Resolved %d service days (%s to %s)",
		len(res.Days), from.Format("2006-01-02"), to.Format("2006-01-02"))

	// Persist the feed before any derived artifact
	if err := store.WriteFeed(feed); err != nil {
		return fmt.Errorf("failed to persist feed snapshot: %w", err)
	}
	provider := ""
	if len(feed.Agencies) > 0 {
		provider = feed.Agencies[0].AgencyName
	}
	validityStart, validityEnd := calendar.ValiditySpan(feed)
	if err := store.UpsertFeed(snapshot.FeedRecord{
		FeedID:        feed.ID,
		Provider:      provider,
		ValidityStart: validityStart,
		ValidityEnd:   validityEnd,
		SourcePath:    filepath.Clean(gtfsPath),
	}); err != nil {
		return fmt.Errorf("failed to update dataset registry: %w", err)
	}

	labels := res.DayTypes()
	if dayTypeList != "" {
		labels = strings.Split(dayTypeList, ",")
		for i := range labels {
			labels[i] = strings.TrimSpace(labels[i])
		}
	}

	log.Printf("Step 4/5: Computing headways and KPIs for %d day types...", len(labels))
	for _, dayType := range labels {
		records, err := schedule.ComputeHeadways(idx, res, feed.ID, dayType, opts)
		if err != nil {
			return fmt.Errorf("headway computation for %s: %w", dayType, err)
		}
		path, err := store.WriteHeadways(feed.ID, dayType, records)
		if err != nil {
			return fmt.Errorf("failed to write headway snapshot: %w", err)
		}
		log.Printf("  %s: %d headway records -> %s", dayType, len(records), path)

		kpis, err := schedule.ComputeServiceKPIs(idx, res, feed.ID, dayType)
		if err != nil {
			return fmt.Errorf("KPI computation for %s: %w", dayType, err)
		}
		if _, err := store.WriteKPIs(feed.ID, dayType, kpis); err != nil {
			return fmt.Errorf("failed to write KPI snapshot: %w", err)
		}
	}

	if zonesPath == "" {
		log.Println("Step 5/5: No zone file supplied, skipping accessibility")
		return nil
	}

	log.Println("Step 5/5: Computing zone accessibility...")
	zoneData, err := os.ReadFile(zonesPath)
	if err != nil {
		return fmt.Errorf("failed to read zone file: %w", err)
	}
	zones, geomErrs, err := spatial.ParseZones(zoneData)
	if err != nil {
		return fmt.Errorf("failed to parse zones: %w", err)
	}
	for _, geomErr := range geomErrs {
		log.Printf("  Warning: skipping zone: %v", geomErr)
	}

	for _, dayType := range labels {
		routeDepartures, err := schedule.RouteDepartures(idx, res, dayType)
		if err != nil {
			return fmt.Errorf("departure totals for %s: %w", dayType, err)
		}
		metrics := spatial.ComputeAccessibility(feed, zones, dayType, routeDepartures, opts.Workers)
		path, err := store.WriteAccessibility(feed.ID, dayType, metrics)
		if err != nil {
			return fmt.Errorf("failed to write accessibility snapshot: %w", err)
		}
		log.Printf("  %s: %d zone metrics -> %s", dayType, len(metrics), path)
	}

	return nil
}
