package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/transitoffer/offer_core/internal/db"
	"github.com/transitoffer/offer_core/internal/snapshot"
	"github.com/transitoffer/offer_core/internal/warehouse"
)

func main() {
	// Command-line flags
	feedID := flag.String("feed-id", "", "Feed identity to export (required)")
	dayTypes := flag.String("day-types", "", "Comma-separated day-type labels (required)")

	flag.Parse()

	if *feedID == "" || *dayTypes == "" {
		fmt.Println("Usage: offer-export --feed-id=<sha256> --day-types=weekday,saturday")
		flag.PrintDefaults()
		os.Exit(1)
	}

	storeConfig := snapshot.LoadConfigFromEnv()
	store, err := snapshot.NewStore(storeConfig.DataDir)
	if err != nil {
		log.Fatalf("Failed to open snapshot store: %v", err)
	}
	if !store.HasFeed(*feedID) {
		log.Fatalf("No snapshot found for feed %s under %s", *feedID, store.Root())
	}

	pool, err := db.GetDB()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	log.Println("Step 1/2: Ensuring warehouse schema...")
	if err := warehouse.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("Schema setup failed: %v", err)
	}

	log.Println("Step 2/2: Exporting snapshot artifacts...")
	for _, dayType := range strings.Split(*dayTypes, ",") {
		dayType = strings.TrimSpace(dayType)
		if dayType == "" {
			continue
		}
		if err := exportDayType(ctx, store, *feedID, dayType); err != nil {
			log.Fatalf("Export failed for %s: %v", dayType, err)
		}
	}

	log.Println("Export completed successfully!")
}

// exportDayType pushes whichever artifacts exist for the label; a missing
// artifact is skipped, not fatal, since not every run computes all three.
func exportDayType(ctx context.Context, store *snapshot.Store, feedID, dayType string) error {
	pool, _ := db.GetDB()

	if records, err := store.ReadHeadways(feedID, dayType); err != nil {
		log.Printf("  %s: no headway artifact, skipping", dayType)
	} else if err := warehouse.ExportHeadways(ctx, pool, records); err != nil {
		return err
	}

	if kpis, err := store.ReadKPIs(feedID, dayType); err != nil {
		log.Printf("  %s: no KPI artifact, skipping", dayType)
	} else if err := warehouse.ExportKPIs(ctx, pool, kpis); err != nil {
		return err
	}

	if metrics, err := store.ReadAccessibility(feedID, dayType); err != nil {
		log.Printf("  %s: no accessibility artifact, skipping", dayType)
	} else if err := warehouse.ExportAccessibility(ctx, pool, metrics); err != nil {
		return err
	}

	return nil
}
