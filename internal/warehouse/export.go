// Package warehouse pushes computed snapshot artifacts into Postgres so BI
// tooling can query them alongside other datasets.
package warehouse

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/transitoffer/offer_core/internal/models"
)

const batchSize = 1000

// EnsureSchema creates the warehouse tables when they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS headway_record (
			feed_id TEXT NOT NULL,
			day_type TEXT NOT NULL,
			route_id TEXT NOT NULL,
			route_name TEXT,
			mode TEXT,
			direction_id INT NOT NULL,
			bin_start_seconds INT NOT NULL,
			bin_label TEXT,
			departures INT NOT NULL,
			headway_p50_min DOUBLE PRECISION,
			headway_p90_min DOUBLE PRECISION,
			PRIMARY KEY (feed_id, day_type, route_id, direction_id, bin_start_seconds)
		)`,
		`CREATE TABLE IF NOT EXISTS service_kpi (
			feed_id TEXT NOT NULL,
			day_type TEXT NOT NULL,
			route_id TEXT NOT NULL,
			direction_id INT NOT NULL,
			first_departure TEXT,
			last_departure TEXT,
			departures INT NOT NULL,
			PRIMARY KEY (feed_id, day_type, route_id, direction_id)
		)`,
		`CREATE TABLE IF NOT EXISTS accessibility_metric (
			feed_id TEXT NOT NULL,
			day_type TEXT NOT NULL,
			zone_id TEXT NOT NULL,
			stop_count INT NOT NULL,
			frequency_score DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (feed_id, day_type, zone_id)
		)`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create warehouse schema: %w", err)
		}
	}
	return nil
}

// ExportHeadways upserts headway records in batched transactions.
func ExportHeadways(ctx context.Context, pool *pgxpool.Pool, records []models.HeadwayRecord) error {
	if len(records) == 0 {
		log.Println("No headway records to export")
		return nil
	}

	queue := func(batch *pgx.Batch, record models.HeadwayRecord) {
		batch.Queue(`
			INSERT INTO headway_record (feed_id, day_type, route_id, route_name, mode,
				direction_id, bin_start_seconds, bin_label, departures,
				headway_p50_min, headway_p90_min)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (feed_id, day_type, route_id, direction_id, bin_start_seconds) DO UPDATE
			SET route_name = EXCLUDED.route_name,
			    mode = EXCLUDED.mode,
			    bin_label = EXCLUDED.bin_label,
			    departures = EXCLUDED.departures,
			    headway_p50_min = EXCLUDED.headway_p50_min,
			    headway_p90_min = EXCLUDED.headway_p90_min
		`, record.FeedID, record.DayType, record.RouteID, record.RouteName, string(record.Mode),
			record.DirectionID, record.BinStartSecs, record.BinLabel, record.Departures,
			record.HeadwayP50Min, record.HeadwayP90Min)
	}

	count, err := exportBatched(ctx, pool, len(records), func(batch *pgx.Batch, i int) {
		queue(batch, records[i])
	})
	if err != nil {
		return fmt.Errorf("failed to export headway records: %w", err)
	}
	log.Printf("Exported %d headway records", count)
	return nil
}

// ExportKPIs upserts service KPI rows.
func ExportKPIs(ctx context.Context, pool *pgxpool.Pool, kpis []models.ServiceKPI) error {
	if len(kpis) == 0 {
		log.Println("No service KPIs to export")
		return nil
	}

	count, err := exportBatched(ctx, pool, len(kpis), func(batch *pgx.Batch, i int) {
		kpi := kpis[i]
		batch.Queue(`
			INSERT INTO service_kpi (feed_id, day_type, route_id, direction_id,
				first_departure, last_departure, departures)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (feed_id, day_type, route_id, direction_id) DO UPDATE
			SET first_departure = EXCLUDED.first_departure,
			    last_departure = EXCLUDED.last_departure,
			    departures = EXCLUDED.departures
		`, kpi.FeedID, kpi.DayType, kpi.RouteID, kpi.DirectionID,
			kpi.FirstDeparture, kpi.LastDeparture, kpi.Departures)
	})
	if err != nil {
		return fmt.Errorf("failed to export service KPIs: %w", err)
	}
	log.Printf("Exported %d service KPIs", count)
	return nil
}

// ExportAccessibility upserts accessibility metrics.
func ExportAccessibility(ctx context.Context, pool *pgxpool.Pool, metrics []models.AccessibilityMetric) error {
	if len(metrics) == 0 {
		log.Println("No accessibility metrics to export")
		return nil
	}

	count, err := exportBatched(ctx, pool, len(metrics), func(batch *pgx.Batch, i int) {
		metric := metrics[i]
		batch.Queue(`
			INSERT INTO accessibility_metric (feed_id, day_type, zone_id, stop_count, frequency_score)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (feed_id, day_type, zone_id) DO UPDATE
			SET stop_count = EXCLUDED.stop_count,
			    frequency_score = EXCLUDED.frequency_score
		`, metric.FeedID, metric.DayType, metric.ZoneID, metric.StopCount, metric.FrequencyScore)
	})
	if err != nil {
		return fmt.Errorf("failed to export accessibility metrics: %w", err)
	}
	log.Printf("Exported %d accessibility metrics", count)
	return nil
}

// exportBatched runs the queue function over every row in transactions of
// batchSize rows each, returning the number of rows flushed.
func exportBatched(ctx context.Context, pool *pgxpool.Pool, total int, queue func(*pgx.Batch, int)) (int, error) {
	for start := 0; start < total; start += batchSize {
		end := start + batchSize
		if end > total {
			end = total
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return start, fmt.Errorf("failed to begin tx at offset %d: %w", start, err)
		}

		batch := &pgx.Batch{}
		for i := start; i < end; i++ {
			queue(batch, i)
		}

		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				results.Close()
				tx.Rollback(ctx)
				return start, fmt.Errorf("failed to flush batch at offset %d: %w", start, err)
			}
		}
		results.Close()

		if err := tx.Commit(ctx); err != nil {
			return start, fmt.Errorf("failed to commit batch at offset %d: %w", start, err)
		}
	}
	return total, nil
}
