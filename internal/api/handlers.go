// Package api is the HTTP shell over the analytics core. The core stays
// pure: every handler just wires ingest/compute calls to transport concerns
// (status codes, caching, snapshots).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/transitoffer/offer_core/internal/cache"
	"github.com/transitoffer/offer_core/internal/calendar"
	"github.com/transitoffer/offer_core/internal/gtfs"
	"github.com/transitoffer/offer_core/internal/models"
	"github.com/transitoffer/offer_core/internal/schedule"
	"github.com/transitoffer/offer_core/internal/snapshot"
	"github.com/transitoffer/offer_core/internal/spatial"
)

var (
	store     *snapshot.Store
	storeOnce sync.Once
	storeErr  error
)

func getStore() (*snapshot.Store, error) {
	storeOnce.Do(func() {
		config := snapshot.LoadConfigFromEnv()
		store, storeErr = snapshot.NewStore(config.DataDir)
	})
	return store, storeErr
}

// Health reports service liveness plus best-effort dependency status.
func Health(c *fiber.Ctx) error {
	status := fiber.Map{"status": "ok"}

	if _, err := getStore(); err != nil {
		status["status"] = "degraded"
		status["store"] = err.Error()
	}

	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()
	if err := cache.HealthCheck(ctx); err != nil {
		status["cache"] = "unavailable"
	} else {
		status["cache"] = "ok"
	}

	return c.JSON(status)
}

// IngestFeed accepts a GTFS zip archive as the request body, validates it
// fully and persists it under its content identity. Re-posting the same
// bytes is idempotent: same identity, same snapshot.
func IngestFeed(c *fiber.Ctx) error {
	archive := c.Body()
	if len(archive) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "request body must be a GTFS zip archive",
		})
	}

	store, err := getStore()
	if err != nil {
		return err
	}

	feed, err := gtfs.Load(archive)
	if err != nil {
		var verr *gtfs.ValidationError
		if errors.As(err, &verr) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error":  "feed validation failed",
				"issues": verr.Issues,
			})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	// Integrity check up front: a feed is either fully valid or rejected.
	if _, err := schedule.BuildIndex(feed); err != nil {
		var ierr *schedule.IntegrityError
		if errors.As(err, &ierr) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error":    "feed integrity check failed",
				"trip_ids": ierr.TripIDs,
			})
		}
		return err
	}

	if err := store.WriteFeed(feed); err != nil {
		return err
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
		SourcePath:    "api-upload",
	}); err != nil {
		return err
	}

	log.Printf("Ingested feed %s (%d routes, %d trips, %d stops)",
		feed.ID, len(feed.Routes), len(feed.Trips), len(feed.Stops))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"feed_id":     feed.ID,
		"ingested_at": feed.IngestedAt,
		"routes":      len(feed.Routes),
		"trips":       len(feed.Trips),
		"stops":       len(feed.Stops),
	})
}

// ListFeeds returns the dataset registry.
func ListFeeds(c *fiber.Ctx) error {
	store, err := getStore()
	if err != nil {
		return err
	}
	feeds, err := store.ListFeeds()
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"feeds": feeds, "total": len(feeds)})
}

// DayTypes lists the labels the calendar resolver produces for a feed.
func DayTypes(c *fiber.Ctx) error {
	feed, res, errResp := loadFeedWithResolution(c)
	if feed == nil {
		return errResp
	}
	return c.JSON(fiber.Map{
		"feed_id":   feed.ID,
		"day_types": res.DayTypes(),
	})
}

// Headways computes (or serves from cache) the headway records for one feed
// and day type, persisting the snapshot artifact as a side effect.
func Headways(c *fiber.Ctx) error {
	dayType := c.Query("day_type")
	if dayType == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing required parameter: day_type",
		})
	}

	opts := schedule.LoadOptionsFromEnv()
	if binStr := c.Query("bin_minutes"); binStr != "" {
		bin, err := strconv.Atoi(binStr)
		if err != nil || bin <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "bin_minutes must be a positive integer",
			})
		}
		opts.BinWidthMinutes = bin
	}

	feed, res, errResp := loadFeedWithResolution(c)
	if feed == nil {
		return errResp
	}

	key := cache.ResultKey(feed.ID, "headways", dayType, opts.BinWidthMinutes)
	if payload := cachedPayload(c.Context(), key); payload != nil {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(payload)
	}

	// Another request may already be computing this exact result. Take the
	// lock or wait for the holder and serve its payload.
	config := cache.LoadConfigFromEnv()
	if locked, err := cache.AcquireLock(c.Context(), cache.LockKey(key), config.MutexTTL); err == nil {
		if !locked {
			if payload, err := cache.WaitForPayload(c.Context(), key, config.MutexTTL); err == nil && payload != nil {
				c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
				return c.Send(payload)
			}
		} else {
			defer cache.ReleaseLock(c.Context(), cache.LockKey(key))
		}
	}

	idx, err := schedule.BuildIndex(feed)
	if err != nil {
		return err
	}

	records, err := schedule.ComputeHeadways(idx, res, feed.ID, dayType, opts)
	if err != nil {
		return dayTypeError(c, err)
	}

	store, _ := getStore()
	if _, err := store.WriteHeadways(feed.ID, dayType, records); err != nil {
		log.Printf("Warning: failed to persist headway snapshot: %v", err)
	}

	response := fiber.Map{
		"feed_id":     feed.ID,
		"day_type":    dayType,
		"bin_minutes": opts.BinWidthMinutes,
		"total":       len(records),
		"records":     records,
	}
	storePayload(c.Context(), key, response)
	return c.JSON(response)
}

// KPIs serves the per-route service span summary for one day type.
func KPIs(c *fiber.Ctx) error {
	dayType := c.Query("day_type")
	if dayType == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing required parameter: day_type",
		})
	}

	feed, res, errResp := loadFeedWithResolution(c)
	if feed == nil {
		return errResp
	}

	idx, err := schedule.BuildIndex(feed)
	if err != nil {
		return err
	}

	kpis, err := schedule.ComputeServiceKPIs(idx, res, feed.ID, dayType)
	if err != nil {
		return dayTypeError(c, err)
	}

	store, _ := getStore()
	if _, err := store.WriteKPIs(feed.ID, dayType, kpis); err != nil {
		log.Printf("Warning: failed to persist KPI snapshot: %v", err)
	}

	return c.JSON(fiber.Map{
		"feed_id":  feed.ID,
		"day_type": dayType,
		"total":    len(kpis),
		"kpis":     kpis,
	})
}

// Accessibility joins the feed's stops against zone polygons posted as a
// GeoJSON FeatureCollection. Invalid zones are reported, valid zones still
// produce metrics.
func Accessibility(c *fiber.Ctx) error {
	dayType := c.Query("day_type")
	if dayType == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing required parameter: day_type",
		})
	}

	zones, geomErrs, err := spatial.ParseZones(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	feed, res, errResp := loadFeedWithResolution(c)
	if feed == nil {
		return errResp
	}

	idx, err := schedule.BuildIndex(feed)
	if err != nil {
		return err
	}

	routeDepartures, err := schedule.RouteDepartures(idx, res, dayType)
	if err != nil {
		return dayTypeError(c, err)
	}

	opts := schedule.LoadOptionsFromEnv()
	metrics := spatial.ComputeAccessibility(feed, zones, dayType, routeDepartures, opts.Workers)

	store, _ := getStore()
	if _, err := store.WriteAccessibility(feed.ID, dayType, metrics); err != nil {
		log.Printf("Warning: failed to persist accessibility snapshot: %v", err)
	}

	issues := make([]fiber.Map, 0, len(geomErrs))
	for _, geomErr := range geomErrs {
		issues = append(issues, fiber.Map{"zone_id": geomErr.ZoneID, "reason": geomErr.Reason})
	}

	return c.JSON(fiber.Map{
		"feed_id":         feed.ID,
		"day_type":        dayType,
		"total":           len(metrics),
		"metrics":         metrics,
		"geometry_errors": issues,
	})
}

// loadFeedWithResolution resolves the :id path parameter into a stored feed
// plus its calendar resolution over the feed validity span. On failure the
// first return is nil and the second error return carries the response.
func loadFeedWithResolution(c *fiber.Ctx) (*models.Feed, calendar.Resolution, error) {
	store, err := getStore()
	if err != nil {
		return nil, calendar.Resolution{}, err
	}

	feedID := c.Params("id")
	feed, err := store.ReadFeed(feedID)
	if err != nil {
		return nil, calendar.Resolution{}, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "feed not found: " + feedID,
		})
	}

	from, to, ok := calendar.DefaultRange(feed)
	if !ok {
		return nil, calendar.Resolution{}, c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "feed defines no service dates",
		})
	}

	return feed, calendar.Resolve(feed, from, to), nil
}

func dayTypeError(c *fiber.Ctx, err error) error {
	var unknownErr *schedule.UnknownDayTypeError
	if errors.As(err, &unknownErr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":           err.Error(),
			"known_day_types": unknownErr.Known,
		})
	}
	return err
}

// cachedPayload fetches a cached response; any cache failure degrades to a
// miss so the service keeps working without Redis.
func cachedPayload(ctx context.Context, key string) []byte {
	payload, err := cache.GetPayload(ctx, key)
	if err != nil {
		return nil
	}
	return payload
}

func storePayload(ctx context.Context, key string, response fiber.Map) {
	payload, err := json.Marshal(response)
	if err != nil {
		return
	}
	config := cache.LoadConfigFromEnv()
	if err := cache.SetPayload(ctx, key, payload, config.TTL); err != nil {
		log.Printf("Warning: failed to cache %s: %v", key, err)
	}
}
