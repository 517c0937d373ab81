package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitoffer/offer_core/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestFeedRoundtrip(t *testing.T) {
	store := newTestStore(t)

	feed := &models.Feed{
		ID:         "abc123",
		IngestedAt: time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC),
		Routes: []models.Route{
			{RouteID: "R1", ShortName: "10", RouteType: 3, Mode: models.ModeBus},
		},
		Stops: []models.Stop{
			{StopID: "S1", StopName: "Central", Lat: 14.7, Lon: -17.45},
		},
	}

	require.False(t, store.HasFeed("abc123"))
	require.NoError(t, store.WriteFeed(feed))
	require.True(t, store.HasFeed("abc123"))

	loaded, err := store.ReadFeed("abc123")
	require.NoError(t, err)
	assert.Equal(t, feed, loaded)

	_, err = store.ReadFeed("missing")
	assert.Error(t, err)
}

func TestHeadwayArtifactRoundtrip(t *testing.T) {
	store := newTestStore(t)

	p50 := 15.0
	records := []models.HeadwayRecord{
		{
			FeedID:        "abc123",
			DayType:       models.DayTypeWeekday,
			RouteID:       "R1",
			DirectionID:   0,
			BinStartSecs:  8 * 3600,
			BinLabel:      "08:00-09:00",
			Departures:    2,
			HeadwayP50Min: &p50,
			HeadwayP90Min: &p50,
		},
	}

	path, err := store.WriteHeadways("abc123", models.DayTypeWeekday, records)
	require.NoError(t, err)
	assert.Equal(t, "headways_weekday.json", filepath.Base(path))

	loaded, err := store.ReadHeadways("abc123", models.DayTypeWeekday)
	require.NoError(t, err)
	assert.Equal(t, records, loaded)
}

func TestCustomDayTypeArtifactFilename(t *testing.T) {
	store := newTestStore(t)

	path, err := store.WriteAccessibility("abc123", "custom:20250903", []models.AccessibilityMetric{})
	require.NoError(t, err)
	assert.Equal(t, "accessibility_custom-20250903.json", filepath.Base(path))

	// Readable back under the original label.
	metrics, err := store.ReadAccessibility("abc123", "custom:20250903")
	require.NoError(t, err)
	assert.Empty(t, metrics)
}

func TestWriteOverwritesDeterministically(t *testing.T) {
	store := newTestStore(t)

	kpis := []models.ServiceKPI{
		{FeedID: "abc123", DayType: "weekday", RouteID: "R1", Departures: 10},
	}
	path, err := store.WriteKPIs("abc123", "weekday", kpis)
	require.NoError(t, err)
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	// A second identical run replaces the artifact byte for byte.
	_, err = store.WriteKPIs("abc123", "weekday", kpis)
	require.NoError(t, err)
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRegistryUpsert(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpsertFeed(FeedRecord{
		FeedID:        "bbb",
		Provider:      "Metro Transit",
		ValidityStart: "20250901",
		ValidityEnd:   "20250930",
	}))
	require.NoError(t, store.UpsertFeed(FeedRecord{FeedID: "aaa", Provider: "City Bus"}))

	feeds, err := store.ListFeeds()
	require.NoError(t, err)
	require.Len(t, feeds, 2)
	assert.Equal(t, "aaa", feeds[0].FeedID)
	assert.Equal(t, "bbb", feeds[1].FeedID)
	assert.False(t, feeds[0].UpdatedAt.IsZero())

	// Upserting an existing feed replaces its entry.
	require.NoError(t, store.UpsertFeed(FeedRecord{FeedID: "bbb", Provider: "Renamed Transit"}))
	feeds, err = store.ListFeeds()
	require.NoError(t, err)
	require.Len(t, feeds, 2)
	assert.Equal(t, "Renamed Transit", feeds[1].Provider)
}

func TestListFeedsEmptyRegistry(t *testing.T) {
	store := newTestStore(t)
	feeds, err := store.ListFeeds()
	require.NoError(t, err)
	assert.Empty(t, feeds)
}
