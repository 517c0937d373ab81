package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const registryFilename = "dataset_registry.json"

// FeedRecord is one registry entry describing an ingested dataset.
type FeedRecord struct {
	FeedID        string    `json:"feed_id"`
	Provider      string    `json:"provider,omitempty"`
	ValidityStart string    `json:"validity_start,omitempty"`
	ValidityEnd   string    `json:"validity_end,omitempty"`
	SourcePath    string    `json:"source_path,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type registry struct {
	Feeds []FeedRecord `json:"feeds"`
}

func (s *Store) registryPath() string {
	return filepath.Join(s.root, registryFilename)
}

func (s *Store) loadRegistry() (*registry, error) {
	data, err := os.ReadFile(s.registryPath())
	if os.IsNotExist(err) {
		return &registry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}

	reg := &registry{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, reg); err != nil {
			return nil, fmt.Errorf("corrupt registry: %w", err)
		}
	}
	return reg, nil
}

// UpsertFeed inserts or replaces the registry entry for a feed identity.
// Entries stay sorted by feed_id so the registry file diffs cleanly.
func (s *Store) UpsertFeed(record FeedRecord) error {
	reg, err := s.loadRegistry()
	if err != nil {
		return err
	}

	feeds := make([]FeedRecord, 0, len(reg.Feeds)+1)
	for _, existing := range reg.Feeds {
		if existing.FeedID != record.FeedID {
			feeds = append(feeds, existing)
		}
	}
	record.UpdatedAt = time.Now().UTC()
	feeds = append(feeds, record)
	sort.Slice(feeds, func(i, j int) bool { return feeds[i].FeedID < feeds[j].FeedID })

	return writeJSON(s.registryPath(), &registry{Feeds: feeds})
}

// ListFeeds returns every registered dataset, sorted by feed_id.
func (s *Store) ListFeeds() ([]FeedRecord, error) {
	reg, err := s.loadRegistry()
	if err != nil {
		return nil, err
	}
	return reg.Feeds, nil
}
