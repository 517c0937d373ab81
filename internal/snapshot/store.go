// Package snapshot persists computed pipeline outputs as JSON artifacts
// keyed by feed identity, so repeated runs overwrite deterministically
// instead of accumulating.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/transitoffer/offer_core/internal/models"
)

// Config holds snapshot storage configuration
type Config struct {
	DataDir string
}

// LoadConfigFromEnv loads storage configuration from environment variables
func LoadConfigFromEnv() *Config {
	return &Config{
		DataDir: getEnv("OFFER_DATA_DIR", "./data"),
	}
}

// Store writes and reads snapshot artifacts under a data directory:
//
//	<root>/dataset_registry.json
//	<root>/feeds/<feed_id>/feed.json
//	<root>/feeds/<feed_id>/headways_<day_type>.json
//	<root>/feeds/<feed_id>/kpis_<day_type>.json
//	<root>/feeds/<feed_id>/accessibility_<day_type>.json
type Store struct {
	root string
}

// NewStore opens (and creates if needed) a snapshot directory.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, "feeds"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the store's base directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) feedDir(feedID string) string {
	return filepath.Join(s.root, "feeds", feedID)
}

// WriteFeed persists the normalized feed itself so later compute calls can
// address it by identity alone.
func (s *Store) WriteFeed(feed *models.Feed) error {
	if err := os.MkdirAll(s.feedDir(feed.ID), 0o755); err != nil {
		return fmt.Errorf("failed to create feed dir: %w", err)
	}
	return writeJSON(filepath.Join(s.feedDir(feed.ID), "feed.json"), feed)
}

// ReadFeed loads a previously ingested feed by identity.
func (s *Store) ReadFeed(feedID string) (*models.Feed, error) {
	data, err := os.ReadFile(filepath.Join(s.feedDir(feedID), "feed.json"))
	if err != nil {
		return nil, fmt.Errorf("feed %s not found: %w", feedID, err)
	}
	var feed models.Feed
	if err := json.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("corrupt feed snapshot %s: %w", feedID, err)
	}
	return &feed, nil
}

// HasFeed reports whether a feed snapshot exists for the identity.
func (s *Store) HasFeed(feedID string) bool {
	_, err := os.Stat(filepath.Join(s.feedDir(feedID), "feed.json"))
	return err == nil
}

// WriteHeadways persists one headway artifact and returns its path.
func (s *Store) WriteHeadways(feedID, dayType string, records []models.HeadwayRecord) (string, error) {
	return s.writeArtifact(feedID, "headways", dayType, records)
}

// ReadHeadways loads a headway artifact.
func (s *Store) ReadHeadways(feedID, dayType string) ([]models.HeadwayRecord, error) {
	var records []models.HeadwayRecord
	err := s.readArtifact(feedID, "headways", dayType, &records)
	return records, err
}

// WriteKPIs persists one service-KPI artifact and returns its path.
func (s *Store) WriteKPIs(feedID, dayType string, kpis []models.ServiceKPI) (string, error) {
	return s.writeArtifact(feedID, "kpis", dayType, kpis)
}

// ReadKPIs loads a service-KPI artifact.
func (s *Store) ReadKPIs(feedID, dayType string) ([]models.ServiceKPI, error) {
	var kpis []models.ServiceKPI
	err := s.readArtifact(feedID, "kpis", dayType, &kpis)
	return kpis, err
}

// WriteAccessibility persists one accessibility artifact and returns its path.
func (s *Store) WriteAccessibility(feedID, dayType string, metrics []models.AccessibilityMetric) (string, error) {
	return s.writeArtifact(feedID, "accessibility", dayType, metrics)
}

// ReadAccessibility loads an accessibility artifact.
func (s *Store) ReadAccessibility(feedID, dayType string) ([]models.AccessibilityMetric, error) {
	var metrics []models.AccessibilityMetric
	err := s.readArtifact(feedID, "accessibility", dayType, &metrics)
	return metrics, err
}

func (s *Store) writeArtifact(feedID, kind, dayType string, payload interface{}) (string, error) {
	if err := os.MkdirAll(s.feedDir(feedID), 0o755); err != nil {
		return "", fmt.Errorf("failed to create feed dir: %w", err)
	}
	path := s.artifactPath(feedID, kind, dayType)
	if err := writeJSON(path, payload); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Store) readArtifact(feedID, kind, dayType string, out interface{}) error {
	path := s.artifactPath(feedID, kind, dayType)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("artifact %s not found: %w", filepath.Base(path), err)
	}
	return json.Unmarshal(data, out)
}

func (s *Store) artifactPath(feedID, kind, dayType string) string {
	return filepath.Join(s.feedDir(feedID), fmt.Sprintf("%s_%s.json", kind, sanitizeDayType(dayType)))
}

// sanitizeDayType makes custom:<date> labels safe as file name components.
func sanitizeDayType(dayType string) string {
	return strings.ReplaceAll(dayType, ":", "-")
}

func writeJSON(path string, payload interface{}) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	// Write-then-rename keeps readers from observing a half-written artifact.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
