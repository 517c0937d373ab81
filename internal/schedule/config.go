package schedule

import (
	"os"
	"strconv"
	"strings"
)

// LoadOptionsFromEnv loads headway options from environment variables,
// falling back to the defaults (hourly bins, p50/p90).
func LoadOptionsFromEnv() Options {
	opts := DefaultOptions()

	if binStr := getEnv("OFFER_BIN_MINUTES", ""); binStr != "" {
		if bin, err := strconv.Atoi(binStr); err == nil && bin > 0 {
			opts.BinWidthMinutes = bin
		}
	}

	if pctStr := getEnv("OFFER_PERCENTILES", ""); pctStr != "" {
		var percentiles []int
		for _, part := range strings.Split(pctStr, ",") {
			p, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || p < 0 || p > 100 {
				percentiles = nil
				break
			}
			percentiles = append(percentiles, p)
		}
		if len(percentiles) == 2 {
			opts.Percentiles = percentiles
		}
	}

	if workersStr := getEnv("OFFER_WORKERS", ""); workersStr != "" {
		if workers, err := strconv.Atoi(workersStr); err == nil && workers > 0 {
			opts.Workers = workers
		}
	}

	return opts
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
