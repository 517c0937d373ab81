package gtfs

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTimeToSeconds converts GTFS time format (HH:MM:SS) to seconds
// Handles times >= 24:00:00 (next day service)
func ParseTimeToSeconds(timeStr string) (int, error) {
	if timeStr == "" {
		return 0, fmt.Errorf("empty time string")
	}

	parts := strings.Split(timeStr, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid time format: %s", timeStr)
	}

	hours, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, fmt.Errorf("invalid hours in %q", timeStr)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minutes in %q", timeStr)
	}
	seconds, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, fmt.Errorf("invalid seconds in %q", timeStr)
	}
	if hours < 0 || minutes < 0 || minutes > 59 || seconds < 0 || seconds > 59 {
		return 0, fmt.Errorf("time out of range: %s", timeStr)
	}

	return hours*3600 + minutes*60 + seconds, nil
}

// FormatClock renders seconds since service-day start as HH:MM.
// Hours above 24 are kept so after-midnight bins stay distinguishable.
func FormatClock(secs int) string {
	return fmt.Sprintf("%02d:%02d", secs/3600, (secs%3600)/60)
}

// FormatTime renders seconds since service-day start as HH:MM:SS.
func FormatTime(secs int) string {
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

// ParseDate parses a GTFS YYYYMMDD date.
func ParseDate(dateStr string) (time.Time, error) {
	return time.Parse("20060102", strings.TrimSpace(dateStr))
}
