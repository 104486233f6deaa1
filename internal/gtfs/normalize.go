package gtfs

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/passbi/passbi_journeys/internal/logging"
	"github.com/passbi/passbi_journeys/internal/models"
)

// ParseTimeToSeconds converts a GTFS time (HH:MM:SS, or HH:MM) to seconds
// since midnight. Hours past 23 are kept for next-day service.
func ParseTimeToSeconds(timeStr string) (int, error) {
	if timeStr == "" {
		return 0, fmt.Errorf("empty time string")
	}

	parts := strings.Split(strings.TrimSpace(timeStr), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid time format: %s", timeStr)
	}

	var fields [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid time format: %s", timeStr)
		}
		fields[i] = n
	}
	if fields[1] > 59 || fields[2] > 59 {
		return 0, fmt.Errorf("invalid time format: %s", timeStr)
	}

	return fields[0]*3600 + fields[1]*60 + fields[2], nil
}

// FormatSeconds is the inverse of ParseTimeToSeconds
func FormatSeconds(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, seconds/60%60, seconds%60)
}

// ValidateAndCleanStops removes stops with invalid coordinates
func ValidateAndCleanStops(stops []models.Stop, logger *slog.Logger) []models.Stop {
	logger = logging.OrDefault(logger)
	cleaned := make([]models.Stop, 0, len(stops))

	for _, stop := range stops {
		if stop.Lat < -90 || stop.Lat > 90 || stop.Lon < -180 || stop.Lon > 180 {
			logger.Warn("invalid stop coordinates", "stop_id", stop.ID, "lat", stop.Lat, "lon", stop.Lon)
			continue
		}
		if stop.Lat == 0 && stop.Lon == 0 {
			logger.Warn("stop has null island coordinates, skipping", "stop_id", stop.ID)
			continue
		}

		cleaned = append(cleaned, stop)
	}

	if len(cleaned) < len(stops) {
		logger.Info("cleaned stops", "removed", len(stops)-len(cleaned))
	}

	return cleaned
}
