// Package gtfs reads stop data from static GTFS feeds and converts GTFS
// time values.
package gtfs

import (
	"fmt"
	"os"

	"github.com/jamespfennell/gtfs"

	"github.com/passbi/passbi_journeys/internal/models"
)

// LoadStaticFile reads and parses a GTFS zip archive
func LoadStaticFile(path string) (*gtfs.Static, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading local GTFS file: %w", err)
	}

	staticData, err := gtfs.ParseStatic(b, gtfs.ParseStaticOptions{})
	if err != nil {
		return nil, fmt.Errorf("error parsing GTFS data: %w", err)
	}

	return staticData, nil
}

// StopsFromStatic converts the feed's stops to the engine's indexed form.
// Stops without coordinates are skipped; the rest are numbered in feed
// order, matching the index the engine assigns when it compiles the feed.
func StopsFromStatic(staticData *gtfs.Static) []models.Stop {
	if staticData == nil {
		return nil
	}

	out := make([]models.Stop, 0, len(staticData.Stops))
	for _, s := range staticData.Stops {
		if s.Latitude == nil || s.Longitude == nil {
			continue
		}
		out = append(out, models.Stop{
			ID:   len(out),
			Name: s.Name,
			Lat:  *s.Latitude,
			Lon:  *s.Longitude,
		})
	}
	return out
}
