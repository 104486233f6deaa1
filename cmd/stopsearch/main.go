package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/passbi/passbi_journeys/internal/gtfs"
	"github.com/passbi/passbi_journeys/internal/logging"
	"github.com/passbi/passbi_journeys/internal/stops"
)

func main() {
	gtfsPath := flag.String("gtfs", "", "Path to GTFS ZIP file (required)")
	query := flag.String("q", "", "Stop name to search for")
	lat := flag.Float64("lat", 0, "Latitude for a nearby search")
	lon := flag.Float64("lon", 0, "Longitude for a nearby search")
	limit := flag.Int("limit", 10, "Maximum number of results")
	flag.Parse()

	if *gtfsPath == "" || (*query == "" && *lat == 0 && *lon == 0) {
		fmt.Println("Usage: stopsearch --gtfs=<path.zip> (--q=<name> | --lat=<lat> --lon=<lon>) [--limit=10]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	start := time.Now()
	feed, err := gtfs.LoadStaticFile(*gtfsPath)
	if err != nil {
		log.Fatalf("Failed to load GTFS: %v", err)
	}

	logger := logging.NewStructuredLogger(os.Stderr, logging.ParseLevel("warn"))
	index := stops.NewIndex(gtfs.ValidateAndCleanStops(gtfs.StopsFromStatic(feed), logger))
	log.Printf("Indexed %d stops in %v", index.Len(), time.Since(start))

	if *query != "" {
		results := index.Search(*query, *limit)
		for _, s := range results {
			fmt.Printf("%6d  %-40s %.5f,%.5f\n", s.ID, s.Name, s.Lat, s.Lon)
		}
		log.Printf("%d stops match %q", len(results), strings.TrimSpace(*query))
		return
	}

	for _, s := range index.Nearest(*lat, *lon, *limit) {
		d := stops.DistanceMeters(*lat, *lon, s.Lat, s.Lon)
		fmt.Printf("%6d  %-40s %6.0f m\n", s.ID, s.Name, d)
	}
}
