package stops

import (
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/passbi/passbi_journeys/internal/models"
)

type entry struct {
	stop       models.Stop
	normalized string
	spaced     string
}

// Index holds the stops of the active period in engine order, together with
// their precomputed search names. Rebuild swaps the contents atomically.
type Index struct {
	mu      sync.RWMutex
	entries []entry
}

// NewIndex builds an index over stops; position i of the slice is engine position i
func NewIndex(stops []models.Stop) *Index {
	x := &Index{}
	x.Rebuild(stops)
	return x
}

// Rebuild replaces the indexed stops
func (x *Index) Rebuild(stops []models.Stop) {
	entries := make([]entry, len(stops))
	for i, s := range stops {
		n := Normalize(s.Name)
		entries[i] = entry{stop: s, normalized: n, spaced: spaced(n)}
	}

	x.mu.Lock()
	x.entries = entries
	x.mu.Unlock()
}

// Len returns the number of indexed stops
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// At returns the stop at engine position i
func (x *Index) At(i int) (models.Stop, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if i < 0 || i >= len(x.entries) {
		return models.Stop{}, false
	}
	return x.entries[i].stop, true
}

// Stops returns the indexed stops in engine order
func (x *Index) Stops() []models.Stop {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]models.Stop, len(x.entries))
	for i, e := range x.entries {
		out[i] = e.stop
	}
	return out
}

// Search returns the stops whose name matches query. Every query word must
// appear in the name, in any order, with hyphens and spaces interchangeable.
// Names starting with the query rank first, then by display name.
// limit <= 0 returns every match.
func (x *Index) Search(query string, limit int) []models.Stop {
	q := spaced(Normalize(query))
	tokens := strings.Fields(q)

	x.mu.RLock()
	type match struct {
		stop   models.Stop
		prefix bool
	}
	var matches []match
	for _, e := range x.entries {
		if len(tokens) == 0 {
			matches = append(matches, match{stop: e.stop, prefix: true})
			continue
		}
		if e.spaced == "" {
			continue
		}
		// cheap first-token filter before checking every word
		if !strings.Contains(e.spaced, tokens[0]) {
			continue
		}
		if !containsAll(e.spaced, tokens[1:]) {
			continue
		}
		matches = append(matches, match{stop: e.stop, prefix: strings.HasPrefix(e.spaced, q)})
	}
	x.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.prefix != b.prefix {
			return a.prefix
		}
		if a.stop.Name != b.stop.Name {
			return a.stop.Name < b.stop.Name
		}
		return a.stop.ID < b.stop.ID
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	result := make([]models.Stop, len(matches))
	for i, m := range matches {
		result[i] = m.stop
	}
	return result
}

func containsAll(name string, tokens []string) bool {
	for _, tok := range tokens {
		if !strings.Contains(name, tok) {
			return false
		}
	}
	return true
}

// Closest returns the stop nearest to (lat, lon), or false on an empty index
func (x *Index) Closest(lat, lon float64) (models.Stop, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.entries) == 0 {
		return models.Stop{}, false
	}

	best := 0
	bestDist := squaredDistance(lat, lon, x.entries[0].stop)
	for i := 1; i < len(x.entries); i++ {
		if d := squaredDistance(lat, lon, x.entries[i].stop); d < bestDist {
			best, bestDist = i, d
		}
	}
	return x.entries[best].stop, true
}

// Nearest returns up to limit stops ordered by distance from (lat, lon),
// keeping only the closest stop of each name (platforms of one station share it).
// limit <= 0 returns nothing.
func (x *Index) Nearest(lat, lon float64, limit int) []models.Stop {
	if limit <= 0 {
		return nil
	}

	type candidate struct {
		stop models.Stop
		dist float64
	}

	x.mu.RLock()
	candidates := make([]candidate, len(x.entries))
	for i, e := range x.entries {
		candidates[i] = candidate{stop: e.stop, dist: squaredDistance(lat, lon, e.stop)}
	}
	x.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].dist < candidates[j].dist
	})

	seen := make(map[string]bool)
	var result []models.Stop
	for _, c := range candidates {
		if seen[c.stop.Name] {
			continue
		}
		seen[c.stop.Name] = true
		result = append(result, c.stop)
		if len(result) == limit {
			break
		}
	}
	return result
}

// squared distance in degree space; the network is small enough to skip geodesic correction
func squaredDistance(lat, lon float64, s models.Stop) float64 {
	dLat := s.Lat - lat
	dLon := s.Lon - lon
	return dLat*dLat + dLon*dLon
}

// DistanceMeters returns the great-circle distance in meters
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371000
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadius * c
}
