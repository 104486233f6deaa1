package cache

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	secondsPerDay = 24 * 60 * 60

	peakBucket    = 5 * 60
	offPeakBucket = 15 * 60
)

// RoundDepartureTime floors a departure (seconds since local midnight) to a
// 5-minute boundary during peak hours (07-09h, 17-19h) and to a 15-minute
// boundary otherwise. Times past midnight use their hour modulo 24.
func RoundDepartureTime(seconds int) int {
	bucket := offPeakBucket
	if isPeakHour(floorMod(seconds, secondsPerDay) / 3600) {
		bucket = peakBucket
	}
	return seconds - floorMod(seconds, bucket)
}

func isPeakHour(hour int) bool {
	return (hour >= 7 && hour <= 9) || (hour >= 17 && hour <= 19)
}

func floorMod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// Key builds the cache key of a departure query. Origin and destination ids
// are order-insensitive; the date keeps service days apart.
func Key(origins, destinations []int, departure int, date time.Time) string {
	var b strings.Builder
	writeSortedIDs(&b, origins)
	b.WriteByte('|')
	writeSortedIDs(&b, destinations)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(RoundDepartureTime(departure)))
	b.WriteByte('|')
	b.WriteString(date.Format(time.DateOnly))
	return b.String()
}

func writeSortedIDs(b *strings.Builder, ids []int) {
	sorted := make([]int, len(ids))
	copy(sorted, ids)
	sort.Ints(sorted)

	for i, id := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(id))
	}
}
