package models

import "time"

// PeriodID names the schedule dataset that covers one class of calendar day
type PeriodID string

const (
	PeriodWeekdaySchoolOn  PeriodID = "weekday_school_on"
	PeriodWeekdaySchoolOff PeriodID = "weekday_school_off"
	PeriodSaturday         PeriodID = "saturday"
	PeriodSunday           PeriodID = "sunday"
)

// AllPeriods lists every period the planner loads at startup
func AllPeriods() []PeriodID {
	return []PeriodID{
		PeriodWeekdaySchoolOn,
		PeriodWeekdaySchoolOff,
		PeriodSaturday,
		PeriodSunday,
	}
}

// Valid reports whether p is one of the known periods
func (p PeriodID) Valid() bool {
	switch p {
	case PeriodWeekdaySchoolOn, PeriodWeekdaySchoolOff, PeriodSaturday, PeriodSunday:
		return true
	}
	return false
}

// SchedulePeriod pairs a period with the opaque dataset handle handed to the routing engine
type SchedulePeriod struct {
	ID      PeriodID
	Dataset string
}

// Stop represents a routable stop of the active period.
// ID is stable only within a loaded period.
type Stop struct {
	ID   int     `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// HolidayPeriod is an inclusive range of school holidays
type HolidayPeriod struct {
	Name  string
	Start time.Time
	End   time.Time
}

// Contains reports whether date falls within [Start, End], comparing calendar days only
func (h HolidayPeriod) Contains(date time.Time) bool {
	d := dayNumber(date)
	return d >= dayNumber(h.Start) && d <= dayNumber(h.End)
}

// dayNumber orders calendar days regardless of the time's location
func dayNumber(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

// IntermediateStop is a stop passed through during a ride leg
type IntermediateStop struct {
	Name    string  `json:"name"`
	Arrival int     `json:"arrival_seconds"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// JourneyLeg represents one ride or walking transfer of a journey
type JourneyLeg struct {
	From         Stop               `json:"from"`
	To           Stop               `json:"to"`
	Departure    int                `json:"departure_seconds"` // since local midnight
	Arrival      int                `json:"arrival_seconds"`   // since local midnight
	RouteName    string             `json:"route_name,omitempty"`
	IsTransfer   bool               `json:"is_transfer"`
	Intermediate []IntermediateStop `json:"intermediate_stops,omitempty"`
}

// JourneyResult is a complete journey. Values are never mutated once built,
// so they can be shared between cache tiers and goroutines.
type JourneyResult struct {
	Legs          []JourneyLeg `json:"legs"`
	DepartureTime int          `json:"departure_seconds"`
	ArrivalTime   int          `json:"arrival_seconds"`
}

// NewJourneyResult builds a journey from its ordered legs.
// The second return value is false when legs is empty.
func NewJourneyResult(legs []JourneyLeg) (JourneyResult, bool) {
	if len(legs) == 0 {
		return JourneyResult{}, false
	}
	return JourneyResult{
		Legs:          legs,
		DepartureTime: legs[0].Departure,
		ArrivalTime:   legs[len(legs)-1].Arrival,
	}, true
}

// Duration returns the total journey time in seconds
func (j JourneyResult) Duration() int {
	return j.ArrivalTime - j.DepartureTime
}

// Transfers counts the walking transfer legs
func (j JourneyResult) Transfers() int {
	n := 0
	for _, leg := range j.Legs {
		if leg.IsTransfer {
			n++
		}
	}
	return n
}

// CacheEntry is a cached journey list with its insertion time
type CacheEntry struct {
	Journeys  []JourneyResult `json:"journeys"`
	CreatedAt time.Time       `json:"created_at"`
}

// Expired reports whether the entry is older than ttl at now
func (e CacheEntry) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.CreatedAt) >= ttl
}

// DateOf truncates t to its calendar day, keeping t's location
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
