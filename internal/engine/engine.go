// Package engine describes the routing engine the planner delegates path
// searches to. Stops are referenced by their position in the active period's
// stop list, never by id.
package engine

import (
	"context"

	"github.com/passbi/passbi_journeys/internal/models"
)

// Leg is one ride or transfer as returned by the engine. Departure and
// Arrival are seconds since local midnight. IntermediatePositions and
// IntermediateArrivals are parallel.
type Leg struct {
	From                  int    `json:"from_index"`
	To                    int    `json:"to_index"`
	Departure             int    `json:"departure"`
	Arrival               int    `json:"arrival"`
	Route                 string `json:"route,omitempty"`
	IsTransfer            bool   `json:"is_transfer"`
	IntermediatePositions []int  `json:"intermediate_positions,omitempty"`
	IntermediateArrivals  []int  `json:"intermediate_arrivals,omitempty"`
}

// Engine is a shortest-path engine holding one dataset per schedule period
type Engine interface {
	LoadPeriod(ctx context.Context, period models.PeriodID, dataset string) error
	SetActivePeriod(ctx context.Context, period models.PeriodID) error
	// AllStops lists the active period's stops; slice position is engine position
	AllStops(ctx context.Context) ([]models.Stop, error)
	FindPaths(ctx context.Context, origins, destinations []int, departure int) ([][]Leg, error)
	FindPathsArriveBy(ctx context.Context, origins, destinations []int, arrival, windowMinutes int) ([][]Leg, error)
}
