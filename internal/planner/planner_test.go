package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passbi/passbi_journeys/internal/cache"
	"github.com/passbi/passbi_journeys/internal/engine"
	"github.com/passbi/passbi_journeys/internal/metrics"
	"github.com/passbi/passbi_journeys/internal/models"
	"github.com/passbi/passbi_journeys/internal/period"
)

// Thursday, inside no holiday
var testNow = time.Date(2026, 10, 15, 8, 2, 0, 0, time.UTC)

type fakeEngine struct {
	mu     sync.Mutex
	active models.PeriodID

	loads       atomic.Int32
	activations atomic.Int32
	loadDelay   time.Duration
	loadErr     error

	paths         [][]engine.Leg
	findErr       error
	findPanic     bool
	findCalls     atomic.Int32
	arriveCalls   atomic.Int32
	lastDeparture atomic.Int32
	lastWindow    atomic.Int32
}

func (e *fakeEngine) LoadPeriod(_ context.Context, _ models.PeriodID, _ string) error {
	e.loads.Add(1)
	time.Sleep(e.loadDelay)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadErr
}

func (e *fakeEngine) SetActivePeriod(_ context.Context, id models.PeriodID) error {
	e.activations.Add(1)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = id
	return nil
}

// each period has three stops named after it
func (e *fakeEngine) AllStops(context.Context) ([]models.Stop, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	stops := make([]models.Stop, 3)
	for i := range stops {
		stops[i] = models.Stop{ID: 100 + i, Name: fmt.Sprintf("%s-%d", e.active, i), Lat: 48.8 + float64(i)/100, Lon: 2.3}
	}
	return stops, nil
}

func (e *fakeEngine) FindPaths(_ context.Context, _, _ []int, departure int) ([][]engine.Leg, error) {
	e.findCalls.Add(1)
	e.lastDeparture.Store(int32(departure))
	if e.findPanic {
		panic("engine crashed")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paths, e.findErr
}

func (e *fakeEngine) FindPathsArriveBy(_ context.Context, _, _ []int, _ int, windowMinutes int) ([][]engine.Leg, error) {
	e.arriveCalls.Add(1)
	e.lastWindow.Store(int32(windowMinutes))
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paths, e.findErr
}

func (e *fakeEngine) setLoadErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loadErr = err
}

func okJourney() [][]engine.Leg {
	return [][]engine.Leg{{
		{From: 0, To: 1, Departure: 28920, Arrival: 29400, Route: "12", IntermediatePositions: []int{2}, IntermediateArrivals: []int{29100}},
		{From: 1, To: 2, Departure: 29400, Arrival: 29700, IsTransfer: true},
	}}
}

func testDatasets() map[models.PeriodID]string {
	return map[models.PeriodID]string{
		models.PeriodWeekdaySchoolOn:  "weekday_school_on.bin",
		models.PeriodWeekdaySchoolOff: "weekday_school_off.bin",
		models.PeriodSaturday:         "saturday.bin",
		models.PeriodSunday:           "sunday.bin",
	}
}

func newTestPlanner(eng *fakeEngine) *Planner {
	jc := cache.NewJourneyCache(cache.DefaultConfig(), nil, nil, nil)
	return New(eng, period.NewSelector(nil), jc, Config{Datasets: testDatasets(), Location: time.UTC}, nil,
		WithClock(func() time.Time { return testNow }),
		WithMetrics(metrics.New()))
}

func departure(h, m int) *int {
	d := h*3600 + m*60
	return &d
}

func TestInitializeOnce(t *testing.T) {
	eng := &fakeEngine{loadDelay: 10 * time.Millisecond}
	p := newTestPlanner(eng)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- p.Initialize(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(len(models.AllPeriods())), eng.loads.Load())
	assert.Equal(t, int32(1), eng.activations.Load())
	assert.Equal(t, StateReady, p.State())

	active, ok := p.ActivePeriod()
	require.True(t, ok)
	assert.Equal(t, models.PeriodWeekdaySchoolOn, active)
}

func TestInitializeFailureIsRetryable(t *testing.T) {
	eng := &fakeEngine{loadErr: errors.New("dataset missing")}
	p := newTestPlanner(eng)

	err := p.Initialize(context.Background())
	require.ErrorIs(t, err, ErrInitialization)
	assert.Equal(t, StateUninitialized, p.State())
	_, ok := p.ActivePeriod()
	assert.False(t, ok)

	_, err = p.FindPaths(context.Background(), Query{Origins: []int{1}, Destinations: []int{2}})
	assert.ErrorIs(t, err, ErrInitialization)

	_, err = p.SearchStops(context.Background(), "x", 0)
	assert.ErrorIs(t, err, ErrInitialization)

	eng.setLoadErr(nil)
	require.NoError(t, p.Initialize(context.Background()))
	assert.Equal(t, StateReady, p.State())
}

// ctxEngine fails loads whose context is already done
type ctxEngine struct {
	*fakeEngine
}

func (e ctxEngine) LoadPeriod(ctx context.Context, id models.PeriodID, dataset string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.fakeEngine.LoadPeriod(ctx, id, dataset)
}

func TestInitializeIgnoresCallerCancellation(t *testing.T) {
	eng := &fakeEngine{}
	p := New(ctxEngine{eng}, period.NewSelector(nil), nil, Config{Datasets: testDatasets(), Location: time.UTC}, nil,
		WithClock(func() time.Time { return testNow }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Initialize(ctx))
	assert.Equal(t, StateReady, p.State())
	assert.Equal(t, int32(len(models.AllPeriods())), eng.loads.Load())
}

func TestInitializeMissingDataset(t *testing.T) {
	eng := &fakeEngine{}
	p := New(eng, nil, nil, Config{Datasets: map[models.PeriodID]string{models.PeriodSaturday: "sat.bin"}}, nil)

	err := p.Initialize(context.Background())
	require.ErrorIs(t, err, ErrInitialization)
	assert.Contains(t, err.Error(), "no dataset configured")
}

func TestFindPathsCaching(t *testing.T) {
	eng := &fakeEngine{paths: okJourney()}
	p := newTestPlanner(eng)
	ctx := context.Background()

	first, err := p.FindPaths(ctx, Query{Origins: []int{3, 1}, Destinations: []int{9, 5}, Departure: departure(8, 2)})
	require.NoError(t, err)
	require.Len(t, first, 1)

	t.Run("Engine receives the exact departure", func(t *testing.T) {
		assert.Equal(t, int32(8*3600+2*60), eng.lastDeparture.Load())
	})

	t.Run("Reordered ids hit the cache", func(t *testing.T) {
		second, err := p.FindPaths(ctx, Query{Origins: []int{1, 3}, Destinations: []int{5, 9}, Departure: departure(8, 2)})
		require.NoError(t, err)
		assert.Same(t, &first[0], &second[0])
		assert.Equal(t, int32(1), eng.findCalls.Load())
	})

	t.Run("Same peak bucket hits the cache", func(t *testing.T) {
		_, err := p.FindPaths(ctx, Query{Origins: []int{1, 3}, Destinations: []int{5, 9}, Departure: departure(8, 4)})
		require.NoError(t, err)
		assert.Equal(t, int32(1), eng.findCalls.Load())
	})

	t.Run("Next peak bucket misses", func(t *testing.T) {
		_, err := p.FindPaths(ctx, Query{Origins: []int{1, 3}, Destinations: []int{5, 9}, Departure: departure(8, 6)})
		require.NoError(t, err)
		assert.Equal(t, int32(2), eng.findCalls.Load())
	})

	t.Run("Another date misses even within the same period", func(t *testing.T) {
		_, err := p.FindPaths(ctx, Query{
			Origins: []int{1, 3}, Destinations: []int{5, 9}, Departure: departure(8, 2),
			Date: testNow.AddDate(0, 0, 7),
		})
		require.NoError(t, err)
		assert.Equal(t, int32(3), eng.findCalls.Load())
	})
}

func TestFindPathsDefaultsToNow(t *testing.T) {
	eng := &fakeEngine{paths: okJourney()}
	p := newTestPlanner(eng)

	_, err := p.FindPaths(context.Background(), Query{Origins: []int{1}, Destinations: []int{2}})
	require.NoError(t, err)
	assert.Equal(t, int32(8*3600+2*60), eng.lastDeparture.Load())
}

func TestFindPathsMapping(t *testing.T) {
	eng := &fakeEngine{paths: okJourney()}
	p := newTestPlanner(eng)

	journeys, err := p.FindPaths(context.Background(), Query{Origins: []int{1}, Destinations: []int{2}, Departure: departure(8, 0)})
	require.NoError(t, err)
	require.Len(t, journeys, 1)

	j := journeys[0]
	assert.Equal(t, 28920, j.DepartureTime)
	assert.Equal(t, 29700, j.ArrivalTime)
	assert.Equal(t, 1, j.Transfers())
	require.Len(t, j.Legs, 2)
	assert.Equal(t, "weekday_school_on-0", j.Legs[0].From.Name)
	assert.Equal(t, "12", j.Legs[0].RouteName)
	require.Len(t, j.Legs[0].Intermediate, 1)
	assert.Equal(t, "weekday_school_on-2", j.Legs[0].Intermediate[0].Name)
	assert.Equal(t, 29100, j.Legs[0].Intermediate[0].Arrival)
}

func TestFindPathsDropsUnresolvableJourneys(t *testing.T) {
	good := okJourney()[0]
	tests := []struct {
		name string
		bad  []engine.Leg
	}{
		{"Second leg past the index", []engine.Leg{good[0], {From: 1, To: 99, Departure: 29400, Arrival: 29700}}},
		{"Negative position", []engine.Leg{{From: -1, To: 1}}},
		{"Unknown intermediate stop", []engine.Leg{{From: 0, To: 1, IntermediatePositions: []int{7}, IntermediateArrivals: []int{1}}}},
		{"Mismatched intermediate arrays", []engine.Leg{{From: 0, To: 1, IntermediatePositions: []int{2}}}},
		{"No legs", []engine.Leg{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &fakeEngine{paths: [][]engine.Leg{tt.bad, good}}
			p := newTestPlanner(eng)

			journeys, err := p.FindPaths(context.Background(), Query{Origins: []int{1}, Destinations: []int{2}, Departure: departure(12, 0)})
			require.NoError(t, err)
			require.Len(t, journeys, 1)
			assert.Len(t, journeys[0].Legs, 2)
		})
	}
}

func TestFindPathsEmptyInput(t *testing.T) {
	eng := &fakeEngine{paths: okJourney()}
	p := newTestPlanner(eng)

	journeys, err := p.FindPaths(context.Background(), Query{Origins: nil, Destinations: []int{2}})
	require.NoError(t, err)
	assert.Empty(t, journeys)

	journeys, err = p.FindPathsArriveBy(context.Background(), ArriveByQuery{Origins: []int{1}, Arrival: 32400})
	require.NoError(t, err)
	assert.Empty(t, journeys)

	assert.Zero(t, eng.findCalls.Load())
	assert.Zero(t, eng.arriveCalls.Load())
}

func TestFindPathsEngineFailures(t *testing.T) {
	t.Run("Error yields an empty, uncached result", func(t *testing.T) {
		eng := &fakeEngine{findErr: errors.New("timeout")}
		p := newTestPlanner(eng)
		q := Query{Origins: []int{1}, Destinations: []int{2}, Departure: departure(12, 0)}

		journeys, err := p.FindPaths(context.Background(), q)
		require.NoError(t, err)
		assert.Empty(t, journeys)

		_, _ = p.FindPaths(context.Background(), q)
		assert.Equal(t, int32(2), eng.findCalls.Load())
	})

	t.Run("Panic is contained", func(t *testing.T) {
		eng := &fakeEngine{findPanic: true}
		p := newTestPlanner(eng)

		var journeys []models.JourneyResult
		var err error
		assert.NotPanics(t, func() {
			journeys, err = p.FindPaths(context.Background(), Query{Origins: []int{1}, Destinations: []int{2}})
		})
		require.NoError(t, err)
		assert.Empty(t, journeys)
	})
}

func TestFindPathsArriveBy(t *testing.T) {
	eng := &fakeEngine{paths: okJourney()}
	p := newTestPlanner(eng)
	q := ArriveByQuery{Origins: []int{1}, Destinations: []int{2}, Arrival: 9 * 3600}

	journeys, err := p.FindPathsArriveBy(context.Background(), q)
	require.NoError(t, err)
	assert.Len(t, journeys, 1)
	assert.Equal(t, int32(DefaultSearchWindowMinutes), eng.lastWindow.Load())

	q.WindowMinutes = 45
	_, err = p.FindPathsArriveBy(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, int32(45), eng.lastWindow.Load())
	assert.Equal(t, int32(2), eng.arriveCalls.Load(), "arrive-by searches are not cached")
}

func TestPeriodSwitch(t *testing.T) {
	eng := &fakeEngine{paths: okJourney()}
	holidays := []models.HolidayPeriod{{
		Name:  "Toussaint",
		Start: time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC),
	}}
	p := New(eng, period.NewSelector(holidays), nil, Config{Datasets: testDatasets(), Location: time.UTC}, nil,
		WithClock(func() time.Time { return testNow }))
	ctx := context.Background()

	tests := []struct {
		name     string
		date     time.Time
		expected models.PeriodID
	}{
		{"Saturday", time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC), models.PeriodSaturday},
		{"Holiday weekday", time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC), models.PeriodWeekdaySchoolOff},
		{"Sunday", time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC), models.PeriodSunday},
		{"Back to school", time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC), models.PeriodWeekdaySchoolOn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			journeys, err := p.FindPaths(ctx, Query{Origins: []int{1}, Destinations: []int{2}, Departure: departure(12, 0), Date: tt.date})
			require.NoError(t, err)
			require.Len(t, journeys, 1)

			active, ok := p.ActivePeriod()
			require.True(t, ok)
			assert.Equal(t, tt.expected, active)
			assert.Equal(t, string(tt.expected)+"-0", journeys[0].Legs[0].From.Name)
		})
	}
}

func TestConcurrentQueriesAcrossPeriods(t *testing.T) {
	eng := &fakeEngine{paths: okJourney()}
	p := newTestPlanner(eng)
	saturday := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	thursday := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	var mismatches atomic.Int32
	for i := 0; i < 40; i++ {
		date, want := thursday, models.PeriodWeekdaySchoolOn
		if i%2 == 0 {
			date, want = saturday, models.PeriodSaturday
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			journeys, err := p.FindPathsArriveBy(context.Background(), ArriveByQuery{
				Origins: []int{1}, Destinations: []int{2}, Arrival: 9 * 3600, Date: date,
			})
			if err != nil || len(journeys) != 1 || journeys[0].Legs[0].From.Name != string(want)+"-0" {
				mismatches.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, mismatches.Load(), "every result must come from its own date's period")
}

func TestStopQueries(t *testing.T) {
	eng := &fakeEngine{}
	p := newTestPlanner(eng)
	ctx := context.Background()

	found, err := p.SearchStops(ctx, "weekday school on", 0)
	require.NoError(t, err)
	assert.Len(t, found, 3)
	assert.Equal(t, StateReady, p.State())

	closest, ok, err := p.ClosestStop(ctx, 48.81, 2.3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 101, closest.ID)

	nearest, err := p.NearestStops(ctx, 48.8, 2.3, 2)
	require.NoError(t, err)
	require.Len(t, nearest, 2)
	assert.Equal(t, 100, nearest[0].ID)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "State(9)", State(9).String())
}
