package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/passbi/passbi_journeys/internal/cache"
	"github.com/passbi/passbi_journeys/internal/engine"
	"github.com/passbi/passbi_journeys/internal/logging"
	"github.com/passbi/passbi_journeys/internal/metrics"
	"github.com/passbi/passbi_journeys/internal/models"
	"github.com/passbi/passbi_journeys/internal/period"
	"github.com/passbi/passbi_journeys/internal/stops"
)

// DefaultSearchWindowMinutes is the arrive-by search window when none is given
const DefaultSearchWindowMinutes = 120

// ErrInitialization wraps every error caused by a failed dataset load
var ErrInitialization = errors.New("planner initialization failed")

// State is the lifecycle of a Planner
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Query is a departure search. A nil Departure means now; a zero Date means today.
type Query struct {
	Origins      []int
	Destinations []int
	Departure    *int
	Date         time.Time
}

// ArriveByQuery is an arrival search. WindowMinutes <= 0 uses DefaultSearchWindowMinutes.
type ArriveByQuery struct {
	Origins       []int
	Destinations  []int
	Arrival       int
	WindowMinutes int
	Date          time.Time
}

// Config holds the dataset handle of every period and the service time zone
type Config struct {
	Datasets map[models.PeriodID]string
	Location *time.Location
}

// Planner answers journey and stop queries against the routing engine,
// switching schedule periods by date and caching departure searches.
type Planner struct {
	engine   engine.Engine
	selector *period.Selector
	cache    *cache.JourneyCache
	index    *stops.Index
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	state atomic.Int32
	// held exclusively while loading or switching periods, shared while
	// a query reads the index or waits on the engine
	mu     sync.RWMutex
	active models.PeriodID
}

// Option configures a Planner
type Option func(*Planner)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(p *Planner) {
		p.now = now
	}
}

// WithMetrics records planner instruments on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Planner) {
		p.metrics = m
	}
}

// New creates a planner. A nil journey cache is replaced by a memory-only one.
func New(eng engine.Engine, selector *period.Selector, jc *cache.JourneyCache, cfg Config, logger *slog.Logger, opts ...Option) *Planner {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if selector == nil {
		selector = period.NewSelector(nil)
	}

	p := &Planner{
		engine:   eng,
		selector: selector,
		cache:    jc,
		index:    stops.NewIndex(nil),
		cfg:      cfg,
		logger:   logging.OrDefault(logger),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cache == nil {
		p.cache = cache.NewJourneyCache(cache.DefaultConfig(), nil, p.logger, p.metrics)
	}
	return p
}

// State returns the current lifecycle state
func (p *Planner) State() State {
	return State(p.state.Load())
}

// ActivePeriod returns the period the engine is serving, false before initialization
func (p *Planner) ActivePeriod() (models.PeriodID, bool) {
	if p.State() != StateReady {
		return "", false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active, true
}

// Cache returns the journey cache
func (p *Planner) Cache() *cache.JourneyCache {
	return p.cache
}

// Selector returns the period selector
func (p *Planner) Selector() *period.Selector {
	return p.selector
}

// Initialize loads every period dataset and activates today's period.
// Concurrent callers share a single load; a failed load leaves the planner
// uninitialized so the next call retries.
func (p *Planner) Initialize(ctx context.Context) error {
	if p.State() == StateReady {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State() == StateReady {
		return nil
	}

	p.state.Store(int32(StateInitializing))
	start := time.Now()

	// shared by every waiting caller, so one caller's cancellation must not abort it
	if err := p.load(context.WithoutCancel(ctx)); err != nil {
		p.state.Store(int32(StateUninitialized))
		logging.LogError(p.logger, "planner initialization failed", err)
		return fmt.Errorf("%w: %w", ErrInitialization, err)
	}

	p.state.Store(int32(StateReady))
	p.metrics.Initialized()
	logging.LogOperation(p.logger, "planner_initialized",
		slog.String("period", string(p.active)),
		slog.Int("stops", p.index.Len()),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// load runs with mu held exclusively
func (p *Planner) load(ctx context.Context) (err error) {
	defer recoverEngine(&err)

	for _, id := range models.AllPeriods() {
		dataset, ok := p.cfg.Datasets[id]
		if !ok || dataset == "" {
			return fmt.Errorf("no dataset configured for period %s", id)
		}
		if err := p.engine.LoadPeriod(ctx, id, dataset); err != nil {
			return fmt.Errorf("failed to load period %s: %w", id, err)
		}
	}

	return p.activate(ctx, p.selector.PeriodForDate(p.today()))
}

// activate switches the engine to id and rebuilds the stop index; mu must be held exclusively
func (p *Planner) activate(ctx context.Context, id models.PeriodID) error {
	if err := p.engine.SetActivePeriod(ctx, id); err != nil {
		return fmt.Errorf("failed to activate period %s: %w", id, err)
	}

	all, err := p.engine.AllStops(ctx)
	if err != nil {
		return fmt.Errorf("failed to list stops of period %s: %w", id, err)
	}

	p.index.Rebuild(all)
	p.active = id
	p.metrics.PeriodActivated(string(id))
	p.logger.Info("schedule period activated",
		slog.String("period", string(id)),
		slog.Int("stops", len(all)))
	return nil
}

// acquire initializes the planner if needed and returns holding a read lock
// while the period for date is active. The caller must call release.
func (p *Planner) acquire(ctx context.Context, date time.Time) (release func(), err error) {
	if err := p.Initialize(ctx); err != nil {
		return nil, err
	}

	want := p.selector.PeriodForDate(date)
	for {
		p.mu.RLock()
		if p.active == want {
			return p.mu.RUnlock, nil
		}
		p.mu.RUnlock()

		if err := p.switchPeriod(ctx, want); err != nil {
			return nil, err
		}
	}
}

func (p *Planner) switchPeriod(ctx context.Context, want models.PeriodID) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer recoverEngine(&err)

	if p.active == want {
		return nil
	}
	return p.activate(ctx, want)
}

// FindPaths searches journeys departing at q.Departure. Results are cached by
// rounded departure time; the engine always receives the exact time.
// The error is non-nil only when the planner cannot be initialized; engine
// failures yield an empty result.
func (p *Planner) FindPaths(ctx context.Context, q Query) ([]models.JourneyResult, error) {
	date := p.dateOrToday(q.Date)
	departure := p.departureOrNow(q.Departure)

	release, err := p.acquire(ctx, date)
	if err != nil {
		return p.failed("find_paths", err)
	}
	defer release()

	key := cache.Key(q.Origins, q.Destinations, departure, date)
	if journeys, ok := p.cache.Get(ctx, key); ok {
		return journeys, nil
	}

	if len(q.Origins) == 0 || len(q.Destinations) == 0 {
		p.logger.Warn("rejecting journey query without origins or destinations",
			slog.Int("origins", len(q.Origins)),
			slog.Int("destinations", len(q.Destinations)))
		return nil, nil
	}

	raw, err := p.callEngine("find_paths", func() ([][]engine.Leg, error) {
		return p.engine.FindPaths(ctx, q.Origins, q.Destinations, departure)
	})
	if err != nil {
		logging.LogError(p.logger, "routing engine search failed", err,
			slog.String("key", key))
		return nil, nil
	}

	journeys := p.mapJourneys(raw)
	p.cache.Put(key, journeys)
	return journeys, nil
}

// FindPathsArriveBy searches journeys arriving by q.Arrival. Results are not cached.
func (p *Planner) FindPathsArriveBy(ctx context.Context, q ArriveByQuery) ([]models.JourneyResult, error) {
	date := p.dateOrToday(q.Date)
	window := q.WindowMinutes
	if window <= 0 {
		window = DefaultSearchWindowMinutes
	}

	release, err := p.acquire(ctx, date)
	if err != nil {
		return p.failed("find_paths_arrive_by", err)
	}
	defer release()

	if len(q.Origins) == 0 || len(q.Destinations) == 0 {
		p.logger.Warn("rejecting arrive-by query without origins or destinations",
			slog.Int("origins", len(q.Origins)),
			slog.Int("destinations", len(q.Destinations)))
		return nil, nil
	}

	raw, err := p.callEngine("find_paths_arrive_by", func() ([][]engine.Leg, error) {
		return p.engine.FindPathsArriveBy(ctx, q.Origins, q.Destinations, q.Arrival, window)
	})
	if err != nil {
		logging.LogError(p.logger, "routing engine arrive-by search failed", err,
			slog.Int("arrival", q.Arrival),
			slog.Int("window_minutes", window))
		return nil, nil
	}

	return p.mapJourneys(raw), nil
}

// failed separates initialization errors, which callers see, from period
// switch errors, which degrade to an empty result
func (p *Planner) failed(op string, err error) ([]models.JourneyResult, error) {
	if errors.Is(err, ErrInitialization) {
		return nil, err
	}
	logging.LogError(p.logger, "period switch failed", err, slog.String("operation", op))
	return nil, nil
}

// SearchStops returns stops whose name matches query
func (p *Planner) SearchStops(ctx context.Context, query string, limit int) ([]models.Stop, error) {
	if err := p.Initialize(ctx); err != nil {
		return nil, err
	}
	return p.index.Search(query, limit), nil
}

// ClosestStop returns the stop nearest to (lat, lon)
func (p *Planner) ClosestStop(ctx context.Context, lat, lon float64) (models.Stop, bool, error) {
	if err := p.Initialize(ctx); err != nil {
		return models.Stop{}, false, err
	}
	s, ok := p.index.Closest(lat, lon)
	return s, ok, nil
}

// NearestStops returns up to limit stops near (lat, lon), one per stop name
func (p *Planner) NearestStops(ctx context.Context, lat, lon float64, limit int) ([]models.Stop, error) {
	if err := p.Initialize(ctx); err != nil {
		return nil, err
	}
	return p.index.Nearest(lat, lon, limit), nil
}

func (p *Planner) callEngine(op string, call func() ([][]engine.Leg, error)) (legs [][]engine.Leg, err error) {
	start := time.Now()
	defer p.metrics.ObserveEngine(op, start)
	defer recoverEngine(&err)
	return call()
}

func recoverEngine(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("routing engine panic: %v", r)
	}
}

// mapJourneys resolves engine positions to stops. A journey with any
// unresolvable leg is dropped whole.
func (p *Planner) mapJourneys(raw [][]engine.Leg) []models.JourneyResult {
	journeys := make([]models.JourneyResult, 0, len(raw))
	dropped := 0

	for _, legs := range raw {
		journey, ok := p.mapJourney(legs)
		if !ok {
			dropped++
			continue
		}
		journeys = append(journeys, journey)
	}

	if dropped > 0 {
		p.metrics.DroppedJourneys(dropped)
		p.logger.Debug("dropped journeys with unresolvable legs",
			slog.Int("dropped", dropped),
			slog.Int("kept", len(journeys)))
	}
	return journeys
}

func (p *Planner) mapJourney(raw []engine.Leg) (models.JourneyResult, bool) {
	legs := make([]models.JourneyLeg, 0, len(raw))
	for _, l := range raw {
		leg, ok := p.mapLeg(l)
		if !ok {
			return models.JourneyResult{}, false
		}
		legs = append(legs, leg)
	}
	return models.NewJourneyResult(legs)
}

func (p *Planner) mapLeg(l engine.Leg) (models.JourneyLeg, bool) {
	from, ok := p.index.At(l.From)
	if !ok {
		return models.JourneyLeg{}, false
	}
	to, ok := p.index.At(l.To)
	if !ok {
		return models.JourneyLeg{}, false
	}
	if len(l.IntermediatePositions) != len(l.IntermediateArrivals) {
		return models.JourneyLeg{}, false
	}

	var intermediate []models.IntermediateStop
	if len(l.IntermediatePositions) > 0 {
		intermediate = make([]models.IntermediateStop, len(l.IntermediatePositions))
		for i, pos := range l.IntermediatePositions {
			s, ok := p.index.At(pos)
			if !ok {
				return models.JourneyLeg{}, false
			}
			intermediate[i] = models.IntermediateStop{
				Name:    s.Name,
				Arrival: l.IntermediateArrivals[i],
				Lat:     s.Lat,
				Lon:     s.Lon,
			}
		}
	}

	return models.JourneyLeg{
		From:         from,
		To:           to,
		Departure:    l.Departure,
		Arrival:      l.Arrival,
		RouteName:    l.Route,
		IsTransfer:   l.IsTransfer,
		Intermediate: intermediate,
	}, true
}

func (p *Planner) today() time.Time {
	return models.DateOf(p.now().In(p.cfg.Location))
}

func (p *Planner) dateOrToday(date time.Time) time.Time {
	if date.IsZero() {
		return p.today()
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, p.cfg.Location)
}

func (p *Planner) departureOrNow(departure *int) int {
	if departure != nil {
		return *departure
	}
	now := p.now().In(p.cfg.Location)
	return now.Hour()*3600 + now.Minute()*60 + now.Second()
}
