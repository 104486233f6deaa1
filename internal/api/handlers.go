package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/passbi/passbi_journeys/internal/gtfs"
	"github.com/passbi/passbi_journeys/internal/logging"
	"github.com/passbi/passbi_journeys/internal/models"
	"github.com/passbi/passbi_journeys/internal/planner"
	"github.com/passbi/passbi_journeys/internal/stops"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	defaultNearbyLimit = 10
	maxNearbyLimit     = 50
	maxWindowMinutes   = 24 * 60
)

// HealthCheck is a named dependency probe reported by /health
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler serves the journey and stop endpoints
type Handler struct {
	planner  *planner.Planner
	location *time.Location
	checks   []HealthCheck
	logger   *slog.Logger
	now      func() time.Time
}

// NewHandler creates a handler over p. Dates without a time zone are read in loc.
func NewHandler(p *planner.Planner, loc *time.Location, logger *slog.Logger, checks ...HealthCheck) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{
		planner:  p,
		location: loc,
		checks:   checks,
		logger:   logging.OrDefault(logger),
		now:      time.Now,
	}
}

// JourneyResponse is one journey option
type JourneyResponse struct {
	DepartureTime   string              `json:"departure_time"`
	ArrivalTime     string              `json:"arrival_time"`
	DurationSeconds int                 `json:"duration_seconds"`
	Transfers       int                 `json:"transfers"`
	Legs            []models.JourneyLeg `json:"legs"`
}

// JourneysResponse is the response of both journey endpoints
type JourneysResponse struct {
	Date     string            `json:"date"`
	Period   models.PeriodID   `json:"period"`
	Journeys []JourneyResponse `json:"journeys"`
}

// NearbyStop is a stop with its distance from the requested point
type NearbyStop struct {
	models.Stop
	DistanceM int `json:"distance_meters"`
}

// Health handles the /health endpoint
func (h *Handler) Health(c *fiber.Ctx) error {
	ctx := c.UserContext()

	state := h.planner.State()
	healthy := state == planner.StateReady

	checks := fiber.Map{}
	for _, hc := range h.checks {
		if err := hc.Check(ctx); err != nil {
			checks[hc.Name] = err.Error()
			healthy = false
			continue
		}
		checks[hc.Name] = "ok"
	}

	status := "healthy"
	httpStatus := fiber.StatusOK
	if !healthy {
		status = "unhealthy"
		httpStatus = fiber.StatusServiceUnavailable
	}

	body := fiber.Map{
		"status":         status,
		"planner":        state.String(),
		"checks":         checks,
		"cached_entries": h.planner.Cache().MemoryLen(),
	}
	if p, ok := h.planner.ActivePeriod(); ok {
		body["active_period"] = p
	}

	return c.Status(httpStatus).JSON(body)
}

// Journeys handles GET /v2/journeys?from=1,2&to=3&time=08:30&date=2026-10-15
func (h *Handler) Journeys(c *fiber.Ctx) error {
	origins, destinations, err := parseEndpoints(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	date, err := h.parseDate(c.Query("date"))
	if err != nil {
		return badRequest(c, err.Error())
	}

	q := planner.Query{Origins: origins, Destinations: destinations, Date: date}
	if s := c.Query("time"); s != "" {
		departure, err := gtfs.ParseTimeToSeconds(s)
		if err != nil {
			return badRequest(c, fmt.Sprintf("invalid 'time': %v", err))
		}
		q.Departure = &departure
	}

	journeys, err := h.planner.FindPaths(c.UserContext(), q)
	if err != nil {
		return h.plannerError(c, err)
	}

	return c.JSON(h.journeysResponse(date, journeys))
}

// JourneysArriveBy handles GET /v2/journeys/arrive-by?from=1&to=3&time=09:00&window=60
func (h *Handler) JourneysArriveBy(c *fiber.Ctx) error {
	origins, destinations, err := parseEndpoints(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	date, err := h.parseDate(c.Query("date"))
	if err != nil {
		return badRequest(c, err.Error())
	}

	timeStr := c.Query("time")
	if timeStr == "" {
		return badRequest(c, "missing required parameter: time")
	}
	arrival, err := gtfs.ParseTimeToSeconds(timeStr)
	if err != nil {
		return badRequest(c, fmt.Sprintf("invalid 'time': %v", err))
	}

	window, err := parseIntParam(c.Query("window"), planner.DefaultSearchWindowMinutes, 1, maxWindowMinutes)
	if err != nil {
		return badRequest(c, fmt.Sprintf("invalid window (must be between 1 and %d minutes)", maxWindowMinutes))
	}

	journeys, err := h.planner.FindPathsArriveBy(c.UserContext(), planner.ArriveByQuery{
		Origins:       origins,
		Destinations:  destinations,
		Arrival:       arrival,
		WindowMinutes: window,
		Date:          date,
	})
	if err != nil {
		return h.plannerError(c, err)
	}

	return c.JSON(h.journeysResponse(date, journeys))
}

// StopsSearch handles GET /v2/stops/search?q=gare&limit=20
func (h *Handler) StopsSearch(c *fiber.Ctx) error {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		return badRequest(c, "missing required parameter: q")
	}

	limit, err := parseIntParam(c.Query("limit"), defaultSearchLimit, 1, maxSearchLimit)
	if err != nil {
		return badRequest(c, fmt.Sprintf("invalid limit (must be between 1 and %d)", maxSearchLimit))
	}

	results, err := h.planner.SearchStops(c.UserContext(), query, limit)
	if err != nil {
		return h.plannerError(c, err)
	}

	return c.JSON(fiber.Map{
		"query": query,
		"stops": nonNil(results),
		"count": len(results),
	})
}

// StopsClosest handles GET /v2/stops/closest?lat=..&lon=..
func (h *Handler) StopsClosest(c *fiber.Ctx) error {
	lat, lon, err := parseCoordinates(c.Query("lat"), c.Query("lon"))
	if err != nil {
		return badRequest(c, err.Error())
	}

	stop, ok, err := h.planner.ClosestStop(c.UserContext(), lat, lon)
	if err != nil {
		return h.plannerError(c, err)
	}
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no stops loaded",
		})
	}

	return c.JSON(NearbyStop{
		Stop:      stop,
		DistanceM: int(stops.DistanceMeters(lat, lon, stop.Lat, stop.Lon)),
	})
}

// StopsNearby handles GET /v2/stops/nearby?lat=..&lon=..&limit=10
func (h *Handler) StopsNearby(c *fiber.Ctx) error {
	lat, lon, err := parseCoordinates(c.Query("lat"), c.Query("lon"))
	if err != nil {
		return badRequest(c, err.Error())
	}

	limit, err := parseIntParam(c.Query("limit"), defaultNearbyLimit, 1, maxNearbyLimit)
	if err != nil {
		return badRequest(c, fmt.Sprintf("invalid limit (must be between 1 and %d)", maxNearbyLimit))
	}

	nearest, err := h.planner.NearestStops(c.UserContext(), lat, lon, limit)
	if err != nil {
		return h.plannerError(c, err)
	}

	out := make([]NearbyStop, 0, len(nearest))
	for _, s := range nearest {
		out = append(out, NearbyStop{
			Stop:      s,
			DistanceM: int(stops.DistanceMeters(lat, lon, s.Lat, s.Lon)),
		})
	}

	return c.JSON(fiber.Map{
		"stops": out,
		"count": len(out),
	})
}

// ClearCache handles POST /admin/cache/clear
func (h *Handler) ClearCache(c *fiber.Ctx) error {
	if err := h.planner.Cache().ClearAll(c.UserContext()); err != nil {
		return err
	}
	logging.FromContext(c.UserContext()).Info("journey cache cleared")
	return c.JSON(fiber.Map{"status": "cleared"})
}

// CleanupCache handles POST /admin/cache/cleanup
func (h *Handler) CleanupCache(c *fiber.Ctx) error {
	removed, err := h.planner.Cache().CleanupExpired(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"removed": removed})
}

func (h *Handler) journeysResponse(date time.Time, journeys []models.JourneyResult) JourneysResponse {
	out := make([]JourneyResponse, 0, len(journeys))
	for _, j := range journeys {
		out = append(out, JourneyResponse{
			DepartureTime:   gtfs.FormatSeconds(j.DepartureTime),
			ArrivalTime:     gtfs.FormatSeconds(j.ArrivalTime),
			DurationSeconds: j.Duration(),
			Transfers:       j.Transfers(),
			Legs:            j.Legs,
		})
	}

	return JourneysResponse{
		Date:     date.Format(time.DateOnly),
		Period:   h.planner.Selector().PeriodForDate(date),
		Journeys: out,
	}
}

func (h *Handler) plannerError(c *fiber.Ctx, err error) error {
	if errors.Is(err, planner.ErrInitialization) {
		logging.LogError(logging.FromContext(c.UserContext()), "planner unavailable", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "journey planner unavailable",
		})
	}
	return err
}

func (h *Handler) parseDate(s string) (time.Time, error) {
	if s == "" {
		return models.DateOf(h.now().In(h.location)), nil
	}
	d, err := time.ParseInLocation(time.DateOnly, s, h.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid 'date' (expected YYYY-MM-DD)")
	}
	return d, nil
}

func parseEndpoints(c *fiber.Ctx) (origins, destinations []int, err error) {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return nil, nil, fmt.Errorf("missing required parameters: from and to")
	}

	if origins, err = parseStopIDs(fromStr); err != nil {
		return nil, nil, fmt.Errorf("invalid 'from' stops: %v", err)
	}
	if destinations, err = parseStopIDs(toStr); err != nil {
		return nil, nil, fmt.Errorf("invalid 'to' stops: %v", err)
	}
	return origins, destinations, nil
}

// parseStopIDs parses a comma separated list of stop ids
func parseStopIDs(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || id < 0 {
			return nil, fmt.Errorf("%q is not a stop id", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseCoordinates parses and range checks a latitude and longitude
func parseCoordinates(latStr, lonStr string) (lat, lon float64, err error) {
	if latStr == "" || lonStr == "" {
		return 0, 0, fmt.Errorf("missing required parameters: lat and lon")
	}

	lat, err = strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude")
	}

	lon, err = strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude")
	}

	if lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("latitude must be between -90 and 90")
	}
	if lon < -180 || lon > 180 {
		return 0, 0, fmt.Errorf("longitude must be between -180 and 180")
	}

	return lat, lon, nil
}

func parseIntParam(s string, def, lo, hi int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%d out of range", n)
	}
	return n, nil
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}

func nonNil(s []models.Stop) []models.Stop {
	if s == nil {
		return []models.Stop{}
	}
	return s
}
