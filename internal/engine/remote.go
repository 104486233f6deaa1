package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/passbi/passbi_journeys/internal/models"
)

const requestIDHeader = "X-Request-ID"

// RemoteConfig configures the HTTP client of an out-of-process engine
type RemoteConfig struct {
	BaseURL string
	Timeout time.Duration
}

// StatusError is a non-2xx answer from the engine
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("engine %s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("engine %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Message)
}

// Remote talks JSON over HTTP to a routing engine sidecar
type Remote struct {
	client  *fasthttp.Client
	baseURL string
	timeout time.Duration
}

// RemoteOption configures a Remote
type RemoteOption func(*Remote)

// WithDial replaces the dialer, e.g. with an in-memory listener
func WithDial(dial func(addr string) (net.Conn, error)) RemoteOption {
	return func(r *Remote) {
		r.client.Dial = dial
	}
}

// NewRemote creates an engine client
func NewRemote(cfg RemoteConfig, opts ...RemoteOption) *Remote {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := &Remote{
		client: &fasthttp.Client{
			Name:                "passbi-journeys",
			MaxConnsPerHost:     64,
			MaxIdleConnDuration: time.Minute,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: timeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type loadPeriodRequest struct {
	Period  models.PeriodID `json:"period"`
	Dataset string          `json:"dataset"`
}

type activatePeriodRequest struct {
	Period models.PeriodID `json:"period"`
}

type stopsResponse struct {
	Stops []models.Stop `json:"stops"`
}

type pathsRequest struct {
	Origins       []int `json:"origins"`
	Destinations  []int `json:"destinations"`
	Departure     *int  `json:"departure,omitempty"`
	Arrival       *int  `json:"arrival,omitempty"`
	WindowMinutes int   `json:"window_minutes,omitempty"`
}

type pathsResponse struct {
	Journeys [][]Leg `json:"journeys"`
}

func (r *Remote) LoadPeriod(ctx context.Context, period models.PeriodID, dataset string) error {
	return r.do(ctx, fasthttp.MethodPost, "/periods/load", loadPeriodRequest{Period: period, Dataset: dataset}, nil)
}

func (r *Remote) SetActivePeriod(ctx context.Context, period models.PeriodID) error {
	return r.do(ctx, fasthttp.MethodPost, "/periods/activate", activatePeriodRequest{Period: period}, nil)
}

func (r *Remote) AllStops(ctx context.Context) ([]models.Stop, error) {
	var resp stopsResponse
	if err := r.do(ctx, fasthttp.MethodGet, "/stops", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Stops, nil
}

func (r *Remote) FindPaths(ctx context.Context, origins, destinations []int, departure int) ([][]Leg, error) {
	var resp pathsResponse
	err := r.do(ctx, fasthttp.MethodPost, "/paths", pathsRequest{
		Origins:      origins,
		Destinations: destinations,
		Departure:    &departure,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Journeys, nil
}

func (r *Remote) FindPathsArriveBy(ctx context.Context, origins, destinations []int, arrival, windowMinutes int) ([][]Leg, error) {
	var resp pathsResponse
	err := r.do(ctx, fasthttp.MethodPost, "/paths/arrive-by", pathsRequest{
		Origins:       origins,
		Destinations:  destinations,
		Arrival:       &arrival,
		WindowMinutes: windowMinutes,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Journeys, nil
}

// Ping checks that the engine answers
func (r *Remote) Ping(ctx context.Context) error {
	return r.do(ctx, fasthttp.MethodGet, "/health", nil, nil)
}

func (r *Remote) do(ctx context.Context, method, path string, in, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(r.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set(requestIDHeader, uuid.NewString())
	req.Header.Set(fasthttp.HeaderAccept, "application/json")

	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode engine request: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBodyRaw(body)
	}

	timeout := r.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	if err := r.client.DoTimeout(req, resp, timeout); err != nil {
		return fmt.Errorf("engine %s %s: %w", method, path, err)
	}

	if code := resp.StatusCode(); code < 200 || code >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(resp.Body(), &body)
		return &StatusError{Method: method, Path: path, Code: code, Message: body.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to decode engine response: %w", err)
	}
	return nil
}
