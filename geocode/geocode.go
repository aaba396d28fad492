// Package geocode is a thin proxy to an OSRM-compatible routing engine.
// Failures are soft: callers omit ETAs rather than failing requests.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"trackcore/config"
)

type Router struct {
	mu      sync.RWMutex
	baseURL string
	client  *http.Client
}

type RouteResult struct {
	DistanceMeters  float64 `json:"distance_meters"`
	DurationSeconds float64 `json:"duration_seconds"`
}

func New(cfg *config.GeocodeConfig) *Router {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Router{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *Router) Name() string { return "OSRM" }

func (r *Router) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.baseURL != ""
}

// Reconfigure applies a base URL change at runtime.
func (r *Router) Reconfigure(cfg *config.GeocodeConfig) {
	r.mu.Lock()
	r.baseURL = cfg.BaseURL
	r.mu.Unlock()
}

func (r *Router) Ping(ctx context.Context) error {
	r.mu.RLock()
	base := r.baseURL
	r.mu.RUnlock()
	if base == "" {
		return fmt.Errorf("routing engine not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/route/v1/driving/0,0;0,0", nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Route asks the engine for a driving route between two coordinates.
func (r *Router) Route(ctx context.Context, fromLat, fromLng, toLat, toLng float64) (*RouteResult, error) {
	r.mu.RLock()
	base := r.baseURL
	r.mu.RUnlock()
	if base == "" {
		return nil, fmt.Errorf("routing engine not configured")
	}

	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=false", base, fromLng, fromLat, toLng, toLat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("route request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("route request: status %d", resp.StatusCode)
	}

	var body struct {
		Code   string `json:"code"`
		Routes []struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
		} `json:"routes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("route decode: %w", err)
	}
	if body.Code != "Ok" || len(body.Routes) == 0 {
		return nil, fmt.Errorf("route: engine returned %q", body.Code)
	}
	return &RouteResult{
		DistanceMeters:  body.Routes[0].Distance,
		DurationSeconds: body.Routes[0].Duration,
	}, nil
}
