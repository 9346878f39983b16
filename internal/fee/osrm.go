package fee

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dispatch-be/internal/logger"

	"go.uber.org/zap"
)

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"` // metres
		Duration float64 `json:"duration"` // seconds
	} `json:"routes"`
}

// OSRMRouter queries an OSRM-compatible routing service.
type OSRMRouter struct {
	baseURL    string
	httpClient *http.Client
}

func NewOSRMRouter(baseURL string) *OSRMRouter {
	if baseURL == "" {
		logger.L().Warn("OSRM base URL is empty")
	}
	return &OSRMRouter{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (o *OSRMRouter) Route(ctx context.Context, origin, destination Point) (Route, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=false",
		o.baseURL, origin.Lng, origin.Lat, destination.Lng, destination.Lat)

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "router"),
		zap.String("provider", "osrm"),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Route{}, fmt.Errorf("%w: %v", ErrRouteUnavailable, err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		log.Debug("osrm request failed", zap.Error(err))
		return Route{}, fmt.Errorf("%w: %v", ErrRouteUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Route{}, fmt.Errorf("%w: read body: %v", ErrRouteUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Debug("osrm returned non-success status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", body),
		)
		return Route{}, fmt.Errorf("%w: status %d", ErrRouteUnavailable, resp.StatusCode)
	}

	var res osrmResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return Route{}, fmt.Errorf("%w: decode: %v", ErrRouteUnavailable, err)
	}
	if res.Code != "Ok" || len(res.Routes) == 0 {
		return Route{}, fmt.Errorf("%w: code %q", ErrRouteUnavailable, res.Code)
	}

	r := res.Routes[0]
	return Route{
		DistanceKm:  r.Distance / 1000,
		DurationMin: r.Duration / 60,
	}, nil
}
