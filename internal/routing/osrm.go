// Package routing is the client side of the routing collaborator. The
// core only needs a decodable ordered sequence of coordinates; how the
// path is computed is the collaborator's business.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/twpayne/go-polyline"
	"github.com/velykodnyi/corridor/internal/domain"
)

var ErrRouteNotFound = errors.New("no route between endpoints")

// Source yields a travel path between two endpoints.
type Source interface {
	GetRoute(ctx context.Context, origin, destination domain.Coordinate) ([]domain.Coordinate, error)
}

// OSRM fetches driving routes from an OSRM-compatible server and
// decodes the encoded polyline geometry into coordinates.
type OSRM struct {
	baseURL string
	httpc   *http.Client
}

func NewOSRM(baseURL string, timeout time.Duration) *OSRM {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &OSRM{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
	}
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Geometry string `json:"geometry"`
	} `json:"routes"`
}

func (o *OSRM) GetRoute(ctx context.Context, origin, destination domain.Coordinate) ([]domain.Coordinate, error) {
	const op = "routing.OSRM.GetRoute"

	// OSRM takes lon,lat pairs.
	url := fmt.Sprintf(
		"%s/route/v1/driving/%f,%f;%f,%f?overview=full",
		o.baseURL,
		origin.Lon, origin.Lat,
		destination.Lon, destination.Lat,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	resp, err := o.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	defer resp.Body.Close()

	// OSRM reports "no route" as HTTP 400 with code NoRoute, so the
	// body has to be decoded before the status is judged.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		return nil, fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
	}

	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	switch {
	case body.Code == "NoRoute":
		return nil, fmt.Errorf("%s:%w", op, ErrRouteNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%s: unexpected status %d (%s)", op, resp.StatusCode, body.Code)
	case len(body.Routes) == 0:
		return nil, fmt.Errorf("%s:%w", op, ErrRouteNotFound)
	}

	coords, _, err := polyline.DecodeCoords([]byte(body.Routes[0].Geometry))
	if err != nil {
		return nil, fmt.Errorf("%s: decode geometry: %w", op, err)
	}

	path := make([]domain.Coordinate, len(coords))
	for i, c := range coords {
		path[i] = domain.Coordinate{Lat: c[0], Lon: c[1]}
	}

	return path, nil
}
