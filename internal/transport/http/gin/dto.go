package httpgin

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/velykodnyi/corridor/internal/domain"
)

type CreateBookingRequest struct {
	StartCoordinates       string `json:"start_coordinates" binding:"required"`
	DestinationCoordinates string `json:"destination_coordinates" binding:"required"`
}

type ProcessSegmentRequest struct {
	BookingID   string       `json:"booking_id" binding:"required,uuid"`
	Coordinates [][2]float64 `json:"coordinates" binding:"required,min=2"`
}

type MatchSegmentsRequest struct {
	Coordinates [][2]float64 `json:"coordinates" binding:"required,min=2"`
}

type CheckCapacityRequest struct {
	SegmentIDs []string `json:"segment_ids" binding:"required,min=1,dive,required"`
}

type ReserveRequest struct {
	BookingID  string   `json:"booking_id" binding:"required,uuid"`
	SegmentIDs []string `json:"segment_ids" binding:"required,min=1,dive,required"`
}

type ProcessSegmentResponse struct {
	Status     string   `json:"status"`
	SegmentIDs []string `json:"segment_ids"`
}

type MatchSegmentsResponse struct {
	SegmentIDs []string `json:"segment_ids"`
}

type ConfirmResponse struct {
	Updated int64 `json:"updated"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// parseLatLon parses the "lat,lon" wire form used for booking
// endpoints.
func parseLatLon(s string) (domain.Coordinate, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return domain.Coordinate{}, fmt.Errorf("expected \"lat,lon\", got %q", s)
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("invalid latitude %q", parts[0])
	}

	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("invalid longitude %q", parts[1])
	}

	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return domain.Coordinate{}, fmt.Errorf("coordinate out of range: %q", s)
	}

	return domain.Coordinate{Lat: lat, Lon: lon}, nil
}

func toCoordinates(pairs [][2]float64) []domain.Coordinate {
	out := make([]domain.Coordinate, len(pairs))
	for i, p := range pairs {
		out[i] = domain.Coordinate{Lat: p[0], Lon: p[1]}
	}
	return out
}
