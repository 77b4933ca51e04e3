package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	ReservationWaiting   ReservationStatus = "waiting"
	ReservationSuccess   ReservationStatus = "success"
	ReservationFailed    ReservationStatus = "failed"
	ReservationCancelled ReservationStatus = "cancelled"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingSuccess   BookingStatus = "success"
	BookingFailure   BookingStatus = "failure"
	BookingCancelled BookingStatus = "cancelled"
)

// Coordinate is a WGS84 point in (latitude, longitude) order, matching
// the order used by the routing collaborator's decoded geometry.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%f,%f", c.Lat, c.Lon)
}

// BoundingBox is a rectangular region boundary. Bounds are inclusive.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

func (b BoundingBox) Contains(c Coordinate) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat &&
		c.Lon >= b.MinLon && c.Lon <= b.MaxLon
}

// Run is a maximal contiguous subsequence of a route classified to a
// single region. IDs are assigned in scan order starting at 1.
type Run struct {
	ID          int
	Region      string
	Coordinates []Coordinate
}

// Segment is a fixed-capacity road unit owned by one region's ledger.
// current_load is mutated only inside reserve/cancel units of work and
// stays within [0, capacity] at all times visible to any reader.
type Segment struct {
	SegmentID   string `json:"segment_id"`
	Capacity    int    `json:"capacity"`
	CurrentLoad int    `json:"current_load"`
}

// Reservation is one booking's claim on one segment. Order is the
// segment's position along the route, kept for reconstruction.
type Reservation struct {
	BookingID uuid.UUID         `json:"booking_id"`
	SegmentID string            `json:"segment_id"`
	Order     int               `json:"order"`
	Status    ReservationStatus `json:"status"`
}

// ReservedSegment joins a reservation with its segment's capacity view,
// for status inspection and display.
type ReservedSegment struct {
	Reservation
	Capacity    int `json:"capacity"`
	CurrentLoad int `json:"current_load"`
}

// CancelResult reports what a cancel actually did. SegmentsFreed can be
// lower than SegmentsCancelled when a load was already at zero.
type CancelResult struct {
	SegmentsCancelled int64 `json:"segments_cancelled"`
	SegmentsFreed     int64 `json:"segments_freed"`
}

type CapacityStatus string

const (
	CapacityOK      CapacityStatus = "ok"
	CapacityAtLimit CapacityStatus = "at_capacity"
	CapacityMissing CapacityStatus = "segment_missing"
)

// CapacityReport is the outcome of a read-only pre-flight check.
// SegmentID names the first offending segment when Status is not ok.
// The check is advisory only; Reserve re-verifies under its own locks.
type CapacityReport struct {
	Status    CapacityStatus `json:"status"`
	SegmentID string         `json:"segment_id,omitempty"`
}

// ReserveOutcome is a region's answer to a process-and-reserve call.
// A rejection (capacity, nothing matched) is a settled outcome, not an
// error: retrying cannot change it.
type ReserveOutcome struct {
	Reserved   bool     `json:"reserved"`
	SegmentIDs []string `json:"segment_ids,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// Booking is the coordinator's durable record of one trip request.
type Booking struct {
	ID              uuid.UUID     `json:"booking_id"`
	StartLocation   string        `json:"start_location"`
	EndLocation     string        `json:"end_location"`
	InvolvedRegions []string      `json:"involved_regions"`
	Status          BookingStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}
