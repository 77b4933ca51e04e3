package httpgin

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/velykodnyi/corridor/internal/domain"
	"github.com/velykodnyi/corridor/internal/regionmap"
	"github.com/velykodnyi/corridor/internal/repository/memory"
	"github.com/velykodnyi/corridor/internal/routing"
	"github.com/velykodnyi/corridor/internal/service/booking"
)

type stubRoutes struct {
	path []domain.Coordinate
}

func (s *stubRoutes) GetRoute(ctx context.Context, origin, destination domain.Coordinate) ([]domain.Coordinate, error) {
	if s.path == nil {
		return nil, routing.ErrRouteNotFound
	}
	return s.path, nil
}

type stubRegion struct {
	ledger     *memory.Ledger
	segmentIDs []string
}

func (s *stubRegion) ProcessAndReserve(ctx context.Context, bookingID uuid.UUID, coords []domain.Coordinate) (domain.ReserveOutcome, error) {
	if err := s.ledger.Reserve(ctx, bookingID, s.segmentIDs); err != nil {
		return domain.ReserveOutcome{Reason: "at_capacity"}, nil
	}
	return domain.ReserveOutcome{Reserved: true, SegmentIDs: s.segmentIDs}, nil
}

func (s *stubRegion) Confirm(ctx context.Context, bookingID uuid.UUID) (int64, error) {
	return s.ledger.Confirm(ctx, bookingID)
}

func (s *stubRegion) Cancel(ctx context.Context, bookingID uuid.UUID) (domain.CancelResult, error) {
	return s.ledger.Cancel(ctx, bookingID)
}

func (s *stubRegion) Segments(ctx context.Context, bookingID uuid.UUID) ([]domain.ReservedSegment, error) {
	return s.ledger.Segments(ctx, bookingID)
}

func newTestRouter(t *testing.T) (*gin.Engine, *memory.BookingStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	table := regionmap.New([]regionmap.Boundary{
		{Region: "north", Box: domain.BoundingBox{MinLat: 10, MaxLat: 20, MinLon: 0, MaxLon: 10}},
	})

	ledger := memory.NewLedger()
	ledger.Seed("seg-1", 5)

	records := memory.NewBookingStore()
	svc := booking.New(
		&stubRoutes{path: []domain.Coordinate{{Lat: 15, Lon: 5}, {Lat: 16, Lon: 5}}},
		table,
		map[string]booking.RegionClient{
			"north": &stubRegion{ledger: ledger, segmentIDs: []string{"seg-1"}},
		},
		records,
		nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	return NewCoordinatorRouter(svc, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil))), records
}

func TestCreateBooking(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{"start_coordinates":"15.0,5.0","destination_coordinates":"16.0,5.0"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var res booking.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Status != domain.BookingSuccess {
		t.Errorf("expected success, got %s", res.Status)
	}
	if res.BookingID == uuid.Nil {
		t.Error("expected a booking id")
	}
}

func TestCreateBooking_BadCoordinates(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, body := range []string{
		`{"start_coordinates":"not-a-pair","destination_coordinates":"16.0,5.0"}`,
		`{"start_coordinates":"95.0,5.0","destination_coordinates":"16.0,5.0"}`,
		`{"destination_coordinates":"16.0,5.0"}`,
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, w.Code)
		}
	}
}

func TestGetBooking_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/bookings/"+uuid.NewString(), nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestGetBooking_InvalidID(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/bookings/not-a-uuid", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestCancelBooking_RoundTrip(t *testing.T) {
	router, records := newTestRouter(t)

	body := `{"start_coordinates":"15.0,5.0","destination_coordinates":"16.0,5.0"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	var res booking.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/bookings/"+res.BookingID.String()+"/cancel", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	record, err := records.Get(context.Background(), res.BookingID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record.Status != domain.BookingCancelled {
		t.Errorf("expected cancelled, got %s", record.Status)
	}
}

func TestParseLatLon(t *testing.T) {
	tests := []struct {
		in      string
		want    domain.Coordinate
		wantErr bool
	}{
		{in: "53.35,-6.26", want: domain.Coordinate{Lat: 53.35, Lon: -6.26}},
		{in: " 51.5 , -0.12 ", want: domain.Coordinate{Lat: 51.5, Lon: -0.12}},
		{in: "53.35", wantErr: true},
		{in: "91,0", wantErr: true},
		{in: "0,181", wantErr: true},
		{in: "abc,def", wantErr: true},
	}

	for _, tc := range tests {
		got, err := parseLatLon(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%q: got %+v", tc.in, got)
		}
	}
}
