package regionclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/velykodnyi/corridor/internal/domain"
)

func testClient(baseURL string) *Client {
	return New(Config{
		Region:         "test",
		BaseURL:        baseURL,
		MaxRetries:     3,
		RequestTimeout: 2 * time.Second,
		InitialBackoff: time.Millisecond,
	})
}

func TestProcessAndReserve_Success(t *testing.T) {
	var gotReq processRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/segments/process" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(processResponse{
			Status:     "reserved",
			SegmentIDs: []string{"seg-1", "seg-2"},
		})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	bookingID := uuid.New()
	coords := []domain.Coordinate{{Lat: 53.3, Lon: -6.2}, {Lat: 53.4, Lon: -6.3}}

	out, err := c.ProcessAndReserve(context.Background(), bookingID, coords)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !out.Reserved {
		t.Error("expected reserved outcome")
	}
	if len(out.SegmentIDs) != 2 {
		t.Errorf("expected 2 segment IDs, got %v", out.SegmentIDs)
	}
	if gotReq.BookingID != bookingID.String() {
		t.Errorf("booking id not forwarded, got %q", gotReq.BookingID)
	}
	if len(gotReq.Coordinates) != 2 || gotReq.Coordinates[0][0] != 53.3 {
		t.Errorf("coordinates not forwarded lat-first, got %v", gotReq.Coordinates)
	}
}

func TestProcessAndReserve_AtCapacityIsSettled(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(errorResponse{Error: "segment full", Code: CodeAtCapacity})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	out, err := c.ProcessAndReserve(context.Background(), uuid.New(), nil)
	if err != nil {
		t.Fatalf("a capacity rejection must settle, not error: %v", err)
	}

	if out.Reserved {
		t.Error("expected rejected outcome")
	}
	if out.Reason != CodeAtCapacity {
		t.Errorf("expected reason %q, got %q", CodeAtCapacity, out.Reason)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("4xx must not be retried, got %d calls", n)
	}
}

func TestCall_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(confirmResponse{Updated: 4})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	updated, err := c.Confirm(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}

	if updated != 4 {
		t.Errorf("expected 4 updated, got %d", updated)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

func TestCall_RetryBudgetExhausted(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Confirm(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}

	// initial attempt + MaxRetries
	if n := atomic.LoadInt32(&calls); n != 4 {
		t.Errorf("expected 4 attempts, got %d", n)
	}
}

func TestCall_BadRequestSurfacesStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errorResponse{Error: "invalid payload"})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Confirm(context.Background(), uuid.New())

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got: %v", err)
	}
	if se.Status != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", se.Status)
	}
}

func TestCancel_DecodesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(domain.CancelResult{SegmentsCancelled: 3, SegmentsFreed: 2})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	res, err := c.Cancel(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if res.SegmentsCancelled != 3 || res.SegmentsFreed != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestCall_AdmissionGateBoundsInFlight(t *testing.T) {
	var inFlight, peak int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		json.NewEncoder(w).Encode(confirmResponse{Updated: 1})
	}))
	defer srv.Close()

	c := New(Config{
		Region:         "test",
		BaseURL:        srv.URL,
		MaxInFlight:    2,
		MaxRetries:     1,
		RequestTimeout: 2 * time.Second,
		InitialBackoff: time.Millisecond,
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Confirm(context.Background(), uuid.New()); err != nil {
				t.Errorf("confirm: %v", err)
			}
		}()
	}
	wg.Wait()

	if p := atomic.LoadInt32(&peak); p > 2 {
		t.Errorf("admission gate exceeded: peak in-flight %d", p)
	}
}

func TestCall_ContextCancellationStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := testClient(srv.URL)
	if _, err := c.Confirm(ctx, uuid.New()); err == nil {
		t.Fatal("expected error with cancelled context")
	}
}
