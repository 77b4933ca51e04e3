// Package regionclient is the coordinator's HTTP client for Regional
// Reservation Services. Every call is bounded by a per-region admission
// gate and a per-attempt deadline, and transient failures are retried
// with exponential backoff; client errors are not, they indicate the
// request itself is invalid.
package regionclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/velykodnyi/corridor/internal/domain"
	"golang.org/x/sync/semaphore"
)

// Rejection codes reported by the regional API.
const (
	CodeAtCapacity      = "at_capacity"
	CodeNoSegments      = "no_segments_found"
	CodeSegmentMissing  = "segment_missing"
	CodeLedgerInvariant = "ledger_invariant"
)

// StatusError is a non-retryable HTTP outcome (4xx) from a region.
type StatusError struct {
	Status int
	Code   string
	Msg    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("region returned %d (%s): %s", e.Status, e.Code, e.Msg)
}

type Config struct {
	Region         string
	BaseURL        string
	MaxInFlight    int64
	MaxRetries     uint64
	RequestTimeout time.Duration
	InitialBackoff time.Duration
}

type Client struct {
	region  string
	baseURL string
	httpc   *http.Client
	gate    *semaphore.Weighted
	cfg     Config
}

func New(cfg Config) *Client {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 8
	}

	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}

	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}

	return &Client{
		region:  cfg.Region,
		baseURL: cfg.BaseURL,
		httpc:   &http.Client{},
		gate:    semaphore.NewWeighted(cfg.MaxInFlight),
		cfg:     cfg,
	}
}

func (c *Client) Region() string { return c.region }

type processRequest struct {
	BookingID   string       `json:"booking_id"`
	Coordinates [][2]float64 `json:"coordinates"`
}

type processResponse struct {
	Status     string   `json:"status"`
	SegmentIDs []string `json:"segment_ids"`
}

type confirmResponse struct {
	Updated int64 `json:"updated"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ProcessAndReserve asks the region to match the coordinate run to
// segments and reserve them atomically. A capacity or no-segments
// rejection is returned as a settled outcome with a nil error.
func (c *Client) ProcessAndReserve(ctx context.Context, bookingID uuid.UUID, coords []domain.Coordinate) (domain.ReserveOutcome, error) {
	const op = "regionclient.ProcessAndReserve"

	req := processRequest{BookingID: bookingID.String()}
	req.Coordinates = make([][2]float64, len(coords))
	for i, p := range coords {
		req.Coordinates[i] = [2]float64{p.Lat, p.Lon}
	}

	var resp processResponse
	err := c.call(ctx, http.MethodPost, "/segments/process", req, &resp)
	if err == nil {
		return domain.ReserveOutcome{Reserved: true, SegmentIDs: resp.SegmentIDs}, nil
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case CodeAtCapacity, CodeNoSegments, CodeSegmentMissing:
			return domain.ReserveOutcome{Reserved: false, Reason: se.Code}, nil
		}
	}

	return domain.ReserveOutcome{}, fmt.Errorf("%s:%w", op, err)
}

// Confirm is idempotent on the region side; retrying a timed-out
// confirm is safe.
func (c *Client) Confirm(ctx context.Context, bookingID uuid.UUID) (int64, error) {
	const op = "regionclient.Confirm"

	var resp confirmResponse
	if err := c.call(ctx, http.MethodPost, "/bookings/"+bookingID.String()+"/confirm", nil, &resp); err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return resp.Updated, nil
}

// Cancel is idempotent on the region side; retrying a timed-out cancel
// never double-frees load.
func (c *Client) Cancel(ctx context.Context, bookingID uuid.UUID) (domain.CancelResult, error) {
	const op = "regionclient.Cancel"

	var resp domain.CancelResult
	if err := c.call(ctx, http.MethodPost, "/bookings/"+bookingID.String()+"/cancel", nil, &resp); err != nil {
		return domain.CancelResult{}, fmt.Errorf("%s:%w", op, err)
	}

	return resp, nil
}

func (c *Client) Segments(ctx context.Context, bookingID uuid.UUID) ([]domain.ReservedSegment, error) {
	const op = "regionclient.Segments"

	var resp []domain.ReservedSegment
	if err := c.call(ctx, http.MethodGet, "/bookings/"+bookingID.String()+"/segments", nil, &resp); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return resp, nil
}

// call acquires the region's admission gate for the duration of the
// exchange, then runs the attempt loop: connection errors and 5xx are
// retried with exponential backoff up to the configured ceiling, 4xx
// surface immediately as *StatusError.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.gate.Release(1)

	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return err
		}
	}

	attempt := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(attemptCtx, method, c.baseURL+path, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			// connection failure or per-attempt deadline: transient
			return err
		}

		defer resp.Body.Close()

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("region %s: status %d", c.region, resp.StatusCode)
		case resp.StatusCode >= 400:
			var er errorResponse
			_ = json.Unmarshal(payload, &er)
			return backoff.Permanent(&StatusError{
				Status: resp.StatusCode,
				Code:   er.Code,
				Msg:    er.Error,
			})
		}

		if out != nil && len(payload) > 0 {
			if err := json.Unmarshal(payload, out); err != nil {
				return backoff.Permanent(err)
			}
		}

		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialBackoff

	return backoff.Retry(attempt, backoff.WithContext(
		backoff.WithMaxRetries(bo, c.cfg.MaxRetries), ctx,
	))
}
