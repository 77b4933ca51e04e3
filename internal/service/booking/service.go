// Package booking implements the central coordinator: it decomposes a
// routed trip into per-region coordinate runs and drives the
// reserve / confirm-or-cancel protocol against every involved region,
// committing the reservation everywhere or rolling it back everywhere.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/velykodnyi/corridor/internal/domain"
	"github.com/velykodnyi/corridor/internal/regionmap"
	"github.com/velykodnyi/corridor/internal/repository"
	"github.com/velykodnyi/corridor/internal/routing"
	"golang.org/x/sync/errgroup"
)

// Per-run and per-region outcome states reported to the caller.
const (
	OutcomeReserved      = "reserved"
	OutcomeRejected      = "rejected"
	OutcomeUnavailable   = "unavailable"
	OutcomeConfirmed     = "confirmed"
	OutcomeConfirmFailed = "confirm_failed"
	OutcomeCancelled     = "cancelled"
	OutcomeCancelFailed  = "cancel_failed"
)

// RegionClient is the network contract of a Regional Reservation
// Service, as the coordinator consumes it. Implementations own their
// deadline, retry, and admission-gate policy.
type RegionClient interface {
	ProcessAndReserve(ctx context.Context, bookingID uuid.UUID, coords []domain.Coordinate) (domain.ReserveOutcome, error)
	Confirm(ctx context.Context, bookingID uuid.UUID) (int64, error)
	Cancel(ctx context.Context, bookingID uuid.UUID) (domain.CancelResult, error)
	Segments(ctx context.Context, bookingID uuid.UUID) ([]domain.ReservedSegment, error)
}

// Records is the booking record store.
type Records interface {
	Create(ctx context.Context, b *domain.Booking) error
	Finalize(ctx context.Context, id uuid.UUID, status domain.BookingStatus) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
}

// Notifier broadcasts terminal booking status transitions. Optional.
type Notifier interface {
	PublishBookingChanged(ctx context.Context, bookingID, status string) error
}

// RunOutcome is the settled result of one coordinate run's reservation
// attempt, part of the per-region breakdown returned to the caller.
type RunOutcome struct {
	Run        int      `json:"run"`
	Region     string   `json:"region"`
	Status     string   `json:"status"`
	Reason     string   `json:"reason,omitempty"`
	SegmentIDs []string `json:"segment_ids,omitempty"`
}

// Result is what a submit-booking call returns: the terminal status
// plus enough per-region detail to see exactly what happened where.
type Result struct {
	BookingID         uuid.UUID             `json:"booking_id"`
	Status            domain.BookingStatus  `json:"status"`
	NoRegionsInvolved bool                  `json:"no_regions_involved,omitempty"`
	InvolvedRegions   []string              `json:"involved_regions"`
	Runs              []RunOutcome          `json:"runs,omitempty"`
	Broadcast         []RunOutcome          `json:"broadcast,omitempty"`
}

type Service struct {
	routes  routing.Source
	regions *regionmap.Table
	clients map[string]RegionClient
	records Records
	events  Notifier
	logger  *slog.Logger
}

func New(
	routes routing.Source,
	regions *regionmap.Table,
	clients map[string]RegionClient,
	records Records,
	events Notifier,
	logger *slog.Logger,
) *Service {
	return &Service{
		routes:  routes,
		regions: regions,
		clients: clients,
		records: records,
		events:  events,
		logger:  logger,
	}
}

// Book runs one trip request end to end: fetch the route, split it into
// per-region runs, reserve in every involved region concurrently, then
// confirm everywhere or cancel everywhere. Every regional outcome is
// awaited before the confirm-vs-cancel decision; a booking is never
// reported failed while live reservations remain behind.
//
// Returns:
//   - error: booking.ErrRouteNotFound if no path exists between the
//     endpoints; no regional calls are issued in that case.
func (s *Service) Book(ctx context.Context, origin, destination domain.Coordinate) (*Result, error) {
	const op = "service.booking.Book"

	path, err := s.routes.GetRoute(ctx, origin, destination)
	if err != nil {
		if errors.Is(err, routing.ErrRouteNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrRouteNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	bookingID := uuid.New()
	runs := s.regions.SplitPath(path)
	involved := regionmap.Regions(runs)

	record := &domain.Booking{
		ID:              bookingID,
		StartLocation:   origin.String(),
		EndLocation:     destination.String(),
		InvolvedRegions: involved,
		Status:          domain.BookingPending,
	}

	// A route touching no configured region is a deliberate, observable
	// degenerate success: nothing to reserve, nothing to contact.
	if len(runs) == 0 {
		record.Status = domain.BookingSuccess
		if err := s.records.Create(ctx, record); err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}

		s.logger.Info("booking involved no regions", "booking_id", bookingID)

		return &Result{
			BookingID:         bookingID,
			Status:            domain.BookingSuccess,
			NoRegionsInvolved: true,
		}, nil
	}

	if err := s.records.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	outcomes := s.reserveAll(ctx, bookingID, runs)

	allReserved := true
	for _, o := range outcomes {
		if o.Status != OutcomeReserved {
			allReserved = false
			break
		}
	}

	var broadcast []RunOutcome
	status := domain.BookingFailure

	if allReserved {
		broadcast = s.confirmAll(ctx, bookingID, involved)
		status = domain.BookingSuccess
		for _, b := range broadcast {
			if b.Status != OutcomeConfirmed {
				status = domain.BookingFailure
				break
			}
		}

		// A region whose confirm never settled still holds live load;
		// release everything rather than leave the booking half-made.
		if status == domain.BookingFailure {
			broadcast = append(broadcast, s.cancelAll(ctx, bookingID, involved)...)
		}
	} else {
		// Cancel everywhere that was asked to reserve, not only the
		// failed region: a region that reported success holds live load
		// that must be released.
		broadcast = s.cancelAll(ctx, bookingID, involved)
	}

	s.finalize(ctx, bookingID, status)

	return &Result{
		BookingID:       bookingID,
		Status:          status,
		InvolvedRegions: involved,
		Runs:            outcomes,
		Broadcast:       broadcast,
	}, nil
}

// Cancel releases a booking's reservations in every involved region and
// marks the record cancelled. Safe to repeat.
func (s *Service) Cancel(ctx context.Context, bookingID uuid.UUID) (*Result, error) {
	const op = "service.booking.Cancel"

	record, err := s.records.Get(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrBookingNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	broadcast := s.cancelAll(ctx, bookingID, record.InvolvedRegions)
	s.finalize(ctx, bookingID, domain.BookingCancelled)

	return &Result{
		BookingID:       bookingID,
		Status:          domain.BookingCancelled,
		InvolvedRegions: record.InvolvedRegions,
		Broadcast:       broadcast,
	}, nil
}

// Get returns the persisted booking record.
func (s *Service) Get(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	const op = "service.booking.Get"

	b, err := s.records.Get(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrBookingNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return b, nil
}

// Segments gathers the booking's reservation detail from every involved
// region, keyed by region name.
func (s *Service) Segments(ctx context.Context, bookingID uuid.UUID) (map[string][]domain.ReservedSegment, error) {
	const op = "service.booking.Segments"

	record, err := s.records.Get(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrBookingNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	out := make(map[string][]domain.ReservedSegment, len(record.InvolvedRegions))
	for _, region := range record.InvolvedRegions {
		client, ok := s.clients[region]
		if !ok {
			continue
		}

		segs, err := client.Segments(ctx, bookingID)
		if err != nil {
			return nil, fmt.Errorf("%s: region %s: %w", op, region, err)
		}

		out[region] = segs
	}

	return out, nil
}

// reserveAll fans the runs out concurrently and always awaits every
// outcome. Failures are settled into the outcome slice, never returned
// as errors: the confirm-vs-cancel decision needs the full picture.
func (s *Service) reserveAll(ctx context.Context, bookingID uuid.UUID, runs []domain.Run) []RunOutcome {
	outcomes := make([]RunOutcome, len(runs))

	var g errgroup.Group
	for i, run := range runs {
		i, run := i, run
		g.Go(func() error {
			out := RunOutcome{Run: run.ID, Region: run.Region}

			client, ok := s.clients[run.Region]
			if !ok {
				out.Status = OutcomeUnavailable
				out.Reason = "no client configured for region"
				outcomes[i] = out
				return nil
			}

			res, err := client.ProcessAndReserve(ctx, bookingID, run.Coordinates)
			switch {
			case err != nil:
				out.Status = OutcomeUnavailable
				out.Reason = err.Error()
				s.logger.Warn("region reserve unavailable",
					"booking_id", bookingID,
					"region", run.Region,
					"error", err,
				)
			case !res.Reserved:
				out.Status = OutcomeRejected
				out.Reason = res.Reason
			default:
				out.Status = OutcomeReserved
				out.SegmentIDs = res.SegmentIDs
			}

			outcomes[i] = out
			return nil
		})
	}

	_ = g.Wait()

	return outcomes
}

func (s *Service) confirmAll(ctx context.Context, bookingID uuid.UUID, regions []string) []RunOutcome {
	outcomes := make([]RunOutcome, len(regions))

	var g errgroup.Group
	for i, region := range regions {
		i, region := i, region
		g.Go(func() error {
			out := RunOutcome{Region: region, Status: OutcomeConfirmed}

			client, ok := s.clients[region]
			if !ok {
				out.Status = OutcomeConfirmFailed
				out.Reason = "no client configured for region"
				outcomes[i] = out
				return nil
			}

			if _, err := client.Confirm(ctx, bookingID); err != nil {
				out.Status = OutcomeConfirmFailed
				out.Reason = err.Error()
				s.logger.Error("confirm failed",
					"booking_id", bookingID,
					"region", region,
					"error", err,
				)
			}

			outcomes[i] = out
			return nil
		})
	}

	_ = g.Wait()

	return outcomes
}

func (s *Service) cancelAll(ctx context.Context, bookingID uuid.UUID, regions []string) []RunOutcome {
	outcomes := make([]RunOutcome, len(regions))

	var g errgroup.Group
	for i, region := range regions {
		i, region := i, region
		g.Go(func() error {
			out := RunOutcome{Region: region, Status: OutcomeCancelled}

			client, ok := s.clients[region]
			if !ok {
				out.Status = OutcomeCancelFailed
				out.Reason = "no client configured for region"
				outcomes[i] = out
				return nil
			}

			res, err := client.Cancel(ctx, bookingID)
			if err != nil {
				out.Status = OutcomeCancelFailed
				out.Reason = err.Error()
				s.logger.Error("cancel failed",
					"booking_id", bookingID,
					"region", region,
					"error", err,
				)
			} else if res.SegmentsFreed > 0 {
				s.logger.Info("booking compensated",
					"booking_id", bookingID,
					"region", region,
					"segments_freed", res.SegmentsFreed,
				)
			}

			outcomes[i] = out
			return nil
		})
	}

	_ = g.Wait()

	return outcomes
}

// finalize persists the terminal status and notifies listeners. Record
// durability is best-effort: confirm/cancel broadcasts have already
// settled by the time this runs.
func (s *Service) finalize(ctx context.Context, bookingID uuid.UUID, status domain.BookingStatus) {
	if err := s.records.Finalize(ctx, bookingID, status); err != nil {
		s.logger.Error("failed to finalize booking record",
			"booking_id", bookingID,
			"status", status,
			"error", err,
		)
	}

	if s.events != nil {
		if err := s.events.PublishBookingChanged(ctx, bookingID.String(), string(status)); err != nil {
			s.logger.Warn("failed to publish booking change",
				"booking_id", bookingID,
				"error", err,
			)
		}
	}
}
