// Package region implements the Regional Reservation Service: the
// owner of one region's segment ledger and the atomic
// check-and-reserve / confirm / cancel state machine over it.
package region

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/velykodnyi/corridor/internal/domain"
	"github.com/velykodnyi/corridor/internal/repository"
	postgresrepo "github.com/velykodnyi/corridor/internal/repository/postgres"
	"github.com/velykodnyi/corridor/internal/uow"
)

// reserveTxAttempts bounds restarts of the reserve transaction after
// serialization failures under the Serializable isolation level.
const reserveTxAttempts = 3

// Matcher is the spatial-matching collaborator: it maps a coordinate
// run to the ordered segment IDs it intersects.
type Matcher interface {
	MatchSegments(ctx context.Context, coords []domain.Coordinate) ([]string, error)
}

type Service struct {
	name    string
	store   *postgresrepo.Store
	matcher Matcher
	uow     *uow.UoW
	logger  *slog.Logger
}

func New(name string, store *postgresrepo.Store, matcher Matcher, logger *slog.Logger) *Service {
	return &Service{
		name:    name,
		store:   store,
		matcher: matcher,
		uow:     uow.NewUoW(store),
		logger:  logger,
	}
}

func (s *Service) Name() string { return s.name }

// MatchSegments delegates to the spatial matcher.
//
// Returns:
//   - error: region.ErrNoSegmentsFound if the run intersects nothing in
//     this region's inventory.
func (s *Service) MatchSegments(ctx context.Context, coords []domain.Coordinate) ([]string, error) {
	const op = "service.region.MatchSegments"

	segmentIDs, err := s.matcher.MatchSegments(ctx, coords)
	if err != nil {
		if errors.Is(err, repository.ErrNoSegmentsFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrNoSegmentsFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return segmentIDs, nil
}

// CheckCapacity is the non-binding pre-flight. Reserve re-checks under
// its own locks, so a positive report here guarantees nothing.
func (s *Service) CheckCapacity(ctx context.Context, segmentIDs []string) (domain.CapacityReport, error) {
	const op = "service.region.CheckCapacity"

	report, err := s.store.Ledger().CheckCapacity(ctx, segmentIDs)
	if err != nil {
		return domain.CapacityReport{}, fmt.Errorf("%s:%w", op, err)
	}

	return report, nil
}

// Reserve claims every named segment for the booking within one
// serializable unit of work, or none of them. A capacity rejection
// additionally writes failed-status audit rows in a follow-up unit of
// work, since the reserving transaction itself was rolled back.
//
// Returns:
//   - error: region.ErrCapacityExceeded if any segment was full.
//   - error: region.ErrSegmentMissing if any ID is unknown here.
//   - error: region.ErrLedgerInvariant on an out-of-range load; this is
//     a regional bug and is logged loudly, never silently corrected.
func (s *Service) Reserve(ctx context.Context, bookingID uuid.UUID, segmentIDs []string) error {
	const op = "service.region.Reserve"

	if len(segmentIDs) == 0 {
		return fmt.Errorf("%s: no segments to reserve", op)
	}

	var err error
	for attempt := 0; attempt < reserveTxAttempts; attempt++ {
		err = s.uow.Do(ctx, func(
			ctx context.Context,
			tx postgresrepo.DB,
			after func(uow.AfterCommit),
		) error {
			if err := s.store.Ledger().With(tx).Reserve(ctx, bookingID, segmentIDs); err != nil {
				return err
			}

			after(func(ctx context.Context) {
				s.logger.Info("segments reserved",
					"region", s.name,
					"booking_id", bookingID,
					"segments", len(segmentIDs),
				)
			})

			return nil
		})
		if err == nil {
			return nil
		}

		// Serialization failures and deadlocks restart as a fresh
		// transaction; everything else settles immediately.
		if !postgresrepo.IsRetryable(err) {
			break
		}
	}

	switch {
	case errors.Is(err, repository.ErrCapacityExhausted):
		s.recordFailed(ctx, bookingID, segmentIDs)
		return fmt.Errorf("%s:%w", op, ErrCapacityExceeded)
	case errors.Is(err, repository.ErrSegmentMissing):
		s.recordFailed(ctx, bookingID, segmentIDs)
		return fmt.Errorf("%s:%w", op, ErrSegmentMissing)
	case errors.Is(err, repository.ErrLedgerInvariant):
		s.logger.Error("ledger invariant violated",
			"region", s.name,
			"booking_id", bookingID,
			"error", err,
		)
		return fmt.Errorf("%s:%w", op, ErrLedgerInvariant)
	}

	return fmt.Errorf("%s:%w", op, err)
}

// ProcessAndReserve is the combined match-then-reserve path the
// coordinator uses: one call per coordinate run.
func (s *Service) ProcessAndReserve(ctx context.Context, bookingID uuid.UUID, coords []domain.Coordinate) ([]string, error) {
	const op = "service.region.ProcessAndReserve"

	segmentIDs, err := s.MatchSegments(ctx, coords)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if err := s.Reserve(ctx, bookingID, segmentIDs); err != nil {
		return segmentIDs, fmt.Errorf("%s:%w", op, err)
	}

	return segmentIDs, nil
}

// Confirm transitions the booking's waiting reservations to success.
// Idempotent: a repeat call updates zero rows.
func (s *Service) Confirm(ctx context.Context, bookingID uuid.UUID) (int64, error) {
	const op = "service.region.Confirm"

	updated, err := s.store.Ledger().Confirm(ctx, bookingID)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return updated, nil
}

// Cancel releases the booking's live load. Idempotent: a second call
// finds no eligible reservations and frees nothing.
func (s *Service) Cancel(ctx context.Context, bookingID uuid.UUID) (domain.CancelResult, error) {
	const op = "service.region.Cancel"

	res, err := s.store.Ledger().Cancel(ctx, bookingID)
	if err != nil {
		return domain.CancelResult{}, fmt.Errorf("%s:%w", op, err)
	}

	if res.SegmentsFreed > 0 {
		s.logger.Info("booking load released",
			"region", s.name,
			"booking_id", bookingID,
			"segments_freed", res.SegmentsFreed,
		)
	}

	return res, nil
}

// Segments returns the booking's reservations joined with segment
// detail, ordered by position along the route.
func (s *Service) Segments(ctx context.Context, bookingID uuid.UUID) ([]domain.ReservedSegment, error) {
	const op = "service.region.Segments"

	out, err := s.store.Ledger().Segments(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// recordFailed is best-effort: losing the audit rows must not mask the
// rejection itself.
func (s *Service) recordFailed(ctx context.Context, bookingID uuid.UUID, segmentIDs []string) {
	if err := s.store.Ledger().RecordFailed(ctx, bookingID, segmentIDs); err != nil {
		s.logger.Warn("failed to record rejected batch",
			"region", s.name,
			"booking_id", bookingID,
			"error", err,
		)
	}
}
