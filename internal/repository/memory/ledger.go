// Package memory holds mutex-guarded in-memory counterparts of the
// Postgres repositories. They implement the same contracts and are used
// by tests that exercise reservation semantics without a database.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/velykodnyi/corridor/internal/domain"
	"github.com/velykodnyi/corridor/internal/repository"
)

// Ledger is an in-memory segment capacity ledger. The single mutex
// serializes check-and-increment the way the Postgres ledger's row
// locks do, so the same invariants hold under concurrent use.
type Ledger struct {
	mu           sync.Mutex
	segments     map[string]*domain.Segment
	reservations map[uuid.UUID][]*domain.Reservation
}

func NewLedger() *Ledger {
	return &Ledger{
		segments:     make(map[string]*domain.Segment),
		reservations: make(map[uuid.UUID][]*domain.Reservation),
	}
}

// Seed installs a segment with the given capacity and zero load.
func (l *Ledger) Seed(segmentID string, capacity int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.segments[segmentID] = &domain.Segment{
		SegmentID: segmentID,
		Capacity:  capacity,
	}
}

// Load reports a segment's current load, for assertions.
func (l *Ledger) Load(segmentID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.segments[segmentID]
	if !ok {
		return 0
	}
	return s.CurrentLoad
}

// Reserve mirrors the Postgres ledger: verify every segment has free
// capacity, then increment every load and record waiting reservations,
// all under one critical section so the batch is all-or-nothing. A
// batch naming the same segment twice is rejected with ErrConflict,
// the same outcome the (booking_id, segment_id) key produces in
// Postgres; letting both occurrences through would double-increment
// past a capacity check that each saw individually.
func (l *Ledger) Reserve(ctx context.Context, bookingID uuid.UUID, segmentIDs []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	batch := make(map[string]struct{}, len(segmentIDs))
	for _, id := range segmentIDs {
		if _, dup := batch[id]; dup {
			return fmt.Errorf("segment %s repeated in batch: %w", id, repository.ErrConflict)
		}
		batch[id] = struct{}{}

		s, ok := l.segments[id]
		if !ok {
			return fmt.Errorf("segment %s: %w", id, repository.ErrSegmentMissing)
		}

		if s.CurrentLoad < 0 || s.CurrentLoad > s.Capacity {
			return fmt.Errorf("segment %s load %d cap %d: %w",
				id, s.CurrentLoad, s.Capacity, repository.ErrLedgerInvariant)
		}

		if s.CurrentLoad >= s.Capacity {
			return fmt.Errorf("segment %s: %w", id, repository.ErrCapacityExhausted)
		}
	}

	for i, id := range segmentIDs {
		l.segments[id].CurrentLoad++
		l.reservations[bookingID] = append(l.reservations[bookingID], &domain.Reservation{
			BookingID: bookingID,
			SegmentID: id,
			Order:     i,
			Status:    domain.ReservationWaiting,
		})
	}

	return nil
}

// RecordFailed writes failed-status rows for auditability without
// touching segment loads.
func (l *Ledger) RecordFailed(ctx context.Context, bookingID uuid.UUID, segmentIDs []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing := make(map[string]struct{})
	for _, r := range l.reservations[bookingID] {
		existing[r.SegmentID] = struct{}{}
	}

	for i, id := range segmentIDs {
		if _, ok := existing[id]; ok {
			continue
		}
		l.reservations[bookingID] = append(l.reservations[bookingID], &domain.Reservation{
			BookingID: bookingID,
			SegmentID: id,
			Order:     i,
			Status:    domain.ReservationFailed,
		})
	}

	return nil
}

func (l *Ledger) Confirm(ctx context.Context, bookingID uuid.UUID) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var updated int64
	for _, r := range l.reservations[bookingID] {
		if r.Status == domain.ReservationWaiting {
			r.Status = domain.ReservationSuccess
			updated++
		}
	}

	return updated, nil
}

func (l *Ledger) Cancel(ctx context.Context, bookingID uuid.UUID) (domain.CancelResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var res domain.CancelResult
	for _, r := range l.reservations[bookingID] {
		if r.Status != domain.ReservationWaiting && r.Status != domain.ReservationSuccess {
			continue
		}

		if s, ok := l.segments[r.SegmentID]; ok && s.CurrentLoad > 0 {
			s.CurrentLoad--
			res.SegmentsFreed++
		}

		r.Status = domain.ReservationCancelled
		res.SegmentsCancelled++
	}

	return res, nil
}

func (l *Ledger) CheckCapacity(ctx context.Context, segmentIDs []string) (domain.CapacityReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, id := range segmentIDs {
		s, ok := l.segments[id]
		if !ok {
			return domain.CapacityReport{Status: domain.CapacityMissing, SegmentID: id}, nil
		}
		if s.CurrentLoad >= s.Capacity {
			return domain.CapacityReport{Status: domain.CapacityAtLimit, SegmentID: id}, nil
		}
	}

	return domain.CapacityReport{Status: domain.CapacityOK}, nil
}

func (l *Ledger) Segments(ctx context.Context, bookingID uuid.UUID) ([]domain.ReservedSegment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []domain.ReservedSegment
	for _, r := range l.reservations[bookingID] {
		rs := domain.ReservedSegment{Reservation: *r}
		if s, ok := l.segments[r.SegmentID]; ok {
			rs.Capacity = s.Capacity
			rs.CurrentLoad = s.CurrentLoad
		}
		out = append(out, rs)
	}

	return out, nil
}
