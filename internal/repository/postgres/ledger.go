package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/velykodnyi/corridor/internal/domain"
	"github.com/velykodnyi/corridor/internal/repository"
)

// LedgerRepo owns the region's segment capacity ledger: road_segments
// rows carry capacity/current_load, booking_segments rows carry the
// per-booking reservation lifecycle.
type LedgerRepo struct {
	store *Store
	db    DB
}

func NewLedgerRepo(store *Store) *LedgerRepo {
	return &LedgerRepo{store: store}
}

func (r *LedgerRepo) With(db DB) *LedgerRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *LedgerRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.store.pool
}

// Reserve claims one load unit on every named segment for bookingID, or
// nothing at all. Segment rows are locked in sorted segment_id order so
// concurrent batches over overlapping segment sets cannot deadlock, and
// capacity is re-verified under those locks: any earlier check is
// advisory only.
//
// Returns:
//   - error: repository.ErrSegmentMissing if an ID resolves to no segment.
//   - error: repository.ErrCapacityExhausted if any segment is full.
//   - error: repository.ErrLedgerInvariant if a load outside [0, capacity]
//     is observed; this indicates a regional bug, not a caller mistake.
func (r *LedgerRepo) Reserve(ctx context.Context, bookingID uuid.UUID, segmentIDs []string) error {
	const op = "postgres.LedgerRepo.Reserve"

	if r.db != nil {
		if err := r.reserveCore(ctx, r.db, bookingID, segmentIDs); err != nil {
			return fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		return nil
	}

	tx, err := r.store.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer tx.Rollback(ctx)

	if err := r.reserveCore(ctx, tx, bookingID, segmentIDs); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (r *LedgerRepo) reserveCore(ctx context.Context, db DB, bookingID uuid.UUID, segmentIDs []string) error {
	locked := make([]string, len(segmentIDs))
	copy(locked, segmentIDs)
	sort.Strings(locked)

	rows, err := db.Query(ctx,
		`SELECT segment_id, capacity, current_load
       	 FROM road_segments
      	 WHERE segment_id = ANY($1)
      	 ORDER BY segment_id
        	FOR UPDATE`,
		locked,
	)
	if err != nil {
		return err
	}

	defer rows.Close()

	seen := make(map[string]domain.Segment, len(locked))
	for rows.Next() {
		var s domain.Segment
		if err := rows.Scan(&s.SegmentID, &s.Capacity, &s.CurrentLoad); err != nil {
			return err
		}
		seen[s.SegmentID] = s
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range locked {
		s, ok := seen[id]
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

	if _, err := db.Exec(ctx,
		`UPDATE road_segments
        	SET current_load = current_load + 1
      	 WHERE segment_id = ANY($1)`,
		locked,
	); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i, id := range segmentIDs {
		batch.Queue(
			`INSERT INTO booking_segments(booking_id, segment_id, segment_order, status)
         	 VALUES ($1, $2, $3, $4)`,
			bookingID, id, i, domain.ReservationWaiting,
		)
	}
	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}

	return nil
}

// RecordFailed writes failed-status reservation rows for the whole
// batch, for auditability of rejected bookings. It runs outside the
// aborted reserve transaction and never touches segment loads.
func (r *LedgerRepo) RecordFailed(ctx context.Context, bookingID uuid.UUID, segmentIDs []string) error {
	const op = "postgres.LedgerRepo.RecordFailed"

	db := r.handle()

	batch := &pgx.Batch{}
	for i, id := range segmentIDs {
		batch.Queue(
			`INSERT INTO booking_segments(booking_id, segment_id, segment_order, status)
         	 VALUES ($1, $2, $3, $4)
         	 ON CONFLICT (booking_id, segment_id) DO NOTHING`,
			bookingID, id, i, domain.ReservationFailed,
		)
	}
	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// Confirm bulk-transitions every waiting reservation of the booking to
// success. Idempotent: a repeat call finds nothing waiting and returns
// zero.
func (r *LedgerRepo) Confirm(ctx context.Context, bookingID uuid.UUID) (int64, error) {
	const op = "postgres.LedgerRepo.Confirm"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE booking_segments
        	SET status = $2
      	 WHERE booking_id = $1 AND status = $3`,
		bookingID, domain.ReservationSuccess, domain.ReservationWaiting,
	)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return tag.RowsAffected(), nil
}

// Cancel releases the booking's live load: every waiting or success
// reservation moves to cancelled and its segment's load is decremented,
// floored at zero. failed and cancelled rows are left untouched, so a
// second call frees nothing and never double-decrements.
func (r *LedgerRepo) Cancel(ctx context.Context, bookingID uuid.UUID) (domain.CancelResult, error) {
	const op = "postgres.LedgerRepo.Cancel"

	if r.db != nil {
		res, err := r.cancelCore(ctx, r.db, bookingID)
		if err != nil {
			return domain.CancelResult{}, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		return res, nil
	}

	tx, err := r.store.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return domain.CancelResult{}, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer tx.Rollback(ctx)

	res, err := r.cancelCore(ctx, tx, bookingID)
	if err != nil {
		return domain.CancelResult{}, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.CancelResult{}, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return res, nil
}

func (r *LedgerRepo) cancelCore(ctx context.Context, db DB, bookingID uuid.UUID) (domain.CancelResult, error) {
	rows, err := db.Query(ctx,
		`SELECT segment_id
       	 FROM booking_segments
      	 WHERE booking_id = $1 AND status = ANY($2)
      	 ORDER BY segment_id`,
		bookingID, []string{string(domain.ReservationWaiting), string(domain.ReservationSuccess)},
	)
	if err != nil {
		return domain.CancelResult{}, err
	}

	defer rows.Close()

	var segmentIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return domain.CancelResult{}, err
		}
		segmentIDs = append(segmentIDs, id)
	}
	if err := rows.Err(); err != nil {
		return domain.CancelResult{}, err
	}

	if len(segmentIDs) == 0 {
		return domain.CancelResult{}, nil
	}

	// Same lock order as Reserve.
	lockRows, err := db.Query(ctx,
		`SELECT segment_id FROM road_segments
      	 WHERE segment_id = ANY($1)
      	 ORDER BY segment_id
        	FOR UPDATE`,
		segmentIDs,
	)
	if err != nil {
		return domain.CancelResult{}, err
	}
	lockRows.Close()
	if err := lockRows.Err(); err != nil {
		return domain.CancelResult{}, err
	}

	freedTag, err := db.Exec(ctx,
		`UPDATE road_segments
        	SET current_load = current_load - 1
      	 WHERE segment_id = ANY($1) AND current_load > 0`,
		segmentIDs,
	)
	if err != nil {
		return domain.CancelResult{}, err
	}

	cancelledTag, err := db.Exec(ctx,
		`UPDATE booking_segments
        	SET status = $2
      	 WHERE booking_id = $1 AND status = ANY($3)`,
		bookingID, domain.ReservationCancelled,
		[]string{string(domain.ReservationWaiting), string(domain.ReservationSuccess)},
	)
	if err != nil {
		return domain.CancelResult{}, err
	}

	return domain.CancelResult{
		SegmentsCancelled: cancelledTag.RowsAffected(),
		SegmentsFreed:     freedTag.RowsAffected(),
	}, nil
}

// CheckCapacity is a read-only batch pre-flight: every ID must resolve
// to an existing segment with free capacity. The report names the first
// offending segment in request order.
func (r *LedgerRepo) CheckCapacity(ctx context.Context, segmentIDs []string) (domain.CapacityReport, error) {
	const op = "postgres.LedgerRepo.CheckCapacity"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT segment_id, capacity, current_load
       	 FROM road_segments
      	 WHERE segment_id = ANY($1)`,
		segmentIDs,
	)
	if err != nil {
		return domain.CapacityReport{}, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	seen := make(map[string]domain.Segment, len(segmentIDs))
	for rows.Next() {
		var s domain.Segment
		if err := rows.Scan(&s.SegmentID, &s.Capacity, &s.CurrentLoad); err != nil {
			return domain.CapacityReport{}, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		seen[s.SegmentID] = s
	}
	if err := rows.Err(); err != nil {
		return domain.CapacityReport{}, fmt.Errorf("%s:%w", op, err)
	}

	for _, id := range segmentIDs {
		s, ok := seen[id]
		if !ok {
			return domain.CapacityReport{Status: domain.CapacityMissing, SegmentID: id}, nil
		}
		if s.CurrentLoad >= s.Capacity {
			return domain.CapacityReport{Status: domain.CapacityAtLimit, SegmentID: id}, nil
		}
	}

	return domain.CapacityReport{Status: domain.CapacityOK}, nil
}

// Segments returns the booking's reservations joined with segment
// capacity, ordered by position along the route.
func (r *LedgerRepo) Segments(ctx context.Context, bookingID uuid.UUID) ([]domain.ReservedSegment, error) {
	const op = "postgres.LedgerRepo.Segments"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT bs.booking_id, bs.segment_id, bs.segment_order, bs.status,
            rs.capacity, rs.current_load
       	 FROM booking_segments bs
       	 JOIN road_segments rs ON rs.segment_id = bs.segment_id
      	 WHERE bs.booking_id = $1
      	 ORDER BY bs.segment_order`,
		bookingID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.ReservedSegment
	for rows.Next() {
		var rs domain.ReservedSegment
		if err := rows.Scan(
			&rs.BookingID, &rs.SegmentID, &rs.Order, &rs.Status,
			&rs.Capacity, &rs.CurrentLoad,
		); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}
