package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/velykodnyi/corridor/internal/domain"
	"github.com/velykodnyi/corridor/internal/repository"
)

// BookingRepo is the coordinator's booking record store. One row per
// booking, written by the single orchestrator instance handling it.
type BookingRepo struct {
	store *Store
	db    DB
}

func NewBookingRepo(store *Store) *BookingRepo {
	return &BookingRepo{store: store}
}

func (r *BookingRepo) With(db DB) *BookingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *BookingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.store.pool
}

func (r *BookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	const op = "postgres.BookingRepo.Create"

	db := r.handle()

	if _, err := db.Exec(ctx,
		`INSERT INTO bookings(id, start_location, end_location, involved_regions, status)
       	 VALUES ($1, $2, $3, $4, $5)`,
		b.ID, b.StartLocation, b.EndLocation, b.InvolvedRegions, b.Status,
	); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (r *BookingRepo) Finalize(ctx context.Context, id uuid.UUID, status domain.BookingStatus) error {
	const op = "postgres.BookingRepo.Finalize"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE bookings
        	SET status = $2, updated_at = now()
      	 WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *BookingRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.Get"

	db := r.handle()

	var b domain.Booking
	err := db.QueryRow(ctx,
		`SELECT id, start_location, end_location, involved_regions, status, created_at, updated_at
       	 FROM bookings WHERE id = $1`,
		id,
	).Scan(&b.ID, &b.StartLocation, &b.EndLocation, &b.InvolvedRegions,
		&b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &b, nil
}
