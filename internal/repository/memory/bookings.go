package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/velykodnyi/corridor/internal/domain"
	"github.com/velykodnyi/corridor/internal/repository"
)

// BookingStore is the in-memory counterpart of the Postgres booking
// record store.
type BookingStore struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*domain.Booking
}

func NewBookingStore() *BookingStore {
	return &BookingStore{bookings: make(map[uuid.UUID]*domain.Booking)}
}

func (s *BookingStore) Create(ctx context.Context, b *domain.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bookings[b.ID]; ok {
		return fmt.Errorf("booking %s: %w", b.ID, repository.ErrConflict)
	}

	cp := *b
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.bookings[b.ID] = &cp

	return nil
}

func (s *BookingStore) Finalize(ctx context.Context, id uuid.UUID, status domain.BookingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return fmt.Errorf("booking %s: %w", id, repository.ErrNotFound)
	}

	b.Status = status
	b.UpdatedAt = time.Now()

	return nil
}

func (s *BookingStore) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", id, repository.ErrNotFound)
	}

	cp := *b
	return &cp, nil
}
