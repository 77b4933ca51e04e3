package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/velykodnyi/corridor/internal/domain"
	"github.com/velykodnyi/corridor/internal/repository"
)

func TestLedger_Reserve_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	l.Seed("seg-a", 1)
	l.Seed("seg-b", 0) // already full

	err := l.Reserve(ctx, uuid.New(), []string{"seg-a", "seg-b"})
	if !errors.Is(err, repository.ErrCapacityExhausted) {
		t.Fatalf("expected ErrCapacityExhausted, got: %v", err)
	}

	// The free segment must not have been touched.
	if got := l.Load("seg-a"); got != 0 {
		t.Errorf("expected seg-a load 0 after rejected batch, got %d", got)
	}
}

func TestLedger_Reserve_MissingSegment(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	l.Seed("seg-a", 5)

	err := l.Reserve(ctx, uuid.New(), []string{"seg-a", "seg-ghost"})
	if !errors.Is(err, repository.ErrSegmentMissing) {
		t.Fatalf("expected ErrSegmentMissing, got: %v", err)
	}

	if got := l.Load("seg-a"); got != 0 {
		t.Errorf("expected seg-a load 0, got %d", got)
	}
}

func TestLedger_Reserve_DuplicateSegmentInBatch(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	l.Seed("seg-a", 1)

	// Each occurrence would pass the capacity check individually; the
	// batch as a whole must be rejected, never double-incremented.
	err := l.Reserve(ctx, uuid.New(), []string{"seg-a", "seg-a"})
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got: %v", err)
	}

	if got := l.Load("seg-a"); got != 0 {
		t.Errorf("expected load 0 after rejected batch, got %d", got)
	}
}

func TestLedger_Reserve_InvariantViolation(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	l.Seed("seg-a", 1)

	// Corrupt the ledger directly: a load outside [0, capacity] must
	// surface as ErrLedgerInvariant, never be silently corrected.
	l.segments["seg-a"].CurrentLoad = 5

	err := l.Reserve(ctx, uuid.New(), []string{"seg-a"})
	if !errors.Is(err, repository.ErrLedgerInvariant) {
		t.Fatalf("expected ErrLedgerInvariant, got: %v", err)
	}

	if got := l.Load("seg-a"); got != 5 {
		t.Errorf("expected corrupted load left untouched at 5, got %d", got)
	}
}

func TestLedger_Reserve_NoOversubscription(t *testing.T) {
	const (
		capacity = 10
		workers  = 100
	)

	ctx := context.Background()
	l := NewLedger()
	l.Seed("seg-a", capacity)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Reserve(ctx, uuid.New(), []string{"seg-a"}); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if accepted != capacity {
		t.Errorf("expected exactly %d accepted reservations, got %d", capacity, accepted)
	}

	if got := l.Load("seg-a"); got != capacity {
		t.Errorf("expected load %d, got %d", capacity, got)
	}
}

func TestLedger_LastSlotRace(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	l.Seed("seg-a", 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = l.Reserve(ctx, uuid.New(), []string{"seg-a"})
		}(i)
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, repository.ErrCapacityExhausted):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if ok != 1 || rejected != 1 {
		t.Errorf("expected exactly one winner and one rejection, got ok=%d rejected=%d", ok, rejected)
	}
}

func TestLedger_ConfirmThenCancel(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	l.Seed("seg-a", 2)
	l.Seed("seg-b", 2)

	bookingID := uuid.New()
	if err := l.Reserve(ctx, bookingID, []string{"seg-a", "seg-b"}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	confirmed, err := l.Confirm(ctx, bookingID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed != 2 {
		t.Errorf("expected 2 confirmed, got %d", confirmed)
	}

	// Confirm is idempotent: nothing left in waiting.
	confirmed, err = l.Confirm(ctx, bookingID)
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if confirmed != 0 {
		t.Errorf("expected 0 confirmed on repeat, got %d", confirmed)
	}

	res, err := l.Cancel(ctx, bookingID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if res.SegmentsCancelled != 2 || res.SegmentsFreed != 2 {
		t.Errorf("expected 2 cancelled / 2 freed, got %+v", res)
	}

	if l.Load("seg-a") != 0 || l.Load("seg-b") != 0 {
		t.Errorf("expected zero load after cancel, got a=%d b=%d", l.Load("seg-a"), l.Load("seg-b"))
	}
}

func TestLedger_Cancel_Idempotent(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	l.Seed("seg-a", 1)

	bookingID := uuid.New()
	if err := l.Reserve(ctx, bookingID, []string{"seg-a"}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if _, err := l.Cancel(ctx, bookingID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	res, err := l.Cancel(ctx, bookingID)
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if res.SegmentsCancelled != 0 || res.SegmentsFreed != 0 {
		t.Errorf("expected no-op on repeat cancel, got %+v", res)
	}

	if got := l.Load("seg-a"); got != 0 {
		t.Errorf("expected load 0, got %d (double decrement?)", got)
	}
}

func TestLedger_Cancel_UnknownBooking(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	l.Seed("seg-a", 1)

	res, err := l.Cancel(ctx, uuid.New())
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if res.SegmentsCancelled != 0 || res.SegmentsFreed != 0 {
		t.Errorf("expected zero result for unknown booking, got %+v", res)
	}
}

func TestLedger_RecordFailed_DoesNotTouchLoad(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	l.Seed("seg-a", 1)

	bookingID := uuid.New()
	if err := l.RecordFailed(ctx, bookingID, []string{"seg-a"}); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	if got := l.Load("seg-a"); got != 0 {
		t.Errorf("expected load 0, got %d", got)
	}

	segs, err := l.Segments(ctx, bookingID)
	if err != nil {
		t.Fatalf("segments: %v", err)
	}
	if len(segs) != 1 || segs[0].Status != domain.ReservationFailed {
		t.Errorf("expected one failed reservation row, got %+v", segs)
	}

	// Failed rows are audit only: cancel must not decrement anything.
	res, err := l.Cancel(ctx, bookingID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if res.SegmentsFreed != 0 {
		t.Errorf("expected 0 freed, got %d", res.SegmentsFreed)
	}
}

func TestLedger_CheckCapacity(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	l.Seed("seg-a", 1)
	l.Seed("seg-b", 1)

	report, err := l.CheckCapacity(ctx, []string{"seg-a", "seg-b"})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if report.Status != domain.CapacityOK {
		t.Errorf("expected ok, got %+v", report)
	}

	if err := l.Reserve(ctx, uuid.New(), []string{"seg-b"}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	report, err = l.CheckCapacity(ctx, []string{"seg-a", "seg-b"})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if report.Status != domain.CapacityAtLimit || report.SegmentID != "seg-b" {
		t.Errorf("expected seg-b at capacity, got %+v", report)
	}

	report, err = l.CheckCapacity(ctx, []string{"seg-a", "seg-ghost"})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if report.Status != domain.CapacityMissing || report.SegmentID != "seg-ghost" {
		t.Errorf("expected seg-ghost missing, got %+v", report)
	}
}
