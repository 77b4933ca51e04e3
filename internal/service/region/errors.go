package region

import "errors"

var (
	ErrNoSegmentsFound  = errors.New("route intersects no segments in this region")
	ErrSegmentMissing   = errors.New("segment missing from inventory")
	ErrCapacityExceeded = errors.New("insufficient capacity on one or more segments")
	ErrLedgerInvariant  = errors.New("segment ledger invariant violated")
)
