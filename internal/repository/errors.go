package repository

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrSegmentMissing    = errors.New("segment missing from inventory")
	ErrCapacityExhausted = errors.New("segment at capacity")
	ErrNoSegmentsFound   = errors.New("no segments intersect the route")
	ErrLedgerInvariant   = errors.New("segment load outside [0, capacity]")
)
