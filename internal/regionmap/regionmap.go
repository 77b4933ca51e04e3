// Package regionmap partitions a decoded route into contiguous
// per-region coordinate runs using static region bounding boxes.
package regionmap

import (
	"github.com/velykodnyi/corridor/internal/domain"
)

// Boundary pairs a region name with its bounding box. Classification is
// first-match over the table order, so overlap resolution is an explicit
// property of the table, not of map iteration order.
type Boundary struct {
	Region string
	Box    domain.BoundingBox
}

// Table is an ordered region-boundary policy table.
type Table struct {
	boundaries []Boundary
}

func New(boundaries []Boundary) *Table {
	cp := make([]Boundary, len(boundaries))
	copy(cp, boundaries)
	return &Table{boundaries: cp}
}

// Default returns the seed boundary table shipped with the coordinator.
func Default() *Table {
	return New([]Boundary{
		{Region: "ireland", Box: domain.BoundingBox{
			MinLat: 51.0, MaxLat: 55.5, MinLon: -10.5, MaxLon: -5.5,
		}},
		{Region: "london", Box: domain.BoundingBox{
			MinLat: 51.28, MaxLat: 51.686, MinLon: -0.510, MaxLon: 0.334,
		}},
	})
}

// Classify resolves a point to the first region whose box contains it.
func (t *Table) Classify(c domain.Coordinate) (string, bool) {
	for _, b := range t.boundaries {
		if b.Box.Contains(c) {
			return b.Region, true
		}
	}
	return "", false
}

// SplitPath scans the path in order and cuts it into maximal contiguous
// runs of points classified to the same region. A point matching no
// configured region is skipped: it neither extends nor closes the
// current run, so a run may bridge a gap of unclassified points.
// Run IDs are sequential starting at 1; output order is scan order.
func (t *Table) SplitPath(path []domain.Coordinate) []domain.Run {
	var runs []domain.Run
	var current *domain.Run

	for _, c := range path {
		region, ok := t.Classify(c)
		if !ok {
			continue
		}

		if current == nil || current.Region != region {
			if current != nil {
				runs = append(runs, *current)
			}
			current = &domain.Run{
				ID:     len(runs) + 1,
				Region: region,
			}
		}

		current.Coordinates = append(current.Coordinates, c)
	}

	if current != nil {
		runs = append(runs, *current)
	}

	return runs
}

// Regions returns the distinct regions touched by runs, in
// first-appearance order.
func Regions(runs []domain.Run) []string {
	seen := make(map[string]struct{}, len(runs))
	var out []string
	for _, r := range runs {
		if _, ok := seen[r.Region]; ok {
			continue
		}
		seen[r.Region] = struct{}{}
		out = append(out, r.Region)
	}
	return out
}
