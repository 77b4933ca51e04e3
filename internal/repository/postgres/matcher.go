package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/velykodnyi/corridor/internal/domain"
	"github.com/velykodnyi/corridor/internal/repository"
)

// SpatialMatcher maps a coordinate run to the ordered segment IDs it
// intersects, using the region's PostGIS spatial index. Ordering is by
// where along the route each segment is first touched, so the result
// follows travel direction.
type SpatialMatcher struct {
	pool *pgxpool.Pool
}

func NewSpatialMatcher(store *Store) *SpatialMatcher {
	return &SpatialMatcher{pool: store.pool}
}

// MatchSegments requires at least two points to form a line. Returns
// repository.ErrNoSegmentsFound when the run intersects nothing in this
// region's inventory.
func (m *SpatialMatcher) MatchSegments(ctx context.Context, coords []domain.Coordinate) ([]string, error) {
	const op = "postgres.SpatialMatcher.MatchSegments"

	if len(coords) < 2 {
		return nil, fmt.Errorf("%s: route must have at least two coordinates", op)
	}

	rows, err := m.pool.Query(ctx,
		`WITH route AS (
           SELECT ST_SetSRID(ST_GeomFromText($1), 4326) AS geom
         )
         SELECT rs.segment_id
           FROM road_segments rs, route
          WHERE ST_Intersects(rs.geom, route.geom)
          ORDER BY ST_LineLocatePoint(route.geom, ST_StartPoint(ST_Intersection(rs.geom, route.geom)))`,
		lineStringWKT(coords),
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var segmentIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		segmentIDs = append(segmentIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if len(segmentIDs) == 0 {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNoSegmentsFound)
	}

	return segmentIDs, nil
}

// lineStringWKT renders coords as WKT with longitude first, the axis
// order PostGIS expects for SRID 4326 geometries.
func lineStringWKT(coords []domain.Coordinate) string {
	var sb strings.Builder
	sb.WriteString("LINESTRING(")
	for i, c := range coords {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%f %f", c.Lon, c.Lat)
	}
	sb.WriteByte(')')
	return sb.String()
}
