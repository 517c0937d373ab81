// Package spatial joins feed stops against externally supplied zone polygons
// and derives per-zone accessibility coverage.
package spatial

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Zone is one accessibility polygon supplied by the caller.
type Zone struct {
	ZoneID   string
	Geometry orb.Geometry
}

// GeometryError rejects a single malformed zone. It is collected, never
// fatal: sibling zones still produce results.
type GeometryError struct {
	ZoneID string
	Reason string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("zone %q: %s", e.ZoneID, e.Reason)
}

// ParseZones decodes a GeoJSON FeatureCollection into zones. Undecodable
// JSON fails outright; per-zone defects (missing identifier, unsupported or
// invalid geometry) are returned as collected geometry errors alongside the
// zones that did parse.
func ParseZones(data []byte) ([]Zone, []*GeometryError, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode zones: %w", err)
	}

	var zones []Zone
	var geomErrs []*GeometryError

	for i, feature := range fc.Features {
		zoneID := identifyZone(feature, i)
		if zoneID == "" {
			geomErrs = append(geomErrs, &GeometryError{
				ZoneID: fmt.Sprintf("feature[%d]", i),
				Reason: "missing zone_id property",
			})
			continue
		}

		if reason := validateGeometry(feature.Geometry); reason != "" {
			geomErrs = append(geomErrs, &GeometryError{ZoneID: zoneID, Reason: reason})
			continue
		}

		zones = append(zones, Zone{ZoneID: zoneID, Geometry: feature.Geometry})
	}

	return zones, geomErrs, nil
}

func identifyZone(feature *geojson.Feature, index int) string {
	if id := feature.Properties.MustString("zone_id", ""); id != "" {
		return id
	}
	if raw, ok := feature.Properties["zone_id"]; ok {
		return fmt.Sprint(raw)
	}
	if id := feature.Properties.MustString("id", ""); id != "" {
		return id
	}
	if feature.ID != nil {
		return fmt.Sprint(feature.ID)
	}
	return ""
}

func validateGeometry(geometry orb.Geometry) string {
	switch geom := geometry.(type) {
	case orb.Polygon:
		return validatePolygon(geom)
	case orb.MultiPolygon:
		for _, polygon := range geom {
			if reason := validatePolygon(polygon); reason != "" {
				return reason
			}
		}
		return ""
	default:
		if geometry == nil {
			return "missing geometry"
		}
		return fmt.Sprintf("unsupported geometry type %s", geometry.GeoJSONType())
	}
}

func validatePolygon(polygon orb.Polygon) string {
	if len(polygon) == 0 {
		return "polygon has no rings"
	}
	for _, ring := range polygon {
		if len(ring) < 4 {
			return "ring has fewer than 4 points"
		}
		if !ring.Closed() {
			return "ring is not closed"
		}
		if ringSelfIntersects(ring) {
			return "ring is self-intersecting"
		}
	}
	return ""
}

// ringSelfIntersects detects proper crossings between non-adjacent edges of
// a closed ring (the bowtie case). Touching endpoints are tolerated.
func ringSelfIntersects(ring orb.Ring) bool {
	edges := len(ring) - 1
	for i := 0; i < edges; i++ {
		for j := i + 2; j < edges; j++ {
			if i == 0 && j == edges-1 {
				continue // first and last edge share the closing point
			}
			if segmentsCross(ring[i], ring[i+1], ring[j], ring[j+1]) {
				return true
			}
		}
	}
	return false
}

func segmentsCross(p1, p2, q1, q2 orb.Point) bool {
	d1 := crossProduct(q1, q2, p1)
	d2 := crossProduct(q1, q2, p2)
	d3 := crossProduct(p1, p2, q1)
	d4 := crossProduct(p1, p2, q2)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func crossProduct(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

// contains tests planar point-in-polygon membership.
func contains(zone Zone, point orb.Point) bool {
	switch geom := zone.Geometry.(type) {
	case orb.Polygon:
		return planar.PolygonContains(geom, point)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(geom, point)
	default:
		return false
	}
}
